// Package supervisor manages the three long-running game services — the
// auth server, the world server and the armory — by spawning them detached
// with their output tied to per-service log files and by matching running
// processes on their full command line.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
)

// ErrUnknownService rejects service names outside the managed set.
var ErrUnknownService = errors.New("unknown service")

// selfRestartDelay is how long a replaced supervisor lingers so its HTTP
// response can flush before the process exits.
const selfRestartDelay = 500 * time.Millisecond

// serviceNames is the managed set, in display order.
var serviceNames = []string{"auth", "world", "armory"}

// ServiceNames lists the managed services in display order.
func ServiceNames() []string {
	return append([]string(nil), serviceNames...)
}

// ServiceStatus is one service's process view.
type ServiceStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	PIDs    []int  `json:"pids"`
}

// Supervisor starts, stops and inspects the managed services.
type Supervisor struct {
	cfg *config.Starter
	log *logrus.Entry

	// test seams; production values are os.Executable and os.Exit.
	selfExe func() (string, error)
	exit    func(int)
}

// New wires a supervisor over the starter configuration.
func New(cfg *config.Starter, log *logrus.Entry) *Supervisor {
	if log == nil {
		log = logging.Discard()
	}
	return &Supervisor{
		cfg:     cfg,
		log:     log,
		selfExe: os.Executable,
		exit:    os.Exit,
	}
}

func isService(name string) bool {
	for _, n := range serviceNames {
		if n == name {
			return true
		}
	}
	return false
}

// patternFor is the substring matched against running command lines. The
// default is the service name itself.
func (s *Supervisor) patternFor(name string) string {
	if p := s.cfg.Paths.ProcessPatterns[name]; p != "" {
		return p
	}
	return name
}

func (s *Supervisor) binFor(name string) (string, error) {
	var bin string
	switch name {
	case "auth":
		bin = s.cfg.Paths.AuthBin
	case "world":
		bin = s.cfg.Paths.WorldBin
	case "armory":
		bin = s.cfg.Paths.ArmoryBin
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	if bin == "" {
		return "", fmt.Errorf("service %s has no configured binary", name)
	}
	return bin, nil
}

// Status reports the PIDs whose command line matches the service's pattern.
func (s *Supervisor) Status(name string) (ServiceStatus, error) {
	if !isService(name) {
		return ServiceStatus{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	pids, err := findPIDs(s.patternFor(name))
	if err != nil {
		return ServiceStatus{}, fmt.Errorf("status %s: %w", name, err)
	}
	return ServiceStatus{Name: name, Running: len(pids) > 0, PIDs: pids}, nil
}

// StatusAll reports every managed service, in display order.
func (s *Supervisor) StatusAll() ([]ServiceStatus, error) {
	out := make([]ServiceStatus, 0, len(serviceNames))
	for _, name := range serviceNames {
		st, err := s.Status(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Start spawns the service binary detached, in its own session, with stdout
// and stderr appended to the service's log file. A nil Stdin reads from the
// null device. Returns the child PID.
func (s *Supervisor) Start(name string) (int, error) {
	bin, err := s.binFor(name)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(bin); err != nil {
		return 0, fmt.Errorf("service %s: %w", name, err)
	}

	logFile, err := s.openServiceLog(name + ".log")
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(bin)
	// Server binaries resolve their .conf files relative to the working
	// directory.
	cmd.Dir = filepath.Dir(bin)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("start %s: %w", name, err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits and release the log handle.
	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
	}()

	s.log.WithFields(logrus.Fields{
		"service": name,
		"pid":     pid,
		"bin":     bin,
	}).Info("service started")
	return pid, nil
}

// Stop signals every process matching the service's pattern and returns the
// PIDs actually signalled. Stopping a stopped service is a no-op.
func (s *Supervisor) Stop(name string) ([]int, error) {
	if !isService(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	pids, err := findPIDs(s.patternFor(name))
	if err != nil {
		return nil, fmt.Errorf("stop %s: %w", name, err)
	}

	stopped := make([]int, 0, len(pids))
	self := os.Getpid()
	for _, pid := range pids {
		// A pattern sloppy enough to match this process must not take
		// the supervisor down with the service.
		if pid == self {
			continue
		}
		if err := stopPID(pid); err != nil {
			s.log.WithFields(logrus.Fields{
				"service": name,
				"pid":     pid,
			}).WithError(err).Warn("signal failed")
			continue
		}
		stopped = append(stopped, pid)
	}

	s.log.WithFields(logrus.Fields{
		"service": name,
		"stopped": stopped,
	}).Info("service stopped")
	return stopped, nil
}

// Restart stops the service and starts it again once the signals have been
// sent.
func (s *Supervisor) Restart(name string) (int, error) {
	if _, err := s.Stop(name); err != nil {
		return 0, err
	}
	return s.Start(name)
}

// SelfRestart spawns a fresh copy of this executable with the same
// arguments, then exits the current process after a short delay so the HTTP
// response can flush. The replacement writes to its own timestamped log
// file; sharing the current one would interleave two processes' output.
func (s *Supervisor) SelfRestart() (int, error) {
	exe, err := s.selfExe()
	if err != nil {
		return 0, fmt.Errorf("self-restart: %w", err)
	}

	logName := fmt.Sprintf("sdb-restart-%s.log", time.Now().Format("2006-01-02-150405"))
	logFile, err := s.openServiceLog(logName)
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("self-restart: %w", err)
	}
	pid := cmd.Process.Pid

	s.log.WithFields(logrus.Fields{
		"pid": pid,
		"log": logName,
	}).Info("self-restart: replacement spawned, exiting")
	time.AfterFunc(selfRestartDelay, func() { s.exit(0) })
	return pid, nil
}

func (s *Supervisor) openServiceLog(name string) (*os.File, error) {
	dir := s.cfg.Paths.LogsDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open service log: %w", err)
	}
	return f, nil
}
