//go:build windows

package supervisor

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
	}
}

// stopPID terminates the process. Windows has no SIGTERM for unrelated
// console processes; TerminateProcess via Kill is the reliable call.
func stopPID(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// findPIDs matches pattern against tasklist image names. Full command lines
// are not cheaply available on Windows, so the match is coarser than the
// unix /proc scan; patterns should name the executable.
func findPIDs(pattern string) ([]int, error) {
	out, err := exec.Command("tasklist", "/FO", "CSV", "/NH").Output()
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	needle := strings.ToLower(pattern)

	var pids []int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse tasklist output: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		if !strings.Contains(strings.ToLower(rec[0]), needle) {
			continue
		}
		if pid, err := strconv.Atoi(rec[1]); err == nil {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}
