// Package logging configures the process-wide structured logger.
//
// Everything logs through logrus with a JSON formatter so the dated log
// files line up with the edit store's dated backup directories. Handy for
// tailing: tail -f logs/sdb-*.log | humanlog
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the log destination and verbosity.
type Options struct {
	// Dir is the directory for the rolling log file. Empty disables the
	// file sink.
	Dir string
	// Level is a logrus level name; invalid or empty means info.
	Level string
	// Console mirrors entries to stderr in addition to the file sink.
	Console bool
	// Version is stamped on every entry.
	Version string
}

// New builds the root logger. The file sink is named for the day the
// process started and rolls over by size, keeping a few compressed backups.
func New(opts Options) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	log.SetLevel(parseLevel(opts.Level))

	var sinks []io.Writer
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err == nil {
			sinks = append(sinks, &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "sdb-"+time.Now().Format("2006-01-02")+".log"),
				MaxSize:    20, // megabytes
				MaxBackups: 10,
				MaxAge:     28, // days
				Compress:   true,
			})
		}
	}
	if opts.Console {
		sinks = append(sinks, os.Stderr)
	}
	switch len(sinks) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(sinks[0])
	default:
		log.SetOutput(io.MultiWriter(sinks...))
	}

	return log.WithFields(logrus.Fields{
		"app":     "sdb",
		"version": opts.Version,
	})
}

// Discard returns a logger that goes nowhere. Used by tests and as a safe
// default when a component is constructed without one.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func parseLevel(s string) logrus.Level {
	if s == "" {
		if env := os.Getenv("SDB_LOG_LEVEL"); env != "" {
			s = env
		}
	}
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
