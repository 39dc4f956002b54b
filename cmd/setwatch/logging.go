package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// configureRuntimeLogger writes logs to ~/.local/state/setwatch/<name>.log
// and, when alsoStderr is set, to stderr. It falls back to stderr alone when
// the log file cannot be opened.
func configureRuntimeLogger(name, level string, alsoStderr bool) (*logrus.Entry, func()) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	logger.SetOutput(os.Stderr)
	entry := logrus.NewEntry(logger)

	home, err := os.UserHomeDir()
	if err != nil {
		return entry, func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "setwatch")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return entry, func() {}
	}

	logPath := filepath.Join(logDir, name+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.WithError(err).Warn("cannot open log file, logging to stderr")
		return entry, func() {}
	}

	if alsoStderr {
		logger.SetOutput(io.MultiWriter(f, os.Stderr))
	} else {
		logger.SetOutput(f)
	}
	return entry, func() {
		_ = f.Close()
	}
}
