// Package logging builds the structured logger used by the procmon binary.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	logDirEnvVar  = "PROCMON_LOG_DIR"
	logFileEnvVar = "PROCMON_LOG_FILE"
	logFileName   = "procmon.log"
)

// New returns a JSON slog.Logger writing to w, tagged with service.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

// Setup opens the log file and returns a logger writing to it. The TUI owns
// the terminal, so nothing goes to stderr. The returned func closes the file.
func Setup(service string, level slog.Level) (*slog.Logger, func() error, string, error) {
	path, err := resolveLogFilePath()
	if err != nil {
		return nil, nil, "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening log file %q: %w", path, err)
	}
	closeFn := func() error {
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		return nil
	}
	return New(f, service, level), closeFn, path, nil
}

func resolveLogFilePath() (string, error) {
	if path := os.Getenv(logFileEnvVar); path != "" {
		if err := ensureLogDir(filepath.Dir(path)); err != nil {
			return "", err
		}
		return path, nil
	}

	if dir := os.Getenv(logDirEnvVar); dir != "" {
		if err := ensureLogDir(dir); err != nil {
			return "", err
		}
		return filepath.Join(dir, logFileName), nil
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		exePath, exeErr := os.Executable()
		if exeErr != nil {
			return "", fmt.Errorf("determining log directory: %w", err)
		}
		dir = filepath.Dir(exePath)
	} else {
		dir = filepath.Join(dir, "procmon")
	}
	if err := ensureLogDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, logFileName), nil
}

func ensureLogDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("log directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log dir %q: %w", dir, err)
	}
	return nil
}
