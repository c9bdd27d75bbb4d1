package main

import (
	"fmt"
	"io"
	"log/slog"

	"deplopush/internal/security"
	"deplopush/pkg/fileutil"

	"github.com/google/uuid"
)

// setupLogging configures slog for console and, when logPath is set, file logging.
// The returned func closes the log file.
func setupLogging(logPath string, verbose bool, console io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	writer := console
	closeFn := func() {}
	var permErr error

	if logPath != "" {
		if err := fileutil.EnsureParentDir(logPath, security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		permErr = security.CheckLogFile(logPath)

		file, err := security.OpenAppendFile(logPath, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		writer = io.MultiWriter(console, file)
		closeFn = func() { _ = file.Close() }
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With("run_id", uuid.NewString())

	if permErr != nil {
		logger.Warn("Log file has insecure permissions", "path", logPath, "error", permErr)
	}

	return logger, closeFn, nil
}
