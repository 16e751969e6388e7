// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chaz8081/voxcheck/internal/config"
)

// ParseLevel converts a config level string to a logrus level.
// "warning" and "warn" are both accepted.
func ParseLevel(s string) (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("logging: %w", err)
	}
	return lvl, nil
}

// Configure returns a logger for cfg. With a log file set, output goes
// to a size-rotated file, and also to stderr when Stdout is true.
// Without one, it goes to stderr.
func Configure(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("logging: creating log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
	}
	if cfg.Stdout {
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}
