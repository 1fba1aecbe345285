package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Options configures the process logger.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json | logfmt
	// File redirects output to a file instead of stderr. The TUI uses this so
	// log lines do not corrupt the screen.
	File string
}

// New 创建结构化 logger 并设为默认
// New builds a charmbracelet logger, installs it as the package default and
// returns it together with a closer for File output.
func New(opts Options) (*log.Logger, func() error, error) {
	var (
		w      io.Writer = os.Stderr
		closer           = func() error { return nil }
	)
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "create log dir")
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", path)
		}
		w = f
		closer = f.Close
	}

	logger := NewWriter(w, opts)
	log.SetDefault(logger)
	return logger, closer, nil
}

// NewWriter builds a logger writing to w without touching the default.
func NewWriter(w io.Writer, opts Options) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(opts.Level),
		Formatter:       parseFormatter(opts.Format),
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
}

// ParseLevel maps a level name onto log.Level; unknown names mean info.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func parseFormatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	}
	return log.TextFormatter
}
