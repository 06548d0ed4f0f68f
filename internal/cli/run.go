package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/logging"
)

// RunOptions contains the flags shared by every command. Non-empty fields
// override the configuration file and environment.
type RunOptions struct {
	ConfigPath string
	LogLevel   string
	Script     string
	LibraryDir string
	FlowID     string
	Strict     bool
}

// Load reads the configuration, applies the flag overrides and creates the
// application logger.
func Load(opts RunOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	// A script given on the command line wins over a configured library.
	if opts.Script != "" {
		cfg.Script = opts.Script
		cfg.Library.Dir = ""
	}
	if opts.LibraryDir != "" {
		cfg.Library.Dir = opts.LibraryDir
		if opts.Script == "" {
			cfg.Script = ""
		}
	}
	if opts.FlowID != "" {
		cfg.Library.Flow = opts.FlowID
	}

	logger, err := createLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// createLogger writes to Stderr so chat output and MCP stdio stay clean.
func createLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format := logging.Format(strings.ToLower(strings.TrimSpace(cfg.Format)))
	switch format {
	case "", logging.FormatText:
		format = logging.FormatText
	case logging.FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logging.NewWriter(os.Stderr, level, format), nil
}
