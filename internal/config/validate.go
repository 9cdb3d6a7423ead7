package config

import (
	"fmt"
	"strings"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/logging"
)

// Severity of a validation result.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// ValidationResult is one problem found in a configuration.
type ValidationResult struct {
	Severity Severity
	Message  string
}

// Validate checks cfg and returns every problem found.
func Validate(cfg *Config) []ValidationResult {
	var results []ValidationResult
	add := func(sev Severity, format string, args ...any) {
		results = append(results, ValidationResult{Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Leader == "" {
		add(SeverityWarning, "leader is empty; using %q", "\\")
	} else if strings.HasPrefix(cfg.Leader, "<") && cfg.Leader != "<space>" {
		add(SeverityWarning, "leader %q is bracketed notation; only <space> is understood", cfg.Leader)
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(SeverityError, "log_level %q is not one of trace, debug, info, warn, error", cfg.LogLevel)
	}

	for _, m := range cfg.SelectionOptOutModes {
		if _, err := engine.ParseMode(m); err != nil {
			add(SeverityWarning, "selection_opt_out_modes: %v", err)
		}
	}
	return results
}

// LogResults logs each result at the level matching its severity.
func LogResults(logger *logging.Logger, results []ValidationResult) {
	for _, r := range results {
		if r.Severity == SeverityError {
			logger.Error("config: %s", r.Message)
		} else {
			logger.Warn("config: %s", r.Message)
		}
	}
}
