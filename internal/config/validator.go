package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/sketch-inspector/internal/channel"
	"github.com/Iron-Ham/sketch-inspector/internal/completion"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "completion.timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxDelayMs caps every configured delay at ten minutes
const maxDelayMs = 10 * 60 * 1000

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validateCompletion()...)
	errors = append(errors, c.validateInspector()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Bridge.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "bridge.binary",
			Value:   c.Bridge.Binary,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateCompletion validates the CompletionConfig
func (c *Config) validateCompletion() []ValidationError {
	var errors []ValidationError
	cc := c.Completion

	if !slices.Contains(channel.ValidMarkerStrategies(), cc.Strategy) {
		errors = append(errors, ValidationError{
			Field:   "completion.strategy",
			Value:   cc.Strategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(channel.ValidMarkerStrategies(), ", ")),
		})
	}

	if !slices.Contains(completion.ValidObserverKinds(), cc.Observer) {
		errors = append(errors, ValidationError{
			Field:   "completion.observer",
			Value:   cc.Observer,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(completion.ValidObserverKinds(), ", ")),
		})
	}

	delays := []struct {
		field string
		value int
	}{
		{"completion.settle_delay_ms", cc.SettleDelayMs},
		{"completion.fixed_delay_ms", cc.FixedDelayMs},
		{"completion.save_delay_ms", cc.SaveDelayMs},
	}
	for _, d := range delays {
		if d.value < 0 {
			errors = append(errors, ValidationError{Field: d.field, Value: d.value, Message: "must be non-negative"})
		} else if d.value > maxDelayMs {
			errors = append(errors, ValidationError{
				Field:   d.field,
				Value:   d.value,
				Message: fmt.Sprintf("exceeds maximum of %dms", maxDelayMs),
			})
		}
	}

	if cc.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "completion.timeout_ms",
			Value:   cc.TimeoutMs,
			Message: "must be positive",
		})
	} else if cc.TimeoutMs <= cc.SettleDelayMs {
		// The settle delay runs after the marker; a shorter timeout would
		// fail commands that already completed.
		errors = append(errors, ValidationError{
			Field:   "completion.timeout_ms",
			Value:   cc.TimeoutMs,
			Message: "must exceed completion.settle_delay_ms",
		})
	}

	if cc.PollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "completion.poll_interval_ms",
			Value:   cc.PollIntervalMs,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateInspector() []ValidationError {
	var errors []ValidationError

	if c.Inspector.Plugin == "" {
		errors = append(errors, ValidationError{
			Field:   "inspector.plugin",
			Value:   c.Inspector.Plugin,
			Message: "must not be empty",
		})
	}
	if c.Inspector.OpenDelayMs < 0 || c.Inspector.OpenDelayMs > maxDelayMs {
		errors = append(errors, ValidationError{
			Field:   "inspector.open_delay_ms",
			Value:   c.Inspector.OpenDelayMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxDelayMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
