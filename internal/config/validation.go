package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"dotphrase/internal/keystroke"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateInput(&c.Input)...)
	errs = append(errs, validateInjection(&c.Injection)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if c.Notify.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "notify.timeout_ms",
			Message: "timeout cannot be negative",
		})
	}

	if c.Phrasebook.Watch && c.Phrasebook.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "phrasebook.path",
			Message: "path is required when watch is enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Backend {
	case "sqlite":
		if s.Path == "" {
			errs = append(errs, *RequiredFieldError("storage.path"))
		}
		if s.BusyTimeoutMs < 0 {
			errs = append(errs, ValidationError{
				Field:   "storage.busy_timeout_ms",
				Message: "busy timeout cannot be negative",
			})
		}
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, *RequiredFieldError("storage.redis.addr"))
		}
		if s.Redis.DB < 0 || s.Redis.DB > 15 {
			errs = append(errs, *RangeError("storage.redis.db", 0, 15))
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: sqlite, redis, memory)", s.Backend),
		})
	}

	if s.Encrypt && s.KeyPath == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.key_path",
			Message: "key path is required when encrypt is enabled",
		})
	}

	return errs
}

func validateInput(in *InputConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := CancelKind(in.CancelKey); err != nil {
		errs = append(errs, ValidationError{
			Field:   "input.cancel_key",
			Message: err.Error(),
		})
	}

	for i, dev := range in.Devices {
		if !strings.HasPrefix(dev, "/dev/input/") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("input.devices[%d]", i),
				Message: fmt.Sprintf("not an input device path: %s", dev),
			})
		}
	}

	if in.Buffer < 0 {
		errs = append(errs, ValidationError{
			Field:   "input.buffer",
			Message: "buffer cannot be negative",
		})
	}

	return errs
}

// CancelKind parses the cancel key name. Only keys that never edit the
// trigger buffer may end a session.
func CancelKind(name string) (keystroke.Kind, error) {
	kind, ok := keystroke.ParseKind(strings.ToLower(name))
	if !ok {
		return keystroke.KindUnknown, fmt.Errorf("unknown key %q (valid: escape, delete)", name)
	}
	switch kind {
	case keystroke.KindEscape, keystroke.KindDelete:
		return kind, nil
	}
	return keystroke.KindUnknown, fmt.Errorf("key %q is used for typing and cannot cancel", name)
}

func validateInjection(in *InjectionConfig) ValidationErrors {
	var errs ValidationErrors

	if in.DeviceName == "" {
		errs = append(errs, *RequiredFieldError("injection.device_name"))
	}
	if in.KeyDelayMs < 0 || in.KeyDelayMs > 1000 {
		errs = append(errs, *RangeError("injection.key_delay_ms", 0, 1000))
	}
	if in.SettleDelayMs < 0 || in.SettleDelayMs > 10000 {
		errs = append(errs, *RangeError("injection.settle_delay_ms", 0, 10000))
	}

	switch in.UnicodeInput {
	case "ctrl-shift-u", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "injection.unicode_input",
			Message: fmt.Sprintf("invalid mode: %s (valid: ctrl-shift-u, none)", in.UnicodeInput),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		return ValidationErrors{{
			Field:   "metrics.addr",
			Message: fmt.Sprintf("invalid listen address: %s", m.Addr),
		}}
	}
	return nil
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
