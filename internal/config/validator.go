// ABOUTME: Validation of coordinator and participant configuration
// ABOUTME: Collects every invalid field instead of stopping at the first
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

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

// ValidTransports returns the transports a participant can dial
func ValidTransports() []string {
	return []string{"tcp", "ws"}
}

func validatePort(field string, port int, allowZero bool) []ValidationError {
	if port < 0 || port > 65535 || (port == 0 && !allowZero) {
		return []ValidationError{{Field: field, Value: port, Message: "must be a valid port number"}}
	}
	return nil
}

func validatePositive(field string, d time.Duration) []ValidationError {
	if d <= 0 {
		return []ValidationError{{Field: field, Value: d, Message: "must be positive"}}
	}
	return nil
}

func (l LoggingConfig) validate() []ValidationError {
	var errs []ValidationError
	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Value: l.MaxSizeMB, Message: "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Value: l.MaxBackups, Message: "must not be negative"})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_age_days", Value: l.MaxAgeDays, Message: "must not be negative"})
	}
	return errs
}

// Validate checks the coordinator configuration and returns all errors found
func (c *CoordinatorConfig) Validate() []ValidationError {
	var errs []ValidationError

	// Port 0 asks the OS for a free port
	errs = append(errs, validatePort("port", c.Port, true)...)
	errs = append(errs, validatePort("ws_port", c.WSPort, true)...)
	if c.WSPort != 0 && c.WSPort == c.Port {
		errs = append(errs, ValidationError{Field: "ws_port", Value: c.WSPort, Message: "must differ from port"})
	}
	errs = append(errs, validatePositive("cycle_period", c.CyclePeriod)...)
	errs = append(errs, validatePositive("send_timeout", c.SendTimeout)...)
	if c.SendTimeout > 0 && c.CyclePeriod > 0 && c.SendTimeout > c.CyclePeriod {
		errs = append(errs, ValidationError{Field: "send_timeout", Value: c.SendTimeout, Message: "must not exceed cycle_period"})
	}
	if c.BroadcastConcurrency < 1 {
		errs = append(errs, ValidationError{Field: "broadcast_concurrency", Value: c.BroadcastConcurrency, Message: "must be at least 1"})
	}
	errs = append(errs, c.Logging.validate()...)

	return errs
}

// Validate checks the participant configuration and returns all errors found
func (c *ParticipantConfig) Validate() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidTransports(), c.Transport) {
		errs = append(errs, ValidationError{
			Field:   "transport",
			Value:   c.Transport,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTransports(), ", ")),
		})
	}
	errs = append(errs, validatePositive("report_period", c.ReportPeriod)...)
	errs = append(errs, validatePositive("connect_timeout", c.ConnectTimeout)...)
	errs = append(errs, validatePositive("cycle_period", c.CyclePeriod)...)
	if c.Coordinator == "" {
		errs = append(errs, validatePositive("discover_timeout", c.DiscoverTimeout)...)
	}
	errs = append(errs, c.Logging.validate()...)

	return errs
}
