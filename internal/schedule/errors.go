package schedule

import "fmt"

// ConfigError is returned by the Compiler for any validation
// violation. It always names the offending job and field so an
// operator can find the mistake without reading a stack trace.
type ConfigError struct {
	Job     string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Job == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config: job %q: %s: %s", e.Job, e.Field, e.Message)
}

func newConfigError(job, field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Job: job, Field: field, Message: fmt.Sprintf(format, args...)}
}
