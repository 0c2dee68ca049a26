package profile

import "fmt"

// ValidationError reports a malformed profile.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid profile field %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports settings that make a ranking run meaningless,
// such as weights that do not sum to 1.0.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}
