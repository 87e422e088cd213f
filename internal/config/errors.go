package config

import "fmt"

// ConfigNotFoundError represents an explicitly requested config file that
// does not exist
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	msg := fmt.Sprintf("config file not found: %s", e.Path)
	if e.Hint != "" {
		msg += "\nhint: " + e.Hint
	}
	return msg
}

// InvalidConfigError represents a config file that cannot be parsed or
// holds out-of-range values
type InvalidConfigError struct {
	Path    string
	Field   string
	Message string
	Hint    string
}

func (e *InvalidConfigError) Error() string {
	msg := "invalid config"
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Hint != "" {
		msg += "\nhint: " + e.Hint
	}
	return msg
}
