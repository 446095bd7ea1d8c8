package config

import (
	"os"
	"strings"
)

// EnvironmentExpander expands environment variable placeholders in the raw configuration.
type EnvironmentExpander interface {
	// Expand replaces ${VAR}, ${VAR:-default} and $VAR placeholders in input.
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands placeholders from the process environment.
// Unset variables become empty unless the placeholder carries a ":-" default.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates a new OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

// Expand implements EnvironmentExpander.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.Expand(string(input), lookupWithDefault)), nil
}

// lookupWithDefault resolves "NAME" or "NAME:-default". The default applies when NAME is unset or empty.
func lookupWithDefault(placeholder string) string {
	name, def, hasDefault := strings.Cut(placeholder, ":-")
	if v := os.Getenv(name); v != "" || !hasDefault {
		return v
	}
	return def
}
