// Package profile resolves which local canvass profile (and therefore which
// SQLite file) a process operates against. One profile per signed-in device
// user is typical; "default" is used when nothing else is configured.
package profile

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Default is the profile used when none is configured.
const Default = "default"

// EnvVar names the environment variable consulted by Resolve.
const EnvVar = "CANVASS_PROFILE"

// ErrInvalidProfile indicates the profile name format is invalid.
var ErrInvalidProfile = errors.New("invalid profile: must be lowercase alphanumeric with hyphens, 1-64 characters")

// Segments: lowercase alphanumeric and hyphens, no leading/trailing hyphen.
var profileRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// Validate checks a profile name.
func Validate(name string) error {
	if name == "" || len(name) > 64 {
		return ErrInvalidProfile
	}
	if strings.Contains(name, "--") {
		return ErrInvalidProfile
	}
	if !profileRegex.MatchString(name) {
		return ErrInvalidProfile
	}
	return nil
}

// Resolve determines the profile to use.
// Priority: explicit > CANVASS_PROFILE env > "default"
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if err := Validate(explicit); err != nil {
			return "", fmt.Errorf("invalid profile %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv(EnvVar); env != "" {
		if err := Validate(env); err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", EnvVar, env, err)
		}
		return env, nil
	}

	return Default, nil
}
