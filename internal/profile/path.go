package profile

import (
	"os"
	"path/filepath"
)

// Root returns the directory holding all profiles.
// Defaults to ~/.canvass/profiles, falls back to ./.canvass/profiles if home dir unavailable.
func Root() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".canvass", "profiles")
	}
	return filepath.Join(home, ".canvass", "profiles")
}

// Dir returns the directory for one profile.
func Dir(name string) string {
	return filepath.Join(Root(), name)
}

// DBPath returns the full path to a profile's database file.
// Example: DBPath("field") -> ~/.canvass/profiles/field/canvass.db
func DBPath(name string) string {
	return filepath.Join(Dir(name), "canvass.db")
}

// CacheDir returns the scratch directory cleared on sign-out.
func CacheDir(name string) string {
	return filepath.Join(Dir(name), "cache")
}
