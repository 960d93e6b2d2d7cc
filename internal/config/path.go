package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies flag > XDG_CONFIG_HOME > ~/.config precedence for config.jsonc.
func ResolvePath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, nil
	}

	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("unable to resolve user home for config fallback")
		}
		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, "vochat", "config.jsonc"), nil
}
