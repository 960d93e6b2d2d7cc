package config

import (
	"errors"
	"strings"
)

// Parse reads JSONC configuration content on top of base.
//
// Empty content yields base unchanged. Anything other than a JSONC object is rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "//") && !strings.HasPrefix(trimmed, "/*") {
		return Config{}, nil, errors.New("config must be a JSONC object")
	}

	return parseJSONC(content, base)
}
