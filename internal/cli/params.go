package cli

import (
	"fmt"
	"strings"

	"github.com/vsayer/materialize/pkg/catalog"
)

// parseParameterFlags converts "name=value" flag values into system
// parameter defaults. Names are case-insensitive.
func parseParameterFlags(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q is not in name=value format (example: --param max_tables=100): %w", pair, catalog.ErrInvalidConfig)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("parameter has empty name: %q: %w", pair, catalog.ErrInvalidConfig)
		}
		result[name] = value
	}

	return result, nil
}

// mergeParameters layers overrides on top of base without modifying either.
func mergeParameters(base, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
