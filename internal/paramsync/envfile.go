// Package paramsync implements a sysvars.Frontend backed by a .env file.
//
// The file uses the usual KEY=VALUE format parsed by godotenv. Keys are the
// parameter names; unknown names are reported by the caller, not here.
package paramsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileFrontend reads parameters from a .env file on every Pull.
type EnvFileFrontend struct {
	path string
}

// NewEnvFileFrontend returns a frontend reading path.
func NewEnvFileFrontend(path string) *EnvFileFrontend {
	return &EnvFileFrontend{path: path}
}

// Pull reads the file and returns its parameters with lower-cased names.
func (f *EnvFileFrontend) Pull(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := godotenv.Read(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file %s: %w", f.path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}
