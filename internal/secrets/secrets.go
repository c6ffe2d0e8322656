// Package secrets reads secret values stored one file per catalog item and
// decodes the SSH key pair sets that SSH tunnel connections keep there.
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vsayer/materialize/pkg/catalog"
)

// DirReader stores each secret in a file named after the owning item's id.
type DirReader struct {
	dir string
}

var _ catalog.SecretsReader = (*DirReader)(nil)

func NewDirReader(dir string) *DirReader {
	return &DirReader{dir: dir}
}

func (r *DirReader) path(id catalog.ObjectID) string {
	return filepath.Join(r.dir, id.String())
}

// Read returns the secret of id. A missing secret yields an error matching
// fs.ErrNotExist.
func (r *DirReader) Read(ctx context.Context, id catalog.ObjectID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret for %s: %w", id, err)
	}
	return data, nil
}

// Write stores the secret of id, readable only by the current user.
func (r *DirReader) Write(ctx context.Context, id catalog.ObjectID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	if err := os.WriteFile(r.path(id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write secret for %s: %w", id, err)
	}
	return nil
}
