// Package storage owns the recording directory: where sessions and uploads
// are written and how long they are kept.
package storage

import (
	"fmt"
	"os"
)

// New creates the local recording store, making sure the directory exists.
// fixedName, when set, is reused for every session instead of a unique name.
func New(dir, fixedName string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return NewLocalStore(dir, fixedName), nil
}
