package index

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Extension is the conventional file suffix for index artifacts.
const Extension = ".idx.gz"

// Write validates ix and persists it to path as gzip-compressed gob.
// The artifact is written to a temporary file in the destination directory
// and renamed into place only after a successful flush, so readers never
// observe a partially written index.
func Write(path string, ix *Index) (err error) {
	if ix == nil {
		return fmt.Errorf("index: write %s: nil index", path)
	}
	if err := ix.Validate(); err != nil {
		return fmt.Errorf("index: write %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("index: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := gzip.NewWriter(tmp)
	if err = gob.NewEncoder(zw).Encode(ix); err != nil {
		return fmt.Errorf("index: encode %s: %w", path, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("index: compress %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("index: sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("index: close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("index: publish %s: %w", path, err)
	}
	return nil
}

// Read loads and validates the artifact at path. A file that cannot be
// opened yields an error wrapping [ErrNotFound]; one that cannot be decoded
// wraps [ErrCorrupt].
func Read(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w: %w", path, ErrNotFound, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w: %w", path, ErrCorrupt, err)
	}
	defer zr.Close()

	var ix Index
	if err := gob.NewDecoder(zr).Decode(&ix); err != nil {
		return nil, fmt.Errorf("index: decode %s: %w: %w", path, ErrCorrupt, err)
	}
	if err := ix.Validate(); err != nil {
		if errors.Is(err, ErrDimensionMismatch) {
			return nil, fmt.Errorf("index: %s: %w: %w", path, ErrCorrupt, err)
		}
		return nil, fmt.Errorf("index: %s: %w", path, err)
	}
	return &ix, nil
}
