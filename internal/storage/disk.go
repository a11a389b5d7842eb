package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// tempPrefix marks uploads in progress. Such files are never listed.
const tempPrefix = ".upload-"

// DiskStore implements Store as one regular file per name in a directory.
//
// Put writes to a temporary file and renames it into place, so a reader
// never sees a partial upload and a failed upload leaves nothing behind.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
// Leftover temporary files from an earlier run are removed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, tempPrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("scan storage directory: %w", err)
	}
	for _, path := range leftovers {
		os.Remove(path)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the directory the store is rooted at.
func (d *DiskStore) Dir() string {
	return d.dir
}

func (d *DiskStore) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.dir, name), nil
}

// Put stores exactly size bytes from r under name.
func (d *DiskStore) Put(name string, r io.Reader, size int64) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}

	if size < 0 {
		return fmt.Errorf("put %s: negative size %d", name, size)
	}
	tmp, err := os.CreateTemp(d.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.CopyN(tmp, r, size)
	if err != nil {
		tmp.Close()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("put %s: got %d of %d bytes: %w", name, n, size, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Open returns the file for name and its size.
func (d *DiskStore) Open(name string) (io.ReadCloser, int64, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrFileNotFound
		}
		return nil, 0, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("open %s: %w", name, err)
	}
	return f, info.Size(), nil
}

// Delete removes the file for name.
func (d *DiskStore) Delete(name string) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// List returns the names of regular files in the directory, sorted.
func (d *DiskStore) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Stats sums the sizes of the listed files.
func (d *DiskStore) Stats() (StoreStats, error) {
	names, err := d.List()
	if err != nil {
		return StoreStats{}, err
	}
	var stats StoreStats
	for _, name := range names {
		info, err := os.Stat(filepath.Join(d.dir, name))
		if err != nil {
			continue
		}
		stats.Files++
		stats.Bytes += info.Size()
	}
	return stats, nil
}
