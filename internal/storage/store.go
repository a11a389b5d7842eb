package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrFileNotFound is returned when a name is not held by the store.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that are empty or could escape the store.
	ErrInvalidName = errors.New("invalid file name")
)

// Store holds the file contents of one storage node.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// Put reads exactly size bytes from r and stores them under name,
	// replacing any existing contents. A short read stores nothing.
	Put(name string, r io.Reader, size int64) error

	// Open returns the contents of name and their size.
	// Returns ErrFileNotFound if the name is not held.
	Open(name string) (io.ReadCloser, int64, error)

	// Delete removes name.
	// Returns ErrFileNotFound if the name is not held.
	Delete(name string) error

	// List returns the held names in sorted order.
	List() ([]string, error)

	// Stats returns storage statistics.
	Stats() (StoreStats, error)
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Files int   `json:"files"` // Number of files
	Bytes int64 `json:"bytes"` // Total size of all files in bytes
}

// ValidateName rejects names that are empty, contain a path separator or
// contain "..". File names travel as single protocol tokens and become
// file names on disk, so nothing else is allowed to reach a Store.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q contains \"..\"", ErrInvalidName, name)
	case strings.HasPrefix(name, tempPrefix):
		return fmt.Errorf("%w: %q uses a reserved prefix", ErrInvalidName, name)
	}
	return nil
}
