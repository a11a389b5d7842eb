package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stores returns every implementation under test, freshly created.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	disk, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"disk":   disk,
	}
}

func readAll(t *testing.T, s Store, name string) []byte {
	t.Helper()
	rc, size, err := s.Open(name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	return data
}

// TestStoreContract verifies the behavior every Store implementation shares.
func TestStoreContract(t *testing.T) {
	for impl, s := range stores(t) {
		t.Run(impl, func(t *testing.T) {
			names, err := s.List()
			require.NoError(t, err)
			assert.Empty(t, names, "new store is empty")

			_, _, err = s.Open("missing")
			assert.ErrorIs(t, err, ErrFileNotFound)
			assert.ErrorIs(t, s.Delete("missing"), ErrFileNotFound)

			require.NoError(t, s.Put("b.txt", strings.NewReader("hello"), 5))
			require.NoError(t, s.Put("a.txt", strings.NewReader("x"), 1))
			assert.Equal(t, []byte("hello"), readAll(t, s, "b.txt"))

			require.NoError(t, s.Put("b.txt", strings.NewReader("bye"), 3), "overwrite")
			assert.Equal(t, []byte("bye"), readAll(t, s, "b.txt"))

			names, err = s.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"a.txt", "b.txt"}, names)

			stats, err := s.Stats()
			require.NoError(t, err)
			assert.Equal(t, StoreStats{Files: 2, Bytes: 4}, stats)

			require.NoError(t, s.Delete("a.txt"))
			names, err = s.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"b.txt"}, names)
		})
	}
}

// TestStorePutReadsExactlySize verifies trailing bytes are left unread and
// short input stores nothing.
func TestStorePutReadsExactlySize(t *testing.T) {
	for impl, s := range stores(t) {
		t.Run(impl, func(t *testing.T) {
			r := strings.NewReader("abcdef")
			require.NoError(t, s.Put("a", r, 4))
			assert.Equal(t, []byte("abcd"), readAll(t, s, "a"))
			assert.Equal(t, 2, r.Len(), "bytes past size stay in the reader")

			err := s.Put("short", strings.NewReader("ab"), 10)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			_, _, err = s.Open("short")
			assert.ErrorIs(t, err, ErrFileNotFound)

			assert.Error(t, s.Put("neg", strings.NewReader(""), -1))

			require.NoError(t, s.Put("empty", strings.NewReader(""), 0))
			assert.Empty(t, readAll(t, s, "empty"))
		})
	}
}

// TestValidateName verifies names that could escape the store are rejected.
func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"report.pdf", true},
		{".hidden", true},
		{"with space", true},
		{"", false},
		{"..", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{`a\b`, false},
		{"a..b", false},
		{tempPrefix + "x", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

// TestStoreRejectsInvalidNames verifies every operation validates its name.
func TestStoreRejectsInvalidNames(t *testing.T) {
	for impl, s := range stores(t) {
		t.Run(impl, func(t *testing.T) {
			assert.ErrorIs(t, s.Put("../x", strings.NewReader("x"), 1), ErrInvalidName)
			_, _, err := s.Open("../x")
			assert.ErrorIs(t, err, ErrInvalidName)
			assert.ErrorIs(t, s.Delete("a/b"), ErrInvalidName)
		})
	}
}

// TestDiskStoreLayout verifies files land in the directory under their own
// names and temporary files are neither listed nor kept.
func TestDiskStoreLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tempPrefix+"stale"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())
	assert.NoFileExists(t, filepath.Join(dir, tempPrefix+"stale"), "leftover upload removed on open")

	require.NoError(t, s.Put("a.txt", bytes.NewReader([]byte("data")), 4))
	content, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names, "directories are not files")

	_, err = NewDiskStore("")
	assert.Error(t, err)
}

// TestDiskStoreReopen verifies contents survive a new store on the same directory.
func TestDiskStoreReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("a.txt", strings.NewReader("persisted"), 9))

	again, err := NewDiskStore(dir)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), readAll(t, again, "a.txt"))
}

// TestStoreConcurrentAccess verifies concurrent puts, reads and deletes are safe.
func TestStoreConcurrentAccess(t *testing.T) {
	for impl, s := range stores(t) {
		t.Run(impl, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					name := fmt.Sprintf("file-%d", i)
					payload := strings.Repeat("x", i+1)
					assert.NoError(t, s.Put(name, strings.NewReader(payload), int64(len(payload))))
					rc, _, err := s.Open(name)
					if assert.NoError(t, err) {
						rc.Close()
					}
					if i%2 == 0 {
						assert.NoError(t, s.Delete(name))
					}
				}(i)
			}
			wg.Wait()

			names, err := s.List()
			require.NoError(t, err)
			assert.Len(t, names, 10)
		})
	}
}
