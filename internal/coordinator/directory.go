// Package coordinator implements the coordination engine of the replistore coordinator.
// See doc.go for complete package documentation.
package coordinator

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// Status is the lifecycle state of a FileRecord.
type Status int

const (
	// StatusStoring means replicas were chosen and acknowledgments are outstanding.
	StatusStoring Status = iota + 1
	// StatusStored means every replica acknowledged; the file is listable and loadable.
	StatusStored
	// StatusRemoving means REMOVE was sent to the replicas and acknowledgments are outstanding.
	StatusRemoving
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusStoring:
		return "storing"
	case StatusStored:
		return "stored"
	case StatusRemoving:
		return "removing"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FileRecord is the coordinator's metadata for one file.
//
// Replicas holds addresses of storage nodes; they are weak references into
// the membership registry and are only removed by failure handling.
//
// Acks holds the replicas that acknowledged the in-flight operation. It is a
// set, so its length is the acknowledgment count and can never exceed the
// number of replicas.
type FileRecord struct {
	// Owner is the client connection waiting for the in-flight operation.
	// Cleared once the operation completes.
	Owner *protocol.Conn `json:"-"`

	Name     string   `json:"name"`
	Replicas []string `json:"replicas"`
	Acks     []string `json:"acks,omitempty"`

	// Size is the declared size in bytes.
	Size int64 `json:"size"`

	// ExpectedAcks is the replica count at the time REMOVE was issued.
	ExpectedAcks int `json:"expected_acks,omitempty"`

	// OpID identifies the in-flight operation so that a deadline set for
	// an earlier operation on the same name cannot act on this one.
	OpID uuid.UUID `json:"op_id"`

	Status Status `json:"status"`
}

// AckCount returns the number of acknowledgments received for the in-flight operation.
func (r *FileRecord) AckCount() int {
	return len(r.Acks)
}

// HasReplica reports whether addr holds a replica of the file.
func (r *FileRecord) HasReplica(addr string) bool {
	return slices.Contains(r.Replicas, addr)
}

func (r *FileRecord) clone() FileRecord {
	c := *r
	c.Replicas = slices.Clone(r.Replicas)
	c.Acks = slices.Clone(r.Acks)
	return c
}

// Directory is the authoritative map of file name to FileRecord.
//
// Mutations go through scoped accessors (Update, Each) so no caller ever
// holds a pointer to a record outside the directory's lock. The coordinator
// serializes logical operations with its own lock on top; the directory's
// lock lets read-only observers take consistent snapshots without it.
type Directory struct {
	mu    sync.RWMutex
	files map[string]*FileRecord
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{files: make(map[string]*FileRecord)}
}

// Get returns a copy of the record for name.
func (d *Directory) Get(name string) (FileRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.files[name]
	if !ok {
		return FileRecord{}, false
	}
	return rec.clone(), true
}

// Insert adds a new record. It fails with protocol.ErrFileAlreadyExists if
// any record, in any status, already uses the name.
func (d *Directory) Insert(rec FileRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.files[rec.Name]; exists {
		return protocol.ErrFileAlreadyExists
	}
	stored := rec.clone()
	d.files[rec.Name] = &stored
	return nil
}

// Update runs fn on the record for name under the directory lock.
// If fn returns true the record is deleted. Update reports whether the
// record existed.
func (d *Directory) Update(name string, fn func(rec *FileRecord) (remove bool)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.files[name]
	if !ok {
		return false
	}
	if fn(rec) {
		delete(d.files, name)
	}
	return true
}

// Each runs fn on every record under the directory lock, deleting those for
// which fn returns true.
func (d *Directory) Each(fn func(rec *FileRecord) (remove bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, rec := range d.files {
		if fn(rec) {
			delete(d.files, name)
		}
	}
}

// Delete removes the record for name and reports whether it existed.
func (d *Directory) Delete(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.files[name]
	delete(d.files, name)
	return ok
}

// Len returns the number of records in any status.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.files)
}

// Names returns the sorted names of records in the given status.
func (d *Directory) Names(status Status) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.files))
	for name, rec := range d.files {
		if rec.Status == status {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ReplicaCounts returns, per storage node address, how many records list it
// as a replica. Records in every status count.
func (d *Directory) ReplicaCounts() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range d.files {
		for _, addr := range rec.Replicas {
			counts[addr]++
		}
	}
	return counts
}

// CountByStatus returns the number of records in each status.
func (d *Directory) CountByStatus() map[Status]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := map[Status]int{StatusStoring: 0, StatusStored: 0, StatusRemoving: 0}
	for _, rec := range d.files {
		counts[rec.Status]++
	}
	return counts
}

// UnderReplicated returns the sorted names of stored files with fewer than
// want replicas.
func (d *Directory) UnderReplicated(want int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for name, rec := range d.files {
		if rec.Status == StatusStored && len(rec.Replicas) < want {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Snapshot returns copies of all records sorted by name.
// The copies carry no owner connection.
func (d *Directory) Snapshot() []FileRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]FileRecord, 0, len(d.files))
	for _, rec := range d.files {
		c := rec.clone()
		c.Owner = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
