package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replistore/internal/protocol"
)

// TestDirectoryInsert verifies that names are unique across every status.
func TestDirectoryInsert(t *testing.T) {
	for _, status := range []Status{StatusStoring, StatusStored, StatusRemoving} {
		t.Run(status.String(), func(t *testing.T) {
			d := NewDirectory()
			require.NoError(t, d.Insert(FileRecord{Name: "a.txt", Status: status}))

			err := d.Insert(FileRecord{Name: "a.txt", Status: StatusStoring})
			assert.ErrorIs(t, err, protocol.ErrFileAlreadyExists)
			assert.Equal(t, 1, d.Len())
		})
	}
}

// TestDirectoryUpdate verifies scoped mutation and deletion through Update.
func TestDirectoryUpdate(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(FileRecord{Name: "a.txt", Status: StatusStoring, Replicas: []string{"1", "2"}}))

	found := d.Update("a.txt", func(rec *FileRecord) bool {
		rec.Acks = append(rec.Acks, "1")
		return false
	})
	require.True(t, found)

	rec, ok := d.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, 1, rec.AckCount())

	assert.True(t, d.Update("a.txt", func(*FileRecord) bool { return true }))
	_, ok = d.Get("a.txt")
	assert.False(t, ok)
	assert.False(t, d.Update("a.txt", func(*FileRecord) bool { return false }))
}

// TestDirectoryGetReturnsCopy verifies callers cannot mutate records outside the lock.
func TestDirectoryGetReturnsCopy(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Insert(FileRecord{Name: "a.txt", Replicas: []string{"1", "2"}}))

	rec, _ := d.Get("a.txt")
	rec.Replicas[0] = "changed"

	again, _ := d.Get("a.txt")
	assert.Equal(t, []string{"1", "2"}, again.Replicas)
}

// TestDirectoryQueries verifies the read-only views used by listing, placement and rebalancing.
func TestDirectoryQueries(t *testing.T) {
	d := NewDirectory()
	records := []FileRecord{
		{Name: "c.txt", Status: StatusStored, Replicas: []string{"1", "2"}},
		{Name: "a.txt", Status: StatusStored, Replicas: []string{"1"}},
		{Name: "b.txt", Status: StatusStoring, Replicas: []string{"2", "3"}},
		{Name: "d.txt", Status: StatusRemoving, Replicas: []string{"3", "1"}},
	}
	for _, rec := range records {
		require.NoError(t, d.Insert(rec))
	}

	assert.Equal(t, []string{"a.txt", "c.txt"}, d.Names(StatusStored))
	assert.Equal(t, []string{"b.txt"}, d.Names(StatusStoring))
	assert.Equal(t, map[string]int{"1": 3, "2": 2, "3": 2}, d.ReplicaCounts())
	assert.Equal(t, []string{"a.txt"}, d.UnderReplicated(2))
	assert.Equal(t, map[Status]int{StatusStoring: 1, StatusStored: 2, StatusRemoving: 1}, d.CountByStatus())

	snap := d.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "a.txt", snap[0].Name)
	assert.Equal(t, "d.txt", snap[3].Name)
}

// TestDirectoryEach verifies bulk mutation with selective deletion.
func TestDirectoryEach(t *testing.T) {
	d := NewDirectory()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, d.Insert(FileRecord{Name: name, Status: StatusStored}))
	}

	d.Each(func(rec *FileRecord) bool { return rec.Name != "b" })
	assert.Equal(t, []string{"b"}, d.Names(StatusStored))
}

// TestStatusString verifies status names used in logs, metrics and JSON.
func TestStatusString(t *testing.T) {
	assert.Equal(t, "storing", StatusStoring.String())
	assert.Equal(t, "stored", StatusStored.String())
	assert.Equal(t, "removing", StatusRemoving.String())
	assert.Equal(t, "unknown", Status(0).String())

	text, err := StatusStored.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "stored", string(text))
}
