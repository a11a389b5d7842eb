package cluster

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replistore/internal/protocol"
)

// newConn returns a protocol connection backed by an in-memory pipe.
// Registry tests never perform I/O on it.
func newConn(t *testing.T) *protocol.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return protocol.NewConn(a)
}

// TestRegistryJoin verifies that joining registers new addresses and is idempotent for known ones.
func TestRegistryJoin(t *testing.T) {
	r := NewRegistry()
	c1, c2 := newConn(t), newConn(t)

	assert.True(t, r.Join("4001", c1))
	assert.False(t, r.Join("4001", c2), "second join with same address is a no-op")
	assert.Equal(t, 1, r.Count())

	conn, ok := r.Conn("4001")
	require.True(t, ok)
	assert.Equal(t, c1.ID, conn.ID, "original connection is kept")
}

// TestRegistryRemove verifies lookup and removal by connection identity.
func TestRegistryRemove(t *testing.T) {
	tests := []struct {
		name     string
		joined   []string
		remove   int // index into joined; -1 removes an unknown conn
		wantAddr string
		wantOK   bool
		wantLeft []string
	}{
		{
			name:     "remove middle member keeps order",
			joined:   []string{"4001", "4002", "4003"},
			remove:   1,
			wantAddr: "4002",
			wantOK:   true,
			wantLeft: []string{"4001", "4003"},
		},
		{
			name:     "remove only member",
			joined:   []string{"4001"},
			remove:   0,
			wantAddr: "4001",
			wantOK:   true,
			wantLeft: []string{},
		},
		{
			name:     "unknown connection",
			joined:   []string{"4001"},
			remove:   -1,
			wantOK:   false,
			wantLeft: []string{"4001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			conns := make([]*protocol.Conn, len(tt.joined))
			for i, addr := range tt.joined {
				conns[i] = newConn(t)
				require.True(t, r.Join(addr, conns[i]))
			}

			target := newConn(t)
			if tt.remove >= 0 {
				target = conns[tt.remove]
			}

			addr, ok := r.Remove(target)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantLeft, r.Addrs())
			if tt.wantOK {
				assert.False(t, r.Contains(tt.wantAddr))
			}
		})
	}
}

// TestRegistrySnapshot verifies snapshots are join-ordered copies without connection handles.
func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	for _, addr := range []string{"4003", "4001", "4002"} {
		r.Join(addr, newConn(t))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "4003", snap[0].Addr)
	assert.Equal(t, "4001", snap[1].Addr)
	assert.Equal(t, "4002", snap[2].Addr)
	for _, m := range snap {
		assert.Nil(t, m.Conn)
		assert.False(t, m.JoinedAt.IsZero())
	}

	snap[0].Addr = "changed"
	assert.True(t, r.Contains("4003"), "snapshot must not alias registry state")
}

// TestRegistryConcurrentJoin verifies that concurrent joins keep addresses unique.
func TestRegistryConcurrentJoin(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Join(fmt.Sprintf("%d", 4000+i%10), newConn(t)) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, 10, r.Count())
}
