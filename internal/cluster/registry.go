package cluster

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// Member is a live storage node as seen by the coordinator.
type Member struct {
	// JoinedAt is when the node's JOIN was accepted.
	JoinedAt time.Time `json:"joined_at"`

	// Conn is the node's control connection. Nil in copies handed to
	// callers that only need addresses (see Snapshot).
	Conn *protocol.Conn `json:"-"`

	// Addr is the address token the node joined with. Clients dial it
	// directly to upload and download file contents.
	Addr string `json:"addr"`

	// ConnID identifies Conn; used to look a member up on disconnect.
	ConnID uuid.UUID `json:"conn_id"`
}

// Registry is the membership table of live storage nodes.
// Thread-safe: all methods may be called concurrently.
type Registry struct {
	mu      sync.RWMutex
	members []Member // join order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Join registers a storage node reachable at addr over conn.
// It reports false, and changes nothing, if addr is already a member.
func (r *Registry) Join(addr string, conn *protocol.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.IndexFunc(r.members, func(m Member) bool { return m.Addr == addr }) >= 0 {
		return false
	}
	r.members = append(r.members, Member{
		Addr:     addr,
		Conn:     conn,
		ConnID:   conn.ID,
		JoinedAt: time.Now(),
	})
	return true
}

// Remove drops the member whose control connection is conn and returns its address.
// It reports false if no member uses that connection.
func (r *Registry) Remove(conn *protocol.Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.members, func(m Member) bool { return m.ConnID == conn.ID })
	if idx < 0 {
		return "", false
	}
	addr := r.members[idx].Addr
	r.members = slices.Delete(r.members, idx, idx+1)
	return addr, true
}

// Count returns the number of live members.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Contains reports whether addr is a live member.
func (r *Registry) Contains(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(r.members, func(m Member) bool { return m.Addr == addr })
}

// Conn returns the control connection of the member at addr.
func (r *Registry) Conn(addr string) (*protocol.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := slices.IndexFunc(r.members, func(m Member) bool { return m.Addr == addr })
	if idx < 0 {
		return nil, false
	}
	return r.members[idx].Conn, true
}

// Snapshot returns the members in join order.
// The copies carry no connection handle.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, len(r.members))
	for i, m := range r.members {
		m.Conn = nil
		out[i] = m
	}
	return out
}

// Addrs returns member addresses in join order.
func (r *Registry) Addrs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.members))
	for i, m := range r.members {
		out[i] = m.Addr
	}
	return out
}
