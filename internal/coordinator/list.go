package coordinator

import (
	"fmt"

	"github.com/dreamware/replistore/internal/protocol"
)

// list answers LIST with the names of stored files. Files being stored or
// removed are left out.
func (c *Coordinator) list(client *protocol.Conn) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.members.Count() < c.cfg.ReplicationFactor {
		err := fmt.Errorf("list: %w", protocol.ErrNotEnoughNodes)
		c.metrics.request("list", err)
		return reply(client, protocol.Message{}, err)
	}
	c.metrics.request("list", nil)
	return reply(client, protocol.New(protocol.List, c.files.Names(StatusStored)...), nil)
}
