package coordinator

import (
	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// nodeFailed reconciles state after a storage node's connection is lost.
//
// The node leaves the membership registry and every replica set. A record
// still being stored that falls below the replication factor is purged,
// since its store can no longer complete; any record left with no replicas
// is purged regardless of status. A stored file that merely lost some
// replicas stays listed.
//
// A removal in flight keeps the acks it already has. If the failed node had
// not acknowledged yet, one fewer ack is expected, and the removal completes
// here when the surviving replicas have all answered.
func (c *Coordinator) nodeFailed(conn *protocol.Conn) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, ok := c.members.Remove(conn)
	if !ok {
		return nil
	}
	logger := c.log.With().Str("node", addr).Logger()

	var out outbox
	purged := 0
	c.files.Each(func(rec *FileRecord) bool {
		idx := slices.Index(rec.Replicas, addr)
		if idx < 0 {
			return false
		}
		rec.Replicas = slices.Delete(rec.Replicas, idx, idx+1)

		if rec.Status == StatusRemoving {
			if !slices.Contains(rec.Acks, addr) {
				rec.ExpectedAcks--
			}
			if removeDone(rec) {
				c.finishRemove(rec, &out)
				return true
			}
		} else {
			rec.Acks = slices.DeleteFunc(rec.Acks, func(a string) bool { return a == addr })
		}

		var reason string
		switch {
		case rec.Status == StatusStoring && len(rec.Replicas) < c.cfg.ReplicationFactor:
			reason = "incomplete_store"
			c.deadlines.Cancel(storeDeadline(rec.Name))
		case len(rec.Replicas) == 0:
			reason = "no_replicas"
			c.deadlines.Cancel(storeDeadline(rec.Name))
			c.deadlines.Cancel(removeDeadline(rec.Name))
		default:
			logger.Info().Str("file", rec.Name).Int("replicas", len(rec.Replicas)).Msg("replica lost")
			return false
		}

		logger.Warn().Str("file", rec.Name).Stringer("status", rec.Status).Str("reason", reason).
			Msg("record purged after storage node failure")
		c.metrics.purge(reason)
		purged++
		return true
	})

	logger.Info().Int("members", c.members.Count()).Int("purged", purged).Msg("storage node removed")
	c.observe()
	return out
}
