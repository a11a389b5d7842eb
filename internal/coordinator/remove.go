package coordinator

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// remove starts removal of a stored file: the record moves to
// StatusRemoving, REMOVE is queued for every replica and a deadline is armed.
// REMOVE_COMPLETE follows once every replica has acknowledged.
func (c *Coordinator) remove(client *protocol.Conn, name string) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.startRemove(client, name)
	c.metrics.request("remove", err)
	if err != nil {
		c.log.Info().Err(err).Str("file", name).Msg("remove rejected")
		return reply(client, protocol.Message{}, err)
	}
	return out
}

// startRemove validates a remove and updates the record. Caller holds c.mu.
func (c *Coordinator) startRemove(client *protocol.Conn, name string) (outbox, error) {
	if c.members.Count() < c.cfg.ReplicationFactor {
		return nil, fmt.Errorf("remove %s: %w", name, protocol.ErrNotEnoughNodes)
	}

	var (
		out      outbox
		replicas []string
		op       = uuid.New()
		started  bool
	)
	c.files.Update(name, func(rec *FileRecord) bool {
		// a file still being stored or already being removed is not
		// visible to clients yet
		if rec.Status != StatusStored {
			return false
		}
		rec.Status = StatusRemoving
		rec.Acks = nil
		rec.ExpectedAcks = len(rec.Replicas)
		rec.Owner = client
		rec.OpID = op
		replicas = slices.Clone(rec.Replicas)
		started = true
		return false
	})
	if !started {
		return nil, fmt.Errorf("remove %s: %w", name, protocol.ErrFileDoesNotExist)
	}

	for _, addr := range replicas {
		conn, ok := c.members.Conn(addr)
		if !ok {
			c.log.Warn().Str("file", name).Str("node", addr).Msg("replica not connected, remove will time out")
			continue
		}
		out.send(conn, protocol.New(protocol.Remove, name))
	}

	c.deadlines.Schedule(removeDeadline(name), c.cfg.Timeout, func() {
		c.removeExpired(name, op)
	})
	c.log.Info().Str("file", name).Strs("replicas", replicas).Msg("remove started")
	c.observe()
	return out, nil
}

// removeAck applies a REMOVE_ACK from the storage node at addr. The ack that
// brings the count to the number of replicas still expected to answer
// deletes the record and queues the single REMOVE_COMPLETE.
func (c *Coordinator) removeAck(addr, name string) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out outbox
	found := c.files.Update(name, func(rec *FileRecord) bool {
		logger := c.log.With().Str("file", name).Str("node", addr).Logger()

		switch {
		case rec.Status != StatusRemoving:
			logger.Debug().Stringer("status", rec.Status).Msg("remove ack for file not being removed")
			return false
		case !rec.HasReplica(addr):
			logger.Warn().Msg("remove ack from node that is not a replica")
			return false
		case slices.Contains(rec.Acks, addr):
			logger.Debug().Msg("duplicate remove ack")
			return false
		}

		rec.Acks = append(rec.Acks, addr)
		if !removeDone(rec) {
			logger.Debug().Int("acks", rec.AckCount()).Int("want", rec.ExpectedAcks).Msg("remove ack")
			return false
		}
		c.finishRemove(rec, &out)
		return true
	})
	if !found {
		c.log.Debug().Str("file", name).Str("node", addr).Msg("remove ack for unknown file")
	}
	c.observe()
	return out
}

// removeDone reports whether every replica still expected to answer has
// acknowledged the removal.
func removeDone(rec *FileRecord) bool {
	return rec.AckCount() > 0 && rec.AckCount() >= rec.ExpectedAcks
}

// finishRemove queues the single REMOVE_COMPLETE for a removal whose acks
// are all in. The caller deletes the record. Caller holds c.mu.
func (c *Coordinator) finishRemove(rec *FileRecord, out *outbox) {
	out.send(rec.Owner, protocol.New(protocol.RemoveComplete))
	c.deadlines.Cancel(removeDeadline(rec.Name))
	c.log.Info().Str("file", rec.Name).Int("acks", rec.AckCount()).Msg("remove complete")
}

// removeExpired runs when a remove's deadline fires. An unfinished removal
// is abandoned: the record is purged and the client is not told. Replicas
// that never acknowledged may still hold the file on disk.
func (c *Coordinator) removeExpired(name string, op uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files.Update(name, func(rec *FileRecord) bool {
		if rec.OpID != op || rec.Status != StatusRemoving {
			return false
		}
		c.log.Warn().
			Str("file", name).
			Int("acks", rec.AckCount()).
			Int("want", rec.ExpectedAcks).
			Msg("remove timed out, record purged")
		c.metrics.timeout("remove")
		return true
	})
	c.observe()
}
