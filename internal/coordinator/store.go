package coordinator

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// store places a new file and answers STORE_TO with the chosen replicas.
//
// The record starts in StatusStoring and a deadline is armed; the file is
// only acknowledged to the client once every replica has sent STORE_ACK.
func (c *Coordinator) store(client *protocol.Conn, name string, size int64) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	replicas, err := c.place(name, size, client)
	c.metrics.request("store", err)
	if err != nil {
		c.log.Info().Err(err).Str("file", name).Msg("store rejected")
		return reply(client, protocol.Message{}, err)
	}

	c.log.Info().Str("file", name).Int64("size", size).Strs("replicas", replicas).Msg("store placed")
	return reply(client, protocol.New(protocol.StoreTo, replicas...), nil)
}

// place validates a store and creates its record. Caller holds c.mu.
func (c *Coordinator) place(name string, size int64, client *protocol.Conn) ([]string, error) {
	if n := c.members.Count(); n < c.cfg.ReplicationFactor {
		return nil, fmt.Errorf("store %s: %w", name, protocol.ErrNotEnoughNodes)
	}
	if _, exists := c.files.Get(name); exists {
		return nil, fmt.Errorf("store %s: %w", name, protocol.ErrFileAlreadyExists)
	}

	replicas, err := SelectReplicas(c.members.Addrs(), c.files.ReplicaCounts(), c.cfg.ReplicationFactor)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}

	op := uuid.New()
	err = c.files.Insert(FileRecord{
		Name:     name,
		Size:     size,
		Replicas: replicas,
		Status:   StatusStoring,
		Owner:    client,
		OpID:     op,
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}

	c.deadlines.Schedule(storeDeadline(name), c.cfg.Timeout, func() {
		c.storeExpired(name, op)
	})
	c.observe()
	return replicas, nil
}

// storeAck applies a STORE_ACK from the storage node at addr.
//
// Acks are counted once per replica and only from nodes the file was placed
// on. The ack that completes the set marks the file stored and queues the
// single STORE_COMPLETE for the client.
func (c *Coordinator) storeAck(addr, name string) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out outbox
	found := c.files.Update(name, func(rec *FileRecord) bool {
		logger := c.log.With().Str("file", name).Str("node", addr).Logger()

		switch {
		case rec.Status != StatusStoring:
			logger.Debug().Stringer("status", rec.Status).Msg("store ack for file not being stored")
			return false
		case !rec.HasReplica(addr):
			logger.Warn().Msg("store ack from node that is not a replica")
			return false
		case slices.Contains(rec.Acks, addr):
			logger.Debug().Msg("duplicate store ack")
			return false
		}

		rec.Acks = append(rec.Acks, addr)
		logger.Debug().Int("acks", rec.AckCount()).Int("want", c.cfg.ReplicationFactor).Msg("store ack")
		if rec.AckCount() < c.cfg.ReplicationFactor {
			return false
		}

		rec.Status = StatusStored
		rec.Acks = nil
		out.send(rec.Owner, protocol.New(protocol.StoreComplete))
		rec.Owner = nil
		c.deadlines.Cancel(storeDeadline(name))
		logger.Info().Strs("replicas", rec.Replicas).Msg("store complete")
		return false
	})
	if !found {
		c.log.Debug().Str("file", name).Str("node", addr).Msg("store ack for unknown file")
	}
	c.observe()
	return out
}

// storeExpired runs when a store's deadline fires.
//
// If the operation op is still storing without a full set of acks, the
// record is purged so the name can be stored again. The client is not told;
// it observes the missing STORE_COMPLETE through its own timeout.
func (c *Coordinator) storeExpired(name string, op uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files.Update(name, func(rec *FileRecord) bool {
		if rec.OpID != op || rec.Status != StatusStoring {
			return false
		}
		if rec.AckCount() >= c.cfg.ReplicationFactor {
			rec.Status = StatusStored
			rec.Acks = nil
			rec.Owner = nil
			return false
		}
		c.log.Warn().
			Str("file", name).
			Int("acks", rec.AckCount()).
			Int("want", c.cfg.ReplicationFactor).
			Msg("store timed out, record purged")
		c.metrics.timeout("store")
		return true
	})
	c.observe()
}
