package coordinator

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// loadSession is a client's progress through the replicas of one file.
// candidates is its own copy; failed replicas are skipped without touching
// the file record.
type loadSession struct {
	name       string
	candidates []string
	size       int64
}

// load answers LOAD_FROM with the first live replica of a stored file and
// keeps the rest for RELOAD.
func (c *Coordinator) load(client *protocol.Conn, name string) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, size, err := c.startLoad(client, name)
	c.metrics.request("load", err)
	if err != nil {
		c.log.Info().Err(err).Str("file", name).Msg("load rejected")
		return reply(client, protocol.Message{}, err)
	}
	c.log.Debug().Str("file", name).Str("node", addr).Msg("load from replica")
	return reply(client, loadFrom(addr, size), nil)
}

// startLoad creates the session for a load. Caller holds c.mu.
func (c *Coordinator) startLoad(client *protocol.Conn, name string) (string, int64, error) {
	if c.members.Count() < c.cfg.ReplicationFactor {
		return "", 0, fmt.Errorf("load %s: %w", name, protocol.ErrNotEnoughNodes)
	}
	rec, ok := c.files.Get(name)
	if !ok || rec.Status != StatusStored {
		return "", 0, fmt.Errorf("load %s: %w", name, protocol.ErrFileDoesNotExist)
	}

	candidates := slices.DeleteFunc(slices.Clone(rec.Replicas), func(addr string) bool {
		return !c.members.Contains(addr)
	})
	if len(candidates) == 0 {
		delete(c.loads, client.ID)
		return "", 0, fmt.Errorf("load %s: %w", name, protocol.ErrLoadUnavailable)
	}

	c.loads[client.ID] = &loadSession{
		name:       name,
		size:       rec.Size,
		candidates: candidates[1:],
	}
	return candidates[0], rec.Size, nil
}

// reload answers with the next untried live replica of the client's current
// load, or ERROR_LOAD once none remain. Without a matching session nothing
// is sent.
func (c *Coordinator) reload(client *protocol.Conn, name string) outbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.loads[client.ID]
	if !ok || s.name != name {
		c.log.Warn().Str("conn", client.ID.String()).Str("file", name).Msg("reload without a load in progress")
		return nil
	}

	s.candidates = slices.DeleteFunc(s.candidates, func(addr string) bool {
		return !c.members.Contains(addr)
	})
	if len(s.candidates) == 0 {
		delete(c.loads, client.ID)
		err := fmt.Errorf("reload %s: %w", name, protocol.ErrLoadUnavailable)
		c.metrics.request("reload", err)
		c.log.Info().Str("file", name).Msg("no replica left to load from")
		return reply(client, protocol.Message{}, err)
	}

	next := s.candidates[0]
	s.candidates = s.candidates[1:]
	c.metrics.request("reload", nil)
	c.log.Debug().Str("file", name).Str("node", next).Msg("reload from replica")
	return reply(client, loadFrom(next, s.size), nil)
}

func loadFrom(addr string, size int64) protocol.Message {
	return protocol.New(protocol.LoadFrom, addr, strconv.FormatInt(size, 10))
}
