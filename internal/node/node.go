package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dreamware/replistore/internal/protocol"
	"github.com/dreamware/replistore/internal/storage"
)

// ErrCoordinatorLost is returned by Serve when the coordinator connection ends.
var ErrCoordinatorLost = errors.New("coordinator connection lost")

// Config holds a storage node's startup parameters.
type Config struct {
	// Logger receives all node logs. Defaults to zerolog.Nop().
	Logger *zerolog.Logger

	// Store holds the node's files.
	Store storage.Store

	// Coordinator is the host:port of the coordinator.
	Coordinator string

	// Advertise is the address token sent in JOIN. Clients dial it to reach
	// this node; a bare port is resolved by clients against the
	// coordinator's host.
	Advertise string

	// Timeout bounds payload transfers and each dial attempt.
	Timeout time.Duration

	// JoinAttempts caps how often joining is tried. Zero retries until the
	// context is cancelled.
	JoinAttempts int

	// JoinInterval is the pause between join attempts.
	JoinInterval time.Duration
}

func (c *Config) validate() error {
	switch {
	case c.Store == nil:
		return errors.New("store is required")
	case c.Coordinator == "":
		return errors.New("coordinator address is required")
	case c.Advertise == "":
		return errors.New("advertise address is required")
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	case c.JoinAttempts < 0:
		return fmt.Errorf("join attempts must not be negative, got %d", c.JoinAttempts)
	}
	return nil
}

// OperationStats tracks operation counts
type OperationStats struct {
	Stores  uint64 `json:"stores"`  // Files received and persisted
	Loads   uint64 `json:"loads"`   // Files streamed to clients
	Removes uint64 `json:"removes"` // Files deleted on request of the coordinator
}

// Stats combines operation counts and storage usage.
type Stats struct {
	Ops     OperationStats     `json:"operations"`
	Storage storage.StoreStats `json:"storage"`
}

// Node is a running storage node.
type Node struct {
	log   zerolog.Logger
	store storage.Store
	ops   OperationStats // updated atomically

	coord *protocol.Conn

	connMu sync.Mutex
	conns  map[uuid.UUID]*protocol.Conn

	wg  sync.WaitGroup
	cfg Config
}

// New creates a node from cfg. It does not connect to anything yet.
func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.JoinInterval <= 0 {
		cfg.JoinInterval = 400 * time.Millisecond
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Node{
		cfg:   cfg,
		log:   logger.With().Str("node", cfg.Advertise).Logger(),
		store: cfg.Store,
		conns: make(map[uuid.UUID]*protocol.Conn),
	}, nil
}

// Stats returns current operation counts and storage usage.
func (n *Node) Stats() (Stats, error) {
	st, err := n.store.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Ops: OperationStats{
			Stores:  atomic.LoadUint64(&n.ops.Stores),
			Loads:   atomic.LoadUint64(&n.ops.Loads),
			Removes: atomic.LoadUint64(&n.ops.Removes),
		},
		Storage: st,
	}, nil
}

// Serve joins the coordinator, then serves clients on ln and the
// coordinator's requests until ctx is cancelled or the coordinator
// connection ends. The latter is reported as ErrCoordinatorLost.
func (n *Node) Serve(ctx context.Context, ln net.Listener) error {
	coord, err := n.join(ctx)
	if err != nil {
		ln.Close()
		return err
	}
	n.coord = coord

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
		coord.Close()
	}()

	feedErr := make(chan error, 1)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		feedErr <- n.serveCoordinator(coord)
		cancel()
	}()

	n.log.Info().Str("addr", ln.Addr().String()).Msg("storage node listening")

	var acceptErr error
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		conn := protocol.NewConn(raw)
		conn.SetWriteTimeout(n.cfg.Timeout)
		n.track(conn)

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer n.untrack(conn)
			n.handleClient(conn)
		}()
	}

	cancel()
	n.closeAll()
	n.wg.Wait()

	select {
	case err := <-feedErr:
		if err != nil && parent.Err() == nil {
			return fmt.Errorf("%w: %v", ErrCoordinatorLost, err)
		}
	default:
	}
	return acceptErr
}

// join dials the coordinator and sends JOIN, retrying at JoinInterval.
func (n *Node) join(ctx context.Context) (*protocol.Conn, error) {
	limiter := rate.NewLimiter(rate.Every(n.cfg.JoinInterval), 1)

	var lastErr error
	for attempt := 1; n.cfg.JoinAttempts == 0 || attempt <= n.cfg.JoinAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return nil, fmt.Errorf("join %s: %w", n.cfg.Coordinator, lastErr)
		}

		conn, err := n.tryJoin(ctx)
		if err == nil {
			n.log.Info().Str("coordinator", n.cfg.Coordinator).Int("attempt", attempt).Msg("joined coordinator")
			return conn, nil
		}
		lastErr = err
		n.log.Warn().Err(err).Int("attempt", attempt).Msg("join failed, retrying")
	}
	return nil, fmt.Errorf("join %s after %d attempts: %w", n.cfg.Coordinator, n.cfg.JoinAttempts, lastErr)
}

func (n *Node) tryJoin(ctx context.Context) (*protocol.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	conn, err := protocol.Dial(dctx, n.cfg.Coordinator)
	if err != nil {
		return nil, err
	}
	conn.SetWriteTimeout(n.cfg.Timeout)
	if err := conn.Send(protocol.New(protocol.Join, n.cfg.Advertise)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (n *Node) track(conn *protocol.Conn) {
	n.connMu.Lock()
	n.conns[conn.ID] = conn
	n.connMu.Unlock()
}

func (n *Node) untrack(conn *protocol.Conn) {
	n.connMu.Lock()
	delete(n.conns, conn.ID)
	n.connMu.Unlock()
	conn.Close()
}

func (n *Node) closeAll() {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	for _, conn := range n.conns {
		conn.Close()
	}
}
