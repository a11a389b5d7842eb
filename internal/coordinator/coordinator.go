package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dreamware/replistore/internal/cluster"
	"github.com/dreamware/replistore/internal/protocol"
)

// Config holds the coordinator's startup parameters.
type Config struct {
	// Logger receives all coordinator logs. Defaults to zerolog.Nop().
	Logger *zerolog.Logger

	// Registerer receives the coordinator's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// ReplicationFactor is how many storage nodes hold each file.
	ReplicationFactor int

	// Timeout bounds how long a store or remove may wait for acknowledgments.
	Timeout time.Duration

	// RebalancePeriod is how often the rebalance hook runs. Zero disables it.
	RebalancePeriod time.Duration

	// WriteTimeout bounds each write to a peer. Defaults to Timeout.
	WriteTimeout time.Duration

	// ClientRate limits messages per second read from each client connection.
	// Zero means unlimited.
	ClientRate float64

	// ClientBurst is the burst allowed above ClientRate.
	ClientBurst int
}

func (c *Config) validate() error {
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication factor must be at least 1, got %d", c.ReplicationFactor)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.RebalancePeriod < 0 {
		return fmt.Errorf("rebalance period must not be negative, got %v", c.RebalancePeriod)
	}
	if c.ClientRate < 0 {
		return fmt.Errorf("client rate must not be negative, got %v", c.ClientRate)
	}
	return nil
}

// Coordinator brokers placement, acknowledgment aggregation and the
// client-facing protocol for a pool of storage nodes.
type Coordinator struct {
	log     zerolog.Logger
	metrics *Metrics

	// mu is the coordination lock. Every logical operation (place a file,
	// apply an ack, handle a failure, fire a deadline) holds it throughout,
	// so no operation observes another half done. No network I/O happens
	// while it is held.
	mu        sync.Mutex
	members   *cluster.Registry
	files     *Directory
	loads     map[uuid.UUID]*loadSession // by client connection
	deadlines *Deadlines
	rebalance *RebalanceLoop

	connMu sync.Mutex
	conns  map[uuid.UUID]*protocol.Conn

	wg  sync.WaitGroup
	cfg Config
}

// New creates a coordinator from cfg.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = cfg.Timeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := &Coordinator{
		cfg:       cfg,
		log:       logger,
		metrics:   NewMetrics(cfg.Registerer),
		members:   cluster.NewRegistry(),
		files:     NewDirectory(),
		loads:     make(map[uuid.UUID]*loadSession),
		deadlines: NewDeadlines(),
		conns:     make(map[uuid.UUID]*protocol.Conn),
	}
	c.rebalance = NewRebalanceLoop(cfg.RebalancePeriod, logger)
	c.rebalance.SetOnTick(c.logRebalanceReport)
	c.observe()
	return c, nil
}

// ReplicationFactor returns the configured replication factor.
func (c *Coordinator) ReplicationFactor() int {
	return c.cfg.ReplicationFactor
}

// Members returns the live storage nodes in join order.
func (c *Coordinator) Members() []cluster.Member {
	return c.members.Snapshot()
}

// Files returns a snapshot of every file record, sorted by name.
func (c *Coordinator) Files() []FileRecord {
	return c.files.Snapshot()
}

// Serve accepts connections on ln until ctx is cancelled or ln fails.
// On return every connection it accepted has been closed and every
// connection goroutine has finished.
func (c *Coordinator) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.rebalance.Start(ctx, c.rebalanceReport)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	c.log.Info().
		Str("addr", ln.Addr().String()).
		Int("replication", c.cfg.ReplicationFactor).
		Dur("timeout", c.cfg.Timeout).
		Msg("coordinator listening")

	var err error
	for {
		raw, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() == nil {
				err = fmt.Errorf("accept: %w", aerr)
			}
			break
		}
		conn := protocol.NewConn(raw)
		conn.SetWriteTimeout(c.cfg.WriteTimeout)
		c.track(conn)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.untrack(conn)
			c.handleConn(ctx, conn)
		}()
	}

	cancel()
	c.closeAll()
	c.rebalance.Stop()
	c.wg.Wait()
	c.deadlines.Stop()
	return err
}

func (c *Coordinator) track(conn *protocol.Conn) {
	c.connMu.Lock()
	c.conns[conn.ID] = conn
	c.connMu.Unlock()
}

func (c *Coordinator) untrack(conn *protocol.Conn) {
	c.connMu.Lock()
	delete(c.conns, conn.ID)
	c.connMu.Unlock()
	conn.Close()
}

func (c *Coordinator) closeAll() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
}

// handleConn decides the role of a connection from its first message.
// A JOIN turns it into a storage-node feed for the rest of its life;
// anything else makes it a client connection.
func (c *Coordinator) handleConn(ctx context.Context, conn *protocol.Conn) {
	logger := c.log.With().Str("conn", conn.ID.String()).Str("remote", conn.RemoteAddr()).Logger()

	var first *protocol.Message
	for first == nil {
		msg, err := conn.ReadMessage()
		if err != nil {
			if protocol.IsProtocolError(err) {
				logger.Warn().Err(err).Msg("ignoring malformed message")
				continue
			}
			return
		}
		first = &msg
	}

	if first.Command == protocol.Join {
		addr := first.Arg(0)
		if c.join(addr, conn) {
			c.serveNode(ctx, conn, addr)
			return
		}
		logger.Warn().Str("node", addr).Msg("duplicate join ignored")
		first = nil
	}
	c.serveClient(ctx, conn, first, logger)
}

// serveClient handles client requests in receipt order until the connection fails.
func (c *Coordinator) serveClient(ctx context.Context, conn *protocol.Conn, first *protocol.Message, logger zerolog.Logger) {
	defer c.clientGone(conn)

	limit := rate.Inf
	if c.cfg.ClientRate > 0 {
		limit = rate.Limit(c.cfg.ClientRate)
	}
	burst := c.cfg.ClientBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	if first != nil {
		c.flush(c.handleClient(conn, *first))
	}
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if protocol.IsProtocolError(err) {
				logger.Warn().Err(err).Msg("ignoring malformed message")
				continue
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Debug().Err(err).Msg("client connection closed")
			}
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		c.flush(c.handleClient(conn, msg))
	}
}

func (c *Coordinator) handleClient(conn *protocol.Conn, msg protocol.Message) outbox {
	switch msg.Command {
	case protocol.Store:
		size, _ := msg.Size(1)
		return c.store(conn, msg.Arg(0), size)
	case protocol.Load:
		return c.load(conn, msg.Arg(0))
	case protocol.Reload:
		return c.reload(conn, msg.Arg(0))
	case protocol.Remove:
		return c.remove(conn, msg.Arg(0))
	case protocol.List:
		return c.list(conn)
	default:
		c.log.Warn().Str("conn", conn.ID.String()).Str("command", msg.Command).
			Msg("ignoring unexpected message on client connection")
		return nil
	}
}

// serveNode reads a storage node's acknowledgments until its connection fails,
// then runs failure handling for it.
func (c *Coordinator) serveNode(ctx context.Context, conn *protocol.Conn, addr string) {
	logger := c.log.With().Str("node", addr).Logger()
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if protocol.IsProtocolError(err) {
				logger.Warn().Err(err).Msg("ignoring malformed message")
				continue
			}
			if ctx.Err() == nil {
				logger.Warn().Err(err).Msg("storage node connection lost")
			}
			c.flush(c.nodeFailed(conn))
			return
		}

		switch msg.Command {
		case protocol.StoreAck:
			c.flush(c.storeAck(addr, msg.Arg(0)))
		case protocol.RemoveAck:
			c.flush(c.removeAck(addr, msg.Arg(0)))
		case protocol.ErrorFileDoesNotExist:
			logger.Warn().Str("file", msg.Arg(0)).Msg("storage node does not hold file")
		case protocol.List:
			logger.Debug().Strs("files", msg.Args).Msg("storage node listing")
		default:
			logger.Warn().Str("command", msg.Command).Msg("ignoring unexpected message from storage node")
		}
	}
}

// join registers a storage node. It reports whether the node was new.
func (c *Coordinator) join(addr string, conn *protocol.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.members.Join(addr, conn) {
		return false
	}
	c.log.Info().Str("node", addr).Int("members", c.members.Count()).Msg("storage node joined")
	c.observe()
	return true
}

// clientGone discards per-connection state of a closed client.
func (c *Coordinator) clientGone(conn *protocol.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loads, conn.ID)
}

// observe refreshes gauges. Caller holds c.mu, except during construction.
func (c *Coordinator) observe() {
	c.metrics.observe(c.members.Count(), c.files.CountByStatus())
}

func (c *Coordinator) rebalanceReport() RebalanceReport {
	return RebalanceReport{
		At:              time.Now(),
		Members:         c.members.Snapshot(),
		UnderReplicated: c.files.UnderReplicated(c.cfg.ReplicationFactor),
	}
}

func (c *Coordinator) logRebalanceReport(r RebalanceReport) {
	if len(r.UnderReplicated) == 0 {
		return
	}
	c.log.Info().
		Int("members", len(r.Members)).
		Strs("files", r.UnderReplicated).
		Msg("files below replication factor; rebalancing is not implemented")
}

// envelope is a message to write once the coordination lock is released.
type envelope struct {
	conn *protocol.Conn
	msg  protocol.Message
}

type outbox []envelope

func (o *outbox) send(conn *protocol.Conn, msg protocol.Message) {
	if conn == nil {
		return
	}
	*o = append(*o, envelope{conn: conn, msg: msg})
}

// flush writes queued messages. Failed writes are logged only: a peer that
// cannot be reached either reconnects or is caught by failure handling.
func (c *Coordinator) flush(out outbox) {
	for _, e := range out {
		if err := e.conn.Send(e.msg); err != nil {
			c.log.Warn().Err(err).Str("conn", e.conn.ID.String()).Str("command", e.msg.Command).
				Msg("send failed")
		}
	}
}

// reply queues either msg or the error token for err.
func reply(conn *protocol.Conn, msg protocol.Message, err error) outbox {
	var out outbox
	if err != nil {
		if em, ok := protocol.ErrorMessage(err); ok {
			out.send(conn, em)
		}
		return out
	}
	out.send(conn, msg)
	return out
}
