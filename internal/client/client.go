package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/replistore/internal/protocol"
)

var (
	// ErrUnexpectedReply is returned when the coordinator answers out of protocol.
	ErrUnexpectedReply = errors.New("unexpected reply")

	// ErrClosed is returned by every request once a wait for the
	// coordinator has timed out and the connection was closed.
	ErrClosed = errors.New("client connection closed after timeout")
)

// DefaultTimeout bounds each wait when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	// Logger receives client logs. Defaults to zerolog.Nop().
	Logger *zerolog.Logger

	// Timeout bounds every wait for a reply and every transfer to or from a
	// storage node. It should exceed the coordinator's own timeout, or a
	// slow store is reported as ErrPartialFailure before the coordinator
	// decides.
	Timeout time.Duration
}

// Client is a connection to the coordinator. Requests are serialized;
// a Client may be shared between goroutines.
type Client struct {
	log     zerolog.Logger
	conn    *protocol.Conn
	host    string // coordinator host, for bare-port node addresses
	timeout time.Duration

	mu  sync.Mutex
	err error // set once the connection is abandoned
}

// Dial connects to the coordinator at addr (host:port).
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("coordinator address %q: %w", addr, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	conn, err := protocol.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	conn.SetWriteTimeout(opts.Timeout)
	return &Client{
		log:     logger,
		conn:    conn,
		host:    host,
		timeout: opts.Timeout,
	}, nil
}

// Close closes the coordinator connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Store uploads data under name to every replica the coordinator chooses
// and waits for STORE_COMPLETE. If the coordinator does not confirm within
// the timeout the result is ErrPartialFailure; the name may then be free or
// taken depending on how far the store got.
func (c *Client) Store(ctx context.Context, name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.request(ctx, protocol.New(protocol.Store, name, strconv.Itoa(len(data))))
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	if reply.Command != protocol.StoreTo {
		return fmt.Errorf("store %s: %w %q", name, ErrUnexpectedReply, reply)
	}

	if err := c.uploadAll(ctx, reply.Args, name, data); err != nil {
		c.log.Warn().Err(err).Str("file", name).Msg("upload to some replicas failed")
	}

	done, err := c.await(ctx)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("store %s: %w", name, protocol.ErrPartialFailure)
		}
		return fmt.Errorf("store %s: %w", name, err)
	}
	if done.Command != protocol.StoreComplete {
		return fmt.Errorf("store %s: %w %q", name, ErrUnexpectedReply, done)
	}
	c.log.Debug().Str("file", name).Strs("replicas", reply.Args).Msg("store complete")
	return nil
}

// Load fetches name from the first replica that serves it, asking the
// coordinator for another replica with RELOAD after each failure. It
// returns protocol.ErrLoadUnavailable once no replica is left.
func (c *Client) Load(ctx context.Context, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.request(ctx, protocol.New(protocol.Load, name))
	for {
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if reply.Command != protocol.LoadFrom {
			return nil, fmt.Errorf("load %s: %w %q", name, ErrUnexpectedReply, reply)
		}

		addr := reply.Arg(0)
		size, serr := reply.Size(1)
		if serr == nil {
			data, derr := c.download(ctx, addr, name, size)
			if derr == nil {
				return data, nil
			}
			serr = derr
		}
		c.log.Info().Err(serr).Str("file", name).Str("node", addr).Msg("load from replica failed, trying another")
		reply, err = c.request(ctx, protocol.New(protocol.Reload, name))
	}
}

// Remove deletes name from every replica and waits for REMOVE_COMPLETE.
// A timeout is reported as ErrPartialFailure.
func (c *Client) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.request(ctx, protocol.New(protocol.Remove, name))
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("remove %s: %w", name, protocol.ErrPartialFailure)
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	if reply.Command != protocol.RemoveComplete {
		return fmt.Errorf("remove %s: %w %q", name, ErrUnexpectedReply, reply)
	}
	return nil
}

// List returns the names of stored files.
func (c *Client) List(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.request(ctx, protocol.New(protocol.List))
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	if reply.Command != protocol.List {
		return nil, fmt.Errorf("list: %w %q", ErrUnexpectedReply, reply)
	}
	return reply.Args, nil
}

// request sends msg and waits for the reply. Error tokens come back as
// their protocol errors.
func (c *Client) request(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if c.err != nil {
		return protocol.Message{}, c.err
	}
	if err := c.conn.Send(msg); err != nil {
		return protocol.Message{}, err
	}
	return c.await(ctx)
}

// await reads the next coordinator message within the timeout. On timeout
// the connection is closed and the client refuses further requests.
func (c *Client) await(ctx context.Context) (protocol.Message, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return protocol.Message{}, err
	}
	msg, err := c.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			c.err = ErrClosed
			c.conn.Close()
			c.log.Warn().Err(err).Msg("coordinator did not answer in time, connection closed")
		}
		return protocol.Message{}, err
	}
	if err := protocol.ErrorFromMessage(msg); err != nil {
		return protocol.Message{}, err
	}
	return msg, nil
}

// deadline is the earlier of the context deadline and now plus the timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// resolve turns a node address token into a dialable address. Nodes that
// advertise a bare port are assumed to share the coordinator's host.
func (c *Client) resolve(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(c.host, addr)
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
