package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dreamware/replistore/internal/protocol"
)

// uploadAll sends data to every replica concurrently.
func (c *Client) uploadAll(ctx context.Context, replicas []string, name string, data []byte) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, addr := range replicas {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if err := c.upload(ctx, addr, name, data); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				mu.Unlock()
			}
		}(addr)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// upload runs STORE against one storage node: wait for ACK, then send the bytes.
func (c *Client) upload(ctx context.Context, addr, name string, data []byte) error {
	conn, err := c.dialNode(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send(protocol.New(protocol.Store, name, strconv.Itoa(len(data)))); err != nil {
		return err
	}
	if err := conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	ack, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if ack.Command != protocol.Ack {
		return fmt.Errorf("%w %q", ErrUnexpectedReply, ack)
	}
	_, err = conn.Write(data)
	return err
}

// download reads exactly size bytes of name from one storage node.
func (c *Client) download(ctx context.Context, addr, name string, size int64) ([]byte, error) {
	conn, err := c.dialNode(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(protocol.New(protocol.LoadData, name)); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return nil, err
	}
	return conn.ReadFull(size)
}

func (c *Client) dialNode(ctx context.Context, addr string) (*protocol.Conn, error) {
	dctx, cancel := context.WithDeadline(ctx, c.deadline(ctx))
	defer cancel()

	conn, err := protocol.Dial(dctx, c.resolve(addr))
	if err != nil {
		return nil, err
	}
	conn.SetWriteTimeout(c.timeout)
	return conn, nil
}
