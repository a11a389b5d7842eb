package client

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replistore/internal/coordinator"
	"github.com/dreamware/replistore/internal/node"
	"github.com/dreamware/replistore/internal/protocol"
	"github.com/dreamware/replistore/internal/storage"
)

// cluster is an in-process coordinator with storage nodes on loopback.
type cluster struct {
	coord  *coordinator.Coordinator
	addr   string
	stores map[string]*storage.MemoryStore // by advertised port
	ports  []string                        // join order
}

func startCluster(t *testing.T, replication, nodes int, timeout time.Duration) *cluster {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	coord, err := coordinator.New(coordinator.Config{ReplicationFactor: replication, Timeout: timeout})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Serve(ctx, ln) }()

	c := &cluster{coord: coord, addr: ln.Addr().String(), stores: make(map[string]*storage.MemoryStore)}
	nodeDone := make(chan error, nodes)
	for i := 0; i < nodes; i++ {
		nodeLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := strconv.Itoa(nodeLn.Addr().(*net.TCPAddr).Port)

		store := storage.NewMemoryStore()
		n, err := node.New(node.Config{
			Store:       store,
			Coordinator: c.addr,
			Advertise:   port,
			Timeout:     time.Second,
		})
		require.NoError(t, err)
		go func() { nodeDone <- n.Serve(ctx, nodeLn) }()

		// join order decides placement, so wait for each node in turn
		want := i + 1
		require.Eventually(t, func() bool { return len(coord.Members()) == want }, 2*time.Second, 5*time.Millisecond)
		c.stores[port] = store
		c.ports = append(c.ports, port)
	}

	t.Cleanup(func() {
		cancel()
		<-coordDone
		for i := 0; i < nodes; i++ {
			<-nodeDone
		}
	})
	return c
}

func dialCluster(t *testing.T, c *cluster, timeout time.Duration) *Client {
	t.Helper()
	cl, err := Dial(context.Background(), c.addr, Options{Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })
	return cl
}

// TestClientLifecycle verifies store, list, load and remove end to end.
func TestClientLifecycle(t *testing.T) {
	c := startCluster(t, 2, 3, 2*time.Second)
	cl := dialCluster(t, c, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, cl.Store(ctx, "a.txt", []byte("hello world")))
	for _, port := range c.ports[:2] {
		names, err := c.stores[port].List()
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, names, "replica %s holds the file", port)
	}

	names, err := cl.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)

	data, err := cl.Load(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	err = cl.Store(ctx, "a.txt", []byte("again"))
	assert.ErrorIs(t, err, protocol.ErrFileAlreadyExists)

	require.NoError(t, cl.Remove(ctx, "a.txt"))
	names, err = cl.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	for _, store := range c.stores {
		held, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, held)
	}

	_, err = cl.Load(ctx, "a.txt")
	assert.ErrorIs(t, err, protocol.ErrFileDoesNotExist)
	assert.ErrorIs(t, cl.Remove(ctx, "a.txt"), protocol.ErrFileDoesNotExist)
}

// TestClientLoadFallback verifies the client moves to the next replica when
// one cannot serve the file, and reports ErrLoadUnavailable when none can.
func TestClientLoadFallback(t *testing.T) {
	c := startCluster(t, 2, 2, 2*time.Second)
	cl := dialCluster(t, c, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, cl.Store(ctx, "a.txt", []byte("payload")))

	require.NoError(t, c.stores[c.ports[0]].Delete("a.txt"))
	data, err := cl.Load(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, c.stores[c.ports[1]].Delete("a.txt"))
	_, err = cl.Load(ctx, "a.txt")
	assert.ErrorIs(t, err, protocol.ErrLoadUnavailable)
}

// TestClientNotEnoughNodes verifies the error surfaces for every operation.
func TestClientNotEnoughNodes(t *testing.T) {
	c := startCluster(t, 3, 2, time.Second)
	cl := dialCluster(t, c, time.Second)
	ctx := context.Background()

	assert.ErrorIs(t, cl.Store(ctx, "a.txt", []byte("x")), protocol.ErrNotEnoughNodes)
	_, err := cl.Load(ctx, "a.txt")
	assert.ErrorIs(t, err, protocol.ErrNotEnoughNodes)
	assert.ErrorIs(t, cl.Remove(ctx, "a.txt"), protocol.ErrNotEnoughNodes)
	_, err = cl.List(ctx)
	assert.ErrorIs(t, err, protocol.ErrNotEnoughNodes)
}

// TestClientPartialStore verifies a store that cannot reach every replica
// reports ErrPartialFailure and leaves the name free once the coordinator
// gives up.
func TestClientPartialStore(t *testing.T) {
	c := startCluster(t, 2, 1, 100*time.Millisecond)

	// a node that joins but accepts no uploads
	ghost, err := protocol.Dial(context.Background(), c.addr)
	require.NoError(t, err)
	t.Cleanup(func() { ghost.Close() })
	require.NoError(t, ghost.Send(protocol.New(protocol.Join, unusedPort(t))))
	require.Eventually(t, func() bool { return len(c.coord.Members()) == 2 }, time.Second, 5*time.Millisecond)

	cl := dialCluster(t, c, 500*time.Millisecond)
	ctx := context.Background()

	err = cl.Store(ctx, "a.txt", []byte("x"))
	assert.ErrorIs(t, err, protocol.ErrPartialFailure)

	_, err = cl.List(ctx)
	assert.ErrorIs(t, err, ErrClosed, "client is unusable after a timed out wait")

	fresh := dialCluster(t, c, time.Second)
	names, err := fresh.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Empty(t, c.coord.Files(), "timed out store is purged")
}

// TestClientLateReply verifies a reply arriving after the client gave up is
// never taken as the answer to a later request.
func TestClientLateReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	served := make(chan struct{})
	go func() {
		defer close(served)
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		conn := protocol.NewConn(raw)
		defer conn.Close()
		if _, err := conn.ReadMessage(); err != nil {
			return
		}
		time.Sleep(150 * time.Millisecond)
		_ = conn.Send(protocol.New(protocol.RemoveComplete))
		_, _ = conn.ReadMessage()
	}()

	cl, err := Dial(context.Background(), ln.Addr().String(), Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer cl.Close()

	err = cl.Remove(context.Background(), "a.txt")
	assert.ErrorIs(t, err, protocol.ErrPartialFailure)

	time.Sleep(200 * time.Millisecond)
	_, err = cl.List(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotErrorIs(t, err, ErrUnexpectedReply)
	<-served
}

// TestResolve verifies bare ports resolve against the coordinator host.
func TestResolve(t *testing.T) {
	cl := &Client{host: "10.0.0.5"}

	tests := []struct {
		in, want string
	}{
		{"4001", "10.0.0.5:4001"},
		{"node-1:4001", "node-1:4001"},
		{"[::1]:4001", "[::1]:4001"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cl.resolve(tt.in))
		})
	}
}

// TestDialRejectsAddress verifies the coordinator address must carry a port.
func TestDialRejectsAddress(t *testing.T) {
	_, err := Dial(context.Background(), "no-port", Options{})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no-port"))
}

// unusedPort returns a loopback port nothing listens on.
func unusedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()
	return port
}
