package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replistore/internal/coordinator"
	"github.com/dreamware/replistore/internal/node"
	"github.com/dreamware/replistore/internal/storage"
)

// startCluster runs a coordinator with R=1 and one storage node on loopback.
func startCluster(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	coord, err := coordinator.New(coordinator.Config{ReplicationFactor: 1, Timeout: 2 * time.Second})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Serve(ctx, ln) }()

	nodeLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	n, err := node.New(node.Config{
		Store:       storage.NewMemoryStore(),
		Coordinator: ln.Addr().String(),
		Advertise:   strconv.Itoa(nodeLn.Addr().(*net.TCPAddr).Port),
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	nodeDone := make(chan error, 1)
	go func() { nodeDone <- n.Serve(ctx, nodeLn) }()

	require.Eventually(t, func() bool { return len(coord.Members()) == 1 }, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		<-coordDone
		<-nodeDone
	})
	return ln.Addr().String()
}

func execute(t *testing.T, coord string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--coordinator", coord, "--timeout", "3s"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// TestClientCommands verifies each subcommand against a live cluster.
func TestClientCommands(t *testing.T) {
	coord := startCluster(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("replicated notes"), 0o644))

	out, err := execute(t, coord, "store", "notes.txt", src)
	require.NoError(t, err)
	assert.Equal(t, "stored notes.txt (16 bytes)\n", out)

	out, err = execute(t, coord, "list")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt\n", out)

	out, err = execute(t, coord, "load", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "replicated notes", out)

	dst := filepath.Join(dir, "copy.txt")
	_, err = execute(t, coord, "load", "notes.txt", "--out", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "replicated notes", string(data))

	out, err = execute(t, coord, "remove", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "removed notes.txt\n", out)

	out, err = execute(t, coord, "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestClientCommandErrors verifies argument and remote errors surface as failures.
func TestClientCommandErrors(t *testing.T) {
	coord := startCluster(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file argument", []string{"store", "a.txt"}},
		{"unreadable source", []string{"store", "a.txt", filepath.Join(t.TempDir(), "absent")}},
		{"load unknown", []string{"load", "ghost.txt"}},
		{"remove unknown", []string{"remove", "ghost.txt"}},
		{"list takes no args", []string{"list", "extra"}},
		{"bad timeout", []string{"list", "--timeout", "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, coord, tt.args...)
			assert.Error(t, err)
		})
	}
}
