// Package client is the Go client for a replistore cluster.
//
// A Client holds one connection to the coordinator and serializes requests
// on it. File contents never pass through the coordinator: Store uploads to
// every storage node named in STORE_TO in parallel, and Load downloads from
// the node named in LOAD_FROM, asking for another replica with RELOAD when a
// download fails.
//
// Stores and removes that the coordinator does not confirm within
// Options.Timeout fail with protocol.ErrPartialFailure. The connection is
// then closed and later requests return ErrClosed; dial again to continue.
//
// Usage:
//
//	c, err := client.Dial(ctx, "127.0.0.1:4000", client.Options{})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.Store(ctx, "report.pdf", data); err != nil {
//		return err
//	}
//	names, err := c.List(ctx)
package client
