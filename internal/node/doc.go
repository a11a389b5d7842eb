// Package node implements the replistore storage node.
//
// A node keeps files in a storage.Store and talks on two kinds of
// connection:
//
//   - one control connection to the coordinator, opened by the node with
//     JOIN <address>. The coordinator sends REMOVE and LIST on it; the node
//     answers REMOVE_ACK (or ERROR_FILE_DOES_NOT_EXIST) and LIST, and
//     reports STORE_ACK once an upload is persisted.
//   - short-lived client connections on the node's own listener. A client
//     sends STORE <name> <size>, waits for ACK and writes exactly size
//     bytes; or sends LOAD_DATA <name> and reads the contents until the
//     node closes the connection.
//
// Losing the coordinator connection ends Serve with ErrCoordinatorLost;
// the node does not try to rejoin.
//
// Usage:
//
//	store, _ := storage.NewDiskStore("./data/node1")
//	n, err := node.New(node.Config{
//		Store:       store,
//		Coordinator: "127.0.0.1:4000",
//		Advertise:   "4001",
//		Timeout:     time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	ln, _ := net.Listen("tcp", ":4001")
//	return n.Serve(ctx, ln)
package node
