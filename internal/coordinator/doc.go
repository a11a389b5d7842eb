// Package coordinator implements the coordination engine of the replistore
// coordinator: it tracks storage nodes, places file replicas, aggregates
// acknowledgments for stores and removes, recovers from partial failures by
// timeout, and serves loads with fallback across replicas.
//
// # Overview
//
// Clients never send file contents through the coordinator. For a store the
// coordinator picks replicationFactor storage nodes and tells the client
// where to upload; the nodes report STORE_ACK back and the coordinator
// answers STORE_COMPLETE once all of them have. Loads and removes work the
// same way: the coordinator decides, the nodes move the bytes.
//
// # Architecture
//
//	┌─────────────────────────────────────────────┐
//	│                 Coordinator                 │
//	├─────────────────────────────────────────────┤
//	│  coordination lock (mu)                     │
//	│                                             │
//	│  ┌──────────────┐      ┌─────────────────┐  │
//	│  │   Registry   │      │    Directory    │  │
//	│  │ live nodes   │◄─────┤ name → record   │  │
//	│  └──────────────┘ weak └─────────────────┘  │
//	│                                             │
//	│  store / remove / load / list handlers      │
//	│  failure handling      Deadlines (timers)   │
//	│  RebalanceLoop (hook)  Metrics              │
//	└─────────────────────────────────────────────┘
//
// # Core Components
//
// Directory: the authoritative file table
//   - One FileRecord per name, in status storing, stored or removing
//   - Scoped mutation through Update and Each
//   - Replica addresses are weak references into the registry
//
// SelectReplicas: placement
//   - Least loaded nodes first, counting records in every status
//   - Ties keep join order
//
// Deadlines: one-shot timers per operation
//   - Cancelled when an operation completes
//   - Callbacks re-check the record's operation id and status, so a timer
//     that loses a race with completion does nothing
//
// RebalanceLoop: the periodic rebalance hook
//   - Reports stored files below the replication factor
//   - Moves no data; rebalancing is not implemented
//
// # Store Protocol
//
//	client            coordinator                 nodes
//	  │ STORE f 100       │                          │
//	  ├──────────────────►│ place, arm deadline      │
//	  │ STORE_TO a b c    │                          │
//	  │◄──────────────────┤                          │
//	  │ upload to a, b, c ─────────────────────────► │
//	  │                   │ STORE_ACK f (×3)         │
//	  │                   │◄─────────────────────────┤
//	  │ STORE_COMPLETE    │                          │
//	  │◄──────────────────┤                          │
//
// If the deadline fires first, the record is purged and the name is free
// again; the client receives nothing. Removal mirrors this with REMOVE,
// REMOVE_ACK and REMOVE_COMPLETE, except that a timed-out removal may leave
// the file on replicas that never acknowledged.
//
// # Failure Handling
//
// Each storage node has one reader goroutine. When its read fails the node
// is removed from the registry and from every replica set; stores that can
// no longer reach the replication factor are purged, as is any record left
// without replicas. Failures are never reported to clients directly; they
// show up as later ERROR_LOAD or purged stores.
//
// # Concurrency Model
//
//   - One goroutine per connection; a connection's messages are handled in
//     receipt order, so acks for a file are applied in the order received
//   - Every logical operation holds the coordination lock from check to
//     mutation, and collects its outgoing messages in an outbox
//   - Outboxes are written after the lock is released; no network I/O
//     happens under the lock
//   - Registry and Directory carry their own RWMutex so admin readers can
//     take snapshots without the coordination lock
//
// # Usage Example
//
//	coord, err := coordinator.New(coordinator.Config{
//	    ReplicationFactor: 3,
//	    Timeout:           2 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal().Err(err).Msg("invalid config")
//	}
//	ln, _ := net.Listen("tcp", ":4000")
//	err = coord.Serve(ctx, ln)
package coordinator
