// Package cluster tracks membership of storage nodes in a replistore cluster.
//
// # Overview
//
// A storage node becomes a member by opening a connection to the coordinator
// and sending JOIN with the address clients should use to reach it. From then
// on that connection is the node's only channel to the coordinator: it carries
// the node's STORE_ACK and REMOVE_ACK messages, and its failure is the signal
// that the node is gone.
//
//	            ┌────────────────────┐
//	            │    Coordinator     │
//	            │  ┌──────────────┐  │
//	            │  │   Registry   │  │
//	            │  │ addr -> conn │  │
//	            │  └──────────────┘  │
//	            └─────────┬──────────┘
//	       JOIN / ACKs    │   REMOVE
//	   ┌──────────────────┼──────────────────┐
//	   │                  │                  │
//	┌──┴─────┐       ┌────┴───┐         ┌────┴───┐
//	│ node A │       │ node B │         │ node C │
//	└────────┘       └────────┘         └────────┘
//
// # Registry
//
// Registry is the authoritative set of live storage nodes:
//   - Members are keyed by the address they joined with; addresses are unique
//   - Joining twice with the same address is a no-op
//   - Removal is by connection identity, since a failed read only knows its conn
//   - Iteration order is join order, which placement uses to break ties
//
// # Concurrency Model
//
// Registry guards its table with a sync.RWMutex and returns copies from every
// read, so callers never observe a member list that is being modified. The
// coordinator additionally serializes whole logical operations (placement,
// failure handling) under its own coordination lock; Registry's lock only
// protects the table itself.
//
// # Failure Handling
//
// The registry does not detect failures. The coordinator runs one reader per
// member connection and calls Remove when that read fails; it then reconciles
// the file directory. See internal/coordinator.
package cluster
