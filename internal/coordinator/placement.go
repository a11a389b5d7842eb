package coordinator

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/replistore/internal/protocol"
)

// SelectReplicas chooses n storage nodes for a new file.
//
// Nodes are ordered by how many records already reference them, fewest
// first. The sort is stable, so nodes with equal load keep the order of
// members, which is join order.
//
// Parameters:
//   - members: live node addresses in join order
//   - counts: current replica count per address (missing means zero)
//   - n: the replication factor
//
// Returns:
//   - the chosen addresses, least loaded first
//   - protocol.ErrNotEnoughNodes if fewer than n members are live
//
// Example:
//
//	replicas, err := SelectReplicas([]string{"4001", "4002", "4003"},
//	    map[string]int{"4001": 2}, 2)
//	// replicas == []string{"4002", "4003"}
func SelectReplicas(members []string, counts map[string]int, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("replication factor must be positive, got %d", n)
	}
	if len(members) < n {
		return nil, fmt.Errorf("%w: %d live, need %d", protocol.ErrNotEnoughNodes, len(members), n)
	}

	ordered := slices.Clone(members)
	slices.SortStableFunc(ordered, func(a, b string) int {
		return counts[a] - counts[b]
	})
	return ordered[:n], nil
}
