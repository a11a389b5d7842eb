package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replistore/internal/protocol"
)

// TestSelectReplicas verifies least-loaded placement with join-order tie breaking.
func TestSelectReplicas(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		counts  map[string]int
		n       int
		want    []string
	}{
		{
			name:    "empty cluster takes join order",
			members: []string{"4001", "4002", "4003"},
			n:       3,
			want:    []string{"4001", "4002", "4003"},
		},
		{
			name:    "least loaded first",
			members: []string{"4001", "4002", "4003"},
			counts:  map[string]int{"4001": 2, "4002": 0, "4003": 1},
			n:       2,
			want:    []string{"4002", "4003"},
		},
		{
			name:    "ties keep join order",
			members: []string{"4003", "4001", "4002"},
			counts:  map[string]int{"4003": 1, "4001": 1, "4002": 1},
			n:       2,
			want:    []string{"4003", "4001"},
		},
		{
			name:    "unknown nodes count as empty",
			members: []string{"4001", "4002"},
			counts:  map[string]int{"4001": 5, "gone": 9},
			n:       1,
			want:    []string{"4002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectReplicas(tt.members, tt.counts, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSelectReplicasInsufficient verifies the not-enough-nodes failure.
func TestSelectReplicasInsufficient(t *testing.T) {
	_, err := SelectReplicas([]string{"4001"}, nil, 2)
	assert.ErrorIs(t, err, protocol.ErrNotEnoughNodes)

	_, err = SelectReplicas([]string{"4001"}, nil, 0)
	assert.Error(t, err)
}

// TestSelectReplicasDoesNotReorderInput verifies the members slice is left untouched.
func TestSelectReplicasDoesNotReorderInput(t *testing.T) {
	members := []string{"4001", "4002"}
	_, err := SelectReplicas(members, map[string]int{"4001": 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"4001", "4002"}, members)
}
