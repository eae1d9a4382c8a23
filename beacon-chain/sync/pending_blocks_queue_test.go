package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

func orphanBlock(slot primitives.Slot, parent primitives.Root) *blockspb.SignedBeaconBlock {
	return &blockspb.SignedBeaconBlock{
		Block: &blockspb.BeaconBlock{
			Slot:       slot,
			ParentRoot: parent,
			Body:       &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}},
		},
	}
}

func TestPendingBlocksQueueEnqueueRejectsADuplicateRoot(t *testing.T) {
	q := NewPendingBlocksQueue()
	parent := primitives.Root{1}
	block := orphanBlock(5, parent)

	require.True(t, q.Enqueue(block))
	require.False(t, q.Enqueue(block), "an identical block should be rejected the second time")
	require.Equal(t, 1, q.Len())
}

func TestPendingBlocksQueueReleaseReturnsChildrenInArrivalOrder(t *testing.T) {
	q := NewPendingBlocksQueue()
	parent := primitives.Root{1}
	first := orphanBlock(5, parent)
	second := orphanBlock(6, parent)

	require.True(t, q.Enqueue(first))
	require.True(t, q.Enqueue(second))
	require.Equal(t, 2, q.Len())

	released := q.Release([32]byte(parent))
	require.Equal(t, []*blockspb.SignedBeaconBlock{first, second}, released)
	require.Equal(t, 0, q.Len())
}

func TestPendingBlocksQueueReleaseOfUnknownParentReturnsNil(t *testing.T) {
	q := NewPendingBlocksQueue()
	require.Nil(t, q.Release([32]byte{0xff}))
}

func TestPendingBlocksQueueKeepsParentsSeparate(t *testing.T) {
	q := NewPendingBlocksQueue()
	parentA := primitives.Root{1}
	parentB := primitives.Root{2}

	require.True(t, q.Enqueue(orphanBlock(1, parentA)))
	require.True(t, q.Enqueue(orphanBlock(2, parentB)))
	require.Equal(t, 2, q.Len())

	releasedA := q.Release([32]byte(parentA))
	require.Len(t, releasedA, 1)
	require.Equal(t, 1, q.Len())

	releasedB := q.Release([32]byte(parentB))
	require.Len(t, releasedB, 1)
	require.Equal(t, 0, q.Len())
}

func TestPendingBlocksQueueAllowsReenqueueingAfterRelease(t *testing.T) {
	q := NewPendingBlocksQueue()
	parent := primitives.Root{1}
	block := orphanBlock(5, parent)

	require.True(t, q.Enqueue(block))
	q.Release([32]byte(parent))
	require.True(t, q.Enqueue(block), "a root cleared by Release should be enqueueable again")
}
