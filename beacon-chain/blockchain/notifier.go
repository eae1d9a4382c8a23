package blockchain

import (
	"sync"

	"github.com/google/uuid"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// Observation is the tuple spec.md section 4.7 defines: the current
// head block, the head state advanced by empty-slot transitions up to
// wall-clock slot, and a snapshot of what's pending in the operation
// pools. Emission is monotonic in (FinalizedEpoch, Slot); HeadRoot
// plays no part in the order.
type Observation struct {
	HeadRoot        [32]byte
	HeadBlock       *blockspb.SignedBeaconBlock
	LatestSlotState *state.BeaconState
	FinalizedEpoch  primitives.Epoch
	PendingOpsLen   int
}

// supersedesOrEquals reports whether o is not older than prev in the
// (FinalizedEpoch, Slot) order Observations are published in. Two
// Observations with equal epoch and slot always pass, whatever their
// HeadRoot.
func (o Observation) supersedesOrEquals(prev Observation) bool {
	if o.FinalizedEpoch != prev.FinalizedEpoch {
		return o.FinalizedEpoch > prev.FinalizedEpoch
	}
	if o.LatestSlotState == nil || prev.LatestSlotState == nil {
		return true
	}
	return o.LatestSlotState.Slot >= prev.LatestSlotState.Slot
}

// SubscriberPolicy controls what a subscriber's queue does when it is
// full at publish time: spec.md design note 9 requires this be
// per-subscription rather than one global rule.
type SubscriberPolicy int

const (
	// PolicyCoalesce drops the previously queued-but-unread Observation
	// in favor of the new one, so a slow subscriber always eventually
	// sees the latest state rather than falling permanently behind.
	PolicyCoalesce SubscriberPolicy = iota
	// PolicyDrop discards the new Observation outright when the
	// subscriber's single-slot buffer is already full.
	PolicyDrop
)

type subscription struct {
	id     string
	ch     chan Observation
	policy SubscriberPolicy
}

// Notifier is a bounded-subscriber broadcast of Observation values,
// grounded on the teacher's stateNotifier/async event.Feed shape
// (deleted from this pack's async test scaffolding; restated here as a
// small, exercised implementation rather than reviving the feed type).
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]*subscription
	last Observation
}

// NewNotifier builds an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]*subscription)}
}

// Subscribe registers a new subscriber with a single-slot buffer and
// the given overflow policy, returning its channel and an unsubscribe
// function.
func (n *Notifier) Subscribe(policy SubscriberPolicy) (<-chan Observation, func()) {
	id := uuid.NewString()
	sub := &subscription{id: id, ch: make(chan Observation, 1), policy: policy}

	n.mu.Lock()
	n.subs[id] = sub
	n.mu.Unlock()

	return sub.ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if s, ok := n.subs[id]; ok {
			close(s.ch)
			delete(n.subs, id)
		}
	}
}

// Publish delivers obs to every subscriber, applying each one's
// overflow policy if its buffer is already full. Publishes older than
// the last one (per Observation.supersedesOrEquals) are dropped: the
// monotonicity guarantee is enforced here, not left to callers.
func (n *Notifier) Publish(obs Observation) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !obs.supersedesOrEquals(n.last) {
		return
	}
	n.last = obs

	for _, sub := range n.subs {
		select {
		case sub.ch <- obs:
		default:
			if sub.policy == PolicyCoalesce {
				select {
				case <-sub.ch:
				default:
				}
				select {
				case sub.ch <- obs:
				default:
				}
			}
		}
	}
}
