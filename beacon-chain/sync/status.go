// Package sync implements the sync orchestrator spec.md section 4.9
// describes: a per-peer handshake state machine driving long-range
// (batch) and short-range (gossip) catch-up, feeding accepted blocks
// into the state-transition function in strict slot order. Grounded on
// the teacher's beacon-chain/sync package (status.go's peer handshake
// gate and initial-sync's round-robin batch fetcher, restated here
// without the libp2p stream plumbing spec.md scopes out).
package sync

import (
	"sync"
	"time"

	"github.com/lumenchain/beacon-node/consensus-types/p2ptypes"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// PeerConnState is the per-peer handshake state machine spec.md
// section 4.9 prescribes.
type PeerConnState int

const (
	Disconnected PeerConnState = iota
	Handshaking
	Active
)

func (s PeerConnState) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Active:
		return "active"
	default:
		return "disconnected"
	}
}

// PeerStatus is one peer's handshake result plus the score the sync
// orchestrator tracks to decide when to drop it.
type PeerStatus struct {
	ID         string
	State      PeerConnState
	Hello      *p2ptypes.HelloMessage
	Score      int
	lastActive time.Time
}

// defaultScoreFloor is the score at which a peer is disconnected
// outright, per spec.md section 7's "downscore; disconnect at
// threshold" PeerError policy.
const defaultScoreFloor = -100

// StatusManager tracks every known peer's handshake state and score.
// It is the gate long-range and short-range sync both consult before
// dispatching a request to a given peer.
type StatusManager struct {
	mu          sync.RWMutex
	peers       map[string]*PeerStatus
	localHello  func() *p2ptypes.HelloMessage
	scoreFloor  int
}

// NewStatusManager builds a StatusManager that derives its own
// HelloMessage (for handshake comparison) from localHello on demand,
// so it always reflects the current head/finalized state rather than
// a value captured at construction time.
func NewStatusManager(localHello func() *p2ptypes.HelloMessage) *StatusManager {
	return &StatusManager{
		peers:      make(map[string]*PeerStatus),
		localHello: localHello,
		scoreFloor: defaultScoreFloor,
	}
}

// ErrForkMismatch is returned when a peer's reported fork/network
// identity doesn't match ours; spec.md section 6 mandates the
// connection be dropped outright.
var ErrForkMismatch = errChainIDMismatch{}

type errChainIDMismatch struct{}

func (errChainIDMismatch) Error() string { return "sync: peer chain id does not match local network" }

// BeginHandshake transitions peerID into Handshaking, the state it
// occupies between connection and a successful status exchange.
func (m *StatusManager) BeginHandshake(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peerID] = &PeerStatus{ID: peerID, State: Handshaking, lastActive: time.Now()}
}

// CompleteHandshake records peer's HelloMessage and transitions it to
// Active, or returns ErrForkMismatch (leaving the peer in
// Handshaking, to be disconnected by the caller) if the chain IDs
// don't match.
func (m *StatusManager) CompleteHandshake(peerID string, remote *p2ptypes.HelloMessage) error {
	local := m.localHello()
	if remote.ChainID != local.ChainID {
		return ErrForkMismatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		p = &PeerStatus{ID: peerID}
		m.peers[peerID] = p
	}
	p.State = Active
	p.Hello = remote
	p.lastActive = time.Now()
	return nil
}

// Disconnect marks peerID Disconnected and drops its handshake state.
func (m *StatusManager) Disconnect(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
}

// Downscore lowers peerID's score by delta (a PeerError or Timeout),
// reporting whether the peer fell to or below the disconnect threshold and
// should now be dropped by the caller.
func (m *StatusManager) Downscore(peerID string, delta int) (shouldDisconnect bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		return false
	}
	p.Score -= delta
	return p.Score <= m.scoreFloor
}

// ActivePeers returns the PeerStatus of every peer currently in the
// Active state, the candidate set long-range sync dispatches against.
func (m *StatusManager) ActivePeers() []*PeerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*PeerStatus, 0, len(m.peers))
	for _, p := range m.peers {
		if p.State == Active {
			out = append(out, p)
		}
	}
	return out
}

// AheadPeers returns the subset of ActivePeers whose reported head
// slot exceeds localHeadSlot by more than threshold, the peers worth
// long-range syncing against.
func (m *StatusManager) AheadPeers(localHeadSlot primitives.Slot, threshold uint64) []*PeerStatus {
	var out []*PeerStatus
	for _, p := range m.ActivePeers() {
		if p.Hello == nil {
			continue
		}
		if p.Hello.HeadSlot > localHeadSlot && uint64(p.Hello.HeadSlot)-uint64(localHeadSlot) > threshold {
			out = append(out, p)
		}
	}
	return out
}
