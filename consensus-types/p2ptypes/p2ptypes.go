// Package p2ptypes defines the SSZ request/response containers the
// RPC surface in spec.md section 6 exchanges over the wire: the
// handshake HelloMessage and the beacon_blocks_by_{range,root} request
// bodies. Framing (the 4-byte big-endian length prefix) and the actual
// transport are out of scope; only the message schemas live here, the
// same split the teacher's beacon-chain/p2p/types package draws between
// wire types and the libp2p stream handling that uses them.
package p2ptypes

import (
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// HelloMessage is exchanged once per peer connection to establish
// mutual chain compatibility before any other RPC proceeds.
type HelloMessage struct {
	NetworkID      uint8
	ChainID        uint64
	FinalizedRoot  primitives.Root
	FinalizedEpoch primitives.Epoch
	HeadRoot       primitives.Root
	HeadSlot       primitives.Slot
}

// MarshalSSZ encodes h.
func (h *HelloMessage) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, 89)
	buf = append(buf, h.NetworkID)
	buf = ssz.MarshalUint64(buf, h.ChainID)
	buf = append(buf, h.FinalizedRoot[:]...)
	buf = ssz.MarshalUint64(buf, uint64(h.FinalizedEpoch))
	buf = append(buf, h.HeadRoot[:]...)
	buf = ssz.MarshalUint64(buf, uint64(h.HeadSlot))
	return buf, nil
}

// UnmarshalSSZ decodes h from buf.
func (h *HelloMessage) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 89 {
		return ssz.ErrSchemaMismatch
	}
	h.NetworkID = buf[0]
	chainID, err := ssz.UnmarshalUint64(buf[1:9])
	if err != nil {
		return err
	}
	h.ChainID = chainID
	copy(h.FinalizedRoot[:], buf[9:41])
	finalizedEpoch, err := ssz.UnmarshalUint64(buf[41:49])
	if err != nil {
		return err
	}
	h.FinalizedEpoch = primitives.Epoch(finalizedEpoch)
	copy(h.HeadRoot[:], buf[49:81])
	headSlot, err := ssz.UnmarshalUint64(buf[81:89])
	if err != nil {
		return err
	}
	h.HeadSlot = primitives.Slot(headSlot)
	return nil
}

// Goodbye is a one-shot termination notice; the connection is expected
// to close immediately after either side sends it.
type Goodbye struct {
	Reason uint64
}

// BeaconBlocksByRangeRequest asks for an ordered stream of blocks; the
// peer may return fewer than count if it doesn't have them all.
type BeaconBlocksByRangeRequest struct {
	StartSlot primitives.Slot
	Count     uint64
	Step      uint64
}

// BeaconBlocksByRootRequest asks for specific blocks by root, returned
// in request order; a peer that doesn't have a given root simply omits
// it from the response rather than erroring the whole request.
type BeaconBlocksByRootRequest struct {
	Roots []primitives.Root
}

// GoodbyeReason codes, matching the values the sync orchestrator's
// downscore/disconnect logic branches on.
const (
	GoodbyeReasonUnknown uint64 = iota
	GoodbyeReasonClientShutdown
	GoodbyeReasonIrrelevantNetwork
	GoodbyeReasonFault
)
