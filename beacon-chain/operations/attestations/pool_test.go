package attestations

import (
	"testing"

	bitfield "github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/crypto/bls"
)

func signedAttestation(t *testing.T, key *bls.SecretKey, data *blocks.AttestationData, committeeSize uint64, signerIdx uint64) *blocks.Attestation {
	t.Helper()
	root, err := data.HashTreeRoot()
	require.NoError(t, err)
	sig := key.Sign(root[:])

	bits := bitfield.NewBitlist(committeeSize)
	bits.SetBitAt(signerIdx, true)

	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], sig.Marshal())
	return &blocks.Attestation{AggregationBits: bits, Data: data, Signature: sigBytes}
}

func testAttestationData(slot primitives.Slot) *blocks.AttestationData {
	return &blocks.AttestationData{
		Slot:            slot,
		Index:           0,
		BeaconBlockRoot: primitives.Root{1},
		Source:          &blocks.Checkpoint{Epoch: 0, Root: primitives.Root{2}},
		Target:          &blocks.Checkpoint{Epoch: 1, Root: primitives.Root{3}},
		Crosslink:       &blocks.Crosslink{},
	}
}

func constantBalance(bal primitives.Gwei) AggregateBalance {
	return func(att *blocks.Attestation) (primitives.Gwei, error) {
		return bal, nil
	}
}

func newTestKey(t *testing.T, seed byte) *bls.SecretKey {
	t.Helper()
	var raw [32]byte
	raw[31] = seed
	key, err := bls.SecretKeyFromBytes(raw[:])
	require.NoError(t, err)
	return key
}

func TestPoolInsertNewEntry(t *testing.T) {
	pool := NewPool()
	key := newTestKey(t, 1)
	data := testAttestationData(5)
	att := signedAttestation(t, key, data, 8, 0)

	require.NoError(t, pool.Insert(att, constantBalance(32)))
	assert.Equal(t, 1, pool.Len())
}

func TestPoolInsertAggregatesDistinctSigners(t *testing.T) {
	pool := NewPool()
	data := testAttestationData(5)

	key0 := newTestKey(t, 1)
	key1 := newTestKey(t, 2)
	att0 := signedAttestation(t, key0, data, 8, 0)
	att1 := signedAttestation(t, key1, data, 8, 1)

	require.NoError(t, pool.Insert(att0, constantBalance(32)))
	require.NoError(t, pool.Insert(att1, constantBalance(64)))

	assert.Equal(t, 1, pool.Len())
	aggregated := pool.PeekAggregatedAttestations(10, 5)
	require.Len(t, aggregated, 1)
	assert.True(t, aggregated[0].AggregationBits.BitAt(0))
	assert.True(t, aggregated[0].AggregationBits.BitAt(1))
}

func TestPoolInsertRejectsOverlappingBits(t *testing.T) {
	pool := NewPool()
	data := testAttestationData(5)
	key := newTestKey(t, 1)
	att := signedAttestation(t, key, data, 8, 0)

	require.NoError(t, pool.Insert(att, constantBalance(32)))
	err := pool.Insert(att, constantBalance(32))
	assert.ErrorIs(t, err, ErrOverlappingBits)
	assert.Equal(t, 1, pool.Len())
}

func TestPeekAggregatedAttestationsRanksByBalanceDescending(t *testing.T) {
	pool := NewPool()

	lowData := testAttestationData(1)
	lowKey := newTestKey(t, 1)
	require.NoError(t, pool.Insert(signedAttestation(t, lowKey, lowData, 8, 0), constantBalance(10)))

	highData := testAttestationData(2)
	highKey := newTestKey(t, 2)
	require.NoError(t, pool.Insert(signedAttestation(t, highKey, highData, 8, 0), constantBalance(100)))

	out := pool.PeekAggregatedAttestations(10, 5)
	require.Len(t, out, 2)
	assert.Equal(t, highData.Slot, out[0].Data.Slot)
	assert.Equal(t, lowData.Slot, out[1].Data.Slot)
}

func TestPeekAggregatedAttestationsRespectsMax(t *testing.T) {
	pool := NewPool()
	for i := byte(1); i <= 3; i++ {
		data := testAttestationData(primitives.Slot(i))
		key := newTestKey(t, i)
		require.NoError(t, pool.Insert(signedAttestation(t, key, data, 8, 0), constantBalance(primitives.Gwei(i))))
	}
	out := pool.PeekAggregatedAttestations(2, 5)
	assert.Len(t, out, 2)
}

func TestPeekAggregatedAttestationsFiltersByInclusionSlot(t *testing.T) {
	pool := NewPool()
	oldData := testAttestationData(1)
	oldKey := newTestKey(t, 1)
	require.NoError(t, pool.Insert(signedAttestation(t, oldKey, oldData, 8, 0), constantBalance(10)))

	newData := testAttestationData(20)
	newKey := newTestKey(t, 2)
	require.NoError(t, pool.Insert(signedAttestation(t, newKey, newData, 8, 0), constantBalance(10)))

	out := pool.PeekAggregatedAttestations(10, 5)
	require.Len(t, out, 1)
	assert.Equal(t, oldData.Slot, out[0].Data.Slot)
}

func TestPrunePruneOldEntries(t *testing.T) {
	pool := NewPool()
	oldData := testAttestationData(1)
	oldKey := newTestKey(t, 1)
	require.NoError(t, pool.Insert(signedAttestation(t, oldKey, oldData, 8, 0), constantBalance(10)))

	newData := testAttestationData(100)
	newKey := newTestKey(t, 2)
	require.NoError(t, pool.Insert(signedAttestation(t, newKey, newData, 8, 0), constantBalance(10)))

	pool.Prune(100, 32)
	assert.Equal(t, 1, pool.Len())
	out := pool.PeekAggregatedAttestations(10, 100)
	require.Len(t, out, 1)
	assert.Equal(t, newData.Slot, out[0].Data.Slot)
}
