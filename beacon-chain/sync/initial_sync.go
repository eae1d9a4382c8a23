package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevinms/leakybucket-go"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/p2ptypes"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// BackfillThreshold is the slot distance beyond which a peer is
// considered worth long-range syncing against, spec.md section 4.9's
// BACKFILL_THRESHOLD.
const BackfillThreshold = 256

// BatchSize is the number of slots requested per beacon_blocks_by_range
// call during long-range sync.
const BatchSize = 64

const maxConcurrentBatches = 8

// per-peer token bucket: one request token per second, burst of 4,
// mirroring the teacher's discovery.go rate-limiter construction.
const requestsPerSecond = 1
const requestBurst = 4

// RangeRequester issues a beacon_blocks_by_range RPC to a specific
// peer and returns whatever blocks it got back (possibly fewer than
// requested, per spec.md section 6). It is the sync package's only
// seam into the transport layer, which is out of this core's scope.
type RangeRequester interface {
	RequestBlocksByRange(ctx context.Context, peerID string, req *p2ptypes.BeaconBlocksByRangeRequest) ([]*blockspb.SignedBeaconBlock, error)
}

// BlockImporter accepts a single block in slot order, the seam into
// the observable state processor's single writer.
type BlockImporter interface {
	ReceiveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error
}

// InitialSync drives the long-range batch catch-up spec.md section
// 4.9 describes: peers far enough ahead of the local head are asked
// for successive slot ranges, dispatched across peers with bounded
// concurrency, and fed to the importer strictly in slot order once
// reassembled.
type InitialSync struct {
	status   *StatusManager
	requester RangeRequester
	importer  BlockImporter
	limiter   *leakybucket.Collector
	throughput *ratecounter.RateCounter
}

// NewInitialSync builds an InitialSync bound to status for peer
// selection/downscoring, requester for the wire RPC, and importer for
// feeding accepted blocks into the state-transition function.
func NewInitialSync(status *StatusManager, requester RangeRequester, importer BlockImporter) *InitialSync {
	return &InitialSync{
		status:     status,
		requester:  requester,
		importer:   importer,
		limiter:    leakybucket.NewCollector(requestsPerSecond, requestBurst, true),
		throughput: ratecounter.NewRateCounter(time.Second),
	}
}

// batchResult is one dispatched range's outcome, reassembled in
// request (== slot) order before being fed to the importer.
type batchResult struct {
	startSlot primitives.Slot
	blocks    []*blockspb.SignedBeaconBlock
	err       error
	peerID    string
}

// Run drives the catch-up loop until every active peer's head slot is
// within BackfillThreshold of localHeadSlot, returning the new local
// head slot reached.
func (s *InitialSync) Run(ctx context.Context, localHeadSlot primitives.Slot) (primitives.Slot, error) {
	head := localHeadSlot
	for {
		peers := s.status.AheadPeers(head, BackfillThreshold)
		if len(peers) == 0 {
			return head, nil
		}

		batches := pendingBatches(head, peers)
		results := s.dispatchBatches(ctx, batches, peers)

		sort.Slice(results, func(i, j int) bool { return results[i].startSlot < results[j].startSlot })

		for _, r := range results {
			if r.err != nil {
				if shouldDisconnect := s.status.Downscore(r.peerID, 10); shouldDisconnect {
					s.status.Disconnect(r.peerID)
				}
				return head, errors.Wrapf(r.err, "batch starting at slot %d failed", r.startSlot)
			}
			for _, b := range r.blocks {
				if err := s.importer.ReceiveBlock(ctx, b); err != nil {
					return head, errors.Wrapf(err, "could not import block at slot %d", b.Block.Slot)
				}
				s.throughput.Incr(1)
				if b.Block.Slot > head {
					head = b.Block.Slot
				}
			}
		}
	}
}

// pendingBatches computes the slot ranges still needed to reach the
// farthest-ahead peer's head slot, one BatchSize-wide range per batch.
func pendingBatches(head primitives.Slot, peers []*PeerStatus) []primitives.Slot {
	var target primitives.Slot
	for _, p := range peers {
		if p.Hello.HeadSlot > target {
			target = p.Hello.HeadSlot
		}
	}
	var starts []primitives.Slot
	for s := head + 1; s <= target; s += BatchSize {
		starts = append(starts, s)
	}
	return starts
}

// dispatchBatches issues one beacon_blocks_by_range request per batch
// start slot, round-robining across peers with bounded concurrency; a
// batch whose request fails (timeout, disconnect) is reissued to the
// next peer in turn until one serves it or every peer has been tried,
// in which case the last error is reported.
func (s *InitialSync) dispatchBatches(ctx context.Context, starts []primitives.Slot, peers []*PeerStatus) []batchResult {
	results := make([]batchResult, len(starts))
	sem := semaphore.NewWeighted(maxConcurrentBatches)
	var wg sync.WaitGroup

	for i, start := range starts {
		i, start := i, start
		peer := peers[i%len(peers)]

		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = batchResult{startSlot: start, err: err, peerID: peer.ID}
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			req := &p2ptypes.BeaconBlocksByRangeRequest{StartSlot: start, Count: BatchSize, Step: 1}
			for attempt := 0; attempt < len(peers); attempt++ {
				peer := peers[(i+attempt)%len(peers)]
				if s.limiter.Add(peer.ID, 1) < 0 {
					time.Sleep(time.Second)
				}
				blocks, err := s.requester.RequestBlocksByRange(ctx, peer.ID, req)
				results[i] = batchResult{startSlot: start, blocks: blocks, err: err, peerID: peer.ID}
				if err == nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	return results
}
