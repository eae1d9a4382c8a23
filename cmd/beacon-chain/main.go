// Command beacon-chain starts a phase-0 beacon node: it builds (or
// loads) a genesis state, wires the store, fork-choice, and observable
// state processor together, and runs the slot ticker that drives
// epoch and empty-slot transitions. Flag parsing and process lifecycle
// follow the teacher's cmd/beacon-chain convention of one urfave/cli
// app with a single default action.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/lumenchain/beacon-node/beacon-chain/blockchain"
	"github.com/lumenchain/beacon-node/beacon-chain/db/kv"
	"github.com/lumenchain/beacon-node/beacon-chain/interop"
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

var log = logrus.WithField("prefix", "main")

var (
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Directory for the beacon node's bbolt database",
		Value: "./beacon-chain-data",
	}
	genesisValidatorsFlag = &cli.Uint64Flag{
		Name:  "interop-num-validators",
		Usage: "Number of interop-deterministic validators to seed genesis with",
		Value: 64,
	}
	genesisSeedFlag = &cli.StringFlag{
		Name:  "interop-genesis-seed",
		Usage: "Seed string interop validator keys are deterministically derived from",
		Value: "lumenchain-interop",
	}
	minimalConfigFlag = &cli.BoolFlag{
		Name:  "minimal-config",
		Usage: "Use the reduced-size minimal chain configuration instead of mainnet",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "beacon-chain"
	app.Usage = "a phase-0 beacon-chain consensus node"
	app.Action = run
	app.Flags = []cli.Flag{
		dataDirFlag,
		genesisValidatorsFlag,
		genesisSeedFlag,
		minimalConfigFlag,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("beacon-chain exited with error")
	}
}

func run(c *cli.Context) error {
	if c.Bool(minimalConfigFlag.Name) {
		params.UseMinimalConfig()
		log.Info("using minimal chain configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := kv.NewKVStore(ctx, c.String(dataDirFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("could not close database")
		}
	}()

	genesis, err := buildInteropGenesis(c)
	if err != nil {
		return errors.Wrap(err, "could not build genesis state")
	}

	chainService := blockchain.NewService(db)
	if err := chainService.StartFromGenesis(ctx, genesis); err != nil {
		return errors.Wrap(err, "could not start chain from genesis")
	}

	log.WithFields(logrus.Fields{
		"genesisTime": chainService.GenesisTime(),
		"genesisRoot": fmt.Sprintf("%#x", chainService.GenesisRoot()),
	}).Info("beacon chain initialized")

	return runSlotLoop(ctx, chainService)
}

// buildInteropGenesis derives the deterministic interop validator set
// and constructs the genesis state against it; this is the
// "minimal-genesis" shortcut spec.md's interop package supplies in
// place of a live eth1 deposit contract follow.
func buildInteropGenesis(c *cli.Context) (*state.BeaconState, error) {
	keys, err := interop.Keys(c.String(genesisSeedFlag.Name), c.Uint64(genesisValidatorsFlag.Name))
	if err != nil {
		return nil, err
	}
	genesisTime := uint64(time.Now().Unix())
	return interop.GenesisState(keys, genesisTime)
}

// runSlotLoop drives the observable state processor's on_tick entry
// point once per SECONDS_PER_SLOT, the single writer's clock source
// for empty-slot advancement and time-based pruning, until ctx is
// cancelled or the process receives an interrupt.
func runSlotLoop(ctx context.Context, chainService *blockchain.Service) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cfg := params.BeaconConfig()
	ticker := time.NewTicker(time.Duration(cfg.SecondsPerSlot) * time.Second)
	defer ticker.Stop()

	genesisTime := chainService.GenesisTime()
	for {
		select {
		case <-ticker.C:
			slot := currentSlot(genesisTime, cfg.SecondsPerSlot)
			if err := chainService.Tick(ctx, slot); err != nil {
				log.WithError(err).Error("slot tick failed")
			}
		case <-sigCh:
			log.Info("shutting down")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func currentSlot(genesisTime time.Time, secondsPerSlot uint64) primitives.Slot {
	elapsed := time.Since(genesisTime)
	if elapsed < 0 {
		return 0
	}
	return primitives.Slot(uint64(elapsed.Seconds()) / secondsPerSlot)
}
