// Package params defines the immutable beacon-chain configuration values
// consumed throughout the core packages. Values follow the phase-0
// specification constants; a config is selected at process start and
// never mutated afterward.
package params

import "time"

// BeaconChainConfig holds every tunable constant the state-transition
// function, fork-choice, and helpers depend on.
type BeaconChainConfig struct {
	// Misc.
	MaxCommitteesPerSlot    uint64
	TargetCommitteeSize     uint64
	MaxValidatorsPerCommittee uint64
	ShardCount              uint64
	MinPerEpochChurnLimit   uint64
	ChurnLimitQuotient      uint64
	ShuffleRoundCount       uint64

	// Gwei values.
	MinDepositAmount          uint64
	MaxEffectiveBalance       uint64
	EjectionBalance           uint64
	EffectiveBalanceIncrement uint64

	// Initial values.
	GenesisSlot       uint64
	GenesisEpoch      uint64
	BLSWithdrawalPrefixByte byte
	ZeroHash          [32]byte

	// Time parameters.
	SecondsPerSlot               uint64
	MinAttestationInclusionDelay uint64
	SlotsPerEpoch                uint64
	MinSeedLookahead             uint64
	MaxSeedLookahead             uint64
	EpochsPerEth1VotingPeriod    uint64
	SlotsPerHistoricalRoot       uint64
	MinValidatorWithdrawabilityDelay uint64
	PersistentCommitteePeriod    uint64
	MinEpochsToInactivityPenalty uint64

	// State list lengths.
	EpochsPerHistoricalVector uint64
	EpochsPerSlashingsVector  uint64
	HistoricalRootsLimit      uint64
	ValidatorRegistryLimit    uint64

	// Reward and penalty quotients.
	BaseRewardFactor               uint64
	WhistleblowerRewardQuotient    uint64
	ProposerRewardQuotient         uint64
	InactivityPenaltyQuotient      uint64
	MinSlashingPenaltyQuotient     uint64
	ProportionalSlashingMultiplier uint64

	// Max operations per block.
	MaxProposerSlashings uint64
	MaxAttesterSlashings uint64
	MaxAttestations      uint64
	MaxDeposits          uint64
	MaxVoluntaryExits    uint64
	MaxTransfers         uint64

	// Domain types, 4-byte, little-endian.
	DomainBeaconProposer   [4]byte
	DomainRandao           [4]byte
	DomainBeaconAttester   [4]byte
	DomainDeposit          [4]byte
	DomainVoluntaryExit    [4]byte
	DomainTransfer         [4]byte

	// Fork-choice.
	ForkChoiceBalanceIncrement uint64
	ProposerScoreBoost         uint64

	GenesisForkVersion [4]byte
	GenesisTime        time.Time

	// Deposit contract.
	DepositContractTreeDepth uint64
}

// MainnetConfig returns the production chain spec.
func MainnetConfig() *BeaconChainConfig {
	return &BeaconChainConfig{
		MaxCommitteesPerSlot:      64,
		TargetCommitteeSize:       128,
		MaxValidatorsPerCommittee: 2048,
		ShardCount:                64,
		MinPerEpochChurnLimit:     4,
		ChurnLimitQuotient:        1 << 16,
		ShuffleRoundCount:         90,

		MinDepositAmount:          1 * 1e9,
		MaxEffectiveBalance:       32 * 1e9,
		EjectionBalance:           16 * 1e9,
		EffectiveBalanceIncrement: 1 * 1e9,

		GenesisSlot:  0,
		GenesisEpoch: 0,

		SecondsPerSlot:                    12,
		MinAttestationInclusionDelay:      1,
		SlotsPerEpoch:                     32,
		MinSeedLookahead:                  1,
		MaxSeedLookahead:                  4,
		EpochsPerEth1VotingPeriod:         64,
		SlotsPerHistoricalRoot:            8192,
		MinValidatorWithdrawabilityDelay:  256,
		PersistentCommitteePeriod:         2048,
		MinEpochsToInactivityPenalty:      4,

		EpochsPerHistoricalVector: 65536,
		EpochsPerSlashingsVector:  8192,
		HistoricalRootsLimit:      16777216,
		ValidatorRegistryLimit:    1 << 40,

		BaseRewardFactor:               64,
		WhistleblowerRewardQuotient:     512,
		ProposerRewardQuotient:          8,
		InactivityPenaltyQuotient:       1 << 25,
		MinSlashingPenaltyQuotient:      32,
		ProportionalSlashingMultiplier:  1,

		MaxProposerSlashings: 16,
		MaxAttesterSlashings: 1,
		MaxAttestations:      128,
		MaxDeposits:          16,
		MaxVoluntaryExits:    16,
		MaxTransfers:         0,

		DomainBeaconProposer: [4]byte{0x00, 0x00, 0x00, 0x00},
		DomainRandao:         [4]byte{0x01, 0x00, 0x00, 0x00},
		DomainBeaconAttester: [4]byte{0x02, 0x00, 0x00, 0x00},
		DomainDeposit:        [4]byte{0x03, 0x00, 0x00, 0x00},
		DomainVoluntaryExit:  [4]byte{0x04, 0x00, 0x00, 0x00},
		DomainTransfer:       [4]byte{0x05, 0x00, 0x00, 0x00},

		ForkChoiceBalanceIncrement: 1 * 1e9,
		ProposerScoreBoost:         40,

		DepositContractTreeDepth: 32,
	}
}

// MinimalConfig returns the reduced-size configuration used by local
// testnets and unit tests, matching the teacher's minimal preset.
func MinimalConfig() *BeaconChainConfig {
	c := MainnetConfig()
	c.ShardCount = 8
	c.TargetCommitteeSize = 4
	c.SlotsPerEpoch = 8
	c.SlotsPerHistoricalRoot = 64
	c.EpochsPerHistoricalVector = 64
	c.EpochsPerSlashingsVector = 64
	c.MinValidatorWithdrawabilityDelay = 256
	c.PersistentCommitteePeriod = 128
	c.MinPerEpochChurnLimit = 2
	return c
}

var beaconConfig = MainnetConfig()

// BeaconConfig returns the currently active chain configuration.
func BeaconConfig() *BeaconChainConfig {
	return beaconConfig
}

// OverrideBeaconConfig swaps the active configuration. Intended for use
// at process start or in tests; never call this concurrently with
// readers.
func OverrideBeaconConfig(c *BeaconChainConfig) {
	beaconConfig = c
}

// UseMinimalConfig switches the active configuration to the minimal
// preset, used by test harnesses that exercise full epoch boundaries
// without mainnet-sized committees.
func UseMinimalConfig() {
	OverrideBeaconConfig(MinimalConfig())
}
