package detectors

import (
	"fmt"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"

	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Config holds every detector threshold.
type Config struct {
	// EvidenceCap bounds the evidence sample of each insight.
	EvidenceCap int

	// Disabled lists detector IDs left out of the registry.
	Disabled []string

	OutlierZ        float64
	OutlierMinGroup int

	// DispensationLimit is the legal threshold above which a purchase needs bidding.
	DispensationLimit    float64
	BidSplitMinContracts int
	BidSplitConfidence   int

	BlockTravelMinParticipants int
	BlockTravelHighCost        float64

	ConcentrationShare        float64
	ConcentrationMinContracts int
	ConcentrationMinSpend     float64

	SanctionConfidence int

	WeekendConfidence int

	CommonSurnames    []string
	MinSurnameLength  int
	SurnameConfidence int

	// ElectionDate splits donations (on or before) from contracts (after).
	ElectionDate time.Time

	AssetMinGap   float64
	AssetMultiple float64

	SalaryCeiling float64

	// PoliticalMinAmount is the smallest amount worth flagging for a company
	// with a political partner.
	PoliticalMinAmount float64
	// DirectAwardModalities are contract modalities that waive bidding.
	DirectAwardModalities []string
}

// DefaultConfig returns the canonical threshold set.
func DefaultConfig() Config {
	return Config{
		EvidenceCap: 25,

		OutlierZ:        2.5,
		OutlierMinGroup: 10,

		DispensationLimit:    57278.16,
		BidSplitMinContracts: 3,
		BidSplitConfidence:   85,

		BlockTravelMinParticipants: 3,
		BlockTravelHighCost:        20000,

		ConcentrationShare:        0.35,
		ConcentrationMinContracts: 5,
		ConcentrationMinSpend:     200000,

		SanctionConfidence: 90,

		WeekendConfidence: 60,

		CommonSurnames:    identity.DefaultCommonSurnames,
		MinSurnameLength:  5,
		SurnameConfidence: 40,

		ElectionDate: time.Date(2024, time.October, 6, 0, 0, 0, 0, time.UTC),

		AssetMinGap:   500000,
		AssetMultiple: 1.5,

		SalaryCeiling: 46366.19,

		PoliticalMinAmount:    50000,
		DirectAwardModalities: []string{"DISPENSA", "INEXIGIBILIDADE"},
	}
}

// ConfigFrom overlays the detectors.* keys of a config store on the defaults.
// Missing or zero values keep the default. A value that is present but cannot
// be parsed is a configuration error.
func ConfigFrom(store driven.ConfigStore) (Config, error) {
	cfg := DefaultConfig()
	if store == nil {
		return cfg, nil
	}

	setInt(&cfg.EvidenceCap, store.GetInt("detectors.evidence_cap"))
	if disabled := store.GetStringSlice("detectors.disabled"); len(disabled) > 0 {
		cfg.Disabled = disabled
	}

	setFloat(&cfg.OutlierZ, store.GetFloat("detectors.outlier.z_threshold"))
	setInt(&cfg.OutlierMinGroup, store.GetInt("detectors.outlier.min_group"))

	setFloat(&cfg.DispensationLimit, store.GetFloat("detectors.bid_splitting.threshold"))
	setInt(&cfg.BidSplitMinContracts, store.GetInt("detectors.bid_splitting.min_contracts"))
	setInt(&cfg.BidSplitConfidence, store.GetInt("detectors.bid_splitting.confidence"))

	setInt(&cfg.BlockTravelMinParticipants, store.GetInt("detectors.block_travel.min_participants"))
	setFloat(&cfg.BlockTravelHighCost, store.GetFloat("detectors.block_travel.high_cost"))

	setFloat(&cfg.ConcentrationShare, store.GetFloat("detectors.concentration.share"))
	setInt(&cfg.ConcentrationMinContracts, store.GetInt("detectors.concentration.min_contracts"))
	setFloat(&cfg.ConcentrationMinSpend, store.GetFloat("detectors.concentration.min_spend"))

	if common := store.GetStringSlice("resolver.common_surnames"); len(common) > 0 {
		cfg.CommonSurnames = common
	}
	setInt(&cfg.MinSurnameLength, store.GetInt("resolver.min_surname_length"))

	if raw := store.GetString("detectors.donation.election_date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: detectors.donation.election_date %q is not YYYY-MM-DD", domain.ErrConfigInvalid, raw)
		}
		cfg.ElectionDate = d
	}

	setFloat(&cfg.AssetMinGap, store.GetFloat("detectors.asset_growth.min_gap"))
	setFloat(&cfg.AssetMultiple, store.GetFloat("detectors.asset_growth.multiple"))

	setFloat(&cfg.SalaryCeiling, store.GetFloat("detectors.salary_ceiling.amount"))

	setFloat(&cfg.PoliticalMinAmount, store.GetFloat("detectors.political.min_amount"))
	if modalities := store.GetStringSlice("detectors.political.direct_modalities"); len(modalities) > 0 {
		cfg.DirectAwardModalities = modalities
	}
	return cfg, nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
