package domain

import "time"

type Regime string

const (
	RegimeFull      Regime = "FULL"
	RegimeCautious  Regime = "CAUTIOUS"
	RegimeDefensive Regime = "DEFENSIVE"
	RegimePause     Regime = "PAUSE"
)

// RegimeState is the cached macro classification. It is recomputed on a
// fixed interval and replaced as a whole snapshot.
type RegimeState struct {
	Regime       Regime    `json:"regime"`
	SolChange24h float64   `json:"sol_change_24h"`
	BtcChange24h float64   `json:"btc_change_24h"`
	SolTrend     string    `json:"sol_trend"`
	BtcTrend     string    `json:"btc_trend"`
	Reason       string    `json:"reason"`
	Overridden   bool      `json:"overridden"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SizeMultiplier maps a regime to the position-size multiplier.
func (r Regime) SizeMultiplier() float64 {
	switch r {
	case RegimeFull:
		return 1.0
	case RegimeCautious:
		return 0.5
	case RegimeDefensive:
		return 0.25
	default:
		return 0
	}
}

// ThresholdAdjustment maps a regime to the conviction threshold add-on.
// PAUSE uses a sentinel larger than any reachable conviction.
func (r Regime) ThresholdAdjustment() float64 {
	switch r {
	case RegimeFull:
		return 0
	case RegimeCautious:
		return 10
	case RegimeDefensive:
		return 20
	default:
		return 1000
	}
}
