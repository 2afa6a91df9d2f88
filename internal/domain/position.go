package domain

import "time"

type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionClosing PositionStatus = "CLOSING"
	PositionClosed  PositionStatus = "CLOSED"
)

type ConvictionTier string

const (
	TierHigh   ConvictionTier = "HIGH"
	TierMedium ConvictionTier = "MEDIUM"
	TierLow    ConvictionTier = "LOW"
)

// Position is an open holding supervised by the position manager.
// RemainingAmount only ever decreases; take-profit flags latch once set.
type Position struct {
	ID          string
	TokenMint   string
	TokenSymbol string

	EntryPrice  float64
	EntryAmount float64 // tokens bought at entry
	EntrySol    float64 // quote spent at entry
	EntryTime   time.Time
	Conviction  float64
	EntryTier   ConvictionTier

	// Entry snapshot carried into the Trade record for learning.
	CategoryScores CategoryScores
	WalletCount    int
	HypePhase      string

	RemainingAmount float64
	CurrentPrice    float64
	ATHPrice        float64

	StopPrice      float64
	TrailingActive bool
	TrailingPct    float64

	TP1Hit bool
	TP2Hit bool
	TP3Hit bool
	TP4Hit bool

	RealizedSol   float64
	UnrealizedSol float64

	Status   PositionStatus
	Paper    bool
	ClosedAt time.Time
}

// UnrealizedPnL returns the mark-to-market PnL of the remaining amount in SOL.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.RemainingAmount
}

// GainPct is the percent move of the current price from entry.
func (p *Position) GainPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// TPHit reports whether the tier (1-based) already fired.
func (p *Position) TPHit(tier int) bool {
	switch tier {
	case 1:
		return p.TP1Hit
	case 2:
		return p.TP2Hit
	case 3:
		return p.TP3Hit
	case 4:
		return p.TP4Hit
	}
	return false
}

// MarkTPHit latches the tier flag. Flags are never cleared.
func (p *Position) MarkTPHit(tier int) {
	switch tier {
	case 1:
		p.TP1Hit = true
	case 2:
		p.TP2Hit = true
	case 3:
		p.TP3Hit = true
	case 4:
		p.TP4Hit = true
	}
}
