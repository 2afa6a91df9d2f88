package domain

import "time"

type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTimeStop   ExitReason = "TIME_STOP"
	ExitManual     ExitReason = "MANUAL"
	ExitEmergency  ExitReason = "EMERGENCY"
)

type TradeOutcome string

const (
	OutcomeWin       TradeOutcome = "WIN"
	OutcomeLoss      TradeOutcome = "LOSS"
	OutcomeBreakeven TradeOutcome = "BREAKEVEN"
	OutcomeEmergency TradeOutcome = "EMERGENCY"
)

// CategoryScores holds the per-category conviction inputs captured at entry.
// Keys are the learning weight category names.
type CategoryScores map[string]float64

// Trade is the immutable record of a fully closed position. It is written
// exactly once and is the sole input to the learning scheduler.
type Trade struct {
	ID          string
	PositionID  string
	TokenMint   string
	TokenSymbol string

	EntryPrice float64
	ExitPrice  float64
	Amount     float64 // tokens, at entry
	EntrySol   float64

	EntryTime time.Time
	ExitTime  time.Time

	ExitReason ExitReason
	Outcome    TradeOutcome

	PnlSol float64
	PnlPct float64

	Conviction     float64
	EntryTier      ConvictionTier
	CategoryScores CategoryScores
	WalletCount    int
	HypePhase      string
	Paper          bool
}

// OutcomeFor derives the trade outcome from PnL percent and exit reason.
func OutcomeFor(reason ExitReason, pnlPct float64) TradeOutcome {
	if reason == ExitEmergency {
		return OutcomeEmergency
	}
	switch {
	case pnlPct > 1:
		return OutcomeWin
	case pnlPct < -1:
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// TradeStats is an aggregate over recorded trades.
type TradeStats struct {
	Total     int     `json:"total"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Breakeven int     `json:"breakeven"`
	WinRate   float64 `json:"win_rate"`
	TotalPnl  float64 `json:"total_pnl_sol"`
	AvgPnlPct float64 `json:"avg_pnl_pct"`
	BestPct   float64 `json:"best_pct"`
	WorstPct  float64 `json:"worst_pct"`
}
