package domain

import "time"

type OpportunityStatus string

const (
	OppAnalyzing OpportunityStatus = "ANALYZING"
	OppQualified OpportunityStatus = "QUALIFIED"
	OppRejected  OpportunityStatus = "REJECTED"
	OppEntered   OpportunityStatus = "ENTERED"
	OppExpired   OpportunityStatus = "EXPIRED"
)

// WalletSignal summarizes the smart-wallet activity that surfaced a token.
type WalletSignal struct {
	Count int `json:"count"`
	TierS int `json:"tier_s"`
	TierA int `json:"tier_a"`
	TierB int `json:"tier_b"`
}

// MarketSnapshot is the state of the token market at analysis time.
type MarketSnapshot struct {
	Price        float64 `json:"price"`
	LiquiditySol float64 `json:"liquidity_sol"`
	Holders      int     `json:"holders"`
	Volume24h    float64 `json:"volume_24h"`
	Change1h     float64 `json:"change_1h"`
	Change24h    float64 `json:"change_24h"`
}

// EntrySnapshot captures entry-quality features.
type EntrySnapshot struct {
	DipFromHighPct float64       `json:"dip_from_high_pct"`
	Age            time.Duration `json:"age"`
	HypePhase      string        `json:"hype_phase"` // EARLY, PEAK, COOLING
}

// TokenOpportunity is a candidate token moving through analysis.
// Status transitions are one-directional.
type TokenOpportunity struct {
	ID          string
	TokenMint   string
	TokenSymbol string

	Signal WalletSignal
	Safety *SafetyResult
	Market MarketSnapshot
	Entry  EntrySnapshot

	Conviction     float64
	CategoryScores CategoryScores
	Tier           ConvictionTier

	Status       OpportunityStatus
	RejectReason string
	RejectCode   string

	CreatedAt time.Time
	Deadline  time.Time
}

// Rejection is kept for operator visibility into why entries were declined.
type Rejection struct {
	TokenMint string    `json:"token_mint"`
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
