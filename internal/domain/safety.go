package domain

// SafetyCheck is one checklist item result.
type SafetyCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}

// SafetyResult is the outcome of the full safety checklist for a token.
// A hard fail forces Pass=false regardless of the aggregate score.
type SafetyResult struct {
	TokenMint      string        `json:"token_mint"`
	Score          int           `json:"score"`
	Pass           bool          `json:"pass"`
	HardFail       bool          `json:"hard_fail"`
	HardFailReason string        `json:"hard_fail_reason,omitempty"`
	Checks         []SafetyCheck `json:"checks"`
}

// AddCheck appends one checklist result, crediting points on pass.
func (r *SafetyResult) AddCheck(name string, passed bool, points int, detail string) {
	r.Checks = append(r.Checks, SafetyCheck{Name: name, Passed: passed, Points: points, Detail: detail})
	if passed {
		r.Score += points
	}
}

// MarkHardFail records the first hard-fail condition; Pass can never be true
// once set.
func (r *SafetyResult) MarkHardFail(reason string) {
	if r.HardFail {
		return
	}
	r.HardFail = true
	r.HardFailReason = reason
}

// SellSimulation is the honeypot probe result from the safety provider.
type SellSimulation struct {
	CanSell bool
	TaxPct  float64
}

// TokenAuthorities reports on-chain authority and metadata state.
type TokenAuthorities struct {
	MintRevoked   bool
	FreezeRevoked bool
	Deployer      string
	Verified      bool
}

// TokenDistribution reports holder and liquidity structure.
type TokenDistribution struct {
	Top10HolderPct  float64
	DeployerPct     float64
	LiquidityLocked bool
}
