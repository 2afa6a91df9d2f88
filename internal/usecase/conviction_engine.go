package usecase

import (
	"fmt"
	"math"
	"sync"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

// Rejection codes returned by the conviction engine.
const (
	RejectSafetyFailed  = "safety_failed"
	RejectMintAuthority = "mint_authority_active"
	RejectLowConviction = "conviction_below_threshold"
	RejectFewWallets    = "insufficient_smart_wallets"
	RejectTooYoung      = "token_too_young"
	RejectTooOld        = "token_too_old"
	RejectShallowDip    = "dip_too_shallow"
	RejectDumped        = "already_dumped"
	RejectRegimePause   = "regime_pause"
	RejectNoExposure    = "daily_exposure_exhausted"
)

// Decision is the admission outcome for one opportunity.
type Decision struct {
	Admitted   bool
	Code       string
	Reason     string
	Conviction float64
	Tier       domain.ConvictionTier
	SizeSol    float64
	Scores     domain.CategoryScores
}

// ConvictionEngine combines signal categories, safety, market conditions and
// regime into an admission decision with a position size.
type ConvictionEngine struct {
	mu  sync.Mutex
	cfg config.TradingConfig
}

func NewConvictionEngine(cfg config.TradingConfig) *ConvictionEngine {
	return &ConvictionEngine{cfg: cfg}
}

// SetConfig swaps the trading parameters. Evaluate snapshots them per call,
// so a settings update never tears a decision in progress.
func (e *ConvictionEngine) SetConfig(cfg config.TradingConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *ConvictionEngine) config() config.TradingConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// EvaluateInput carries everything a decision needs, so Evaluate itself
// stays a pure function of its arguments.
type EvaluateInput struct {
	Opportunity       *domain.TokenOpportunity
	Weights           *domain.LearningWeights
	Regime            domain.Regime
	RemainingExposure float64
}

func (e *ConvictionEngine) Evaluate(in EvaluateInput) *Decision {
	cfg := e.config()
	opp := in.Opportunity
	scores := categoryScores(cfg, opp)
	conviction := Conviction(scores, in.Weights)

	d := &Decision{
		Conviction: conviction,
		Tier:       tierFor(cfg, conviction),
		Scores:     scores,
	}

	// Hard safety gates come first; the mint-authority hard fail rejects
	// regardless of the aggregate score.
	if opp.Safety == nil || opp.Safety.HardFail {
		reason := "safety checklist hard fail"
		code := RejectSafetyFailed
		if opp.Safety != nil {
			reason = opp.Safety.HardFailReason
			if reason == "mint authority active" {
				code = RejectMintAuthority
			}
		}
		return d.reject(code, reason)
	}
	if !opp.Safety.Pass {
		return d.reject(RejectSafetyFailed,
			fmt.Sprintf("safety score %d below minimum", opp.Safety.Score))
	}

	if in.Regime == domain.RegimePause {
		return d.reject(RejectRegimePause, "market regime is PAUSE")
	}

	threshold := cfg.BaseConvictionThreshold + in.Regime.ThresholdAdjustment()
	if conviction < threshold {
		return d.reject(RejectLowConviction,
			fmt.Sprintf("conviction %.1f below threshold %.1f", conviction, threshold))
	}

	if opp.Signal.Count < cfg.MinSmartWallets {
		return d.reject(RejectFewWallets,
			fmt.Sprintf("%d smart wallets, need %d", opp.Signal.Count, cfg.MinSmartWallets))
	}

	if opp.Entry.Age < cfg.MinTokenAge {
		return d.reject(RejectTooYoung, fmt.Sprintf("token age %s below minimum", opp.Entry.Age))
	}
	if opp.Entry.Age > cfg.MaxTokenAge {
		return d.reject(RejectTooOld, fmt.Sprintf("token age %s above maximum", opp.Entry.Age))
	}

	// The dip band rejects both chasing tops and catching falling knives.
	if opp.Entry.DipFromHighPct < cfg.MinDipPct {
		return d.reject(RejectShallowDip,
			fmt.Sprintf("dip %.1f%% below band minimum %.1f%%", opp.Entry.DipFromHighPct, cfg.MinDipPct))
	}
	if opp.Entry.DipFromHighPct > cfg.MaxDipPct {
		return d.reject(RejectDumped,
			fmt.Sprintf("dip %.1f%% beyond band maximum %.1f%%", opp.Entry.DipFromHighPct, cfg.MaxDipPct))
	}

	size := sizeFor(cfg, conviction) * in.Regime.SizeMultiplier()
	if size > in.RemainingExposure {
		size = in.RemainingExposure
	}
	if size <= 0 {
		return d.reject(RejectNoExposure, "no remaining daily exposure")
	}

	d.Admitted = true
	d.SizeSol = size
	return d
}

func (d *Decision) reject(code, reason string) *Decision {
	d.Admitted = false
	d.Code = code
	d.Reason = reason
	return d
}

// Conviction computes the weighted composite score.
func Conviction(scores domain.CategoryScores, weights *domain.LearningWeights) float64 {
	var total float64
	for name, c := range weights.Categories {
		total += c.Weight / 100 * scores[name]
	}
	return math.Round(total*10) / 10
}

// CategoryScores normalizes the opportunity snapshots into 0-100 scores per
// learning category.
func (e *ConvictionEngine) CategoryScores(opp *domain.TokenOpportunity) domain.CategoryScores {
	return categoryScores(e.config(), opp)
}

func categoryScores(cfg config.TradingConfig, opp *domain.TokenOpportunity) domain.CategoryScores {
	scores := domain.CategoryScores{}

	// Weighted wallet count: S-tier wallets count triple, A-tier double.
	weighted := float64(opp.Signal.TierS*3 + opp.Signal.TierA*2 + opp.Signal.TierB)
	scores[domain.CategoryWalletSignal] = clampScore(weighted / 6 * 100)

	if opp.Safety != nil {
		scores[domain.CategoryTokenSafety] = float64(opp.Safety.Score)
	}

	scores[domain.CategoryMarketConditions] = clampScore(
		liquidityScore(opp.Market.LiquiditySol)*0.4 +
			holdersScore(opp.Market.Holders)*0.3 +
			momentumScore(opp.Market.Change1h)*0.3)

	scores[domain.CategorySocialSignals] = clampScore(
		volumeScore(opp.Market.Volume24h)*0.6 + hypeScore(opp.Entry.HypePhase)*0.4)

	scores[domain.CategoryEntryQuality] = clampScore(dipScore(opp.Entry.DipFromHighPct, cfg.MinDipPct, cfg.MaxDipPct))

	return scores
}

func tierFor(cfg config.TradingConfig, conviction float64) domain.ConvictionTier {
	switch {
	case conviction >= cfg.HighConviction:
		return domain.TierHigh
	case conviction >= cfg.MediumConviction:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// sizeFor maps the conviction tier to a fraction of the max position size.
func sizeFor(cfg config.TradingConfig, conviction float64) float64 {
	switch tierFor(cfg, conviction) {
	case domain.TierHigh:
		return cfg.MaxPositionSol * cfg.HighSizeFactor
	case domain.TierMedium:
		return cfg.MaxPositionSol * cfg.MediumSizeFactor
	default:
		return cfg.MaxPositionSol * cfg.LowSizeFactor
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func liquidityScore(sol float64) float64 {
	return clampScore(sol / 500 * 100)
}

func holdersScore(holders int) float64 {
	return clampScore(float64(holders) / 1000 * 100)
}

func momentumScore(change1h float64) float64 {
	return clampScore(50 + change1h*2)
}

func volumeScore(vol24h float64) float64 {
	return clampScore(vol24h / 100_000 * 100)
}

func hypeScore(phase string) float64 {
	switch phase {
	case "EARLY":
		return 90
	case "PEAK":
		return 50
	case "COOLING":
		return 20
	default:
		return 40
	}
}

// dipScore peaks in the middle of the configured dip band.
func dipScore(dip, min, max float64) float64 {
	if dip < min || dip > max {
		return 0
	}
	mid := (min + max) / 2
	half := (max - min) / 2
	return clampScore(100 * (1 - math.Abs(dip-mid)/half*0.6))
}
