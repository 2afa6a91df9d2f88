package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

// RegimeDetector polls macro reference prices and classifies the market
// regime. All getters read cached state and never touch the network.
type RegimeDetector struct {
	market domain.MarketDataProvider
	audit  *AuditService
	logger *zap.Logger
	cfg    config.RegimeConfig

	mu       sync.RWMutex
	state    domain.RegimeState
	override *domain.Regime
	cancel   context.CancelFunc
}

func NewRegimeDetector(market domain.MarketDataProvider, audit *AuditService, cfg config.RegimeConfig, logger *zap.Logger) *RegimeDetector {
	return &RegimeDetector{
		market: market,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		state: domain.RegimeState{
			Regime:    domain.RegimeFull,
			Reason:    "startup default",
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func (d *RegimeDetector) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()

		d.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.refresh(ctx)
			}
		}
	}()
}

func (d *RegimeDetector) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *RegimeDetector) refresh(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()

	sol, btc, err := d.market.MajorsChange24h(cctx)
	if err != nil {
		// Hold the last known regime rather than defaulting to FULL.
		d.logger.Warn("regime fetch failed, holding last regime", zap.Error(err))
		return
	}

	next, reason := ClassifyRegime(sol, btc)

	d.mu.Lock()
	prev := d.state.Regime
	d.state = domain.RegimeState{
		Regime:       next,
		SolChange24h: sol,
		BtcChange24h: btc,
		SolTrend:     trendLabel(sol),
		BtcTrend:     trendLabel(btc),
		Reason:       reason,
		Overridden:   d.override != nil,
		UpdatedAt:    time.Now().UTC(),
	}
	d.mu.Unlock()

	if next != prev {
		d.logger.Info("market regime changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
			zap.Float64("sol_change_24h", sol),
			zap.Float64("btc_change_24h", btc),
			zap.String("reason", reason))
		d.audit.Record(ctx, ActionRegimeChange, "regime_detector", map[string]interface{}{
			"from":   string(prev),
			"to":     string(next),
			"reason": reason,
		}, "ok")
	}
}

// ClassifyRegime applies the ordered rule table; the first match wins.
func ClassifyRegime(solChange, btcChange float64) (domain.Regime, string) {
	switch {
	case solChange <= -15:
		return domain.RegimePause, fmt.Sprintf("SOL down %.1f%% in 24h", solChange)
	case solChange <= -7:
		return domain.RegimeDefensive, fmt.Sprintf("SOL down %.1f%% in 24h", solChange)
	case btcChange <= -10:
		return domain.RegimeDefensive, fmt.Sprintf("BTC down %.1f%% in 24h", btcChange)
	case solChange <= -3 || btcChange <= -5:
		return domain.RegimeCautious, fmt.Sprintf("SOL %.1f%% / BTC %.1f%% in 24h", solChange, btcChange)
	default:
		return domain.RegimeFull, "majors stable"
	}
}

func trendLabel(change float64) string {
	switch {
	case change >= 3:
		return "UP"
	case change <= -3:
		return "DOWN"
	default:
		return "FLAT"
	}
}

// Regime returns the effective regime, honoring a manual override.
func (d *RegimeDetector) Regime() domain.Regime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.override != nil {
		return *d.override
	}
	return d.state.Regime
}

func (d *RegimeDetector) SizeMultiplier() float64 {
	return d.Regime().SizeMultiplier()
}

func (d *RegimeDetector) ThresholdAdjustment() float64 {
	return d.Regime().ThresholdAdjustment()
}

// State returns the full cached snapshot.
func (d *RegimeDetector) State() domain.RegimeState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.state
	if d.override != nil {
		s.Regime = *d.override
		s.Overridden = true
		s.Reason = "manual override"
	}
	return s
}

// Override pins the regime until ClearOverride is called.
func (d *RegimeDetector) Override(r domain.Regime) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.override = &r
}

func (d *RegimeDetector) ClearOverride() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.override = nil
}
