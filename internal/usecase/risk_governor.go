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

// Entry-pause reasons reported by CanEnter and the status endpoint.
const (
	PauseNone         = ""
	PauseDailyLoss    = "daily_loss_limit"
	PauseDailyProfit  = "daily_profit_target"
	PauseLossStreak   = "loss_streak_cooldown"
	PauseWeeklyStop   = "weekly_drawdown_stop"
	PauseKillSwitch   = "kill_switch"
	PauseExposureFull = "daily_exposure_exhausted"
)

// RiskGovernor enforces the capital protection rules that sit above
// conviction: daily loss/profit limits, loss-streak cooldowns, the weekly
// hard stop and the kill switch. Daily windows reset at midnight UTC,
// weekly windows on the ISO week boundary.
type RiskGovernor struct {
	audit  *AuditService
	alert  domain.Alerter
	logger *zap.Logger

	// CloseAllEmergency hook, set after the position manager exists.
	liquidate func(context.Context) int

	// unrealized, when set, feeds open-position mark-to-market PnL into
	// the daily and weekly limits.
	unrealized func() float64

	mu  sync.Mutex
	cfg config.RiskConfig

	day       string // "2006-01-02" of the current daily window
	week      string // "2006-W05" of the current weekly window
	dailyPnl  float64
	weeklyPnl float64
	exposure  float64 // quote committed to entries within the daily window

	lossStreak    int
	cooldownUntil time.Time

	dailyPaused   string // pause reason, cleared at the daily reset
	weeklyStopped bool   // cleared only by manual resume
	killed        bool
}

func NewRiskGovernor(cfg config.RiskConfig, audit *AuditService, alert domain.Alerter, logger *zap.Logger) *RiskGovernor {
	now := time.Now().UTC()
	return &RiskGovernor{
		audit:  audit,
		alert:  alert,
		logger: logger,
		cfg:    cfg,
		day:    dayKey(now),
		week:   weekKey(now),
	}
}

// SetLiquidator wires the emergency close-all used by the kill switch.
func (g *RiskGovernor) SetLiquidator(fn func(context.Context) int) {
	g.liquidate = fn
}

// SetUnrealizedSource wires the open-position PnL feed. Set during wiring,
// before any loop starts.
func (g *RiskGovernor) SetUnrealizedSource(fn func() float64) {
	g.unrealized = fn
}

func (g *RiskGovernor) unrealizedPnl() float64 {
	if g.unrealized == nil {
		return 0
	}
	return g.unrealized()
}

func (g *RiskGovernor) SetConfig(cfg config.RiskConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// rollWindows is called with the lock held before any window-scoped read
// or write.
func (g *RiskGovernor) rollWindows(now time.Time) {
	if d := dayKey(now); d != g.day {
		g.day = d
		g.dailyPnl = 0
		g.exposure = 0
		g.dailyPaused = PauseNone
	}
	if w := weekKey(now); w != g.week {
		g.week = w
		g.weeklyPnl = 0
	}
}

// CanEnter reports whether new entries are currently permitted and, when
// not, the blocking reason.
func (g *RiskGovernor) CanEnter() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UTC()
	g.rollWindows(now)

	switch {
	case g.killed:
		return false, PauseKillSwitch
	case g.weeklyStopped:
		return false, PauseWeeklyStop
	case g.dailyPaused != PauseNone:
		return false, g.dailyPaused
	case now.Before(g.cooldownUntil):
		return false, PauseLossStreak
	case g.exposure >= g.cfg.MaxDailyExposureSol:
		return false, PauseExposureFull
	}
	return true, PauseNone
}

// RemainingDailyExposure returns the quote still available for entries
// within the current daily window.
func (g *RiskGovernor) RemainingDailyExposure() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollWindows(time.Now().UTC())
	remaining := g.cfg.MaxDailyExposureSol - g.exposure
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReserveExposure commits quote to an entry before it executes.
func (g *RiskGovernor) ReserveExposure(sol float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollWindows(time.Now().UTC())
	g.exposure += sol
}

// ReleaseExposure returns quote reserved for an entry that never filled.
func (g *RiskGovernor) ReleaseExposure(sol float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exposure -= sol
	if g.exposure < 0 {
		g.exposure = 0
	}
}

// OnTradeClosed rolls a closed trade into the daily and weekly windows and
// trips whichever limits it crosses. Paper trades never move real limits.
func (g *RiskGovernor) OnTradeClosed(ctx context.Context, t *domain.Trade) {
	if t.Paper {
		return
	}

	// Computed before taking the lock; the source grabs its own mutex.
	unreal := g.unrealizedPnl()

	g.mu.Lock()
	now := time.Now().UTC()
	g.rollWindows(now)
	g.dailyPnl += t.PnlSol
	g.weeklyPnl += t.PnlSol

	switch t.Outcome {
	case domain.OutcomeLoss:
		g.lossStreak++
	case domain.OutcomeWin:
		g.lossStreak = 0
	}
	// BREAKEVEN and EMERGENCY leave the streak untouched.

	tripped := g.tripLimitsLocked(unreal)
	if g.lossStreak >= g.cfg.MaxConsecutiveLosses && now.After(g.cooldownUntil) {
		g.cooldownUntil = now.Add(g.cfg.LossStreakCooldown)
		g.lossStreak = 0
		tripped = append(tripped, PauseLossStreak)
	}
	dailyPnl, weeklyPnl := g.dailyPnl+unreal, g.weeklyPnl+unreal
	g.mu.Unlock()

	g.reportTrips(ctx, tripped, dailyPnl, weeklyPnl)
}

// tripLimitsLocked latches whichever PnL limits the marked (realized plus
// unrealized) windows cross and returns the newly tripped reasons. Caller
// holds the lock.
func (g *RiskGovernor) tripLimitsLocked(unreal float64) []string {
	markDaily := g.dailyPnl + unreal
	markWeekly := g.weeklyPnl + unreal

	var tripped []string
	if g.dailyPaused == PauseNone && markDaily <= -g.cfg.MaxDailyLossSol {
		g.dailyPaused = PauseDailyLoss
		tripped = append(tripped, PauseDailyLoss)
	}
	if g.dailyPaused == PauseNone && markDaily >= g.cfg.MaxDailyProfitSol {
		g.dailyPaused = PauseDailyProfit
		tripped = append(tripped, PauseDailyProfit)
	}
	if !g.weeklyStopped && markWeekly <= -g.cfg.WeeklyDrawdownSol {
		g.weeklyStopped = true
		tripped = append(tripped, PauseWeeklyStop)
	}
	return tripped
}

func (g *RiskGovernor) reportTrips(ctx context.Context, tripped []string, dailyPnl, weeklyPnl float64) {
	for _, reason := range tripped {
		g.logger.Warn("risk limit tripped",
			zap.String("reason", reason),
			zap.Float64("daily_pnl", dailyPnl),
			zap.Float64("weekly_pnl", weeklyPnl))
		g.audit.Record(ctx, ActionRiskPause, "risk_governor", map[string]interface{}{
			"reason":     reason,
			"daily_pnl":  dailyPnl,
			"weekly_pnl": weeklyPnl,
		}, "entries_paused")
		if reason == PauseWeeklyStop {
			g.alert.Alert(ctx, "critical", "weekly drawdown stop tripped, manual resume required")
		}
	}
}

// MarkToMarket folds current unrealized PnL into the limit checks. The
// position tick calls it so a large open drawdown pauses entries before any
// position closes.
func (g *RiskGovernor) MarkToMarket(ctx context.Context) {
	unreal := g.unrealizedPnl()
	g.mu.Lock()
	g.rollWindows(time.Now().UTC())
	tripped := g.tripLimitsLocked(unreal)
	dailyPnl, weeklyPnl := g.dailyPnl+unreal, g.weeklyPnl+unreal
	g.mu.Unlock()

	g.reportTrips(ctx, tripped, dailyPnl, weeklyPnl)
}

// ResumeWeekly clears the weekly hard stop. Only an operator does this.
func (g *RiskGovernor) ResumeWeekly(ctx context.Context) {
	g.mu.Lock()
	was := g.weeklyStopped
	g.weeklyStopped = false
	g.mu.Unlock()
	if was {
		g.audit.Record(ctx, ActionRiskResume, "risk_governor", map[string]interface{}{
			"cleared": PauseWeeklyStop,
		}, "ok")
	}
}

// Killed reports whether the kill switch has fired.
func (g *RiskGovernor) Killed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killed
}

// KillSwitch disables entries first, then liquidates every open position.
// Calling it again while already killed is a no-op.
func (g *RiskGovernor) KillSwitch(ctx context.Context, source string) int {
	g.mu.Lock()
	if g.killed {
		g.mu.Unlock()
		return 0
	}
	g.killed = true
	g.mu.Unlock()

	g.logger.Warn("kill switch engaged", zap.String("source", source))
	g.audit.Record(ctx, ActionKillSwitch, source, map[string]interface{}{
		"event": "engaged",
	}, "entries_disabled")
	g.alert.Alert(ctx, "critical", "kill switch engaged: liquidating all positions")

	if g.liquidate == nil {
		return 0
	}
	return g.liquidate(ctx)
}

// RiskState is the status snapshot served by the API.
type RiskState struct {
	DailyPnlSol       float64   `json:"daily_pnl_sol"`
	WeeklyPnlSol      float64   `json:"weekly_pnl_sol"`
	ExposureSol       float64   `json:"exposure_sol"`
	RemainingExposure float64   `json:"remaining_exposure_sol"`
	LossStreak        int       `json:"loss_streak"`
	CooldownUntil     time.Time `json:"cooldown_until,omitempty"`
	PauseReason       string    `json:"pause_reason,omitempty"`
	WeeklyStopped     bool      `json:"weekly_stopped"`
	Killed            bool      `json:"killed"`
}

func (g *RiskGovernor) State() RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollWindows(time.Now().UTC())
	remaining := g.cfg.MaxDailyExposureSol - g.exposure
	if remaining < 0 {
		remaining = 0
	}
	reason := g.dailyPaused
	if g.killed {
		reason = PauseKillSwitch
	} else if g.weeklyStopped {
		reason = PauseWeeklyStop
	} else if reason == PauseNone && time.Now().UTC().Before(g.cooldownUntil) {
		reason = PauseLossStreak
	}
	return RiskState{
		DailyPnlSol:       g.dailyPnl,
		WeeklyPnlSol:      g.weeklyPnl,
		ExposureSol:       g.exposure,
		RemainingExposure: remaining,
		LossStreak:        g.lossStreak,
		CooldownUntil:     g.cooldownUntil,
		PauseReason:       reason,
		WeeklyStopped:     g.weeklyStopped,
		Killed:            g.killed,
	}
}
