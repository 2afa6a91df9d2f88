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

// Bot lifecycle states.
const (
	BotStopped = "STOPPED"
	BotRunning = "RUNNING"
	BotPaused  = "PAUSED" // no new entries, open positions still managed
)

// BotService owns the lifecycle of all trading components and is the single
// entry point for operator commands.
type BotService struct {
	cfg *config.Config

	regime    *RegimeDetector
	scanner   *Scanner
	positions *PositionManager
	risk      *RiskGovernor
	learning  *LearningScheduler
	engine    *ConvictionEngine
	shadow    *PaperShadow
	audit     *AuditService
	logger    *zap.Logger

	mu        sync.Mutex
	state     string
	startedAt time.Time
	cancel    context.CancelFunc
}

func NewBotService(
	cfg *config.Config,
	regime *RegimeDetector,
	scanner *Scanner,
	positions *PositionManager,
	risk *RiskGovernor,
	learning *LearningScheduler,
	engine *ConvictionEngine,
	shadow *PaperShadow,
	audit *AuditService,
	logger *zap.Logger,
) *BotService {
	b := &BotService{
		cfg:       cfg,
		regime:    regime,
		scanner:   scanner,
		positions: positions,
		risk:      risk,
		learning:  learning,
		engine:    engine,
		shadow:    shadow,
		audit:     audit,
		logger:    logger,
		state:     BotStopped,
	}

	// Cross-component wiring lives here so no component imports another's
	// concrete type beyond what it calls.
	risk.SetLiquidator(positions.CloseAllEmergency)
	risk.SetUnrealizedSource(positions.TotalUnrealized)
	positions.SetKilledCheck(risk.Killed)
	positions.SetAfterTick(risk.MarkToMarket)
	positions.OnTradeClosed(risk.OnTradeClosed)
	positions.OnTradeClosed(learning.OnTradeClosed)
	scanner.SetEntriesGate(b.entriesAllowed)
	if shadow != nil {
		scanner.SetShadow(shadow.OnAdmit)
	}
	return b
}

func (b *BotService) entriesAllowed() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BotRunning:
		return true, ""
	case BotPaused:
		return false, "bot_paused"
	default:
		return false, "bot_stopped"
	}
}

// Start restores state and launches every background loop.
func (b *BotService) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != BotStopped {
		b.mu.Unlock()
		return fmt.Errorf("bot already %s", b.state)
	}
	b.state = BotRunning
	b.startedAt = time.Now().UTC()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.mu.Unlock()

	if err := b.positions.Restore(runCtx); err != nil {
		b.setStopped()
		return err
	}
	if err := b.learning.Restore(runCtx); err != nil {
		b.setStopped()
		return err
	}

	b.regime.Start(runCtx)
	b.positions.Start(runCtx)
	b.scanner.Start(runCtx)
	if b.shadow != nil {
		b.shadow.Start(runCtx)
	}

	b.audit.Record(ctx, ActionBotStart, "api", map[string]interface{}{
		"paper": b.cfg.Trading.Paper,
	}, "ok")
	b.logger.Info("bot started", zap.Bool("paper", b.cfg.Trading.Paper))
	return nil
}

func (b *BotService) setStopped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BotStopped
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// Stop halts all loops. Open positions stay in storage and are restored on
// the next start.
func (b *BotService) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state == BotStopped {
		b.mu.Unlock()
		return fmt.Errorf("bot not running")
	}
	b.state = BotStopped
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.audit.Record(ctx, ActionBotStop, "api", nil, "ok")
	b.logger.Info("bot stopped")
	return nil
}

// Pause suspends new entries while open positions keep being managed.
func (b *BotService) Pause(ctx context.Context) error {
	b.mu.Lock()
	if b.state != BotRunning {
		b.mu.Unlock()
		return fmt.Errorf("bot is %s, cannot pause", b.state)
	}
	b.state = BotPaused
	b.mu.Unlock()

	b.audit.Record(ctx, ActionBotPause, "api", nil, "ok")
	b.logger.Info("entries paused")
	return nil
}

func (b *BotService) Resume(ctx context.Context) error {
	b.mu.Lock()
	if b.state != BotPaused {
		b.mu.Unlock()
		return fmt.Errorf("bot is %s, cannot resume", b.state)
	}
	b.state = BotRunning
	b.mu.Unlock()

	// Resuming also clears a weekly hard stop: it is the explicit manual
	// acknowledgement the stop requires.
	b.risk.ResumeWeekly(ctx)
	b.audit.Record(ctx, ActionBotResume, "api", nil, "ok")
	b.logger.Info("entries resumed")
	return nil
}

// Kill engages the kill switch: entries off first, then full liquidation.
// The bot stays up to supervise the emergency exits.
func (b *BotService) Kill(ctx context.Context, source string) int {
	return b.risk.KillSwitch(ctx, source)
}

func (b *BotService) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != BotStopped
}

// Settings is the mutable subset of configuration exposed over the API.
type Settings struct {
	Trading *config.TradingConfig `json:"trading,omitempty"`
	Risk    *config.RiskConfig    `json:"risk,omitempty"`
}

// UpdateSettings validates and applies new parameters atomically: either
// the whole update passes validation or nothing changes.
func (b *BotService) UpdateSettings(ctx context.Context, s Settings) error {
	b.mu.Lock()
	next := *b.cfg
	if s.Trading != nil {
		next.Trading = *s.Trading
	}
	if s.Risk != nil {
		next.Risk = *s.Risk
	}
	if err := next.Validate(); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("settings rejected: %w", err)
	}
	*b.cfg = next
	b.mu.Unlock()

	if s.Trading != nil {
		b.engine.SetConfig(next.Trading)
		b.positions.SetConfig(next.Trading)
	}
	if s.Risk != nil {
		b.risk.SetConfig(next.Risk)
	}

	b.audit.Record(ctx, ActionSettingsUpdate, "api", map[string]interface{}{
		"trading_changed": s.Trading != nil,
		"risk_changed":    s.Risk != nil,
	}, "ok")
	return nil
}

// Status is the aggregate state snapshot served by GET /api/status.
type Status struct {
	State       string             `json:"state"`
	Paper       bool               `json:"paper"`
	StartedAt   time.Time          `json:"started_at,omitempty"`
	Regime      domain.RegimeState `json:"regime"`
	Risk        RiskState          `json:"risk"`
	OpenCount   int                `json:"open_positions"`
	Unrealized  float64            `json:"unrealized_sol"`
	Exposure    float64            `json:"open_exposure_sol"`
	Learning    string             `json:"learning_mode"`
	ShadowCount int                `json:"shadow_positions,omitempty"`
}

func (b *BotService) Status() Status {
	b.mu.Lock()
	state := b.state
	startedAt := b.startedAt
	paper := b.cfg.Trading.Paper
	b.mu.Unlock()

	st := Status{
		State:      state,
		Paper:      paper,
		StartedAt:  startedAt,
		Regime:     b.regime.State(),
		Risk:       b.risk.State(),
		OpenCount:  len(b.positions.Positions()),
		Unrealized: b.positions.TotalUnrealized(),
		Exposure:   b.positions.OpenExposure(),
		Learning:   b.learning.Mode(),
	}
	if b.shadow != nil {
		st.ShadowCount = len(b.shadow.Positions())
	}
	return st
}
