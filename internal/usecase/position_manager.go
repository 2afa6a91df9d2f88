package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

// Dust threshold: below this fraction of the entry amount a position counts
// as fully exited.
const dustFraction = 1e-6

type exitTrigger struct {
	reason   domain.ExitReason
	fraction float64 // fraction of the remaining amount to sell
	tpTier   int     // 1-4 for take-profit triggers, 0 otherwise
	detail   string
}

// PositionManager owns the set of open positions and runs the per-position
// exit evaluation loop. At most one exit submission is in flight per
// position at any time.
type PositionManager struct {
	repo     domain.PositionRepository
	trades   domain.TradeRepository
	executor domain.TradeExecutor
	market   domain.MarketDataProvider
	audit    *AuditService
	alert    domain.Alerter
	logger   *zap.Logger
	paper    bool

	killed func() bool // emergency liquidation preempts normal ticks

	// afterTick runs once per completed tick, after every position has been
	// marked to market. BotService wires it to the risk governor.
	afterTick func(context.Context)

	mu        sync.Mutex
	cfg       config.TradingConfig
	positions map[string]*domain.Position
	exitFails map[string]int
	onTrade   []func(context.Context, *domain.Trade)
	cancel    context.CancelFunc
}

func NewPositionManager(
	repo domain.PositionRepository,
	trades domain.TradeRepository,
	executor domain.TradeExecutor,
	market domain.MarketDataProvider,
	audit *AuditService,
	alert domain.Alerter,
	cfg config.TradingConfig,
	paper bool,
	logger *zap.Logger,
) *PositionManager {
	return &PositionManager{
		repo:      repo,
		trades:    trades,
		executor:  executor,
		market:    market,
		audit:     audit,
		alert:     alert,
		logger:    logger,
		paper:     paper,
		cfg:       cfg,
		positions: make(map[string]*domain.Position),
		exitFails: make(map[string]int),
	}
}

// SetKilledCheck installs the kill-switch flag read before every tick.
func (m *PositionManager) SetKilledCheck(fn func() bool) {
	m.killed = fn
}

// SetAfterTick installs the post-tick hook. Set during wiring, before Start.
func (m *PositionManager) SetAfterTick(fn func(context.Context)) {
	m.afterTick = fn
}

// OnTradeClosed registers a callback fired once per archived trade.
func (m *PositionManager) OnTradeClosed(fn func(context.Context, *domain.Trade)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrade = append(m.onTrade, fn)
}

// SetConfig swaps trading parameters for subsequent ticks.
func (m *PositionManager) SetConfig(cfg config.TradingConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Restore loads open positions from storage, e.g. after a restart.
func (m *PositionManager) Restore(ctx context.Context) error {
	positions, err := m.repo.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		if p.Paper != m.paper {
			continue
		}
		// An exit that was in flight when the process died is retried.
		if p.Status == domain.PositionClosing {
			p.Status = domain.PositionOpen
		}
		m.positions[p.ID] = p
	}
	m.logger.Info("restored open positions", zap.Int("count", len(m.positions)), zap.Bool("paper", m.paper))
	return nil
}

// Open registers a freshly executed entry as a supervised position.
func (m *PositionManager) Open(ctx context.Context, opp *domain.TokenOpportunity, d *Decision, fill *domain.TradeFill) (*domain.Position, error) {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	now := time.Now().UTC()
	p := &domain.Position{
		ID:              uuid.NewString(),
		TokenMint:       opp.TokenMint,
		TokenSymbol:     opp.TokenSymbol,
		EntryPrice:      fill.Price,
		EntryAmount:     fill.TokenAmount,
		EntrySol:        fill.SolAmount,
		EntryTime:       now,
		Conviction:      d.Conviction,
		EntryTier:       d.Tier,
		CategoryScores:  d.Scores,
		WalletCount:     opp.Signal.Count,
		HypePhase:       opp.Entry.HypePhase,
		RemainingAmount: fill.TokenAmount,
		CurrentPrice:    fill.Price,
		ATHPrice:        fill.Price,
		StopPrice:       fill.Price * (1 - cfg.StopLossPct/100),
		TrailingPct:     cfg.TrailingDistancePct,
		Status:          domain.PositionOpen,
		Paper:           m.paper,
	}

	if err := m.repo.SavePosition(ctx, p); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}

	m.mu.Lock()
	m.positions[p.ID] = p
	m.mu.Unlock()

	m.audit.Record(ctx, ActionPositionOpen, "position_manager", map[string]interface{}{
		"position_id": p.ID,
		"mint":        p.TokenMint,
		"entry_price": p.EntryPrice,
		"entry_sol":   p.EntrySol,
		"conviction":  p.Conviction,
		"paper":       p.Paper,
	}, "ok")
	return p, nil
}

// Start runs the tick loop until ctx is cancelled.
func (m *PositionManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		m.mu.Lock()
		interval := m.cfg.TickInterval
		m.mu.Unlock()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick(ctx)
			}
		}
	}()
}

func (m *PositionManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Tick evaluates every open position once.
func (m *PositionManager) Tick(ctx context.Context) {
	if m.killed != nil && m.killed() {
		// The kill switch owns all exits from here on; the tick's only
		// remaining job is re-submitting liquidations that failed.
		m.retryEmergency(ctx)
		return
	}
	for _, id := range m.openIDs() {
		m.evaluateOne(ctx, id)
	}
	if m.afterTick != nil {
		m.afterTick(ctx)
	}
}

// retryEmergency re-submits EMERGENCY_SELL for any position whose
// liquidation failed and reverted to OPEN.
func (m *PositionManager) retryEmergency(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.positions))
	for id, p := range m.positions {
		if p.Status == domain.PositionOpen {
			p.Status = domain.PositionClosing
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.logger.Warn("retrying emergency liquidation", zap.String("position", id))
		m.submitExit(ctx, id, &exitTrigger{
			reason:   domain.ExitEmergency,
			fraction: 1,
			detail:   "kill switch liquidation retry",
		}, domain.IntentEmergencySell)
	}
}

func (m *PositionManager) openIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.positions))
	for id := range m.positions {
		ids = append(ids, id)
	}
	return ids
}

func (m *PositionManager) evaluateOne(ctx context.Context, id string) {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if p.Status == domain.PositionClosing {
		// A trigger firing while an exit is in flight is queued, not
		// duplicated: the next tick re-derives it.
		m.mu.Unlock()
		return
	}
	mint := p.TokenMint
	priceTimeout := m.cfg.PriceTimeout
	m.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, priceTimeout)
	price, err := m.market.TokenPrice(cctx, mint)
	cancel()
	if err != nil {
		m.logger.Warn("price refresh failed", zap.String("mint", mint), zap.Error(err))
		return
	}

	m.mu.Lock()
	p, ok = m.positions[id]
	if !ok || p.Status != domain.PositionOpen {
		m.mu.Unlock()
		return
	}
	m.applyPrice(p, price)
	trigger := m.deriveTrigger(p)
	if trigger == nil {
		// Persist a snapshot; the shared struct may be mutated by the
		// price stream once the lock is released.
		cp := *p
		m.mu.Unlock()
		_ = m.repo.UpdatePosition(ctx, &cp)
		return
	}
	p.Status = domain.PositionClosing
	m.mu.Unlock()

	m.submitExit(ctx, id, trigger, domain.IntentSell)
}

// applyPrice updates price-derived fields. The trailing stop, once active,
// only ever tightens. Caller holds the lock.
func (m *PositionManager) applyPrice(p *domain.Position, price float64) {
	p.CurrentPrice = price
	if price > p.ATHPrice {
		p.ATHPrice = price
	}
	p.UnrealizedSol = p.UnrealizedPnL()

	if !p.TrailingActive && p.GainPct() >= m.cfg.TrailingActivatePct {
		p.TrailingActive = true
		m.logger.Info("trailing stop activated",
			zap.String("position", p.ID),
			zap.Float64("gain_pct", p.GainPct()))
	}
	if p.TrailingActive {
		candidate := p.ATHPrice * (1 - p.TrailingPct/100)
		if candidate > p.StopPrice {
			p.StopPrice = candidate
		}
	}
}

// deriveTrigger applies the evaluation order: hard stop, time stop, then
// take-profit tiers ascending. Caller holds the lock.
func (m *PositionManager) deriveTrigger(p *domain.Position) *exitTrigger {
	if p.CurrentPrice <= p.StopPrice {
		reason := domain.ExitStopLoss
		detail := fmt.Sprintf("price %.8f at or below stop %.8f", p.CurrentPrice, p.StopPrice)
		return &exitTrigger{reason: reason, fraction: 1, detail: detail}
	}

	if time.Since(p.EntryTime) > m.cfg.MaxHoldDuration {
		return &exitTrigger{
			reason:   domain.ExitTimeStop,
			fraction: 1,
			detail:   fmt.Sprintf("held longer than %s", m.cfg.MaxHoldDuration),
		}
	}

	gain := p.GainPct()
	for i, pct := range m.cfg.TakeProfitPcts {
		tier := i + 1
		if p.TPHit(tier) {
			continue
		}
		if gain < pct {
			break // tiers are ascending; nothing further can fire
		}
		return &exitTrigger{
			reason:   domain.ExitTakeProfit,
			fraction: m.cfg.TakeProfitFractions[i],
			tpTier:   tier,
			detail:   fmt.Sprintf("tp%d at +%.0f%%", tier, pct),
		}
	}
	return nil
}

// submitExit sells fraction × remaining. On failure the position reverts to
// OPEN and the next tick retries, up to a bounded failure count.
func (m *PositionManager) submitExit(ctx context.Context, id string, trigger *exitTrigger, intent domain.TradeIntent) {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	sellAmount := p.RemainingAmount * trigger.fraction
	order := &domain.TradeOrder{
		Intent:        intent,
		TokenMint:     p.TokenMint,
		TokenAmount:   sellAmount,
		ExpectedPrice: p.CurrentPrice,
	}
	maxFails := m.cfg.MaxExitFailures
	m.mu.Unlock()

	fill, err := m.executor.Execute(ctx, order)

	m.mu.Lock()
	p, ok = m.positions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err != nil {
		p.Status = domain.PositionOpen
		m.exitFails[id]++
		fails := m.exitFails[id]
		cp := *p
		m.mu.Unlock()

		m.logger.Error("exit submission failed, position reverted",
			zap.String("position", id),
			zap.String("reason", string(trigger.reason)),
			zap.Int("consecutive_failures", fails),
			zap.Error(err))
		// A failed emergency exit is real exposure with nothing managing
		// it; escalate on the first failure, not after maxFails.
		if fails >= maxFails || trigger.reason == domain.ExitEmergency {
			m.alert.Alert(ctx, "critical", fmt.Sprintf(
				"position %s: %d consecutive exit failures (%s)", id, fails, trigger.reason))
		}
		_ = m.repo.UpdatePosition(ctx, &cp)
		return
	}
	delete(m.exitFails, id)

	// RemainingAmount only ever decreases.
	p.RemainingAmount -= fill.TokenAmount
	if p.RemainingAmount < 0 {
		p.RemainingAmount = 0
	}
	costBasis := 0.0
	if p.EntryAmount > 0 {
		costBasis = p.EntrySol / p.EntryAmount * fill.TokenAmount
	}
	p.RealizedSol += fill.SolAmount - costBasis
	if trigger.tpTier > 0 {
		p.MarkTPHit(trigger.tpTier)
	}

	fullExit := trigger.fraction >= 1 || p.RemainingAmount <= p.EntryAmount*dustFraction
	var trade *domain.Trade
	if fullExit {
		trade = m.finalizeLocked(p, trigger.reason, fill.Price)
	} else {
		p.Status = domain.PositionOpen
	}
	cp := *p
	m.mu.Unlock()

	_ = m.repo.UpdatePosition(ctx, &cp)

	m.audit.Record(ctx, ActionPositionExit, "position_manager", map[string]interface{}{
		"position_id": id,
		"mint":        cp.TokenMint,
		"reason":      string(trigger.reason),
		"detail":      trigger.detail,
		"sold_tokens": fill.TokenAmount,
		"price":       fill.Price,
		"full_exit":   fullExit,
	}, "ok")

	if trade != nil {
		m.archiveTrade(ctx, trade)
	}
}

// finalizeLocked transitions the position to CLOSED and builds its trade
// record. Caller holds the lock.
func (m *PositionManager) finalizeLocked(p *domain.Position, reason domain.ExitReason, exitPrice float64) *domain.Trade {
	now := time.Now().UTC()
	p.Status = domain.PositionClosed
	p.ClosedAt = now
	p.RemainingAmount = 0
	p.UnrealizedSol = 0
	delete(m.positions, p.ID)

	pnlPct := 0.0
	if p.EntrySol > 0 {
		pnlPct = p.RealizedSol / p.EntrySol * 100
	}
	return &domain.Trade{
		ID:             uuid.NewString(),
		PositionID:     p.ID,
		TokenMint:      p.TokenMint,
		TokenSymbol:    p.TokenSymbol,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      exitPrice,
		Amount:         p.EntryAmount,
		EntrySol:       p.EntrySol,
		EntryTime:      p.EntryTime,
		ExitTime:       now,
		ExitReason:     reason,
		Outcome:        domain.OutcomeFor(reason, pnlPct),
		PnlSol:         p.RealizedSol,
		PnlPct:         pnlPct,
		Conviction:     p.Conviction,
		EntryTier:      p.EntryTier,
		CategoryScores: p.CategoryScores,
		WalletCount:    p.WalletCount,
		HypePhase:      p.HypePhase,
		Paper:          p.Paper,
	}
}

func (m *PositionManager) archiveTrade(ctx context.Context, trade *domain.Trade) {
	if err := m.trades.SaveTrade(ctx, trade); err != nil {
		m.logger.Error("failed to archive trade", zap.String("trade", trade.ID), zap.Error(err))
	}
	m.logger.Info("position closed",
		zap.String("mint", trade.TokenMint),
		zap.String("reason", string(trade.ExitReason)),
		zap.String("outcome", string(trade.Outcome)),
		zap.Float64("pnl_sol", trade.PnlSol),
		zap.Float64("pnl_pct", trade.PnlPct))

	m.mu.Lock()
	callbacks := make([]func(context.Context, *domain.Trade), len(m.onTrade))
	copy(callbacks, m.onTrade)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(ctx, trade)
	}
}

// ManualClose fully exits a position on operator request.
func (m *PositionManager) ManualClose(ctx context.Context, id string) error {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	if p.Status == domain.PositionClosing {
		m.mu.Unlock()
		return domain.ErrPositionClosing
	}
	p.Status = domain.PositionClosing
	m.mu.Unlock()

	m.submitExit(ctx, id, &exitTrigger{
		reason:   domain.ExitManual,
		fraction: 1,
		detail:   "manual close",
	}, domain.IntentSell)
	return nil
}

// CloseAllEmergency force-liquidates every open position, including those
// with an exit already in flight. It preempts the tick loop and is only
// called by the kill switch.
func (m *PositionManager) CloseAllEmergency(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.positions))
	for id, p := range m.positions {
		if p.Status != domain.PositionClosed {
			p.Status = domain.PositionClosing
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.mu.Lock()
		p := m.positions[id]
		var mint string
		if p != nil {
			mint = p.TokenMint
		}
		m.mu.Unlock()
		if p == nil {
			continue
		}

		m.audit.Record(ctx, ActionEmergencySell, "kill_switch", map[string]interface{}{
			"position_id": id,
			"mint":        mint,
		}, "submitted")
		m.submitExit(ctx, id, &exitTrigger{
			reason:   domain.ExitEmergency,
			fraction: 1,
			detail:   "kill switch liquidation",
		}, domain.IntentEmergencySell)
	}
	return len(ids)
}

// OnPriceTick lets the streaming price feed update cached prices between
// polling ticks. Triggers still only fire from the tick loop.
func (m *PositionManager) OnPriceTick(mint string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.TokenMint == mint && p.Status == domain.PositionOpen {
			m.applyPrice(p, price)
		}
	}
}

// Positions returns snapshot copies of all supervised positions.
func (m *PositionManager) Positions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// TotalUnrealized sums unrealized PnL across open positions in SOL.
func (m *PositionManager) TotalUnrealized() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// OpenExposure sums the entry quote still at risk.
func (m *PositionManager) OpenExposure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		if p.EntryAmount > 0 {
			total += p.EntrySol * (p.RemainingAmount / p.EntryAmount)
		}
	}
	return total
}
