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

type scanItem struct {
	mint     string
	signal   domain.WalletSignal
	enqueued time.Time
	manual   bool
}

// Scanner discovers candidate tokens from smart-wallet buys and drives each
// one through safety, conviction and entry. Discovery and analysis are
// decoupled by a bounded queue; when the queue is full new candidates are
// dropped, never blocked on.
type Scanner struct {
	discovery  domain.DiscoveryProvider
	market     domain.MarketDataProvider
	wallets    domain.WalletRepository
	opps       domain.OpportunityRepository
	safety     *SafetyScorer
	conviction *ConvictionEngine
	regime     *RegimeDetector
	risk       *RiskGovernor
	learning   *LearningScheduler
	executor   domain.TradeExecutor
	positions  *PositionManager
	audit      *AuditService
	logger     *zap.Logger

	cfg   config.ScannerConfig
	queue chan scanItem

	// entriesGate is consulted before any entry; BotService wires it to
	// its run/pause state.
	entriesGate func() (bool, string)

	// shadow, when set, mirrors every admitted decision into the paper
	// book alongside the live entry.
	shadow func(ctx context.Context, opp *domain.TokenOpportunity, d *Decision)

	mu       sync.Mutex
	lastSeen map[string]time.Time // mint -> last time it entered the queue
	stats    ScannerStats
	cancel   context.CancelFunc
}

// ScannerStats counts what happened to candidates since startup.
type ScannerStats struct {
	Enqueued   int64 `json:"enqueued"`
	Dropped    int64 `json:"dropped"`
	Analyzed   int64 `json:"analyzed"`
	Entered    int64 `json:"entered"`
	Rejected   int64 `json:"rejected"`
	Expired    int64 `json:"expired"`
	QueueDepth int   `json:"queue_depth"`
}

func NewScanner(
	discovery domain.DiscoveryProvider,
	market domain.MarketDataProvider,
	wallets domain.WalletRepository,
	opps domain.OpportunityRepository,
	safety *SafetyScorer,
	conviction *ConvictionEngine,
	regime *RegimeDetector,
	risk *RiskGovernor,
	learning *LearningScheduler,
	executor domain.TradeExecutor,
	positions *PositionManager,
	audit *AuditService,
	cfg config.ScannerConfig,
	logger *zap.Logger,
) *Scanner {
	return &Scanner{
		discovery:  discovery,
		market:     market,
		wallets:    wallets,
		opps:       opps,
		safety:     safety,
		conviction: conviction,
		regime:     regime,
		risk:       risk,
		learning:   learning,
		executor:   executor,
		positions:  positions,
		audit:      audit,
		logger:     logger,
		cfg:        cfg,
		queue:      make(chan scanItem, cfg.QueueSize),
		lastSeen:   make(map[string]time.Time),
		entriesGate: func() (bool, string) { return true, "" },
	}
}

// SetEntriesGate installs the bot-level run/pause check.
func (s *Scanner) SetEntriesGate(fn func() (bool, string)) {
	s.entriesGate = fn
}

// SetShadow installs the paper-book mirror for admitted decisions.
func (s *Scanner) SetShadow(fn func(ctx context.Context, opp *domain.TokenOpportunity, d *Decision)) {
	s.shadow = fn
}

// Start launches the discovery poller and the analysis worker.
func (s *Scanner) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.pollLoop(ctx)
	go s.workLoop(ctx)
}

func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scanner) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scanner) poll(ctx context.Context) {
	wallets, err := s.wallets.ListWallets(ctx)
	if err != nil {
		s.logger.Warn("wallet list unavailable, skipping discovery cycle", zap.Error(err))
		return
	}
	if len(wallets) == 0 {
		return
	}

	since := time.Now().Add(-s.cfg.AnalysisWindow)
	signals, err := s.discovery.RecentBuys(ctx, wallets, since)
	if err != nil {
		s.logger.Warn("discovery fetch failed", zap.Error(err))
		return
	}

	for mint, signal := range signals {
		s.enqueue(scanItem{mint: mint, signal: signal, enqueued: time.Now()})
	}
}

func (s *Scanner) enqueue(item scanItem) {
	if err := domain.ValidateAddress(item.mint); err != nil {
		return
	}
	s.mu.Lock()
	if last, ok := s.lastSeen[item.mint]; ok && time.Since(last) < s.cfg.AnalysisWindow && !item.manual {
		s.mu.Unlock()
		return
	}
	s.lastSeen[item.mint] = time.Now()
	// Opportunistic cleanup of stale dedupe entries.
	for mint, t := range s.lastSeen {
		if time.Since(t) > 2*s.cfg.AnalysisWindow {
			delete(s.lastSeen, mint)
		}
	}
	s.mu.Unlock()

	select {
	case s.queue <- item:
		s.bump(func(st *ScannerStats) { st.Enqueued++ })
	default:
		s.bump(func(st *ScannerStats) { st.Dropped++ })
		s.logger.Warn("analysis queue full, dropping candidate", zap.String("mint", item.mint))
	}
}

func (s *Scanner) bump(fn func(*ScannerStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Stats returns a snapshot of the scanner counters.
func (s *Scanner) Stats() ScannerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.QueueDepth = len(s.queue)
	return st
}

// Enqueue submits a mint for analysis on operator request. Manual requests
// bypass the dedupe window but still respect the queue bound.
func (s *Scanner) Enqueue(ctx context.Context, mint string) error {
	if err := domain.ValidateAddress(mint); err != nil {
		return err
	}
	s.audit.Record(ctx, ActionAnalyzeRequest, "api", map[string]interface{}{
		"mint": mint,
	}, "queued")

	item := scanItem{mint: mint, enqueued: time.Now(), manual: true}
	select {
	case s.queue <- item:
		s.bump(func(st *ScannerStats) { st.Enqueued++ })
		return nil
	default:
		s.bump(func(st *ScannerStats) { st.Dropped++ })
		return fmt.Errorf("analysis queue full")
	}
}

func (s *Scanner) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			s.analyze(ctx, item)
		}
	}
}

func (s *Scanner) analyze(ctx context.Context, item scanItem) {
	s.bump(func(st *ScannerStats) { st.Analyzed++ })
	now := time.Now().UTC()
	opp := &domain.TokenOpportunity{
		ID:        uuid.NewString(),
		TokenMint: item.mint,
		Signal:    item.signal,
		Status:    domain.OppAnalyzing,
		CreatedAt: now,
		Deadline:  item.enqueued.Add(s.cfg.AnalysisWindow),
	}

	// A candidate that sat in the queue past its window is stale.
	if now.After(opp.Deadline) {
		s.bump(func(st *ScannerStats) { st.Expired++ })
		opp.Status = domain.OppExpired
		if err := s.opps.SaveOpportunity(ctx, opp); err != nil {
			s.logger.Error("failed to save expired opportunity", zap.Error(err))
		}
		return
	}
	if err := s.opps.SaveOpportunity(ctx, opp); err != nil {
		s.logger.Error("failed to save opportunity", zap.String("mint", item.mint), zap.Error(err))
		return
	}

	market, entry, err := s.market.TokenSnapshot(ctx, item.mint)
	if err != nil {
		s.logger.Warn("token snapshot unavailable", zap.String("mint", item.mint), zap.Error(err))
		s.expire(ctx, opp)
		return
	}
	opp.Market = *market
	opp.Entry = *entry

	safety, err := s.safety.Score(ctx, item.mint)
	if err != nil {
		s.logger.Warn("safety scoring failed", zap.String("mint", item.mint), zap.Error(err))
		s.expire(ctx, opp)
		return
	}
	opp.Safety = safety

	d := s.conviction.Evaluate(EvaluateInput{
		Opportunity:       opp,
		Weights:           s.learning.Weights(),
		Regime:            s.regime.Regime(),
		RemainingExposure: s.risk.RemainingDailyExposure(),
	})
	opp.Conviction = d.Conviction
	opp.CategoryScores = d.Scores
	opp.Tier = d.Tier

	if !d.Admitted {
		s.rejectOpp(ctx, opp, d.Code, d.Reason)
		return
	}

	// The conviction engine said yes; risk and operator state get the
	// final word.
	if ok, reason := s.risk.CanEnter(); !ok {
		s.rejectOpp(ctx, opp, reason, "risk governor: entries paused")
		return
	}
	if ok, reason := s.entriesGate(); !ok {
		s.rejectOpp(ctx, opp, reason, "bot not accepting entries")
		return
	}

	opp.Status = domain.OppQualified
	if err := s.opps.UpdateOpportunity(ctx, opp); err != nil {
		s.logger.Error("failed to update opportunity", zap.Error(err))
	}

	if s.shadow != nil {
		s.shadow(ctx, opp, d)
	}
	s.enter(ctx, opp, d)
}

func (s *Scanner) enter(ctx context.Context, opp *domain.TokenOpportunity, d *Decision) {
	s.risk.ReserveExposure(d.SizeSol)

	order := &domain.TradeOrder{
		Intent:        domain.IntentBuy,
		TokenMint:     opp.TokenMint,
		SolAmount:     d.SizeSol,
		ExpectedPrice: opp.Market.Price,
	}
	fill, err := s.executor.Execute(ctx, order)
	if err != nil {
		s.risk.ReleaseExposure(d.SizeSol)
		s.logger.Error("entry execution failed",
			zap.String("mint", opp.TokenMint),
			zap.Float64("size_sol", d.SizeSol),
			zap.Error(err))
		return
	}

	if _, err := s.positions.Open(ctx, opp, d, fill); err != nil {
		s.logger.Error("failed to open position after fill",
			zap.String("mint", opp.TokenMint), zap.Error(err))
		return
	}

	opp.Status = domain.OppEntered
	if err := s.opps.UpdateOpportunity(ctx, opp); err != nil {
		s.logger.Error("failed to update opportunity", zap.Error(err))
	}
	s.bump(func(st *ScannerStats) { st.Entered++ })
	s.logger.Info("entered position",
		zap.String("mint", opp.TokenMint),
		zap.Float64("conviction", d.Conviction),
		zap.String("tier", string(d.Tier)),
		zap.Float64("size_sol", d.SizeSol))
}

func (s *Scanner) rejectOpp(ctx context.Context, opp *domain.TokenOpportunity, code, reason string) {
	s.bump(func(st *ScannerStats) { st.Rejected++ })
	opp.Status = domain.OppRejected
	opp.RejectCode = code
	opp.RejectReason = reason
	if err := s.opps.UpdateOpportunity(ctx, opp); err != nil {
		s.logger.Error("failed to update rejected opportunity", zap.Error(err))
	}
	if err := s.opps.SaveRejection(ctx, &domain.Rejection{
		TokenMint: opp.TokenMint,
		Code:      code,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Error("failed to save rejection", zap.Error(err))
	}
	s.logger.Debug("candidate rejected",
		zap.String("mint", opp.TokenMint),
		zap.String("code", code),
		zap.String("reason", reason))
}

func (s *Scanner) expire(ctx context.Context, opp *domain.TokenOpportunity) {
	s.bump(func(st *ScannerStats) { st.Expired++ })
	opp.Status = domain.OppExpired
	if err := s.opps.UpdateOpportunity(ctx, opp); err != nil {
		s.logger.Error("failed to expire opportunity", zap.Error(err))
	}
}
