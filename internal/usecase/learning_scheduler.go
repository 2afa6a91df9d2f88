package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

// Learning modes. In shadow mode adjustments are computed and logged but
// never applied; in paused mode batches do not accumulate.
const (
	LearningActive = "active"
	LearningShadow = "shadow"
	LearningPaused = "paused"
)

// LearningScheduler recalibrates conviction category weights from closed
// trades. Emergency exits and paper trades never count toward a batch.
type LearningScheduler struct {
	repo   domain.LearningRepository
	trades domain.TradeRepository
	audit  *AuditService
	logger *zap.Logger

	mu      sync.Mutex
	cfg     config.LearningConfig
	mode    string
	weights *domain.LearningWeights
	batch   []*domain.Trade
}

func NewLearningScheduler(
	repo domain.LearningRepository,
	trades domain.TradeRepository,
	audit *AuditService,
	cfg config.LearningConfig,
	logger *zap.Logger,
) *LearningScheduler {
	return &LearningScheduler{
		repo:    repo,
		trades:  trades,
		audit:   audit,
		logger:  logger,
		cfg:     cfg,
		mode:    cfg.Mode,
		weights: domain.DefaultWeights(),
	}
}

// Restore loads the persisted weight vector, falling back to defaults.
func (s *LearningScheduler) Restore(ctx context.Context) error {
	w, err := s.repo.GetWeights(ctx)
	if err == domain.ErrNotFound {
		return s.repo.SaveWeights(ctx, s.Weights())
	}
	if err != nil {
		return fmt.Errorf("restore weights: %w", err)
	}
	s.mu.Lock()
	s.weights = w
	s.mu.Unlock()
	return nil
}

// Weights returns a deep copy of the current vector.
func (s *LearningScheduler) Weights() *domain.LearningWeights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights.Clone()
}

// Mode returns the current learning mode.
func (s *LearningScheduler) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches between active, shadow and paused.
func (s *LearningScheduler) SetMode(mode string) error {
	switch mode {
	case LearningActive, LearningShadow, LearningPaused:
	default:
		return fmt.Errorf("unknown learning mode %q", mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	s.logger.Info("learning mode changed", zap.String("mode", mode))
	return nil
}

// Patterns lists the currently mined pattern summaries.
func (s *LearningScheduler) Patterns(ctx context.Context) ([]*domain.LearningPattern, error) {
	return s.repo.ListPatterns(ctx)
}

// Lock freezes a category at its current weight. Locked categories are
// skipped by adjustment and renormalization.
func (s *LearningScheduler) Lock(ctx context.Context, category string, locked bool) error {
	s.mu.Lock()
	c, ok := s.weights.Categories[category]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	c.Locked = locked
	w := s.weights.Clone()
	s.mu.Unlock()
	return s.repo.SaveWeights(ctx, w)
}

// Reset restores all weights to baseline and clears locks.
func (s *LearningScheduler) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.weights = domain.DefaultWeights()
	s.batch = nil
	w := s.weights.Clone()
	s.mu.Unlock()

	if err := s.repo.SaveWeights(ctx, w); err != nil {
		return err
	}
	s.audit.Record(ctx, ActionLearningAdjust, "learning", map[string]interface{}{
		"event": "reset_to_baseline",
	}, "ok")
	return nil
}

// OnTradeClosed feeds one closed trade into the current batch. A full batch
// triggers recalibration.
func (s *LearningScheduler) OnTradeClosed(ctx context.Context, t *domain.Trade) {
	if t.Paper || t.Outcome == domain.OutcomeEmergency {
		return
	}

	s.mu.Lock()
	if s.mode == LearningPaused {
		s.mu.Unlock()
		return
	}
	s.batch = append(s.batch, t)
	ready := len(s.batch) >= s.cfg.BatchSize
	var batch []*domain.Trade
	if ready {
		batch = s.batch
		s.batch = nil
	}
	s.mu.Unlock()

	if ready {
		s.recalibrate(ctx, batch)
	}
}

// recalibrate shifts each unlocked weight toward its observed predictive
// power and renormalizes so the vector still sums to 100.
func (s *LearningScheduler) recalibrate(ctx context.Context, batch []*domain.Trade) {
	corr := make(map[string]float64, len(domain.WeightCategories))
	var sum float64
	for _, cat := range domain.WeightCategories {
		corr[cat] = pointBiserial(batch, cat)
		sum += corr[cat]
	}
	avg := sum / float64(len(domain.WeightCategories))

	s.mu.Lock()
	mode := s.mode
	proposed := s.weights.Clone()
	s.mu.Unlock()

	changes := make(map[string]interface{}, len(corr))
	for cat, c := range proposed.Categories {
		c.Predictive = corr[cat]
		if c.Locked {
			continue
		}
		delta := s.cfg.AdjustStep * (corr[cat] - avg)
		delta = clamp(delta, -s.cfg.AdjustStep, s.cfg.AdjustStep)

		next := c.Weight + delta
		// Drift from baseline is capped in both directions.
		lo := c.Baseline * (1 - s.cfg.MaxDriftPct/100)
		hi := c.Baseline * (1 + s.cfg.MaxDriftPct/100)
		c.Weight = clamp(next, lo, hi)
		changes[cat] = map[string]float64{"weight": c.Weight, "corr": corr[cat]}
	}
	renormalizeWithin(proposed, s.cfg.MaxDriftPct)

	if mode == LearningShadow {
		s.logger.Info("shadow recalibration computed, not applied",
			zap.Int("batch", len(batch)), zap.Any("proposed", changes))
		return
	}

	s.mu.Lock()
	s.weights = proposed
	saved := proposed.Clone()
	s.mu.Unlock()

	if err := s.repo.SaveWeights(ctx, saved); err != nil {
		s.logger.Error("failed to persist recalibrated weights", zap.Error(err))
	}
	s.audit.Record(ctx, ActionLearningAdjust, "learning", map[string]interface{}{
		"batch_size": len(batch),
		"changes":    changes,
	}, "ok")
	s.logger.Info("weights recalibrated", zap.Int("batch", len(batch)))

	s.minePatterns(ctx, batch)
}

// renormalizeWithin scales unlocked weights so the vector sums to 100 while
// keeping each inside its drift band. Scaling can push a capped weight back
// out of the band, so clamp and rescale until it settles.
func renormalizeWithin(w *domain.LearningWeights, maxDriftPct float64) {
	for i := 0; i < 8; i++ {
		renormalize(w)
		clamped := false
		for _, c := range w.Categories {
			if c.Locked {
				continue
			}
			lo := c.Baseline * (1 - maxDriftPct/100)
			hi := c.Baseline * (1 + maxDriftPct/100)
			if next := clamp(c.Weight, lo, hi); next != c.Weight {
				c.Weight = next
				clamped = true
			}
		}
		if !clamped {
			return
		}
	}
}

// renormalize scales unlocked weights so the vector sums to 100 with locked
// weights untouched.
func renormalize(w *domain.LearningWeights) {
	var lockedSum, unlockedSum float64
	for _, c := range w.Categories {
		if c.Locked {
			lockedSum += c.Weight
		} else {
			unlockedSum += c.Weight
		}
	}
	target := 100 - lockedSum
	if unlockedSum <= 0 || target <= 0 {
		return
	}
	factor := target / unlockedSum
	for _, c := range w.Categories {
		if !c.Locked {
			c.Weight *= factor
		}
	}
}

// pointBiserial correlates a category's entry score with the win/loss
// outcome across the batch. Returns 0 when either side has no variance.
func pointBiserial(batch []*domain.Trade, category string) float64 {
	var winScores, lossScores []float64
	var all []float64
	for _, t := range batch {
		score, ok := t.CategoryScores[category]
		if !ok {
			continue
		}
		all = append(all, score)
		switch t.Outcome {
		case domain.OutcomeWin:
			winScores = append(winScores, score)
		case domain.OutcomeLoss:
			lossScores = append(lossScores, score)
		}
	}
	n := float64(len(all))
	if n < 2 || len(winScores) == 0 || len(lossScores) == 0 {
		return 0
	}

	sd := stddev(all)
	if sd == 0 {
		return 0
	}
	p := float64(len(winScores)) / n
	q := float64(len(lossScores)) / n
	return (mean(winScores) - mean(lossScores)) / sd * math.Sqrt(p*q)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// minePatterns aggregates batch trades by feature combination and records
// combinations with strongly skewed outcomes.
func (s *LearningScheduler) minePatterns(ctx context.Context, batch []*domain.Trade) {
	type agg struct {
		n       int
		wins    int
		retSum  float64
	}
	groups := make(map[string]*agg)
	for _, t := range batch {
		key := fmt.Sprintf("tier=%s hype=%s wallets=%s",
			t.EntryTier, t.HypePhase, walletBucket(t.WalletCount))
		g := groups[key]
		if g == nil {
			g = &agg{}
			groups[key] = g
		}
		g.n++
		if t.Outcome == domain.OutcomeWin {
			g.wins++
		}
		g.retSum += t.PnlPct
	}

	var patterns []*domain.LearningPattern
	for key, g := range groups {
		if g.n < s.cfg.MinPatternObs {
			continue
		}
		winRate := float64(g.wins) / float64(g.n)
		var kind domain.PatternKind
		switch {
		case winRate >= 0.65:
			kind = domain.PatternWin
		case winRate <= 0.35:
			kind = domain.PatternDanger
		default:
			continue
		}
		patterns = append(patterns, &domain.LearningPattern{
			Kind:        kind,
			Features:    key,
			Occurrences: g.n,
			WinRate:     winRate,
			AvgReturn:   g.retSum / float64(g.n),
		})
	}
	if len(patterns) == 0 {
		return
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Occurrences > patterns[j].Occurrences })

	if err := s.repo.ReplacePatterns(ctx, patterns); err != nil {
		s.logger.Error("failed to persist learning patterns", zap.Error(err))
		return
	}
	s.logger.Info("learning patterns updated", zap.Int("count", len(patterns)))
}

func walletBucket(n int) string {
	switch {
	case n >= 8:
		return "8+"
	case n >= 5:
		return "5-7"
	case n >= 3:
		return "3-4"
	default:
		return "<3"
	}
}
