package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

func testLearningConfig() config.LearningConfig {
	cfg := config.Default().Learning
	cfg.BatchSize = 10
	cfg.MinPatternObs = 3
	return cfg
}

func newTestScheduler(store *memStore, cfg config.LearningConfig) *LearningScheduler {
	return NewLearningScheduler(store, store, testAudit(store), cfg, testLogger())
}

// batchTrade builds a closed trade where high wallet_signal scores line up
// with wins and low ones with losses.
func batchTrade(i int, win bool) *domain.Trade {
	scores := domain.CategoryScores{
		domain.CategoryWalletSignal:     20,
		domain.CategoryTokenSafety:      70,
		domain.CategoryMarketConditions: 50,
		domain.CategorySocialSignals:    50,
		domain.CategoryEntryQuality:     50,
	}
	outcome := domain.OutcomeLoss
	pnl := -10.0
	if win {
		scores[domain.CategoryWalletSignal] = 90
		outcome = domain.OutcomeWin
		pnl = 25.0
	}
	return &domain.Trade{
		ID:             fmt.Sprintf("trade-%d", i),
		TokenMint:      mintAddr,
		ExitReason:     domain.ExitTakeProfit,
		Outcome:        outcome,
		PnlPct:         pnl,
		PnlSol:         pnl / 100,
		EntryTier:      domain.TierMedium,
		CategoryScores: scores,
		WalletCount:    5,
		HypePhase:      "EARLY",
	}
}

func feedBatch(s *LearningScheduler, n int) {
	for i := 0; i < n; i++ {
		s.OnTradeClosed(context.Background(), batchTrade(i, i%2 == 0))
	}
}

func TestRecalibrationKeepsSumAtHundred(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	feedBatch(s, 10)

	w := s.Weights()
	assert.InDelta(t, 100.0, w.Sum(), 1e-6)
	// wallet_signal predicted the outcome; its weight must not shrink.
	assert.GreaterOrEqual(t,
		w.Categories[domain.CategoryWalletSignal].Weight,
		w.Categories[domain.CategoryWalletSignal].Baseline)
}

func TestRecalibrationWaitsForFullBatch(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	feedBatch(s, 9)
	w := s.Weights()
	for name, c := range w.Categories {
		assert.Equal(t, c.Baseline, c.Weight, "category %s moved before batch filled", name)
	}
}

func TestPaperAndEmergencyTradesExcluded(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	for i := 0; i < 20; i++ {
		tr := batchTrade(i, true)
		if i%2 == 0 {
			tr.Paper = true
		} else {
			tr.Outcome = domain.OutcomeEmergency
			tr.ExitReason = domain.ExitEmergency
		}
		s.OnTradeClosed(context.Background(), tr)
	}

	w := s.Weights()
	for name, c := range w.Categories {
		assert.Equal(t, c.Baseline, c.Weight, "category %s moved on excluded trades", name)
	}
}

func TestDriftCap(t *testing.T) {
	store := newMemStore()
	cfg := testLearningConfig()
	cfg.AdjustStep = 50 // absurdly large step to slam into the cap
	s := newTestScheduler(store, cfg)

	feedBatch(s, 10)

	w := s.Weights()
	for name, c := range w.Categories {
		lo := c.Baseline * (1 - cfg.MaxDriftPct/100)
		hi := c.Baseline * (1 + cfg.MaxDriftPct/100)
		// Renormalization may pull a capped weight slightly back inside
		// the band, never further outside it.
		assert.GreaterOrEqual(t, c.Weight, lo*0.99, "category %s under drift floor", name)
		assert.LessOrEqual(t, c.Weight, hi*1.01, "category %s over drift ceiling", name)
	}
}

func TestLockedCategoryIsFrozen(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	require.NoError(t, s.Lock(context.Background(), domain.CategoryWalletSignal, true))
	feedBatch(s, 10)

	w := s.Weights()
	locked := w.Categories[domain.CategoryWalletSignal]
	assert.True(t, locked.Locked)
	assert.Equal(t, locked.Baseline, locked.Weight)
	assert.InDelta(t, 100.0, w.Sum(), 1e-6)
}

func TestLockUnknownCategory(t *testing.T) {
	s := newTestScheduler(newMemStore(), testLearningConfig())
	assert.ErrorIs(t, s.Lock(context.Background(), "no_such_category", true), domain.ErrNotFound)
}

func TestShadowModeComputesButDoesNotApply(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())
	require.NoError(t, s.SetMode(LearningShadow))

	feedBatch(s, 10)

	w := s.Weights()
	for name, c := range w.Categories {
		assert.Equal(t, c.Baseline, c.Weight, "category %s applied in shadow mode", name)
	}
}

func TestPausedModeDropsTrades(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())
	require.NoError(t, s.SetMode(LearningPaused))

	feedBatch(s, 10)
	require.NoError(t, s.SetMode(LearningActive))
	// One more trade must not trigger: the paused ones never accumulated.
	s.OnTradeClosed(context.Background(), batchTrade(99, true))

	w := s.Weights()
	for _, c := range w.Categories {
		assert.Equal(t, c.Baseline, c.Weight)
	}
}

func TestResetRestoresBaseline(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	feedBatch(s, 10)
	require.NoError(t, s.Reset(context.Background()))

	w := s.Weights()
	for _, c := range w.Categories {
		assert.Equal(t, c.Baseline, c.Weight)
		assert.False(t, c.Locked)
	}
}

func TestPatternMining(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	// All ten trades share tier/hype/wallet-bucket features; the even ones
	// win, so the 50% rate mines nothing. Make them all wins instead.
	for i := 0; i < 10; i++ {
		s.OnTradeClosed(context.Background(), batchTrade(i, true))
	}

	patterns, err := s.Patterns(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
	p := patterns[0]
	assert.Equal(t, domain.PatternWin, p.Kind)
	assert.Equal(t, 10, p.Occurrences)
	assert.InDelta(t, 1.0, p.WinRate, 1e-9)
}

func TestRestoreFallsBackToDefaults(t *testing.T) {
	store := newMemStore()
	s := newTestScheduler(store, testLearningConfig())

	require.NoError(t, s.Restore(context.Background()))
	assert.InDelta(t, 100.0, s.Weights().Sum(), 1e-6)

	persisted, err := store.GetWeights(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, persisted.Sum(), 1e-6)
}
