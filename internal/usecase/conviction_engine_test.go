package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensentry/internal/domain"
)

func passingOpportunity() *domain.TokenOpportunity {
	return &domain.TokenOpportunity{
		ID:        "opp-pass",
		TokenMint: mintAddr,
		Signal:    domain.WalletSignal{Count: 4, TierS: 2, TierA: 1, TierB: 1},
		Safety:    &domain.SafetyResult{TokenMint: mintAddr, Score: 90, Pass: true},
		Market: domain.MarketSnapshot{
			Price:        1.0,
			LiquiditySol: 400,
			Holders:      800,
			Volume24h:    90_000,
			Change1h:     5,
		},
		Entry: domain.EntrySnapshot{
			DipFromHighPct: 40,
			Age:            2 * time.Hour,
			HypePhase:      "EARLY",
		},
	}
}

func evaluate(opp *domain.TokenOpportunity, regime domain.Regime, exposure float64) *Decision {
	engine := NewConvictionEngine(testTradingConfig())
	return engine.Evaluate(EvaluateInput{
		Opportunity:       opp,
		Weights:           domain.DefaultWeights(),
		Regime:            regime,
		RemainingExposure: exposure,
	})
}

func TestEvaluateAdmitsStrongCandidate(t *testing.T) {
	d := evaluate(passingOpportunity(), domain.RegimeFull, 6.0)
	require.True(t, d.Admitted, "reject code %s: %s", d.Code, d.Reason)
	assert.Greater(t, d.Conviction, 60.0)
	assert.Greater(t, d.SizeSol, 0.0)
	assert.NotEmpty(t, d.Tier)
}

func TestEvaluateRejectsMintAuthorityRegardlessOfScore(t *testing.T) {
	opp := passingOpportunity()
	// A token can score well on every other check and still carry an
	// active mint authority.
	opp.Safety = &domain.SafetyResult{
		TokenMint:      mintAddr,
		Score:          80,
		Pass:           false,
		HardFail:       true,
		HardFailReason: "mint authority active",
	}

	d := evaluate(opp, domain.RegimeFull, 6.0)
	require.False(t, d.Admitted)
	assert.Equal(t, RejectMintAuthority, d.Code)
	assert.Equal(t, "mint authority active", d.Reason)
}

func TestEvaluateRejectsOnRegimePause(t *testing.T) {
	d := evaluate(passingOpportunity(), domain.RegimePause, 6.0)
	require.False(t, d.Admitted)
	assert.Equal(t, RejectRegimePause, d.Code)
}

func TestEvaluateRegimeRaisesThreshold(t *testing.T) {
	opp := passingOpportunity()
	// Weaken the candidate so it clears the FULL threshold but not the
	// DEFENSIVE one.
	opp.Signal = domain.WalletSignal{Count: 2, TierA: 1, TierB: 1}
	opp.Market.LiquiditySol = 100
	opp.Market.Volume24h = 20_000
	opp.Market.Change1h = 0

	full := evaluate(opp, domain.RegimeFull, 6.0)
	require.True(t, full.Admitted, "reject code %s: %s", full.Code, full.Reason)

	defensive := evaluate(opp, domain.RegimeDefensive, 6.0)
	require.False(t, defensive.Admitted)
	assert.Equal(t, RejectLowConviction, defensive.Code)
}

func TestEvaluateRegimeScalesSize(t *testing.T) {
	full := evaluate(passingOpportunity(), domain.RegimeFull, 6.0)
	require.True(t, full.Admitted)

	defensive := evaluate(passingOpportunity(), domain.RegimeDefensive, 6.0)
	if defensive.Admitted {
		assert.InDelta(t, full.SizeSol*0.25, defensive.SizeSol, 1e-9)
	}
}

func TestEvaluateDipBand(t *testing.T) {
	tests := []struct {
		name string
		dip  float64
		code string
	}{
		{"chasing the top", 5, RejectShallowDip},
		{"band floor", 15, ""},
		{"mid band", 40, ""},
		{"band ceiling", 70, ""},
		{"already dumped", 85, RejectDumped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := passingOpportunity()
			opp.Entry.DipFromHighPct = tt.dip
			d := evaluate(opp, domain.RegimeFull, 6.0)
			if tt.code == "" {
				assert.True(t, d.Admitted, "reject code %s: %s", d.Code, d.Reason)
			} else {
				require.False(t, d.Admitted)
				assert.Equal(t, tt.code, d.Code)
			}
		})
	}
}

func TestEvaluateAgeBounds(t *testing.T) {
	opp := passingOpportunity()
	opp.Entry.Age = 2 * time.Minute
	d := evaluate(opp, domain.RegimeFull, 6.0)
	require.False(t, d.Admitted)
	assert.Equal(t, RejectTooYoung, d.Code)

	opp = passingOpportunity()
	opp.Entry.Age = 48 * time.Hour
	d = evaluate(opp, domain.RegimeFull, 6.0)
	require.False(t, d.Admitted)
	assert.Equal(t, RejectTooOld, d.Code)
}

func TestEvaluateExposureClamp(t *testing.T) {
	d := evaluate(passingOpportunity(), domain.RegimeFull, 0.1)
	if d.Admitted {
		assert.LessOrEqual(t, d.SizeSol, 0.1)
	}

	d = evaluate(passingOpportunity(), domain.RegimeFull, 0)
	require.False(t, d.Admitted)
	assert.Equal(t, RejectNoExposure, d.Code)
}

func TestEvaluateWalletMinimum(t *testing.T) {
	opp := passingOpportunity()
	opp.Signal = domain.WalletSignal{Count: 1, TierS: 1}
	// Keep the composite high enough that the wallet gate is what fires.
	opp.Safety.Score = 100

	d := evaluate(opp, domain.RegimeFull, 6.0)
	require.False(t, d.Admitted)
	assert.Equal(t, RejectFewWallets, d.Code)
}

func TestConvictionRespondsToWeights(t *testing.T) {
	engine := NewConvictionEngine(testTradingConfig())
	scores := engine.CategoryScores(passingOpportunity())

	base := Conviction(scores, domain.DefaultWeights())

	// Shifting weight toward the candidate's strongest category must not
	// lower the composite.
	shifted := domain.DefaultWeights()
	strongest := domain.CategoryWalletSignal
	for name := range scores {
		if scores[name] > scores[strongest] {
			strongest = name
		}
	}
	for name, c := range shifted.Categories {
		if name == strongest {
			c.Weight += 10
		} else {
			c.Weight -= 2.5
		}
	}
	assert.GreaterOrEqual(t, Conviction(scores, shifted), base)
}

func TestSetConfigConcurrentWithEvaluate(t *testing.T) {
	engine := NewConvictionEngine(testTradingConfig())
	opp := passingOpportunity()
	weights := domain.DefaultWeights()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			cfg := testTradingConfig()
			cfg.BaseConvictionThreshold = float64(55 + i%20)
			engine.SetConfig(cfg)
		}
	}()
	for i := 0; i < 500; i++ {
		d := engine.Evaluate(EvaluateInput{
			Opportunity:       opp,
			Weights:           weights,
			Regime:            domain.RegimeFull,
			RemainingExposure: 6.0,
		})
		if d == nil {
			t.Fatal("Evaluate returned nil")
		}
	}
	<-done
}
