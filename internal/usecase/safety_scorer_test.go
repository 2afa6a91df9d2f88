package usecase

import (
	"context"
	"testing"
	"time"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

func newTestScorer(provider *fakeSafety, store *memStore) *SafetyScorer {
	return NewSafetyScorer(provider, store, config.Default().Safety, testLogger())
}

func TestSafetyCleanTokenScoresFull(t *testing.T) {
	scorer := newTestScorer(cleanSafety(), newMemStore())

	result, err := scorer.Score(context.Background(), mintAddr)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.Score != 100 {
		t.Errorf("score = %d, want 100", result.Score)
	}
	if !result.Pass {
		t.Error("clean token must pass")
	}
	if result.HardFail {
		t.Errorf("unexpected hard fail: %s", result.HardFailReason)
	}
	if len(result.Checks) != 8 {
		t.Errorf("checks = %d, want 8", len(result.Checks))
	}
}

func TestSafetyHoneypotHardFails(t *testing.T) {
	provider := cleanSafety()
	provider.sim = &domain.SellSimulation{CanSell: false}
	scorer := newTestScorer(provider, newMemStore())

	result, err := scorer.Score(context.Background(), mintAddr)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if !result.HardFail {
		t.Fatal("honeypot must hard fail")
	}
	if result.HardFailReason != "honeypot: sell simulation failed" {
		t.Errorf("reason = %q", result.HardFailReason)
	}
	if result.Pass {
		t.Error("hard fail cannot pass")
	}
}

func TestSafetyMintAuthorityHardFails(t *testing.T) {
	provider := cleanSafety()
	provider.auth = &domain.TokenAuthorities{
		MintRevoked:   false,
		FreezeRevoked: true,
		Deployer:      deployerAddr,
		Verified:      true,
	}
	scorer := newTestScorer(provider, newMemStore())

	result, _ := scorer.Score(context.Background(), mintAddr)
	if !result.HardFail {
		t.Fatal("active mint authority must hard fail")
	}
	if result.HardFailReason != "mint authority active" {
		t.Errorf("reason = %q, want %q", result.HardFailReason, "mint authority active")
	}
}

func TestSafetyProviderErrorFailsClosed(t *testing.T) {
	provider := cleanSafety()
	provider.distErr = errBoom
	scorer := newTestScorer(provider, newMemStore())

	result, err := scorer.Score(context.Background(), mintAddr)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// liquidity_lock (15), holder_concentration (10) and deployer_holding
	// (10) depend on the distribution fetch and must all count as failed.
	if result.Score != 65 {
		t.Errorf("score = %d, want 65", result.Score)
	}
	if result.Pass {
		t.Error("distribution outage must not pass the minimum score")
	}
	for _, c := range result.Checks {
		switch c.Name {
		case CheckLiquidityLock, CheckHolderSpread, CheckDeployerShare:
			if c.Passed {
				t.Errorf("check %s passed despite provider error", c.Name)
			}
		}
	}
}

func TestSafetyBlacklistedDeployerHardFails(t *testing.T) {
	store := newMemStore()
	store.AddToBlacklist(context.Background(), &domain.BlacklistEntry{Address: deployerAddr, Reason: "serial rugger"})
	scorer := newTestScorer(cleanSafety(), store)

	result, _ := scorer.Score(context.Background(), mintAddr)
	if !result.HardFail {
		t.Fatal("blacklisted deployer must hard fail")
	}
	if result.HardFailReason != "deployer blacklisted" {
		t.Errorf("reason = %q", result.HardFailReason)
	}
}

func TestSafetyHardFailStartsCoolOff(t *testing.T) {
	provider := cleanSafety()
	provider.sim = &domain.SellSimulation{CanSell: false}
	scorer := newTestScorer(provider, newMemStore())

	first, _ := scorer.Score(context.Background(), mintAddr)
	if !first.HardFail {
		t.Fatal("setup: expected hard fail")
	}

	// The token becomes clean, but the cool-off still rejects it.
	provider.sim = &domain.SellSimulation{CanSell: true}
	second, _ := scorer.Score(context.Background(), mintAddr)
	if !second.HardFail {
		t.Error("cool-off must keep rejecting the mint")
	}
	if len(second.Checks) != 0 {
		t.Error("cool-off short-circuit must not run checks")
	}
}

func TestSafetyCoolOffExpires(t *testing.T) {
	provider := cleanSafety()
	provider.sim = &domain.SellSimulation{CanSell: false}

	cfg := config.Default().Safety
	cfg.HardFailCoolOff = 10 * time.Millisecond
	scorer := NewSafetyScorer(provider, newMemStore(), cfg, testLogger())

	scorer.Score(context.Background(), mintAddr)
	time.Sleep(20 * time.Millisecond)

	provider.sim = &domain.SellSimulation{CanSell: true}
	result, _ := scorer.Score(context.Background(), mintAddr)
	if result.HardFail {
		t.Errorf("cool-off should have expired, got %q", result.HardFailReason)
	}
}
