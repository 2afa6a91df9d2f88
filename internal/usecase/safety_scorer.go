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

// Safety checklist names, in evaluation order.
const (
	CheckSellSimulation  = "sell_simulation"
	CheckMintAuthority   = "mint_authority"
	CheckFreezeAuthority = "freeze_authority"
	CheckLiquidityLock   = "liquidity_lock"
	CheckHolderSpread    = "holder_concentration"
	CheckDeployerShare   = "deployer_holding"
	CheckDeployerList    = "deployer_blacklist"
	CheckVerified        = "contract_verified"
)

// SafetyScorer runs a fixed checklist against a candidate token. Checks that
// cannot complete within their timeout count as failed, never skipped.
type SafetyScorer struct {
	provider  domain.SafetyProvider
	blacklist domain.BlacklistRepository
	logger    *zap.Logger
	cfg       config.SafetyConfig

	mu      sync.Mutex
	coolOff map[string]time.Time // mint -> hard-fail cool-off expiry
}

func NewSafetyScorer(provider domain.SafetyProvider, blacklist domain.BlacklistRepository, cfg config.SafetyConfig, logger *zap.Logger) *SafetyScorer {
	return &SafetyScorer{
		provider:  provider,
		blacklist: blacklist,
		logger:    logger,
		cfg:       cfg,
		coolOff:   make(map[string]time.Time),
	}
}

// Score runs the checklist and returns the 0-100 score with pass/fail.
func (s *SafetyScorer) Score(ctx context.Context, mint string) (*domain.SafetyResult, error) {
	if until, ok := s.inCoolOff(mint); ok {
		return &domain.SafetyResult{
			TokenMint:      mint,
			Pass:           false,
			HardFail:       true,
			HardFailReason: fmt.Sprintf("hard fail cool-off until %s", until.Format(time.RFC3339)),
		}, nil
	}

	result := &domain.SafetyResult{TokenMint: mint}

	sim, simErr := fetchWithTimeout(ctx, s.cfg.CheckTimeout, func(c context.Context) (*domain.SellSimulation, error) {
		return s.provider.SimulateSell(c, mint)
	})
	auth, authErr := fetchWithTimeout(ctx, s.cfg.CheckTimeout, func(c context.Context) (*domain.TokenAuthorities, error) {
		return s.provider.Authorities(c, mint)
	})
	dist, distErr := fetchWithTimeout(ctx, s.cfg.CheckTimeout, func(c context.Context) (*domain.TokenDistribution, error) {
		return s.provider.Distribution(c, mint)
	})

	// Ordered checklist. A provider error fails the checks that depend on it.
	canSell := simErr == nil && sim.CanSell
	result.AddCheck(CheckSellSimulation, canSell, 25, errDetail(simErr))
	if !canSell {
		result.MarkHardFail("honeypot: sell simulation failed")
	}

	mintRevoked := authErr == nil && auth.MintRevoked
	result.AddCheck(CheckMintAuthority, mintRevoked, 20, errDetail(authErr))
	if !mintRevoked {
		result.MarkHardFail("mint authority active")
	}

	result.AddCheck(CheckFreezeAuthority, authErr == nil && auth.FreezeRevoked, 15, errDetail(authErr))
	result.AddCheck(CheckLiquidityLock, distErr == nil && dist.LiquidityLocked, 15, errDetail(distErr))
	result.AddCheck(CheckHolderSpread, distErr == nil && dist.Top10HolderPct <= s.cfg.MaxTop10Pct, 10, errDetail(distErr))
	result.AddCheck(CheckDeployerShare, distErr == nil && dist.DeployerPct <= s.cfg.MaxDeployerPct, 10, errDetail(distErr))

	deployerClean := false
	if authErr == nil && auth.Deployer != "" {
		listed, err := s.blacklist.IsBlacklisted(ctx, auth.Deployer)
		deployerClean = err == nil && !listed
		if err == nil && listed {
			result.MarkHardFail("deployer blacklisted")
		}
	}
	result.AddCheck(CheckDeployerList, deployerClean, 0, "")

	result.AddCheck(CheckVerified, authErr == nil && auth.Verified, 5, errDetail(authErr))

	result.Pass = !result.HardFail && result.Score >= s.cfg.MinScore

	if result.HardFail {
		s.startCoolOff(mint)
		s.logger.Info("token hard-failed safety",
			zap.String("mint", mint),
			zap.String("reason", result.HardFailReason))
	}
	return result, nil
}

func (s *SafetyScorer) inCoolOff(mint string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.coolOff[mint]
	if !ok {
		return time.Time{}, false
	}
	if time.Now().After(until) {
		delete(s.coolOff, mint)
		return time.Time{}, false
	}
	return until, true
}

func (s *SafetyScorer) startCoolOff(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coolOff[mint] = time.Now().Add(s.cfg.HardFailCoolOff)
}

func fetchWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return "check unavailable: " + err.Error()
}
