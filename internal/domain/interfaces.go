package domain

import (
	"context"
	"time"
)

// MarketDataProvider supplies token market state and macro reference prices.
type MarketDataProvider interface {
	TokenPrice(ctx context.Context, mint string) (float64, error)
	TokenSnapshot(ctx context.Context, mint string) (*MarketSnapshot, *EntrySnapshot, error)
	// MajorsChange24h returns the 24h percent change of SOL and BTC.
	MajorsChange24h(ctx context.Context) (sol float64, btc float64, err error)
}

// SafetyProvider answers the individual safety checklist questions.
type SafetyProvider interface {
	SimulateSell(ctx context.Context, mint string) (*SellSimulation, error)
	Authorities(ctx context.Context, mint string) (*TokenAuthorities, error)
	Distribution(ctx context.Context, mint string) (*TokenDistribution, error)
}

// DiscoveryProvider surfaces candidate tokens from smart-wallet activity.
type DiscoveryProvider interface {
	RecentBuys(ctx context.Context, wallets []*SmartWallet, since time.Time) (map[string]WalletSignal, error)
}

// TradeExecutor turns an order into a fill. Live and paper implementations
// share this contract.
type TradeExecutor interface {
	Execute(ctx context.Context, order *TradeOrder) (*TradeFill, error)
}

// Alerter receives operator escalations that must not be silently dropped.
type Alerter interface {
	Alert(ctx context.Context, severity, message string)
}

type PositionRepository interface {
	SavePosition(ctx context.Context, p *Position) error
	UpdatePosition(ctx context.Context, p *Position) error
	ListOpenPositions(ctx context.Context) ([]*Position, error)
}

type TradeRepository interface {
	SaveTrade(ctx context.Context, t *Trade) error
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)
	TradeStats(ctx context.Context) (*TradeStats, error)
}

type OpportunityRepository interface {
	SaveOpportunity(ctx context.Context, o *TokenOpportunity) error
	UpdateOpportunity(ctx context.Context, o *TokenOpportunity) error
	ListOpportunities(ctx context.Context, limit int) ([]*TokenOpportunity, error)
	SaveRejection(ctx context.Context, r *Rejection) error
	ListRejections(ctx context.Context, limit int) ([]*Rejection, error)
}

type LearningRepository interface {
	SaveWeights(ctx context.Context, w *LearningWeights) error
	GetWeights(ctx context.Context) (*LearningWeights, error)
	ReplacePatterns(ctx context.Context, patterns []*LearningPattern) error
	ListPatterns(ctx context.Context) ([]*LearningPattern, error)
}

type WalletRepository interface {
	SaveWallet(ctx context.Context, w *SmartWallet) error
	DeleteWallet(ctx context.Context, address string) error
	ListWallets(ctx context.Context) ([]*SmartWallet, error)
	UpdateWalletTier(ctx context.Context, address string, tier WalletTier) error
}

type BlacklistRepository interface {
	AddToBlacklist(ctx context.Context, e *BlacklistEntry) error
	RemoveFromBlacklist(ctx context.Context, address string) error
	ListBlacklist(ctx context.Context) ([]*BlacklistEntry, error)
	IsBlacklisted(ctx context.Context, address string) (bool, error)
}

type AuditRepository interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]*AuditEntry, error)
}

type TxLogRepository interface {
	SaveTx(ctx context.Context, r *TxRecord) error
	ListTx(ctx context.Context, limit int) ([]*TxRecord, error)
}
