package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

// ---- in-memory repositories ----

type memStore struct {
	mu         sync.Mutex
	positions  map[string]*domain.Position
	trades     []*domain.Trade
	opps       map[string]*domain.TokenOpportunity
	rejections []*domain.Rejection
	weights    *domain.LearningWeights
	patterns   []*domain.LearningPattern
	wallets    map[string]*domain.SmartWallet
	blacklist  map[string]*domain.BlacklistEntry
	audits     []*domain.AuditEntry
	txs        []*domain.TxRecord

	failSaveTrade bool
	failAudit     bool
}

func newMemStore() *memStore {
	return &memStore{
		positions: make(map[string]*domain.Position),
		opps:      make(map[string]*domain.TokenOpportunity),
		wallets:   make(map[string]*domain.SmartWallet),
		blacklist: make(map[string]*domain.BlacklistEntry),
	}
}

func (m *memStore) SavePosition(_ context.Context, p *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *memStore) UpdatePosition(_ context.Context, p *domain.Position) error {
	return m.SavePosition(context.Background(), p)
}

func (m *memStore) ListOpenPositions(_ context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, p := range m.positions {
		if p.Status != domain.PositionClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SaveTrade(_ context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveTrade {
		return errBoom
	}
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) ListTrades(_ context.Context, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.trades
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) TradeStats(_ context.Context) (*domain.TradeStats, error) {
	return &domain.TradeStats{}, nil
}

func (m *memStore) SaveOpportunity(_ context.Context, o *domain.TokenOpportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.opps[o.ID] = &cp
	return nil
}

func (m *memStore) UpdateOpportunity(_ context.Context, o *domain.TokenOpportunity) error {
	return m.SaveOpportunity(context.Background(), o)
}

func (m *memStore) ListOpportunities(_ context.Context, limit int) ([]*domain.TokenOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TokenOpportunity
	for _, o := range m.opps {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) SaveRejection(_ context.Context, r *domain.Rejection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, r)
	return nil
}

func (m *memStore) ListRejections(_ context.Context, limit int) ([]*domain.Rejection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejections, nil
}

func (m *memStore) SaveWeights(_ context.Context, w *domain.LearningWeights) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = w.Clone()
	return nil
}

func (m *memStore) GetWeights(_ context.Context) (*domain.LearningWeights, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.weights == nil {
		return nil, domain.ErrNotFound
	}
	return m.weights.Clone(), nil
}

func (m *memStore) ReplacePatterns(_ context.Context, patterns []*domain.LearningPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = patterns
	return nil
}

func (m *memStore) ListPatterns(_ context.Context) ([]*domain.LearningPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patterns, nil
}

func (m *memStore) SaveWallet(_ context.Context, w *domain.SmartWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.wallets[w.Address] = &cp
	return nil
}

func (m *memStore) DeleteWallet(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wallets, address)
	return nil
}

func (m *memStore) ListWallets(_ context.Context) ([]*domain.SmartWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SmartWallet
	for _, w := range m.wallets {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateWalletTier(_ context.Context, address string, tier domain.WalletTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[address]
	if !ok {
		return domain.ErrNotFound
	}
	w.Tier = tier
	return nil
}

func (m *memStore) AddToBlacklist(_ context.Context, e *domain.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.blacklist[e.Address] = &cp
	return nil
}

func (m *memStore) RemoveFromBlacklist(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blacklist, address)
	return nil
}

func (m *memStore) ListBlacklist(_ context.Context) ([]*domain.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BlacklistEntry
	for _, e := range m.blacklist {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) IsBlacklisted(_ context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[address]
	return ok, nil
}

func (m *memStore) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAudit {
		return errBoom
	}
	m.audits = append(m.audits, e)
	return nil
}

func (m *memStore) ListAudit(_ context.Context, limit int) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audits, nil
}

func (m *memStore) SaveTx(_ context.Context, r *domain.TxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, r)
	return nil
}

func (m *memStore) ListTx(_ context.Context, limit int) ([]*domain.TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs, nil
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.audits {
		out = append(out, e.Action)
	}
	return out
}

// ---- fake providers ----

type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]float64
	sol    float64
	btc    float64
	err    error
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{prices: make(map[string]float64)}
}

func (f *fakeMarket) setPrice(mint string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[mint] = price
}

func (f *fakeMarket) TokenPrice(_ context.Context, mint string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[mint], nil
}

func (f *fakeMarket) TokenSnapshot(_ context.Context, mint string) (*domain.MarketSnapshot, *domain.EntrySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	return &domain.MarketSnapshot{Price: f.prices[mint], LiquiditySol: 300, Holders: 500, Volume24h: 50000},
		&domain.EntrySnapshot{DipFromHighPct: 30, Age: time.Hour, HypePhase: "EARLY"}, nil
}

func (f *fakeMarket) MajorsChange24h(_ context.Context) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.sol, f.btc, nil
}

type fakeSafety struct {
	sim  *domain.SellSimulation
	auth *domain.TokenAuthorities
	dist *domain.TokenDistribution

	simErr  error
	authErr error
	distErr error
}

func cleanSafety() *fakeSafety {
	return &fakeSafety{
		sim:  &domain.SellSimulation{CanSell: true},
		auth: &domain.TokenAuthorities{MintRevoked: true, FreezeRevoked: true, Deployer: deployerAddr, Verified: true},
		dist: &domain.TokenDistribution{Top10HolderPct: 20, DeployerPct: 3, LiquidityLocked: true},
	}
}

func (f *fakeSafety) SimulateSell(_ context.Context, mint string) (*domain.SellSimulation, error) {
	return f.sim, f.simErr
}

func (f *fakeSafety) Authorities(_ context.Context, mint string) (*domain.TokenAuthorities, error) {
	return f.auth, f.authErr
}

func (f *fakeSafety) Distribution(_ context.Context, mint string) (*domain.TokenDistribution, error) {
	return f.dist, f.distErr
}

// ---- scripted executor ----

type scriptedExecutor struct {
	mu     sync.Mutex
	orders []*domain.TradeOrder
	err    error
	// block, when set, holds Execute until released. Used to pin an exit
	// in flight. started signals that Execute has been entered.
	block   chan struct{}
	started chan struct{}
}

func (e *scriptedExecutor) Execute(_ context.Context, order *domain.TradeOrder) (*domain.TradeFill, error) {
	e.mu.Lock()
	block := e.block
	started := e.started
	e.mu.Unlock()
	if block != nil {
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		<-block
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = append(e.orders, order)
	if e.err != nil {
		return nil, e.err
	}
	fill := &domain.TradeFill{
		Signature:   "test-sig",
		Price:       order.ExpectedPrice,
		TokenAmount: order.TokenAmount,
		SolAmount:   order.TokenAmount * order.ExpectedPrice,
		Attempts:    1,
	}
	if order.Intent == domain.IntentBuy {
		fill.TokenAmount = order.SolAmount / order.ExpectedPrice
		fill.SolAmount = order.SolAmount
	}
	return fill, nil
}

func (e *scriptedExecutor) orderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}

func (e *scriptedExecutor) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

type nopAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *nopAlerter) Alert(_ context.Context, severity, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, severity+": "+message)
}

// ---- shared fixtures ----

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

// Valid base58 32-byte addresses for tests.
const (
	mintAddr     = "So11111111111111111111111111111111111111112"
	deployerAddr = "Vote111111111111111111111111111111111111111"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func testAudit(store *memStore) *AuditService {
	return NewAuditService(store, testLogger())
}

func testTradingConfig() config.TradingConfig {
	return config.Default().Trading
}

func newTestPositionManager(store *memStore, exec domain.TradeExecutor, mkt *fakeMarket, alert *nopAlerter) *PositionManager {
	return NewPositionManager(store, store, exec, mkt, testAudit(store), alert, testTradingConfig(), false, testLogger())
}
