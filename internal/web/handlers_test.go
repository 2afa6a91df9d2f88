package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
	"tokensentry/internal/usecase"
)

type fakeRepo struct {
	wallets   map[string]*domain.SmartWallet
	blacklist map[string]*domain.BlacklistEntry
	audits    []*domain.AuditEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		wallets:   make(map[string]*domain.SmartWallet),
		blacklist: make(map[string]*domain.BlacklistEntry),
	}
}

func (f *fakeRepo) SaveWallet(_ context.Context, w *domain.SmartWallet) error {
	f.wallets[w.Address] = w
	return nil
}

func (f *fakeRepo) DeleteWallet(_ context.Context, address string) error {
	delete(f.wallets, address)
	return nil
}

func (f *fakeRepo) ListWallets(_ context.Context) ([]*domain.SmartWallet, error) {
	var out []*domain.SmartWallet
	for _, w := range f.wallets {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeRepo) UpdateWalletTier(_ context.Context, address string, tier domain.WalletTier) error {
	w, ok := f.wallets[address]
	if !ok {
		return domain.ErrNotFound
	}
	w.Tier = tier
	return nil
}

func (f *fakeRepo) AddToBlacklist(_ context.Context, e *domain.BlacklistEntry) error {
	f.blacklist[e.Address] = e
	return nil
}

func (f *fakeRepo) RemoveFromBlacklist(_ context.Context, address string) error {
	delete(f.blacklist, address)
	return nil
}

func (f *fakeRepo) ListBlacklist(_ context.Context) ([]*domain.BlacklistEntry, error) {
	var out []*domain.BlacklistEntry
	for _, e := range f.blacklist {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeRepo) IsBlacklisted(_ context.Context, address string) (bool, error) {
	_, ok := f.blacklist[address]
	return ok, nil
}

func (f *fakeRepo) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeRepo) ListAudit(_ context.Context, limit int) ([]*domain.AuditEntry, error) {
	return f.audits, nil
}

const validAddr = "So11111111111111111111111111111111111111112"

func newTestServer(t *testing.T) (*Server, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	logger := zap.NewNop()
	audit := usecase.NewAuditService(repo, logger)
	s := NewServer(0, nil, nil, nil, nil, nil, nil,
		nil, nil, repo, repo, repo, nil, audit, logger)
	return s, repo
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestAddWalletDefaultsTier(t *testing.T) {
	s, repo := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/wallets", `{"address":"`+validAddr+`","label":"scout"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	w := repo.wallets[validAddr]
	if w == nil {
		t.Fatal("wallet not saved")
	}
	if w.Tier != domain.WalletTierB {
		t.Errorf("tier = %s, want default B", w.Tier)
	}
	if len(repo.audits) != 1 || repo.audits[0].Action != usecase.ActionWalletAdd {
		t.Error("wallet add must be audited")
	}
}

func TestAddWalletRejectsBadAddress(t *testing.T) {
	s, repo := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/wallets", `{"address":"not-base58!!"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp apiResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "invalid_address" {
		t.Errorf("code = %s, want invalid_address", resp.Code)
	}
	if len(repo.wallets) != 0 {
		t.Error("invalid wallet must not be saved")
	}
}

func TestWalletTierUpdateUnknownAddress(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodPut, "/api/wallets/"+validAddr+"/tier", `{"tier":"S"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWalletTierUpdate(t *testing.T) {
	s, repo := newTestServer(t)
	repo.wallets[validAddr] = &domain.SmartWallet{Address: validAddr, Tier: domain.WalletTierB}

	rec := do(s, http.MethodPut, "/api/wallets/"+validAddr+"/tier", `{"tier":"S"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if repo.wallets[validAddr].Tier != domain.WalletTierS {
		t.Error("tier not updated")
	}

	rec = do(s, http.MethodPut, "/api/wallets/"+validAddr+"/tier", `{"tier":"X"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid tier status = %d, want 400", rec.Code)
	}
}

func TestBlacklistLifecycle(t *testing.T) {
	s, repo := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/blacklist", `{"address":"`+validAddr+`","reason":"rug"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, ok := repo.blacklist[validAddr]; !ok {
		t.Fatal("entry not saved")
	}

	rec = do(s, http.MethodGet, "/api/blacklist", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = do(s, http.MethodDelete, "/api/blacklist/"+validAddr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rec.Code)
	}
	if len(repo.blacklist) != 0 {
		t.Error("entry not removed")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func (f *fakeRepo) SavePosition(_ context.Context, p *domain.Position) error { return nil }

func (f *fakeRepo) UpdatePosition(_ context.Context, p *domain.Position) error { return nil }
func (f *fakeRepo) ListOpenPositions(_ context.Context) ([]*domain.Position, error) {
	return nil, nil
}

func (f *fakeRepo) SaveTrade(_ context.Context, t *domain.Trade) error { return nil }
func (f *fakeRepo) ListTrades(_ context.Context, limit int) ([]*domain.Trade, error) {
	return nil, nil
}
func (f *fakeRepo) TradeStats(_ context.Context) (*domain.TradeStats, error) {
	return &domain.TradeStats{}, nil
}

type silentAlert struct{}

func (silentAlert) Alert(_ context.Context, _, _ string) {}

func TestClosePositionUnknownIDLeavesNoAudit(t *testing.T) {
	repo := newFakeRepo()
	logger := zap.NewNop()
	audit := usecase.NewAuditService(repo, logger)
	positions := usecase.NewPositionManager(
		repo, repo, nil, nil, audit, silentAlert{}, config.Default().Trading, false, logger)
	s := NewServer(0, nil, nil, nil, nil, positions, nil,
		nil, nil, repo, repo, repo, nil, audit, logger)

	rec := do(s, http.MethodPost, "/api/positions/no-such-id/close", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(repo.audits) != 0 {
		t.Errorf("audit entries = %d, want none when nothing was closed", len(repo.audits))
	}
}
