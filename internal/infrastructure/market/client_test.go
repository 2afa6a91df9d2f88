package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{
		RESTEndpoint: srv.URL,
		APIKey:       "test-key",
		Timeout:      2 * time.Second,
	}, zap.NewNop())
}

func ok(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "msg": "", "data": data})
}

func TestTokenPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/price" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Error("api key header missing")
		}
		if r.URL.Query().Get("mint") != "mint1" {
			t.Errorf("mint param = %s", r.URL.Query().Get("mint"))
		}
		ok(w, map[string]float64{"price": 1.25})
	})

	price, err := c.TokenPrice(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("TokenPrice failed: %v", err)
	}
	if price != 1.25 {
		t.Errorf("price = %v, want 1.25", price)
	}
}

func TestTokenPriceProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 429, "msg": "rate limited"})
	})
	if _, err := c.TokenPrice(context.Background(), "mint1"); err == nil {
		t.Fatal("expected error on non-zero provider code")
	}
}

func TestTokenPriceHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := c.TokenPrice(context.Background(), "mint1"); err == nil {
		t.Fatal("expected error on http 502")
	}
}

func TestTokenSnapshotDerivedFields(t *testing.T) {
	created := time.Now().Add(-2 * time.Hour).UnixMilli()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]interface{}{
			"price": 0.8, "liquidity_sol": 300.0, "holders": 500,
			"volume_24h": 50000.0, "ath_price": 1.0,
			"created_at_ms": created, "hype_phase": "EARLY",
		})
	})

	market, entry, err := c.TokenSnapshot(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("TokenSnapshot failed: %v", err)
	}
	if market.LiquiditySol != 300 || market.Holders != 500 {
		t.Errorf("market snapshot = %+v", market)
	}
	// 0.8 from an ATH of 1.0 is a 20% dip.
	if entry.DipFromHighPct < 19.99 || entry.DipFromHighPct > 20.01 {
		t.Errorf("dip = %v, want 20", entry.DipFromHighPct)
	}
	if entry.Age < 119*time.Minute || entry.Age > 121*time.Minute {
		t.Errorf("age = %v, want ~2h", entry.Age)
	}
	if entry.HypePhase != "EARLY" {
		t.Errorf("hype phase = %s", entry.HypePhase)
	}
}

func TestRecentBuysDeduplicatesWallets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]interface{}{
			"buys": []map[string]string{
				{"mint": "m1", "wallet": "w1"},
				{"mint": "m1", "wallet": "w1"}, // repeat buy, same wallet
				{"mint": "m1", "wallet": "w2"},
				{"mint": "m2", "wallet": "w2"},
			},
		})
	})

	wallets := []*domain.SmartWallet{
		{Address: "w1", Tier: domain.WalletTierS},
		{Address: "w2", Tier: domain.WalletTierB},
	}
	signals, err := c.RecentBuys(context.Background(), wallets, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentBuys failed: %v", err)
	}

	m1 := signals["m1"]
	if m1.Count != 2 || m1.TierS != 1 || m1.TierB != 1 {
		t.Errorf("m1 signal = %+v, want count 2 with one S and one B", m1)
	}
	if signals["m2"].Count != 1 {
		t.Errorf("m2 signal = %+v, want count 1", signals["m2"])
	}
}

func TestRecentBuysEmptyWalletList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty wallet list")
	})
	signals, err := c.RecentBuys(context.Background(), nil, time.Now())
	if err != nil || signals != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", signals, err)
	}
}
