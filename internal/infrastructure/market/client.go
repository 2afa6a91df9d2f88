package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

// Client talks to the price/safety/discovery aggregator over REST and keeps
// a websocket price stream for subscribed mints.
type Client struct {
	baseURL string
	wsURL   string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	wsDone     chan struct{}
	subscribed map[string]bool
	callbacks  []func(mint string, price float64)
}

func NewClient(cfg config.ProviderConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.RESTEndpoint, "/"),
		wsURL:      cfg.WSEndpoint,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		subscribed: make(map[string]bool),
	}
}

// --- REST API ---

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider %s: http %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("provider %s: decode: %w", path, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("provider %s: code %d: %s", path, env.Code, env.Msg)
	}
	return json.Unmarshal(env.Data, out)
}

// MarketDataProvider implementation

func (c *Client) TokenPrice(ctx context.Context, mint string) (float64, error) {
	var data struct {
		Price float64 `json:"price"`
	}
	params := url.Values{"mint": {mint}}
	if err := c.get(ctx, "/v1/price", params, &data); err != nil {
		return 0, err
	}
	return data.Price, nil
}

func (c *Client) TokenSnapshot(ctx context.Context, mint string) (*domain.MarketSnapshot, *domain.EntrySnapshot, error) {
	var data struct {
		Symbol         string  `json:"symbol"`
		Price          float64 `json:"price"`
		LiquiditySol   float64 `json:"liquidity_sol"`
		Holders        int     `json:"holders"`
		Volume24h      float64 `json:"volume_24h"`
		Change1h       float64 `json:"change_1h"`
		Change24h      float64 `json:"change_24h"`
		AthPrice       float64 `json:"ath_price"`
		CreatedAtMs    int64   `json:"created_at_ms"`
		HypePhase      string  `json:"hype_phase"`
	}
	params := url.Values{"mint": {mint}}
	if err := c.get(ctx, "/v1/token", params, &data); err != nil {
		return nil, nil, err
	}

	market := &domain.MarketSnapshot{
		Price:        data.Price,
		LiquiditySol: data.LiquiditySol,
		Holders:      data.Holders,
		Volume24h:    data.Volume24h,
		Change1h:     data.Change1h,
		Change24h:    data.Change24h,
	}
	entry := &domain.EntrySnapshot{
		HypePhase: data.HypePhase,
	}
	if data.CreatedAtMs > 0 {
		entry.Age = time.Since(time.UnixMilli(data.CreatedAtMs))
	}
	if data.AthPrice > 0 {
		entry.DipFromHighPct = (data.AthPrice - data.Price) / data.AthPrice * 100
	}
	return market, entry, nil
}

func (c *Client) MajorsChange24h(ctx context.Context) (float64, float64, error) {
	var data struct {
		SolChange24h float64 `json:"sol_change_24h"`
		BtcChange24h float64 `json:"btc_change_24h"`
	}
	if err := c.get(ctx, "/v1/majors", nil, &data); err != nil {
		return 0, 0, err
	}
	return data.SolChange24h, data.BtcChange24h, nil
}

// SafetyProvider implementation

func (c *Client) SimulateSell(ctx context.Context, mint string) (*domain.SellSimulation, error) {
	var data struct {
		CanSell bool    `json:"can_sell"`
		TaxPct  float64 `json:"tax_pct"`
	}
	params := url.Values{"mint": {mint}}
	if err := c.get(ctx, "/v1/simulate-sell", params, &data); err != nil {
		return nil, err
	}
	return &domain.SellSimulation{CanSell: data.CanSell, TaxPct: data.TaxPct}, nil
}

func (c *Client) Authorities(ctx context.Context, mint string) (*domain.TokenAuthorities, error) {
	var data struct {
		MintRevoked   bool   `json:"mint_revoked"`
		FreezeRevoked bool   `json:"freeze_revoked"`
		Deployer      string `json:"deployer"`
		Verified      bool   `json:"verified"`
	}
	params := url.Values{"mint": {mint}}
	if err := c.get(ctx, "/v1/authorities", params, &data); err != nil {
		return nil, err
	}
	return &domain.TokenAuthorities{
		MintRevoked:   data.MintRevoked,
		FreezeRevoked: data.FreezeRevoked,
		Deployer:      data.Deployer,
		Verified:      data.Verified,
	}, nil
}

func (c *Client) Distribution(ctx context.Context, mint string) (*domain.TokenDistribution, error) {
	var data struct {
		Top10HolderPct  float64 `json:"top10_holder_pct"`
		DeployerPct     float64 `json:"deployer_pct"`
		LiquidityLocked bool    `json:"liquidity_locked"`
	}
	params := url.Values{"mint": {mint}}
	if err := c.get(ctx, "/v1/distribution", params, &data); err != nil {
		return nil, err
	}
	return &domain.TokenDistribution{
		Top10HolderPct:  data.Top10HolderPct,
		DeployerPct:     data.DeployerPct,
		LiquidityLocked: data.LiquidityLocked,
	}, nil
}

// DiscoveryProvider implementation

func (c *Client) RecentBuys(ctx context.Context, wallets []*domain.SmartWallet, since time.Time) (map[string]domain.WalletSignal, error) {
	if len(wallets) == 0 {
		return nil, nil
	}
	tierByAddr := make(map[string]domain.WalletTier, len(wallets))
	addrs := make([]string, 0, len(wallets))
	for _, w := range wallets {
		addrs = append(addrs, w.Address)
		tierByAddr[w.Address] = w.Tier
	}

	var data struct {
		Buys []struct {
			Mint   string `json:"mint"`
			Wallet string `json:"wallet"`
		} `json:"buys"`
	}
	params := url.Values{
		"wallets": {strings.Join(addrs, ",")},
		"since":   {fmt.Sprintf("%d", since.UnixMilli())},
	}
	if err := c.get(ctx, "/v1/wallet-activity", params, &data); err != nil {
		return nil, err
	}

	signals := make(map[string]domain.WalletSignal)
	seen := make(map[string]map[string]bool)
	for _, buy := range data.Buys {
		if seen[buy.Mint] == nil {
			seen[buy.Mint] = make(map[string]bool)
		}
		if seen[buy.Mint][buy.Wallet] {
			continue
		}
		seen[buy.Mint][buy.Wallet] = true

		sig := signals[buy.Mint]
		sig.Count++
		switch tierByAddr[buy.Wallet] {
		case domain.WalletTierS:
			sig.TierS++
		case domain.WalletTierA:
			sig.TierA++
		default:
			sig.TierB++
		}
		signals[buy.Mint] = sig
	}
	return signals, nil
}
