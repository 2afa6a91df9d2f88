package rpcpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
)

const (
	// A node is demoted after this many consecutive submission failures.
	demoteAfterFails = 3

	latencyEwmaAlpha = 0.3
	successEwmaAlpha = 0.1
)

type endpoint struct {
	label  string
	url    string
	health domain.RPCNodeHealth
}

// Gateway maintains a set of RPC endpoints with health tracking and exposes
// transaction submission with automatic failover. Exactly one endpoint is
// primary at a time; promotion and demotion are explicit logged transitions.
type Gateway struct {
	logger    *zap.Logger
	client    *http.Client
	cfg       config.RPCConfig
	requestID atomic.Uint64

	mu        sync.RWMutex
	endpoints []*endpoint
	primary   int
}

func NewGateway(cfg config.RPCConfig, logger *zap.Logger) *Gateway {
	g := &Gateway{
		logger: logger,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
	}
	for _, ep := range cfg.Endpoints {
		g.endpoints = append(g.endpoints, &endpoint{
			label: ep.Label,
			url:   ep.URL,
			health: domain.RPCNodeHealth{
				Label:       ep.Label,
				URL:         ep.URL,
				SuccessRate: 1.0,
				Healthy:     true,
			},
		})
	}
	if len(g.endpoints) > 0 {
		g.endpoints[0].health.Primary = true
	}
	return g
}

// Start runs the periodic health-check loop until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(g.cfg.HealthCheckInterval)
		defer ticker.Stop()

		g.CheckAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.CheckAll(ctx)
			}
		}
	}()
}

// CheckAll probes every endpoint and re-elects the primary if needed.
func (g *Gateway) CheckAll(ctx context.Context) {
	g.mu.RLock()
	eps := make([]*endpoint, len(g.endpoints))
	copy(eps, g.endpoints)
	g.mu.RUnlock()

	for i, ep := range eps {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		_, err := g.call(cctx, ep, "getHealth", nil)
		cancel()
		g.observe(i, time.Since(start), err == nil)
	}
	g.electPrimary()
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (g *Gateway) call(ctx context.Context, ep *endpoint, method string, params []interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      g.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc %s: http %d", method, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("rpc %s: %d %s", method, out.Error.Code, out.Error.Message)
	}
	return out.Result, nil
}

// SwapRequest is a prepared swap submission.
type SwapRequest struct {
	Intent         domain.TradeIntent `json:"intent"`
	TokenMint      string             `json:"token_mint"`
	TokenAmount    float64            `json:"token_amount,omitempty"`
	SolAmount      float64            `json:"sol_amount,omitempty"`
	MaxSlippageBps int                `json:"max_slippage_bps"`
	PriorityFee    uint64             `json:"priority_fee"`
}

// SwapResult is the confirmed fill returned by the node.
type SwapResult struct {
	Signature   string  `json:"signature"`
	Price       float64 `json:"price"`
	TokenAmount float64 `json:"token_amount"`
	SolAmount   float64 `json:"sol_amount"`
}

// SubmitSwap sends the swap to the primary endpoint, failing over through
// the remaining healthy endpoints. A failing node is never retried twice
// within one submission, and each failover is preceded by a short backoff.
func (g *Gateway) SubmitSwap(ctx context.Context, req *SwapRequest) (*SwapResult, string, error) {
	order := g.submissionOrder()
	if len(order) == 0 {
		return nil, "", domain.ErrNoHealthyNodes
	}

	var lastErr error
	for n, idx := range order {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(time.Duration(n) * 200 * time.Millisecond):
			}
		}

		g.mu.RLock()
		ep := g.endpoints[idx]
		g.mu.RUnlock()

		start := time.Now()
		raw, err := g.call(ctx, ep, "sendTransaction", []interface{}{req})
		g.observe(idx, time.Since(start), err == nil)
		if err != nil {
			lastErr = err
			g.logger.Warn("rpc submission failed",
				zap.String("endpoint", ep.label), zap.Error(err))
			g.electPrimary()
			continue
		}

		var result SwapResult
		if err := json.Unmarshal(raw, &result); err != nil {
			lastErr = fmt.Errorf("decode swap result: %w", err)
			continue
		}
		return &result, ep.label, nil
	}
	return nil, "", fmt.Errorf("all endpoints failed: %w", lastErr)
}

// submissionOrder returns endpoint indexes: primary first, then the rest by
// health (success rate desc, latency asc). Unhealthy nodes go last.
func (g *Gateway) submissionOrder() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx := make([]int, 0, len(g.endpoints))
	for i := range g.endpoints {
		idx = append(idx, i)
	}
	primary := g.primary
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := g.endpoints[idx[a]], g.endpoints[idx[b]]
		if (idx[a] == primary) != (idx[b] == primary) {
			return idx[a] == primary
		}
		if ea.health.Healthy != eb.health.Healthy {
			return ea.health.Healthy
		}
		if ea.health.SuccessRate != eb.health.SuccessRate {
			return ea.health.SuccessRate > eb.health.SuccessRate
		}
		return ea.health.LatencyMs < eb.health.LatencyMs
	})
	return idx
}

func (g *Gateway) observe(idx int, latency time.Duration, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := &g.endpoints[idx].health
	ms := float64(latency.Milliseconds())
	if h.LatencyMs == 0 {
		h.LatencyMs = ms
	} else {
		h.LatencyMs = (1-latencyEwmaAlpha)*h.LatencyMs + latencyEwmaAlpha*ms
	}
	sample := 0.0
	if ok {
		sample = 1.0
		h.ConsecutiveFails = 0
		h.Healthy = true
	} else {
		h.ConsecutiveFails++
		if h.ConsecutiveFails >= demoteAfterFails {
			h.Healthy = false
		}
	}
	h.SuccessRate = (1-successEwmaAlpha)*h.SuccessRate + successEwmaAlpha*sample
	h.LastCheck = time.Now().UTC()
}

// electPrimary demotes an unhealthy primary and promotes the healthiest
// remaining endpoint. The transition is logged once.
func (g *Gateway) electPrimary() {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.endpoints[g.primary]
	if cur.health.Healthy {
		return
	}

	best := -1
	for i, ep := range g.endpoints {
		if i == g.primary || !ep.health.Healthy {
			continue
		}
		if best == -1 ||
			ep.health.SuccessRate > g.endpoints[best].health.SuccessRate ||
			(ep.health.SuccessRate == g.endpoints[best].health.SuccessRate &&
				ep.health.LatencyMs < g.endpoints[best].health.LatencyMs) {
			best = i
		}
	}
	if best == -1 {
		return // nothing healthy to promote, keep the current primary
	}

	cur.health.Primary = false
	g.endpoints[best].health.Primary = true
	g.logger.Warn("rpc primary demoted",
		zap.String("demoted", cur.label),
		zap.String("promoted", g.endpoints[best].label),
		zap.Int("consecutive_fails", cur.health.ConsecutiveFails))
	g.primary = best
}

// Congested reports whether the primary endpoint latency indicates network
// congestion; execution uses it to escalate priority fees.
func (g *Gateway) Congested() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.endpoints[g.primary].health.LatencyMs > g.cfg.CongestionLatencyMs
}

// Health returns a snapshot of every endpoint's health.
func (g *Gateway) Health() []domain.RPCNodeHealth {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.RPCNodeHealth, 0, len(g.endpoints))
	for _, ep := range g.endpoints {
		out = append(out, ep.health)
	}
	return out
}
