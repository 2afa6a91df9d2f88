package domain

import "time"

// RPCNodeHealth is the rolling health of one RPC endpoint. Exactly one node
// is primary at a time; promotion and demotion are explicit transitions.
type RPCNodeHealth struct {
	Label            string    `json:"label"`
	URL              string    `json:"url"`
	LatencyMs        float64   `json:"latency_ms"`
	SuccessRate      float64   `json:"success_rate"`
	Primary          bool      `json:"primary"`
	Healthy          bool      `json:"healthy"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	LastCheck        time.Time `json:"last_check"`
}

type TradeIntent string

const (
	IntentBuy           TradeIntent = "BUY"
	IntentSell          TradeIntent = "SELL"
	IntentEmergencySell TradeIntent = "EMERGENCY_SELL"
)

// TradeOrder is an execution intent handed to a TradeExecutor.
type TradeOrder struct {
	Intent         TradeIntent
	TokenMint      string
	TokenAmount    float64 // tokens to sell (SELL intents)
	SolAmount      float64 // quote to spend (BUY intent)
	ExpectedPrice  float64
	MaxSlippageBps int
}

// TradeFill is the realized result of a submitted order.
type TradeFill struct {
	Signature   string
	Price       float64
	TokenAmount float64
	SolAmount   float64
	SlippageBps int
	Attempts    int
	LatencyMs   int64
}

// TxRecord is one submission outcome kept for learning and audit.
type TxRecord struct {
	ID          string      `json:"id"`
	Intent      TradeIntent `json:"intent"`
	TokenMint   string      `json:"token_mint"`
	TokenAmount float64     `json:"token_amount"`
	SolAmount   float64     `json:"sol_amount"`
	Success     bool        `json:"success"`
	Attempts    int         `json:"attempts"`
	SlippageBps int         `json:"slippage_bps"`
	LatencyMs   int64       `json:"latency_ms"`
	Endpoint    string      `json:"endpoint"`
	Error       string      `json:"error,omitempty"`
	Paper       bool        `json:"paper"`
	CreatedAt   time.Time   `json:"created_at"`
}
