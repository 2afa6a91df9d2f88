package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
	"tokensentry/internal/infrastructure/rpcpool"
)

// ExecutionManager turns trade orders into submitted transactions via the
// RPC gateway, with bounded retries, per-intent slippage ceilings and
// priority fee escalation under congestion.
type ExecutionManager struct {
	gateway *rpcpool.Gateway
	txLog   domain.TxLogRepository
	logger  *zap.Logger
	cfg     config.ExecutionConfig
}

func NewExecutionManager(gateway *rpcpool.Gateway, txLog domain.TxLogRepository, cfg config.ExecutionConfig, logger *zap.Logger) *ExecutionManager {
	return &ExecutionManager{
		gateway: gateway,
		txLog:   txLog,
		logger:  logger,
		cfg:     cfg,
	}
}

func (m *ExecutionManager) ceilingFor(intent domain.TradeIntent) int {
	switch intent {
	case domain.IntentBuy:
		return m.cfg.BuySlippageBps
	case domain.IntentSell:
		return m.cfg.SellSlippageBps
	default:
		return m.cfg.EmergencySlippageBps
	}
}

func (m *ExecutionManager) attemptsFor(intent domain.TradeIntent) int {
	if intent == domain.IntentEmergencySell {
		return m.cfg.EmergencyMaxAttempts
	}
	return m.cfg.MaxAttempts
}

func (m *ExecutionManager) timeoutFor(intent domain.TradeIntent) time.Duration {
	// Emergency liquidation trades latency for certainty.
	if intent == domain.IntentEmergencySell {
		return m.cfg.EmergencyTimeout
	}
	return m.cfg.SubmitTimeout
}

// Execute submits the order, retrying with escalating priority fees. The
// realized slippage ceiling aborts all intents except EMERGENCY_SELL, which
// accepts bounded worse execution to guarantee the exit.
func (m *ExecutionManager) Execute(ctx context.Context, order *domain.TradeOrder) (*domain.TradeFill, error) {
	ceiling := order.MaxSlippageBps
	if ceiling == 0 {
		ceiling = m.ceilingFor(order.Intent)
	}
	maxAttempts := m.attemptsFor(order.Intent)

	start := time.Now()
	var lastErr error
	var endpoint string
	attempts := 0

	for attempts < maxAttempts {
		attempts++
		if attempts > 1 {
			select {
			case <-ctx.Done():
				err := fmt.Errorf("execution cancelled: %w", ctx.Err())
				m.record(ctx, order, endpoint, attempts-1, 0, start, false, err)
				return nil, err
			case <-time.After(m.cfg.RetryBackoff * time.Duration(attempts-1)):
			}
		}

		fee := m.cfg.BasePriorityFee
		if m.gateway.Congested() {
			// Double the fee per attempt while the network is congested.
			fee = m.cfg.BasePriorityFee << uint(attempts)
		}

		cctx, cancel := context.WithTimeout(ctx, m.timeoutFor(order.Intent))
		result, ep, err := m.gateway.SubmitSwap(cctx, &rpcpool.SwapRequest{
			Intent:         order.Intent,
			TokenMint:      order.TokenMint,
			TokenAmount:    order.TokenAmount,
			SolAmount:      order.SolAmount,
			MaxSlippageBps: ceiling,
			PriorityFee:    fee,
		})
		cancel()
		endpoint = ep
		if err != nil {
			lastErr = err
			m.logger.Warn("swap submission failed",
				zap.String("intent", string(order.Intent)),
				zap.String("mint", order.TokenMint),
				zap.Int("attempt", attempts),
				zap.Error(err))
			continue
		}

		slippage := realizedSlippageBps(order.ExpectedPrice, result.Price, order.Intent)
		if slippage > ceiling {
			lastErr = fmt.Errorf("%w: realized %d bps, ceiling %d bps",
				domain.ErrSlippageExceeded, slippage, ceiling)
			if order.Intent != domain.IntentEmergencySell {
				m.record(ctx, order, endpoint, attempts, slippage, start, false, lastErr)
				return nil, lastErr
			}
			// Emergency exit accepts the fill anyway; correctness of the
			// exit matters more than the price.
			m.logger.Warn("emergency sell beyond slippage ceiling, accepting fill",
				zap.String("mint", order.TokenMint), zap.Int("slippage_bps", slippage))
		}

		fill := &domain.TradeFill{
			Signature:   result.Signature,
			Price:       result.Price,
			TokenAmount: result.TokenAmount,
			SolAmount:   result.SolAmount,
			SlippageBps: slippage,
			Attempts:    attempts,
			LatencyMs:   time.Since(start).Milliseconds(),
		}
		m.record(ctx, order, endpoint, attempts, slippage, start, true, nil)
		return fill, nil
	}

	err := fmt.Errorf("execution exhausted after %d attempts: %w", attempts, lastErr)
	m.record(ctx, order, endpoint, attempts, 0, start, false, err)
	return nil, err
}

func (m *ExecutionManager) record(ctx context.Context, order *domain.TradeOrder, endpoint string, attempts, slippage int, start time.Time, success bool, execErr error) {
	rec := &domain.TxRecord{
		ID:          uuid.NewString(),
		Intent:      order.Intent,
		TokenMint:   order.TokenMint,
		TokenAmount: order.TokenAmount,
		SolAmount:   order.SolAmount,
		Success:     success,
		Attempts:    attempts,
		SlippageBps: slippage,
		LatencyMs:   time.Since(start).Milliseconds(),
		Endpoint:    endpoint,
		CreatedAt:   time.Now().UTC(),
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	// The record must survive caller cancellation.
	if err := m.txLog.SaveTx(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Error("failed to record tx outcome", zap.Error(err))
	}
}

// realizedSlippageBps is the adverse price move versus the expected price:
// paying more on a buy, receiving less on a sell.
func realizedSlippageBps(expected, executed float64, intent domain.TradeIntent) int {
	if expected <= 0 {
		return 0
	}
	diff := (executed - expected) / expected
	if intent != domain.IntentBuy {
		diff = -diff
	}
	if diff < 0 {
		return 0
	}
	return int(math.Round(diff * 10_000))
}

// PaperExecutor fills orders at the expected price with modeled slippage.
// It never touches the RPC layer.
type PaperExecutor struct {
	txLog  domain.TxLogRepository
	logger *zap.Logger
	cfg    config.ExecutionConfig
}

func NewPaperExecutor(txLog domain.TxLogRepository, cfg config.ExecutionConfig, logger *zap.Logger) *PaperExecutor {
	return &PaperExecutor{txLog: txLog, logger: logger, cfg: cfg}
}

func (p *PaperExecutor) Execute(ctx context.Context, order *domain.TradeOrder) (*domain.TradeFill, error) {
	if order.ExpectedPrice <= 0 {
		return nil, fmt.Errorf("paper fill needs an expected price")
	}

	slip := float64(p.cfg.PaperSlippageBps) / 10_000
	price := order.ExpectedPrice * (1 + slip)
	if order.Intent != domain.IntentBuy {
		price = order.ExpectedPrice * (1 - slip)
	}

	fill := &domain.TradeFill{
		Signature:   "paper-" + uuid.NewString(),
		Price:       price,
		SlippageBps: p.cfg.PaperSlippageBps,
		Attempts:    1,
	}
	if order.Intent == domain.IntentBuy {
		fill.SolAmount = order.SolAmount
		fill.TokenAmount = order.SolAmount / price
	} else {
		fill.TokenAmount = order.TokenAmount
		fill.SolAmount = order.TokenAmount * price
	}

	rec := &domain.TxRecord{
		ID:          uuid.NewString(),
		Intent:      order.Intent,
		TokenMint:   order.TokenMint,
		TokenAmount: fill.TokenAmount,
		SolAmount:   fill.SolAmount,
		Success:     true,
		Attempts:    1,
		SlippageBps: fill.SlippageBps,
		Endpoint:    "paper",
		Paper:       true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.txLog.SaveTx(ctx, rec); err != nil {
		p.logger.Error("failed to record paper tx", zap.Error(err))
	}
	return fill, nil
}

var (
	_ domain.TradeExecutor = (*ExecutionManager)(nil)
	_ domain.TradeExecutor = (*PaperExecutor)(nil)
)
