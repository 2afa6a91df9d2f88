package usecase

import (
	"context"

	"go.uber.org/zap"

	"tokensentry/internal/domain"
)

// PaperShadow mirrors every admitted decision into a paper position book
// supervised alongside the live one. Shadow fills, exits and trades never
// touch the risk governor or the learning batch.
type PaperShadow struct {
	executor  domain.TradeExecutor
	positions *PositionManager
	logger    *zap.Logger
}

func NewPaperShadow(executor domain.TradeExecutor, positions *PositionManager, logger *zap.Logger) *PaperShadow {
	return &PaperShadow{
		executor:  executor,
		positions: positions,
		logger:    logger,
	}
}

// Start runs the shadow book's own tick loop.
func (p *PaperShadow) Start(ctx context.Context) {
	p.positions.Start(ctx)
}

func (p *PaperShadow) Stop() {
	p.positions.Stop()
}

// OnAdmit opens a paper position for an admitted decision.
func (p *PaperShadow) OnAdmit(ctx context.Context, opp *domain.TokenOpportunity, d *Decision) {
	order := &domain.TradeOrder{
		Intent:        domain.IntentBuy,
		TokenMint:     opp.TokenMint,
		SolAmount:     d.SizeSol,
		ExpectedPrice: opp.Market.Price,
	}
	fill, err := p.executor.Execute(ctx, order)
	if err != nil {
		p.logger.Warn("paper entry failed", zap.String("mint", opp.TokenMint), zap.Error(err))
		return
	}
	if _, err := p.positions.Open(ctx, opp, d, fill); err != nil {
		p.logger.Warn("paper position open failed", zap.String("mint", opp.TokenMint), zap.Error(err))
	}
}

// Positions exposes the shadow book for the status API.
func (p *PaperShadow) Positions() []*domain.Position {
	return p.positions.Positions()
}
