package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tokensentry/internal/domain"
	"tokensentry/internal/usecase"
)

// HealthReporter exposes RPC endpoint health for the status API.
type HealthReporter interface {
	Health() []domain.RPCNodeHealth
}

type Server struct {
	router *http.ServeMux
	server *http.Server

	bot      *usecase.BotService
	scanner  *usecase.Scanner
	regime   *usecase.RegimeDetector
	learning *usecase.LearningScheduler
	position *usecase.PositionManager
	rpc      HealthReporter

	trades    domain.TradeRepository
	opps      domain.OpportunityRepository
	wallets   domain.WalletRepository
	blacklist domain.BlacklistRepository
	auditRepo domain.AuditRepository
	txLog     domain.TxLogRepository
	audit     *usecase.AuditService
	logger    *zap.Logger
}

func NewServer(
	port int,
	bot *usecase.BotService,
	scanner *usecase.Scanner,
	regime *usecase.RegimeDetector,
	learning *usecase.LearningScheduler,
	position *usecase.PositionManager,
	rpc HealthReporter,
	trades domain.TradeRepository,
	opps domain.OpportunityRepository,
	wallets domain.WalletRepository,
	blacklist domain.BlacklistRepository,
	auditRepo domain.AuditRepository,
	txLog domain.TxLogRepository,
	audit *usecase.AuditService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		bot:       bot,
		scanner:   scanner,
		regime:    regime,
		learning:  learning,
		position:  position,
		rpc:       rpc,
		trades:    trades,
		opps:      opps,
		wallets:   wallets,
		blacklist: blacklist,
		auditRepo: auditRepo,
		txLog:     txLog,
		audit:     audit,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Control
	s.router.HandleFunc("POST /api/control/start", s.handleStart)
	s.router.HandleFunc("POST /api/control/stop", s.handleStop)
	s.router.HandleFunc("POST /api/control/pause", s.handlePause)
	s.router.HandleFunc("POST /api/control/resume", s.handleResume)
	s.router.HandleFunc("POST /api/control/kill", s.handleKill)

	// Settings and regime
	s.router.HandleFunc("POST /api/settings", s.handleSettings)
	s.router.HandleFunc("POST /api/regime/override", s.handleRegimeOverride)
	s.router.HandleFunc("DELETE /api/regime/override", s.handleRegimeClearOverride)

	// Analysis and positions
	s.router.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.router.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)

	// Wallets
	s.router.HandleFunc("GET /api/wallets", s.handleListWallets)
	s.router.HandleFunc("POST /api/wallets", s.handleAddWallet)
	s.router.HandleFunc("DELETE /api/wallets/{address}", s.handleRemoveWallet)
	s.router.HandleFunc("PUT /api/wallets/{address}/tier", s.handleWalletTier)

	// Blacklist
	s.router.HandleFunc("GET /api/blacklist", s.handleListBlacklist)
	s.router.HandleFunc("POST /api/blacklist", s.handleAddBlacklist)
	s.router.HandleFunc("DELETE /api/blacklist/{address}", s.handleRemoveBlacklist)

	// Learning
	s.router.HandleFunc("GET /api/learning/weights", s.handleWeights)
	s.router.HandleFunc("GET /api/learning/patterns", s.handlePatterns)
	s.router.HandleFunc("POST /api/learning/weights/{category}/lock", s.handleWeightLock)
	s.router.HandleFunc("POST /api/learning/weights/{category}/unlock", s.handleWeightUnlock)
	s.router.HandleFunc("POST /api/learning/reset", s.handleWeightsReset)
	s.router.HandleFunc("POST /api/learning/mode", s.handleLearningMode)

	// Status
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.HandleFunc("GET /api/trades/stats", s.handleTradeStats)
	s.router.HandleFunc("GET /api/opportunities", s.handleOpportunities)
	s.router.HandleFunc("GET /api/rejections", s.handleRejections)
	s.router.HandleFunc("GET /api/regime", s.handleRegime)
	s.router.HandleFunc("GET /api/rpc/health", s.handleRPCHealth)
	s.router.HandleFunc("GET /api/scanner/stats", s.handleScannerStats)
	s.router.HandleFunc("GET /api/audit", s.handleAudit)
	s.router.HandleFunc("GET /api/transactions", s.handleTxLog)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
