package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"tokensentry/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			token_mint TEXT NOT NULL,
			token_symbol TEXT NOT NULL,
			entry_price REAL NOT NULL,
			entry_amount REAL NOT NULL,
			entry_sol REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			conviction REAL NOT NULL,
			entry_tier TEXT NOT NULL,
			category_scores TEXT NOT NULL DEFAULT '{}',
			wallet_count INTEGER NOT NULL DEFAULT 0,
			hype_phase TEXT NOT NULL DEFAULT '',
			remaining_amount REAL NOT NULL,
			current_price REAL NOT NULL,
			ath_price REAL NOT NULL,
			stop_price REAL NOT NULL,
			trailing_active BOOLEAN NOT NULL DEFAULT 0,
			trailing_pct REAL NOT NULL DEFAULT 0,
			tp1_hit BOOLEAN NOT NULL DEFAULT 0,
			tp2_hit BOOLEAN NOT NULL DEFAULT 0,
			tp3_hit BOOLEAN NOT NULL DEFAULT 0,
			tp4_hit BOOLEAN NOT NULL DEFAULT 0,
			realized_sol REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			paper BOOLEAN NOT NULL DEFAULT 0,
			closed_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL,
			token_mint TEXT NOT NULL,
			token_symbol TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			amount REAL NOT NULL,
			entry_sol REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL,
			exit_reason TEXT NOT NULL,
			outcome TEXT NOT NULL,
			pnl_sol REAL NOT NULL,
			pnl_pct REAL NOT NULL,
			conviction REAL NOT NULL,
			entry_tier TEXT NOT NULL,
			category_scores TEXT NOT NULL,
			wallet_count INTEGER NOT NULL DEFAULT 0,
			hype_phase TEXT NOT NULL DEFAULT '',
			paper BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id TEXT PRIMARY KEY,
			token_mint TEXT NOT NULL,
			token_symbol TEXT NOT NULL,
			signal TEXT NOT NULL,
			safety TEXT,
			market TEXT NOT NULL,
			entry TEXT NOT NULL,
			conviction REAL NOT NULL,
			category_scores TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			reject_reason TEXT NOT NULL DEFAULT '',
			reject_code TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			deadline DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_mint TEXT NOT NULL,
			code TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS learning_weights (
			category TEXT PRIMARY KEY,
			weight REAL NOT NULL,
			baseline REAL NOT NULL,
			locked BOOLEAN NOT NULL DEFAULT 0,
			predictive REAL NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS learning_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			features TEXT NOT NULL,
			occurrences INTEGER NOT NULL,
			win_rate REAL NOT NULL,
			avg_return REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			address TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			tier TEXT NOT NULL,
			win_rate REAL NOT NULL DEFAULT 0,
			added_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			address TEXT PRIMARY KEY,
			reason TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			status TEXT NOT NULL,
			checksum TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tx_log (
			id TEXT PRIMARY KEY,
			intent TEXT NOT NULL,
			token_mint TEXT NOT NULL,
			token_amount REAL NOT NULL,
			sol_amount REAL NOT NULL,
			success BOOLEAN NOT NULL,
			attempts INTEGER NOT NULL,
			slippage_bps INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			endpoint TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			paper BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// PositionRepository Implementation

func (s *SQLiteStore) SavePosition(ctx context.Context, p *domain.Position) error {
	scores, err := json.Marshal(p.CategoryScores)
	if err != nil {
		return err
	}
	query := `INSERT INTO positions (id, token_mint, token_symbol, entry_price, entry_amount, entry_sol, entry_time,
			  conviction, entry_tier, category_scores, wallet_count, hype_phase, remaining_amount, current_price,
			  ath_price, stop_price, trailing_active, trailing_pct,
			  tp1_hit, tp2_hit, tp3_hit, tp4_hit, realized_sol, status, paper, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.TokenMint, p.TokenSymbol, p.EntryPrice, p.EntryAmount, p.EntrySol, p.EntryTime,
		p.Conviction, p.EntryTier, string(scores), p.WalletCount, p.HypePhase, p.RemainingAmount, p.CurrentPrice,
		p.ATHPrice, p.StopPrice, p.TrailingActive, p.TrailingPct, p.TP1Hit, p.TP2Hit, p.TP3Hit, p.TP4Hit,
		p.RealizedSol, p.Status, p.Paper, nullTime(p.ClosedAt))
	return err
}

func (s *SQLiteStore) UpdatePosition(ctx context.Context, p *domain.Position) error {
	query := `UPDATE positions SET remaining_amount = ?, current_price = ?, ath_price = ?, stop_price = ?,
			  trailing_active = ?, trailing_pct = ?, tp1_hit = ?, tp2_hit = ?, tp3_hit = ?, tp4_hit = ?,
			  realized_sol = ?, status = ?, closed_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query,
		p.RemainingAmount, p.CurrentPrice, p.ATHPrice, p.StopPrice,
		p.TrailingActive, p.TrailingPct, p.TP1Hit, p.TP2Hit, p.TP3Hit, p.TP4Hit,
		p.RealizedSol, p.Status, nullTime(p.ClosedAt), p.ID)
	return err
}

func (s *SQLiteStore) ListOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT id, token_mint, token_symbol, entry_price, entry_amount, entry_sol, entry_time,
			  conviction, entry_tier, category_scores, wallet_count, hype_phase, remaining_amount, current_price,
			  ath_price, stop_price, trailing_active, trailing_pct,
			  tp1_hit, tp2_hit, tp3_hit, tp4_hit, realized_sol, status, paper
			  FROM positions WHERE status != 'CLOSED'`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		var scores string
		if err := rows.Scan(&p.ID, &p.TokenMint, &p.TokenSymbol, &p.EntryPrice, &p.EntryAmount, &p.EntrySol, &p.EntryTime,
			&p.Conviction, &p.EntryTier, &scores, &p.WalletCount, &p.HypePhase, &p.RemainingAmount, &p.CurrentPrice,
			&p.ATHPrice, &p.StopPrice, &p.TrailingActive, &p.TrailingPct, &p.TP1Hit, &p.TP2Hit, &p.TP3Hit, &p.TP4Hit,
			&p.RealizedSol, &p.Status, &p.Paper); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &p.CategoryScores); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	scores, err := json.Marshal(t.CategoryScores)
	if err != nil {
		return err
	}
	query := `INSERT INTO trades (id, position_id, token_mint, token_symbol, entry_price, exit_price, amount, entry_sol,
			  entry_time, exit_time, exit_reason, outcome, pnl_sol, pnl_pct, conviction, entry_tier, category_scores,
			  wallet_count, hype_phase, paper)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.PositionID, t.TokenMint, t.TokenSymbol, t.EntryPrice, t.ExitPrice, t.Amount, t.EntrySol,
		t.EntryTime, t.ExitTime, t.ExitReason, t.Outcome, t.PnlSol, t.PnlPct, t.Conviction, t.EntryTier,
		string(scores), t.WalletCount, t.HypePhase, t.Paper)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT id, position_id, token_mint, token_symbol, entry_price, exit_price, amount, entry_sol,
			  entry_time, exit_time, exit_reason, outcome, pnl_sol, pnl_pct, conviction, entry_tier, category_scores,
			  wallet_count, hype_phase, paper
			  FROM trades ORDER BY exit_time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var scores string
		if err := rows.Scan(&t.ID, &t.PositionID, &t.TokenMint, &t.TokenSymbol, &t.EntryPrice, &t.ExitPrice,
			&t.Amount, &t.EntrySol, &t.EntryTime, &t.ExitTime, &t.ExitReason, &t.Outcome, &t.PnlSol, &t.PnlPct,
			&t.Conviction, &t.EntryTier, &scores, &t.WalletCount, &t.HypePhase, &t.Paper); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &t.CategoryScores); err != nil {
			return nil, err
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) TradeStats(ctx context.Context) (*domain.TradeStats, error) {
	query := `SELECT COUNT(*),
			  COALESCE(SUM(CASE WHEN outcome = 'WIN' THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(CASE WHEN outcome = 'LOSS' THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(CASE WHEN outcome = 'BREAKEVEN' THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(pnl_sol), 0), COALESCE(AVG(pnl_pct), 0),
			  COALESCE(MAX(pnl_pct), 0), COALESCE(MIN(pnl_pct), 0)
			  FROM trades WHERE paper = 0`
	row := s.db.QueryRowContext(ctx, query)

	var st domain.TradeStats
	if err := row.Scan(&st.Total, &st.Wins, &st.Losses, &st.Breakeven,
		&st.TotalPnl, &st.AvgPnlPct, &st.BestPct, &st.WorstPct); err != nil {
		return nil, err
	}
	if st.Total > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Total)
	}
	return &st, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
