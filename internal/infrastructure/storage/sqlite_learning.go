package storage

import (
	"context"

	"tokensentry/internal/domain"
)

// LearningRepository Implementation

func (s *SQLiteStore) SaveWeights(ctx context.Context, w *domain.LearningWeights) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO learning_weights (category, weight, baseline, locked, predictive)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(category) DO UPDATE SET
			  weight=excluded.weight, locked=excluded.locked, predictive=excluded.predictive`
	for name, c := range w.Categories {
		if _, err := tx.ExecContext(ctx, query, name, c.Weight, c.Baseline, c.Locked, c.Predictive); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetWeights(ctx context.Context) (*domain.LearningWeights, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT category, weight, baseline, locked, predictive FROM learning_weights")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	w := &domain.LearningWeights{Categories: make(map[string]*domain.CategoryWeight)}
	for rows.Next() {
		var name string
		var c domain.CategoryWeight
		if err := rows.Scan(&name, &c.Weight, &c.Baseline, &c.Locked, &c.Predictive); err != nil {
			return nil, err
		}
		w.Categories[name] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(w.Categories) == 0 {
		return nil, domain.ErrNotFound
	}
	return w, nil
}

func (s *SQLiteStore) ReplacePatterns(ctx context.Context, patterns []*domain.LearningPattern) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM learning_patterns"); err != nil {
		return err
	}
	query := `INSERT INTO learning_patterns (kind, features, occurrences, win_rate, avg_return) VALUES (?, ?, ?, ?, ?)`
	for _, p := range patterns {
		if _, err := tx.ExecContext(ctx, query, p.Kind, p.Features, p.Occurrences, p.WinRate, p.AvgReturn); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]*domain.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, features, occurrences, win_rate, avg_return FROM learning_patterns ORDER BY occurrences DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.LearningPattern
	for rows.Next() {
		var p domain.LearningPattern
		if err := rows.Scan(&p.Kind, &p.Features, &p.Occurrences, &p.WinRate, &p.AvgReturn); err != nil {
			return nil, err
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

// AuditRepository Implementation

func (s *SQLiteStore) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	query := `INSERT INTO audit_log (id, action, actor, details, status, checksum, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, e.ID, e.Action, e.Actor, e.Details, e.Status, e.Checksum, e.CreatedAt)
	return err
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	query := `SELECT id, action, actor, details, status, checksum, created_at
			  FROM audit_log ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.Details, &e.Status, &e.Checksum, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// TxLogRepository Implementation

func (s *SQLiteStore) SaveTx(ctx context.Context, r *domain.TxRecord) error {
	query := `INSERT INTO tx_log (id, intent, token_mint, token_amount, sol_amount, success, attempts,
			  slippage_bps, latency_ms, endpoint, error, paper, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, r.ID, r.Intent, r.TokenMint, r.TokenAmount, r.SolAmount,
		r.Success, r.Attempts, r.SlippageBps, r.LatencyMs, r.Endpoint, r.Error, r.Paper, r.CreatedAt)
	return err
}

func (s *SQLiteStore) ListTx(ctx context.Context, limit int) ([]*domain.TxRecord, error) {
	query := `SELECT id, intent, token_mint, token_amount, sol_amount, success, attempts,
			  slippage_bps, latency_ms, endpoint, error, paper, created_at
			  FROM tx_log ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TxRecord
	for rows.Next() {
		var r domain.TxRecord
		if err := rows.Scan(&r.ID, &r.Intent, &r.TokenMint, &r.TokenAmount, &r.SolAmount, &r.Success,
			&r.Attempts, &r.SlippageBps, &r.LatencyMs, &r.Endpoint, &r.Error, &r.Paper, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
