package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"tokensentry/internal/domain"
)

// OpportunityRepository Implementation

func (s *SQLiteStore) SaveOpportunity(ctx context.Context, o *domain.TokenOpportunity) error {
	signal, market, entry, scores, safety, err := marshalOpportunity(o)
	if err != nil {
		return err
	}
	query := `INSERT INTO opportunities (id, token_mint, token_symbol, signal, safety, market, entry, conviction,
			  category_scores, tier, status, reject_reason, reject_code, created_at, deadline)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		o.ID, o.TokenMint, o.TokenSymbol, signal, safety, market, entry, o.Conviction,
		scores, o.Tier, o.Status, o.RejectReason, o.RejectCode, o.CreatedAt, o.Deadline)
	return err
}

func (s *SQLiteStore) UpdateOpportunity(ctx context.Context, o *domain.TokenOpportunity) error {
	signal, market, entry, scores, safety, err := marshalOpportunity(o)
	if err != nil {
		return err
	}
	query := `UPDATE opportunities SET signal = ?, safety = ?, market = ?, entry = ?, conviction = ?,
			  category_scores = ?, tier = ?, status = ?, reject_reason = ?, reject_code = ? WHERE id = ?`
	_, err = s.db.ExecContext(ctx, query,
		signal, safety, market, entry, o.Conviction, scores, o.Tier, o.Status, o.RejectReason, o.RejectCode, o.ID)
	return err
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, limit int) ([]*domain.TokenOpportunity, error) {
	query := `SELECT id, token_mint, token_symbol, signal, safety, market, entry, conviction,
			  category_scores, tier, status, reject_reason, reject_code, created_at, deadline
			  FROM opportunities ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opps []*domain.TokenOpportunity
	for rows.Next() {
		var o domain.TokenOpportunity
		var signal, market, entry, scores string
		var safety sql.NullString
		if err := rows.Scan(&o.ID, &o.TokenMint, &o.TokenSymbol, &signal, &safety, &market, &entry,
			&o.Conviction, &scores, &o.Tier, &o.Status, &o.RejectReason, &o.RejectCode,
			&o.CreatedAt, &o.Deadline); err != nil {
			return nil, err
		}
		if err := unmarshalOpportunity(&o, signal, market, entry, scores, safety); err != nil {
			return nil, err
		}
		opps = append(opps, &o)
	}
	return opps, rows.Err()
}

func marshalOpportunity(o *domain.TokenOpportunity) (signal, market, entry, scores string, safety interface{}, err error) {
	b, err := json.Marshal(o.Signal)
	if err != nil {
		return
	}
	signal = string(b)
	if b, err = json.Marshal(o.Market); err != nil {
		return
	}
	market = string(b)
	if b, err = json.Marshal(o.Entry); err != nil {
		return
	}
	entry = string(b)
	if b, err = json.Marshal(o.CategoryScores); err != nil {
		return
	}
	scores = string(b)
	if o.Safety != nil {
		if b, err = json.Marshal(o.Safety); err != nil {
			return
		}
		safety = string(b)
	}
	return
}

func unmarshalOpportunity(o *domain.TokenOpportunity, signal, market, entry, scores string, safety sql.NullString) error {
	if err := json.Unmarshal([]byte(signal), &o.Signal); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(market), &o.Market); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(entry), &o.Entry); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(scores), &o.CategoryScores); err != nil {
		return err
	}
	if safety.Valid {
		o.Safety = &domain.SafetyResult{}
		if err := json.Unmarshal([]byte(safety.String), o.Safety); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRejection(ctx context.Context, r *domain.Rejection) error {
	query := `INSERT INTO rejections (token_mint, code, reason, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, r.TokenMint, r.Code, r.Reason, r.CreatedAt)
	return err
}

func (s *SQLiteStore) ListRejections(ctx context.Context, limit int) ([]*domain.Rejection, error) {
	query := `SELECT token_mint, code, reason, created_at FROM rejections ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rejections []*domain.Rejection
	for rows.Next() {
		var r domain.Rejection
		if err := rows.Scan(&r.TokenMint, &r.Code, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		rejections = append(rejections, &r)
	}
	return rejections, rows.Err()
}

// WalletRepository Implementation

func (s *SQLiteStore) SaveWallet(ctx context.Context, w *domain.SmartWallet) error {
	query := `INSERT INTO wallets (address, label, tier, win_rate, added_at) VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(address) DO UPDATE SET label=excluded.label, tier=excluded.tier, win_rate=excluded.win_rate`
	_, err := s.db.ExecContext(ctx, query, w.Address, w.Label, w.Tier, w.WinRate, w.AddedAt)
	return err
}

func (s *SQLiteStore) DeleteWallet(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM wallets WHERE address = ?", address)
	return err
}

func (s *SQLiteStore) ListWallets(ctx context.Context) ([]*domain.SmartWallet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address, label, tier, win_rate, added_at FROM wallets")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*domain.SmartWallet
	for rows.Next() {
		var w domain.SmartWallet
		if err := rows.Scan(&w.Address, &w.Label, &w.Tier, &w.WinRate, &w.AddedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, &w)
	}
	return wallets, rows.Err()
}

func (s *SQLiteStore) UpdateWalletTier(ctx context.Context, address string, tier domain.WalletTier) error {
	res, err := s.db.ExecContext(ctx, "UPDATE wallets SET tier = ? WHERE address = ?", tier, address)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return err
}

// BlacklistRepository Implementation

func (s *SQLiteStore) AddToBlacklist(ctx context.Context, e *domain.BlacklistEntry) error {
	query := `INSERT INTO blacklist (address, reason, created_at) VALUES (?, ?, ?)
			  ON CONFLICT(address) DO UPDATE SET reason=excluded.reason`
	_, err := s.db.ExecContext(ctx, query, e.Address, e.Reason, e.CreatedAt)
	return err
}

func (s *SQLiteStore) RemoveFromBlacklist(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blacklist WHERE address = ?", address)
	return err
}

func (s *SQLiteStore) ListBlacklist(ctx context.Context) ([]*domain.BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address, reason, created_at FROM blacklist ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.BlacklistEntry
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(&e.Address, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT 1 FROM blacklist WHERE address = ?", address)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
