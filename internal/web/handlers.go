package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tokensentry/internal/domain"
	"tokensentry/internal/usecase"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondErr(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if encErr := json.NewEncoder(w).Encode(apiResponse{Error: msg, Code: code}); encErr != nil {
		s.logger.Error("Failed to encode error response", zap.Error(encErr))
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Start(r.Context()); err != nil {
		s.respondErr(w, http.StatusConflict, "bot_state", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"state": "RUNNING"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Stop(r.Context()); err != nil {
		s.respondErr(w, http.StatusConflict, "bot_state", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"state": "STOPPED"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Pause(r.Context()); err != nil {
		s.respondErr(w, http.StatusConflict, "bot_state", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"state": "PAUSED"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Resume(r.Context()); err != nil {
		s.respondErr(w, http.StatusConflict, "bot_state", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"state": "RUNNING"})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	liquidated := s.bot.Kill(r.Context(), "api")
	s.respond(w, http.StatusOK, map[string]interface{}{
		"killed":      true,
		"liquidating": liquidated,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var settings usecase.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := s.bot.UpdateSettings(r.Context(), settings); err != nil {
		s.respondErr(w, http.StatusUnprocessableEntity, "invalid_settings", err)
		return
	}
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleRegimeOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Regime string `json:"regime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	regime := domain.Regime(body.Regime)
	switch regime {
	case domain.RegimeFull, domain.RegimeCautious, domain.RegimeDefensive, domain.RegimePause:
	default:
		s.respondErr(w, http.StatusBadRequest, "invalid_regime", nil)
		return
	}
	s.regime.Override(regime)
	s.audit.Record(r.Context(), usecase.ActionRegimeOverride, "api", map[string]interface{}{
		"regime": body.Regime,
	}, "ok")
	s.respond(w, http.StatusOK, s.regime.State())
}

func (s *Server) handleRegimeClearOverride(w http.ResponseWriter, r *http.Request) {
	s.regime.ClearOverride()
	s.audit.Record(r.Context(), usecase.ActionRegimeOverride, "api", map[string]interface{}{
		"regime": "cleared",
	}, "ok")
	s.respond(w, http.StatusOK, s.regime.State())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mint string `json:"mint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := s.scanner.Enqueue(r.Context(), body.Mint); err != nil {
		if errors.Is(err, domain.ErrInvalidAddress) {
			s.respondErr(w, http.StatusBadRequest, "invalid_address", err)
			return
		}
		s.respondErr(w, http.StatusServiceUnavailable, "queue_full", err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]string{"mint": body.Mint})
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.position.ManualClose(r.Context(), id)
	switch err {
	case nil:
		// Audited only once the close was actually submitted; a request
		// for an unknown or already-closing position changes no state.
		s.audit.Record(r.Context(), usecase.ActionPositionClose, "api", map[string]interface{}{
			"position_id": id,
		}, "submitted")
		s.respond(w, http.StatusOK, nil)
	case domain.ErrNotFound:
		s.respondErr(w, http.StatusNotFound, "not_found", err)
	case domain.ErrPositionClosing:
		s.respondErr(w, http.StatusConflict, "position_closing", err)
	default:
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
	}
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.wallets.ListWallets(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, wallets)
}

func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var wallet domain.SmartWallet
	if err := json.NewDecoder(r.Body).Decode(&wallet); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := domain.ValidateAddress(wallet.Address); err != nil {
		s.respondErr(w, http.StatusBadRequest, "invalid_address", err)
		return
	}
	switch wallet.Tier {
	case domain.WalletTierS, domain.WalletTierA, domain.WalletTierB:
	default:
		wallet.Tier = domain.WalletTierB
	}
	wallet.AddedAt = time.Now().UTC()

	if err := s.wallets.SaveWallet(r.Context(), &wallet); err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionWalletAdd, "api", map[string]interface{}{
		"address": wallet.Address,
		"tier":    string(wallet.Tier),
	}, "ok")
	s.respond(w, http.StatusCreated, wallet)
}

func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if err := s.wallets.DeleteWallet(r.Context(), address); err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionWalletRemove, "api", map[string]interface{}{
		"address": address,
	}, "ok")
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleWalletTier(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	var body struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	tier := domain.WalletTier(body.Tier)
	switch tier {
	case domain.WalletTierS, domain.WalletTierA, domain.WalletTierB:
	default:
		s.respondErr(w, http.StatusBadRequest, "invalid_tier", nil)
		return
	}

	err := s.wallets.UpdateWalletTier(r.Context(), address, tier)
	if err == domain.ErrNotFound {
		s.respondErr(w, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionWalletTier, "api", map[string]interface{}{
		"address": address,
		"tier":    body.Tier,
	}, "ok")
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.blacklist.ListBlacklist(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, entries)
}

func (s *Server) handleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	var entry domain.BlacklistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := domain.ValidateAddress(entry.Address); err != nil {
		s.respondErr(w, http.StatusBadRequest, "invalid_address", err)
		return
	}
	entry.CreatedAt = time.Now().UTC()

	if err := s.blacklist.AddToBlacklist(r.Context(), &entry); err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionBlacklistAdd, "api", map[string]interface{}{
		"address": entry.Address,
		"reason":  entry.Reason,
	}, "ok")
	s.respond(w, http.StatusCreated, entry)
}

func (s *Server) handleRemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if err := s.blacklist.RemoveFromBlacklist(r.Context(), address); err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionBlacklistRemove, "api", map[string]interface{}{
		"address": address,
	}, "ok")
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleWeightLock(w http.ResponseWriter, r *http.Request) {
	s.setWeightLock(w, r, true, usecase.ActionWeightLock)
}

func (s *Server) handleWeightUnlock(w http.ResponseWriter, r *http.Request) {
	s.setWeightLock(w, r, false, usecase.ActionWeightUnlock)
}

func (s *Server) setWeightLock(w http.ResponseWriter, r *http.Request, locked bool, action string) {
	category := r.PathValue("category")
	err := s.learning.Lock(r.Context(), category, locked)
	if err == domain.ErrNotFound {
		s.respondErr(w, http.StatusNotFound, "unknown_category", err)
		return
	}
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), action, "api", map[string]interface{}{
		"category": category,
	}, "ok")
	s.respond(w, http.StatusOK, s.learning.Weights())
}

func (s *Server) handleWeightsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.learning.Reset(r.Context()); err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionWeightReset, "api", nil, "ok")
	s.respond(w, http.StatusOK, s.learning.Weights())
}

func (s *Server) handleLearningMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondErr(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := s.learning.SetMode(body.Mode); err != nil {
		s.respondErr(w, http.StatusBadRequest, "invalid_mode", err)
		return
	}
	s.audit.Record(r.Context(), usecase.ActionLearningMode, "api", map[string]interface{}{
		"mode": body.Mode,
	}, "ok")
	s.respond(w, http.StatusOK, map[string]string{"mode": body.Mode})
}
