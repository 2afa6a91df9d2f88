package web

import (
	"net/http"
	"strconv"
)

const defaultListLimit = 100

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return defaultListLimit
	}
	return n
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.position.Positions())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListTrades(r.Context(), listLimit(r))
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, trades)
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.trades.TradeStats(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := s.opps.ListOpportunities(r.Context(), listLimit(r))
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, opps)
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	rejections, err := s.opps.ListRejections(r.Context(), listLimit(r))
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, rejections)
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.regime.State())
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.learning.Weights())
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.learning.Patterns(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, patterns)
}

func (s *Server) handleScannerStats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.scanner.Stats())
}

func (s *Server) handleRPCHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.rpc.Health())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.auditRepo.ListAudit(r.Context(), listLimit(r))
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, entries)
}

func (s *Server) handleTxLog(w http.ResponseWriter, r *http.Request) {
	records, err := s.txLog.ListTx(r.Context(), listLimit(r))
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.respond(w, http.StatusOK, records)
}
