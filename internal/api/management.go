package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/foxzi/htmlmailer/internal/history"
	"github.com/foxzi/htmlmailer/internal/settings"
)

// SenderRequest is the request body for PUT /api/settings/sender
type SenderRequest struct {
	FromEmail string `json:"fromEmail"`
	FromName  string `json:"fromName"`
}

// HistoryResponse is the response for GET /api/history
type HistoryResponse struct {
	Records []*history.Record `json:"records"`
	Total   int               `json:"total"`
}

// handleGetSender handles GET /api/settings/sender
func (s *Server) handleGetSender(w http.ResponseWriter, r *http.Request) {
	sender, err := s.settings.Sender(r.Context())
	if err != nil {
		s.logger.Error("failed to load sender settings", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load sender settings")
		return
	}
	if sender == nil {
		s.sendError(w, http.StatusNotFound, "From email is not configured")
		return
	}

	s.sendJSON(w, http.StatusOK, sender)
}

// handleSaveSender handles PUT /api/settings/sender
func (s *Server) handleSaveSender(w http.ResponseWriter, r *http.Request) {
	var req SenderRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sender := &settings.Sender{
		FromEmail: strings.TrimSpace(req.FromEmail),
		FromName:  strings.TrimSpace(req.FromName),
	}
	if err := sender.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.settings.SaveSender(r.Context(), sender); err != nil {
		s.logger.Error("failed to save sender settings", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to save sender settings")
		return
	}

	s.logger.Info("sender settings saved", "from_email", sender.FromEmail)
	s.sendJSON(w, http.StatusOK, sender)
}

// handleClearSender handles DELETE /api/settings/sender
func (s *Server) handleClearSender(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ClearSender(r.Context()); err != nil {
		s.logger.Error("failed to clear sender settings", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to clear sender settings")
		return
	}

	s.logger.Info("sender settings cleared")
	w.WriteHeader(http.StatusNoContent)
}

// handleListHistory handles GET /api/history
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list send history", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list send history")
		return
	}

	s.sendJSON(w, http.StatusOK, HistoryResponse{
		Records: records,
		Total:   len(records),
	})
}

// handleClearHistory handles DELETE /api/history
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.history.Clear(r.Context())
	if err != nil {
		s.logger.Error("failed to clear send history", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to clear send history")
		return
	}

	s.logger.Info("send history cleared", "deleted", deleted)
	s.sendJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
