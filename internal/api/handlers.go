package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/htmlmailer/internal/htmlguard"
	"github.com/foxzi/htmlmailer/internal/metrics"
	"github.com/foxzi/htmlmailer/internal/provider"
	"github.com/foxzi/htmlmailer/internal/proxy"
)

const (
	errBodyTooLarge    = "Request body too large"
	errInvalidBody     = "Invalid request body"
	errInternal        = "Internal server error"
	errHTMLRequired    = "HTML content is required"
	msgHTMLValid       = "HTML content is valid"
	errMissingEmailReq = "Missing required fields: apiKey and emailData"
)

// SendEmailRequest is the request body for POST /api/send-email
type SendEmailRequest struct {
	APIKey    string          `json:"apiKey"`
	EmailData *provider.Email `json:"emailData"`
}

// SendEmailResponse is the response for POST /api/send-email
type SendEmailResponse struct {
	ID string `json:"id"`
}

// ValidateHTMLRequest is the request body for POST /api/validate-html
type ValidateHTMLRequest struct {
	HTMLContent string `json:"htmlContent"`
}

// ValidateHTMLResponse is the response for POST /api/validate-html
type ValidateHTMLResponse struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleSendEmail handles POST /api/send-email
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.APIKey) == "" && req.EmailData == nil {
		s.sendError(w, http.StatusBadRequest, errMissingEmailReq)
		return
	}
	var email provider.Email
	if req.EmailData != nil {
		email = *req.EmailData
	}

	result, err := s.gate.Forward(r.Context(), req.APIKey, email)
	if err != nil {
		s.sendForwardError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, SendEmailResponse{ID: result.ID})
}

// sendForwardError maps a Gate error onto an HTTP response
func (s *Server) sendForwardError(w http.ResponseWriter, err error) {
	if proxy.IsInputError(err) {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if pe, ok := provider.AsError(err); ok {
		if pe.Category == provider.CategoryNetwork {
			s.sendError(w, http.StatusBadGateway, pe.Message)
			return
		}
		if pe.StatusCode > 0 {
			s.sendJSON(w, pe.StatusCode, ErrorResponse{Error: pe.Message, Message: pe.Detail})
			return
		}
	}

	s.logger.Error("send failed", "error", err)
	metrics.IncAPIErrors("internal")
	s.sendError(w, http.StatusInternalServerError, errInternal)
}

// handleValidateHTML handles POST /api/validate-html
func (s *Server) handleValidateHTML(w http.ResponseWriter, r *http.Request) {
	var req ValidateHTMLRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	verdict, err := htmlguard.Classify(req.HTMLContent)
	if errors.Is(err, htmlguard.ErrInvalidInput) {
		s.sendError(w, http.StatusBadRequest, errHTMLRequired)
		return
	}
	if err != nil {
		s.logger.Error("validation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error during validation")
		return
	}

	if !verdict.Safe {
		metrics.IncContentRejected("validate", string(verdict.Rule))
		s.sendJSON(w, http.StatusBadRequest, ValidateHTMLResponse{
			IsValid: false,
			Error:   verdict.Reason,
			Rule:    string(verdict.Rule),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, ValidateHTMLResponse{
		IsValid: true,
		Message: msgHTMLValid,
	})
}

// decodeJSON decodes the request body into v. On failure it writes the
// error response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge)
			return false
		}
		s.sendError(w, http.StatusBadRequest, errInvalidBody)
		return false
	}
	return true
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
