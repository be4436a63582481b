// Package proxy is the server-side send checkpoint. Every email is
// re-classified here, immediately before it is relayed to the provider,
// regardless of what the submitting client already checked.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/htmlmailer/internal/history"
	"github.com/foxzi/htmlmailer/internal/htmlguard"
	"github.com/foxzi/htmlmailer/internal/metrics"
	"github.com/foxzi/htmlmailer/internal/provider"
)

// TemplateNameHeader carries the originating template name, if any
const TemplateNameHeader = "X-Template-Name"

// Input-shape errors. No provider call is made when one of these is returned.
var (
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrFromRequired      = errors.New("From address is required")
	ErrRecipientRequired = errors.New("At least one recipient is required")
	ErrSubjectRequired   = errors.New("Email subject is required")
	ErrHTMLRequired      = errors.New("Email content is required")
)

// SafetyError is returned when the email body fails content classification
type SafetyError struct {
	Rule   htmlguard.RuleID
	Reason string
}

func (e *SafetyError) Error() string {
	return e.Reason
}

// IsInputError reports whether err is an input-shape or safety rejection
func IsInputError(err error) bool {
	var se *SafetyError
	if errors.As(err, &se) {
		return true
	}
	for _, target := range []error{ErrAPIKeyRequired, ErrFromRequired, ErrRecipientRequired, ErrSubjectRequired, ErrHTMLRequired} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Recorder stores successful sends
type Recorder interface {
	Append(ctx context.Context, rec *history.Record) error
}

// Gate validates and relays emails to the provider
type Gate struct {
	sender   provider.Sender
	recorder Recorder
	logger   *slog.Logger
	label    string
}

// NewGate creates a gate. recorder may be nil. label tags metrics
// ("proxy" for the HTTP relay, "direct" for CLI sends).
func NewGate(sender provider.Sender, recorder Recorder, logger *slog.Logger, label string) *Gate {
	if label == "" {
		label = "proxy"
	}
	return &Gate{
		sender:   sender,
		recorder: recorder,
		logger:   logger,
		label:    label,
	}
}

// Check runs the input-shape and content checks without sending
func (g *Gate) Check(apiKey string, email provider.Email) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrAPIKeyRequired
	}
	if strings.TrimSpace(email.From) == "" {
		return ErrFromRequired
	}
	if len(email.To) == 0 {
		return ErrRecipientRequired
	}
	if strings.TrimSpace(email.Subject) == "" {
		return ErrSubjectRequired
	}

	verdict, err := htmlguard.Classify(email.HTML)
	if err != nil {
		return ErrHTMLRequired
	}
	if !verdict.Safe {
		return &SafetyError{Rule: verdict.Rule, Reason: verdict.Reason}
	}
	return nil
}

// Forward checks the email and, if it passes, sends it. The API key and the
// body are never logged.
func (g *Gate) Forward(ctx context.Context, apiKey string, email provider.Email) (*provider.Result, error) {
	log := g.logger.With(
		"recipients", len(email.To),
		"subject", email.Subject,
	)

	if err := g.Check(apiKey, email); err != nil {
		var se *SafetyError
		if errors.As(err, &se) {
			metrics.IncContentRejected(g.label, string(se.Rule))
			log.Warn("send rejected by content filter", "rule", se.Rule)
		} else {
			log.Info("send rejected", "reason", err.Error())
		}
		metrics.IncEmailsFailed(g.label, "rejected")
		return nil, err
	}

	result, err := g.sender.Send(ctx, apiKey, email)
	if err != nil {
		category := provider.CategoryProvider
		if pe, ok := provider.AsError(err); ok {
			category = pe.Category
		}
		metrics.IncEmailsFailed(g.label, category)
		log.Warn("send failed", "category", category, "error", err.Error())
		return nil, err
	}

	metrics.IncEmailsSent(g.label)
	log.Info("email sent", "email_id", result.ID)

	if g.recorder != nil {
		rec := &history.Record{
			TemplateName: email.Headers[TemplateNameHeader],
			Subject:      email.Subject,
			Recipients:   email.To,
			SentAt:       time.Now(),
			EmailID:      result.ID,
		}
		if err := g.recorder.Append(ctx, rec); err != nil {
			log.Error("failed to record send history", "error", err)
		}
	}

	return result, nil
}
