// Package mailer is the client side of the send path. It repeats the
// content check before anything leaves the process and then submits the
// email to the proxy's /api/send-email endpoint.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/htmlmailer/internal/htmlguard"
	"github.com/foxzi/htmlmailer/internal/provider"
	"github.com/foxzi/htmlmailer/internal/proxy"
	"github.com/foxzi/htmlmailer/internal/settings"
)

// Client-side rejections. None of them result in a network call.
var (
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrSenderNotSet      = errors.New("From email is not configured")
	ErrRecipientRequired = errors.New("At least one recipient is required")
	ErrSubjectRequired   = errors.New("Email subject is required")
	ErrContentRequired   = errors.New("Email content is required")
	ErrJavaScript        = errors.New("Email content contains JavaScript which is not allowed for security reasons")
)

// Request is one email to send
type Request struct {
	APIKey       string
	Sender       *settings.Sender
	To           []string
	Subject      string
	HTML         string
	TemplateName string
}

// Result describes an accepted send
type Result struct {
	EmailID    string    `json:"emailId"`
	Message    string    `json:"message"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sentAt"`
}

// SendPayload is the JSON body accepted by /api/send-email
type SendPayload struct {
	APIKey    string         `json:"apiKey"`
	EmailData provider.Email `json:"emailData"`
}

// errorBody is the proxy's error response
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client submits emails to a running proxy
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewClient creates a client for the proxy at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Build runs the client-side checks and assembles the provider payload
func Build(req Request) (provider.Email, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return provider.Email{}, ErrAPIKeyRequired
	}
	if req.Sender == nil || req.Sender.FromEmail == "" {
		return provider.Email{}, ErrSenderNotSet
	}
	if len(req.To) == 0 {
		return provider.Email{}, ErrRecipientRequired
	}
	if strings.TrimSpace(req.Subject) == "" {
		return provider.Email{}, ErrSubjectRequired
	}
	if strings.TrimSpace(req.HTML) == "" {
		return provider.Email{}, ErrContentRequired
	}
	if htmlguard.HasJavaScript(req.HTML) {
		return provider.Email{}, ErrJavaScript
	}

	email := provider.Email{
		From:    req.Sender.From(),
		To:      req.To,
		Subject: req.Subject,
		HTML:    req.HTML,
	}
	if req.TemplateName != "" {
		email.Headers = map[string]string{proxy.TemplateNameHeader: req.TemplateName}
	}
	return email, nil
}

// Send checks and submits the email. Non-2xx responses are mapped to the
// same caller-facing messages the provider client uses.
func (c *Client) Send(ctx context.Context, req Request) (*Result, error) {
	email, err := Build(req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(SendPayload{APIKey: req.APIKey, EmailData: email})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send-email", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, provider.NewNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		if resp.StatusCode == http.StatusBadGateway && eb.Error == provider.NetworkErrorMessage {
			return nil, provider.NewNetworkError(fmt.Errorf("proxy: %s", eb.Error))
		}
		detail := eb.Message
		if detail == "" {
			detail = eb.Error
		}
		return nil, provider.NewStatusError(resp.StatusCode, detail)
	}

	var res provider.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Result{
		EmailID:    res.ID,
		Message:    fmt.Sprintf("Email sent successfully to %d recipient(s)", len(req.To)),
		Recipients: req.To,
		SentAt:     time.Now(),
	}, nil
}
