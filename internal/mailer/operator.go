package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/foxzi/htmlmailer/internal/settings"
	"github.com/foxzi/htmlmailer/internal/template"
)

// ErrNotFound is returned when the proxy has no such template or sender
var ErrNotFound = errors.New("not found")

// SetAdminToken sets the token sent with operator API requests
func (c *Client) SetAdminToken(token string) {
	c.adminToken = token
}

// Sender fetches the saved sender settings from the proxy
func (c *Client) Sender(ctx context.Context) (*settings.Sender, error) {
	var sender settings.Sender
	if err := c.get(ctx, "/api/settings/sender", &sender); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSenderNotSet
		}
		return nil, err
	}
	return &sender, nil
}

// Template fetches a stored template by ID from the proxy
func (c *Client) Template(ctx context.Context, id string) (*template.Template, error) {
	var tmpl template.Template
	if err := c.get(ctx, "/api/templates/"+url.PathEscape(id), &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			return fmt.Errorf("%s: %s", path, eb.Error)
		}
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
