package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/htmlmailer/internal/provider"
	"github.com/foxzi/htmlmailer/internal/proxy"
	"github.com/foxzi/htmlmailer/internal/settings"
)

func testSender() *settings.Sender {
	return &settings.Sender{FromEmail: "news@example.com", FromName: "Acme News"}
}

func validRequest() Request {
	return Request{
		APIKey:       "re_test",
		Sender:       testSender(),
		To:           []string{"a@example.com", "b@example.com"},
		Subject:      "Spring sale",
		HTML:         "<p>Hello</p>",
		TemplateName: "spring.html",
	}
}

func TestClient_Send(t *testing.T) {
	var got SendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/send-email", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"em_123"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", 0)
	res, err := c.Send(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "em_123", res.EmailID)
	assert.Equal(t, "Email sent successfully to 2 recipient(s)", res.Message)
	assert.False(t, res.SentAt.IsZero())

	assert.Equal(t, "re_test", got.APIKey)
	assert.Equal(t, "Acme News <news@example.com>", got.EmailData.From)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got.EmailData.To)
	assert.Equal(t, "spring.html", got.EmailData.Headers[proxy.TemplateNameHeader])
}

func TestClient_Send_InvalidAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key","message":"API key is invalid"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, 0)
	_, err := c.Send(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, "Invalid API key", err.Error())

	perr, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, provider.CategoryInvalidKey, perr.Category)
}

func TestClient_Send_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"forbidden", http.StatusForbidden, `{"error":"x"}`, "API key does not have required permissions"},
		{"validation uses message", http.StatusUnprocessableEntity, `{"error":"Validation error","message":"bad from"}`, "Validation error: bad from"},
		{"rate limited", http.StatusTooManyRequests, `{}`, "Rate limit exceeded. Please try again later."},
		{"local rejection uses error", http.StatusBadRequest, `{"error":"Email subject is required"}`, "Email subject is required"},
		{"proxy network failure", http.StatusBadGateway, `{"error":"` + provider.NetworkErrorMessage + `"}`, provider.NetworkErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, 0).Send(context.Background(), validRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClient_Send_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, 0).Send(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, provider.NetworkErrorMessage, err.Error())
}

func TestClient_Send_ProxyNetworkErrorCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"` + provider.NetworkErrorMessage + `"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 0).Send(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, provider.NetworkErrorMessage, err.Error())

	perr, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, provider.CategoryNetwork, perr.Category)
	assert.Zero(t, perr.StatusCode)
}

func TestClient_Send_BadGatewayFromUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 0).Send(context.Background(), validRequest())
	require.Error(t, err)

	perr, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.NotEqual(t, provider.CategoryNetwork, perr.Category)
}

func TestClient_Send_RefusesBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()
	c := NewClient(server.URL, 0)

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"missing key", func(r *Request) { r.APIKey = " " }, ErrAPIKeyRequired},
		{"no sender", func(r *Request) { r.Sender = nil }, ErrSenderNotSet},
		{"no recipients", func(r *Request) { r.To = nil }, ErrRecipientRequired},
		{"blank subject", func(r *Request) { r.Subject = "" }, ErrSubjectRequired},
		{"blank content", func(r *Request) { r.HTML = "  " }, ErrContentRequired},
		{"javascript", func(r *Request) { r.HTML = `<p onclick="x()">hi</p>` }, ErrJavaScript},
		{"key checked first", func(r *Request) { r.APIKey = ""; r.HTML = "<script>x</script>" }, ErrAPIKeyRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := c.Send(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, int32(0), calls.Load())
}

func TestBuild_NoTemplateName(t *testing.T) {
	req := validRequest()
	req.TemplateName = ""
	req.Sender = &settings.Sender{FromEmail: "news@example.com"}

	email, err := Build(req)
	require.NoError(t, err)
	assert.Nil(t, email.Headers)
	assert.Equal(t, "news@example.com", email.From)
}

func TestValidateEmails(t *testing.T) {
	res := ValidateEmails([]string{" a@example.com ", "", "bad", "b@x.io", "c@@x", "  "})
	assert.Equal(t, []string{"a@example.com", "b@x.io"}, res.Valid)
	assert.Equal(t, []string{"bad", "c@@x"}, res.Invalid)
	assert.False(t, res.IsValid)

	res = ValidateEmails(nil)
	assert.Empty(t, res.Valid)
	assert.True(t, res.IsValid)
}

func TestParseRecipients(t *testing.T) {
	got := ParseRecipients("a@example.com\nb@example.com, c@example.com\r\n")
	assert.Equal(t, []string{"a@example.com", "b@example.com", " c@example.com"}, got)
}

func TestClient_OperatorLookups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer admin" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/api/settings/sender":
			_, _ = w.Write([]byte(`{"fromEmail":"news@example.com","fromName":"Acme"}`))
		case "/api/templates/t1":
			_, _ = w.Write([]byte(`{"id":"t1","name":"spring.html","content":"<p>hi</p>"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Template not found"}`))
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, 0)
	ctx := context.Background()

	_, err := c.Sender(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")

	c.SetAdminToken("admin")

	sender, err := c.Sender(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme <news@example.com>", sender.From())

	tmpl, err := c.Template(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "spring.html", tmpl.Name)
	assert.Equal(t, "<p>hi</p>", tmpl.Content)

	_, err = c.Template(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
