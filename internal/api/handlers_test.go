package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/htmlmailer/internal/config"
	"github.com/foxzi/htmlmailer/internal/history"
	"github.com/foxzi/htmlmailer/internal/provider"
	"github.com/foxzi/htmlmailer/internal/proxy"
	"github.com/foxzi/htmlmailer/internal/ratelimit"
	"github.com/foxzi/htmlmailer/internal/settings"
	"github.com/foxzi/htmlmailer/internal/template"
)

// mockSender implements provider.Sender for testing
type mockSender struct {
	mu     sync.Mutex
	sent   []provider.Email
	result *provider.Result
	err    error
}

func (m *mockSender) Send(ctx context.Context, apiKey string, email provider.Email) (*provider.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, email)
	return m.result, nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	server   *Server
	sender   *mockSender
	library  *template.Library
	history  *history.Store
	settings *settings.Store
	db       *bolt.DB
}

func setupTestServer(t *testing.T, modify func(*config.ServerConfig)) *testEnv {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tmplStorage, err := template.NewStorage(db)
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	hist, err := history.NewStore(db)
	if err != nil {
		t.Fatalf("history.NewStore() error = %v", err)
	}
	sets, err := settings.NewStore(db)
	if err != nil {
		t.Fatalf("settings.NewStore() error = %v", err)
	}

	sender := &mockSender{result: &provider.Result{ID: "em_123"}}
	cfg := &config.ServerConfig{
		ListenAddr:   ":3000",
		MaxBodyBytes: 1 << 20,
	}
	if modify != nil {
		modify(cfg)
	}

	env := &testEnv{
		sender:   sender,
		library:  template.NewLibrary(tmplStorage, logger),
		history:  hist,
		settings: sets,
		db:       db,
	}
	env.server = NewServer(Options{
		Gate:     proxy.NewGate(sender, hist, logger, "proxy"),
		Library:  env.library,
		History:  hist,
		Settings: sets,
		Config:   cfg,
		Version:  "test",
		Logger:   logger,
	})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func sendBody(html string) string {
	payload := map[string]interface{}{
		"apiKey": "re_test",
		"emailData": map[string]interface{}{
			"from":    "Acme <news@example.com>",
			"to":      []string{"a@example.com"},
			"subject": "Spring sale",
			"html":    html,
			"headers": map[string]string{proxy.TemplateNameHeader: "spring.html"},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)

	w := env.do(httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Version != "test" {
		t.Errorf("Version = %q, want %q", resp.Version, "test")
	}
}

func TestSendEmailEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)

	w := env.do(postJSON("/api/send-email", sendBody("<p>Hello</p>")))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	var resp SendEmailResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != "em_123" {
		t.Errorf("ID = %q, want em_123", resp.ID)
	}

	records, err := env.history.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("history.List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("history has %d records, want 1", len(records))
	}
	if records[0].TemplateName != "spring.html" {
		t.Errorf("TemplateName = %q, want spring.html", records[0].TemplateName)
	}
}

func TestSendEmailValidation(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", `{invalid}`, errInvalidBody},
		{"missing fields", `{}`, errMissingEmailReq},
		{"missing api key", `{"emailData":{"from":"a@example.com","to":["b@example.com"],"subject":"x","html":"<p>x</p>"}}`, "API key is required"},
		{"missing subject", `{"apiKey":"k","emailData":{"from":"a@example.com","to":["b@example.com"],"html":"<p>x</p>"}}`, "Email subject is required"},
		{"empty html", `{"apiKey":"k","emailData":{"from":"a@example.com","to":["b@example.com"],"subject":"x","html":"  "}}`, "Email content is required"},
		{"script", sendBody(`<p>x</p><script>alert(1)</script>`), "script tag"},
		{"event handler", sendBody(`<p onclick="steal()">x</p>`), "event handler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(postJSON("/api/send-email", tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}

			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if !strings.Contains(resp.Error, tt.wantErr) {
				t.Errorf("Error = %q, want it to contain %q", resp.Error, tt.wantErr)
			}
		})
	}

	if env.sender.count() != 0 {
		t.Errorf("provider called %d times, want 0", env.sender.count())
	}
}

func TestSendEmailProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"invalid key", provider.NewStatusError(http.StatusUnauthorized, "API key is invalid"), http.StatusUnauthorized, "Invalid API key"},
		{"validation", provider.NewStatusError(http.StatusUnprocessableEntity, "Invalid `to` field"), http.StatusUnprocessableEntity, "Validation error: Invalid `to` field"},
		{"rate limited", provider.NewStatusError(http.StatusTooManyRequests, ""), http.StatusTooManyRequests, "Rate limit exceeded. Please try again later."},
		{"network", provider.NewNetworkError(fmt.Errorf("dial tcp: refused")), http.StatusBadGateway, provider.NetworkErrorMessage},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, errInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, nil)
			env.sender.err = tt.err

			w := env.do(postJSON("/api/send-email", sendBody("<p>Hello</p>")))
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestSendEmailBodyTooLarge(t *testing.T) {
	env := setupTestServer(t, func(c *config.ServerConfig) { c.MaxBodyBytes = 512 })

	body := sendBody("<p>" + strings.Repeat("a", 1024) + "</p>")
	w := env.do(postJSON("/api/send-email", body))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestSendEmailRateLimit(t *testing.T) {
	env := setupTestServer(t, nil)

	limiter, err := ratelimit.NewLimiter(env.db, ratelimit.Config{
		PerClient: &ratelimit.Limit{SendsPerHour: 1},
	})
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	t.Cleanup(func() { limiter.Stop() })
	env.server.limiter = limiter

	if w := env.do(postJSON("/api/send-email", sendBody("<p>1</p>"))); w.Code != http.StatusOK {
		t.Fatalf("first send Status = %d, want %d", w.Code, http.StatusOK)
	}

	w := env.do(postJSON("/api/send-email", sendBody("<p>2</p>")))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
	if env.sender.count() != 1 {
		t.Errorf("provider called %d times, want 1", env.sender.count())
	}
}

func TestValidateHTMLEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantText   string
	}{
		{"safe", `{"htmlContent":"<p>Hello</p>"}`, http.StatusOK, true, msgHTMLValid},
		{"script", `{"htmlContent":"<script>alert(1)</script>"}`, http.StatusBadRequest, false, "script tag"},
		{"javascript url", `{"htmlContent":"<a href=\"javascript:x()\">x</a>"}`, http.StatusBadRequest, false, "JavaScript"},
		{"missing", `{}`, http.StatusBadRequest, false, errHTMLRequired},
		{"blank", `{"htmlContent":"   "}`, http.StatusBadRequest, false, errHTMLRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(postJSON("/api/validate-html", tt.body))
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp ValidateHTMLResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", resp.IsValid, tt.wantValid)
			}
			text := resp.Message + resp.Error
			if !strings.Contains(text, tt.wantText) {
				t.Errorf("response %q does not contain %q", text, tt.wantText)
			}
		})
	}
}

type uploadFile struct {
	name        string
	contentType string
	content     string
}

func uploadRequest(t *testing.T, path string, files []uploadFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		part.Write([]byte(f.content))
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestTemplateUpload(t *testing.T) {
	env := setupTestServer(t, nil)

	req := uploadRequest(t, "/api/templates", []uploadFile{
		{"welcome.html", "text/html", "<!DOCTYPE html><html><head><title>Welcome</title></head><body><p>Hi</p></body></html>"},
		{"evil.html", "text/html", "<p>x</p><script>alert(1)</script>"},
		{"notes.txt", "text/plain", "hello"},
	})
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Imported) != 1 {
		t.Fatalf("Imported = %d, want 1", len(resp.Imported))
	}
	if resp.Imported[0].Title != "Welcome" {
		t.Errorf("Title = %q, want Welcome", resp.Imported[0].Title)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("Errors = %d, want 2", len(resp.Errors))
	}
	if resp.Errors[0].File != "evil.html" || !strings.Contains(resp.Errors[0].Error, "script tag") {
		t.Errorf("Errors[0] = %+v, want script rejection for evil.html", resp.Errors[0])
	}
	if resp.Errors[1].Error != template.ReasonMIMEType {
		t.Errorf("Errors[1].Error = %q, want %q", resp.Errors[1].Error, template.ReasonMIMEType)
	}

	id := resp.Imported[0].ID

	// List
	w = env.do(httptest.NewRequest("GET", "/api/templates", nil))
	var list TemplateListResponse
	json.NewDecoder(w.Body).Decode(&list)
	if list.Total != 1 {
		t.Errorf("Total = %d, want 1", list.Total)
	}

	// Get
	w = env.do(httptest.NewRequest("GET", "/api/templates/"+id, nil))
	if w.Code != http.StatusOK {
		t.Errorf("Get Status = %d, want %d", w.Code, http.StatusOK)
	}

	// Raw preview
	w = env.do(httptest.NewRequest("GET", "/api/templates/"+id+"/preview?raw=1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Preview Status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy not set on raw preview")
	}
	if !strings.Contains(w.Body.String(), "<p>Hi</p>") {
		t.Errorf("preview body = %q", w.Body.String())
	}

	// Delete
	w = env.do(httptest.NewRequest("DELETE", "/api/templates/"+id, nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Delete Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	w = env.do(httptest.NewRequest("GET", "/api/templates/"+id, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Get after delete Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestTemplateUploadReplace(t *testing.T) {
	env := setupTestServer(t, nil)
	files := []uploadFile{{"promo.html", "", "<p>v1</p>"}}

	if w := env.do(uploadRequest(t, "/api/templates", files)); w.Code != http.StatusOK {
		t.Fatalf("first upload Status = %d", w.Code)
	}

	files[0].content = "<p>v2</p>"
	if w := env.do(uploadRequest(t, "/api/templates?replace=true", files)); w.Code != http.StatusOK {
		t.Fatalf("replace upload Status = %d", w.Code)
	}

	templates, err := env.library.List(context.Background(), template.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(templates) != 1 {
		t.Fatalf("templates = %d, want 1", len(templates))
	}
	if templates[0].Content != "<p>v2</p>" {
		t.Errorf("Content = %q, want <p>v2</p>", templates[0].Content)
	}
}

func TestTemplateUploadLimits(t *testing.T) {
	env := setupTestServer(t, nil)

	var files []uploadFile
	for i := 0; i <= template.MaxBatchFiles; i++ {
		files = append(files, uploadFile{fmt.Sprintf("t%d.html", i), "text/html", "<p>x</p>"})
	}
	w := env.do(uploadRequest(t, "/api/templates", files))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != template.ReasonTooManyFiles {
		t.Errorf("Error = %q, want %q", resp.Error, template.ReasonTooManyFiles)
	}

	w = env.do(uploadRequest(t, "/api/templates", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty upload Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestClearTemplates(t *testing.T) {
	env := setupTestServer(t, nil)
	env.do(uploadRequest(t, "/api/templates", []uploadFile{
		{"a.html", "", "<p>a</p>"},
		{"b.html", "", "<p>b</p>"},
	}))

	w := env.do(httptest.NewRequest("DELETE", "/api/templates", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]int
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["deleted"] != 2 {
		t.Errorf("deleted = %d, want 2", resp["deleted"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestServer(t, func(c *config.ServerConfig) { c.AdminToken = "secret-token" })

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong token", "Authorization", "Bearer wrong", http.StatusUnauthorized},
		{"correct token", "Authorization", "Bearer secret-token", http.StatusOK},
		{"x-admin-token header", "X-Admin-Token", "secret-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/templates", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := env.do(req)
			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	// The send endpoint is authorized by the provider key, not the admin token
	w := env.do(postJSON("/api/send-email", sendBody("<p>Hello</p>")))
	if w.Code != http.StatusOK {
		t.Errorf("send Status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_TokenHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	env := setupTestServer(t, func(c *config.ServerConfig) { c.AdminTokenHash = string(hash) })

	req := httptest.NewRequest("GET", "/api/templates", nil)
	req.Header.Set("Authorization", "Bearer hashed-secret")
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/api/templates", nil)
	req.Header.Set("Authorization", "Bearer "+string(hash))
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestOperatorRoutesIPFilter(t *testing.T) {
	env := setupTestServer(t, func(c *config.ServerConfig) { c.AllowedIPs = []string{"10.0.0.0/8"} })

	req := httptest.NewRequest("GET", "/api/history", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	if w := env.do(req); w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest("GET", "/api/history", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestOperatorRoutesIgnoreUntrustedForwardedFor(t *testing.T) {
	env := setupTestServer(t, func(c *config.ServerConfig) { c.AllowedIPs = []string{"10.0.0.1"} })

	for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
		req := httptest.NewRequest("GET", "/api/templates", nil)
		req.RemoteAddr = "192.0.2.55:5000"
		req.Header.Set(header, "10.0.0.1")
		if w := env.do(req); w.Code != http.StatusForbidden {
			t.Errorf("%s: Status = %d, want %d", header, w.Code, http.StatusForbidden)
		}
	}
}

func TestOperatorRoutesTrustedProxy(t *testing.T) {
	env := setupTestServer(t, func(c *config.ServerConfig) {
		c.AllowedIPs = []string{"10.0.0.1"}
		c.TrustedProxies = []string{"192.0.2.1"}
	})

	tests := []struct {
		name      string
		peer      string
		forwarded string
		want      int
	}{
		{"forwarded allowed client", "192.0.2.1:5000", "10.0.0.1", http.StatusOK},
		{"forwarded other client", "192.0.2.1:5000", "192.0.2.99", http.StatusForbidden},
		{"untrusted peer", "192.0.2.2:5000", "10.0.0.1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/templates", nil)
			req.RemoteAddr = tt.peer
			req.Header.Set("X-Forwarded-For", tt.forwarded)
			if w := env.do(req); w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSendEmailRateLimitIgnoresForwardedFor(t *testing.T) {
	env := setupTestServer(t, nil)

	limiter, err := ratelimit.NewLimiter(env.db, ratelimit.Config{
		PerClient: &ratelimit.Limit{SendsPerHour: 1},
	})
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	t.Cleanup(func() { limiter.Stop() })
	env.server.limiter = limiter

	for i, forwarded := range []string{"198.51.100.1", "198.51.100.2"} {
		req := postJSON("/api/send-email", sendBody(fmt.Sprintf("<p>%d</p>", i)))
		req.RemoteAddr = "192.0.2.55:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := env.do(req)

		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if w.Code != want {
			t.Errorf("send %d Status = %d, want %d", i, w.Code, want)
		}
	}
}

func TestSenderSettingsEndpoints(t *testing.T) {
	env := setupTestServer(t, nil)

	w := env.do(httptest.NewRequest("GET", "/api/settings/sender", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET empty Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	req := httptest.NewRequest("PUT", "/api/settings/sender", bytes.NewBufferString(`{"fromEmail":"not-an-email"}`))
	w = env.do(req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var errResp ErrorResponse
	json.NewDecoder(w.Body).Decode(&errResp)
	if errResp.Error != "Please enter a valid email address" {
		t.Errorf("Error = %q", errResp.Error)
	}

	req = httptest.NewRequest("PUT", "/api/settings/sender", bytes.NewBufferString(`{"fromEmail":" news@example.com ","fromName":"Acme"}`))
	w = env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT Status = %d, want %d", w.Code, http.StatusOK)
	}

	w = env.do(httptest.NewRequest("GET", "/api/settings/sender", nil))
	var sender settings.Sender
	json.NewDecoder(w.Body).Decode(&sender)
	if sender.FromEmail != "news@example.com" || sender.FromName != "Acme" {
		t.Errorf("sender = %+v", sender)
	}

	w = env.do(httptest.NewRequest("DELETE", "/api/settings/sender", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE Status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := setupTestServer(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.history.Append(ctx, &history.Record{
			Subject:    fmt.Sprintf("s%d", i),
			Recipients: []string{"a@example.com"},
		})
	}

	w := env.do(httptest.NewRequest("GET", "/api/history?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp HistoryResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Total != 2 {
		t.Errorf("Total = %d, want 2", resp.Total)
	}

	w = env.do(httptest.NewRequest("DELETE", "/api/history", nil))
	var cleared map[string]int
	json.NewDecoder(w.Body).Decode(&cleared)
	if cleared["deleted"] != 3 {
		t.Errorf("deleted = %d, want 3", cleared["deleted"])
	}
}
