package api

import (
	"crypto/subtle"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/htmlmailer/internal/ipfilter"
	"github.com/foxzi/htmlmailer/internal/metrics"
)

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// realIP applies chi's RealIP only to requests whose peer is a trusted
// proxy. Anyone else could set X-Forwarded-For to pass the IP filter or
// dodge the per-client send limit.
func (s *Server) realIP(next http.Handler) http.Handler {
	forwarded := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trustedProxies.Enabled() {
			if addr, ok := ipfilter.ClientAddr(r); ok && s.trustedProxies.IsAllowed(addr) {
				forwarded.ServeHTTP(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the admin token on operator routes
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.HasAdminAuth() {
			// No token configured, allow all
			next.ServeHTTP(w, r)
			return
		}

		// Check Authorization header
		auth := r.Header.Get("Authorization")
		if auth == "" {
			// Also check X-Admin-Token header
			auth = r.Header.Get("X-Admin-Token")
		}

		// Parse Bearer token
		auth = strings.TrimPrefix(auth, "Bearer ")

		if !s.tokenAccepted(auth) {
			s.logger.Warn("unauthorized API request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			metrics.IncAPIErrors("unauthorized")
			s.sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenAccepted(token string) bool {
	if s.config.AdminTokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.config.AdminTokenHash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) == 1
}

// securityHeaders sets the response headers required on the send endpoint
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// bodyLimit caps JSON request bodies
func (s *Server) bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.MaxBodyBytes > 0 {
			if r.ContentLength > s.config.MaxBodyBytes {
				s.sendError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// sendLimitMiddleware applies the send rate limits, if configured
func (s *Server) sendLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := r.RemoteAddr
		if addr, ok := ipfilter.ClientAddr(r); ok {
			clientIP = addr.String()
		}

		result := s.limiter.Allow(r.Context(), clientIP)
		if !result.Allowed {
			metrics.IncSendLimitExceeded(string(result.DeniedBy))
			s.logger.Warn("send rate limit exceeded",
				"level", result.DeniedBy,
				"remote_addr", clientIP,
				"retry_after", result.RetryAfter,
			)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(result.RetryAfter.Seconds()))))
			s.sendError(w, http.StatusTooManyRequests, "Send limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}
