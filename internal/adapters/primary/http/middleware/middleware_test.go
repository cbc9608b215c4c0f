package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/petcare-backend/internal/auth"
	"github.com/lorrc/petcare-backend/internal/core/domain"
)

func assignmentEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, AssignmentFromContext(r.Context()).Role.String()+"|"+SessionKey(r))
	})
}

func TestSession(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	customerToken, _, err := tm.GenerateToken(domain.Customer(3))
	require.NoError(t, err)
	handler := Session(tm)(assignmentEcho())

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		target   string
		wantCode int
		wantBody string
	}{
		{name: "no token is a guest", target: "/", wantCode: http.StatusOK, wantBody: "guest|"},
		{
			name:     "bearer header",
			target:   "/",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+customerToken) },
			wantCode: http.StatusOK,
			wantBody: "customer|owner:3",
		},
		{name: "query parameter", target: "/?access_token=" + customerToken, wantCode: http.StatusOK, wantBody: "customer|owner:3"},
		{
			name:     "wrong scheme",
			target:   "/",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "invalid token",
			target:   "/",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-token") },
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.setup != nil {
				tt.setup(req)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			assert.Equal(t, tt.wantCode, recorder.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, recorder.Body.String())
			} else {
				assert.Contains(t, recorder.Body.String(), "AUTHENTICATION_ERROR")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	handler := Session(tm)(RequireRole(domain.RoleAdmin)(assignmentEcho()))

	serve := func(assignment *domain.RoleAssignment) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if assignment != nil {
			token, _, err := tm.GenerateToken(*assignment)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil).Code)

	customer := domain.Customer(3)
	forbidden := serve(&customer)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Contains(t, forbidden.Body.String(), "AUTHORIZATION_ERROR")

	admin := domain.Admin()
	assert.Equal(t, http.StatusOK, serve(&admin).Code)
}

func TestRateLimitByKey_FallsBackToIP(t *testing.T) {
	rl := NewRateLimitByKey(0.001, 1)
	defer rl.Stop()

	keys := map[string]string{"a": "owner:1", "b": ""}
	handler := rl.Middleware(func(r *http.Request) string { return keys[r.URL.Query().Get("k")] })(assignmentEcho())

	serve := func(k string) int {
		req := httptest.NewRequest(http.MethodGet, "/?k="+k, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, serve("a"))
	assert.Equal(t, http.StatusTooManyRequests, serve("a"))
	assert.Equal(t, http.StatusOK, serve("b"), "guests are keyed by address")
	assert.Equal(t, http.StatusTooManyRequests, serve("b"))

	rl.Forget("owner:1")
	assert.Equal(t, http.StatusOK, serve("a"))
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, GetRequestID(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	assert.Equal(t, "abc-123", recorder.Body.String())
	assert.Equal(t, "abc-123", recorder.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	assert.Len(t, recorder.Body.String(), 36)
}

func TestRecoveryLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "INTERNAL_ERROR")
}
