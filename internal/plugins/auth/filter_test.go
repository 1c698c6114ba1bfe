package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/userdir/internal/apperror"
)

var testPublicPaths = []string{"/login", "/logout", "/error", "/static/", "/api/auth/login", "/api/auth/register"}

// failingSessions fails the test if the filter consults it.
type failingSessions struct{ t *testing.T }

func (f failingSessions) Authenticate(echo.Context) (*AuthContext, error) {
	f.t.Fatal("session provider consulted for an API path")
	return nil, nil
}

// stubSessions returns a fixed result.
type stubSessions struct {
	ac  *AuthContext
	err error
}

func (s stubSessions) Authenticate(echo.Context) (*AuthContext, error) { return s.ac, s.err }

type filterHarness struct {
	filter *Filter
	tokens *TokenService
	clock  *testClock
	dir    *fakeDirectory
	// seen is the principal the downstream handler observed.
	seen   *AuthContext
	called bool
}

func newFilterHarness(t *testing.T, sessions WebAuthenticator) *filterHarness {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := NewTokenService(testSecret, time.Hour, WithTokenClock(clock.Now))
	require.NoError(t, err)

	creds := newTestCredentials()
	dir := newFakeDirectory(newTestUser(creds, "u-1", "Ada", "ada@example.com", "secret"))
	if sessions == nil {
		sessions = failingSessions{t: t}
	}

	f := NewFilter(FilterConfig{
		Classifier:    NewPathClassifier(testPublicPaths),
		Tokens:        tokens,
		Directory:     dir,
		Sessions:      sessions,
		LookupTimeout: 50 * time.Millisecond,
	})
	f.now = clock.Now
	return &filterHarness{filter: f, tokens: tokens, clock: clock, dir: dir}
}

func (h *filterHarness) serve(method, path, authorization string) *httptest.ResponseRecorder {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		_ = c.JSON(apperror.SafeCode(err), apperror.NewBody(err, h.clock.Now()))
	}
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := h.filter.Middleware()(func(c echo.Context) error {
		h.called = true
		h.seen = FromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func (h *filterHarness) issue(t *testing.T, email string) string {
	t.Helper()
	tok, err := h.tokens.Issue(email)
	require.NoError(t, err)
	return tok.Value
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) apperror.Body {
	t.Helper()
	var body apperror.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPathClassifier_Classify(t *testing.T) {
	pc := NewPathClassifier(testPublicPaths)

	tests := []struct {
		path string
		want PathClass
	}{
		{"/login", PublicWeb},
		{"/static/css/app.css", PublicWeb},
		{"/static", ProtectedWeb},
		{"/api/auth/login", PublicAPI},
		{"/api/auth/register", PublicAPI},
		{"/api/auth/login/extra", ProtectedAPI},
		{"/api/auth/me", ProtectedAPI},
		{"/api/users", ProtectedAPI},
		{"/api", ProtectedAPI},
		{"/apix", ProtectedWeb},
		{"/users", ProtectedWeb},
		{"/", ProtectedWeb},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, pc.Classify(tt.path))
		})
	}
}

func TestPathClassifier_IgnoresBlankEntries(t *testing.T) {
	pc := NewPathClassifier([]string{"", "  ", "/login"})
	assert.Equal(t, ProtectedWeb, pc.Classify(""))
	assert.Equal(t, PublicWeb, pc.Classify("/login"))
}

func TestFilter_PublicPathsPassWithoutPrincipal(t *testing.T) {
	h := newFilterHarness(t, nil)

	for _, header := range []string{"", "Bearer garbage", "Basic abc"} {
		h.called, h.seen = false, nil
		rec := h.serve(http.MethodPost, "/api/auth/login", header)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, h.called)
		assert.Nil(t, h.seen)
	}
	assert.Zero(t, h.dir.calls)
}

func TestFilter_RejectsAPIRequests(t *testing.T) {
	h := newFilterHarness(t, nil)
	valid := h.issue(t, "ada@example.com")
	ghost := h.issue(t, "ghost@example.com")
	otherSvc, err := NewTokenService("another-secret", time.Hour)
	require.NoError(t, err)
	foreign, err := otherSvc.Issue("ada@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		reason string
	}{
		{"no header", "", ReasonTokenMissing},
		{"wrong scheme", "Basic " + valid, ReasonTokenMissing},
		{"empty token", "Bearer ", ReasonTokenMissing},
		{"malformed", "Bearer not-a-token", ReasonTokenMalformed},
		{"foreign secret", "Bearer " + foreign.Value, ReasonTokenBadSignature},
		{"unknown subject", "Bearer " + ghost, ReasonSubjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.called = false
			rec := h.serve(http.MethodGet, "/api/users", tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, h.called)
			assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)

			body := decodeBody(t, rec)
			assert.Equal(t, "Unauthorized", body.Error)
			assert.Equal(t, tt.reason, body.Reason)
			assert.Equal(t, http.StatusUnauthorized, body.Status)
			assert.Equal(t, h.clock.Now().UnixMilli(), body.Timestamp)
		})
	}
}

func TestFilter_ExpiredToken(t *testing.T) {
	h := newFilterHarness(t, nil)
	token := h.issue(t, "ada@example.com")
	h.clock.t = h.clock.t.Add(2 * time.Hour)

	rec := h.serve(http.MethodGet, "/api/auth/me", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ReasonTokenExpired, decodeBody(t, rec).Reason)
}

func TestFilter_ValidTokenAttachesPrincipal(t *testing.T) {
	h := newFilterHarness(t, nil)
	token := h.issue(t, "ada@example.com")

	rec := h.serve(http.MethodGet, "/api/users", "bearer "+token)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, h.seen)
	assert.Equal(t, "u-1", h.seen.UserID)
	assert.Equal(t, "ada@example.com", h.seen.Email)
	assert.Equal(t, MethodBearer, h.seen.Method)
}

func TestFilter_DirectoryFailureIsUnavailable(t *testing.T) {
	h := newFilterHarness(t, nil)
	token := h.issue(t, "ada@example.com")
	h.dir.err = errors.New("connection refused")

	rec := h.serve(http.MethodGet, "/api/users", "Bearer "+token)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, ReasonDirectoryUnavailable, body.Reason)
	assert.NotContains(t, body.Message, "refused")
	assert.False(t, h.called)
}

func TestFilter_SlowDirectoryTimesOut(t *testing.T) {
	h := newFilterHarness(t, nil)
	token := h.issue(t, "ada@example.com")
	h.dir.delay = time.Second

	start := time.Now()
	rec := h.serve(http.MethodGet, "/api/users", "Bearer "+token)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ReasonDirectoryUnavailable, decodeBody(t, rec).Reason)
}

func TestFilter_WebRedirectsWithoutSession(t *testing.T) {
	h := newFilterHarness(t, stubSessions{err: errNoSession})

	rec := h.serve(http.MethodGet, "/users", "")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "userdir_flash=error")
	assert.False(t, h.called)
}

func TestFilter_WebIgnoresBearerHeader(t *testing.T) {
	h := newFilterHarness(t, stubSessions{err: errNoSession})
	token := h.issue(t, "ada@example.com")

	rec := h.serve(http.MethodGet, "/users", "Bearer "+token)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.False(t, h.called)
}

func TestFilter_WebSessionAttachesPrincipal(t *testing.T) {
	ac := &AuthContext{UserID: "u-1", Email: "ada@example.com", Method: MethodSession}
	h := newFilterHarness(t, stubSessions{ac: ac})

	rec := h.serve(http.MethodGet, "/users", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, ac, h.seen)
}

func TestFilter_WebSessionOutagePropagates(t *testing.T) {
	h := newFilterHarness(t, stubSessions{err: apperror.NewUnavailable(ReasonDirectoryUnavailable, context.DeadlineExceeded)})

	rec := h.serve(http.MethodGet, "/users", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, h.called)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set(echo.HeaderAuthorization, tt.header)
		got, ok := bearerToken(req)
		assert.Equal(t, tt.want, got, tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
	}
}
