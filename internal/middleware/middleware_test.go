package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAPIPath(t *testing.T) {
	tests := map[string]bool{
		"/api":          true,
		"/api/":         true,
		"/api/users":    true,
		"/api/auth/me":  true,
		"/apiary":       false,
		"/users":        false,
		"/":             false,
		"/static/api/x": false,
	}
	for path, want := range tests {
		assert.Equal(t, want, IsAPIPath(path), path)
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	SetFlash(c, FlashSuccess, "Imported 3 users (1 skipped).")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)

	flash := PopFlash(c)
	require.NotNil(t, flash)
	assert.Equal(t, FlashSuccess, flash.Kind)
	assert.Equal(t, "Imported 3 users (1 skipped).", flash.Message)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestFlash_IgnoresForgedKind(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: "script:PHNjcmlwdD4"})
	c := echo.New().NewContext(req, httptest.NewRecorder())

	assert.Nil(t, PopFlash(c))
}

func TestFlash_NoCookie(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Nil(t, PopFlash(c))
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "limits are per IP")

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.allow("10.0.0.1"), "window resets")
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	e.POST("/api/auth/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RateLimit(1, time.Minute))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func csrfServer() *echo.Echo {
	e := echo.New()
	e.Use(CSRF())
	ok := func(c echo.Context) error { return c.String(http.StatusOK, GetCSRFToken(c)) }
	e.GET("/login", ok)
	e.POST("/login", ok)
	e.POST("/api/auth/login", ok)
	return e
}

func TestCSRF_IssuesCookieOnSafeRequest(t *testing.T) {
	e := csrfServer()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.String(), 2*csrfTokenLength)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), csrfCookieName+"="+rec.Body.String())
}

func TestCSRF_RejectsMissingOrWrongToken(t *testing.T) {
	e := csrfServer()

	for _, submitted := range []string{"", "wrong"} {
		form := url.Values{"csrf_token": {submitted}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "expected"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code, "submitted %q", submitted)
	}
}

func TestCSRF_AcceptsMatchingToken(t *testing.T) {
	e := csrfServer()

	form := url.Values{"csrf_token": {"expected"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "expected"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(csrfHeaderName, "expected")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "expected"})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRF_SkipsAPI(t *testing.T) {
	e := csrfServer()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestRedirect(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/users", nil), rec)
	require.NoError(t, Redirect(c, "/login"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	req := httptest.NewRequest(http.MethodPost, "/users/delete/1", nil)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	require.NoError(t, Redirect(c, "/users"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/users", rec.Header().Get("HX-Redirect"))
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	e := echo.New()
	e.Use(Recovery())
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFromError(echo.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFromError(errors.New("x")))
}

func TestClientIPExtractor(t *testing.T) {
	extract := ClientIPExtractor(parsePrefixes([]string{"10.0.0.0/8", "bogus", " "}))

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct client", "203.0.113.7:5000", "", "", "203.0.113.7"},
		{"untrusted peer cannot spoof", "203.0.113.7:5000", "1.2.3.4", "", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:80", "198.51.100.9", "", "198.51.100.9"},
		{"skips trusted hops", "10.0.0.2:80", "198.51.100.9, 10.1.1.1", "", "198.51.100.9"},
		{"spoofed leftmost ignored", "10.0.0.2:80", "1.2.3.4, 198.51.100.9", "", "198.51.100.9"},
		{"real ip header", "10.0.0.2:80", "", "198.51.100.10", "198.51.100.10"},
		{"no headers", "10.0.0.2:80", "", "", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set(echo.HeaderXForwardedFor, tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set(echo.HeaderXRealIP, tt.realIP)
			}
			assert.Equal(t, tt.want, extract(req))
		})
	}
}
