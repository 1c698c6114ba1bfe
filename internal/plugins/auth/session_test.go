package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/plugins/audit"
)

const testIdleTTL = 30 * time.Minute

type sessionHarness struct {
	mr       *miniredis.Miniredis
	provider *SessionAuthProvider
	dir      *fakeDirectory
	audit    *recordingAudit
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	creds := newTestCredentials()
	dir := newFakeDirectory(newTestUser(creds, "u-1", "Ada", "ada@example.com", "secret"))
	rec := &recordingAudit{}

	provider := NewSessionAuthProvider(SessionConfig{
		Redis:         rdb,
		Directory:     dir,
		Credentials:   creds,
		Audit:         rec,
		IdleTTL:       testIdleTTL,
		LookupTimeout: 50 * time.Millisecond,
	})
	return &sessionHarness{mr: mr, provider: provider, dir: dir, audit: rec}
}

// authenticate runs Authenticate for a request carrying the session cookie.
func (h *sessionHarness) authenticate(id string) (*AuthContext, *httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if id != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: id})
	}
	rec := httptest.NewRecorder()
	ac, err := h.provider.Authenticate(echo.New().NewContext(req, rec))
	return ac, rec, err
}

func TestSessionLogin_Success(t *testing.T) {
	h := newSessionHarness(t)

	id, user, err := h.provider.Login(context.Background(), "  ADA@example.com ", "secret", "")
	require.NoError(t, err)
	assert.Len(t, id, 64)
	assert.Equal(t, "u-1", user.ID)
	assert.True(t, h.mr.Exists(sessionKeyPrefix+id))
	assert.Equal(t, testIdleTTL, h.mr.TTL(sessionKeyPrefix+id))
	assert.Equal(t, []string{audit.ActionLogin}, h.audit.actions())
}

func TestSessionLogin_FailuresAreIndistinguishable(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	_, _, wrongPw := h.provider.Login(ctx, "ada@example.com", "nope", "")
	_, _, unknown := h.provider.Login(ctx, "ghost@example.com", "secret", "")

	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.Equal(t, apperror.SafeMessage(wrongPw), apperror.SafeMessage(unknown))
	assert.Equal(t, apperror.SafeCode(wrongPw), apperror.SafeCode(unknown))
	assert.Equal(t, http.StatusUnauthorized, apperror.SafeCode(unknown))
	assert.Empty(t, h.mr.Keys())
	assert.Equal(t, []string{audit.ActionLoginFailed, audit.ActionLoginFailed}, h.audit.actions())
}

func TestSessionLogin_DirectoryOutage(t *testing.T) {
	h := newSessionHarness(t)
	h.dir.err = context.DeadlineExceeded

	_, _, err := h.provider.Login(context.Background(), "ada@example.com", "secret", "")

	assert.Equal(t, http.StatusServiceUnavailable, apperror.SafeCode(err))
	assert.Empty(t, h.audit.actions())
}

func TestSessionLogin_ReplacesPresentedSession(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	planted := "attacker-chosen-id"
	require.NoError(t, h.mr.Set(sessionKeyPrefix+planted, `{"user_id":"u-1"}`))

	id, _, err := h.provider.Login(ctx, "ada@example.com", "secret", planted)
	require.NoError(t, err)

	assert.NotEqual(t, planted, id)
	assert.False(t, h.mr.Exists(sessionKeyPrefix+planted))
	assert.True(t, h.mr.Exists(sessionKeyPrefix+id))
}

func TestSessionAuthenticate_SlidesExpiry(t *testing.T) {
	h := newSessionHarness(t)
	id, _, err := h.provider.Login(context.Background(), "ada@example.com", "secret", "")
	require.NoError(t, err)

	// Stay active past the original deadline in 20-minute steps.
	for i := 0; i < 3; i++ {
		h.mr.FastForward(20 * time.Minute)
		ac, _, err := h.authenticate(id)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, "u-1", ac.UserID)
		assert.Equal(t, MethodSession, ac.Method)
		assert.Equal(t, testIdleTTL, h.mr.TTL(sessionKeyPrefix+id))
	}
}

func TestSessionAuthenticate_IdleExpiry(t *testing.T) {
	h := newSessionHarness(t)
	id, _, err := h.provider.Login(context.Background(), "ada@example.com", "secret", "")
	require.NoError(t, err)

	h.mr.FastForward(testIdleTTL + time.Second)
	ac, rec, err := h.authenticate(id)

	assert.Nil(t, ac)
	assert.ErrorIs(t, err, errNoSession)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestSessionAuthenticate_NoCookie(t *testing.T) {
	h := newSessionHarness(t)

	_, _, err := h.authenticate("")
	assert.ErrorIs(t, err, errNoSession)
	assert.Zero(t, h.dir.calls)
}

func TestSessionAuthenticate_DeletedUser(t *testing.T) {
	h := newSessionHarness(t)
	id, _, err := h.provider.Login(context.Background(), "ada@example.com", "secret", "")
	require.NoError(t, err)

	h.dir.remove("u-1")
	_, _, err = h.authenticate(id)

	assert.ErrorIs(t, err, errNoSession)
	assert.False(t, h.mr.Exists(sessionKeyPrefix+id))
}

func TestSessionAuthenticate_DirectoryOutageKeepsSession(t *testing.T) {
	h := newSessionHarness(t)
	id, _, err := h.provider.Login(context.Background(), "ada@example.com", "secret", "")
	require.NoError(t, err)

	h.dir.delay = time.Second
	_, _, err = h.authenticate(id)

	assert.Equal(t, http.StatusServiceUnavailable, apperror.SafeCode(err))
	assert.True(t, h.mr.Exists(sessionKeyPrefix+id))
}

func TestSessionSignOut(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	id, _, err := h.provider.Login(ctx, "ada@example.com", "secret", "")
	require.NoError(t, err)

	require.NoError(t, h.provider.SignOut(ctx, id))
	assert.False(t, h.mr.Exists(sessionKeyPrefix+id))
	assert.Equal(t, []string{audit.ActionLogin, audit.ActionLogout}, h.audit.actions())

	// A second sign-out of the same id is harmless and not audited again.
	require.NoError(t, h.provider.SignOut(ctx, id))
	assert.Len(t, h.audit.actions(), 2)
}

func TestGenerateSessionID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
