package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticChecker map[uint][]string

func (s staticChecker) HasPermission(_ context.Context, userID uint, permission string) (bool, error) {
	for _, p := range s[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func newSessions(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisSessionStore(rdb, time.Hour), mr
}

func TestRedisSessionLifecycle(t *testing.T) {
	store, mr := newSessions(t)
	ctx := context.Background()

	sid, err := store.Create(ctx, 42)
	require.NoError(t, err)
	assert.True(t, mr.Exists("session:"+sid))
	assert.Equal(t, time.Hour, mr.TTL("session:"+sid))

	uid, err := store.Resolve(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, uint(42), uid)

	require.NoError(t, store.Delete(ctx, sid))
	_, err = store.Resolve(ctx, sid)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisSessionExpires(t *testing.T) {
	store, mr := newSessions(t)
	sid, err := store.Create(context.Background(), 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Resolve(context.Background(), sid)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestResolveRejectsMalformedSessionID(t *testing.T) {
	store, _ := newSessions(t)
	_, err := store.Resolve(context.Background(), "../../etc")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUserTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	s, err := tokens.IssueUser(9)
	require.NoError(t, err)

	uid, err := tokens.ParseUser(s)
	require.NoError(t, err)
	assert.Equal(t, uint(9), uid)

	_, err = NewTokens("other", time.Hour).ParseUser(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestShareTokenCannotBeUsedAsLoginToken(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	s, err := tokens.IssueShare("share-1", "jti-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = tokens.ParseUser(s)
	assert.ErrorIs(t, err, ErrInvalidToken)

	id, jti, err := tokens.ParseShare(s)
	require.NoError(t, err)
	assert.Equal(t, "share-1", id)
	assert.Equal(t, "jti-1", jti)
}

func TestExpiredShareTokenStillIdentifiesShare(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	s, err := tokens.IssueShare("share-1", "jti-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	id, _, err := tokens.ParseShare(s)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "share-1", id)
}

func newRouter(a *Authenticator) *gin.Engine {
	r := gin.New()
	protected := r.Group("/", a.Required())
	protected.GET("/me", func(c *gin.Context) {
		uid, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": uid})
	})
	protected.GET("/admin", a.RequirePermission("admin:prompts"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequiredAcceptsSessionCookie(t *testing.T) {
	store, _ := newSessions(t)
	a := NewAuthenticator(store, nil, staticChecker{}, CookieOptions{Name: "sid", TTL: time.Hour})
	sid, err := store.Create(context.Background(), 3)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	w := httptest.NewRecorder()
	newRouter(a).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":3}`, w.Body.String())
}

func TestRequiredRejectsMissingOrUnknownSession(t *testing.T) {
	store, _ := newSessions(t)
	a := NewAuthenticator(store, nil, staticChecker{}, CookieOptions{Name: "sid"})
	r := newRouter(a)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "3f1f4c1e-0000-4000-8000-000000000000"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerTokenOnlyInJWTMode(t *testing.T) {
	store, _ := newSessions(t)
	tokens := NewTokens("secret", time.Hour)
	tok, err := tokens.IssueUser(5)
	require.NoError(t, err)

	sessionOnly := newRouter(NewAuthenticator(store, nil, staticChecker{}, CookieOptions{Name: "sid"}))
	jwtMode := newRouter(NewAuthenticator(store, tokens, staticChecker{}, CookieOptions{Name: "sid"}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	sessionOnly.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	jwtMode.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req.Header.Set("Authorization", "Token "+tok)
	w = httptest.NewRecorder()
	jwtMode.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission(t *testing.T) {
	store, _ := newSessions(t)
	checker := staticChecker{1: {"admin:prompts"}}
	r := newRouter(NewAuthenticator(store, nil, checker, CookieOptions{Name: "sid"}))

	for uid, want := range map[uint]int{1: http.StatusNoContent, 2: http.StatusForbidden} {
		sid, err := store.Create(context.Background(), uid)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "user %d", uid)
	}
}

func TestSessionCookieIsHttpOnly(t *testing.T) {
	a := NewAuthenticator(nil, nil, nil, CookieOptions{Name: "sid", TTL: time.Hour})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	a.SetSessionCookie(c, "abc")

	cookie := w.Result().Cookies()[0]
	assert.Equal(t, "sid", cookie.Name)
	assert.Equal(t, "abc", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)
}
