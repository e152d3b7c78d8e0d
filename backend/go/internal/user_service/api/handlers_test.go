package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/user_service/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore 是测试用的内存用户存储。
type memStore struct {
	users []*models.User
	admin *models.AuthRole
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	u.ID = uint(len(m.users) + 1)
	u.Roles = []*models.AuthRole{{Model: gorm.Model{ID: 1}, Name: models.RoleMember}}
	m.users = append(m.users, u)
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uint) (*models.User, error) {
	if id == 0 || int(id) > len(m.users) {
		return nil, gorm.ErrRecordNotFound
	}
	return m.users[id-1], nil
}

func (m *memStore) EmailTaken(ctx context.Context, email, _ string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (m *memStore) TouchLastLogin(context.Context, uint, time.Time) error { return nil }

func (m *memStore) GetRoleByName(_ context.Context, name string) (*models.AuthRole, error) {
	if name == models.RoleAdmin {
		return m.admin, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) GetRoleByID(_ context.Context, id uint) (*models.AuthRole, error) {
	if id == m.admin.ID {
		return m.admin, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memStore) AssignRoleToUser(_ context.Context, userID, _ uint) error {
	u := m.users[userID-1]
	u.Roles = append(u.Roles, m.admin)
	return nil
}

func (m *memStore) GetUserPermissions(_ context.Context, userID uint) ([]*models.Permission, error) {
	var out []*models.Permission
	for _, r := range m.users[userID-1].Roles {
		out = append(out, r.Permissions...)
	}
	return out, nil
}

func (m *memStore) SeedRoles(context.Context) error { return nil }

type testEnv struct {
	router *gin.Engine
	store  *memStore
	redis  *miniredis.Miniredis
}

func newEnv(t *testing.T, jwtMode bool) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := &memStore{admin: &models.AuthRole{
		Model:       gorm.Model{ID: 2},
		Name:        models.RoleAdmin,
		Permissions: []*models.Permission{{Name: models.PermRolesAssign}},
	}}
	svc := service.NewService(st, bcrypt.MinCost)
	var tokens *auth.Tokens
	if jwtMode {
		tokens = auth.NewTokens("secret", time.Hour)
	}
	a := auth.NewAuthenticator(auth.NewRedisSessionStore(rdb, time.Hour), tokens, svc, auth.CookieOptions{Name: "sid", TTL: time.Hour})

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), NewHandler(svc, a), a)
	return &testEnv{router: r, store: st, redis: mr}
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

const adaJSON = `{"email":"ada@example.com","password":"password123","username":"ada"}`

func TestRegisterLoginMeLogout(t *testing.T) {
	e := newEnv(t, false)

	w := e.do(http.MethodPost, "/api/v1/auth/register", adaJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/v1/auth/register", adaJSON)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "token")
	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)

	w = e.do(http.MethodGet, "/api/v1/auth/me", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var me UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "ada@example.com", me.Email)
	assert.Equal(t, []string{models.RoleMember}, me.Roles)

	w = e.do(http.MethodPost, "/api/v1/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, e.redis.Exists("session:"+cookie.Value))

	w = e.do(http.MethodGet, "/api/v1/auth/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterInvalidInput(t *testing.T) {
	e := newEnv(t, false)
	w := e.do(http.MethodPost, "/api/v1/auth/register", `{"email":"not-an-email","password":"password123","username":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginBadCredentials(t *testing.T) {
	e := newEnv(t, false)
	e.do(http.MethodPost, "/api/v1/auth/register", adaJSON)

	wrong := e.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"nope-nope"}`)
	unknown := e.do(http.MethodPost, "/api/v1/auth/login", `{"email":"bob@example.com","password":"nope-nope"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLoginReturnsTokenInJWTMode(t *testing.T) {
	e := newEnv(t, true)
	e.do(http.MethodPost, "/api/v1/auth/register", adaJSON)

	w := e.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAssignRoleRequiresPermission(t *testing.T) {
	e := newEnv(t, false)
	e.do(http.MethodPost, "/api/v1/auth/register", adaJSON)
	e.do(http.MethodPost, "/api/v1/auth/register", `{"email":"bob@example.com","password":"password123","username":"bob"}`)
	login := e.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"password123"}`)
	cookie := sessionCookie(t, login)

	w := e.do(http.MethodPost, "/api/v1/users/2/roles", `{"role":"Admin"}`, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	e.store.users[0].Roles = append(e.store.users[0].Roles, e.store.admin)
	w = e.do(http.MethodPost, "/api/v1/users/2/roles", `{"role":"Admin"}`, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, e.store.users[1].RoleNames(), models.RoleAdmin)

	w = e.do(http.MethodPost, "/api/v1/users/99/roles", `{"role":"Admin"}`, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/v1/users/abc/roles", `{"role":"Admin"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
