package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"mioym/internal/config"
	"mioym/internal/database"
	"mioym/internal/handlers"
	"mioym/internal/mail"
	"mioym/internal/platform/auth"
	"mioym/internal/platform/password"
	"mioym/internal/platform/session"
	"mioym/internal/platform/user/usertest"
)

const (
	adminPassword    = "Admin1234"
	investorPassword = "Secret123"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []*mail.Email
}

func (m *recordingMailer) SendMail(ctx context.Context, e *mail.Email) error {
	return m.SendTemplatedMail(ctx, e)
}

func (m *recordingMailer) SendTemplatedMail(_ context.Context, e *mail.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

func (m *recordingMailer) last(t *testing.T) *mail.Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	app    *fiber.App
	store  *usertest.Store
	mailer *recordingMailer
	logs   *observer.ObservedLogs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		BaseURL:               "https://portal.example.com/",
		JWTSecret:             "0123456789abcdef0123456789abcdef",
		ResetTokenTTL:         45 * time.Minute,
		SessionTTL:            time.Hour,
		BcryptCost:            bcrypt.MinCost,
		TemporaryLockAttempts: 5,
		PermanentLockAttempts: 15,
		TemporaryLockMinutes:  15,
		MailWelcomeTemplate:   "welcome-password",
		MailResetTemplate:     "reset-password",
	}

	core, logs := observer.New(zap.InfoLevel)
	ts := &testServer{store: usertest.New(), mailer: &recordingMailer{}, logs: logs}
	authService := auth.NewService(cfg, ts.store, ts.mailer, zap.NewNop())
	sessions, err := session.New(cfg, zap.NewNop())
	require.NoError(t, err)

	ts.app = handlers.NewApp(cfg, zap.New(core), authService, sessions)
	return ts
}

func (ts *testServer) seed(t *testing.T, email, secret string, role database.Role, mustChange bool) *database.User {
	t.Helper()
	hash, err := password.NewHasher(bcrypt.MinCost).Hash(secret)
	require.NoError(t, err)

	u := &database.User{
		Email:              email,
		FirstName:          "Ada",
		LastName:           "Investor",
		PasswordHash:       hash,
		Role:               role,
		PasswordMustChange: mustChange,
		LockStatus: database.LockState{
			AttemptsUntilTemporaryLock: 5,
			AttemptsUntilPermanentLock: 15,
		},
	}
	ts.store.Put(u)
	return u
}

type request struct {
	method string
	path   string
	body   any
	cookie *http.Cookie
	bearer string
}

type response struct {
	status int
	body   map[string]any
	cookie *http.Cookie
}

func (ts *testServer) do(t *testing.T, r request) response {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}
	if r.bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+r.bearer)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode}
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			out.cookie = c
		}
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (ts *testServer) login(t *testing.T, email, secret string) response {
	t.Helper()
	return ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/login",
		body:   map[string]string{"email": email, "password": secret},
	})
}

func TestLoginSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, false)

	resp := ts.do(t, request{method: fiber.MethodGet, path: "/api/user/me"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
	assert.Equal(t, "unauthenticated", resp.body["error"])

	resp = ts.login(t, "Investor@Example.com", investorPassword)
	require.Equal(t, fiber.StatusOK, resp.status)
	require.NotNil(t, resp.cookie)
	assert.True(t, resp.cookie.HttpOnly)
	assert.Equal(t, "investor@example.com", resp.body["email"])
	assert.Equal(t, false, resp.body["password_must_change"])
	assert.NotContains(t, resp.body, "password_hash")
	cookie := resp.cookie

	resp = ts.do(t, request{method: fiber.MethodGet, path: "/api/user/me", cookie: cookie})
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.Equal(t, "investor@example.com", resp.body["email"])
	assert.Equal(t, false, resp.body["is_temporary_locked"])

	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/logout", cookie: cookie})
	assert.Equal(t, fiber.StatusNoContent, resp.status)

	resp = ts.do(t, request{method: fiber.MethodGet, path: "/api/user/me", cookie: cookie})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)

	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/logout"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
}

func TestLoginRejections(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, false)

	resp := ts.login(t, "nobody@example.com", investorPassword)
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
	assert.Equal(t, "invalid_credentials", resp.body["error"])
	assert.Nil(t, resp.cookie)

	resp = ts.login(t, "not-an-email", investorPassword)
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, "invalid_input", resp.body["error"])

	for i := 0; i < 4; i++ {
		resp = ts.login(t, "investor@example.com", "Wrong1234")
		require.Equal(t, fiber.StatusUnauthorized, resp.status)
	}
	resp = ts.login(t, "investor@example.com", "Wrong1234")
	assert.Equal(t, fiber.StatusLocked, resp.status)
	assert.Equal(t, "temporarily_locked", resp.body["error"])

	resp = ts.login(t, "investor@example.com", investorPassword)
	assert.Equal(t, fiber.StatusLocked, resp.status)
	assert.Nil(t, resp.cookie)
}

func TestFirstLoginForcesPasswordChange(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, true)

	resp := ts.login(t, "investor@example.com", investorPassword)
	require.Equal(t, fiber.StatusSeeOther, resp.status)
	assert.Equal(t, "must_change_password", resp.body["error"])
	assert.Equal(t, "/new-password", resp.body["redirect_url"])
	assert.Equal(t, true, resp.body["is_first_login"])
	require.NotNil(t, resp.cookie, "session is established before the redirect")
	cookie := resp.cookie

	resp = ts.do(t, request{method: fiber.MethodGet, path: "/api/user/me", cookie: cookie})
	assert.Equal(t, fiber.StatusSeeOther, resp.status)

	resp = ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/set-password",
		cookie: cookie,
		body:   map[string]string{"current_password": investorPassword, "new_password": "nouppercase1"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, auth.PasswordPolicyMessage, resp.body["message"])

	resp = ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/set-password",
		cookie: cookie,
		body:   map[string]string{"current_password": investorPassword, "new_password": investorPassword},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, "password_reused", resp.body["error"])

	resp = ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/set-password",
		cookie: cookie,
		body:   map[string]string{"current_password": investorPassword, "new_password": "Renewed456"},
	})
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.Equal(t, false, resp.body["password_must_change"])
	assert.False(t, ts.store.Get(seeded.ID).PasswordMustChange)

	resp = ts.do(t, request{method: fiber.MethodGet, path: "/api/user/me", cookie: cookie})
	assert.Equal(t, fiber.StatusOK, resp.status)

	resp = ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/set-password",
		cookie: cookie,
		body:   map[string]string{"current_password": "Renewed456", "new_password": "Another789"},
	})
	assert.Equal(t, fiber.StatusForbidden, resp.status)
}

func TestUpdatePassword(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, false)
	cookie := ts.login(t, "investor@example.com", investorPassword).cookie
	require.NotNil(t, cookie)

	resp := ts.do(t, request{
		method: fiber.MethodPut,
		path:   "/api/user/update-password",
		body:   map[string]string{"current_password": investorPassword, "new_password": "Renewed456"},
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)

	resp = ts.do(t, request{
		method: fiber.MethodPut,
		path:   "/api/user/update-password",
		cookie: cookie,
		body:   map[string]string{"current_password": "Wrong1234", "new_password": "Renewed456"},
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
	assert.Equal(t, "invalid_credentials", resp.body["error"])

	resp = ts.do(t, request{
		method: fiber.MethodPut,
		path:   "/api/user/update-password",
		cookie: cookie,
		body:   map[string]string{"current_password": investorPassword, "new_password": "Renewed456"},
	})
	assert.Equal(t, fiber.StatusNoContent, resp.status)

	assert.Equal(t, fiber.StatusOK, ts.login(t, "investor@example.com", "Renewed456").status)
}

func TestForgotAndResetPassword(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, false)

	unknown := ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/forgot-password",
		body:   map[string]string{"email": "nobody@example.com"},
	})
	assert.Empty(t, ts.mailer.sent)

	known := ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/forgot-password",
		body:   map[string]string{"email": "investor@example.com"},
	})
	assert.Equal(t, unknown, known, "response does not reveal whether the account exists")
	assert.Equal(t, fiber.StatusOK, known.status)

	link := ts.mailer.last(t).TemplateVars["reset_link"].(string)
	_, token, found := strings.Cut(link, "token=")
	require.True(t, found)

	resp := ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/reset-password",
		body:   map[string]string{"password": "Renewed456"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, "invalid_or_expired_token", resp.body["error"])

	resp = ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/reset-password",
		bearer: "not.a.token",
		body:   map[string]string{"password": "Renewed456"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, "invalid_or_expired_token", resp.body["error"])

	resp = ts.do(t, request{
		method: fiber.MethodPost,
		path:   "/api/user/reset-password",
		bearer: token,
		body:   map[string]string{"password": "Renewed456"},
	})
	require.Equal(t, fiber.StatusOK, resp.status)

	stored := ts.store.Get(seeded.ID)
	assert.True(t, password.NewHasher(bcrypt.MinCost).Verify("Renewed456", stored.PasswordHash))
	assert.Equal(t, fiber.StatusOK, ts.login(t, "investor@example.com", "Renewed456").status)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "admin@example.com", adminPassword, database.RoleAdmin, false)
	ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, false)

	registration := map[string]string{
		"email":      "new@example.com",
		"first_name": "Grace",
		"last_name":  "Hopper",
	}

	resp := ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", body: registration})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)

	investor := ts.login(t, "investor@example.com", investorPassword).cookie
	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", cookie: investor, body: registration})
	assert.Equal(t, fiber.StatusForbidden, resp.status)
	assert.Equal(t, "forbidden", resp.body["error"])

	admin := ts.login(t, "admin@example.com", adminPassword).cookie
	require.NotNil(t, admin)

	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", cookie: admin, body: map[string]string{"email": "broken"}})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, "invalid_input", resp.body["error"])
	assert.Contains(t, resp.body["message"], "Email (email)")
	assert.NotContains(t, resp.body["message"], "Key: '")

	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", cookie: admin, body: registration})
	require.Equal(t, fiber.StatusCreated, resp.status)
	assert.Equal(t, true, resp.body["email_sent"])
	created := resp.body["user"].(map[string]any)
	assert.Equal(t, "new@example.com", created["email"])
	assert.Equal(t, "investor", created["role"])
	assert.Equal(t, true, created["password_must_change"])

	welcome := ts.mailer.last(t)
	temporary := welcome.TemplateVars["temporary_password"].(string)
	assert.Equal(t, fiber.StatusSeeOther, ts.login(t, "new@example.com", temporary).status)

	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", cookie: admin, body: registration})
	assert.Equal(t, fiber.StatusConflict, resp.status)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	ts := newTestServer(t)
	ts.store.Err = errors.New("pq: connection refused to 10.0.0.5")

	resp := ts.login(t, "investor@example.com", investorPassword)
	assert.Equal(t, fiber.StatusInternalServerError, resp.status)
	assert.Equal(t, "internal", resp.body["error"])
	assert.NotContains(t, resp.body["message"], "10.0.0.5")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, request{method: fiber.MethodGet, path: "/api/nope"})
	assert.Equal(t, fiber.StatusNotFound, resp.status)
	assert.Equal(t, "not_found", resp.body["error"])
}

func TestRegisterWithRole(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "admin@example.com", adminPassword, database.RoleAdmin, false)
	admin := ts.login(t, "admin@example.com", adminPassword).cookie
	require.NotNil(t, admin)

	registration := map[string]string{
		"email":      "member@example.com",
		"first_name": "Grace",
		"last_name":  "Hopper",
		"role":       "owner",
	}

	resp := ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", cookie: admin, body: registration})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Contains(t, resp.body["message"], "Role (oneof)")

	registration["role"] = "member"
	resp = ts.do(t, request{method: fiber.MethodPost, path: "/api/user/register", cookie: admin, body: registration})
	require.Equal(t, fiber.StatusCreated, resp.status)
	assert.Equal(t, "member", resp.body["user"].(map[string]any)["role"])
}

func TestRejectedLoginIsLoggedWithEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "investor@example.com", investorPassword, database.RoleInvestor, false)

	resp := ts.login(t, "Investor@Example.com", "Wrong1234")
	require.Equal(t, fiber.StatusUnauthorized, resp.status)

	entries := ts.logs.FilterMessage("request rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "investor@example.com", fields["user_email"])
	assert.Equal(t, "invalid_credentials", fields["kind"])

	ts.do(t, request{method: fiber.MethodGet, path: "/api/user/me"})
	entries = ts.logs.FilterMessage("request rejected").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "guest", entries[1].ContextMap()["user_email"])
}
