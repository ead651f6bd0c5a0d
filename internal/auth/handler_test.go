package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

type memoryAuthRepo struct {
	users    map[string]*User
	sessions map[string]int64
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{users: make(map[string]*User), sessions: make(map[string]int64)}
}

func (r *memoryAuthRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = userID
	return nil
}

func (r *memoryAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memoryAuthRepo, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "atlas_session", "test-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	repo := newMemoryAuthRepo()
	handler := NewHandler(slog.Default(), NewService(repo), sessions, csrf)
	return handler, repo, sessions
}

func seedUser(t *testing.T, repo *memoryAuthRepo, email, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users[email] = &User{ID: 1, Email: email, PasswordHash: string(hash), IsActive: active}
}

func doLogin(handler *Handler, sessions *shared.SessionManager, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	sess, _ := sessions.Load(req.Context(), req)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)
	return rec
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	handler, repo, sessions := newTestHandler(t)
	seedUser(t, repo, "picker@example.com", "warehouse-pass", true)

	rec := doLogin(handler, sessions, `{"email":"picker@example.com","password":"warehouse-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "csrf_token")
	require.Len(t, repo.sessions, 1)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler, repo, sessions := newTestHandler(t)
	seedUser(t, repo, "picker@example.com", "warehouse-pass", true)

	rec := doLogin(handler, sessions, `{"email":"picker@example.com","password":"wrong-password"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, repo.sessions)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	handler, repo, sessions := newTestHandler(t)
	seedUser(t, repo, "picker@example.com", "warehouse-pass", false)

	rec := doLogin(handler, sessions, `{"email":"picker@example.com","password":"warehouse-pass"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	handler, _, sessions := newTestHandler(t)

	rec := doLogin(handler, sessions, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "errors")
}
