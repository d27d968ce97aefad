package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/config"
	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

type fakeAccounts struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{users: make(map[uuid.UUID]models.User)}
}

func (f *fakeAccounts) Create(ctx context.Context, email, passwordHash string, name *string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if user.Email == email {
			return models.User{}, repository.ErrConflict
		}
	}
	user := models.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, Name: name}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeAccounts) GetByEmail(ctx context.Context, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (f *fakeAccounts) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.RefreshToken
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: make(map[uuid.UUID]models.RefreshToken)}
}

func (f *fakeSessions) Create(ctx context.Context, token models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token.ID] = token
	return nil
}

func (f *fakeSessions) GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[id]
	if !ok {
		return models.RefreshToken{}, repository.ErrNotFound
	}
	return token, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, id uuid.UUID, replacedBy *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoke(id, replacedBy)
}

func (f *fakeSessions) revoke(id uuid.UUID, replacedBy *uuid.UUID) error {
	token, ok := f.tokens[id]
	if !ok || token.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now()
	token.RevokedAt = &now
	token.ReplacedBy = replacedBy
	f.tokens[id] = token
	return nil
}

func (f *fakeSessions) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var revoked int64
	for id, token := range f.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			_ = f.revoke(id, nil)
			revoked++
		}
	}
	return revoked, nil
}

func (f *fakeSessions) Rotate(ctx context.Context, oldID uuid.UUID, newToken models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.revoke(oldID, &newToken.ID); err != nil {
		return err
	}
	f.tokens[newToken.ID] = newToken
	return nil
}

func (f *fakeSessions) active(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, token := range f.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			count++
		}
	}
	return count
}

func newTestAuthHandler() (*AuthHandler, *fakeAccounts, *fakeSessions) {
	accounts := newFakeAccounts()
	sessions := newFakeSessions()
	manager := auth.NewTokenManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "receipt-tracker",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	return NewAuthHandler(accounts, sessions, manager, nil), accounts, sessions
}

func postJSON(t *testing.T, handler echo.HandlerFunc, path, body string) (int, []byte) {
	t.Helper()
	c, rec := newTestContext(http.MethodPost, path, strings.NewReader(body), "application/json", uuid.Nil)
	if err := handler(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return rec.Code, rec.Body.Bytes()
}

func decodeAuth(t *testing.T, body []byte) AuthResponse {
	t.Helper()
	var response AuthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("expected auth response, got %v", err)
	}
	return response
}

// TestRegisterStartsSession проверяет регистрацию и сохранение хэша refresh-токена.
func TestRegisterStartsSession(t *testing.T) {
	h, accounts, sessions := newTestAuthHandler()

	code, body := postJSON(t, h.Register, "/register", `{"email":" Ana@Example.com ","password":"secret123","name":"  Ana "}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", code, body)
	}

	response := decodeAuth(t, body)
	if response.User.Email != "ana@example.com" || response.User.Name == nil || *response.User.Name != "Ana" {
		t.Fatalf("unexpected user %+v", response.User)
	}
	if len(accounts.users) != 1 || sessions.active(response.User.ID) != 1 {
		t.Fatalf("expected one user with one session")
	}
	for _, token := range sessions.tokens {
		if token.TokenHash == response.RefreshToken || !auth.TokenMatches(token.TokenHash, response.RefreshToken) {
			t.Fatal("expected refresh token to be stored hashed")
		}
	}
}

// TestRegisterDuplicateEmail проверяет ошибку поля email для занятого адреса.
func TestRegisterDuplicateEmail(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	payload := `{"email":"ana@example.com","password":"secret123"}`

	if code, body := postJSON(t, h.Register, "/register", payload); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", code, body)
	}
	code, body := postJSON(t, h.Register, "/register", payload)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	if _, ok := decodeErrors(t, body)["email"]; !ok {
		t.Fatal("expected error for email")
	}
}

// TestLoginRejectsWrongPassword проверяет отказ при неверном пароле.
func TestLoginRejectsWrongPassword(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	postJSON(t, h.Register, "/register", `{"email":"ana@example.com","password":"secret123"}`)

	if code, _ := postJSON(t, h.Login, "/login", `{"email":"ana@example.com","password":"wrong-pass"}`); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code, _ := postJSON(t, h.Login, "/login", `{"email":"ANA@example.com","password":"secret123"}`); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

// TestLoginTrimsEmail проверяет вход с пробелами вокруг адреса.
func TestLoginTrimsEmail(t *testing.T) {
	h, _, _ := newTestAuthHandler()
	postJSON(t, h.Register, "/register", `{"email":"ana@example.com","password":"secret123"}`)

	code, body := postJSON(t, h.Login, "/login", `{"email":"  Ana@Example.com\t","password":" secret123 "}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if response := decodeAuth(t, body); response.User.Email != "ana@example.com" {
		t.Fatalf("expected ana@example.com, got %s", response.User.Email)
	}

	if code, _ := postJSON(t, h.Login, "/login", `{"email":"   ","password":"secret123"}`); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank email, got %d", code)
	}
}

// TestRefreshRotatesAndDetectsReuse проверяет замену токена и отзыв всех сессий при повторе.
func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	h, _, sessions := newTestAuthHandler()
	_, body := postJSON(t, h.Register, "/register", `{"email":"ana@example.com","password":"secret123"}`)
	first := decodeAuth(t, body)

	code, body := postJSON(t, h.Refresh, "/refresh", `{"refresh_token":"`+first.RefreshToken+`"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	second := decodeAuth(t, body)
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if sessions.active(first.User.ID) != 1 {
		t.Fatalf("expected exactly one active session, got %d", sessions.active(first.User.ID))
	}

	if code, _ := postJSON(t, h.Refresh, "/refresh", `{"refresh_token":"`+first.RefreshToken+`"}`); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", code)
	}
	if sessions.active(first.User.ID) != 0 {
		t.Fatal("expected reuse to revoke every session")
	}
}

// TestRefreshRequiresToken проверяет ошибку поля при пустом теле.
func TestRefreshRequiresToken(t *testing.T) {
	h, _, _ := newTestAuthHandler()

	code, body := postJSON(t, h.Refresh, "/refresh", `{}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	if _, ok := decodeErrors(t, body)["refresh_token"]; !ok {
		t.Fatal("expected error for refresh_token")
	}
}

// TestLogoutRevokesSession проверяет, что после выхода токен не обновляется.
func TestLogoutRevokesSession(t *testing.T) {
	h, _, sessions := newTestAuthHandler()
	_, body := postJSON(t, h.Register, "/register", `{"email":"ana@example.com","password":"secret123"}`)
	session := decodeAuth(t, body)

	if code, _ := postJSON(t, h.Logout, "/logout", `{"refresh_token":"`+session.RefreshToken+`"}`); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if sessions.active(session.User.ID) != 0 {
		t.Fatal("expected session to be revoked")
	}
	if code, _ := postJSON(t, h.Refresh, "/refresh", `{"refresh_token":"`+session.RefreshToken+`"}`); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}
}
