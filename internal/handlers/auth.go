package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/models"
	"example.com/receipt-tax-tracker/backend/internal/repository"
)

// AccountStore хранит учетные записи.
type AccountStore interface {
	Create(ctx context.Context, email, passwordHash string, name *string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

// SessionStore хранит хэши выданных refresh-токенов.
type SessionStore interface {
	Create(ctx context.Context, token models.RefreshToken) error
	GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error)
	Revoke(ctx context.Context, id uuid.UUID, replacedBy *uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	Rotate(ctx context.Context, oldID uuid.UUID, newToken models.RefreshToken) error
}

var errSessionRejected = errors.New("refresh token rejected")

type AuthHandler struct {
	Accounts AccountStore
	Sessions SessionStore
	Tokens   *auth.TokenManager
	Logger   *slog.Logger
}

// NewAuthHandler создает обработчик регистрации, входа и обновления сессии.
func NewAuthHandler(accounts AccountStore, sessions SessionStore, tokens *auth.TokenManager, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{Accounts: accounts, Sessions: sessions, Tokens: tokens, Logger: logger}
}

type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Name     *string `json:"name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// normalizer приводит поля запроса к каноническому виду до проверки тегов.
type normalizer interface {
	normalize()
}

func (r *RegisterRequest) normalize() {
	r.Email = normalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
	r.Name = normalizeName(r.Name)
}

func (r *LoginRequest) normalize() {
	r.Email = normalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

// TokenRequest тело /refresh и /logout.
type TokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthUser struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       *string   `json:"name,omitempty"`
	DataFilled bool      `json:"data_filled"`
}

type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if done, err := bindRequest(c, &req); done {
		return err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return internalError(c, h.Logger, "hash password", err)
	}

	user, err := h.Accounts.Create(c.Request().Context(), req.Email, hash, req.Name)
	if errors.Is(err, repository.ErrConflict) {
		errs := FieldErrors{}
		errs.Add("email", "The email has already been taken.")
		return unprocessable(c, errs)
	}
	if err != nil {
		return internalError(c, h.Logger, "create user", err)
	}

	return h.startSession(c, http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if done, err := bindRequest(c, &req); done {
		return err
	}

	user, err := h.Accounts.GetByEmail(c.Request().Context(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return unauthorized(c)
	}
	if err != nil {
		return internalError(c, h.Logger, "load user", err)
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return unauthorized(c)
	}

	return h.startSession(c, http.StatusOK, user)
}

// Refresh меняет refresh-токен на новую пару. Старый токен отзывается;
// повторное предъявление уже замененного токена отзывает все сессии пользователя.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req TokenRequest
	if done, err := bindRequest(c, &req); done {
		return err
	}

	ctx := c.Request().Context()
	stored, err := h.activeSession(ctx, req.RefreshToken)
	if errors.Is(err, errSessionRejected) {
		return unauthorized(c)
	}
	if err != nil {
		return internalError(c, h.Logger, "check refresh token", err)
	}

	user, err := h.Accounts.GetByID(ctx, stored.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return unauthorized(c)
	}
	if err != nil {
		return internalError(c, h.Logger, "load user", err)
	}

	session, err := h.Tokens.Issue(user.ID)
	if err != nil {
		return internalError(c, h.Logger, "issue session", err)
	}
	// ErrNotFound здесь значит, что параллельный запрос уже заменил токен.
	err = h.Sessions.Rotate(ctx, stored.ID, refreshRecord(user.ID, session))
	if errors.Is(err, repository.ErrNotFound) {
		return unauthorized(c)
	}
	if err != nil {
		return internalError(c, h.Logger, "rotate refresh token", err)
	}

	return c.JSON(http.StatusOK, authResponse(session, user))
}

func (h *AuthHandler) Logout(c echo.Context) error {
	var req TokenRequest
	if done, err := bindRequest(c, &req); done {
		return err
	}

	claims, err := h.Tokens.Verify(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		return unauthorized(c)
	}
	refreshID, err := claims.TokenID()
	if err != nil {
		return unauthorized(c)
	}
	if userID, ok := auth.UserIDFromContext(c); ok && claims.Subject != userID.String() {
		return forbidden(c)
	}

	err = h.Sessions.Revoke(c.Request().Context(), refreshID, nil)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return internalError(c, h.Logger, "revoke refresh token", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me возвращает профиль текущего пользователя вместе с флагом data_filled.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.Accounts.GetByID(c.Request().Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "user not found")
	}
	if err != nil {
		return internalError(c, h.Logger, "load user", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) startSession(c echo.Context, status int, user models.User) error {
	session, err := h.Tokens.Issue(user.ID)
	if err != nil {
		return internalError(c, h.Logger, "issue session", err)
	}
	if err := h.Sessions.Create(c.Request().Context(), refreshRecord(user.ID, session)); err != nil {
		return internalError(c, h.Logger, "store refresh token", err)
	}
	return c.JSON(status, authResponse(session, user))
}

// activeSession находит запись refresh-токена и проверяет, что она не
// отозвана, не истекла и совпадает по хэшу.
func (h *AuthHandler) activeSession(ctx context.Context, raw string) (models.RefreshToken, error) {
	claims, err := h.Tokens.Verify(raw, auth.KindRefresh)
	if err != nil {
		return models.RefreshToken{}, errSessionRejected
	}
	refreshID, err := claims.TokenID()
	if err != nil {
		return models.RefreshToken{}, errSessionRejected
	}
	userID, err := claims.UserID()
	if err != nil {
		return models.RefreshToken{}, errSessionRejected
	}

	stored, err := h.Sessions.GetByID(ctx, refreshID)
	if errors.Is(err, repository.ErrNotFound) {
		return stored, errSessionRejected
	}
	if err != nil {
		return stored, err
	}
	if stored.UserID != userID || !auth.TokenMatches(stored.TokenHash, raw) {
		return stored, errSessionRejected
	}

	if stored.RevokedAt != nil {
		if stored.ReplacedBy != nil {
			revoked, err := h.Sessions.RevokeAllForUser(ctx, userID)
			if err != nil {
				return stored, err
			}
			h.Logger.WarnContext(ctx, "rotated refresh token reused",
				slog.String("user_id", userID.String()),
				slog.Int64("revoked", revoked),
			)
		}
		return stored, errSessionRejected
	}
	if h.Tokens.Now().After(stored.ExpiresAt) {
		return stored, errSessionRejected
	}

	return stored, nil
}

// bindRequest разбирает JSON-тело, нормализует его и проверяет теги
// validate. При true ответ клиенту уже записан.
func bindRequest(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return true, badRequest(c, "invalid payload")
	}
	if n, ok := req.(normalizer); ok {
		n.normalize()
	}

	errs := FieldErrors{}
	if err := errs.Merge(c.Validate(req)); err != nil {
		return true, badRequest(c, "validation failed")
	}
	if len(errs) > 0 {
		return true, unprocessable(c, errs)
	}
	return false, nil
}

func refreshRecord(userID uuid.UUID, session auth.Session) models.RefreshToken {
	return models.RefreshToken{
		ID:        session.RefreshID,
		UserID:    userID,
		TokenHash: auth.HashToken(session.RefreshToken),
		ExpiresAt: session.RefreshExpiresAt,
	}
}

func authResponse(session auth.Session, user models.User) AuthResponse {
	return AuthResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		User: AuthUser{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			DataFilled: user.DataFilled,
		},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	if trimmed := strings.TrimSpace(*name); trimmed != "" {
		return &trimmed
	}
	return nil
}
