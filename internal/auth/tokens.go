package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"example.com/receipt-tax-tracker/backend/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongKind    = errors.New("token kind mismatch")
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	Kind Kind `json:"typ"`
	jwt.RegisteredClaims
}

// UserID возвращает владельца токена из subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject", ErrInvalidToken)
	}
	return id, nil
}

// TokenID возвращает jti; для refresh-токена это id записи в refresh_tokens.
func (c *Claims) TokenID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: jti", ErrInvalidToken)
	}
	return id, nil
}

// Session описывает выданную пару токенов.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshID        uuid.UUID
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Now подменяется в тестах.
	Now func() time.Time
}

// NewTokenManager создает менеджер токенов по настройкам авторизации.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	return &TokenManager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		Now:        time.Now,
	}
}

// Issue выдает пользователю новую сессию с собственным id refresh-токена.
func (m *TokenManager) Issue(userID uuid.UUID) (Session, error) {
	session := Session{RefreshID: uuid.New()}

	var err error
	session.AccessToken, session.AccessExpiresAt, err = m.sign(userID, uuid.New(), KindAccess, m.accessTTL)
	if err != nil {
		return Session{}, err
	}
	session.RefreshToken, session.RefreshExpiresAt, err = m.sign(userID, session.RefreshID, KindRefresh, m.refreshTTL)
	if err != nil {
		return Session{}, err
	}

	return session, nil
}

// Verify проверяет подпись, издателя, срок и вид токена.
func (m *TokenManager) Verify(raw string, kind Kind) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.Now),
	)

	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}

	return claims, nil
}

func (m *TokenManager) sign(userID, tokenID uuid.UUID, kind Kind, ttl time.Duration) (string, time.Time, error) {
	issuedAt := m.Now()
	expiresAt := issuedAt.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID.String(),
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
