package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	ContextUserIDKey = "user_id"

	// GET-запросы, например поток уведомлений через EventSource, могут
	// передать токен в query.
	accessTokenParam = "access_token"
)

// RequireUser пропускает запрос только с действующим access-токеном и
// кладет id пользователя в контекст.
func RequireUser(manager *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := accessToken(c.Request())
			if !ok {
				return unauthenticated(c)
			}

			claims, err := manager.Verify(raw, KindAccess)
			if err != nil {
				return unauthenticated(c)
			}
			userID, err := claims.UserID()
			if err != nil {
				return unauthenticated(c)
			}

			c.Set(ContextUserIDKey, userID)
			return next(c)
		}
	}
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
func UserIDFromContext(c echo.Context) (uuid.UUID, bool) {
	userID, ok := c.Get(ContextUserIDKey).(uuid.UUID)
	return userID, ok
}

func accessToken(r *http.Request) (string, bool) {
	if header := r.Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}

	if r.Method != http.MethodGet {
		return "", false
	}
	token := strings.TrimSpace(r.URL.Query().Get(accessTokenParam))
	return token, token != ""
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
}
