package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": message})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
}

const internalMessage = "An unexpected error occurred."

func serverError(c echo.Context) error {
	return failure(c, "internal server error")
}

func failure(c echo.Context, label string) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": label, "message": internalMessage})
}

// internalError пишет причину в лог и отдает клиенту общий ответ 500.
func internalError(c echo.Context, logger *slog.Logger, op string, err error) error {
	logFailure(c, logger, op, err)
	return serverError(c)
}

func logFailure(c echo.Context, logger *slog.Logger, op string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(c.Request().Context(), op+" failed",
		slog.String("error", err.Error()),
		slog.String("path", c.Path()),
		slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)
}
