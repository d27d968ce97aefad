package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"example.com/receipt-tax-tracker/backend/internal/ai"
	"example.com/receipt-tax-tracker/backend/internal/auth"
	"example.com/receipt-tax-tracker/backend/internal/config"
	"example.com/receipt-tax-tracker/backend/internal/handlers"
	"example.com/receipt-tax-tracker/backend/internal/notifications"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/storage"
	"example.com/receipt-tax-tracker/backend/internal/summary"
)

var extractionCategories = []string{
	"Food",
	"Travel",
	"Electronic Gadget",
	"Cloud Services",
	"Medical",
	"Education",
	"Miscellaneous",
}

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(cfg config.Config, logger *slog.Logger, db *pgxpool.Pool) (*echo.Echo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	images, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	tokenManager := auth.NewTokenManager(cfg.Auth)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	referenceRepo := repository.NewReferenceRepository(db, cfg.Cache.ReferenceTTL)
	statsRepo := repository.NewStatsRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	aiRepo := repository.NewAIRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	notificationHub := notifications.NewHub()

	summaryService := summary.NewService(referenceRepo, statsRepo)
	extractor := newExtractor(cfg.AI)
	logger.Info("receipt extractor configured", slog.String("provider", providerName(cfg.AI)))

	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}

	registerRoutes(e, routeHandlers{
		auth:          handlers.NewAuthHandler(userRepo, tokenRepo, tokenManager, logger),
		dashboard:     handlers.NewDashboardHandler(summaryService, receiptRepo, ai.StaticSuggestions{}, logger),
		receipts:      handlers.NewReceiptHandler(receiptRepo, referenceRepo, images, notificationHub, cfg.Upload, logger),
		receiptAI:     handlers.NewReceiptAIHandler(receiptRepo, images, extractor, aiRepo, notificationHub, cfg.Upload, logger),
		preferences:   handlers.NewPreferenceHandler(preferenceRepo, userRepo, logger),
		notifications: handlers.NewNotificationHandler(notificationHub),
		admin:         handlers.NewAdminHandler(adminRepo, logger),
		health:        handlers.Health(pinger),
	}, routeMiddleware{
		auth:        auth.RequireUser(tokenManager),
		admin:       handlers.AdminMiddleware(userRepo, cfg.Admin.Emails, logger),
		authLimiter: rateLimiter(cfg.Auth.RateLimitPerMinute, cfg.Auth.RateLimitBurst),
		aiLimiter:   rateLimiter(cfg.AI.RateLimitPerMinute, cfg.AI.RateLimitBurst),
	})

	return e, nil
}

// newExtractor выбирает распознаватель чеков по AI_PROVIDER.
func newExtractor(cfg config.AIConfig) ai.Extractor {
	switch providerName(cfg) {
	case config.AIProviderGemini:
		client := ai.NewGeminiClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens)
		return ai.NewModelExtractor(client, config.AIProviderGemini, cfg.Model, extractionCategories)
	case config.AIProviderGroq:
		client := ai.NewGroqClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens)
		return ai.NewModelExtractor(client, config.AIProviderGroq, cfg.Model, extractionCategories)
	default:
		return ai.NewMockExtractor()
	}
}

func providerName(cfg config.AIConfig) string {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		return config.AIProviderMock
	}
	return provider
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
