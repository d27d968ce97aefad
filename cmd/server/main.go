package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"example.com/receipt-tax-tracker/backend/internal/config"
	"example.com/receipt-tax-tracker/backend/internal/database"
	"example.com/receipt-tax-tracker/backend/internal/repository"
	"example.com/receipt-tax-tracker/backend/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	if os.Getenv("ENV_FILE") == "" {
		if path, ok := findEnvFile(".env", "../.env"); ok {
			_ = os.Setenv("ENV_FILE", path)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Суммы в ответах API отдаются числами.
	decimal.MarshalJSONWithoutQuotes = true

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	e, err := server.New(cfg, logger, db)
	if err != nil {
		return err
	}
	httpServer := server.NewHTTPServer(cfg.Server, e)
	tokens := repository.NewRefreshTokenRepository(db)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", httpServer.Addr), slog.String("env", cfg.Env))
		if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		purgeExpiredTokens(gctx, tokens, logger)
		return nil
	})

	return g.Wait()
}

// purgeExpiredTokens раз в purgeInterval удаляет истекшие refresh-токены.
func purgeExpiredTokens(ctx context.Context, tokens *repository.RefreshTokenRepository, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deleted, err := tokens.DeleteExpired(ctx, now)
			if err != nil {
				logger.Warn("purge expired refresh tokens failed", slog.String("error", err.Error()))
				continue
			}
			if deleted > 0 {
				logger.Info("expired refresh tokens purged", slog.Int64("deleted", deleted))
			}
		}
	}
}

func parseLogLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func findEnvFile(candidates ...string) (string, bool) {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
