package database

import (
	"testing"
	"time"

	"example.com/receipt-tax-tracker/backend/internal/config"
)

// TestNewPoolConfig проверяет перенос лимитов пула и параметров сессии.
func TestNewPoolConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "db",
		Port:            5432,
		User:            "u",
		Password:        "p",
		Name:            "receipts",
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    10,
		ConnMaxIdleTime: time.Minute,
		ConnMaxLifetime: time.Hour,
	}

	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if poolConfig.MaxConns != 4 {
		t.Fatalf("expected 4 max conns, got %d", poolConfig.MaxConns)
	}
	if poolConfig.MinConns != 4 {
		t.Fatalf("expected min conns capped at 4, got %d", poolConfig.MinConns)
	}
	if poolConfig.MaxConnIdleTime != time.Minute || poolConfig.MaxConnLifetime != time.Hour {
		t.Fatalf("unexpected lifetimes %v %v", poolConfig.MaxConnIdleTime, poolConfig.MaxConnLifetime)
	}
	if poolConfig.ConnConfig.Database != "receipts" {
		t.Fatalf("expected database receipts, got %s", poolConfig.ConnConfig.Database)
	}
	if got := poolConfig.ConnConfig.RuntimeParams["application_name"]; got != applicationName {
		t.Fatalf("expected application_name %s, got %s", applicationName, got)
	}
}

// TestNewPoolConfigKeepsDefaults проверяет, что нулевые значения не сбрасывают настройки pgxpool.
func TestNewPoolConfigKeepsDefaults(t *testing.T) {
	poolConfig, err := newPoolConfig(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Name: "receipts", SSLMode: "disable"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if poolConfig.MaxConns <= 0 {
		t.Fatalf("expected default max conns, got %d", poolConfig.MaxConns)
	}
	if poolConfig.MaxConnLifetime <= 0 {
		t.Fatalf("expected default lifetime, got %v", poolConfig.MaxConnLifetime)
	}
}
