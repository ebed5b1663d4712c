package main

import (
	"context"
	"testing"

	"powersched/internal/config"
	"powersched/internal/types"
)

func TestNewLogger_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		if logger := newLogger(level); logger == nil {
			t.Errorf("newLogger(%q) returned nil", level)
		}
	}
}

func TestNewPool_RejectsMalformedURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL: types.SecretString("not a connection string %%%"),
		},
	}

	if _, err := newPool(context.Background(), cfg); err == nil {
		t.Fatal("expected error for malformed database URL")
	}
}
