package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"orderScope/internal/cache/local"
	"orderScope/internal/config"
)

func TestOpenServicesFallsBackToLocalCache(t *testing.T) {
	a := &app{cfg: config.Config{}, logger: zap.NewNop()}
	if err := a.openServices(context.Background()); err != nil {
		t.Fatalf("open services: %v", err)
	}
	if _, ok := a.cache.(*local.JSONCache); !ok {
		t.Fatalf("expected in-process cache without redis, got %T", a.cache)
	}
	if a.locker == nil || a.reservations == nil || a.notifier == nil {
		t.Fatalf("fallback services not wired")
	}
}
