package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.Security.AllowUnsafe {
		t.Fatal("expected unsafe mode to default off")
	}
	if cfg.Security.ResultKeyStyle != "digest" {
		t.Fatalf("expected digest key style, got %s", cfg.Security.ResultKeyStyle)
	}
	if cfg.Engine.DefaultQuality != 80 {
		t.Fatalf("expected default quality 80, got %d", cfg.Engine.DefaultQuality)
	}
	if cfg.Engine.MaxActiveTransforms < 1 {
		t.Fatalf("expected at least one transform slot, got %d", cfg.Engine.MaxActiveTransforms)
	}
	if cfg.Storage.Backend != "none" {
		t.Fatalf("expected storage to default off, got %s", cfg.Storage.Backend)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("expected memory cache default, got %s", cfg.Cache.Backend)
	}
	if !cfg.Origin.Enabled {
		t.Fatal("expected origin loader to default on")
	}
	if cfg.RateLimit.Capacity != 0 {
		t.Fatalf("expected rate limiting to default off, got capacity %d", cfg.RateLimit.Capacity)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIXELGATE_HTTP_ADDR", ":9999")
	t.Setenv("PIXELGATE_ALLOW_UNSAFE", "true")
	t.Setenv("PIXELGATE_MAX_WIDTH", "2000")
	t.Setenv("PIXELGATE_CACHE_TTL", "90s")
	t.Setenv("PIXELGATE_ORIGIN_MAX_BODY_BYTES", "1048576")
	t.Setenv("PIXELGATE_DISABLED_FILTERS", "watermark, max_bytes")

	cfg := Load()

	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("expected overridden addr, got %s", cfg.HTTP.Addr)
	}
	if !cfg.Security.AllowUnsafe {
		t.Fatal("expected unsafe override to apply")
	}
	if cfg.Engine.MaxWidth != 2000 {
		t.Fatalf("expected max width 2000, got %d", cfg.Engine.MaxWidth)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("expected 90s cache ttl, got %s", cfg.Cache.TTL)
	}
	if cfg.Origin.MaxBodyBytes != 1<<20 {
		t.Fatalf("expected 1MiB origin cap, got %d", cfg.Origin.MaxBodyBytes)
	}
	if len(cfg.Engine.DisabledFilters) != 2 || cfg.Engine.DisabledFilters[1] != "max_bytes" {
		t.Fatalf("expected parsed filter list, got %v", cfg.Engine.DisabledFilters)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PIXELGATE_MAX_WIDTH", "not-a-number")
	t.Setenv("PIXELGATE_CACHE_TTL", "soon")
	t.Setenv("PIXELGATE_ALLOW_UNSAFE", "maybe")

	cfg := Load()

	if cfg.Engine.MaxWidth != 16384 {
		t.Fatalf("expected fallback max width, got %d", cfg.Engine.MaxWidth)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Fatalf("expected fallback cache ttl, got %s", cfg.Cache.TTL)
	}
	if cfg.Security.AllowUnsafe {
		t.Fatal("expected fallback unsafe=false")
	}
}
