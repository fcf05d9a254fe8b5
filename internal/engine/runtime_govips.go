//go:build govips && cgo

package engine

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

// Startup initializes the libvips runtime. The first call wins; later calls
// are no-ops so every entry point can call it unconditionally.
func Startup(rt RuntimeConfig) error {
	startupOnce.Do(func() {
		cfg := vips.Config{
			ConcurrencyLevel: rt.Concurrency,
			MaxCacheFiles:    rt.MaxCacheFiles,
			MaxCacheMem:      rt.MaxCacheMem,
			MaxCacheSize:     rt.MaxCacheSize,
		}
		if cfg.MaxCacheMem <= 0 {
			cfg.MaxCacheMem = 128 * 1024 * 1024
		}
		if cfg.MaxCacheSize <= 0 {
			cfg.MaxCacheSize = 100
		}
		vips.Startup(&cfg)

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func newCodec() (Codec, error) {
	return vipsCodec{}, nil
}
