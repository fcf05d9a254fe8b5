package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/jonaylor89/pixelgate/internal/cache"
	"github.com/jonaylor89/pixelgate/internal/config"
	"github.com/jonaylor89/pixelgate/internal/engine"
	"github.com/jonaylor89/pixelgate/internal/origin"
	"github.com/jonaylor89/pixelgate/internal/pipeline"
	"github.com/jonaylor89/pixelgate/internal/pixelpath"
	"github.com/jonaylor89/pixelgate/internal/storage"
	"github.com/jonaylor89/pixelgate/internal/store"
	"github.com/jonaylor89/pixelgate/internal/telemetry"
)

// appCore is everything the server and the worker share: the transformation
// pipeline plus cleanup for the resources wired into it.
type appCore struct {
	pipeline *pipeline.Pipeline
	closers  []func()
}

func (a *appCore) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildCore(ctx context.Context, cfg config.Config, logger *log.Logger) (*appCore, error) {
	core := &appCore{}

	if err := engine.Startup(engine.RuntimeConfig{
		Concurrency:   cfg.Vips.Concurrency,
		MaxCacheFiles: cfg.Vips.MaxCacheFiles,
		MaxCacheMem:   cfg.Vips.MaxCacheMem,
		MaxCacheSize:  cfg.Vips.MaxCacheSize,
	}); err != nil {
		return nil, fmt.Errorf("start engine runtime: %w", err)
	}
	core.closers = append(core.closers, engine.Shutdown)

	sources, results, err := buildStores(ctx, cfg.Storage)
	if err != nil {
		core.close()
		return nil, err
	}

	resultCache, err := buildCache(cfg.Cache, core, logger)
	if err != nil {
		core.close()
		return nil, err
	}

	usage, err := buildUsageStore(ctx, cfg.Postgres, core, logger)
	if err != nil {
		core.close()
		return nil, err
	}

	var remote *origin.HTTP
	if cfg.Origin.Enabled {
		remote = origin.NewHTTP(origin.Config{
			Timeout:      cfg.Origin.Timeout,
			MaxBodyBytes: cfg.Origin.MaxBodyBytes,
			UserAgent:    "pixelgate/" + version,
		})
	}
	fetcher := pipeline.NewSourceFetcher(remote, sources, cfg.Security.SafeChars, cfg.Origin.Mirror, logger)

	eng, err := engine.New(engine.Limits{
		MaxWidth:             cfg.Engine.MaxWidth,
		MaxHeight:            cfg.Engine.MaxHeight,
		MaxResolution:        cfg.Engine.MaxResolution,
		MaxFilterOps:         cfg.Engine.MaxFilterOps,
		MaxAnimationFrames:   cfg.Engine.MaxAnimationFrames,
		DefaultQuality:       cfg.Engine.DefaultQuality,
		StripMetadataDefault: cfg.Engine.StripMetadata,
		DisabledFilters:      cfg.Engine.DisabledFilters,
		AvifSpeed:            cfg.Engine.AvifSpeed,
	}, fetcher)
	if err != nil {
		core.close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	core.pipeline = pipeline.New(pipeline.Config{
		Logger:            logger,
		Engine:            eng,
		Fetcher:           fetcher,
		Secret:            cfg.Security.Secret,
		SignatureTruncate: cfg.Security.SignatureTruncate,
		AllowUnsafe:       cfg.Security.AllowUnsafe,
		KeyStyle:          pixelpath.KeyStyle(cfg.Security.ResultKeyStyle),
		SafeChars:         cfg.Security.SafeChars,
		Cache:             resultCache,
		CacheTTL:          cfg.Cache.TTL,
		ResultStore:       results,
		Usage:             usage,
		MaxActive:         cfg.Engine.MaxActiveTransforms,
	})
	return core, nil
}

func buildStores(ctx context.Context, cfg config.StorageConfig) (storage.Store, storage.Store, error) {
	switch cfg.Backend {
	case "file":
		sources, err := storage.NewFileStore(cfg.FileDir, cfg.SourcePrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open source store: %w", err)
		}
		results, err := storage.NewFileStore(cfg.FileDir, cfg.ResultPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open result store: %w", err)
		}
		return sources, results, nil
	case "s3":
		s3cfg := storage.S3Config{
			Endpoint: cfg.S3Endpoint,
			Access:   cfg.S3AccessKey,
			Secret:   cfg.S3SecretKey,
			Bucket:   cfg.S3Bucket,
			UseSSL:   cfg.S3UseSSL,
		}

		s3cfg.PathPrefix = cfg.SourcePrefix
		sources, err := storage.NewS3Store(s3cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open source store: %w", err)
		}
		if err := sources.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure bucket %s: %w", cfg.S3Bucket, err)
		}

		s3cfg.PathPrefix = cfg.ResultPrefix
		results, err := storage.NewS3Store(s3cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open result store: %w", err)
		}
		return sources, results, nil
	case "none", "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildCache(cfg config.CacheConfig, core *appCore, logger *log.Logger) (cache.Cache, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemory(cfg.MaxEntries), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		core.closers = append(core.closers, func() {
			if err := client.Close(); err != nil {
				logger.Printf("cache redis close error: %v", err)
			}
		})
		return cache.NewRedis(client, ""), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func buildUsageStore(ctx context.Context, cfg config.PostgresConfig, core *appCore, logger *log.Logger) (store.UsageStore, error) {
	if cfg.DSN == "" {
		return store.NewMemoryUsageStore(), nil
	}

	pg, err := store.NewPostgresUsageStore(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect usage store: %w", err)
	}
	core.closers = append(core.closers, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("usage store close error: %v", err)
		}
	})
	return pg, nil
}

func setupTracing(ctx context.Context, serviceName string, cfg config.TraceConfig, logger *log.Logger) (func(context.Context) error, error) {
	return telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  serviceName,
		Exporter:     cfg.Exporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	}, logger)
}
