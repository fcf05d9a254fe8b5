// Package config loads the flat PIXELGATE_* environment configuration.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	HTTP      HTTPConfig
	Security  SecurityConfig
	Engine    EngineConfig
	Vips      VipsConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Origin    OriginConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Postgres  PostgresConfig
	Trace     TraceConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
}

type HTTPConfig struct {
	Addr string
	// ProcessTimeout bounds one transformation end to end, semaphore wait
	// included.
	ProcessTimeout time.Duration
	// CacheControlTTL becomes the max-age of served results.
	CacheControlTTL time.Duration
}

type SecurityConfig struct {
	// Secret keys the URL signature HMAC. Empty rejects every signed path.
	Secret string
	// AllowUnsafe serves unsigned unsafe/ paths, for development only.
	AllowUnsafe bool
	// SignatureTruncate shortens signatures to this many characters, 0 for
	// full length.
	SignatureTruncate int
	// ResultKeyStyle is digest, suffix or size-suffix.
	ResultKeyStyle string
	// SafeChars extends the storage key escaping policy, "--" disables it.
	SafeChars string
}

type EngineConfig struct {
	MaxWidth           int
	MaxHeight          int
	MaxResolution      int
	MaxFilterOps       int
	MaxAnimationFrames int
	DefaultQuality     int
	StripMetadata      bool
	DisabledFilters    []string
	AvifSpeed          int
	// MaxActiveTransforms sizes the processing semaphore shared by the
	// request handlers.
	MaxActiveTransforms int
}

type VipsConfig struct {
	Concurrency   int
	MaxCacheFiles int
	MaxCacheMem   int
	MaxCacheSize  int
}

type StorageConfig struct {
	// Backend is file, s3 or none.
	Backend      string
	FileDir      string
	SourcePrefix string
	ResultPrefix string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Bucket     string
	S3UseSSL     bool
}

type CacheConfig struct {
	// Backend is memory, redis or none.
	Backend       string
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type OriginConfig struct {
	Enabled      bool
	Timeout      time.Duration
	MaxBodyBytes int64
	// Mirror copies origin fetches into source storage under the digest
	// key so repeat requests skip the upstream.
	Mirror bool
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int
	MetricsAddr string
}

type PostgresConfig struct {
	// DSN empty keeps usage records in memory.
	DSN string
}

type TraceConfig struct {
	// Exporter is stdout, otlp or none.
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type RateLimitConfig struct {
	// Capacity zero disables rate limiting.
	Capacity      int
	Window        time.Duration
	SubjectHeader string
}

type WebhookConfig struct {
	// URL empty disables prewarm completion notifications.
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

func Load() Config {
	defaultTransformSlots := max(1, runtime.NumCPU()/2)

	return Config{
		HTTP: HTTPConfig{
			Addr:            env("PIXELGATE_HTTP_ADDR", ":8080"),
			ProcessTimeout:  envDuration("PIXELGATE_PROCESS_TIMEOUT", 30*time.Second),
			CacheControlTTL: envDuration("PIXELGATE_CACHE_CONTROL_TTL", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			Secret:            env("PIXELGATE_SECRET", ""),
			AllowUnsafe:       envBool("PIXELGATE_ALLOW_UNSAFE", false),
			SignatureTruncate: envInt("PIXELGATE_SIGNATURE_TRUNCATE", 0),
			ResultKeyStyle:    env("PIXELGATE_RESULT_KEY_STYLE", "digest"),
			SafeChars:         env("PIXELGATE_SAFE_CHARS", ""),
		},
		Engine: EngineConfig{
			MaxWidth:            envInt("PIXELGATE_MAX_WIDTH", 16384),
			MaxHeight:           envInt("PIXELGATE_MAX_HEIGHT", 16384),
			MaxResolution:       envInt("PIXELGATE_MAX_RESOLUTION", 16_800_000),
			MaxFilterOps:        envInt("PIXELGATE_MAX_FILTER_OPS", 0),
			MaxAnimationFrames:  envInt("PIXELGATE_MAX_ANIMATION_FRAMES", 100),
			DefaultQuality:      envInt("PIXELGATE_DEFAULT_QUALITY", 80),
			StripMetadata:       envBool("PIXELGATE_STRIP_METADATA", false),
			DisabledFilters:     envList("PIXELGATE_DISABLED_FILTERS"),
			AvifSpeed:           envInt("PIXELGATE_AVIF_SPEED", 0),
			MaxActiveTransforms: envInt("PIXELGATE_MAX_ACTIVE_TRANSFORMS", defaultTransformSlots),
		},
		Vips: VipsConfig{
			Concurrency:   envInt("PIXELGATE_VIPS_CONCURRENCY", 0),
			MaxCacheFiles: envInt("PIXELGATE_VIPS_MAX_CACHE_FILES", 0),
			MaxCacheMem:   envInt("PIXELGATE_VIPS_MAX_CACHE_MEM", 0),
			MaxCacheSize:  envInt("PIXELGATE_VIPS_MAX_CACHE_SIZE", 0),
		},
		Storage: StorageConfig{
			Backend:      env("PIXELGATE_STORAGE_BACKEND", "none"),
			FileDir:      env("PIXELGATE_STORAGE_FILE_DIR", "./data"),
			SourcePrefix: env("PIXELGATE_STORAGE_SOURCE_PREFIX", "sources"),
			ResultPrefix: env("PIXELGATE_STORAGE_RESULT_PREFIX", "results"),
			S3Endpoint:   env("PIXELGATE_S3_ENDPOINT", "localhost:9000"),
			S3AccessKey:  env("PIXELGATE_S3_ACCESS_KEY", "minioadmin"),
			S3SecretKey:  env("PIXELGATE_S3_SECRET_KEY", "minioadmin"),
			S3Bucket:     env("PIXELGATE_S3_BUCKET", "pixelgate"),
			S3UseSSL:     envBool("PIXELGATE_S3_USE_SSL", false),
		},
		Cache: CacheConfig{
			Backend:       env("PIXELGATE_CACHE_BACKEND", "memory"),
			MaxEntries:    envInt("PIXELGATE_CACHE_MAX_ENTRIES", 1024),
			RedisAddr:     env("PIXELGATE_REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("PIXELGATE_REDIS_PASSWORD", ""),
			RedisDB:       envInt("PIXELGATE_REDIS_DB", 0),
			TTL:           envDuration("PIXELGATE_CACHE_TTL", 24*time.Hour),
		},
		Origin: OriginConfig{
			Enabled:      envBool("PIXELGATE_ORIGIN_ENABLED", true),
			Timeout:      envDuration("PIXELGATE_ORIGIN_TIMEOUT", 20*time.Second),
			MaxBodyBytes: envInt64("PIXELGATE_ORIGIN_MAX_BODY_BYTES", 32<<20),
			Mirror:       envBool("PIXELGATE_ORIGIN_MIRROR", false),
		},
		Queue: QueueConfig{
			RedisAddr:     env("PIXELGATE_QUEUE_REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("PIXELGATE_QUEUE_REDIS_PASSWORD", ""),
			RedisDB:       envInt("PIXELGATE_QUEUE_REDIS_DB", 0),
			Name:          env("PIXELGATE_QUEUE_NAME", "pixelgate"),
		},
		Worker: WorkerConfig{
			Concurrency: envInt("PIXELGATE_WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MetricsAddr: env("PIXELGATE_WORKER_METRICS_ADDR", ":9091"),
		},
		Postgres: PostgresConfig{
			DSN: env("PIXELGATE_POSTGRES_DSN", ""),
		},
		Trace: TraceConfig{
			Exporter:     env("PIXELGATE_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("PIXELGATE_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("PIXELGATE_OTLP_INSECURE", false),
		},
		RateLimit: RateLimitConfig{
			Capacity:      envInt("PIXELGATE_RATE_LIMIT_CAPACITY", 0),
			Window:        envDuration("PIXELGATE_RATE_LIMIT_WINDOW", time.Minute),
			SubjectHeader: env("PIXELGATE_RATE_LIMIT_SUBJECT_HEADER", "X-Forwarded-For"),
		},
		Webhook: WebhookConfig{
			URL:         env("PIXELGATE_WEBHOOK_URL", ""),
			Secret:      env("PIXELGATE_WEBHOOK_SECRET", ""),
			Timeout:     envDuration("PIXELGATE_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts: envInt("PIXELGATE_WEBHOOK_MAX_ATTEMPTS", 3),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envList(key string) []string {
	value := env(key, "")
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
