// Package pipeline runs one transformation end to end: authorize the
// command, acquire the source, transform it, persist the result and record
// a usage row. The HTTP server and the warm worker both drive it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonaylor89/pixelgate/internal/cache"
	"github.com/jonaylor89/pixelgate/internal/domain"
	"github.com/jonaylor89/pixelgate/internal/engine"
	"github.com/jonaylor89/pixelgate/internal/origin"
	"github.com/jonaylor89/pixelgate/internal/pixelpath"
	"github.com/jonaylor89/pixelgate/internal/storage"
	"github.com/jonaylor89/pixelgate/internal/store"
)

// ErrSignature rejects commands that are neither validly signed nor
// allowed to run unsafe.
var ErrSignature = errors.New("signature mismatch")

type Config struct {
	Logger  *log.Logger
	Engine  *engine.Engine
	Fetcher *SourceFetcher
	// Secret keys signature verification; empty rejects all signed paths.
	Secret            string
	SignatureTruncate int
	AllowUnsafe       bool
	KeyStyle          pixelpath.KeyStyle
	SafeChars         string
	Cache             cache.Cache
	CacheTTL          time.Duration
	ResultStore       storage.Store
	Usage             store.UsageStore
	// MaxActive bounds concurrent transforms across all callers.
	MaxActive int
}

type Pipeline struct {
	logger      *log.Logger
	engine      *engine.Engine
	fetcher     *SourceFetcher
	verifier    *pixelpath.HMACSigner
	allowUnsafe bool
	keyStyle    pixelpath.KeyStyle
	safeChars   pixelpath.SafeChars
	cache       cache.Cache
	cacheTTL    time.Duration
	results     storage.Store
	usage       store.UsageStore
	sem         chan struct{}
	tracer      trace.Tracer
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lmsgprefix)
	}

	var verifier *pixelpath.HMACSigner
	if cfg.Secret != "" {
		verifier = pixelpath.NewHMACSigner(cfg.Secret, cfg.SignatureTruncate)
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewSourceFetcher(nil, nil, cfg.SafeChars, false, logger)
	}

	return &Pipeline{
		logger:      logger,
		engine:      cfg.Engine,
		fetcher:     fetcher,
		verifier:    verifier,
		allowUnsafe: cfg.AllowUnsafe,
		keyStyle:    cfg.KeyStyle,
		safeChars:   pixelpath.NewSafeChars(cfg.SafeChars),
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		results:     cfg.ResultStore,
		usage:       cfg.Usage,
		sem:         make(chan struct{}, max(1, cfg.MaxActive)),
		tracer:      otel.Tracer("pixelgate/pipeline"),
	}
}

// Authorize checks that the command may run: unsafe commands need the
// server to allow them, everything else needs a valid signature over the
// command path.
func (p *Pipeline) Authorize(cmd pixelpath.Command) error {
	if cmd.Unsafe {
		if !p.allowUnsafe {
			return fmt.Errorf("%w: unsafe requests are disabled", ErrSignature)
		}
		return nil
	}
	if p.verifier == nil || cmd.Signature == "" || !p.verifier.Verify(cmd.Path, cmd.Signature) {
		return ErrSignature
	}
	return nil
}

// ResultKey derives the normalized storage key for a command's output.
func (p *Pipeline) ResultKey(cmd pixelpath.Command) string {
	return pixelpath.Normalize(pixelpath.ResultKey(cmd, p.keyStyle), p.safeChars)
}

// Lookup serves a previously generated result from the cache or result
// storage, backfilling the cache on a storage hit.
func (p *Pipeline) Lookup(ctx context.Context, key string) (storage.Blob, bool) {
	if p.cache != nil {
		data, err := p.cache.Get(ctx, key)
		if err == nil {
			return storage.Blob{Data: data}, true
		}
		if !errors.Is(err, cache.ErrMiss) {
			p.logger.Printf("cache get failed key=%s err=%v", key, err)
		}
	}

	if p.results != nil {
		blob, err := p.results.Get(ctx, key)
		if err == nil {
			p.backfillCache(ctx, key, blob.Data)
			return blob, true
		}
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Printf("result store get failed key=%s err=%v", key, err)
		}
	}

	return storage.Blob{}, false
}

// Process acquires the source for an authorized command, transforms it
// under the concurrency cap, persists the output and records usage.
func (p *Pipeline) Process(ctx context.Context, cmd pixelpath.Command) (engine.Result, error) {
	key := p.ResultKey(cmd)
	startedAt := time.Now()

	source, err := p.fetchStage(ctx, cmd.Image)
	if err != nil {
		p.recordUsage(ctx, key, 0, engine.Result{}, startedAt, Outcome(err))
		return engine.Result{}, err
	}

	res, err := p.transformStage(ctx, cmd, source)
	if err != nil {
		p.recordUsage(ctx, key, len(source), engine.Result{}, startedAt, Outcome(err))
		return engine.Result{}, err
	}

	p.persistStage(ctx, key, res)
	p.recordUsage(ctx, key, len(source), res, startedAt, domain.OutcomeOK)
	return res, nil
}

// Warm generates the result for a raw command path unless one is already
// stored. It reports whether a transformation actually ran.
func (p *Pipeline) Warm(ctx context.Context, path string) (bool, error) {
	cmd, err := pixelpath.Parse(path)
	if err != nil {
		return false, fmt.Errorf("parse command path: %w", err)
	}
	if err := p.Authorize(cmd); err != nil {
		return false, err
	}
	if _, ok := p.Lookup(ctx, p.ResultKey(cmd)); ok {
		return false, nil
	}
	if _, err := p.Process(ctx, cmd); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pipeline) fetchStage(ctx context.Context, ref string) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetch_source")
	defer span.End()

	source, err := p.fetcher.Fetch(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "source fetch failed")
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	span.SetAttributes(attribute.Int("source.bytes", len(source)))
	return source, nil
}

func (p *Pipeline) transformStage(ctx context.Context, cmd pixelpath.Command, source []byte) (engine.Result, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return engine.Result{}, fmt.Errorf("wait for transform slot: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	ctx, span := p.tracer.Start(ctx, "pipeline.transform")
	defer span.End()

	res, err := p.engine.Process(ctx, source, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		return engine.Result{}, fmt.Errorf("transform stage: %w", err)
	}
	span.SetAttributes(
		attribute.Int("result.bytes", len(res.Data)),
		attribute.Int("result.width", res.Width),
		attribute.Int("result.height", res.Height),
	)
	return res, nil
}

// persistStage writes the output to result storage and the cache. Both
// writes are best-effort; a failed write only costs a regeneration later.
func (p *Pipeline) persistStage(ctx context.Context, key string, res engine.Result) {
	if p.results == nil && p.cache == nil {
		return
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.persist")
	defer span.End()

	if p.results != nil {
		blob := storage.Blob{Data: res.Data, ContentType: res.ContentType}
		if err := p.results.Put(ctx, key, blob); err != nil {
			p.logger.Printf("result store put failed key=%s err=%v", key, err)
			span.RecordError(err)
		}
	}
	p.backfillCache(ctx, key, res.Data)
}

func (p *Pipeline) backfillCache(ctx context.Context, key string, data []byte) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, key, data, p.cacheTTL); err != nil {
		p.logger.Printf("cache put failed key=%s err=%v", key, err)
	}
}

func (p *Pipeline) recordUsage(ctx context.Context, key string, sourceBytes int, res engine.Result, startedAt time.Time, outcome string) {
	if p.usage == nil {
		return
	}

	rec := domain.UsageRecord{
		ResultKey:   key,
		SourceBytes: int64(sourceBytes),
		ResultBytes: int64(len(res.Data)),
		Width:       res.Width,
		Height:      res.Height,
		DurationMS:  max(1, time.Since(startedAt).Milliseconds()),
		Outcome:     outcome,
		CreatedAt:   time.Now().UTC(),
	}
	// The row should land even when the request context already expired.
	if err := p.usage.CreateUsageRecord(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Printf("usage record write failed key=%s err=%v", key, err)
	}
}

// Outcome classifies an error from Warm or Process into the shared outcome
// labels used on usage rows and metrics.
func Outcome(err error) string {
	var parseErr *pixelpath.ParseError
	switch {
	case err == nil:
		return domain.OutcomeOK
	case errors.As(err, &parseErr):
		return domain.OutcomeParse
	case errors.Is(err, ErrSignature):
		return domain.OutcomeSignature
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, origin.ErrNotFound):
		return domain.OutcomeNotFound
	case errors.Is(err, ErrUpstream):
		return domain.OutcomeOrigin
	case errors.Is(err, engine.ErrLoad):
		return domain.OutcomeLoad
	case errors.Is(err, engine.ErrExport):
		return domain.OutcomeExport
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.OutcomeTimeout
	default:
		return domain.OutcomeInternal
	}
}
