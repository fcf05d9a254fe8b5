package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// Origin fetches auxiliary images referenced from filters, watermark
// overlays in particular. Implementations resolve the same refs the source
// loader accepts.
type Origin interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Result is one finished transformation. SourceBytes reports the size of
// the input that produced it, for metering.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	SourceBytes int
}

// Engine turns source bytes plus a parsed command into encoded output. It
// owns the codec picked at build time and is safe for concurrent use; each
// request gets its own Raster.
type Engine struct {
	codec  Codec
	limits Limits
	origin Origin
	logger *log.Logger
}

// New builds an Engine on the compiled-in codec. origin may be nil when no
// filter will ever reference a second image.
func New(limits Limits, origin Origin) (*Engine, error) {
	codec, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &Engine{
		codec:  codec,
		limits: limits,
		origin: origin,
		logger: log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmsgprefix),
	}, nil
}

// Backend names the codec serving this engine.
func (e *Engine) Backend() string { return e.codec.Name() }

// Process runs the full pipeline: plan the decode, load and shape the
// raster, apply the filters and export. With meta set the pipeline stops
// after the geometry stages and reports the raster's properties as JSON.
func (e *Engine) Process(ctx context.Context, source []byte, cmd pixelpath.Command) (Result, error) {
	if len(source) == 0 {
		return Result{}, fmt.Errorf("%w: empty source", ErrLoad)
	}
	srcType := e.codec.Sniff(source)
	plan := BuildPlan(srcType, cmd, e.limits)

	r, err := e.load(ctx, source, cmd, plan)
	if err != nil {
		return Result{}, err
	}
	defer r.Close()

	if e.limits.MaxResolution > 0 && r.Width()*r.Height() > e.limits.MaxResolution {
		return Result{}, fmt.Errorf("%w: decoded resolution %dx%d exceeds limit %d",
			ErrLoad, r.Width(), r.Height(), e.limits.MaxResolution)
	}

	if cmd.Meta {
		res, err := metaResult(r, srcType)
		if err != nil {
			return Result{}, err
		}
		res.SourceBytes = len(source)
		return res, nil
	}

	e.applyFilters(ctx, r, cmd)

	data, format, err := e.export(r, srcType, plan)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:        data,
		ContentType: format.ContentType(),
		Width:       r.Width(),
		Height:      r.PageHeight(),
		SourceBytes: len(source),
	}, nil
}

func metaResult(r Raster, srcType pixelpath.ImageType) (Result, error) {
	m := Metadata{
		Format:      string(srcType),
		ContentType: srcType.ContentType(),
		Width:       r.Width(),
		Height:      r.PageHeight(),
		Pages:       r.Pages(),
		HasAlpha:    r.HasAlpha(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExport, err)
	}
	return Result{Data: data, ContentType: "application/json", Width: m.Width, Height: m.Height}, nil
}
