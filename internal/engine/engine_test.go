package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"reflect"
	"testing"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

type fakeCodec struct {
	sniffed pixelpath.ImageType
	rasters []*fakeRaster
	opts    []DecodeOptions
	err     error
}

func (c *fakeCodec) Name() string { return "fake" }

func (c *fakeCodec) Sniff(data []byte) pixelpath.ImageType { return c.sniffed }

func (c *fakeCodec) Decode(ctx context.Context, data []byte, opts DecodeOptions) (Raster, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.opts = append(c.opts, opts)
	if len(c.rasters) == 0 {
		return nil, errors.New("no raster scripted for decode")
	}
	r := c.rasters[0]
	c.rasters = c.rasters[1:]
	return r, nil
}

type compositeCall struct {
	x, y    int
	opacity float64
}

type fakeRaster struct {
	width, height int
	pages         int
	alpha         bool

	ops        []string
	composites []compositeCall
	exports    []ExportOptions
	exportSize func(ExportOptions) int
	applyErr   map[string]error
	closed     bool
}

func (r *fakeRaster) Width() int      { return r.width }
func (r *fakeRaster) Height() int     { return r.height }
func (r *fakeRaster) PageHeight() int { return r.height }
func (r *fakeRaster) Pages() int      { return max(r.pages, 1) }
func (r *fakeRaster) HasAlpha() bool  { return r.alpha }
func (r *fakeRaster) Close()          { r.closed = true }

func (r *fakeRaster) Trim(corner pixelpath.TrimBy, tolerance float64) error {
	r.ops = append(r.ops, "trim")
	return nil
}

func (r *fakeRaster) Crop(left, top, width, height int) error {
	r.ops = append(r.ops, fmt.Sprintf("crop(%d,%d,%dx%d)", left, top, width, height))
	r.width, r.height = width, height
	return nil
}

func (r *fakeRaster) Resize(width, height int, mode ResizeMode, interest CropInterest, upscale bool) error {
	r.ops = append(r.ops, fmt.Sprintf("resize(%dx%d)", width, height))
	r.width, r.height = width, height
	return nil
}

func (r *fakeRaster) Rotate(degrees int) error {
	r.ops = append(r.ops, fmt.Sprintf("rotate(%d)", degrees))
	if degrees%180 == 90 {
		r.width, r.height = r.height, r.width
	}
	return nil
}

func (r *fakeRaster) Flip(horizontal, vertical bool) error {
	r.ops = append(r.ops, fmt.Sprintf("flip(%t,%t)", horizontal, vertical))
	return nil
}

func (r *fakeRaster) Embed(left, top, width, height int, c pixelpath.Color) error {
	r.ops = append(r.ops, fmt.Sprintf("embed(%d,%d,%dx%d)", left, top, width, height))
	r.width, r.height = width, height
	return nil
}

func (r *fakeRaster) Composite(overlay Raster, x, y int, opacity float64) error {
	r.composites = append(r.composites, compositeCall{x: x, y: y, opacity: opacity})
	return nil
}

func (r *fakeRaster) Apply(ctx context.Context, f pixelpath.Filter) error {
	if err := r.applyErr[f.Name()]; err != nil {
		return err
	}
	r.ops = append(r.ops, f.Name())
	return nil
}

func (r *fakeRaster) Export(opts ExportOptions) ([]byte, error) {
	r.exports = append(r.exports, opts)
	size := 100
	if r.exportSize != nil {
		size = r.exportSize(opts)
	}
	return make([]byte, size), nil
}

type fakeOrigin struct {
	refs []string
	data []byte
	err  error
}

func (o *fakeOrigin) Fetch(ctx context.Context, ref string) ([]byte, error) {
	o.refs = append(o.refs, ref)
	if o.err != nil {
		return nil, o.err
	}
	return o.data, nil
}

func newTestEngine(limits Limits, codec Codec, origin Origin) *Engine {
	return &Engine{
		codec:  codec,
		limits: limits,
		origin: origin,
		logger: log.New(io.Discard, "", 0),
	}
}

func TestProcessDecodeStrategy(t *testing.T) {
	limits := testLimits()
	cases := []struct {
		name   string
		source pixelpath.ImageType
		cmd    pixelpath.Command
		want   DecodeOptions
	}{
		{
			name: "bare command bounds by server maxima",
			cmd:  pixelpath.Command{},
			want: DecodeOptions{Width: 1600, Height: 1200, Mode: ResizeFit, Page: 1, MaxFrames: 1},
		},
		{
			name: "fit-in single axis keeps the other bounded",
			cmd:  pixelpath.Command{Fit: pixelpath.FitIn, Width: 200},
			want: DecodeOptions{Width: 200, Height: 1200, Mode: ResizeFit, Page: 1, MaxFrames: 1},
		},
		{
			name: "fit-in with upscale filter",
			cmd: pixelpath.Command{Fit: pixelpath.FitIn, Width: 200, Height: 100,
				Filters: pixelpath.Filters{pixelpath.Upscale{}}},
			want: DecodeOptions{Width: 200, Height: 100, Mode: ResizeFit, Upscale: true, Page: 1, MaxFrames: 1},
		},
		{
			name: "stretch forces the exact box",
			cmd:  pixelpath.Command{Fit: pixelpath.FitStretch, Width: 200, Height: 100},
			want: DecodeOptions{Width: 200, Height: 100, Mode: ResizeForce, Page: 1, MaxFrames: 1},
		},
		{
			name: "plain resize center crops and upscales",
			cmd:  pixelpath.Command{Width: 200, Height: 100},
			want: DecodeOptions{Width: 200, Height: 100, Mode: ResizeCrop, Interest: InterestCentre,
				Upscale: true, Page: 1, MaxFrames: 1},
		},
		{
			name: "smart crop asks for attention",
			cmd:  pixelpath.Command{Width: 200, Height: 100, Smart: true},
			want: DecodeOptions{Width: 200, Height: 100, Mode: ResizeCrop, Interest: InterestAttention,
				Upscale: true, Page: 1, MaxFrames: 1},
		},
		{
			name: "left alignment crops low",
			cmd:  pixelpath.Command{Width: 200, Height: 100, HAlign: pixelpath.HAlignLeft},
			want: DecodeOptions{Width: 200, Height: 100, Mode: ResizeCrop, Interest: InterestLow,
				Upscale: true, Page: 1, MaxFrames: 1},
		},
		{
			name: "trim forces a full decode",
			cmd:  pixelpath.Command{Trim: true, Width: 200, Height: 100},
			want: DecodeOptions{Width: 1600, Height: 1200, Mode: ResizeFit, Page: 1, MaxFrames: 1},
		},
		{
			name: "manual crop forces a full decode",
			cmd:  pixelpath.Command{CropLeft: 10, CropTop: 10, CropRight: 210, CropBottom: 110, Width: 50},
			want: DecodeOptions{Width: 1600, Height: 1200, Mode: ResizeFit, Page: 1, MaxFrames: 1},
		},
		{
			name: "max_bytes forces a full decode",
			cmd: pixelpath.Command{Width: 200, Height: 100,
				Filters: pixelpath.Filters{pixelpath.MaxBytes{Limit: 5000}}},
			want: DecodeOptions{Width: 1600, Height: 1200, Mode: ResizeFit, Page: 1, MaxFrames: 1},
		},
		{
			name:   "page and dpi pass through",
			source: pixelpath.ImageTypePDF,
			cmd: pixelpath.Command{Fit: pixelpath.FitIn, Width: 400,
				Filters: pixelpath.Filters{pixelpath.Page{Number: 3}, pixelpath.Dpi{Value: 150}}},
			want: DecodeOptions{Width: 400, Height: 1200, Mode: ResizeFit, Page: 3, Dpi: 150, MaxFrames: 1},
		},
		{
			name:   "animated source keeps the frame cap",
			source: pixelpath.ImageTypeGIF,
			cmd:    pixelpath.Command{},
			want:   DecodeOptions{Width: 1600, Height: 1200, Mode: ResizeFit, Page: 1, MaxFrames: 30},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := tc.source
			if source == "" {
				source = pixelpath.ImageTypeJPEG
			}
			codec := &fakeCodec{
				sniffed: source,
				rasters: []*fakeRaster{{width: 800, height: 600}},
			}
			e := newTestEngine(limits, codec, nil)

			if _, err := e.Process(context.Background(), []byte("src"), tc.cmd); err != nil {
				t.Fatalf("process: %v", err)
			}
			if len(codec.opts) == 0 {
				t.Fatal("decode was never called")
			}
			if got := codec.opts[0]; got != tc.want {
				t.Fatalf("decode options\n got %+v\nwant %+v", got, tc.want)
			}
		})
	}
}

func TestProcessResult(t *testing.T) {
	r := &fakeRaster{width: 800, height: 600}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	res, err := e.Process(context.Background(), []byte("src"), pixelpath.Command{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ContentType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", res.ContentType)
	}
	if res.Width != 800 || res.Height != 600 {
		t.Fatalf("expected 800x600, got %dx%d", res.Width, res.Height)
	}
	if len(res.Data) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(res.Data))
	}
	if res.SourceBytes != 3 {
		t.Fatalf("expected 3 source bytes, got %d", res.SourceBytes)
	}
	if len(r.exports) != 1 || r.exports[0].Quality != 80 {
		t.Fatalf("expected one export at default quality 80, got %+v", r.exports)
	}
	if !r.closed {
		t.Fatal("raster was not closed")
	}
}

func TestProcessMeta(t *testing.T) {
	r := &fakeRaster{width: 240, height: 120, pages: 3, alpha: true}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypePNG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	res, err := e.Process(context.Background(), []byte("src"), pixelpath.Command{Meta: true})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ContentType != "application/json" {
		t.Fatalf("expected application/json, got %s", res.ContentType)
	}

	var m Metadata
	if err := json.Unmarshal(res.Data, &m); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	want := Metadata{Format: "png", ContentType: "image/png", Width: 240, Height: 120, Pages: 3, HasAlpha: true}
	if m != want {
		t.Fatalf("metadata\n got %+v\nwant %+v", m, want)
	}
	if len(r.exports) != 0 {
		t.Fatal("meta request must not export pixels")
	}
	if !r.closed {
		t.Fatal("raster was not closed")
	}
}

func TestProcessEmptySource(t *testing.T) {
	e := newTestEngine(testLimits(), &fakeCodec{}, nil)
	if _, err := e.Process(context.Background(), nil, pixelpath.Command{}); !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestProcessDecodeError(t *testing.T) {
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, err: errors.New("bad bytes")}
	e := newTestEngine(testLimits(), codec, nil)
	if _, err := e.Process(context.Background(), []byte("src"), pixelpath.Command{}); !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestProcessResolutionLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxResolution = 240*120 - 1
	r := &fakeRaster{width: 240, height: 120, pages: 1}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypePNG, rasters: []*fakeRaster{r}}
	e := newTestEngine(limits, codec, nil)

	_, err := e.Process(context.Background(), []byte("src"), pixelpath.Command{Image: "a.png"})
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if !r.closed {
		t.Fatal("expected raster to be closed")
	}
}

func TestExportByteBudget(t *testing.T) {
	newEngine := func() (*Engine, *fakeRaster) {
		r := &fakeRaster{
			width: 800, height: 600,
			exportSize: func(opts ExportOptions) int { return opts.Quality * 100 },
		}
		codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
		return newTestEngine(testLimits(), codec, nil), r
	}

	t.Run("steps quality down until the budget fits", func(t *testing.T) {
		e, r := newEngine()
		cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.MaxBytes{Limit: 1000}}}
		res, err := e.Process(context.Background(), []byte("src"), cmd)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		var qualities []int
		for _, ex := range r.exports {
			qualities = append(qualities, ex.Quality)
		}
		if want := []int{80, 20, 10}; !reflect.DeepEqual(qualities, want) {
			t.Fatalf("expected quality schedule %v, got %v", want, qualities)
		}
		if len(res.Data) != 1000 {
			t.Fatalf("expected 1000 bytes, got %d", len(res.Data))
		}
	})

	t.Run("quality never drops below the floor", func(t *testing.T) {
		e, r := newEngine()
		cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.MaxBytes{Limit: 10}}}
		res, err := e.Process(context.Background(), []byte("src"), cmd)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		last := r.exports[len(r.exports)-1]
		if last.Quality != 10 {
			t.Fatalf("expected final quality 10, got %d", last.Quality)
		}
		if len(res.Data) != 1000 {
			t.Fatalf("expected the floor-quality bytes back, got %d", len(res.Data))
		}
	})

	t.Run("formats without quality export once", func(t *testing.T) {
		r := &fakeRaster{width: 800, height: 600, exportSize: func(ExportOptions) int { return 5000 }}
		codec := &fakeCodec{sniffed: pixelpath.ImageTypePNG, rasters: []*fakeRaster{r}}
		e := newTestEngine(testLimits(), codec, nil)
		cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.MaxBytes{Limit: 1000}}}
		if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
			t.Fatalf("process: %v", err)
		}
		if len(r.exports) != 1 {
			t.Fatalf("png has no quality ladder, expected one export, got %d", len(r.exports))
		}
	})
}

func TestProcessFilterFailureTolerated(t *testing.T) {
	r := &fakeRaster{
		width: 800, height: 600,
		applyErr: map[string]error{"blur": errors.New("boom")},
	}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{
		pixelpath.Blur{Sigma: 2},
		pixelpath.Grayscale{},
	}}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("a failing filter must not fail the request: %v", err)
	}
	if !reflect.DeepEqual(r.ops, []string{"grayscale"}) {
		t.Fatalf("expected only grayscale to land, got %v", r.ops)
	}
}

func TestProcessFilterTruncation(t *testing.T) {
	limits := testLimits()
	limits.MaxFilterOps = 2
	r := &fakeRaster{width: 800, height: 600}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(limits, codec, nil)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{
		pixelpath.Brightness{Amount: 10},
		pixelpath.Contrast{Amount: 5},
		pixelpath.Grayscale{},
	}}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !reflect.DeepEqual(r.ops, []string{"brightness", "contrast"}) {
		t.Fatalf("expected the chain cut after 2 ops, got %v", r.ops)
	}
}

func TestProcessPlanConsumedSkipsPipeline(t *testing.T) {
	r := &fakeRaster{width: 800, height: 600}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{
		pixelpath.Quality{Percent: 50},
		pixelpath.Format{Type: pixelpath.ImageTypeWEBP},
		pixelpath.Brightness{Amount: 10},
	}}
	res, err := e.Process(context.Background(), []byte("src"), cmd)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !reflect.DeepEqual(r.ops, []string{"brightness"}) {
		t.Fatalf("plan filters must not hit the pipeline, got %v", r.ops)
	}
	if res.ContentType != "image/webp" {
		t.Fatalf("expected webp output, got %s", res.ContentType)
	}
	if r.exports[0].Quality != 50 {
		t.Fatalf("expected quality 50, got %d", r.exports[0].Quality)
	}
}

func TestWatermarkComposite(t *testing.T) {
	base := &fakeRaster{width: 200, height: 100}
	overlay := &fakeRaster{width: 50, height: 25}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{base, overlay}}
	origin := &fakeOrigin{data: []byte("overlay")}
	e := newTestEngine(testLimits(), codec, origin)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.Watermark{
		Image: "logos/acme.png",
		X:     pixelpath.Position{Kind: pixelpath.PositionRight},
		Y:     pixelpath.Position{Kind: pixelpath.PositionBottom},
		Alpha: 30,
	}}}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("process: %v", err)
	}

	if !reflect.DeepEqual(origin.refs, []string{"logos/acme.png"}) {
		t.Fatalf("expected one origin fetch, got %v", origin.refs)
	}
	wantOverlayOpts := DecodeOptions{Width: 200, Height: 100, Mode: ResizeFit, MaxFrames: 1}
	if got := codec.opts[1]; got != wantOverlayOpts {
		t.Fatalf("overlay decode options\n got %+v\nwant %+v", got, wantOverlayOpts)
	}
	if len(base.composites) != 1 {
		t.Fatalf("expected one composite, got %d", len(base.composites))
	}
	c := base.composites[0]
	if c.x != 150 || c.y != 75 {
		t.Fatalf("expected overlay at (150,75), got (%d,%d)", c.x, c.y)
	}
	if math.Abs(c.opacity-0.7) > 1e-9 {
		t.Fatalf("expected opacity 0.7, got %v", c.opacity)
	}
	if !overlay.closed {
		t.Fatal("overlay raster was not closed")
	}
}

func TestWatermarkRatioScaling(t *testing.T) {
	base := &fakeRaster{width: 200, height: 100}
	overlay := &fakeRaster{width: 100, height: 40}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{base, overlay}}
	origin := &fakeOrigin{data: []byte("overlay")}
	e := newTestEngine(testLimits(), codec, origin)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.Watermark{
		Image:  "logo.png",
		X:      pixelpath.Position{Kind: pixelpath.PositionLeft},
		Y:      pixelpath.Position{Kind: pixelpath.PositionTop},
		WRatio: 0.5,
	}}}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := DecodeOptions{Width: 100, Height: 1200, Mode: ResizeFit, Upscale: true, MaxFrames: 1}
	if got := codec.opts[1]; got != want {
		t.Fatalf("ratio overlay decode options\n got %+v\nwant %+v", got, want)
	}
}

func TestWatermarkRepeatTiles(t *testing.T) {
	base := &fakeRaster{width: 100, height: 60}
	overlay := &fakeRaster{width: 40, height: 30}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{base, overlay}}
	origin := &fakeOrigin{data: []byte("overlay")}
	e := newTestEngine(testLimits(), codec, origin)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.Watermark{
		Image: "tile.png",
		X:     pixelpath.Position{Kind: pixelpath.PositionRepeat},
		Y:     pixelpath.Position{Kind: pixelpath.PositionRepeat},
	}}}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("process: %v", err)
	}

	// x offsets 0,40,80 by y offsets 0,30.
	if len(base.composites) != 6 {
		t.Fatalf("expected 6 tiles, got %d", len(base.composites))
	}
}

func TestWatermarkNeedsOrigin(t *testing.T) {
	base := &fakeRaster{width: 100, height: 60}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{base}}
	e := newTestEngine(testLimits(), codec, nil)

	cmd := pixelpath.Command{Filters: pixelpath.Filters{pixelpath.Watermark{Image: "logo.png"}}}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("watermark failure must not fail the request: %v", err)
	}
	if len(base.composites) != 0 {
		t.Fatal("no composite expected without an origin")
	}
}

func TestOverlayOffsets(t *testing.T) {
	cases := []struct {
		name    string
		pos     pixelpath.Position
		base    int
		overlay int
		want    []int
	}{
		{"left", pixelpath.Position{Kind: pixelpath.PositionLeft}, 100, 30, []int{0}},
		{"top", pixelpath.Position{Kind: pixelpath.PositionTop}, 100, 30, []int{0}},
		{"right", pixelpath.Position{Kind: pixelpath.PositionRight}, 100, 30, []int{70}},
		{"bottom", pixelpath.Position{Kind: pixelpath.PositionBottom}, 100, 30, []int{70}},
		{"center", pixelpath.Position{Kind: pixelpath.PositionCenter}, 100, 30, []int{35}},
		{"percent", pixelpath.Position{Kind: pixelpath.PositionPercent, Value: 25}, 100, 30, []int{25}},
		{"pixels", pixelpath.PixelPosition(15), 100, 30, []int{15}},
		{"negative pixels from far edge", pixelpath.PixelPosition(-10), 100, 30, []int{60}},
		{"repeat", pixelpath.Position{Kind: pixelpath.PositionRepeat}, 100, 30, []int{0, 30, 60, 90}},
		{"repeat oversized overlay", pixelpath.Position{Kind: pixelpath.PositionRepeat}, 100, 120, []int{0}},
		{"repeat zero overlay", pixelpath.Position{Kind: pixelpath.PositionRepeat}, 100, 0, []int{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := overlayOffsets(tc.pos, tc.base, tc.overlay)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFallbackFormat(t *testing.T) {
	opaque := &fakeRaster{}
	transparent := &fakeRaster{alpha: true}
	cases := []struct {
		name   string
		source pixelpath.ImageType
		raster Raster
		want   pixelpath.ImageType
	}{
		{"unknown opaque", "", opaque, pixelpath.ImageTypeJPEG},
		{"unknown with alpha", "", transparent, pixelpath.ImageTypePNG},
		{"svg", pixelpath.ImageTypeSVG, opaque, pixelpath.ImageTypeJPEG},
		{"pdf with alpha", pixelpath.ImageTypePDF, transparent, pixelpath.ImageTypePNG},
		{"png stays png", pixelpath.ImageTypePNG, opaque, pixelpath.ImageTypePNG},
		{"gif stays gif", pixelpath.ImageTypeGIF, opaque, pixelpath.ImageTypeGIF},
		{"webp stays webp", pixelpath.ImageTypeWEBP, transparent, pixelpath.ImageTypeWEBP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fallbackFormat(tc.source, tc.raster); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTargetDims(t *testing.T) {
	r := &fakeRaster{width: 800, height: 600}
	cases := []struct {
		name    string
		w, h    int
		upscale bool
		wantW   int
		wantH   int
	}{
		{"both zero keeps source", 0, 0, false, 800, 600},
		{"width from height", 0, 300, false, 400, 300},
		{"height from width", 400, 0, false, 400, 300},
		{"missing axis clamps without upscale", 0, 1200, false, 800, 1200},
		{"missing axis grows with upscale", 0, 1200, true, 1600, 1200},
		{"both given pass through", 50, 70, false, 50, 70},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := pixelpath.Command{Width: tc.w, Height: tc.h}
			gotW, gotH := targetDims(r, cmd, tc.upscale)
			if gotW != tc.wantW || gotH != tc.wantH {
				t.Fatalf("expected %dx%d, got %dx%d", tc.wantW, tc.wantH, gotW, gotH)
			}
		})
	}
}

func TestCropRect(t *testing.T) {
	r := &fakeRaster{width: 800, height: 600}

	cmd := pixelpath.Command{CropLeft: 0.25, CropTop: 0.25, CropRight: 0.75, CropBottom: 0.75}
	left, top, w, h, ok := cropRect(r, cmd)
	if !ok || left != 200 || top != 150 || w != 400 || h != 300 {
		t.Fatalf("fractional crop: got (%d,%d,%dx%d,%t)", left, top, w, h, ok)
	}

	cmd = pixelpath.Command{CropLeft: 10, CropTop: 20, CropRight: 210, CropBottom: 120}
	left, top, w, h, ok = cropRect(r, cmd)
	if !ok || left != 10 || top != 20 || w != 200 || h != 100 {
		t.Fatalf("absolute crop: got (%d,%d,%dx%d,%t)", left, top, w, h, ok)
	}

	cmd = pixelpath.Command{CropLeft: 0, CropTop: 0, CropRight: 5000, CropBottom: 5000}
	left, top, w, h, ok = cropRect(r, cmd)
	if !ok || left != 0 || top != 0 || w != 800 || h != 600 {
		t.Fatalf("overflowing crop should clamp: got (%d,%d,%dx%d,%t)", left, top, w, h, ok)
	}

	cmd = pixelpath.Command{CropLeft: 300, CropTop: 20, CropRight: 210, CropBottom: 120}
	if _, _, _, _, ok = cropRect(r, cmd); ok {
		t.Fatal("inverted window must not crop")
	}
}

func TestProcessGeometryOrder(t *testing.T) {
	r := &fakeRaster{width: 800, height: 600}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	cmd := pixelpath.Command{
		Trim:       true,
		CropLeft:   10,
		CropTop:    10,
		CropRight:  410,
		CropBottom: 310,
		Width:      200,
		Height:     150,
		HFlip:      true,
		Filters:    pixelpath.Filters{pixelpath.Orient{Angle: 180}},
	}
	if _, err := e.Process(context.Background(), []byte("src"), cmd); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []string{"trim", "crop(10,10,400x300)", "rotate(180)", "resize(200x150)", "flip(true,false)"}
	if !reflect.DeepEqual(r.ops, want) {
		t.Fatalf("geometry order\n got %v\nwant %v", r.ops, want)
	}
}

func TestProcessPadding(t *testing.T) {
	r := &fakeRaster{width: 400, height: 300}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	cmd := pixelpath.Command{
		PaddingLeft: 10, PaddingTop: 20, PaddingRight: 10, PaddingBottom: 20,
	}
	res, err := e.Process(context.Background(), []byte("src"), cmd)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !reflect.DeepEqual(r.ops, []string{"embed(10,20,420x340)"}) {
		t.Fatalf("expected a padding embed, got %v", r.ops)
	}
	if res.Width != 420 || res.Height != 340 {
		t.Fatalf("expected padded 420x340, got %dx%d", res.Width, res.Height)
	}
}

func TestProcessFillLetterbox(t *testing.T) {
	// Decoded 400x300 inside a requested fit-in 500x500 canvas.
	r := &fakeRaster{width: 400, height: 300}
	codec := &fakeCodec{sniffed: pixelpath.ImageTypeJPEG, rasters: []*fakeRaster{r}}
	e := newTestEngine(testLimits(), codec, nil)

	cmd := pixelpath.Command{
		Fit: pixelpath.FitIn, Width: 500, Height: 500,
		Filters: pixelpath.Filters{pixelpath.Fill{Color: pixelpath.NamedColorOf("white")}},
	}
	res, err := e.Process(context.Background(), []byte("src"), cmd)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !reflect.DeepEqual(r.ops, []string{"embed(50,100,500x500)"}) {
		t.Fatalf("expected a centering embed, got %v", r.ops)
	}
	if res.Width != 500 || res.Height != 500 {
		t.Fatalf("expected 500x500 canvas, got %dx%d", res.Width, res.Height)
	}
}
