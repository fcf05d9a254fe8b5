// Package engine turns a parsed command and source bytes into encoded
// output bytes. It folds the filter list into an execution plan, picks a
// decode strategy, runs the filter pipeline, and exports under an optional
// byte budget. Pixel work goes through the Codec and Raster interfaces so
// the build can choose between the libvips and the pure-Go backend.
package engine

import (
	"context"
	"errors"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

var (
	// ErrLoad marks source bytes that could not be decoded.
	ErrLoad = errors.New("undecodable source")
	// ErrExport marks an encoder failure for the chosen format.
	ErrExport = errors.New("export failed")
	// ErrUnsupportedFilter marks a filter outside the active backend's
	// reach. The pipeline treats it as a pass-through, not a failure.
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// RuntimeConfig tunes the libvips runtime at Startup. The pure-Go backend
// has no runtime to tune and ignores it.
type RuntimeConfig struct {
	// Concurrency is the libvips worker thread count, 0 for the default.
	Concurrency int
	// MaxCacheFiles, MaxCacheMem and MaxCacheSize bound the libvips
	// operation cache. Zero values fall back to modest defaults.
	MaxCacheFiles int
	MaxCacheMem   int
	MaxCacheSize  int
}

// ResizeMode selects how a decode or resize honors the requested box.
type ResizeMode uint8

const (
	// ResizeFit keeps aspect ratio and stays within the box.
	ResizeFit ResizeMode = iota
	// ResizeForce scales each axis independently to the exact box.
	ResizeForce
	// ResizeCrop fills the exact box and crops overflow per CropInterest.
	ResizeCrop
)

// CropInterest picks which region a ResizeCrop keeps.
type CropInterest uint8

const (
	InterestNone CropInterest = iota
	InterestLow
	InterestCentre
	InterestHigh
	InterestAttention
)

// DecodeOptions bound a decode. Width and Height are always set; Mode and
// Interest say how the backend should reach them.
type DecodeOptions struct {
	Width    int
	Height   int
	Mode     ResizeMode
	Interest CropInterest
	// Upscale allows the decode to enlarge past the source dimensions.
	Upscale bool
	// Page is the 1-based page or frame to load first.
	Page int
	// Dpi renders vector sources at the given density, 0 for the default.
	Dpi int
	// MaxFrames caps animation frames, at least 1.
	MaxFrames int
}

// ExportOptions drive one encode pass.
type ExportOptions struct {
	Format        pixelpath.ImageType
	Quality       int
	StripEXIF     bool
	StripICC      bool
	StripMetadata bool
	// AvifSpeed trades encode time for compression, backend-specific.
	AvifSpeed int
}

// Metadata describes the loaded raster; it is what a meta request returns
// instead of pixels.
type Metadata struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Pages       int    `json:"pages"`
	HasAlpha    bool   `json:"has_alpha"`
}

// Codec turns source bytes into rasters. The build picks the
// implementation; see the runtime files.
type Codec interface {
	Name() string
	// Sniff reports the source format, or "" when unrecognized.
	Sniff(data []byte) pixelpath.ImageType
	Decode(ctx context.Context, data []byte, opts DecodeOptions) (Raster, error)
}

// Raster is one decoded image owned by a single request. Methods mutate
// the receiver and replace its pixels only on success, so a failed
// operation leaves the raster unchanged. Not safe for concurrent use.
type Raster interface {
	Width() int
	Height() int
	// PageHeight is the height of one frame, equal to Height for stills.
	PageHeight() int
	Pages() int
	HasAlpha() bool

	// Trim cuts the uniform border sampled from the given corner.
	// Tolerance is a 0-255 per-channel distance.
	Trim(corner pixelpath.TrimBy, tolerance float64) error
	Crop(left, top, width, height int) error
	// Resize scales to the target box by mode; without upscale the pixels
	// only ever shrink.
	Resize(width, height int, mode ResizeMode, interest CropInterest, upscale bool) error
	// Rotate turns clockwise by the given degrees.
	Rotate(degrees int) error
	Flip(horizontal, vertical bool) error
	// Embed places the raster at left, top on a width x height canvas
	// filled with the color; the none sentinel keeps it transparent and
	// the blur sentinel synthesizes the canvas from a blurred copy.
	Embed(left, top, width, height int, c pixelpath.Color) error
	// Composite draws the overlay at x, y with the given opacity.
	Composite(overlay Raster, x, y int, opacity float64) error

	// Apply runs one pipeline filter. Filters the backend cannot express
	// return ErrUnsupportedFilter.
	Apply(ctx context.Context, f pixelpath.Filter) error

	Export(opts ExportOptions) ([]byte, error)
	Close()
}
