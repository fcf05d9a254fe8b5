package engine

import (
	"strings"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// Limits are the server-level processing bounds, fixed at startup.
type Limits struct {
	// MaxWidth and MaxHeight bound every decode as a safety net.
	MaxWidth  int
	MaxHeight int
	// MaxResolution caps the decoded pixel count, 0 for no cap.
	MaxResolution int
	// MaxFilterOps caps how many filters one request may apply, 0 for no cap.
	MaxFilterOps int
	// MaxAnimationFrames caps frames loaded from animated sources.
	MaxAnimationFrames int
	// DefaultQuality is the export quality when no quality filter is given.
	DefaultQuality int
	// StripMetadataDefault strips metadata on export unless a filter says so.
	StripMetadataDefault bool
	// DisabledFilters lists filter names skipped by plan and pipeline.
	DisabledFilters []string
	// AvifSpeed is passed through to the AVIF encoder.
	AvifSpeed int
}

func (l Limits) filterDisabled(name string) bool {
	for _, d := range l.DisabledFilters {
		if squashName(d) == squashName(name) {
			return true
		}
	}
	return false
}

func squashName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

// Plan is the execution policy folded from a command's filters and the
// server limits. It is pure data owned by one request.
type Plan struct {
	// ThumbnailNotSupported forces a full decode; the cheap decode-time
	// thumbnail path needs the whole filter chain to be geometry-safe.
	ThumbnailNotSupported bool
	Upscale               bool
	Stretch               bool
	StripEXIF             bool
	StripICC              bool
	StripMetadata         bool
	Orient                int
	Format                pixelpath.ImageType
	Quality               int
	MaxFrames             int
	MaxBytes              int
	Page                  int
	Dpi                   int
}

// BuildPlan folds the command's filters into a Plan. The fold only ever
// tightens: a later filter may restrict a field but never relaxes one an
// earlier filter already set.
func BuildPlan(source pixelpath.ImageType, cmd pixelpath.Command, limits Limits) Plan {
	p := Plan{
		ThumbnailNotSupported: cmd.Trim,
		Upscale:               cmd.Fit != pixelpath.FitIn,
		Stretch:               cmd.Fit == pixelpath.FitStretch,
		StripMetadata:         limits.StripMetadataDefault,
		MaxFrames:             max(1, limits.MaxAnimationFrames),
		Page:                  1,
	}
	if !source.Animatable() {
		p.MaxFrames = 1
	}
	for _, f := range cmd.Filters {
		if limits.filterDisabled(f.Name()) {
			continue
		}
		p = foldFilter(p, f)
	}
	return p
}

func foldFilter(p Plan, f pixelpath.Filter) Plan {
	switch f := f.(type) {
	case pixelpath.Format:
		p.Format = f.Type
		if !f.Type.Animatable() {
			p.MaxFrames = 1
		}
	case pixelpath.MaxFrames:
		if f.Limit > 0 && f.Limit < p.MaxFrames {
			p.MaxFrames = f.Limit
		}
	case pixelpath.Upscale:
		p.Upscale = true
	case pixelpath.Fill:
		if f.Color.Kind == pixelpath.ColorAuto {
			p.ThumbnailNotSupported = true
		}
	case pixelpath.BackgroundColor:
		if f.Color.Kind == pixelpath.ColorAuto {
			p.ThumbnailNotSupported = true
		}
	case pixelpath.Page:
		p.Page = max(f.Number, 1)
	case pixelpath.Dpi:
		p.Dpi = max(f.Value, 0)
	case pixelpath.Orient:
		if f.Angle > 0 {
			p.Orient = f.Angle
			p.ThumbnailNotSupported = true
		}
	case pixelpath.MaxBytes:
		p.MaxBytes = f.Limit
		p.ThumbnailNotSupported = true
	case pixelpath.Focal, pixelpath.Rotate:
		p.ThumbnailNotSupported = true
	case pixelpath.StripEXIF:
		p.StripEXIF = true
	case pixelpath.StripICC:
		p.StripICC = true
	case pixelpath.StripMetadata:
		p.StripMetadata = true
	case pixelpath.Quality:
		p.Quality = f.Percent
	}
	return p
}

// planConsumed reports filters whose whole effect lives in the Plan or the
// loader; the pipeline passes them through without touching pixels.
func planConsumed(f pixelpath.Filter) bool {
	switch f.(type) {
	case pixelpath.Format, pixelpath.Quality, pixelpath.MaxBytes,
		pixelpath.MaxFrames, pixelpath.Page, pixelpath.Dpi,
		pixelpath.Orient, pixelpath.Upscale, pixelpath.Fill,
		pixelpath.Focal, pixelpath.StripEXIF, pixelpath.StripICC,
		pixelpath.StripMetadata:
		return true
	}
	return false
}
