package engine

import (
	"fmt"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// export encodes the raster, re-encoding at stepped-down quality until the
// result fits inside the max_bytes budget or quality bottoms out at 10.
func (e *Engine) export(r Raster, source pixelpath.ImageType, plan Plan) ([]byte, pixelpath.ImageType, error) {
	format := plan.Format
	if format == "" {
		format = fallbackFormat(source, r)
	}
	opts := ExportOptions{
		Format:        format,
		Quality:       plan.Quality,
		StripEXIF:     plan.StripEXIF,
		StripICC:      plan.StripICC,
		StripMetadata: plan.StripMetadata,
		AvifSpeed:     e.limits.AvifSpeed,
	}
	if opts.Quality <= 0 {
		opts.Quality = e.limits.DefaultQuality
	}

	data, err := r.Export(opts)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrExport, err)
	}
	if plan.MaxBytes <= 0 || !format.SupportsQuality() {
		return data, format, nil
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}

	for len(data) > plan.MaxBytes && opts.Quality > 10 {
		delta := float64(len(data)) / float64(plan.MaxBytes)
		switch {
		case delta > 3:
			opts.Quality /= 4
		case delta > 1.5:
			opts.Quality /= 2
		default:
			opts.Quality = opts.Quality * 3 / 4
		}
		opts.Quality = max(opts.Quality, 10)
		if data, err = r.Export(opts); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrExport, err)
		}
	}
	return data, format, nil
}

// fallbackFormat keeps the source format when it is exportable; vector and
// multi-tool sources become JPEG, or PNG when transparency must survive.
func fallbackFormat(source pixelpath.ImageType, r Raster) pixelpath.ImageType {
	switch source {
	case "", pixelpath.ImageTypeSVG, pixelpath.ImageTypePDF, pixelpath.ImageTypeMagick:
		if r.HasAlpha() {
			return pixelpath.ImageTypePNG
		}
		return pixelpath.ImageTypeJPEG
	}
	return source
}
