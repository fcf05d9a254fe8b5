package engine

import (
	"context"
	"errors"
	"time"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// applyFilters runs the pipeline filters in path order. A failing filter is
// logged and skipped so the request still produces an image; filters a
// backend cannot do pass through silently.
func (e *Engine) applyFilters(ctx context.Context, r Raster, cmd pixelpath.Command) {
	filters := cmd.Filters
	if n := e.limits.MaxFilterOps; n > 0 && len(filters) > n {
		e.logger.Printf("truncating filter chain from %d to %d ops", len(filters), n)
		filters = filters[:n]
	}

	for _, f := range filters {
		if planConsumed(f) || e.limits.filterDisabled(f.Name()) {
			continue
		}
		start := time.Now()
		var err error
		if wm, ok := f.(pixelpath.Watermark); ok {
			err = e.watermark(ctx, r, wm)
		} else {
			err = r.Apply(ctx, f)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedFilter) {
			e.logger.Printf("filter %s failed after %s: %v", pixelpath.FilterText(f), time.Since(start).Round(time.Microsecond), err)
		}
	}
}

// watermark fetches the overlay through the origin, scales it against the
// base raster and composites it at each resolved position.
func (e *Engine) watermark(ctx context.Context, r Raster, wm pixelpath.Watermark) error {
	if e.origin == nil {
		return errors.New("watermark needs an origin to fetch the overlay")
	}
	data, err := e.origin.Fetch(ctx, wm.Image)
	if err != nil {
		return err
	}

	baseW, baseH := r.Width(), r.PageHeight()
	opts := DecodeOptions{Width: baseW, Height: baseH, Mode: ResizeFit, MaxFrames: 1}
	if wm.WRatio > 0 || wm.HRatio > 0 {
		opts.Upscale = true
		opts.Width, opts.Height = e.limits.MaxWidth, e.limits.MaxHeight
		if wm.WRatio > 0 {
			opts.Width = max(1, int(wm.WRatio*float64(baseW)))
		}
		if wm.HRatio > 0 {
			opts.Height = max(1, int(wm.HRatio*float64(baseH)))
		}
	}
	overlay, err := e.codec.Decode(ctx, data, opts)
	if err != nil {
		return err
	}
	defer overlay.Close()

	opacity := 1 - float64(wm.Alpha)/100
	for _, y := range overlayOffsets(wm.Y, baseH, overlay.Height()) {
		for _, x := range overlayOffsets(wm.X, baseW, overlay.Width()) {
			if err := r.Composite(overlay, x, y, opacity); err != nil {
				return err
			}
		}
	}
	return nil
}

// overlayOffsets resolves one watermark axis: keyword placements, percent of
// the base extent, pixel offsets with negatives counted from the far edge,
// and repeat tiling across the whole extent.
func overlayOffsets(p pixelpath.Position, base, overlay int) []int {
	switch p.Kind {
	case pixelpath.PositionRepeat:
		if overlay <= 0 || overlay >= base {
			return []int{0}
		}
		offsets := make([]int, 0, base/overlay+1)
		for v := 0; v < base; v += overlay {
			offsets = append(offsets, v)
		}
		return offsets
	case pixelpath.PositionLeft, pixelpath.PositionTop:
		return []int{0}
	case pixelpath.PositionRight, pixelpath.PositionBottom:
		return []int{base - overlay}
	case pixelpath.PositionCenter:
		return []int{(base - overlay) / 2}
	case pixelpath.PositionPercent:
		return []int{int(p.Value / 100 * float64(base))}
	}
	v := int(p.Value)
	if v < 0 {
		v += base - overlay
	}
	return []int{v}
}
