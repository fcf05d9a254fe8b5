package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// load decodes the source with the cheapest strategy the plan permits and
// applies the geometry stages in fixed order: trim, crop, orientation,
// second resize, flips, padding.
func (e *Engine) load(ctx context.Context, data []byte, cmd pixelpath.Command, plan Plan) (Raster, error) {
	r, err := e.codec.Decode(ctx, data, e.decodeOptions(cmd, plan))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	if err := e.postLoad(r, cmd, plan); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (e *Engine) decodeOptions(cmd pixelpath.Command, plan Plan) DecodeOptions {
	opts := DecodeOptions{
		Width:     e.limits.MaxWidth,
		Height:    e.limits.MaxHeight,
		Mode:      ResizeFit,
		Page:      plan.Page,
		Dpi:       plan.Dpi,
		MaxFrames: plan.MaxFrames,
	}
	if plan.ThumbnailNotSupported || cmd.HasCrop() {
		// Full decode, bounded only by the server maxima.
		return opts
	}

	w, h := cmd.Width, cmd.Height
	switch {
	case cmd.Fit == pixelpath.FitIn && (w > 0 || h > 0):
		opts.Width, opts.Height = boundOr(w, e.limits.MaxWidth), boundOr(h, e.limits.MaxHeight)
		opts.Upscale = plan.Upscale
	case plan.Stretch && w > 0 && h > 0:
		opts.Width, opts.Height = w, h
		opts.Mode = ResizeForce
	case cmd.Fit == pixelpath.FitNone && w > 0 && h > 0:
		opts.Width, opts.Height = w, h
		opts.Mode = ResizeCrop
		opts.Interest = cropInterest(cmd)
		opts.Upscale = plan.Upscale
	case w > 0 || h > 0:
		opts.Width, opts.Height = boundOr(w, e.limits.MaxWidth), boundOr(h, e.limits.MaxHeight)
	}
	return opts
}

func (e *Engine) postLoad(r Raster, cmd pixelpath.Command, plan Plan) error {
	if cmd.Trim {
		if err := r.Trim(cmd.TrimBy, cmd.TrimTolerance); err != nil && !errors.Is(err, ErrUnsupportedFilter) {
			return fmt.Errorf("%w: trim: %v", ErrLoad, err)
		}
	}

	if cmd.HasCrop() {
		if left, top, w, h, ok := cropRect(r, cmd); ok {
			if err := r.Crop(left, top, w, h); err != nil {
				return fmt.Errorf("%w: crop: %v", ErrLoad, err)
			}
		}
	}

	if plan.Orient > 0 {
		if err := r.Rotate(plan.Orient); err != nil {
			return fmt.Errorf("%w: orient: %v", ErrLoad, err)
		}
	}

	targetW, targetH := targetDims(r, cmd, plan.Upscale)
	if (targetW != r.Width() || targetH != r.PageHeight()) &&
		(plan.Upscale || targetW < r.Width() || targetH < r.PageHeight()) {
		mode, interest := ResizeCrop, cropInterest(cmd)
		switch {
		case cmd.Fit == pixelpath.FitIn:
			mode, interest = ResizeFit, InterestNone
		case plan.Stretch:
			mode, interest = ResizeForce, InterestNone
		}
		if err := r.Resize(targetW, targetH, mode, interest, plan.Upscale); err != nil {
			return fmt.Errorf("%w: resize: %v", ErrLoad, err)
		}
	}

	if cmd.HFlip || cmd.VFlip {
		if err := r.Flip(cmd.HFlip, cmd.VFlip); err != nil {
			return fmt.Errorf("%w: flip: %v", ErrLoad, err)
		}
	}

	if err := e.embed(r, cmd); err != nil {
		return err
	}
	return nil
}

// embed letterboxes a fit-in result to the requested canvas and applies
// padding, filled with the fill filter's color when one is present.
func (e *Engine) embed(r Raster, cmd pixelpath.Command) error {
	fill, hasFill := findFill(cmd.Filters)
	if !cmd.HasPadding() && !hasFill {
		return nil
	}

	canvasW, canvasH := r.Width(), r.PageHeight()
	if hasFill && cmd.Fit == pixelpath.FitIn {
		if cmd.Width > 0 {
			canvasW = cmd.Width
		}
		if cmd.Height > 0 {
			canvasH = cmd.Height
		}
	}

	left := (canvasW-r.Width())/2 + cmd.PaddingLeft
	top := (canvasH-r.PageHeight())/2 + cmd.PaddingTop
	totalW := canvasW + cmd.PaddingLeft + cmd.PaddingRight
	totalH := canvasH + cmd.PaddingTop + cmd.PaddingBottom
	if totalW == r.Width() && totalH == r.PageHeight() {
		return nil
	}

	color := pixelpath.ColorNoneValue
	if hasFill {
		color = fill.Color
	}
	if err := r.Embed(left, top, totalW, totalH, color); err != nil {
		return fmt.Errorf("%w: fill: %v", ErrLoad, err)
	}
	return nil
}

func findFill(fs pixelpath.Filters) (pixelpath.Fill, bool) {
	for _, f := range fs {
		if fill, ok := f.(pixelpath.Fill); ok {
			return fill, true
		}
	}
	return pixelpath.Fill{}, false
}

// targetDims resolves the requested dimensions against the loaded raster,
// scaling a missing axis proportionally and refusing to grow it past the
// source unless upscaling is on.
func targetDims(r Raster, cmd pixelpath.Command, upscale bool) (int, int) {
	srcW, srcH := r.Width(), r.PageHeight()
	w, h := cmd.Width, cmd.Height
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}
	switch {
	case w == 0 && h == 0:
		return srcW, srcH
	case w == 0:
		tw := srcW * h / srcH
		if !upscale {
			tw = min(tw, srcW)
		}
		return max(tw, 1), h
	case h == 0:
		th := srcH * w / srcW
		if !upscale {
			th = min(th, srcH)
		}
		return w, max(th, 1)
	}
	return w, h
}

// cropRect resolves the crop coordinates, treating values at or below 1.0
// as fractions of the loaded dimensions.
func cropRect(r Raster, cmd pixelpath.Command) (left, top, w, h int, ok bool) {
	srcW, srcH := r.Width(), r.PageHeight()
	l := resolveCrop(cmd.CropLeft, srcW)
	t := resolveCrop(cmd.CropTop, srcH)
	rt := resolveCrop(cmd.CropRight, srcW)
	b := resolveCrop(cmd.CropBottom, srcH)
	l, t = max(l, 0), max(t, 0)
	rt, b = min(rt, srcW), min(b, srcH)
	if rt-l <= 0 || b-t <= 0 {
		return 0, 0, 0, 0, false
	}
	return l, t, rt - l, b - t, true
}

func resolveCrop(v float64, extent int) int {
	if v <= 1.0 {
		return int(v * float64(extent))
	}
	return int(v)
}

// cropInterest maps the alignment keywords to the crop interest; the
// unaligned default centers the crop.
func cropInterest(cmd pixelpath.Command) CropInterest {
	if cmd.Smart {
		return InterestAttention
	}
	switch {
	case cmd.HAlign == pixelpath.HAlignLeft || cmd.VAlign == pixelpath.VAlignTop:
		return InterestLow
	case cmd.HAlign == pixelpath.HAlignRight || cmd.VAlign == pixelpath.VAlignBottom:
		return InterestHigh
	}
	return InterestCentre
}

func boundOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
