//go:build govips && cgo

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

// vipsCodec decodes through libvips. Animated gif and webp keep their
// frames; pdf, svg and the modern codecs load at the requested page and
// density. Decode bounds ride the shrink-on-load fast path.
type vipsCodec struct{}

func (vipsCodec) Name() string { return "govips" }

func (vipsCodec) Sniff(data []byte) pixelpath.ImageType { return sniffType(data) }

func (vipsCodec) Decode(ctx context.Context, data []byte, opts DecodeOptions) (Raster, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	params := vips.NewImportParams()
	if opts.Page > 1 {
		// The path DSL counts pages from 1, libvips from 0.
		params.Page.Set(opts.Page - 1)
	}
	if opts.MaxFrames > 1 {
		params.NumPages.Set(opts.MaxFrames)
	}
	if opts.Dpi > 0 {
		params.Density.Set(opts.Dpi)
	}

	if opts.Width > 0 && opts.Height > 0 {
		size := vips.SizeDown
		if opts.Upscale {
			size = vips.SizeBoth
		}
		crop := vips.InterestingNone
		switch opts.Mode {
		case ResizeForce:
			size = vips.SizeForce
		case ResizeCrop:
			crop = vipsInteresting(opts.Interest)
		}
		img, err := vips.LoadThumbnailFromBuffer(data, opts.Width, opts.Height, crop, size, params)
		if err != nil {
			return nil, fmt.Errorf("decode source image: %w", err)
		}
		return &vipsRaster{img: img}, nil
	}

	img, err := vips.LoadImageFromBuffer(data, params)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return &vipsRaster{img: img}, nil
}

func vipsInteresting(interest CropInterest) vips.Interesting {
	switch interest {
	case InterestLow:
		return vips.InterestingLow
	case InterestHigh:
		return vips.InterestingHigh
	case InterestCentre:
		return vips.InterestingCentre
	case InterestAttention:
		return vips.InterestingAttention
	}
	return vips.InterestingNone
}

type vipsRaster struct {
	img *vips.ImageRef
}

func (r *vipsRaster) Width() int      { return r.img.Width() }
func (r *vipsRaster) Height() int     { return r.img.Height() }
func (r *vipsRaster) PageHeight() int { return r.img.PageHeight() }
func (r *vipsRaster) Pages() int      { return r.img.Pages() }
func (r *vipsRaster) HasAlpha() bool  { return r.img.HasAlpha() }
func (r *vipsRaster) Close()          { r.img.Close() }

func (r *vipsRaster) animated() bool { return r.img.Height() > r.img.PageHeight() }

func (r *vipsRaster) Trim(corner pixelpath.TrimBy, tolerance float64) error {
	x, y := 0, 0
	if corner == pixelpath.TrimByBottomRight {
		x, y = r.img.Width()-1, r.img.PageHeight()-1
	}
	point, err := r.img.GetPoint(x, y)
	if err != nil {
		return fmt.Errorf("trim probe: %w", err)
	}
	if len(point) < 3 {
		return errors.New("trim needs an rgb image")
	}
	if tolerance <= 0 {
		tolerance = 1
	}
	background := &vips.Color{R: uint8(point[0]), G: uint8(point[1]), B: uint8(point[2])}
	left, top, width, height, err := r.img.FindTrim(tolerance, background)
	if err != nil {
		return fmt.Errorf("find trim: %w", err)
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	return r.img.ExtractArea(left, top, width, height)
}

func (r *vipsRaster) Crop(left, top, width, height int) error {
	return r.img.ExtractArea(left, top, width, height)
}

func (r *vipsRaster) Resize(width, height int, mode ResizeMode, interest CropInterest, upscale bool) error {
	if width <= 0 || height <= 0 {
		return errors.New("resize target must be positive")
	}
	size := vips.SizeDown
	if upscale {
		size = vips.SizeBoth
	}
	crop := vips.InterestingNone
	switch mode {
	case ResizeForce:
		size = vips.SizeForce
	case ResizeCrop:
		crop = vipsInteresting(interest)
	}
	if err := r.img.ThumbnailWithSize(width, height, crop, size); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func (r *vipsRaster) Rotate(degrees int) error {
	deg := ((degrees % 360) + 360) % 360
	switch deg {
	case 0:
		return nil
	case 90:
		return r.img.Rotate(vips.Angle90)
	case 180:
		return r.img.Rotate(vips.Angle180)
	case 270:
		return r.img.Rotate(vips.Angle270)
	}
	return r.img.Similarity(1, float64(deg), &vips.ColorRGBA{}, 0, 0, 0, 0)
}

func (r *vipsRaster) Flip(horizontal, vertical bool) error {
	if horizontal {
		if err := r.img.Flip(vips.DirectionHorizontal); err != nil {
			return err
		}
	}
	if vertical {
		if err := r.img.Flip(vips.DirectionVertical); err != nil {
			return err
		}
	}
	return nil
}

func (r *vipsRaster) Embed(left, top, width, height int, c pixelpath.Color) error {
	switch c.Kind {
	case pixelpath.ColorNone, pixelpath.ColorUnset:
		if r.img.Bands() < 3 {
			if err := r.img.ToColorSpace(vips.InterpretationSRGB); err != nil {
				return fmt.Errorf("srgb convert: %w", err)
			}
		}
		if !r.img.HasAlpha() {
			if err := r.img.AddAlpha(); err != nil {
				return fmt.Errorf("add alpha: %w", err)
			}
		}
		if err := r.img.EmbedBackgroundRGBA(left, top, width, height, &vips.ColorRGBA{}); err != nil {
			return fmt.Errorf("embed: %w", err)
		}
	case pixelpath.ColorBlur:
		bg, err := r.img.Copy()
		if err != nil {
			return fmt.Errorf("blur fill copy: %w", err)
		}
		if err := bg.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
			bg.Close()
			return fmt.Errorf("blur fill resize: %w", err)
		}
		if err := bg.GaussianBlur(50); err != nil {
			bg.Close()
			return fmt.Errorf("blur fill: %w", err)
		}
		if err := bg.Composite(r.img, vips.BlendModeOver, left, top); err != nil {
			bg.Close()
			return fmt.Errorf("blur fill composite: %w", err)
		}
		r.img.Close()
		r.img = bg
	default:
		cr, cg, cb, ok := vipsResolveColor(c, r.img)
		if !ok {
			return errors.New("invalid fill color")
		}
		bgColor := &vips.Color{R: cr, G: cg, B: cb}
		if r.img.HasAlpha() {
			if err := r.img.Flatten(bgColor); err != nil {
				return fmt.Errorf("flatten: %w", err)
			}
		}
		if err := r.img.EmbedBackground(left, top, width, height, bgColor); err != nil {
			return fmt.Errorf("embed: %w", err)
		}
	}
	return nil
}

func (r *vipsRaster) Composite(overlay Raster, x, y int, opacity float64) error {
	o, ok := overlay.(*vipsRaster)
	if !ok {
		return errors.New("composite overlay from a different backend")
	}
	src := o.img
	if opacity < 1 {
		// Pre-multiplying the overlay itself would stack on repeat tiles;
		// a copy is only a new pipeline head, not a pixel copy.
		tmp, err := src.Copy()
		if err != nil {
			return fmt.Errorf("composite copy: %w", err)
		}
		defer tmp.Close()
		if !tmp.HasAlpha() {
			if err := tmp.AddAlpha(); err != nil {
				return fmt.Errorf("add alpha: %w", err)
			}
		}
		if err := tmp.Linear([]float64{1, 1, 1, math.Max(opacity, 0)}, []float64{0, 0, 0, 0}); err != nil {
			return fmt.Errorf("overlay opacity: %w", err)
		}
		src = tmp
	}
	return r.img.Composite(src, vips.BlendModeOver, x, y)
}

func (r *vipsRaster) Apply(ctx context.Context, f pixelpath.Filter) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	switch f := f.(type) {
	case pixelpath.BackgroundColor:
		if !r.img.HasAlpha() {
			return nil
		}
		cr, cg, cb, ok := vipsResolveColor(f.Color, r.img)
		if !ok {
			return errors.New("invalid background color")
		}
		return r.img.Flatten(&vips.Color{R: cr, G: cg, B: cb})
	case pixelpath.Blur:
		if r.animated() || f.Sigma <= 0 {
			return nil
		}
		return r.img.GaussianBlur(f.Sigma)
	case pixelpath.Brightness:
		return r.linearRGB(1, float64(f.Amount)*255/100)
	case pixelpath.Contrast:
		c := math.Max(math.Min(float64(f.Amount)*255/100, 255), -255)
		a := (259 * (c + 255)) / (255 * (259 - c))
		return r.linearRGB(a, 128-a*128)
	case pixelpath.Grayscale:
		return r.img.ToColorSpace(vips.InterpretationBW)
	case pixelpath.Hue:
		return r.img.Modulate(1, 1, float64(f.Degrees))
	case pixelpath.Label:
		return r.label(f)
	case pixelpath.Modulate:
		return r.img.Modulate(1+float64(f.Brightness)/100, 1+float64(f.Saturation)/100, float64(f.Hue))
	case pixelpath.Proportion:
		scale := math.Min(math.Max(f.Value, 0), 100)
		if scale > 1 {
			scale /= 100
		}
		w := max(1, int(math.Round(float64(r.img.Width())*scale)))
		h := max(1, int(math.Round(float64(r.img.PageHeight())*scale)))
		return r.img.ThumbnailWithSize(w, h, vips.InterestingNone, vips.SizeForce)
	case pixelpath.RGB:
		rr := float64(f.R) * 255 / 100
		gg := float64(f.G) * 255 / 100
		bb := float64(f.B) * 255 / 100
		if r.img.HasAlpha() {
			return r.img.Linear([]float64{1, 1, 1, 1}, []float64{rr, gg, bb, 0})
		}
		return r.img.Linear([]float64{1, 1, 1}, []float64{rr, gg, bb})
	case pixelpath.Rotate:
		return r.Rotate(f.Angle)
	case pixelpath.RoundCorner:
		return r.roundCorner(f)
	case pixelpath.Saturation:
		return r.img.Modulate(1, 1+float64(f.Amount)/100, 0)
	case pixelpath.Sharpen:
		if r.animated() || f.Sigma <= 0 {
			return nil
		}
		return r.img.Sharpen(1+2*f.Sigma, 1, 2)
	default:
		return ErrUnsupportedFilter
	}
}

// linearRGB applies out = in*a + b to the color bands, leaving alpha alone.
func (r *vipsRaster) linearRGB(a, b float64) error {
	if r.img.HasAlpha() {
		return r.img.Linear([]float64{a, a, a, 1}, []float64{b, b, b, 0})
	}
	return r.img.Linear([]float64{a, a, a}, []float64{b, b, b})
}

func (r *vipsRaster) roundCorner(f pixelpath.RoundCorner) error {
	rx, ry := f.RX, f.RY
	if ry == 0 {
		ry = rx
	}
	if rx <= 0 || ry <= 0 {
		return nil
	}
	if !r.img.HasAlpha() {
		if err := r.img.AddAlpha(); err != nil {
			return fmt.Errorf("add alpha: %w", err)
		}
	}
	w, h := r.img.Width(), r.img.PageHeight()
	svg := fmt.Sprintf(
		`<svg viewBox="0 0 %d %d"><rect rx="%d" ry="%d" x="0" y="0" width="%d" height="%d" fill="#fff"/></svg>`,
		w, h, rx, ry, w, h)
	mask, err := vips.NewImageFromBuffer([]byte(svg))
	if err != nil {
		return fmt.Errorf("round corner mask: %w", err)
	}
	defer mask.Close()
	if err := r.img.Composite(mask, vips.BlendModeDestIn, 0, 0); err != nil {
		return fmt.Errorf("round corner: %w", err)
	}
	if cr, cg, cb, ok := f.Color.RGB(); ok {
		return r.img.Flatten(&vips.Color{R: cr, G: cg, B: cb})
	}
	return nil
}

func (r *vipsRaster) label(f pixelpath.Label) error {
	size := f.Size
	if size <= 0 {
		size = 16
	}
	fontName := f.Font
	if fontName == "" {
		fontName = "sans"
	}
	cr, cg, cb, ok := vipsResolveColor(f.Color, r.img)
	if !ok {
		cr, cg, cb = 0xff, 0xff, 0xff
	}
	opacity := float32(1)
	if f.Alpha > 0 {
		opacity = float32(1 - float64(f.Alpha)/100)
	}

	width, height := r.img.Width(), r.img.PageHeight()
	align := vips.AlignLow
	offsetX := 0
	switch f.X.Kind {
	case pixelpath.PositionCenter:
		align = vips.AlignCenter
	case pixelpath.PositionRight:
		align = vips.AlignHigh
	case pixelpath.PositionPercent:
		offsetX = int(f.X.Value / 100 * float64(width))
	case pixelpath.PositionPixels:
		offsetX = int(f.X.Value)
		if offsetX < 0 {
			offsetX += width
		}
	}
	offsetY := 0
	switch f.Y.Kind {
	case pixelpath.PositionCenter:
		offsetY = (height - size) / 2
	case pixelpath.PositionBottom:
		offsetY = height - size
	case pixelpath.PositionPercent:
		offsetY = int(f.Y.Value / 100 * float64(height))
	case pixelpath.PositionPixels:
		offsetY = int(f.Y.Value)
		if offsetY < 0 {
			offsetY += height - size
		}
	}

	label := &vips.LabelParams{
		Text:      f.Text,
		Font:      fmt.Sprintf("%s %d", fontName, size),
		Opacity:   opacity,
		Color:     vips.Color{R: cr, G: cg, B: cb},
		Alignment: align,
	}
	label.Width.SetInt(max(1, width-offsetX))
	label.Height.SetInt(size)
	label.OffsetX.SetInt(offsetX)
	label.OffsetY.SetInt(offsetY)
	if err := r.img.Label(label); err != nil {
		return fmt.Errorf("apply label: %w", err)
	}
	return nil
}

func (r *vipsRaster) Export(opts ExportOptions) ([]byte, error) {
	if opts.StripICC {
		if err := r.img.RemoveICCProfile(); err != nil {
			return nil, fmt.Errorf("strip icc: %w", err)
		}
	}
	strip := opts.StripEXIF || opts.StripMetadata
	quality := 0
	if opts.Quality > 0 && opts.Quality <= 100 {
		quality = opts.Quality
	}

	switch opts.Format {
	case pixelpath.ImageTypeJPEG, "":
		params := vips.NewJpegExportParams()
		params.StripMetadata = strip
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypePNG:
		params := vips.NewPngExportParams()
		params.StripMetadata = strip
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypeWEBP:
		params := vips.NewWebpExportParams()
		params.StripMetadata = strip
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypeGIF:
		params := vips.NewGifExportParams()
		params.StripMetadata = strip
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportGif(params)
		if err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypeTIFF:
		params := vips.NewTiffExportParams()
		params.StripMetadata = strip
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportTiff(params)
		if err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypeAVIF:
		params := vips.NewAvifExportParams()
		params.StripMetadata = strip
		if quality > 0 {
			params.Quality = quality
		}
		if opts.AvifSpeed > 0 {
			params.Speed = opts.AvifSpeed
		}
		data, _, err := r.img.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypeHEIF:
		params := vips.NewHeifExportParams()
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportHeif(params)
		if err != nil {
			return nil, fmt.Errorf("encode heif: %w", err)
		}
		return data, nil
	case pixelpath.ImageTypeJP2K:
		params := vips.NewJp2kExportParams()
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err := r.img.ExportJp2k(params)
		if err != nil {
			return nil, fmt.Errorf("encode jp2k: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unsupported output format: %s", opts.Format)
}

func vipsResolveColor(c pixelpath.Color, img *vips.ImageRef) (uint8, uint8, uint8, bool) {
	if c.Kind == pixelpath.ColorAuto {
		point, err := img.GetPoint(0, 0)
		if err != nil || len(point) < 3 {
			return 0, 0, 0, false
		}
		return uint8(point[0]), uint8(point[1]), uint8(point[2]), true
	}
	return c.RGB()
}
