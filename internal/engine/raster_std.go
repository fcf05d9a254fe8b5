//go:build !govips || !cgo

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/jonaylor89/pixelgate/internal/pixelpath"
	"golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// stdCodec decodes with the pure-Go image packages. It reads jpeg, png,
// gif, webp, bmp and tiff, always as a single frame; vector sources, pdf
// pages and the modern codecs need the govips build.
type stdCodec struct{}

func (stdCodec) Name() string { return "std" }

func (stdCodec) Sniff(data []byte) pixelpath.ImageType { return sniffType(data) }

func (stdCodec) Decode(ctx context.Context, data []byte, opts DecodeOptions) (Raster, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	r := &stdRaster{img: imaging.Clone(src)}
	if opts.Width > 0 && opts.Height > 0 {
		if err := r.Resize(opts.Width, opts.Height, opts.Mode, opts.Interest, opts.Upscale); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type stdRaster struct {
	img *image.NRGBA
}

func (r *stdRaster) Width() int      { return r.img.Bounds().Dx() }
func (r *stdRaster) Height() int     { return r.img.Bounds().Dy() }
func (r *stdRaster) PageHeight() int { return r.img.Bounds().Dy() }
func (r *stdRaster) Pages() int      { return 1 }
func (r *stdRaster) Close()          { r.img = nil }

func (r *stdRaster) HasAlpha() bool {
	for i := 3; i < len(r.img.Pix); i += 4 {
		if r.img.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

func (r *stdRaster) Trim(corner pixelpath.TrimBy, tolerance float64) error {
	w, h := r.Width(), r.Height()
	if w < 2 || h < 2 {
		return nil
	}
	bx, by := 0, 0
	if corner == pixelpath.TrimByBottomRight {
		bx, by = w-1, h-1
	}
	bg := r.img.NRGBAAt(bx, by)
	tol := int(tolerance)
	content := func(x, y int) bool {
		return chanDist(r.img.NRGBAAt(x, y), bg) > tol
	}

	top, bottom, left, right := -1, -1, -1, -1
	for y := 0; y < h && top < 0; y++ {
		for x := 0; x < w; x++ {
			if content(x, y) {
				top = y
				break
			}
		}
	}
	if top < 0 {
		// Nothing but background, leave the image alone.
		return nil
	}
	for y := h - 1; bottom < 0; y-- {
		for x := 0; x < w; x++ {
			if content(x, y) {
				bottom = y
				break
			}
		}
	}
	for x := 0; left < 0; x++ {
		for y := top; y <= bottom; y++ {
			if content(x, y) {
				left = x
				break
			}
		}
	}
	for x := w - 1; right < 0; x-- {
		for y := top; y <= bottom; y++ {
			if content(x, y) {
				right = x
				break
			}
		}
	}
	if left == 0 && top == 0 && right == w-1 && bottom == h-1 {
		return nil
	}
	r.img = imaging.Crop(r.img, image.Rect(left, top, right+1, bottom+1))
	return nil
}

func chanDist(a, b color.NRGBA) int {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return max(d(a.R, b.R), d(a.G, b.G), d(a.B, b.B))
}

func (r *stdRaster) Crop(left, top, width, height int) error {
	rect := image.Rect(left, top, left+width, top+height).Intersect(r.img.Bounds())
	if rect.Empty() {
		return errors.New("crop window outside the image")
	}
	r.img = imaging.Crop(r.img, rect)
	return nil
}

func (r *stdRaster) Resize(width, height int, mode ResizeMode, interest CropInterest, upscale bool) error {
	if width <= 0 || height <= 0 {
		return errors.New("resize target must be positive")
	}
	switch mode {
	case ResizeForce:
		r.img = imaging.Resize(r.img, width, height, imaging.Lanczos)
	case ResizeCrop:
		r.resizeCrop(width, height, interest, upscale)
	default:
		r.resizeFit(width, height, upscale)
	}
	return nil
}

func (r *stdRaster) resizeFit(width, height int, upscale bool) {
	srcW, srcH := r.Width(), r.Height()
	if !upscale {
		if srcW > width || srcH > height {
			r.img = imaging.Fit(r.img, width, height, imaging.Lanczos)
		}
		return
	}
	scale := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	tw := max(1, int(math.Round(float64(srcW)*scale)))
	th := max(1, int(math.Round(float64(srcH)*scale)))
	if tw != srcW || th != srcH {
		r.img = imaging.Resize(r.img, tw, th, imaging.Lanczos)
	}
}

// resizeCrop cuts the target aspect out of the source, then scales down to
// the target. Without upscale a source smaller than the target keeps the
// cropped region at its natural size.
func (r *stdRaster) resizeCrop(width, height int, interest CropInterest, upscale bool) {
	anchor := fillAnchor(interest)
	if upscale {
		r.img = imaging.Fill(r.img, width, height, anchor, imaging.Lanczos)
		return
	}
	srcW, srcH := r.Width(), r.Height()
	regionW, regionH := srcW, srcH
	if srcW*height > srcH*width {
		regionW = max(1, srcH*width/height)
	} else {
		regionH = max(1, srcW*height/width)
	}
	r.img = imaging.CropAnchor(r.img, regionW, regionH, anchor)
	if regionW > width || regionH > height {
		r.img = imaging.Resize(r.img, width, height, imaging.Lanczos)
	}
}

// fillAnchor maps the crop interest to an anchor. Attention falls back to
// center; the pure-Go backend has no saliency detection.
func fillAnchor(interest CropInterest) imaging.Anchor {
	switch interest {
	case InterestLow:
		return imaging.TopLeft
	case InterestHigh:
		return imaging.BottomRight
	}
	return imaging.Center
}

func (r *stdRaster) Rotate(degrees int) error {
	deg := ((degrees % 360) + 360) % 360
	switch deg {
	case 0:
	case 90:
		r.img = imaging.Rotate270(r.img)
	case 180:
		r.img = imaging.Rotate180(r.img)
	case 270:
		r.img = imaging.Rotate90(r.img)
	default:
		r.img = imaging.Rotate(r.img, -float64(deg), color.NRGBA{})
	}
	return nil
}

func (r *stdRaster) Flip(horizontal, vertical bool) error {
	if horizontal {
		r.img = imaging.FlipH(r.img)
	}
	if vertical {
		r.img = imaging.FlipV(r.img)
	}
	return nil
}

func (r *stdRaster) Embed(left, top, width, height int, c pixelpath.Color) error {
	if width <= 0 || height <= 0 {
		return errors.New("embed canvas must be positive")
	}
	switch c.Kind {
	case pixelpath.ColorBlur:
		canvas := imaging.Blur(imaging.Resize(r.img, width, height, imaging.Lanczos), 50)
		r.img = imaging.Overlay(canvas, r.img, image.Pt(left, top), 1.0)
	case pixelpath.ColorNone, pixelpath.ColorUnset:
		canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
		r.img = imaging.Paste(canvas, r.img, image.Pt(left, top))
	default:
		canvas := imaging.New(width, height, resolveColor(c, r.img))
		r.img = imaging.Overlay(canvas, r.img, image.Pt(left, top), 1.0)
	}
	return nil
}

func (r *stdRaster) Composite(overlay Raster, x, y int, opacity float64) error {
	o, ok := overlay.(*stdRaster)
	if !ok {
		return errors.New("composite overlay from a different backend")
	}
	r.img = imaging.Overlay(r.img, o.img, image.Pt(x, y), math.Min(math.Max(opacity, 0), 1))
	return nil
}

func (r *stdRaster) Apply(ctx context.Context, f pixelpath.Filter) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	switch f := f.(type) {
	case pixelpath.BackgroundColor:
		r.flatten(f.Color)
	case pixelpath.Blur:
		if f.Sigma > 0 {
			r.img = imaging.Blur(r.img, f.Sigma)
		}
	case pixelpath.Brightness:
		r.img = imaging.AdjustBrightness(r.img, float64(f.Amount))
	case pixelpath.Contrast:
		r.img = imaging.AdjustContrast(r.img, float64(f.Amount))
	case pixelpath.Grayscale:
		r.img = imaging.Grayscale(r.img)
	case pixelpath.Hue:
		r.img = adjustHue(r.img, float64(f.Degrees))
	case pixelpath.Label:
		return r.label(f)
	case pixelpath.Modulate:
		if f.Brightness != 0 {
			r.img = imaging.AdjustBrightness(r.img, float64(f.Brightness))
		}
		if f.Saturation != 0 {
			r.img = imaging.AdjustSaturation(r.img, float64(f.Saturation))
		}
		if f.Hue != 0 {
			r.img = adjustHue(r.img, float64(f.Hue))
		}
	case pixelpath.Proportion:
		scale := f.Value
		if scale > 1 {
			scale /= 100
		}
		tw := max(1, int(math.Round(float64(r.Width())*scale)))
		th := max(1, int(math.Round(float64(r.Height())*scale)))
		r.img = imaging.Resize(r.img, tw, th, imaging.Lanczos)
	case pixelpath.RGB:
		r.img = adjustChannels(r.img, f.R, f.G, f.B)
	case pixelpath.Rotate:
		return r.Rotate(f.Angle)
	case pixelpath.RoundCorner:
		return r.roundCorner(f)
	case pixelpath.Saturation:
		r.img = imaging.AdjustSaturation(r.img, float64(f.Amount))
	case pixelpath.Sharpen:
		if f.Sigma > 0 {
			r.img = imaging.Sharpen(r.img, f.Sigma)
		}
	default:
		return ErrUnsupportedFilter
	}
	return nil
}

func (r *stdRaster) flatten(c pixelpath.Color) {
	bg := imaging.New(r.Width(), r.Height(), resolveColor(c, r.img))
	r.img = imaging.Overlay(bg, r.img, image.Pt(0, 0), 1.0)
}

func (r *stdRaster) roundCorner(f pixelpath.RoundCorner) error {
	w, h := r.Width(), r.Height()
	rx := min(f.RX, w/2)
	ry := f.RY
	if ry == 0 {
		ry = f.RX
	}
	ry = min(ry, h/2)
	if rx <= 0 || ry <= 0 {
		return nil
	}

	fill := color.NRGBA{}
	if cr, cg, cb, ok := f.Color.RGB(); ok {
		fill = color.NRGBA{R: cr, G: cg, B: cb, A: 0xff}
	}
	cut := func(x0, y0, x1, y1, cx, cy int) {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				dx := (float64(x) + 0.5 - float64(cx)) / float64(rx)
				dy := (float64(y) + 0.5 - float64(cy)) / float64(ry)
				if dx*dx+dy*dy > 1 {
					r.img.SetNRGBA(x, y, fill)
				}
			}
		}
	}
	cut(0, 0, rx, ry, rx, ry)
	cut(w-rx, 0, w, ry, w-rx, ry)
	cut(0, h-ry, rx, h, rx, h-ry)
	cut(w-rx, h-ry, w, h, w-rx, h-ry)
	return nil
}

// label draws text with the fixed 7x13 face; the requested size and font
// need the govips build.
func (r *stdRaster) label(f pixelpath.Label) error {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: r.img, Face: face}
	textW := drawer.MeasureString(f.Text).Ceil()
	metrics := face.Metrics()
	textH := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()

	x := overlayOffsets(f.X, r.Width(), textW)[0]
	y := overlayOffsets(f.Y, r.Height(), textH)[0]

	cr, cg, cb, ok := f.Color.RGB()
	if !ok {
		cr, cg, cb = 0xff, 0xff, 0xff
	}
	alpha := uint8(0xff)
	if f.Alpha > 0 {
		alpha = uint8(255 - f.Alpha*255/100)
	}
	drawer.Src = image.NewUniform(color.NRGBA{R: cr, G: cg, B: cb, A: alpha})
	drawer.Dot = fixed.P(x, y+ascent)
	drawer.DrawString(f.Text)
	return nil
}

func (r *stdRaster) Export(opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	switch opts.Format {
	case pixelpath.ImageTypeJPEG, "":
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		if err := jpeg.Encode(&buf, r.img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case pixelpath.ImageTypePNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, r.img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case pixelpath.ImageTypeGIF:
		if err := gif.Encode(&buf, r.img, &gif.Options{NumColors: 256}); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case pixelpath.ImageTypeBMP:
		if err := bmp.Encode(&buf, r.img); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
	case pixelpath.ImageTypeTIFF:
		topts := &tiff.Options{Compression: tiff.Deflate}
		if err := tiff.Encode(&buf, r.img, topts); err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
	case pixelpath.ImageTypeWEBP, pixelpath.ImageTypeAVIF, pixelpath.ImageTypeHEIF, pixelpath.ImageTypeJP2K:
		return nil, fmt.Errorf("%s export requires govips build tag", opts.Format)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", opts.Format)
	}

	return buf.Bytes(), nil
}

func resolveColor(c pixelpath.Color, img *image.NRGBA) color.NRGBA {
	switch c.Kind {
	case pixelpath.ColorAuto, pixelpath.ColorBlur:
		p := img.NRGBAAt(0, 0)
		p.A = 0xff
		return p
	case pixelpath.ColorNone, pixelpath.ColorUnset:
		return color.NRGBA{}
	}
	cr, cg, cb, ok := c.RGB()
	if !ok {
		return color.NRGBA{}
	}
	return color.NRGBA{R: cr, G: cg, B: cb, A: 0xff}
}

// adjustHue rotates the hue with the standard luminance-preserving matrix.
func adjustHue(img *image.NRGBA, degrees float64) *image.NRGBA {
	rad := degrees * math.Pi / 180
	cosA, sinA := math.Cos(rad), math.Sin(rad)
	m := [9]float64{
		0.213 + cosA*0.787 - sinA*0.213, 0.715 - cosA*0.715 - sinA*0.715, 0.072 - cosA*0.072 + sinA*0.928,
		0.213 - cosA*0.213 + sinA*0.143, 0.715 + cosA*0.285 + sinA*0.140, 0.072 - cosA*0.072 - sinA*0.283,
		0.213 - cosA*0.213 - sinA*0.787, 0.715 - cosA*0.715 + sinA*0.715, 0.072 + cosA*0.928 + sinA*0.072,
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		rr, gg, bb := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clamp8(m[0]*rr + m[1]*gg + m[2]*bb),
			G: clamp8(m[3]*rr + m[4]*gg + m[5]*bb),
			B: clamp8(m[6]*rr + m[7]*gg + m[8]*bb),
			A: c.A,
		}
	})
}

func adjustChannels(img *image.NRGBA, dr, dg, db int) *image.NRGBA {
	sr := float64(dr) * 255 / 100
	sg := float64(dg) * 255 / 100
	sb := float64(db) * 255 / 100
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) + sr),
			G: clamp8(float64(c.G) + sg),
			B: clamp8(float64(c.B) + sb),
			A: c.A,
		}
	})
}

func clamp8(v float64) uint8 {
	return uint8(min(max(int(math.Round(v)), 0), 255))
}
