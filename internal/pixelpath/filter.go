package pixelpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ImageType is the closed set of output formats the format filter accepts.
type ImageType string

const (
	ImageTypeGIF    ImageType = "gif"
	ImageTypeJPEG   ImageType = "jpeg"
	ImageTypePNG    ImageType = "png"
	ImageTypeMagick ImageType = "magick"
	ImageTypePDF    ImageType = "pdf"
	ImageTypeSVG    ImageType = "svg"
	ImageTypeTIFF   ImageType = "tiff"
	ImageTypeWEBP   ImageType = "webp"
	ImageTypeHEIF   ImageType = "heif"
	ImageTypeBMP    ImageType = "bmp"
	ImageTypeAVIF   ImageType = "avif"
	ImageTypeJP2K   ImageType = "jp2k"
)

func ParseImageType(s string) (ImageType, bool) {
	switch strings.ToLower(s) {
	case "jpg", "jpeg":
		return ImageTypeJPEG, true
	case "gif", "png", "magick", "pdf", "svg", "tiff", "webp", "heif", "bmp", "avif", "jp2k":
		return ImageType(strings.ToLower(s)), true
	}
	return "", false
}

func (t ImageType) String() string { return string(t) }

// Animatable reports whether the format can carry multiple frames.
func (t ImageType) Animatable() bool {
	return t == ImageTypeGIF || t == ImageTypeWEBP
}

// SupportsQuality reports whether the encoder honors a lossy quality setting.
func (t ImageType) SupportsQuality() bool {
	switch t {
	case ImageTypeJPEG, ImageTypeWEBP, ImageTypeTIFF, ImageTypeAVIF, ImageTypeHEIF, ImageTypeJP2K:
		return true
	}
	return false
}

func (t ImageType) ContentType() string {
	switch t {
	case ImageTypeGIF:
		return "image/gif"
	case ImageTypeJPEG:
		return "image/jpeg"
	case ImageTypePNG:
		return "image/png"
	case ImageTypePDF:
		return "application/pdf"
	case ImageTypeSVG:
		return "image/svg+xml"
	case ImageTypeTIFF:
		return "image/tiff"
	case ImageTypeWEBP:
		return "image/webp"
	case ImageTypeHEIF:
		return "image/heif"
	case ImageTypeBMP:
		return "image/bmp"
	case ImageTypeAVIF:
		return "image/avif"
	case ImageTypeJP2K:
		return "image/jp2"
	}
	return "application/octet-stream"
}

// PositionKind discriminates watermark and label coordinate forms.
type PositionKind uint8

const (
	PositionPixels PositionKind = iota
	PositionPercent
	PositionLeft
	PositionRight
	PositionCenter
	PositionTop
	PositionBottom
	PositionRepeat
)

// Position is a watermark or label coordinate: an absolute pixel offset
// (negative counts from the far edge), a percentage of the axis with a
// trailing p, or a placement keyword.
type Position struct {
	Kind  PositionKind
	Value float64
}

func PixelPosition(px int) Position      { return Position{Kind: PositionPixels, Value: float64(px)} }
func PercentPosition(p float64) Position { return Position{Kind: PositionPercent, Value: p} }

func (p Position) String() string {
	switch p.Kind {
	case PositionPercent:
		return formatFloat(p.Value) + "p"
	case PositionLeft:
		return "left"
	case PositionRight:
		return "right"
	case PositionCenter:
		return "center"
	case PositionTop:
		return "top"
	case PositionBottom:
		return "bottom"
	case PositionRepeat:
		return "repeat"
	}
	return strconv.Itoa(int(p.Value))
}

func parsePosition(s string, allowRepeat bool) (Position, error) {
	switch s {
	case "left":
		return Position{Kind: PositionLeft}, nil
	case "right":
		return Position{Kind: PositionRight}, nil
	case "center":
		return Position{Kind: PositionCenter}, nil
	case "top":
		return Position{Kind: PositionTop}, nil
	case "bottom":
		return Position{Kind: PositionBottom}, nil
	case "repeat":
		if !allowRepeat {
			return Position{}, fmt.Errorf("position %q not allowed here", s)
		}
		return Position{Kind: PositionRepeat}, nil
	}
	if strings.HasSuffix(s, "p") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "p"), 64)
		if err != nil {
			return Position{}, fmt.Errorf("invalid percent position %q", s)
		}
		return Position{Kind: PositionPercent, Value: v}, nil
	}
	px, err := strconv.Atoi(s)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position %q", s)
	}
	return PixelPosition(px), nil
}

// Filter is one operation of the closed transformation set. Implementations
// are plain comparable structs; the unexported method seals the set so the
// engine can dispatch with an exhaustive type switch.
type Filter interface {
	// Name returns the canonical filter name.
	Name() string
	// Args returns the canonical argument text, empty for argument-free filters.
	Args() string
	isFilter()
}

type (
	BackgroundColor struct{ Color Color }
	Blur            struct{ Sigma float64 }
	Brightness      struct{ Amount int }
	Contrast        struct{ Amount int }
	Dpi             struct{ Value int }
	Fill            struct{ Color Color }
	Focal           struct {
		Left, Top, Right, Bottom float64
		IsPoint                  bool
	}
	Format    struct{ Type ImageType }
	Grayscale struct{}
	Hue       struct{ Degrees int }
	Label     struct {
		Text  string
		X, Y  Position
		Size  int
		Color Color
		Alpha int // -1 when not given
		Font  string
	}
	MaxBytes   struct{ Limit int }
	MaxFrames  struct{ Limit int }
	Modulate   struct{ Brightness, Saturation, Hue int }
	Orient     struct{ Angle int }
	Page       struct{ Number int }
	Proportion struct{ Value float64 }
	Quality    struct{ Percent int }
	RGB        struct{ R, G, B int }
	Rotate     struct{ Angle int }
	RoundCorner struct {
		RX, RY int
		Color  Color
	}
	Saturation    struct{ Amount int }
	Sharpen       struct{ Sigma float64 }
	StripEXIF     struct{}
	StripICC      struct{}
	StripMetadata struct{}
	Upscale       struct{}
	Watermark     struct {
		Image string
		X, Y  Position
		Alpha int
		// WRatio and HRatio scale the overlay relative to the base image,
		// zero when not given.
		WRatio, HRatio float64
	}
)

func (BackgroundColor) isFilter() {}
func (Blur) isFilter()            {}
func (Brightness) isFilter()      {}
func (Contrast) isFilter()        {}
func (Dpi) isFilter()             {}
func (Fill) isFilter()            {}
func (Focal) isFilter()           {}
func (Format) isFilter()          {}
func (Grayscale) isFilter()       {}
func (Hue) isFilter()             {}
func (Label) isFilter()           {}
func (MaxBytes) isFilter()        {}
func (MaxFrames) isFilter()       {}
func (Modulate) isFilter()        {}
func (Orient) isFilter()          {}
func (Page) isFilter()            {}
func (Proportion) isFilter()      {}
func (Quality) isFilter()         {}
func (RGB) isFilter()             {}
func (Rotate) isFilter()          {}
func (RoundCorner) isFilter()     {}
func (Saturation) isFilter()      {}
func (Sharpen) isFilter()         {}
func (StripEXIF) isFilter()       {}
func (StripICC) isFilter()        {}
func (StripMetadata) isFilter()   {}
func (Upscale) isFilter()         {}
func (Watermark) isFilter()       {}

func (BackgroundColor) Name() string { return "background_color" }
func (Blur) Name() string            { return "blur" }
func (Brightness) Name() string      { return "brightness" }
func (Contrast) Name() string        { return "contrast" }
func (Dpi) Name() string             { return "dpi" }
func (Fill) Name() string            { return "fill" }
func (Focal) Name() string           { return "focal" }
func (Format) Name() string          { return "format" }
func (Grayscale) Name() string       { return "grayscale" }
func (Hue) Name() string             { return "hue" }
func (Label) Name() string           { return "label" }
func (MaxBytes) Name() string        { return "max_bytes" }
func (MaxFrames) Name() string       { return "max_frames" }
func (Modulate) Name() string        { return "modulate" }
func (Orient) Name() string          { return "orient" }
func (Page) Name() string            { return "page" }
func (Proportion) Name() string      { return "proportion" }
func (Quality) Name() string         { return "quality" }
func (RGB) Name() string             { return "rgb" }
func (Rotate) Name() string          { return "rotate" }
func (RoundCorner) Name() string     { return "round_corner" }
func (Saturation) Name() string      { return "saturation" }
func (Sharpen) Name() string         { return "sharpen" }
func (StripEXIF) Name() string       { return "strip_exif" }
func (StripICC) Name() string        { return "strip_icc" }
func (StripMetadata) Name() string   { return "strip_metadata" }
func (Upscale) Name() string         { return "upscale" }
func (Watermark) Name() string       { return "watermark" }

func (f BackgroundColor) Args() string { return f.Color.String() }
func (f Blur) Args() string            { return formatFloat(f.Sigma) }
func (f Brightness) Args() string      { return strconv.Itoa(f.Amount) }
func (f Contrast) Args() string        { return strconv.Itoa(f.Amount) }
func (f Dpi) Args() string             { return strconv.Itoa(f.Value) }
func (f Fill) Args() string            { return f.Color.String() }

func (f Focal) Args() string {
	if f.IsPoint {
		return fmt.Sprintf("%sx%s", formatFloat(f.Left), formatFloat(f.Top))
	}
	return fmt.Sprintf("%sx%s:%sx%s",
		formatFloat(f.Left), formatFloat(f.Top), formatFloat(f.Right), formatFloat(f.Bottom))
}

func (f Format) Args() string  { return f.Type.String() }
func (Grayscale) Args() string { return "" }
func (f Hue) Args() string     { return strconv.Itoa(f.Degrees) }

func (f Label) Args() string {
	var b strings.Builder
	b.WriteString(f.Text)
	b.WriteByte(',')
	b.WriteString(f.X.String())
	b.WriteByte(',')
	b.WriteString(f.Y.String())
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(f.Size))
	b.WriteByte(',')
	b.WriteString(f.Color.String())
	if f.Alpha >= 0 {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(f.Alpha))
		if f.Font != "" {
			b.WriteByte(',')
			b.WriteString(f.Font)
		}
	}
	return b.String()
}

func (f MaxBytes) Args() string  { return strconv.Itoa(f.Limit) }
func (f MaxFrames) Args() string { return strconv.Itoa(f.Limit) }

func (f Modulate) Args() string {
	return fmt.Sprintf("%d,%d,%d", f.Brightness, f.Saturation, f.Hue)
}

func (f Orient) Args() string     { return strconv.Itoa(f.Angle) }
func (f Page) Args() string       { return strconv.Itoa(f.Number) }
func (f Proportion) Args() string { return formatFloat(f.Value) }
func (f Quality) Args() string    { return strconv.Itoa(f.Percent) }
func (f RGB) Args() string        { return fmt.Sprintf("%d,%d,%d", f.R, f.G, f.B) }
func (f Rotate) Args() string     { return strconv.Itoa(f.Angle) }

func (f RoundCorner) Args() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(f.RX))
	if f.RY > 0 {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(f.RY))
	}
	if f.Color.Kind != ColorUnset {
		b.WriteByte(',')
		b.WriteString(f.Color.String())
	}
	return b.String()
}

func (f Saturation) Args() string  { return strconv.Itoa(f.Amount) }
func (f Sharpen) Args() string     { return formatFloat(f.Sigma) }
func (StripEXIF) Args() string     { return "" }
func (StripICC) Args() string      { return "" }
func (StripMetadata) Args() string { return "" }
func (Upscale) Args() string       { return "" }

func (f Watermark) Args() string {
	var b strings.Builder
	b.WriteString(f.Image)
	b.WriteByte(',')
	b.WriteString(f.X.String())
	b.WriteByte(',')
	b.WriteString(f.Y.String())
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(f.Alpha))
	if f.WRatio > 0 {
		b.WriteByte(',')
		b.WriteString(formatFloat(f.WRatio))
	}
	if f.HRatio > 0 {
		b.WriteByte(',')
		b.WriteString(formatFloat(f.HRatio))
	}
	return b.String()
}

// FilterText renders one filter in canonical name(args) form.
func FilterText(f Filter) string {
	return f.Name() + "(" + f.Args() + ")"
}

// Filters is the ordered filter list of a command.
type Filters []Filter

func (fs Filters) String() string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = FilterText(f)
	}
	return strings.Join(parts, ":")
}

func (fs Filters) MarshalJSON() ([]byte, error) {
	type entry struct {
		Name string `json:"name"`
		Args string `json:"args,omitempty"`
	}
	out := make([]entry, len(fs))
	for i, f := range fs {
		out[i] = entry{Name: f.Name(), Args: f.Args()}
	}
	return json.Marshal(out)
}

// newFilter builds the typed filter for a parsed name(args) pair. Names match
// with underscores ignored, so max_bytes and maxbytes are the same filter.
func newFilter(name, args string) (Filter, error) {
	switch strings.ReplaceAll(strings.ToLower(name), "_", "") {
	case "backgroundcolor":
		c, ok := ParseColor(args)
		if !ok {
			return nil, fmt.Errorf("background_color: invalid color %q", args)
		}
		return BackgroundColor{Color: c}, nil
	case "blur":
		v, err := parseFloatArg("blur", args)
		if err != nil {
			return nil, err
		}
		return Blur{Sigma: v}, nil
	case "brightness":
		v, err := parseIntArg("brightness", args)
		if err != nil {
			return nil, err
		}
		return Brightness{Amount: v}, nil
	case "contrast":
		v, err := parseIntArg("contrast", args)
		if err != nil {
			return nil, err
		}
		return Contrast{Amount: v}, nil
	case "dpi":
		v, err := parseUintArg("dpi", args)
		if err != nil {
			return nil, err
		}
		return Dpi{Value: v}, nil
	case "fill":
		c, ok := ParseColor(args)
		if !ok {
			return nil, fmt.Errorf("fill: invalid color %q", args)
		}
		return Fill{Color: c}, nil
	case "focal":
		return parseFocal(args)
	case "format":
		t, ok := ParseImageType(args)
		if !ok {
			return nil, fmt.Errorf("format: unknown image type %q", args)
		}
		return Format{Type: t}, nil
	case "grayscale":
		if args != "" {
			return nil, fmt.Errorf("grayscale: unexpected arguments %q", args)
		}
		return Grayscale{}, nil
	case "hue":
		v, err := parseIntArg("hue", args)
		if err != nil {
			return nil, err
		}
		return Hue{Degrees: v}, nil
	case "label":
		return parseLabel(args)
	case "maxbytes":
		v, err := parseUintArg("max_bytes", args)
		if err != nil {
			return nil, err
		}
		return MaxBytes{Limit: v}, nil
	case "maxframes":
		v, err := parseUintArg("max_frames", args)
		if err != nil {
			return nil, err
		}
		return MaxFrames{Limit: v}, nil
	case "modulate":
		parts := splitArgs(args)
		if len(parts) != 3 {
			return nil, fmt.Errorf("modulate: want 3 arguments, got %q", args)
		}
		var vals [3]int
		for i, p := range parts {
			v, err := parseIntArg("modulate", p)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return Modulate{Brightness: vals[0], Saturation: vals[1], Hue: vals[2]}, nil
	case "orient":
		v, err := parseIntArg("orient", args)
		if err != nil {
			return nil, err
		}
		return Orient{Angle: v}, nil
	case "page":
		v, err := parseUintArg("page", args)
		if err != nil {
			return nil, err
		}
		return Page{Number: v}, nil
	case "proportion":
		v, err := parseFloatArg("proportion", args)
		if err != nil {
			return nil, err
		}
		return Proportion{Value: v}, nil
	case "quality":
		v, err := parseUintArg("quality", args)
		if err != nil {
			return nil, err
		}
		if v > 100 {
			return nil, fmt.Errorf("quality: %d out of range", v)
		}
		return Quality{Percent: v}, nil
	case "rgb":
		parts := splitArgs(args)
		if len(parts) != 3 {
			return nil, fmt.Errorf("rgb: want 3 arguments, got %q", args)
		}
		var vals [3]int
		for i, p := range parts {
			v, err := parseIntArg("rgb", p)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
	case "rotate":
		v, err := parseIntArg("rotate", args)
		if err != nil {
			return nil, err
		}
		return Rotate{Angle: v}, nil
	case "roundcorner":
		return parseRoundCorner(args)
	case "saturation":
		v, err := parseIntArg("saturation", args)
		if err != nil {
			return nil, err
		}
		return Saturation{Amount: v}, nil
	case "sharpen":
		v, err := parseFloatArg("sharpen", args)
		if err != nil {
			return nil, err
		}
		return Sharpen{Sigma: v}, nil
	case "stripexif":
		if args != "" {
			return nil, fmt.Errorf("strip_exif: unexpected arguments %q", args)
		}
		return StripEXIF{}, nil
	case "stripicc":
		if args != "" {
			return nil, fmt.Errorf("strip_icc: unexpected arguments %q", args)
		}
		return StripICC{}, nil
	case "stripmetadata":
		if args != "" {
			return nil, fmt.Errorf("strip_metadata: unexpected arguments %q", args)
		}
		return StripMetadata{}, nil
	case "upscale":
		if args != "" {
			return nil, fmt.Errorf("upscale: unexpected arguments %q", args)
		}
		return Upscale{}, nil
	case "watermark":
		return parseWatermark(args)
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

func parseFocal(args string) (Filter, error) {
	region := strings.SplitN(args, ":", 2)
	left, top, err := parseFloatPair(region[0])
	if err != nil {
		return nil, fmt.Errorf("focal: %w", err)
	}
	if len(region) == 1 {
		return Focal{Left: left, Top: top, IsPoint: true}, nil
	}
	right, bottom, err := parseFloatPair(region[1])
	if err != nil {
		return nil, fmt.Errorf("focal: %w", err)
	}
	return Focal{Left: left, Top: top, Right: right, Bottom: bottom}, nil
}

func parseLabel(args string) (Filter, error) {
	parts := splitArgs(args)
	if len(parts) < 5 || len(parts) > 7 {
		return nil, fmt.Errorf("label: want 5 to 7 arguments, got %q", args)
	}
	x, err := parsePosition(parts[1], false)
	if err != nil {
		return nil, fmt.Errorf("label: %w", err)
	}
	y, err := parsePosition(parts[2], false)
	if err != nil {
		return nil, fmt.Errorf("label: %w", err)
	}
	size, err := parseUintArg("label", parts[3])
	if err != nil {
		return nil, err
	}
	color, ok := ParseColor(parts[4])
	if !ok {
		return nil, fmt.Errorf("label: invalid color %q", parts[4])
	}
	l := Label{Text: parts[0], X: x, Y: y, Size: size, Color: color, Alpha: -1}
	if len(parts) > 5 {
		alpha, err := parseUintArg("label", parts[5])
		if err != nil {
			return nil, err
		}
		if alpha > 100 {
			return nil, fmt.Errorf("label: alpha %d out of range", alpha)
		}
		l.Alpha = alpha
	}
	if len(parts) > 6 {
		l.Font = parts[6]
	}
	return l, nil
}

func parseRoundCorner(args string) (Filter, error) {
	parts := splitArgs(args)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("round_corner: missing radius in %q", args)
	}
	rx, err := parseUintArg("round_corner", parts[0])
	if err != nil {
		return nil, err
	}
	rc := RoundCorner{RX: rx}
	rest := parts[1:]
	if len(rest) > 0 {
		if ry, err := strconv.Atoi(rest[0]); err == nil && ry >= 0 {
			rc.RY = ry
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		c, ok := ParseColor(strings.Join(rest, ","))
		if !ok {
			return nil, fmt.Errorf("round_corner: invalid color %q", strings.Join(rest, ","))
		}
		rc.Color = c
	}
	return rc, nil
}

func parseWatermark(args string) (Filter, error) {
	parts := splitArgs(args)
	if len(parts) < 4 || len(parts) > 6 {
		return nil, fmt.Errorf("watermark: want 4 to 6 arguments, got %q", args)
	}
	x, err := parsePosition(parts[1], true)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	y, err := parsePosition(parts[2], true)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	alpha, err := parseUintArg("watermark", parts[3])
	if err != nil {
		return nil, err
	}
	if alpha > 100 {
		return nil, fmt.Errorf("watermark: alpha %d out of range", alpha)
	}
	w := Watermark{Image: parts[0], X: x, Y: y, Alpha: alpha}
	if len(parts) > 4 {
		v, err := parseFloatArg("watermark", parts[4])
		if err != nil {
			return nil, err
		}
		w.WRatio = v
	}
	if len(parts) > 5 {
		v, err := parseFloatArg("watermark", parts[5])
		if err != nil {
			return nil, err
		}
		w.HRatio = v
	}
	return w, nil
}

// splitArgs splits on commas outside parentheses, so nested command paths in
// watermark references survive intact.
func splitArgs(args string) []string {
	if args == "" {
		return nil
	}
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, args[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, args[start:])
}

func parseFloatPair(s string) (a, b float64, err error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid pair %q", s)
	}
	if a, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid pair %q", s)
	}
	if b, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid pair %q", s)
	}
	return a, b, nil
}

func parseIntArg(name, arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, arg)
	}
	return v, nil
}

func parseUintArg(name, arg string) (int, error) {
	v, err := parseIntArg(name, arg)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: negative value %d", name, v)
	}
	return v, nil
}

func parseFloatArg(name, arg string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", name, arg)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
