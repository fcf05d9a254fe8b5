package pixelpath

import (
	"encoding/json"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want Color
		ok   bool
	}{
		{"white", NamedColorOf("white"), true},
		{"RebeccaPurple", NamedColorOf("rebeccapurple"), true},
		{"fff", HexColor("fff"), true},
		{"#1A2B3C", HexColor("1a2b3c"), true},
		{"255,0,128", RGBColor(255, 0, 128), true},
		{"auto", ColorAutoValue, true},
		{"blur", ColorBlurValue, true},
		{"none", ColorNoneValue, true},
		{"transparent", ColorNoneValue, true},
		{"256,0,0", Color{}, false},
		{"1,2", Color{}, false},
		{"ffgg00", Color{}, false},
		{"", Color{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseColor(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseColor(%q): got %+v ok=%v, want %+v ok=%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestColorRGB(t *testing.T) {
	tests := []struct {
		c       Color
		r, g, b uint8
		ok      bool
	}{
		{NamedColorOf("red"), 0xff, 0x00, 0x00, true},
		{NamedColorOf("rebeccapurple"), 0x66, 0x33, 0x99, true},
		{HexColor("fff"), 0xff, 0xff, 0xff, true},
		{HexColor("1a2b3c"), 0x1a, 0x2b, 0x3c, true},
		{RGBColor(1, 2, 3), 1, 2, 3, true},
		{NamedColorOf("nosuchcolor"), 0, 0, 0, false},
		{ColorAutoValue, 0, 0, 0, false},
		{ColorNoneValue, 0, 0, 0, false},
		{Color{}, 0, 0, 0, false},
	}
	for _, tt := range tests {
		r, g, b, ok := tt.c.RGB()
		if r != tt.r || g != tt.g || b != tt.b || ok != tt.ok {
			t.Fatalf("RGB(%+v): got %d,%d,%d ok=%v", tt.c, r, g, b, ok)
		}
	}
}

func TestParseImageType(t *testing.T) {
	if got, ok := ParseImageType("JPG"); !ok || got != ImageTypeJPEG {
		t.Fatalf("jpg alias: got %v ok=%v", got, ok)
	}
	if got, ok := ParseImageType("webp"); !ok || got != ImageTypeWEBP {
		t.Fatalf("webp: got %v ok=%v", got, ok)
	}
	if _, ok := ParseImageType("doc"); ok {
		t.Fatal("doc should not parse as an image type")
	}
}

func TestImageTypeTraits(t *testing.T) {
	if !ImageTypeGIF.Animatable() || !ImageTypeWEBP.Animatable() {
		t.Fatal("gif and webp are animatable")
	}
	if ImageTypePNG.Animatable() {
		t.Fatal("png is not animatable")
	}
	if !ImageTypeJPEG.SupportsQuality() || ImageTypePNG.SupportsQuality() {
		t.Fatal("quality support mismatch")
	}
	if got := ImageTypeAVIF.ContentType(); got != "image/avif" {
		t.Fatalf("avif content type: got %q", got)
	}
	if got := ImageTypeSVG.ContentType(); got != "image/svg+xml" {
		t.Fatalf("svg content type: got %q", got)
	}
}

func TestNewFilterValidation(t *testing.T) {
	bad := []struct {
		name, args string
	}{
		{"quality", "101"},
		{"quality", "-1"},
		{"brightness", "1.5"},
		{"rgb", "10,20"},
		{"watermark", "img.png"},
		{"watermark", "img.png,10,10,150"},
		{"label", "hi,0,0"},
		{"label", "hi,0,0,16,nosuchcolor"},
		{"round_corner", ""},
		{"focal", "axb"},
		{"modulate", "1,2"},
		{"max_bytes", "-5"},
		{"format", "exe"},
		{"fill", "notacolor"},
		{"mystery", "1"},
	}
	for _, tt := range bad {
		if _, err := newFilter(tt.name, tt.args); err == nil {
			t.Fatalf("newFilter(%q, %q) should fail", tt.name, tt.args)
		}
	}

	good := []struct {
		name, args string
		want       Filter
	}{
		{"quality", "0", Quality{Percent: 0}},
		{"quality", "100", Quality{Percent: 100}},
		{"brightness", "-100", Brightness{Amount: -100}},
		{"watermark", "m.png,repeat,bottom,0", Watermark{
			Image: "m.png",
			X:     Position{Kind: PositionRepeat},
			Y:     Position{Kind: PositionBottom},
		}},
		{"watermark", "m.png,10p,-20,50,0.5,0.25", Watermark{
			Image:  "m.png",
			X:      Position{Kind: PositionPercent, Value: 10},
			Y:      Position{Kind: PositionPixels, Value: -20},
			Alpha:  50,
			WRatio: 0.5,
			HRatio: 0.25,
		}},
		{"label", "hi,center,top,16,fff", Label{
			Text:  "hi",
			X:     Position{Kind: PositionCenter},
			Y:     Position{Kind: PositionTop},
			Size:  16,
			Color: HexColor("fff"),
			Alpha: -1,
		}},
		{"round_corner", "20,40,255,0,0", RoundCorner{RX: 20, RY: 40, Color: RGBColor(255, 0, 0)}},
		{"focal", "0.1x0.2:0.9x0.8", Focal{Left: 0.1, Top: 0.2, Right: 0.9, Bottom: 0.8}},
		{"focal", "300x200", Focal{Left: 300, Top: 200, IsPoint: true}},
		{"proportion", "0.5", Proportion{Value: 0.5}},
	}
	for _, tt := range good {
		got, err := newFilter(tt.name, tt.args)
		if err != nil {
			t.Fatalf("newFilter(%q, %q): %v", tt.name, tt.args, err)
		}
		if got != tt.want {
			t.Fatalf("newFilter(%q, %q): got %#v, want %#v", tt.name, tt.args, got, tt.want)
		}
	}
}

func TestFiltersMarshalJSON(t *testing.T) {
	fs := Filters{Blur{Sigma: 2}, Grayscale{}, Format{Type: ImageTypeWEBP}}
	b, err := json.Marshal(fs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"name":"blur","args":"2"},{"name":"grayscale"},{"name":"format","args":"webp"}]`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestFiltersString(t *testing.T) {
	fs := Filters{
		RoundCorner{RX: 20},
		Watermark{Image: "m.png", X: Position{Kind: PositionLeft}, Y: Position{Kind: PositionTop}, Alpha: 30},
		StripMetadata{},
	}
	want := "round_corner(20):watermark(m.png,left,top,30):strip_metadata()"
	if got := fs.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
