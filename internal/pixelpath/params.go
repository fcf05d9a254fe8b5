// Package pixelpath implements the URL path DSL that drives pixelgate: the
// grammar parser, the canonical generator, the cache key hashers, storage key
// normalization and the request signer.
package pixelpath

// TrimBy selects the corner whose pixel seeds the trim background color.
type TrimBy string

const (
	TrimByTopLeft     TrimBy = "top-left"
	TrimByBottomRight TrimBy = "bottom-right"
)

// Fit selects the resize mode. The zero value is the exact crop-resize mode.
type Fit string

const (
	FitNone    Fit = ""
	FitIn      Fit = "fit-in"
	FitStretch Fit = "stretch"
)

type HAlign string

const (
	HAlignLeft   HAlign = "left"
	HAlignRight  HAlign = "right"
	HAlignCenter HAlign = "center"
)

type VAlign string

const (
	VAlignTop    VAlign = "top"
	VAlignBottom VAlign = "bottom"
	VAlignMiddle VAlign = "middle"
)

// Command is the parsed form of a request path. Path holds the exact matched
// substring after the signature segment; hashers and signature verification
// run over it so keys and signatures stay consistent with what the client
// sent. Width and Height are stored as magnitudes with the flip flags split
// out; zero means the dimension was not given.
type Command struct {
	Debug         bool    `json:"-"`
	Path          string  `json:"path,omitempty"`
	Image         string  `json:"image,omitempty"`
	Unsafe        bool    `json:"unsafe,omitempty"`
	Signature     string  `json:"signature,omitempty"`
	Meta          bool    `json:"meta,omitempty"`
	Trim          bool    `json:"trim,omitempty"`
	TrimBy        TrimBy  `json:"trim_by,omitempty"`
	TrimTolerance float64 `json:"trim_tolerance,omitempty"`
	CropLeft      float64 `json:"crop_left,omitempty"`
	CropTop       float64 `json:"crop_top,omitempty"`
	CropRight     float64 `json:"crop_right,omitempty"`
	CropBottom    float64 `json:"crop_bottom,omitempty"`
	Fit           Fit     `json:"fit,omitempty"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	PaddingLeft   int     `json:"padding_left,omitempty"`
	PaddingTop    int     `json:"padding_top,omitempty"`
	PaddingRight  int     `json:"padding_right,omitempty"`
	PaddingBottom int     `json:"padding_bottom,omitempty"`
	HFlip         bool    `json:"h_flip,omitempty"`
	VFlip         bool    `json:"v_flip,omitempty"`
	HAlign        HAlign  `json:"h_align,omitempty"`
	VAlign        VAlign  `json:"v_align,omitempty"`
	Smart         bool    `json:"smart,omitempty"`
	Filters       Filters `json:"filters,omitempty"`
}

// HasCrop reports whether a manual crop window was given.
func (c Command) HasCrop() bool {
	return c.CropLeft > 0 || c.CropTop > 0 || c.CropRight > 0 || c.CropBottom > 0
}

// HasPadding reports whether any padding was given.
func (c Command) HasPadding() bool {
	return c.PaddingLeft > 0 || c.PaddingTop > 0 || c.PaddingRight > 0 || c.PaddingBottom > 0
}

// FindFormat returns the output format requested through a format filter.
func (c Command) FindFormat() (ImageType, bool) {
	for _, f := range c.Filters {
		if fm, ok := f.(Format); ok {
			return fm.Type, true
		}
	}
	return "", false
}

// FindQuality returns the percentage of the first quality filter.
func (c Command) FindQuality() (int, bool) {
	for _, f := range c.Filters {
		if q, ok := f.(Quality); ok {
			return q.Percent, true
		}
	}
	return 0, false
}
