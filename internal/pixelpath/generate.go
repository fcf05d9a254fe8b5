package pixelpath

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GeneratePath renders the canonical path of a command, without a signature
// or unsafe prefix. It is the inverse of Parse for every command Parse can
// produce: the rendered segments reparse to an equal command.
func GeneratePath(c Command) string {
	var parts []string
	if c.Meta {
		parts = append(parts, "meta")
	}
	if c.Trim {
		seg := "trim"
		if c.TrimBy == TrimByBottomRight {
			seg += ":bottom-right"
		}
		if c.TrimTolerance > 0 {
			seg += ":" + formatFloat(c.TrimTolerance)
		}
		parts = append(parts, seg)
	}
	if c.HasCrop() {
		parts = append(parts, fmt.Sprintf("%sx%s:%sx%s",
			formatFloat(c.CropLeft), formatFloat(c.CropTop),
			formatFloat(c.CropRight), formatFloat(c.CropBottom)))
	}
	switch c.Fit {
	case FitIn:
		parts = append(parts, "fit-in")
	case FitStretch:
		parts = append(parts, "stretch")
	}
	// The size segment also anchors padding: without it a leading padding
	// pair would reparse as a crop or size segment.
	if c.HFlip || c.Width != 0 || c.VFlip || c.Height != 0 || c.HasPadding() {
		var seg strings.Builder
		if c.HFlip {
			seg.WriteByte('-')
		}
		seg.WriteString(strconv.Itoa(c.Width))
		seg.WriteByte('x')
		if c.VFlip {
			seg.WriteByte('-')
		}
		seg.WriteString(strconv.Itoa(c.Height))
		parts = append(parts, seg.String())
	}
	if c.HasPadding() {
		if c.PaddingLeft == c.PaddingRight && c.PaddingTop == c.PaddingBottom {
			parts = append(parts, fmt.Sprintf("%dx%d", c.PaddingLeft, c.PaddingTop))
		} else {
			parts = append(parts, fmt.Sprintf("%dx%d:%dx%d",
				c.PaddingLeft, c.PaddingTop, c.PaddingRight, c.PaddingBottom))
		}
	}
	if c.HAlign != "" {
		parts = append(parts, string(c.HAlign))
	}
	if c.VAlign != "" {
		parts = append(parts, string(c.VAlign))
	}
	if c.Smart {
		parts = append(parts, "smart")
	}
	if len(c.Filters) > 0 {
		parts = append(parts, "filters:"+c.Filters.String())
	}
	image := c.Image
	if shouldEscapeImage(image) {
		image = url.QueryEscape(image)
	}
	parts = append(parts, image)
	return strings.Join(parts, "/")
}

// Generate renders the full request path: the unsafe prefix when the command
// carries it, a signature otherwise.
func Generate(c Command, signer Signer) string {
	path := GeneratePath(c)
	if c.Unsafe {
		return "unsafe/" + path
	}
	if signer == nil {
		return path
	}
	return signer.Sign(path) + "/" + path
}

var misparsePrefixes = []string{
	"trim/", "meta/", "fit-in/", "stretch/",
	"top/", "bottom/", "middle/", "left/", "right/", "center/", "smart/",
}

// shouldEscapeImage reports whether a raw image reference must be escaped to
// survive reparsing, because it opens with a grammar keyword or carries a
// query string.
func shouldEscapeImage(image string) bool {
	if strings.Contains(image, "?") {
		return true
	}
	for _, prefix := range misparsePrefixes {
		if strings.HasPrefix(image, prefix) {
			return true
		}
	}
	return false
}
