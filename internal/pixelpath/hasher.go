package pixelpath

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyStyle selects how result storage keys are derived from a command.
type KeyStyle string

const (
	KeyStyleDigest     KeyStyle = "digest"
	KeyStyleSuffix     KeyStyle = "suffix"
	KeyStyleSizeSuffix KeyStyle = "size-suffix"
)

// Digest returns the sharded hex sha1 of s in aa/bb/rest layout, the form
// used for source image keys.
func Digest(s string) string {
	sum := sha1.Sum([]byte(s))
	h := hex.EncodeToString(sum[:])
	return h[:2] + "/" + h[2:4] + "/" + h[4:]
}

// DigestKey returns the digest style result key of a command.
func DigestKey(c Command) string {
	return Digest(rawPath(c))
}

// SuffixKey keeps the image reference readable and splices a ten byte sha1
// marker ahead of the extension. Meta requests take .json and a format
// filter replaces the source extension; an image without an extension gets
// the bare marker appended.
func SuffixKey(c Command) string {
	return suffixKey(c, false)
}

// SizeSuffixKey is SuffixKey with _WxH appended to the marker when either
// target dimension is set.
func SizeSuffixKey(c Command) string {
	return suffixKey(c, true)
}

// ResultKey derives the result storage key in the given style, defaulting to
// the digest layout for unknown styles.
func ResultKey(c Command, style KeyStyle) string {
	switch style {
	case KeyStyleSuffix:
		return SuffixKey(c)
	case KeyStyleSizeSuffix:
		return SizeSuffixKey(c)
	}
	return DigestKey(c)
}

// rawPath is the hash input: the exact matched path when the command came
// from Parse, its canonical rendering otherwise.
func rawPath(c Command) string {
	if c.Path != "" {
		return c.Path
	}
	return GeneratePath(c)
}

func suffixKey(c Command, sized bool) string {
	sum := sha1.Sum([]byte(rawPath(c)))
	marker := "." + hex.EncodeToString(sum[:10])
	if sized && (c.Width != 0 || c.Height != 0) {
		marker = fmt.Sprintf("%s_%dx%d", marker, c.Width, c.Height)
	}
	image := c.Image
	dot := strings.LastIndexByte(image, '.')
	slash := strings.LastIndexByte(image, '/')
	if dot > slash {
		ext := image[dot:]
		if c.Meta {
			ext = ".json"
		} else if t, ok := c.FindFormat(); ok {
			ext = "." + t.String()
		}
		return image[:dot] + marker + ext
	}
	return image + marker
}
