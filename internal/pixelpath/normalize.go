package pixelpath

import "strings"

// SafeChars is the normalization policy for storage keys. The zero value is
// the default policy.
type SafeChars struct {
	noop  bool
	extra string
}

// NewSafeChars builds a policy from its config spelling: empty for the
// default set, "--" to disable escaping, anything else adds its bytes to the
// default set.
func NewSafeChars(spec string) SafeChars {
	if spec == "--" {
		return SafeChars{noop: true}
	}
	return SafeChars{extra: spec}
}

var lineBreakCleaner = strings.NewReplacer(
	"\r\n", "",
	"\r", "",
	"\n", "",
	"\x0b", "",
	"\x0c", "",
	"\u0085", "",
	"\u2028", "",
	"\u2029", "",
)

const upperhex = "0123456789ABCDEF"

// Normalize produces the storage key form of an image reference: line and
// paragraph break bytes removed, surrounding slashes trimmed, unsafe bytes
// percent-escaped with space as +. Already escaped %XX triplets and + pass
// through, which keeps Normalize idempotent.
func Normalize(image string, safe SafeChars) string {
	image = lineBreakCleaner.Replace(image)
	image = strings.Trim(image, "/")
	if safe.noop {
		return image
	}
	var b strings.Builder
	b.Grow(len(image))
	for i := 0; i < len(image); i++ {
		c := image[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case safe.pass(c):
			b.WriteByte(c)
		case c == '%' && i+2 < len(image) && isUpperHex(image[i+1]) && isUpperHex(image[i+2]):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
		}
	}
	return b.String()
}

func (s SafeChars) pass(c byte) bool {
	if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' {
		return true
	}
	switch c {
	case '/', '-', '_', '.', '~', '+':
		return true
	}
	return strings.IndexByte(s.extra, c) >= 0
}

func isUpperHex(c byte) bool {
	return '0' <= c && c <= '9' || 'A' <= c && c <= 'F'
}
