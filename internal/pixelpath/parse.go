package pixelpath

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a path that cannot be a valid command. Segments that
// merely fail to match roll back into the image reference instead; only
// structural faults inside a committed segment surface here.
type ParseError struct {
	Segment string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Segment, e.Reason)
}

const (
	minSignatureLen = 24
	maxSignatureLen = 88
)

// Parse parses a request path into a Command. Segments are matched in grammar
// order with longest-valid-prefix discipline; anything unconsumed becomes the
// image reference verbatim.
func Parse(path string) (Command, error) {
	var c Command
	p := &parser{rest: strings.TrimPrefix(path, "/")}

	if p.token("params/") {
		c.Debug = true
	}
	if p.token("unsafe/") {
		c.Unsafe = true
	} else if sig, ok := p.signature(); ok {
		c.Signature = sig
	}
	c.Path = p.rest

	if p.token("meta/") {
		c.Meta = true
	}
	p.trim(&c)
	p.crop(&c)
	if p.token("fit-in/") {
		c.Fit = FitIn
		p.token("stretch/")
	} else if p.token("stretch/") {
		c.Fit = FitStretch
	}
	p.size(&c)
	p.padding(&c)
	switch {
	case p.token("left/"):
		c.HAlign = HAlignLeft
	case p.token("right/"):
		c.HAlign = HAlignRight
	case p.token("center/"):
		c.HAlign = HAlignCenter
	}
	switch {
	case p.token("top/"):
		c.VAlign = VAlignTop
	case p.token("bottom/"):
		c.VAlign = VAlignBottom
	case p.token("middle/"):
		c.VAlign = VAlignMiddle
	}
	if p.token("smart/") {
		c.Smart = true
	}
	if err := p.filters(&c); err != nil {
		return Command{}, err
	}
	c.Image = p.rest
	return c, nil
}

type parser struct {
	rest string
}

func (p *parser) token(tok string) bool {
	if strings.HasPrefix(p.rest, tok) {
		p.rest = p.rest[len(tok):]
		return true
	}
	return false
}

// signature matches a first segment that can only be a signature: charset
// [A-Za-z0-9_=-], 24 to 88 bytes, followed by more path.
func (p *parser) signature() (string, bool) {
	i := strings.IndexByte(p.rest, '/')
	if i < minSignatureLen || i > maxSignatureLen {
		return "", false
	}
	seg := p.rest[:i]
	for j := 0; j < len(seg); j++ {
		c := seg[j]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
			c == '-' || c == '_' || c == '=') {
			return "", false
		}
	}
	p.rest = p.rest[i+1:]
	return seg, true
}

func (p *parser) trim(c *Command) {
	save := p.rest
	if !p.token("trim") {
		return
	}
	var by TrimBy
	if p.token(":top-left") {
		// default corner, kept out of the canonical form
	} else if p.token(":bottom-right") {
		by = TrimByBottomRight
	}
	var tolerance float64
	if strings.HasPrefix(p.rest, ":") {
		n := digitRun(p.rest[1:])
		if n == 0 {
			p.rest = save
			return
		}
		v, _ := strconv.Atoi(p.rest[1 : 1+n])
		p.rest = p.rest[1+n:]
		tolerance = float64(v)
	}
	if !p.token("/") {
		p.rest = save
		return
	}
	c.Trim = true
	c.TrimBy = by
	c.TrimTolerance = tolerance
}

func (p *parser) crop(c *Command) {
	save := p.rest
	l, ok := p.number()
	if !ok || !p.token("x") {
		p.rest = save
		return
	}
	t, ok := p.number()
	if !ok || !p.token(":") {
		p.rest = save
		return
	}
	r, ok := p.number()
	if !ok || !p.token("x") {
		p.rest = save
		return
	}
	b, ok := p.number()
	if !ok || !p.token("/") {
		p.rest = save
		return
	}
	c.CropLeft, c.CropTop, c.CropRight, c.CropBottom = l, t, r, b
}

func (p *parser) size(c *Command) {
	save := p.rest
	hflip := p.token("-")
	w := p.digits()
	if !p.token("x") {
		p.rest = save
		return
	}
	vflip := p.token("-")
	h := p.digits()
	if !p.token("/") {
		p.rest = save
		return
	}
	c.HFlip = hflip
	c.VFlip = vflip
	c.Width = w
	c.Height = h
}

func (p *parser) padding(c *Command) {
	save := p.rest
	l, ok := p.digitsStrict()
	if !ok || !p.token("x") {
		p.rest = save
		return
	}
	t, ok := p.digitsStrict()
	if !ok {
		p.rest = save
		return
	}
	if p.token(":") {
		r, ok := p.digitsStrict()
		if !ok || !p.token("x") {
			p.rest = save
			return
		}
		b, ok := p.digitsStrict()
		if !ok || !p.token("/") {
			p.rest = save
			return
		}
		c.PaddingLeft, c.PaddingTop, c.PaddingRight, c.PaddingBottom = l, t, r, b
		return
	}
	if !p.token("/") {
		p.rest = save
		return
	}
	c.PaddingLeft, c.PaddingTop, c.PaddingRight, c.PaddingBottom = l, t, l, t
}

// filters commits once the filters: prefix is seen; malformed filter text or
// an unknown filter name inside the segment is a parse error rather than a
// fallthrough into the image reference.
func (p *parser) filters(c *Command) error {
	if !p.token("filters:") {
		return nil
	}
	for {
		if p.token("/") || p.rest == "" {
			return nil
		}
		name := p.ident()
		if name == "" {
			return &ParseError{Segment: "filters", Reason: fmt.Sprintf("expected filter name at %q", p.rest)}
		}
		args := ""
		if p.token("(") {
			var ok bool
			args, ok = p.balanced()
			if !ok {
				return &ParseError{Segment: "filters", Reason: fmt.Sprintf("unclosed parenthesis in %s", name)}
			}
		}
		f, err := newFilter(name, args)
		if err != nil {
			return &ParseError{Segment: "filters", Reason: err.Error()}
		}
		c.Filters = append(c.Filters, f)
		if p.token(":") {
			continue
		}
		if p.token("/") || p.rest == "" {
			return nil
		}
		return &ParseError{Segment: "filters", Reason: fmt.Sprintf("unexpected text %q", p.rest)}
	}
}

func (p *parser) ident() string {
	i := 0
	for i < len(p.rest) {
		c := p.rest[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '_' {
			i++
			continue
		}
		break
	}
	name := p.rest[:i]
	p.rest = p.rest[i:]
	return name
}

// balanced consumes up to the parenthesis matching an already consumed open
// one, skipping backslash-escaped bytes.
func (p *parser) balanced() (string, bool) {
	depth := 1
	for i := 0; i < len(p.rest); i++ {
		switch p.rest[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				args := p.rest[:i]
				p.rest = p.rest[i+1:]
				return args, true
			}
		}
	}
	return "", false
}

// digits consumes a leading digit run, returning zero when there is none.
func (p *parser) digits() int {
	n := digitRun(p.rest)
	if n == 0 {
		return 0
	}
	v, _ := strconv.Atoi(p.rest[:n])
	p.rest = p.rest[n:]
	return v
}

func (p *parser) digitsStrict() (int, bool) {
	n := digitRun(p.rest)
	if n == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(p.rest[:n])
	if err != nil {
		return 0, false
	}
	p.rest = p.rest[n:]
	return v, true
}

// number consumes a non-negative decimal, requiring digits on both sides of
// any fraction point.
func (p *parser) number() (float64, bool) {
	i := digitRun(p.rest)
	if i == 0 {
		return 0, false
	}
	if i < len(p.rest) && p.rest[i] == '.' {
		j := i + 1 + digitRun(p.rest[i+1:])
		if j > i+1 {
			i = j
		}
	}
	v, err := strconv.ParseFloat(p.rest[:i], 64)
	if err != nil {
		return 0, false
	}
	p.rest = p.rest[i:]
	return v, true
}

func digitRun(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}
