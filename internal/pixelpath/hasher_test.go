package pixelpath

import (
	"strings"
	"testing"
)

func TestDigestKey(t *testing.T) {
	c := mustParse(t, "fit-in/16x17/foobar")
	want := "d5/c2/804e5d81c475bee50f731db17ee613f43262"
	if got := DigestKey(c); got != want {
		t.Fatalf("DigestKey: got %q, want %q", got, want)
	}

	// A command built by hand hashes its canonical rendering.
	if got := DigestKey(clearPath(c)); got != want {
		t.Fatalf("DigestKey without raw path: got %q, want %q", got, want)
	}
}

func TestDigestLayout(t *testing.T) {
	got := Digest("example.com/foobar")
	if len(got) != 42 || got[2] != '/' || got[5] != '/' {
		t.Fatalf("unexpected digest layout %q", got)
	}
	if strings.ToLower(got) != got {
		t.Fatalf("digest should be lowercase hex, got %q", got)
	}
}

func TestSuffixKeyVectors(t *testing.T) {
	tests := []struct {
		path   string
		suffix string
		sized  string
	}{
		{
			path:   "fit-in/16x17/foobar",
			suffix: "foobar.d5c2804e5d81c475bee5",
			sized:  "foobar.d5c2804e5d81c475bee5_16x17",
		},
		{
			path:   "166x169/top/foobar.jpg",
			suffix: "foobar.45d8ebb31bd4ed80c26e.jpg",
			sized:  "foobar.45d8ebb31bd4ed80c26e_166x169.jpg",
		},
		{
			path:   "17x19/smart/example.com/foobar",
			suffix: "example.com/foobar.ddd349e092cda6d9c729",
			sized:  "example.com/foobar.ddd349e092cda6d9c729_17x19",
		},
		{
			path:   "smart/example.com/foobar",
			suffix: "example.com/foobar.afa3503c0d76bc49eccd",
			sized:  "example.com/foobar.afa3503c0d76bc49eccd",
		},
		{
			path:   "17x19/smart/filters:format(webp)/example.com/foobar.jpg",
			suffix: "example.com/foobar.8aade9060badfcb289f9.webp",
			sized:  "example.com/foobar.8aade9060badfcb289f9_17x19.webp",
		},
		{
			path:   "meta/17x19/smart/example.com/foobar.jpg",
			suffix: "example.com/foobar.d72ff6ef20ba41fa570c.json",
			sized:  "example.com/foobar.d72ff6ef20ba41fa570c_17x19.json",
		},
		{
			path:   "meta/17x19/smart/filters:format(webp)/example.com/foobar.jpg",
			suffix: "example.com/foobar.c80ab0faf85b35a140a8.json",
			sized:  "example.com/foobar.c80ab0faf85b35a140a8_17x19.json",
		},
		{
			// No extension to splice ahead of, so the format filter changes
			// nothing about the key shape.
			path:   "filters:format(webp)/example.com/foobar",
			suffix: "example.com/foobar.38c5d9c9f4ca7aefac53",
			sized:  "example.com/foobar.38c5d9c9f4ca7aefac53",
		},
	}

	for _, tt := range tests {
		c := mustParse(t, tt.path)
		if got := SuffixKey(c); got != tt.suffix {
			t.Fatalf("SuffixKey(%q): got %q, want %q", tt.path, got, tt.suffix)
		}
		if got := SizeSuffixKey(c); got != tt.sized {
			t.Fatalf("SizeSuffixKey(%q): got %q, want %q", tt.path, got, tt.sized)
		}
	}
}

func TestResultKeyStyles(t *testing.T) {
	c := mustParse(t, "fit-in/16x17/foobar")
	if got := ResultKey(c, KeyStyleDigest); got != DigestKey(c) {
		t.Fatalf("digest style: got %q", got)
	}
	if got := ResultKey(c, KeyStyleSuffix); got != SuffixKey(c) {
		t.Fatalf("suffix style: got %q", got)
	}
	if got := ResultKey(c, KeyStyleSizeSuffix); got != SizeSuffixKey(c) {
		t.Fatalf("size-suffix style: got %q", got)
	}
	if got := ResultKey(c, KeyStyle("bogus")); got != DigestKey(c) {
		t.Fatalf("unknown style should fall back to digest, got %q", got)
	}
}
