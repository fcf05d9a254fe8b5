package pixelpath

import "testing"

func TestNormalize(t *testing.T) {
	safe := NewSafeChars("")
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/foo.jpg", "https%3A//example.com/foo.jpg"},
		{"/some/path/img.jpg/", "some/path/img.jpg"},
		{"a b.jpg", "a+b.jpg"},
		{"a(1).jpg", "a%281%29.jpg"},
		{"100%.jpg", "100%25.jpg"},
		{"already%2Fescaped.jpg", "already%2Fescaped.jpg"},
		{"世界.jpg", "%E4%B8%96%E7%95%8C.jpg"},
		{"line\r\nbreak.jpg", "linebreak.jpg"},
		{"tab\x0bfeed\x0c.jpg", "tabfeed.jpg"},
		{"keep_-.~+/ok.png", "keep_-.~+/ok.png"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in, safe); got != tt.want {
			t.Fatalf("Normalize(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	safe := NewSafeChars("")
	inputs := []string{
		"a b (c).jpg",
		"100%.jpg",
		"https://example.com/some photo.jpg",
		"世界.jpg",
	}
	for _, in := range inputs {
		once := Normalize(in, safe)
		if twice := Normalize(once, safe); twice != once {
			t.Fatalf("Normalize(%q) not idempotent: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeCustomSafeChars(t *testing.T) {
	safe := NewSafeChars("()")
	if got := Normalize("a(1).jpg", safe); got != "a(1).jpg" {
		t.Fatalf("custom safe chars: got %q", got)
	}
	// Characters outside the extra set still escape.
	if got := Normalize("a|b.jpg", safe); got != "a%7Cb.jpg" {
		t.Fatalf("custom safe chars: got %q", got)
	}
}

func TestNormalizeNoop(t *testing.T) {
	safe := NewSafeChars("--")
	if got := Normalize("/a b|c.jpg/", safe); got != "a b|c.jpg" {
		t.Fatalf("noop should only clean and trim, got %q", got)
	}
	if got := Normalize("line\nbreak.jpg", safe); got != "linebreak.jpg" {
		t.Fatalf("noop should still drop line breaks, got %q", got)
	}
}
