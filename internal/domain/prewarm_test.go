package domain

import (
	"strings"
	"testing"
)

func TestPrewarmRequestValidate(t *testing.T) {
	valid := PrewarmRequest{
		Paths: []string{"unsafe/300x200/img.jpg", "unsafe/filters:grayscale():img.jpg"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	empty := PrewarmRequest{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	blankEntry := PrewarmRequest{Paths: []string{"unsafe/img.jpg", "   "}}
	if err := blankEntry.Validate(); err == nil {
		t.Fatal("expected validation error for a blank path entry")
	}

	tooMany := PrewarmRequest{Paths: make([]string, MaxPrewarmPaths+1)}
	for i := range tooMany.Paths {
		tooMany.Paths[i] = "unsafe/img.jpg"
	}
	err := tooMany.Validate()
	if err == nil {
		t.Fatal("expected validation error for an oversized request")
	}
	if !strings.Contains(err.Error(), "at most") {
		t.Fatalf("expected entry cap in error, got %v", err)
	}
}
