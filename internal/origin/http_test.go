package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchReturnsBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	h := NewHTTP(Config{})
	data, err := h.Fetch(context.Background(), srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "image bytes" {
		t.Fatalf("expected body bytes, got %q", data)
	}
	if gotUA != "pixelgate" {
		t.Fatalf("expected default user agent, got %q", gotUA)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := NewHTTP(Config{})
	if _, err := h.Fetch(context.Background(), srv.URL+"/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(Config{})
	_, err := h.Fetch(context.Background(), srv.URL+"/img.png")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "status=500") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestFetchRejectsScheme(t *testing.T) {
	h := NewHTTP(Config{})
	if _, err := h.Fetch(context.Background(), "ftp://host/img.png"); err == nil {
		t.Fatal("expected scheme rejection")
	}

	custom := NewHTTP(Config{Schemes: []string{"https"}})
	if _, err := custom.Fetch(context.Background(), "http://host/img.png"); err == nil {
		t.Fatal("expected http to be rejected by an https-only allow-list")
	}
}

func TestFetchRejectsRelativeRef(t *testing.T) {
	h := NewHTTP(Config{})
	if _, err := h.Fetch(context.Background(), "some/relative/path.png"); err == nil {
		t.Fatal("expected rejection of a ref with no host")
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	h := NewHTTP(Config{MaxBodyBytes: 1024})
	if _, err := h.Fetch(context.Background(), srv.URL+"/big.png"); err == nil {
		t.Fatal("expected body limit rejection")
	}
}
