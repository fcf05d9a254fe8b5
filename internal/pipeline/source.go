package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jonaylor89/pixelgate/internal/engine"
	"github.com/jonaylor89/pixelgate/internal/origin"
	"github.com/jonaylor89/pixelgate/internal/pixelpath"
	"github.com/jonaylor89/pixelgate/internal/storage"
)

// ErrUpstream marks a remote origin failure that was not a missing source.
var ErrUpstream = errors.New("upstream fetch failed")

// SourceFetcher resolves a command's image reference to raw bytes.
// Absolute http(s) references go to the remote origin, everything else is
// looked up in source storage. It satisfies the engine's origin interface.
type SourceFetcher struct {
	origin    *origin.HTTP
	store     storage.Store
	safeChars pixelpath.SafeChars
	mirror    bool
	logger    *log.Logger
}

// NewSourceFetcher wires the two source backends. Either may be nil, in
// which case references of that kind report a missing source. With mirror
// set, remote fetches are copied into source storage keyed by URL digest
// and served from there on repeat requests.
func NewSourceFetcher(remote *origin.HTTP, store storage.Store, safeChars string, mirror bool, logger *log.Logger) *SourceFetcher {
	if logger == nil {
		logger = log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lmsgprefix)
	}
	return &SourceFetcher{
		origin:    remote,
		store:     store,
		safeChars: pixelpath.NewSafeChars(safeChars),
		mirror:    mirror && store != nil,
		logger:    logger,
	}
}

func (f *SourceFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if url, ok := httpRef(ref); ok {
		return f.fetchRemote(ctx, url)
	}
	return f.fetchStored(ctx, ref)
}

func (f *SourceFetcher) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	if f.origin == nil {
		return nil, fmt.Errorf("%w: remote source loading is disabled", origin.ErrNotFound)
	}

	mirrorKey := pixelpath.Digest(url)
	if f.mirror {
		if blob, err := f.store.Get(ctx, mirrorKey); err == nil {
			return blob.Data, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			f.logger.Printf("mirror get failed key=%s err=%v", mirrorKey, err)
		}
	}

	data, err := f.origin.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if f.mirror {
		blob := storage.Blob{Data: data, ContentType: engine.SniffContentType(data)}
		if err := f.store.Put(ctx, mirrorKey, blob); err != nil {
			f.logger.Printf("mirror put failed key=%s err=%v", mirrorKey, err)
		}
	}
	return data, nil
}

func (f *SourceFetcher) fetchStored(ctx context.Context, ref string) ([]byte, error) {
	if f.store == nil {
		return nil, fmt.Errorf("%w: source storage is disabled", storage.ErrNotFound)
	}
	blob, err := f.store.Get(ctx, pixelpath.Normalize(ref, f.safeChars))
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// httpRef reports whether ref is an absolute http(s) URL and returns its
// canonical form. Routers clean request paths before matching, collapsing
// the double slash after the scheme, so the single-slash form is accepted
// and repaired here.
func httpRef(ref string) (string, bool) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, true
	}
	if rest, ok := strings.CutPrefix(ref, "https:/"); ok {
		return "https://" + rest, true
	}
	if rest, ok := strings.CutPrefix(ref, "http:/"); ok {
		return "http://" + rest, true
	}
	return "", false
}
