package ift

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/npillmayer/ift/iftmap"
)

// Fetcher retrieves a patch file by URI. Implementations decide what a URI
// means: an HTTP client, a directory of pre-fetched files, an in-memory
// table for tests. A session calls Fetch from multiple goroutines at once,
// implementations must tolerate that.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// TemplateExpander derives a patch URI from the map's URI template and an
// entry id.
type TemplateExpander interface {
	Expand(template string, id uint32) (string, error)
}

// DirFetcher resolves patch URIs against a local directory: the expanded
// URI is the path of the patch file relative to Dir. It serves pre-fetched
// or locally generated patch sets and stands in for the network transport
// of a production deployment.
type DirFetcher struct {
	Dir string
}

// Fetch reads the patch file the URI names. URIs reaching outside Dir are
// rejected.
func (df *DirFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(uri)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("patch URI %q escapes the patch directory", uri)
	}
	return os.ReadFile(filepath.Join(df.Dir, rel))
}

// idExpander is the default TemplateExpander, iftmap's "{id}" placeholder
// substitution.
type idExpander struct{}

func (idExpander) Expand(template string, id uint32) (string, error) {
	return iftmap.ExpandURITemplate(template, id)
}

// fetchAll retrieves one patch per URI, all concurrently, and returns the
// raw patches in argument order. The first failure cancels the outstanding
// fetches; when several fetches fail, the error of the earliest URI wins,
// which keeps failure reporting deterministic.
func fetchAll(ctx context.Context, f Fetcher, uris []string) ([][]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	raws := make([][]byte, len(uris))
	errs := make([]error, len(uris))
	var wg sync.WaitGroup
	for i := range uris {
		wg.Add(1)
		go func(i int, uri string) {
			defer wg.Done()
			raw, err := f.Fetch(ctx, uri)
			if err != nil {
				errs[i] = &FetchError{URI: uri, Err: err}
				cancel()
				return
			}
			raws[i] = raw
		}(i, uris[i])
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return raws, nil
}
