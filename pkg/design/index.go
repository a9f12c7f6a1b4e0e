package design

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/logging"
	"github.com/utiliqc/spanqc/pkg/spantype"
)

// ExtractSCID derives the pole id from a design filename:
// "001_Ocalc.pplx" -> "001". Filenames without an underscore fall back to
// the whole stem.
func ExtractSCID(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if i := strings.IndexByte(stem, '_'); i > 0 {
		return stem[:i]
	}
	return stem
}

// Index maps base pole ids to design files in one directory and caches
// parse results across the wire-spec and reconciliation passes. A file that
// fails to parse is cached as absent: the pole simply has no design data.
type Index struct {
	paths map[string]string // base pole id -> file path, first file wins

	mu    sync.RWMutex
	files map[string]*File // nil entry records a parse failure
	spans map[string][]Span
	conds map[string]map[spantype.Type][]Conductor
}

// NewIndex scans dir for .pplx files. The directory listing is sorted, so
// duplicate pole ids resolve to the same file on every run.
func NewIndex(dir string) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapIO("read", dir, err)
	}

	ix := &Index{
		paths: make(map[string]string),
		files: make(map[string]*File),
		spans: make(map[string][]Span),
		conds: make(map[string]map[spantype.Type][]Conductor),
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pplx") {
			continue
		}
		id := spantype.BaseID(ExtractSCID(e.Name()))
		if id == "" {
			continue
		}
		if _, ok := ix.paths[id]; !ok {
			ix.paths[id] = filepath.Join(dir, e.Name())
		}
	}
	return ix, nil
}

// Len returns the number of indexed poles.
func (ix *Index) Len() int {
	return len(ix.paths)
}

// Path returns the design file for a pole SCID, keyed by its base id.
func (ix *Index) Path(scid string) (string, bool) {
	p, ok := ix.paths[spantype.BaseID(scid)]
	return p, ok
}

// Preload parses every indexed file through a bounded worker pool, so the
// single-threaded passes that follow never block on parsing. workers < 1
// means one worker. Preload returns an error only on context cancellation;
// parse failures are recorded per file, not returned.
func (ix *Index) Preload(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range ix.paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ix.File(path)
			return nil
		})
	}
	return g.Wait()
}

// File returns the parsed design file at path, or nil when it does not
// parse. Results are memoized; concurrent callers parse a path at most
// twice in a race, with identical outcomes.
func (ix *Index) File(path string) *File {
	ix.mu.RLock()
	f, ok := ix.files[path]
	ix.mu.RUnlock()
	if ok {
		return f
	}

	f, err := ParseFile(path)
	if err != nil {
		logging.Default().Warn().Str("file", path).Err(err).
			Msg("design file unreadable; pole treated as having no design data")
		f = nil
	}

	ix.mu.Lock()
	if prev, ok := ix.files[path]; ok {
		f = prev
	} else {
		ix.files[path] = f
	}
	ix.mu.Unlock()
	return f
}

// Spans returns the memoized extracted span list for a design file path.
func (ix *Index) Spans(path string) []Span {
	ix.mu.RLock()
	s, ok := ix.spans[path]
	ix.mu.RUnlock()
	if ok {
		return s
	}

	var out []Span
	if f := ix.File(path); f != nil {
		out = f.ExtractSpans()
	}
	ix.mu.Lock()
	ix.spans[path] = out
	ix.mu.Unlock()
	return out
}

// Conductors returns the memoized per-type conductor list for a path.
func (ix *Index) Conductors(path string) map[spantype.Type][]Conductor {
	ix.mu.RLock()
	c, ok := ix.conds[path]
	ix.mu.RUnlock()
	if ok {
		return c
	}

	var out map[spantype.Type][]Conductor
	if f := ix.File(path); f != nil {
		out = f.Conductors()
	}
	ix.mu.Lock()
	ix.conds[path] = out
	ix.mu.Unlock()
	return out
}
