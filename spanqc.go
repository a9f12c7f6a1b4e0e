// Package spanqc reconciles a surveyed pole network against per-pole
// design files and a GIS line layer. The Engine loads the survey workbook
// once, preloads every design file through a bounded worker pool, and then
// runs two single-threaded passes: the wire-spec comparison and the
// span-count reconciliation.
package spanqc

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/utiliqc/spanqc/pkg/config"
	"github.com/utiliqc/spanqc/pkg/crs"
	"github.com/utiliqc/spanqc/pkg/design"
	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/logging"
	"github.com/utiliqc/spanqc/pkg/reconcile"
	"github.com/utiliqc/spanqc/pkg/shapeindex"
	"github.com/utiliqc/spanqc/pkg/survey"
	"github.com/utiliqc/spanqc/pkg/wirespec"
)

// Engine runs one reconciliation job. Build it with New and the With*
// options; a zero Engine is not usable.
type Engine struct {
	cfg     config.Config
	cfgPath string

	workbookPath string
	designDir    string
	shapeDir     string
	heightsPath  string

	workers int
	layers  *shapeindex.Cache
	store   shapeindex.Store

	state *state
}

// Result carries both passes' output rows plus run counters.
type Result struct {
	WireSpecs  []wirespec.Row
	SpanCounts []reconcile.Row
	Stats      Stats
}

// Stats are informational run counters.
type Stats struct {
	Nodes       int
	Connections int
	DesignFiles int
	Elapsed     time.Duration
}

// New builds an Engine. At minimum WithWorkbook is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:     config.Defaults(),
		workers: defaultWorkers(),
		store:   shapeindex.NewDirStore(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.workbookPath == "" {
		return nil, errors.NewValidationError("workbook", "", "survey workbook path is required")
	}
	if e.cfgPath != "" {
		cfg, err := config.LoadFile(e.cfgPath)
		if err != nil {
			return nil, err
		}
		e.cfg = cfg
	}
	if e.layers == nil {
		e.layers = shapeindex.NewCache(e.store)
	}
	return e, nil
}

func defaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// state is the shared loaded input of both passes.
type state struct {
	wb      *survey.Workbook
	designs *design.Index
	heights map[survey.PairKey]int
	proj    *crs.Projector
	primary *shapeindex.Layer
	second  *shapeindex.Layer
}

// prepare loads everything both passes share, once per Engine. Only an
// unreadable survey workbook is fatal; every other input degrades to
// absent data with a logged warning.
func (e *Engine) prepare(ctx context.Context) (*state, error) {
	if e.state != nil {
		return e.state, nil
	}
	log := logging.Ctx(ctx)

	wb, err := survey.Load(e.workbookPath)
	if err != nil {
		return nil, err
	}

	st := &state{wb: wb}
	if e.designDir != "" {
		designs, err := design.NewIndex(e.designDir)
		if err != nil {
			log.Warn().Str("dir", e.designDir).Err(err).
				Msg("design directory unreadable; passes run without design data")
		} else {
			if err := designs.Preload(ctx, e.workers); err != nil {
				return nil, err
			}
			st.designs = designs
			log.Info().Int("files", designs.Len()).Msg("design files preloaded")
		}
	}
	if e.heightsPath != "" {
		heights, err := survey.LoadMidspanHeights(e.heightsPath, e.cfg.PowerLabel)
		if err != nil {
			log.Warn().Str("workbook", e.heightsPath).Err(err).
				Msg("midspan heights unreadable; comm counts uncapped")
		} else {
			st.heights = heights
		}
	}
	if e.shapeDir != "" {
		st.proj, st.primary = e.loadLayer(ctx, e.cfg.Layers.Primary, true)
		_, st.second = e.loadLayer(ctx, e.cfg.Layers.Secondary, false)
	}

	e.state = st
	return st, nil
}

// loadLayer loads one named layer through the shared cache, plus its
// projector when wantProj is set. A missing or unreadable layer or .prj is
// not fatal: the wire-spec pass just runs without that column.
func (e *Engine) loadLayer(ctx context.Context, name string, wantProj bool) (*crs.Projector, *shapeindex.Layer) {
	log := logging.Ctx(ctx)
	shpPath := filepath.Join(e.shapeDir, name+".shp")
	if _, err := os.Stat(shpPath); err != nil {
		log.Warn().Str("layer", shpPath).Msg("layer not found; pass continues without it")
		return nil, nil
	}

	layer, err := e.layers.Get(shpPath, shapeindex.WithSearchMargin(e.cfg.SearchMargin))
	if err != nil {
		log.Warn().Str("layer", shpPath).Err(err).Msg("layer unreadable; pass continues without it")
		return nil, nil
	}
	log.Debug().Str("layer", shpPath).Int("features", layer.Len()).Msg("layer loaded")

	if !wantProj {
		return nil, layer
	}
	proj, err := crs.Load(filepath.Join(e.shapeDir, name+".prj"))
	if err != nil {
		log.Warn().Str("layer", shpPath).Err(err).
			Msg("projection unreadable; shape lookups disabled")
		return nil, layer
	}
	return proj, layer
}

// Run executes both passes and returns their combined result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	st, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}

	wireRows := e.wireSpecs(st)
	spanRows := e.spanCounts(st)

	res := &Result{
		WireSpecs:  wireRows,
		SpanCounts: spanRows,
		Stats: Stats{
			Nodes:       len(st.wb.Nodes),
			Connections: len(st.wb.Connections),
			Elapsed:     time.Since(start),
		},
	}
	if st.designs != nil {
		res.Stats.DesignFiles = st.designs.Len()
	}
	logging.Ctx(ctx).Info().
		Int("connections", res.Stats.Connections).
		Int("wire_spec_rows", len(wireRows)).
		Int("span_count_rows", len(spanRows)).
		Dur("elapsed", res.Stats.Elapsed).
		Msg("run complete")
	return res, nil
}

// WireSpecs runs only the wire-spec comparison pass.
func (e *Engine) WireSpecs(ctx context.Context) ([]wirespec.Row, error) {
	st, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return e.wireSpecs(st), nil
}

// SpanCounts runs only the span-count reconciliation pass.
func (e *Engine) SpanCounts(ctx context.Context) ([]reconcile.Row, error) {
	st, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return e.spanCounts(st), nil
}

func (e *Engine) wireSpecs(st *state) []wirespec.Row {
	return wirespec.Compare(st.wb.Connections, st.wb.Nodes,
		st.primary, st.second, st.proj, st.designs, e.cfg)
}

func (e *Engine) spanCounts(st *state) []reconcile.Row {
	counts := survey.CountsByConnection(st.wb.Sections, e.cfg.SpanTypeMapping)
	return reconcile.Reconcile(st.wb.Connections, st.wb.Nodes,
		counts, st.designs, st.heights, e.cfg)
}

// Query projects one or two WGS84 points and runs a single spatial lookup
// against the primary layer, for ad-hoc inspection from the CLI. With one
// point the segment degenerates to it.
func (e *Engine) Query(ctx context.Context, lat1, lon1, lat2, lon2 float64) (shapeindex.Match, error) {
	st, err := e.prepare(ctx)
	if err != nil {
		return shapeindex.Match{}, err
	}
	if st.primary == nil || st.proj == nil {
		return shapeindex.Match{}, errors.NewNotFoundError("layer", e.cfg.Layers.Primary)
	}
	x1, y1 := st.proj.Project(lat1, lon1)
	x2, y2 := st.proj.Project(lat2, lon2)
	return st.primary.Query(x1, y1, x2, y2), nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}
