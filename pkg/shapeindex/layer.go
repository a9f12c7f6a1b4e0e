// Package shapeindex loads polyline shapefile layers and answers
// "best matching feature for this span" queries. A layer is loaded once,
// its feature bounding boxes go into an R-tree, and queries score
// candidates by the larger of the two endpoint distances so that only
// features running near the whole span can win.
package shapeindex

import (
	"math"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/tidwall/rtree"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/geo"
)

// DefaultSearchMargin is the bbox expansion applied to query segments,
// in the layer's planar units.
const DefaultSearchMargin = 500.0

// indexThreshold is the feature count below which building an R-tree is
// not worth it and the linear bbox filter is used directly.
const indexThreshold = 32

// Attrs is the fixed attribute record carried by every line feature.
type Attrs struct {
	Master      string // wire spec of the master (primary) conductor
	Neutral     string // wire spec of the neutral conductor
	Orientation string
	RunType     string
}

// FieldNames maps the Attrs record onto DBF column names.
type FieldNames struct {
	Master      string
	Neutral     string
	Orientation string
	RunType     string
}

// DefaultFieldNames are the column names of the electric line layers.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		Master:      "d_masterma",
		Neutral:     "d_neutralm",
		Orientation: "d_orientat",
		RunType:     "d_runtype",
	}
}

// feature is one loaded polyline with its precomputed bounds.
type feature struct {
	points []r2.Vec
	bbox   [4]float64 // minX, minY, maxX, maxY
	attrs  Attrs
}

// Layer is a loaded, query-ready shapefile layer. Read-only after Load;
// safe for concurrent queries.
type Layer struct {
	features []feature
	index    *rtree.RTreeG[int]
	margin   float64
}

// Match is the result of a Query.
type Match struct {
	OK      bool
	Feature int // load-order index of the winning feature
	Attrs   Attrs
	Dist1   float64 // distance from query point 1, layer units
	Dist2   float64 // distance from query point 2, layer units
}

// Option configures layer loading and querying.
type Option func(*options)

type options struct {
	margin float64
	fields FieldNames
}

// WithSearchMargin overrides the query bbox expansion margin.
func WithSearchMargin(units float64) Option {
	return func(o *options) { o.margin = units }
}

// WithFieldNames overrides the DBF column names for the attribute record.
func WithFieldNames(f FieldNames) Option {
	return func(o *options) { o.fields = f }
}

func newOptions(opts ...Option) *options {
	o := &options{margin: DefaultSearchMargin, fields: DefaultFieldNames()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load reads all polyline features of a shapefile into a Layer.
func Load(path string, opts ...Option) (*Layer, error) {
	o := newOptions(opts...)

	r, err := shp.Open(path)
	if err != nil {
		return nil, errors.NewLayerError(path, "open failed", err)
	}
	defer func() { _ = r.Close() }()

	cols := fieldColumns(r.Fields(), o.fields)

	layer := &Layer{margin: o.margin}
	for r.Next() {
		n, shape := r.Shape()
		pts, box, ok := polylinePoints(shape)
		if !ok || len(pts) == 0 {
			continue
		}
		layer.features = append(layer.features, feature{
			points: pts,
			bbox:   box,
			attrs:  readAttrs(r, n, cols),
		})
	}
	if err := r.Err(); err != nil {
		return nil, errors.NewLayerError(path, "read failed", err)
	}

	layer.buildIndex()
	return layer, nil
}

// Len returns the number of loaded features.
func (l *Layer) Len() int {
	return len(l.features)
}

// Query returns the feature best matching the segment (x1,y1)-(x2,y2).
// The score of a candidate is the larger of its minimum distances to the
// two endpoints: a line close to only one end of the span is not a match.
// Ties keep the first-loaded feature. An empty layer returns Match{OK: false}.
func (l *Layer) Query(x1, y1, x2, y2 float64) Match {
	if len(l.features) == 0 {
		return Match{}
	}

	p1 := r2.Vec{X: x1, Y: y1}
	p2 := r2.Vec{X: x2, Y: y2}

	loX := math.Min(x1, x2) - l.margin
	loY := math.Min(y1, y2) - l.margin
	hiX := math.Max(x1, x2) + l.margin
	hiY := math.Max(y1, y2) + l.margin

	candidates := l.candidates(loX, loY, hiX, hiY)
	if len(candidates) == 0 {
		// Nothing inside the margin: widen to the whole layer rather
		// than report no match.
		candidates = make([]int, len(l.features))
		for i := range candidates {
			candidates[i] = i
		}
	}

	best := -1
	bestScore := math.Inf(1)
	var bestD1, bestD2 float64
	for _, i := range candidates {
		f := &l.features[i]
		d1 := geo.PolylineDist2(p1, f.points)
		d2 := geo.PolylineDist2(p2, f.points)
		score := math.Max(d1, d2)
		if score < bestScore {
			bestScore = score
			best = i
			bestD1 = d1
			bestD2 = d2
		}
	}
	if best < 0 {
		return Match{}
	}
	return Match{
		OK:      true,
		Feature: best,
		Attrs:   l.features[best].attrs,
		Dist1:   math.Sqrt(bestD1),
		Dist2:   math.Sqrt(bestD2),
	}
}

// candidates returns load-order indices of features whose bboxes intersect
// the query box, sorted ascending so tie-breaking in Query is stable
// regardless of R-tree visit order.
func (l *Layer) candidates(loX, loY, hiX, hiY float64) []int {
	if l.index != nil {
		var out []int
		l.index.Search([2]float64{loX, loY}, [2]float64{hiX, hiY},
			func(_, _ [2]float64, i int) bool {
				out = append(out, i)
				return true
			})
		sortInts(out)
		return out
	}
	var out []int
	for i := range l.features {
		b := l.features[i].bbox
		if b[2] >= loX && b[0] <= hiX && b[3] >= loY && b[1] <= hiY {
			out = append(out, i)
		}
	}
	return out
}

// buildIndex constructs the bbox R-tree for layers large enough to benefit.
func (l *Layer) buildIndex() {
	if len(l.features) < indexThreshold {
		return
	}
	tr := &rtree.RTreeG[int]{}
	for i := range l.features {
		b := l.features[i].bbox
		tr.Insert([2]float64{b[0], b[1]}, [2]float64{b[2], b[3]}, i)
	}
	l.index = tr
}

// sortInts is a tiny insertion sort; candidate sets are small and the
// R-tree returns them unordered.
func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

// polylinePoints extracts the point list and bbox from a polyline shape.
func polylinePoints(s shp.Shape) ([]r2.Vec, [4]float64, bool) {
	var raw []shp.Point
	var box shp.Box
	switch t := s.(type) {
	case *shp.PolyLine:
		raw, box = t.Points, t.Box
	case *shp.PolyLineZ:
		raw, box = t.Points, t.Box
	case *shp.PolyLineM:
		raw, box = t.Points, t.Box
	default:
		return nil, [4]float64{}, false
	}
	pts := make([]r2.Vec, len(raw))
	for i, p := range raw {
		pts[i] = r2.Vec{X: p.X, Y: p.Y}
	}
	return pts, [4]float64{box.MinX, box.MinY, box.MaxX, box.MaxY}, true
}

// fieldColumns resolves the attribute column indices; -1 when absent.
func fieldColumns(fields []shp.Field, names FieldNames) [4]int {
	cols := [4]int{-1, -1, -1, -1}
	want := [4]string{names.Master, names.Neutral, names.Orientation, names.RunType}
	for i, f := range fields {
		name := f.String()
		for k, w := range want {
			if cols[k] < 0 && strings.EqualFold(name, w) {
				cols[k] = i
			}
		}
	}
	return cols
}

// readAttrs reads the attribute record of feature row n.
func readAttrs(r *shp.Reader, n int, cols [4]int) Attrs {
	get := func(col int) string {
		if col < 0 {
			return ""
		}
		return strings.Trim(r.ReadAttribute(n, col), "\x00 \t\r\n")
	}
	return Attrs{
		Master:      get(cols[0]),
		Neutral:     get(cols[1]),
		Orientation: get(cols[2]),
		RunType:     get(cols[3]),
	}
}
