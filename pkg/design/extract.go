package design

import (
	"math"

	"github.com/utiliqc/spanqc/pkg/geo"
	"github.com/utiliqc/spanqc/pkg/spantype"
)

// Span is one attached span with its resolved absolute bearing.
type Span struct {
	Type     spantype.Type
	LengthIn float64
	Bearing  float64 // radians, [0, 2*pi), 0 = pole north
	// HasBearing is false when no element between the pole and the span
	// carried an explicit angle, so the bearing is a structural default
	// rather than surveyed direction data.
	HasBearing bool
}

// angleAttr is the relative direction carried by insulators, spans, and
// bundles, in radians relative to the parent element.
const angleAttr = "CoordinateA"

// dedupKey identifies a physical span across redundant encodings: same
// type, same length to the inch, same bearing to half a degree.
type dedupKey struct {
	t       spantype.Type
	inches  int64
	bearing int64 // bearing bucketed to 0.5 degrees
}

const halfDegree = math.Pi / 360

func bearingBucket(rad float64) int64 {
	return int64(math.Round(geo.NormalizeAngle(rad) / halfDegree))
}

// frame is the accumulated coordinate frame during the walk: the parent's
// absolute angle, and whether any ancestor actually declared one.
type frame struct {
	abs   float64
	known bool
}

// at resolves a child's frame from its optional relative angle.
func (fr frame) at(rel float64, hasRel bool) frame {
	if !hasRel {
		return fr
	}
	return frame{abs: geo.NormalizeAngle(fr.abs + rel), known: true}
}

// extractor accumulates spans during one tree walk.
type extractor struct {
	spans []Span
	// seen maps a span's dedup key to the base-angle bucket of the first
	// insulator that emitted it. A second emission from an insulator with a
	// different base angle is the redundant direction-specific encoding of
	// the same physical span and is dropped; emissions sharing the base
	// angle are genuinely distinct conductors on one arm.
	seen map[dedupKey]int64
}

// ExtractSpans returns the flattened, deduplicated span list for the pole.
// Bearings are absolute, accumulated top-down through the relative-angle
// hierarchy and normalized into [0, 2*pi).
func (f *File) ExtractSpans() []Span {
	ex := &extractor{seen: make(map[dedupKey]int64)}
	root := f.pole()
	if root == nil {
		root = &f.root
	}
	ex.walk(root, frame{})
	return ex.spans
}

// walk descends looking for insulators; intermediate structure (crossarms,
// scene wrappers) passes the parent frame through unchanged.
func (ex *extractor) walk(e *Element, parent frame) {
	for i := range e.Children {
		c := &e.Children[i]
		if c.is("Insulator") {
			ex.insulator(c, parent)
			continue
		}
		ex.walk(c, parent)
	}
}

// insulator resolves the insulator's absolute angle and emits its spans.
// An insulator angle is relative to pole north; absent means inherit.
func (ex *extractor) insulator(ins *Element, parent frame) {
	base, hasBase := ins.FloatAttr(angleAttr)
	fr := parent.at(base, hasBase)
	baseBucket := bearingBucket(base)
	if !hasBase {
		baseBucket = 0
	}

	for i := range ins.Children {
		c := &ins.Children[i]
		switch {
		case c.is("SpanBundle"):
			ex.bundle(c, fr, baseBucket)
		case c.is("Span"):
			ex.span(c, fr, baseBucket)
		default:
			// Nested insulators keep their own frame relative to this one.
			ex.walk(c, fr)
		}
	}
}

// span emits one span at its own computed absolute bearing.
func (ex *extractor) span(span *Element, parent frame, baseBucket int64) {
	t, length, ok := spanFields(span)
	if !ok {
		return
	}
	rel, hasRel := span.FloatAttr(angleAttr)
	fr := parent.at(rel, hasRel)
	ex.emit(t, length, fr, baseBucket)
}

// bundle emits one representative span per distinct comm type at the
// bundle's own bearing; the bundled children's individual angles are not
// physically meaningful. Non-comm spans inside a bundle are emitted
// one-to-one relative to the bundle.
func (ex *extractor) bundle(bundle *Element, parent frame, baseBucket int64) {
	rel, hasRel := bundle.FloatAttr(angleAttr)
	fr := parent.at(rel, hasRel)

	emitted := make(map[spantype.Type]bool)
	for i := range bundle.Children {
		c := &bundle.Children[i]
		if !c.is("Span") {
			continue
		}
		t, length, ok := spanFields(c)
		if !ok {
			continue
		}
		if spantype.IsComm(t) {
			if emitted[t] {
				continue
			}
			emitted[t] = true
			ex.emit(t, length, fr, baseBucket)
			continue
		}
		ex.span(c, fr, baseBucket)
	}
}

// emit appends a span unless it is the duplicate encoding of one already seen.
func (ex *extractor) emit(t spantype.Type, lengthIn float64, fr frame, baseBucket int64) {
	key := dedupKey{
		t:       t,
		inches:  int64(math.Round(lengthIn)),
		bearing: bearingBucket(fr.abs),
	}
	if first, ok := ex.seen[key]; ok {
		if first != baseBucket {
			return
		}
	} else {
		ex.seen[key] = baseBucket
	}
	ex.spans = append(ex.spans, Span{
		Type:       t,
		LengthIn:   lengthIn,
		Bearing:    geo.NormalizeAngle(fr.abs),
		HasBearing: fr.known,
	})
}

// spanFields reads the type and length off a Span element.
func spanFields(span *Element) (spantype.Type, float64, bool) {
	label, _ := span.Attr("SpanType")
	if label == "" {
		return "", 0, false
	}
	length, ok := span.FloatAttr("SpanDistanceInInches")
	if !ok {
		return "", 0, false
	}
	return spantype.Canonical(label), length, true
}

// SpansByType filters the extracted span list to one type.
func (f *File) SpansByType(t spantype.Type) []Span {
	var out []Span
	for _, s := range f.ExtractSpans() {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}
