// Package reconcile pairs the survey's per-connection attachment counts
// against the design files' extracted spans and classifies each
// (connection, span type) as agreeing, disagreeing, or agreeing in
// direction but not in recorded length. A design span matched once is
// consumed for the rest of the run, so one physical span can never satisfy
// two connections.
package reconcile

import (
	"math"
	"sort"

	"github.com/utiliqc/spanqc/pkg/config"
	"github.com/utiliqc/spanqc/pkg/design"
	"github.com/utiliqc/spanqc/pkg/geo"
	"github.com/utiliqc/spanqc/pkg/logging"
	"github.com/utiliqc/spanqc/pkg/spantype"
	"github.com/utiliqc/spanqc/pkg/survey"
)

// Verdict classifies one (connection, span type) comparison.
type Verdict string

// Verdicts.
const (
	VerdictPass   Verdict = "PASS"
	VerdictFail   Verdict = "FAIL"
	VerdictLength Verdict = "LENGTH" // bearing agrees, recorded length does not
)

// Row is one reconciliation result.
type Row struct {
	Pole     string
	ToPole   string
	SpanType spantype.Type
	Survey   int
	Design   int
	Verdict  Verdict
}

// run carries the per-run consumption state: consumed span indices keyed by
// design file path. Never shared across runs.
type run struct {
	cfg      config.Config
	designs  *design.Index
	heights  map[survey.PairKey]int
	consumed map[string]map[int]bool
}

// Reconcile compares every connection's normalized counts against the
// design spans of its lower-ordered pole (falling back to the higher when
// only that one has a design file). Connections without counts, without a
// positive surveyed span distance, with unresolvable endpoints, or with an
// endpoint lacking a base SCID are skipped.
// Output is sorted by (pole, to-pole, span type).
func Reconcile(conns []survey.Connection, nodes map[string]survey.Node,
	counts map[string]survey.Counts, designs *design.Index,
	heights map[survey.PairKey]int, cfg config.Config) []Row {

	r := &run{
		cfg:      cfg,
		designs:  designs,
		heights:  heights,
		consumed: make(map[string]map[int]bool),
	}

	var rows []Row
	for _, conn := range conns {
		c := counts[conn.ID]
		if len(c) == 0 {
			continue
		}
		n1, ok1 := nodes[conn.NodeID1]
		n2, ok2 := nodes[conn.NodeID2]
		if !ok1 || !ok2 {
			continue
		}
		if !conn.HasSpan || conn.SpanFeet <= 0 {
			logging.Default().Debug().Str("connection", conn.ID).
				Msg("no usable span distance; connection skipped")
			continue
		}
		if spantype.BaseID(n1.SCID) == "" || spantype.BaseID(n2.SCID) == "" {
			continue
		}
		if spantype.PoleOrder(n2.SCID).Less(spantype.PoleOrder(n1.SCID)) {
			n1, n2 = n2, n1
		}
		rows = append(rows, r.connection(conn, n1, n2, c)...)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if pa, pb := spantype.LeadingInt(a.Pole), spantype.LeadingInt(b.Pole); pa != pb {
			return pa < pb
		}
		if ta, tb := spantype.LeadingInt(a.ToPole), spantype.LeadingInt(b.ToPole); ta != tb {
			return ta < tb
		}
		return a.SpanType < b.SpanType
	})
	return rows
}

// connection reconciles one connection and returns its rows.
func (r *run) connection(conn survey.Connection, n1, n2 survey.Node, counts survey.Counts) []Row {
	counts = r.capComm(n1, n2, counts)

	designNode, otherNode, path, hasDesign := r.pickDesignPole(n1, n2)
	var spans []design.Span
	var target float64
	if hasDesign {
		spans = r.designs.Spans(path)
		target = geo.BearingRad(designNode.Latitude, designNode.Longitude,
			otherNode.Latitude, otherNode.Longitude)
	}

	distIn := conn.SpanFeet * 12
	types := candidateTypes(counts, spans)

	var rows []Row
	for _, t := range types {
		designCount, lengthMismatch := r.consumeMatches(path, spans, t, distIn, target)
		surveyCount := counts[t]
		if surveyCount == 0 && designCount == 0 {
			continue
		}
		verdict := VerdictFail
		switch {
		case surveyCount == designCount:
			verdict = VerdictPass
		case surveyCount > designCount && lengthMismatch:
			verdict = VerdictLength
		}
		rows = append(rows, Row{
			Pole:     n1.Label(),
			ToPole:   n2.Label(),
			SpanType: t,
			Survey:   surveyCount,
			Design:   designCount,
			Verdict:  verdict,
		})
	}
	return rows
}

// capComm applies the midspan-heights bound to the connection's comm counts.
func (r *run) capComm(n1, n2 survey.Node, counts survey.Counts) survey.Counts {
	if r.heights == nil {
		return counts
	}
	bound, ok := r.heights[survey.MakePairKey(n1.SCID, n2.SCID)]
	if !ok {
		return counts
	}
	return survey.CapCommCounts(counts, bound)
}

// pickDesignPole chooses which endpoint's design file to reconcile against:
// the lower-ordered pole when it has one, else the higher.
func (r *run) pickDesignPole(n1, n2 survey.Node) (designNode, otherNode survey.Node, path string, ok bool) {
	if r.designs == nil {
		return n1, n2, "", false
	}
	if p, found := r.designs.Path(n1.SCID); found {
		return n1, n2, p, true
	}
	if p, found := r.designs.Path(n2.SCID); found {
		return n2, n1, p, true
	}
	return n1, n2, "", false
}

// candidateTypes is the union of the surveyed types and the design pole's
// span types, in deterministic order.
func candidateTypes(counts survey.Counts, spans []design.Span) []spantype.Type {
	set := make(map[spantype.Type]bool, len(counts))
	for t, n := range counts {
		if n > 0 {
			set[t] = true
		}
	}
	for _, s := range spans {
		set[s.Type] = true
	}
	types := make([]spantype.Type, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// consumeMatches greedily matches and consumes the design pole's unconsumed
// spans of type t against the connection's geometry. It also reports
// whether any still-unconsumed span of the type pointed the right way but
// failed the length check, which distinguishes LENGTH from FAIL verdicts.
func (r *run) consumeMatches(path string, spans []design.Span, t spantype.Type,
	distIn, target float64) (matched int, lengthMismatch bool) {

	if path == "" {
		return 0, false
	}
	used := r.consumed[path]
	if used == nil {
		used = make(map[int]bool)
		r.consumed[path] = used
	}

	tolRad := r.cfg.BearingToleranceDeg * math.Pi / 180
	for i, s := range spans {
		if s.Type != t || used[i] {
			continue
		}
		lengthOK := math.Abs(s.LengthIn-distIn) <= r.cfg.LengthToleranceIn
		if !s.HasBearing {
			// Without a direction to test, power spans fall back to
			// length-only matching; comm spans stay unmatched since same-
			// length comm runs commonly radiate in different directions.
			if spantype.IsComm(t) {
				continue
			}
			if lengthOK {
				used[i] = true
				matched++
			}
			continue
		}
		bearingOK := geo.AngleDiff(s.Bearing, target) <= tolRad
		switch {
		case bearingOK && lengthOK:
			used[i] = true
			matched++
		case bearingOK:
			lengthMismatch = true
		}
	}
	return matched, lengthMismatch
}
