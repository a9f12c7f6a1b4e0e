// Package wirespec compares, per surveyed connection, the wire
// specification recorded in the GIS line layer against the conductor spec
// recorded in the connection's design file. One row per wire type puts the
// two side by side for review; the engine never judges them itself.
package wirespec

import (
	"math"

	"github.com/utiliqc/spanqc/pkg/config"
	"github.com/utiliqc/spanqc/pkg/crs"
	"github.com/utiliqc/spanqc/pkg/design"
	"github.com/utiliqc/spanqc/pkg/logging"
	"github.com/utiliqc/spanqc/pkg/shapeindex"
	"github.com/utiliqc/spanqc/pkg/spantype"
	"github.com/utiliqc/spanqc/pkg/survey"
)

// Row is one wire-spec comparison result.
type Row struct {
	Pole     string
	ToPole   string
	WireType spantype.Type
	Design   string // conductor spec from the design file, may be empty
	Shape    string // wire spec from the line layer, may be empty
}

// Compare runs the wire-spec pass over every connection. Either layer and
// the design index may be nil; the corresponding column is left empty.
// Connections are skipped when an endpoint does not resolve to a surveyed
// node, or when a SCID-less endpoint is not an allowed reference type.
func Compare(conns []survey.Connection, nodes map[string]survey.Node,
	primary, secondary *shapeindex.Layer, proj *crs.Projector,
	designs *design.Index, cfg config.Config) []Row {

	var rows []Row
	skipped := 0
	for _, conn := range conns {
		n1, ok1 := nodes[conn.NodeID1]
		n2, ok2 := nodes[conn.NodeID2]
		if !ok1 || !ok2 || !n1.Usable() || !n2.Usable() {
			skipped++
			continue
		}
		// Canonical order: the lower pole is the row's "Pole".
		if spantype.PoleOrder(n2.SCID).Less(spantype.PoleOrder(n1.SCID)) {
			n1, n2 = n2, n1
		}

		fromShape := shapeSpecs(n1, n2, primary, secondary, proj)
		fromDesign := designSpecs(n1, n2, conn, designs, cfg)

		for _, t := range []spantype.Type{spantype.Primary, spantype.Neutral, spantype.Secondary} {
			if fromShape[t] == "" && fromDesign[t] == "" {
				continue
			}
			rows = append(rows, Row{
				Pole:     n1.Label(),
				ToPole:   n2.Label(),
				WireType: t,
				Design:   fromDesign[t],
				Shape:    fromShape[t],
			})
		}
	}
	if skipped > 0 {
		logging.Default().Debug().Int("skipped", skipped).
			Msg("connections with unresolvable endpoints skipped in wire-spec pass")
	}
	return rows
}

// shapeSpecs queries the line layers for the connection's wire specs.
// Primary and neutral come from the primary layer's matched feature;
// secondary from the secondary layer's.
func shapeSpecs(n1, n2 survey.Node, primary, secondary *shapeindex.Layer,
	proj *crs.Projector) map[spantype.Type]string {

	out := make(map[spantype.Type]string)
	if proj == nil {
		return out
	}
	x1, y1 := proj.Project(n1.Latitude, n1.Longitude)
	x2, y2 := proj.Project(n2.Latitude, n2.Longitude)

	if primary != nil {
		if m := primary.Query(x1, y1, x2, y2); m.OK {
			out[spantype.Primary] = m.Attrs.Master
			out[spantype.Neutral] = m.Attrs.Neutral
		}
	}
	if secondary != nil {
		if m := secondary.Query(x1, y1, x2, y2); m.OK {
			out[spantype.Secondary] = m.Attrs.Master
		}
	}
	return out
}

// designSpecs picks the connection's design file (the lower pole's when it
// has one, else the higher's) and selects, per wire type, the conductor
// whose recorded length lies closest to the surveyed span distance within
// the relative tolerance. A connection without a surveyed distance falls
// back to the shortest recorded conductor per wire type.
func designSpecs(n1, n2 survey.Node, conn survey.Connection,
	designs *design.Index, cfg config.Config) map[spantype.Type]string {

	out := make(map[spantype.Type]string)
	if designs == nil {
		return out
	}
	path, ok := designs.Path(n1.SCID)
	if !ok {
		if path, ok = designs.Path(n2.SCID); !ok {
			return out
		}
	}
	conds := designs.Conductors(path)
	if conds == nil {
		return out
	}

	if !conn.HasSpan {
		for t, list := range conds {
			if spec := shortestSpec(list); spec != "" {
				out[t] = spec
			}
		}
		return out
	}

	targetIn := conn.SpanFeet * 12
	for t, list := range conds {
		if spec := closestSpec(list, targetIn, cfg.WireSpecTolerance); spec != "" {
			out[t] = spec
		}
	}
	return out
}

// shortestSpec returns the spec of the shortest conductor; ties keep the
// first in document order.
func shortestSpec(conds []design.Conductor) string {
	best := ""
	bestLen := math.Inf(1)
	for _, c := range conds {
		if c.LengthIn < bestLen {
			bestLen = c.LengthIn
			best = c.Spec
		}
	}
	return best
}

// closestSpec returns the spec of the conductor nearest targetIn within the
// relative tolerance; ties keep the first in document order.
func closestSpec(conds []design.Conductor, targetIn, tolerance float64) string {
	best := ""
	bestDiff := math.Inf(1)
	for _, c := range conds {
		diff := math.Abs(c.LengthIn - targetIn)
		if diff <= tolerance*targetIn && diff < bestDiff {
			bestDiff = diff
			best = c.Spec
		}
	}
	return best
}
