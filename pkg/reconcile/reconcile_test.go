package reconcile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utiliqc/spanqc/pkg/config"
	"github.com/utiliqc/spanqc/pkg/design"
	"github.com/utiliqc/spanqc/pkg/spantype"
	"github.com/utiliqc/spanqc/pkg/survey"
)

// designSpan renders one span element; angle is radians relative to the
// insulator, and hasAngle=false omits the attribute entirely.
func designSpan(typ string, inches, angle float64, hasAngle bool) string {
	s := `<Span><ATTRIBUTES><VALUE NAME="SpanType">` + typ + `</VALUE>` +
		`<VALUE NAME="SpanDistanceInInches">` + strconv.FormatFloat(inches, 'g', -1, 64) + `</VALUE>`
	if hasAngle {
		s += `<VALUE NAME="CoordinateA">` + strconv.FormatFloat(angle, 'g', -1, 64) + `</VALUE>`
	}
	return s + `</ATTRIBUTES></Span>`
}

// writeDesign writes one pole's design file containing the given spans on a
// north-facing insulator (or an angle-less one when baseKnown is false).
func writeDesign(t *testing.T, dir, scid string, baseKnown bool, spansXML string) {
	t.Helper()
	base := `<VALUE NAME="CoordinateA">0</VALUE>`
	if !baseKnown {
		base = ""
	}
	doc := `<PPLX><WoodPole><ATTRIBUTES><VALUE NAME="Pole Number">` + scid + `</VALUE></ATTRIBUTES>` +
		`<Insulator><ATTRIBUTES>` + base + `</ATTRIBUTES>` + spansXML + `</Insulator></WoodPole></PPLX>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, scid+"_Ocalc.pplx"), []byte(doc), 0o644))
}

func loadIndex(t *testing.T, dir string) *design.Index {
	t.Helper()
	ix, err := design.NewIndex(dir)
	require.NoError(t, err)
	return ix
}

// testNodes puts pole 001 at the origin and pole 002 due north of it, so a
// design span at bearing 0 on pole 001 points straight at pole 002.
func testNodes() map[string]survey.Node {
	return map[string]survey.Node{
		"n1": {ID: "n1", Latitude: 41.00, Longitude: -96.0, SCID: "001", NodeType: "pole"},
		"n2": {ID: "n2", Latitude: 41.01, Longitude: -96.0, SCID: "002", NodeType: "pole"},
		"n3": {ID: "n3", Latitude: 41.02, Longitude: -96.0, SCID: "003", NodeType: "pole"},
	}
}

func conn(id, a, b string, feet float64) survey.Connection {
	return survey.Connection{ID: id, NodeID1: a, NodeID2: b, SpanFeet: feet, HasSpan: true}
}

func TestReconcilePass(t *testing.T) {
	dir := t.TempDir()
	// Two primary spans of 100 ft toward pole 002, distinguished by length
	// so dedup keeps both.
	writeDesign(t, dir, "001", true,
		designSpan("Primary", 1200, 0, true)+designSpan("Primary", 1210, 0, true))

	counts := map[string]survey.Counts{
		"c1": {spantype.Primary: 2},
	}
	rows := Reconcile([]survey.Connection{conn("c1", "n1", "n2", 100)},
		testNodes(), counts, loadIndex(t, dir), nil, config.Defaults())

	require.Len(t, rows, 1)
	assert.Equal(t, "001", rows[0].Pole)
	assert.Equal(t, "002", rows[0].ToPole)
	assert.Equal(t, spantype.Primary, rows[0].SpanType)
	assert.Equal(t, 2, rows[0].Survey)
	assert.Equal(t, 2, rows[0].Design)
	assert.Equal(t, VerdictPass, rows[0].Verdict)
}

func TestReconcileLengthVersusFail(t *testing.T) {
	nodes := testNodes()
	cfg := config.Defaults()

	// Bearing matches, length off by 20 ft: LENGTH.
	dir := t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("Primary", 1440, 0, true))
	counts := map[string]survey.Counts{"c1": {spantype.Primary: 1}}
	rows := Reconcile([]survey.Connection{conn("c1", "n1", "n2", 100)},
		nodes, counts, loadIndex(t, dir), nil, cfg)
	require.Len(t, rows, 1)
	assert.Equal(t, VerdictLength, rows[0].Verdict)
	assert.Equal(t, 0, rows[0].Design)

	// Same lengths but the span points east instead: plain FAIL.
	dir = t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("Primary", 1440, 1.5708, true))
	rows = Reconcile([]survey.Connection{conn("c1", "n1", "n2", 100)},
		nodes, counts, loadIndex(t, dir), nil, cfg)
	require.Len(t, rows, 1)
	assert.Equal(t, VerdictFail, rows[0].Verdict)
}

func TestReconcileConsumptionExclusivity(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("Primary", 1200, 0, true))

	// Two connections from pole 001 toward the same direction and length;
	// the single design span can satisfy only the first.
	counts := map[string]survey.Counts{
		"c1": {spantype.Primary: 1},
		"c2": {spantype.Primary: 1},
	}
	conns := []survey.Connection{
		conn("c1", "n1", "n2", 100),
		conn("c2", "n1", "n3", 100),
	}
	rows := Reconcile(conns, testNodes(), counts, loadIndex(t, dir), nil, config.Defaults())

	require.Len(t, rows, 2)
	assert.Equal(t, VerdictPass, rows[0].Verdict)
	assert.Equal(t, 1, rows[0].Design)
	assert.Equal(t, VerdictFail, rows[1].Verdict)
	assert.Equal(t, 0, rows[1].Design)
}

func TestReconcileBearinglessSpans(t *testing.T) {
	dir := t.TempDir()
	// No angle data anywhere: the power span still matches on length, the
	// comm span cannot.
	writeDesign(t, dir, "001", false,
		designSpan("Primary", 1200, 0, false)+designSpan("CATV", 1200, 0, false))

	counts := map[string]survey.Counts{
		"c1": {spantype.Primary: 1, spantype.CATV: 1},
	}
	rows := Reconcile([]survey.Connection{conn("c1", "n1", "n2", 100)},
		testNodes(), counts, loadIndex(t, dir), nil, config.Defaults())

	require.Len(t, rows, 2)
	byType := map[spantype.Type]Row{}
	for _, r := range rows {
		byType[r.SpanType] = r
	}
	assert.Equal(t, VerdictPass, byType[spantype.Primary].Verdict)
	assert.Equal(t, VerdictFail, byType[spantype.CATV].Verdict)
	assert.Equal(t, 0, byType[spantype.CATV].Design)
}

func TestReconcileDesignOnlyType(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("Neutral", 1200, 0, true))

	// Survey reports nothing for neutral, but the design has a matching
	// span: the disagreement still surfaces.
	counts := map[string]survey.Counts{"c1": {spantype.Primary: 1}}
	rows := Reconcile([]survey.Connection{conn("c1", "n1", "n2", 100)},
		testNodes(), counts, loadIndex(t, dir), nil, config.Defaults())

	require.Len(t, rows, 2)
	byType := map[spantype.Type]Row{}
	for _, r := range rows {
		byType[r.SpanType] = r
	}
	assert.Equal(t, 0, byType[spantype.Neutral].Survey)
	assert.Equal(t, 1, byType[spantype.Neutral].Design)
	assert.Equal(t, VerdictFail, byType[spantype.Neutral].Verdict)
	assert.Equal(t, VerdictFail, byType[spantype.Primary].Verdict)
}

func TestReconcileCapsCommCounts(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("CATV", 1200, 0, true))

	counts := map[string]survey.Counts{"c1": {spantype.CATV: 3}}
	heights := map[survey.PairKey]int{
		survey.MakePairKey("001", "002"): 1,
	}
	rows := Reconcile([]survey.Connection{conn("c1", "n1", "n2", 100)},
		testNodes(), counts, loadIndex(t, dir), heights, config.Defaults())

	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Survey)
	assert.Equal(t, 1, rows[0].Design)
	assert.Equal(t, VerdictPass, rows[0].Verdict)
}

func TestReconcileSortsOutput(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("Primary", 1200, 0, true))

	counts := map[string]survey.Counts{
		"c1": {spantype.Primary: 1},
		"c2": {spantype.Primary: 1},
	}
	// Feed connections in reverse pole order; output must come back sorted.
	conns := []survey.Connection{
		conn("c2", "n2", "n3", 100),
		conn("c1", "n1", "n2", 100),
	}
	rows := Reconcile(conns, testNodes(), counts, loadIndex(t, dir), nil, config.Defaults())

	want := []Row{
		{Pole: "001", ToPole: "002", SpanType: spantype.Primary, Survey: 1, Design: 1, Verdict: VerdictPass},
		{Pole: "002", ToPole: "003", SpanType: spantype.Primary, Survey: 1, Design: 0, Verdict: VerdictFail},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileSkipsUnresolvableAndCountless(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "001", true, designSpan("Primary", 1200, 0, true))

	counts := map[string]survey.Counts{
		"c1": {spantype.Primary: 1},
		"c4": {spantype.Primary: 1},
		"c5": {spantype.Primary: 1},
	}
	nodes := testNodes()
	nodes["nr"] = survey.Node{ID: "nr", Latitude: 41.03, Longitude: -96.0, NodeType: "reference"}
	conns := []survey.Connection{
		conn("c1", "n1", "ghost", 100), // unresolvable endpoint
		conn("c9", "n1", "n2", 100),    // no surveyed counts
		conn("c4", "n1", "n2", 0),      // zero span distance
		conn("c5", "n1", "nr", 100),    // endpoint without a base SCID
	}
	rows := Reconcile(conns, nodes, counts, loadIndex(t, dir), nil, config.Defaults())
	assert.Empty(t, rows)
}
