// Package survey loads the field survey workbook (nodes, connections,
// attachment sections) and normalizes per-connection attachment labels into
// integer counts per canonical span type.
package survey

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/logging"
)

// Node is one surveyed point.
type Node struct {
	ID        string
	Latitude  float64
	Longitude float64
	SCID      string
	NodeType  string
}

// refAllowedTypes are the node types allowed to appear as SCID-less REF
// endpoints; a SCID-less node of any other type makes its connections
// unusable.
var refAllowedTypes = map[string]bool{
	"pole":      true,
	"reference": true,
	"drop pole": true,
}

// Label returns the node's display pole label: its SCID when present,
// else REF.
func (n Node) Label() string {
	if n.SCID != "" {
		return n.SCID
	}
	return "REF"
}

// Usable reports whether the node can anchor a comparison row: any node
// with a SCID, or a SCID-less node of an allowed reference type.
func (n Node) Usable() bool {
	if n.SCID != "" {
		return true
	}
	return refAllowedTypes[strings.ToLower(strings.TrimSpace(n.NodeType))]
}

// Connection is one surveyed pole-to-pole link.
type Connection struct {
	ID       string
	NodeID1  string
	NodeID2  string
	SpanFeet float64
	HasSpan  bool
}

// Section is one attachment record: the labels seen on a connection.
type Section struct {
	ConnectionID string
	Labels       []string
}

// Workbook is the loaded survey, read once and shared between passes.
type Workbook struct {
	Nodes       map[string]Node
	Connections []Connection
	Sections    []Section
}

// Load reads the survey workbook. Nodes missing an id or coordinates are
// skipped; duplicate section rows are dropped.
func Load(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	wb := &Workbook{Nodes: make(map[string]Node)}
	if err := wb.loadNodes(f); err != nil {
		return nil, err
	}
	if err := wb.loadConnections(f); err != nil {
		return nil, err
	}
	if err := wb.loadSections(f); err != nil {
		return nil, err
	}
	logging.Default().Debug().
		Int("nodes", len(wb.Nodes)).
		Int("connections", len(wb.Connections)).
		Int("sections", len(wb.Sections)).
		Str("workbook", path).
		Msg("survey loaded")
	return wb, nil
}

func (wb *Workbook) loadNodes(f *excelize.File) error {
	rows, err := sheetRows(f, "nodes")
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return nil
	}
	h := headerIndex(rows[0])
	idCol := h.col("node_id")
	latCol := h.col("latitude", "lat")
	lonCol := h.col("longitude", "lon")
	scidCol := h.col("scid")
	typeCol := h.col("node_type")

	for _, row := range rows[1:] {
		id := cell(row, idCol)
		lat, okLat := cellFloat(row, latCol)
		lon, okLon := cellFloat(row, lonCol)
		if id == "" || !okLat || !okLon {
			continue
		}
		wb.Nodes[id] = Node{
			ID:        id,
			Latitude:  lat,
			Longitude: lon,
			SCID:      cell(row, scidCol),
			NodeType:  cell(row, typeCol),
		}
	}
	return nil
}

func (wb *Workbook) loadConnections(f *excelize.File) error {
	rows, err := sheetRows(f, "connections")
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return nil
	}
	h := headerIndex(rows[0])
	idCol := h.col("connection_id")
	n1Col := h.col("node_id_1")
	n2Col := h.col("node_id_2")
	spanCol := h.col("span_distance")

	for _, row := range rows[1:] {
		c := Connection{
			ID:      cell(row, idCol),
			NodeID1: cell(row, n1Col),
			NodeID2: cell(row, n2Col),
		}
		if c.NodeID1 == "" || c.NodeID2 == "" {
			continue
		}
		c.SpanFeet, c.HasSpan = cellFloat(row, spanCol)
		wb.Connections = append(wb.Connections, c)
	}
	return nil
}

func (wb *Workbook) loadSections(f *excelize.File) error {
	rows, err := sheetRows(f, "sections")
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return nil
	}
	h := headerIndex(rows[0])
	idCol := h.col("connection_id")
	// Attachment labels live only in the POA_1..POA_n columns; anything
	// else on the sheet (section ids, remarks) is not an attachment.
	var poaCols []int
	for i, name := range rows[0] {
		if strings.HasPrefix(normalizeHeader(name), "poa_") {
			poaCols = append(poaCols, i)
		}
	}

	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		id := cell(row, idCol)
		if id == "" {
			continue
		}
		var labels []string
		for _, col := range poaCols {
			if v := cell(row, col); v != "" {
				labels = append(labels, v)
			}
		}
		if len(labels) == 0 {
			continue
		}
		key := dedupeKey(id, labels)
		if seen[key] {
			continue
		}
		seen[key] = true
		wb.Sections = append(wb.Sections, Section{ConnectionID: id, Labels: labels})
	}
	return nil
}

// dedupeKey identifies a (connection, label-set) row regardless of label order.
func dedupeKey(connID string, labels []string) string {
	sorted := make([]string, len(labels))
	for i, l := range labels {
		sorted[i] = strings.ToLower(l)
	}
	sort.Strings(sorted)
	return connID + "\x00" + strings.Join(sorted, "\x00")
}

// sheetRows finds a sheet by case-insensitive name.
func sheetRows(f *excelize.File, name string) ([][]string, error) {
	for _, s := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			rows, err := f.GetRows(s)
			if err != nil {
				return nil, errors.WrapParse("xlsx", f.Path, err)
			}
			return rows, nil
		}
	}
	return nil, errors.NewNotFoundError("sheet", name)
}

// headerMap indexes a header row by normalized column name.
type headerMap map[string]int

func headerIndex(row []string) headerMap {
	m := make(headerMap, len(row))
	for i, name := range row {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, ok := m[key]; !ok {
			m[key] = i
		}
	}
	return m
}

// col returns the first matching column index, or -1.
func (h headerMap) col(names ...string) int {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}
	return -1
}

func normalizeHeader(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// cellFloat parses a numeric cell leniently; unparsable means absent.
func cellFloat(row []string, col int) (float64, bool) {
	s := cell(row, col)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
