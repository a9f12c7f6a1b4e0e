// Package crs converts WGS84 survey coordinates into the planar coordinate
// reference system of a shapefile layer, driven by the layer's .prj file.
// It parses the WKT1 (ESRI flavor) projection description and implements
// the two projections US state-plane line layers actually use: Lambert
// Conformal Conic and Transverse Mercator.
package crs

import (
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/utiliqc/spanqc/pkg/errors"
)

// wktNode is one KEYWORD["name", ...] element of a WKT tree.
type wktNode struct {
	keyword  string
	name     string // first quoted argument
	numbers  []float64
	children []*wktNode
}

// child returns the first direct child with the given keyword, or nil.
func (n *wktNode) child(keyword string) *wktNode {
	for _, c := range n.children {
		if strings.EqualFold(c.keyword, keyword) {
			return c
		}
	}
	return nil
}

// lastChild returns the last direct child with the given keyword, or nil.
// The linear UNIT of a PROJCS follows the PARAMETER list, after the GEOGCS
// block that carries its own angular UNIT.
func (n *wktNode) lastChild(keyword string) *wktNode {
	var found *wktNode
	for _, c := range n.children {
		if strings.EqualFold(c.keyword, keyword) {
			found = c
		}
	}
	return found
}

// parseWKT parses a WKT1 string into its node tree.
func parseWKT(s string) (*wktNode, error) {
	p := &wktParser{src: s}
	node, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, errors.NewParseError("wkt", "", "trailing data after root element", nil)
	}
	return node, nil
}

type wktParser struct {
	src string
	pos int
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) parseNode() (*wktNode, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && (isWordByte(p.src[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return nil, errors.NewParseError("wkt", "", "expected keyword at offset "+strconv.Itoa(start), nil)
	}
	node := &wktNode{keyword: p.src[start:p.pos]}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '[' {
		// Bare keyword (e.g. AXIS direction tokens); treat as empty node.
		return node, nil
	}
	p.pos++ // consume '['
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, errors.NewParseError("wkt", "", "unterminated element "+node.keyword, nil)
		}
		switch c := p.src[p.pos]; {
		case c == ']':
			p.pos++
			return node, nil
		case c == ',':
			p.pos++
		case c == '"':
			str, err := p.parseString()
			if err != nil {
				return nil, err
			}
			if node.name == "" {
				node.name = str
			}
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			num, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			node.numbers = append(node.numbers, num)
		default:
			childNode, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			node.children = append(node.children, childNode)
		}
	}
}

func (p *wktParser) parseString() (string, error) {
	p.pos++ // opening quote
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", errors.NewParseError("wkt", "", "unterminated string", nil)
	}
	s := p.src[start:p.pos]
	p.pos++ // closing quote
	return s, nil
}

func (p *wktParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	num, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, errors.NewParseError("wkt", "", "bad number "+p.src[start:p.pos], err)
	}
	return num, nil
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// CRS describes a parsed coordinate reference system.
type CRS struct {
	Name string

	// Geographic indicates a bare GEOGCS (coordinates already in degrees).
	Geographic bool

	// Projection is the PROJECTION name for projected systems.
	Projection string

	// Parameters holds PARAMETER values keyed by lowercase name, in the
	// CRS's own linear unit for false offsets and degrees for angles.
	Parameters map[string]float64

	// SemiMajor and InvFlattening describe the ellipsoid.
	SemiMajor     float64
	InvFlattening float64

	// MetersPerUnit converts the CRS's linear unit to meters.
	MetersPerUnit float64
}

// Param returns a projection parameter by lowercase name, or def when absent.
func (c *CRS) Param(name string, def float64) float64 {
	if v, ok := c.Parameters[name]; ok {
		return v
	}
	return def
}

// HasParam reports whether the named parameter was present in the WKT.
func (c *CRS) HasParam(name string) bool {
	_, ok := c.Parameters[name]
	return ok
}

// Parse parses a WKT1 CRS description (the content of a .prj file).
func Parse(wkt string) (*CRS, error) {
	root, err := parseWKT(strings.TrimSpace(wkt))
	if err != nil {
		return nil, err
	}

	switch {
	case strings.EqualFold(root.keyword, "GEOGCS"):
		crs := &CRS{Name: root.name, Geographic: true}
		if err := fillEllipsoid(crs, root); err != nil {
			return nil, err
		}
		return crs, nil

	case strings.EqualFold(root.keyword, "PROJCS"):
		crs := &CRS{Name: root.name, Parameters: map[string]float64{}}
		geogcs := root.child("GEOGCS")
		if geogcs == nil {
			return nil, errors.NewParseError("wkt", "", "PROJCS without GEOGCS", nil)
		}
		if err := fillEllipsoid(crs, geogcs); err != nil {
			return nil, err
		}
		proj := root.child("PROJECTION")
		if proj == nil {
			return nil, errors.NewParseError("wkt", "", "PROJCS without PROJECTION", nil)
		}
		crs.Projection = proj.name
		for _, c := range root.children {
			if strings.EqualFold(c.keyword, "PARAMETER") && len(c.numbers) > 0 {
				crs.Parameters[strings.ToLower(c.name)] = c.numbers[0]
			}
		}
		unit := root.lastChild("UNIT")
		if unit == nil || len(unit.numbers) == 0 {
			return nil, errors.NewParseError("wkt", "", "PROJCS without linear UNIT", nil)
		}
		crs.MetersPerUnit = unit.numbers[0]
		return crs, nil
	}
	return nil, errors.NewParseError("wkt", "", "unrecognized root element "+root.keyword, nil)
}

// fillEllipsoid copies SPHEROID values out of a GEOGCS node.
func fillEllipsoid(crs *CRS, geogcs *wktNode) error {
	datum := geogcs.child("DATUM")
	if datum == nil {
		return errors.NewParseError("wkt", "", "GEOGCS without DATUM", nil)
	}
	spheroid := datum.child("SPHEROID")
	if spheroid == nil {
		spheroid = datum.child("ELLIPSOID")
	}
	if spheroid == nil || len(spheroid.numbers) < 2 {
		return errors.NewParseError("wkt", "", "DATUM without SPHEROID", nil)
	}
	crs.SemiMajor = spheroid.numbers[0]
	crs.InvFlattening = spheroid.numbers[1]
	return nil
}

// ParseFile reads and parses a .prj file.
func ParseFile(path string) (*CRS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	crs, err := Parse(string(data))
	if err != nil {
		if pe, ok := err.(*errors.ParseError); ok {
			pe.File = path
		}
		return nil, err
	}
	return crs, nil
}
