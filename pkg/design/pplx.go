// Package design reads per-pole PPLX engineering files and extracts each
// pole's attached spans as (type, length, absolute bearing) records. A PPLX
// file is an XML tree of structural elements (pole, insulators, spans, span
// bundles); every element carries named VALUE attributes, and angles are
// encoded relative to the parent element's direction.
package design

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/spantype"
)

// Element is one node of the PPLX tree.
type Element struct {
	XMLName    xml.Name
	Attributes struct {
		Values []Value `xml:"VALUE"`
	} `xml:"ATTRIBUTES"`
	Children []Element `xml:",any"`
}

// Value is a single NAME/text attribute entry.
type Value struct {
	Name string `xml:"NAME,attr"`
	Text string `xml:",chardata"`
}

// Attr returns the named attribute's text, trimmed.
func (e *Element) Attr(name string) (string, bool) {
	for i := range e.Attributes.Values {
		if strings.EqualFold(e.Attributes.Values[i].Name, name) {
			return strings.TrimSpace(e.Attributes.Values[i].Text), true
		}
	}
	return "", false
}

// FloatAttr returns the named attribute parsed as a float. Unparsable or
// absent values report false; a malformed cell never aborts extraction.
func (e *Element) FloatAttr(name string) (float64, bool) {
	s, ok := e.Attr(name)
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// is reports whether the element's tag matches name, case-insensitively.
func (e *Element) is(name string) bool {
	return strings.EqualFold(e.XMLName.Local, name)
}

// isPole matches the pole element regardless of material variant
// (WoodPole, SteelPole, ...).
func (e *Element) isPole() bool {
	return strings.HasSuffix(strings.ToLower(e.XMLName.Local), "pole") &&
		!e.is("SpanBundle")
}

// findFirst returns the first element (depth-first) satisfying pred.
func (e *Element) findFirst(pred func(*Element) bool) *Element {
	if pred(e) {
		return e
	}
	for i := range e.Children {
		if found := e.Children[i].findFirst(pred); found != nil {
			return found
		}
	}
	return nil
}

// File is one parsed design file.
type File struct {
	Path string
	root Element
}

// Parse reads a PPLX document from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	if err := xml.NewDecoder(r).Decode(&f.root); err != nil {
		return nil, errors.WrapParse("pplx", "", err)
	}
	return f, nil
}

// ParseFile reads and parses one design file.
func ParseFile(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = r.Close() }()

	f, err := Parse(r)
	if err != nil {
		if pe, ok := err.(*errors.ParseError); ok {
			pe.File = path
		}
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Info summarizes a design file's pole identity.
type Info struct {
	Path       string
	PoleNumber string
	Owner      string
}

// Info returns the file's pole identity fields.
func (f *File) Info() Info {
	info := Info{Path: f.Path}
	if pole := f.pole(); pole != nil {
		info.PoleNumber, _ = pole.Attr("Pole Number")
		info.Owner, _ = pole.Attr("Owner")
	}
	return info
}

// SceneLatLon returns the scene's WGS84 position when present.
func (f *File) SceneLatLon() (lat, lon float64, ok bool) {
	scene := f.root.findFirst(func(e *Element) bool { return e.is("PPLScene") })
	if scene == nil {
		scene = &f.root
	}
	lat, okLat := scene.FloatAttr("Latitude")
	lon, okLon := scene.FloatAttr("Longitude")
	return lat, lon, okLat && okLon
}

// AuxData returns the pole's Aux Data 1..8 fields, omitting empty slots.
func (f *File) AuxData() map[string]string {
	out := make(map[string]string)
	pole := f.pole()
	if pole == nil {
		return out
	}
	for i := 1; i <= 8; i++ {
		name := "Aux Data " + strconv.Itoa(i)
		if v, ok := pole.Attr(name); ok && v != "" {
			out[name] = v
		}
	}
	return out
}

// PoleAttributes returns every named attribute on the pole element.
func (f *File) PoleAttributes() map[string]string {
	out := make(map[string]string)
	pole := f.pole()
	if pole == nil {
		return out
	}
	for _, v := range pole.Attributes.Values {
		out[v.Name] = strings.TrimSpace(v.Text)
	}
	return out
}

func (f *File) pole() *Element {
	return f.root.findFirst(func(e *Element) bool { return e.isPole() })
}

// Conductor pairs a span's length in inches with its conductor spec string.
type Conductor struct {
	LengthIn float64
	Spec     string
}

// Conductors maps each span type to the conductor spec strings recorded on
// its spans, in document order. The wire-spec pass picks the entry whose
// length best matches a surveyed connection.
func (f *File) Conductors() map[spantype.Type][]Conductor {
	out := make(map[spantype.Type][]Conductor)
	f.root.walkSpans(func(span *Element) {
		label, _ := span.Attr("SpanType")
		if label == "" {
			return
		}
		length, okLen := span.FloatAttr("SpanDistanceInInches")
		spec, _ := span.Attr("Type")
		if !okLen || spec == "" {
			return
		}
		t := spantype.Canonical(label)
		out[t] = append(out[t], Conductor{LengthIn: length, Spec: spec})
	})
	return out
}

// walkSpans visits every Span element in document order, including spans
// nested inside bundles.
func (e *Element) walkSpans(fn func(*Element)) {
	if e.is("Span") {
		fn(e)
	}
	for i := range e.Children {
		e.Children[i].walkSpans(fn)
	}
}
