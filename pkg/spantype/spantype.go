// Package spantype defines the canonical span-type vocabulary shared by the
// survey, design, and reconciliation packages, along with the numeric-aware
// pole ordering used to canonicalize pole pairs.
package spantype

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type is a canonical span type key. Keys are lowercase; use Title for display.
type Type string

// Canonical span types.
const (
	Primary   Type = "primary"
	Neutral   Type = "neutral"
	Secondary Type = "secondary"
	CATV      Type = "catv"
	Fiber     Type = "fiber"
	Telco     Type = "telco"
)

// commTypes are the communication span types. Comm spans require directional
// disambiguation during reconciliation; everything else is treated as power.
var commTypes = map[Type]bool{
	CATV:  true,
	Fiber: true,
	Telco: true,
}

// Canonical normalizes a raw label to a canonical key.
func Canonical(label string) Type {
	return Type(strings.ToLower(strings.TrimSpace(label)))
}

// IsComm reports whether t is a communication span type (CATV, Fiber, Telco).
func IsComm(t Type) bool {
	return commTypes[t]
}

var titleCaser = cases.Title(language.English)

// Title returns the display form of a span type ("catv" -> "Catv",
// "primary" -> "Primary"), matching the survey report convention.
func Title(t Type) string {
	return titleCaser.String(string(t))
}

// BaseID normalizes a pole SCID like "013.A" or "013 PCO" to its base token
// "013", used for design-file lookups keyed by filename-derived pole ids.
func BaseID(scid string) string {
	s := strings.TrimSpace(scid)
	if s == "" {
		return ""
	}
	token := strings.Fields(s)[0]
	if i := strings.IndexByte(token, '.'); i >= 0 {
		token = token[:i]
	}
	return token
}

// OrderKey is a sort key for pole SCIDs: numeric SCIDs order numerically
// before all non-numeric ones, so "002" < "003" < "013.A" < "REF".
type OrderKey struct {
	Numeric bool
	N       int
	S       string
}

// PoleOrder returns the ordering key for a SCID. The first whitespace token
// is used; a token that parses as an integer sorts numerically.
func PoleOrder(scid string) OrderKey {
	s := strings.TrimSpace(scid)
	token := s
	if f := strings.Fields(s); len(f) > 0 {
		token = f[0]
	}
	if n, err := strconv.Atoi(token); err == nil {
		return OrderKey{Numeric: true, N: n}
	}
	return OrderKey{S: s}
}

// Less reports whether a orders before b.
func (a OrderKey) Less(b OrderKey) bool {
	if a.Numeric != b.Numeric {
		return a.Numeric
	}
	if a.Numeric {
		return a.N < b.N
	}
	return a.S < b.S
}

// LessEq reports whether a orders before or equal to b.
func (a OrderKey) LessEq(b OrderKey) bool {
	return !b.Less(a)
}

// LeadingInt extracts the leading integer of a SCID for output sorting.
// Non-numeric SCIDs return a value that sorts after every numeric one.
func LeadingInt(scid string) int {
	s := strings.TrimSpace(scid)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return int(^uint(0) >> 1) // max int: non-numeric sorts last
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
