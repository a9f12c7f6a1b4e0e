package survey

import (
	"sort"
	"strings"

	"github.com/utiliqc/spanqc/pkg/spantype"
)

// Counts is a per-connection tally of attachments by canonical span type.
type Counts map[spantype.Type]int

// CountsByConnection converts deduplicated section rows into integer counts
// per connection. mapping keys are lowercase raw labels; an explicit empty
// value drops the label, and labels absent from the mapping pass through as
// their own lowercase form.
func CountsByConnection(sections []Section, mapping map[string]string) map[string]Counts {
	out := make(map[string]Counts)
	for _, s := range sections {
		for _, label := range s.Labels {
			key := strings.ToLower(strings.TrimSpace(label))
			if key == "" {
				continue
			}
			if mapped, ok := mapping[key]; ok {
				if mapped == "" {
					continue
				}
				key = mapped
			}
			c := out[s.ConnectionID]
			if c == nil {
				c = make(Counts)
				out[s.ConnectionID] = c
			}
			c[spantype.Type(key)]++
		}
	}
	return out
}

// CapCommCounts trims a connection's communication counts down to bound,
// when the midspan-heights workbook observed fewer comm attachments than
// the raw sections did. Each originally-present comm type keeps at least
// one unit while slots allow, largest raw counts served first; leftover
// slots go round-robin. Power counts pass through untouched, and no count
// is ever raised.
func CapCommCounts(counts Counts, bound int) Counts {
	out := make(Counts, len(counts))
	commTotal := 0
	var comm []spantype.Type
	for t, n := range counts {
		if spantype.IsComm(t) {
			commTotal += n
			if n > 0 {
				comm = append(comm, t)
			}
			continue
		}
		out[t] = n
	}
	if commTotal <= bound {
		for _, t := range comm {
			out[t] = counts[t]
		}
		return out
	}

	// Largest raw count first; name as a deterministic tie-break.
	sort.Slice(comm, func(i, j int) bool {
		if counts[comm[i]] != counts[comm[j]] {
			return counts[comm[i]] > counts[comm[j]]
		}
		return comm[i] < comm[j]
	})

	slots := bound
	for _, t := range comm {
		if slots == 0 {
			break
		}
		out[t] = 1
		slots--
	}
	for slots > 0 {
		gave := false
		for _, t := range comm {
			if slots == 0 {
				break
			}
			if out[t] < counts[t] {
				out[t]++
				slots--
				gave = true
			}
		}
		if !gave {
			break
		}
	}
	return out
}
