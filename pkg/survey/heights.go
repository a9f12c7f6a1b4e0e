package survey

import (
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/logging"
	"github.com/utiliqc/spanqc/pkg/spantype"
)

// PairKey identifies an unordered pole pair by base SCIDs in canonical order.
type PairKey struct {
	A, B string
}

// MakePairKey returns the canonical key for two SCIDs.
func MakePairKey(scid1, scid2 string) PairKey {
	a, b := spantype.BaseID(scid1), spantype.BaseID(scid2)
	if spantype.PoleOrder(b).Less(spantype.PoleOrder(a)) {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// midspanHeaderRe matches the per-destination column header on row 2 of a
// midspan-heights sheet: "midspan to 014_in_feet".
var midspanHeaderRe = regexp.MustCompile(`(?i)^midspan\s+to\s+(.+?)_in_feet$`)

// scidSheetPrefix marks the per-pole sheets of the heights workbook.
const scidSheetPrefix = "SCID "

// LoadMidspanHeights reads the auxiliary height-measurement workbook and
// returns, per pole pair, the number of non-power midspan measurements,
// an independent upper bound on that pair's comm attachment count. Rows
// attributed to powerLabel are the utility's own wires and do not count.
func LoadMidspanHeights(path, powerLabel string) (map[PairKey]int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	bounds := make(map[PairKey]int)
	for _, sheet := range f.GetSheetList() {
		name := strings.TrimSpace(sheet)
		if !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(scidSheetPrefix)) {
			continue
		}
		source := strings.TrimSpace(name[len(scidSheetPrefix):])
		if source == "" {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			logging.Default().Warn().Str("sheet", sheet).Err(err).
				Msg("midspan sheet unreadable; skipped")
			continue
		}
		countSheet(rows, source, powerLabel, bounds)
	}
	return bounds, nil
}

// countSheet tallies one "SCID XXX" sheet: row 2 names the destination
// poles, rows 3+ carry one attaching company per row with a height cell
// per destination.
func countSheet(rows [][]string, source, powerLabel string, bounds map[PairKey]int) {
	if len(rows) < 2 {
		return
	}
	header := rows[1]
	dests := make(map[int]string) // column -> destination pole
	for i, cellText := range header {
		m := midspanHeaderRe.FindStringSubmatch(strings.TrimSpace(cellText))
		if m != nil {
			dests[i] = strings.TrimSpace(m[1])
		}
	}
	if len(dests) == 0 {
		return
	}
	for _, row := range rows[2:] {
		if len(row) == 0 {
			continue
		}
		company := strings.TrimSpace(row[0])
		if company == "" || strings.EqualFold(company, powerLabel) {
			continue
		}
		for col, dest := range dests {
			if col >= len(row) {
				continue
			}
			// Any non-blank cell is a measurement; surveyors record
			// heights in several formats, not all numeric.
			if strings.TrimSpace(row[col]) == "" {
				continue
			}
			bounds[MakePairKey(source, dest)]++
		}
	}
}
