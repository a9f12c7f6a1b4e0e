package cmd

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/utiliqc/spanqc/pkg/reconcile"
	"github.com/utiliqc/spanqc/pkg/spantype"
	"github.com/utiliqc/spanqc/pkg/wirespec"
)

func writeWireSpecCSV(w io.Writer, rows []wirespec.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"pole", "to_pole", "wire_type", "design_value", "shape_value"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Pole, r.ToPole, spantype.Title(r.WireType), r.Design, r.Shape}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSpanCountCSV(w io.Writer, rows []reconcile.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"pole", "to_pole", "span_type", "survey_count", "design_count", "verdict"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Pole, r.ToPole, spantype.Title(r.SpanType),
			strconv.Itoa(r.Survey), strconv.Itoa(r.Design), string(r.Verdict),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
