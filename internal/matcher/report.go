package matcher

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// matchSheet is the sheet name the review tooling expects.
const matchSheet = "GIGA"

// matchHeaders is the fixed column layout of the match report.
var matchHeaders = []string{
	"Caption", "FSNB Name", "FSNB code", "Units", "FSNB Units", "Quantity", "conf",
}

// WriteReportXLSX renders match results as a spreadsheet on the GIGA sheet,
// one row per result in input order. Null matches leave the FSNB columns
// empty but still carry the recorded confidence.
func WriteReportXLSX(w io.Writer, results []Result) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(matchSheet)
	if err != nil {
		return fmt.Errorf("matcher: create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("matcher: drop default sheet: %w", err)
	}

	if err := setRow(f, 1, toCells(matchHeaders)); err != nil {
		return err
	}
	for i, r := range results {
		row := []any{r.Caption, r.ItemName, r.ItemCode, r.Units, r.ItemUnit, r.Qty, r.Score}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("matcher: write report: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("matcher: cell name: %w", err)
	}
	if err := f.SetSheetRow(matchSheet, cell, &cells); err != nil {
		return fmt.Errorf("matcher: set row %d: %w", row, err)
	}
	return nil
}

func toCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
