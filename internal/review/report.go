package review

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/stroikit/fsnbmatch/internal/store"
)

// sessionSheet is the sheet name of the committed-session report.
const sessionSheet = "VOR"

var sessionHeaders = []string{
	"Caption", "FSNB Name", "FSNB code", "Units", "FSNB Units", "Quantity", "Label",
}

// WriteSessionXLSX renders a session's rows with their latest label on the
// VOR sheet. Rows without a decision yet get an empty label; FSNB columns
// are filled only for decisions with a surviving selected item.
func (s *Service) WriteSessionXLSX(ctx context.Context, w io.Writer, sessionID int64) error {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	rows, err := s.store.RowsForSession(ctx, sessionID)
	if err != nil {
		return err
	}

	// Latest label per row.
	type decision struct {
		label    store.Label
		selected *int64
	}
	decisions := make(map[int64]decision, len(rows))
	var selectedIDs []int64
	for _, r := range rows {
		labels, err := s.store.LabelsForRow(ctx, r.ID)
		if err != nil {
			return err
		}
		if len(labels) == 0 {
			continue
		}
		last := labels[len(labels)-1]
		d := decision{label: last.Label, selected: last.SelectedItemID}
		if d.selected != nil {
			selectedIDs = append(selectedIDs, *d.selected)
		}
		decisions[r.ID] = d
	}

	meta, err := s.store.FetchMetaByIDs(ctx, selectedIDs)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sessionSheet)
	if err != nil {
		return fmt.Errorf("review: create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("review: drop default sheet: %w", err)
	}

	if err := setRow(f, 1, headerCells()); err != nil {
		return err
	}
	for i, r := range rows {
		cells := []any{r.Caption, "", "", r.UnitsIn, "", r.QtyIn, ""}
		if d, ok := decisions[r.ID]; ok {
			cells[6] = string(d.label)
			if d.selected != nil {
				if m, ok := meta[*d.selected]; ok {
					cells[1] = m.Name
					cells[2] = m.Code
					cells[4] = m.Unit
				}
			}
		}
		if err := setRow(f, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("review: write session report: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("review: cell name: %w", err)
	}
	if err := f.SetSheetRow(sessionSheet, cell, &cells); err != nil {
		return fmt.Errorf("review: set row %d: %w", row, err)
	}
	return nil
}

func headerCells() []any {
	out := make([]any, len(sessionHeaders))
	for i, h := range sessionHeaders {
		out[i] = h
	}
	return out
}
