package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

var extraColumns = []string{
	"Priority Tier",
	"Spanish Market",
	"High Volume",
	"Commendation Status",
	"Relevant",
	"Categories",
	"Org Type",
	"Cross-Border",
	"Pitch",
}

var columnWidths = []float64{
	45, 18, 6, 6, 30, 25, 30, 10, 12, 25, 18, 40, 12, 35, 30, 10,
	10, 14, 11, 18, 10, 30, 26, 12, 60,
}

// Columns returns the header row of every worksheet.
func Columns() []string {
	out := make([]string, 0, domain.FieldCount+len(extraColumns))
	out = append(out, domain.FieldNames[:]...)
	return append(out, extraColumns...)
}

// Writer renders classified providers into an xlsx workbook on disk.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	if path == "" {
		path = "./data/accme_providers.xlsx"
	}
	return &Writer{path: path}
}

func (w *Writer) WriteReport(ctx context.Context, summary domain.RunSummary, records []domain.ClassifiedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := Build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	slog.Info("report_written", "run_id", summary.RunID, "path", w.path, "records", len(records))
	return nil
}

// Build lays out the workbook in memory.
func Build(records []domain.ClassifiedRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Family: "Arial", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F5496"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, view := range BuildViews(records) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), view.Name); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(view.Name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", view.Name, err)
		}
		if err := writeSheet(f, view, headerStyle); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write sheet %s: %w", view.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, view View, headerStyle int) error {
	columns := Columns()
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(view.Name, "A1", &header); err != nil {
		return err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(view.Name, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	for i, rec := range view.Records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := rowValues(rec)
		if err := f.SetSheetRow(view.Name, cell, &row); err != nil {
			return err
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(view.Name, col, col, width); err != nil {
			return err
		}
	}

	if err := f.SetPanes(view.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	lastCell, err := excelize.CoordinatesToCellName(len(columns), len(view.Records)+1)
	if err != nil {
		return err
	}
	return f.AutoFilter(view.Name, "A1:"+lastCell, nil)
}

func rowValues(rec domain.ClassifiedRecord) []any {
	r := rec.Record
	row := make([]any, 0, domain.FieldCount+len(extraColumns))
	for i, v := range r {
		switch i {
		case domain.FieldTypeCode:
			row = append(row, ExpandCodes(v, typeLabels))
		case domain.FieldStatusCode:
			row = append(row, ExpandCodes(v, statusLabels))
		case domain.FieldJoint:
			row = append(row, ExpandCodes(v, jointLabels))
		case domain.FieldActivities:
			row = append(row, rec.Activities)
		default:
			row = append(row, v)
		}
	}
	return append(row,
		int(rec.Tier),
		yesNo(rec.SpecialMarket),
		yesNo(rec.HighVolume),
		yesNo(rec.Commendation),
		yesNo(rec.Relevant),
		strings.Join(rec.Categories, "; "),
		rec.OrgType,
		yesNo(rec.CrossBorder),
		rec.Pitch,
	)
}
