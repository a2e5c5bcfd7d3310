package register

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	detailLabelWidth = 20
	detailValueWidth = 80
	backLinkText     = "Back to register"
)

// Render serializes a Layout into an xlsx workbook.
func Render(l Layout) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	r := &renderer{file: f, styles: make(map[string]int)}
	if err := r.register(l); err != nil {
		return nil, err
	}
	for _, d := range l.Details {
		if err := r.detail(l.SheetName, d); err != nil {
			return nil, fmt.Errorf("detail sheet %s: %w", d.Name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type renderer struct {
	file   *excelize.File
	header int
	styles map[string]int
}

func (r *renderer) register(l Layout) error {
	f := r.file
	sheet := l.SheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name register sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	r.header = header

	for i, col := range l.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col.Title); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, col.Width); err != nil {
			return err
		}
	}
	lastCol, err := excelize.ColumnNumberToName(max(len(l.Columns), 1))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", header); err != nil {
		return err
	}

	for i, row := range l.Rows {
		rowNum := i + 2
		for j, value := range row.Cells {
			cell, err := excelize.CoordinatesToCellName(j+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
		first := fmt.Sprintf("A%d", rowNum)
		if row.DetailSheet != "" {
			if err := f.SetCellHyperLink(sheet, first, sheetRef(row.DetailSheet), "Location"); err != nil {
				return fmt.Errorf("link %s: %w", row.Number, err)
			}
		}
		style, err := r.fill(row.Color)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, first, fmt.Sprintf("%s%d", lastCol, rowNum), style); err != nil {
			return err
		}
	}

	if err := f.AutoFilter(sheet, l.FilterRange(), []excelize.AutoFilterOptions{}); err != nil {
		return fmt.Errorf("autofilter: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	return nil
}

func (r *renderer) detail(registerSheet string, d DetailSheet) error {
	f := r.file
	if _, err := f.NewSheet(d.Name); err != nil {
		return err
	}
	if err := f.SetColWidth(d.Name, "A", "A", detailLabelWidth); err != nil {
		return err
	}
	if err := f.SetColWidth(d.Name, "B", "B", detailValueWidth); err != nil {
		return err
	}

	for i, field := range d.Fields {
		row := i + 1
		if err := f.SetCellValue(d.Name, fmt.Sprintf("A%d", row), field.Label); err != nil {
			return err
		}
		if err := f.SetCellValue(d.Name, fmt.Sprintf("B%d", row), field.Value); err != nil {
			return err
		}
	}
	last := len(d.Fields)
	if last > 0 {
		if err := f.SetCellStyle(d.Name, "A1", fmt.Sprintf("A%d", last), r.header); err != nil {
			return err
		}
		style, err := r.fill(d.Color)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(d.Name, "B1", fmt.Sprintf("B%d", last), style); err != nil {
			return err
		}
	}

	back := fmt.Sprintf("A%d", last+2)
	if err := f.SetCellValue(d.Name, back, backLinkText); err != nil {
		return err
	}
	return f.SetCellHyperLink(d.Name, back, sheetRef(registerSheet), "Location")
}

// fill returns a cached wrapped-text style with the given background.
func (r *renderer) fill(color string) (int, error) {
	if id, ok := r.styles[color]; ok {
		return id, nil
	}
	style := &excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	}
	if color != "" {
		style.Fill = excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	}
	id, err := r.file.NewStyle(style)
	if err != nil {
		return 0, fmt.Errorf("fill style %s: %w", color, err)
	}
	r.styles[color] = id
	return id, nil
}

// sheetRef is an in-workbook hyperlink target for a sheet's first cell.
func sheetRef(sheet string) string {
	return fmt.Sprintf("'%s'!A1", strings.ReplaceAll(sheet, "'", "''"))
}
