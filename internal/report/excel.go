// Package report exports calendars and slot occupancy as xlsx workbooks.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	"[", "(", "]", ")", ":", "-", "*", "-", "?", "", "/", "-", `\`, "-",
)

// Column is one column of a sheet.
type Column struct {
	Title string
	Width float64
}

// Workbook streams sheets into an xlsx file. Sheets are written one at a time:
// adding a sheet finishes the previous one.
type Workbook struct {
	file   *excelize.File
	header int
	fills  map[string]int
	sheets int
	open   *Sheet
}

// Sheet receives the rows of one worksheet below a frozen header row.
type Sheet struct {
	name string
	sw   *excelize.StreamWriter
	row  int
	wb   *Workbook
}

// NewWorkbook creates an empty workbook.
func NewWorkbook() (*Workbook, error) {
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	return &Workbook{file: f, header: header, fills: make(map[string]int)}, nil
}

// AddSheet starts a sheet with the given columns. Names are cleaned of
// characters Excel rejects and cut to 31 characters.
func (wb *Workbook) AddSheet(name string, columns []Column) (*Sheet, error) {
	if err := wb.finish(); err != nil {
		return nil, err
	}
	name = sheetName(name)

	if wb.sheets == 0 {
		if err := wb.file.SetSheetName("Sheet1", name); err != nil {
			return nil, fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := wb.file.NewSheet(name); err != nil {
		return nil, fmt.Errorf("create sheet %s: %w", name, err)
	}

	sw, err := wb.file.NewStreamWriter(name)
	if err != nil {
		return nil, fmt.Errorf("stream sheet %s: %w", name, err)
	}
	for i, c := range columns {
		if c.Width > 0 {
			if err := sw.SetColWidth(i+1, i+1, c.Width); err != nil {
				return nil, err
			}
		}
	}
	if err := sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	titles := make([]any, len(columns))
	for i, c := range columns {
		titles[i] = c.Title
	}
	if err := sw.SetRow("A1", titles, excelize.RowOpts{StyleID: wb.header}); err != nil {
		return nil, err
	}

	s := &Sheet{name: name, sw: sw, row: 2, wb: wb}
	wb.open = s
	wb.sheets++
	return s, nil
}

// Row appends a plain row.
func (s *Sheet) Row(values ...any) error {
	return s.write(values, 0)
}

// FilledRow appends a row with the given background colour, e.g. "C6EFCE".
// An empty colour writes a plain row.
func (s *Sheet) FilledRow(color string, values ...any) error {
	if color == "" {
		return s.write(values, 0)
	}
	style, err := s.wb.fill(color)
	if err != nil {
		return err
	}
	return s.write(values, style)
}

func (s *Sheet) write(values []any, style int) error {
	if s.wb.open != s {
		return fmt.Errorf("sheet %s is already finished", s.name)
	}
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.sw.SetRow(cell, values, excelize.RowOpts{StyleID: style}); err != nil {
		return fmt.Errorf("write %s row %d: %w", s.name, s.row, err)
	}
	s.row++
	return nil
}

func (wb *Workbook) fill(color string) (int, error) {
	if id, ok := wb.fills[color]; ok {
		return id, nil
	}
	id, err := wb.file.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
	if err != nil {
		return 0, fmt.Errorf("fill %s: %w", color, err)
	}
	wb.fills[color] = id
	return id, nil
}

func (wb *Workbook) finish() error {
	if wb.open == nil {
		return nil
	}
	s := wb.open
	wb.open = nil
	if err := s.sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", s.name, err)
	}
	return nil
}

// Save finishes the current sheet and writes the workbook.
func (wb *Workbook) Save(w io.Writer) error {
	if err := wb.finish(); err != nil {
		return err
	}
	return wb.file.Write(w)
}

func (wb *Workbook) Close() error {
	return wb.file.Close()
}

func sheetName(name string) string {
	name = strings.TrimSpace(sheetNameReplacer.Replace(name))
	if name == "" {
		name = "Sheet"
	}
	if utf8.RuneCountInString(name) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	return name
}
