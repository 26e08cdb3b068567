// Package sheet implements a spreadsheet formula engine: cell addressing,
// formula parsing and evaluation with dependency tracking, external page
// references, and a plain-text document format for persisted sheets.
package sheet

// CurrentVersion is the sheet content schema version
const CurrentVersion = 1

// SheetData is the persisted form of a sheet: a sparse map from cell
// address to raw content. Content starting with '=' is a formula,
// everything else is a literal.
type SheetData struct {
	Version     int               `json:"version" yaml:"version"`
	RowCount    int               `json:"rowCount" yaml:"rowCount"`
	ColumnCount int               `json:"columnCount" yaml:"columnCount"`
	Cells       map[string]string `json:"cells" yaml:"cells"`
}

// NewSheet creates an empty sheet with the given grid dimensions. Counts
// below one are clamped to one.
func NewSheet(rowCount, columnCount int) *SheetData {
	if rowCount < 1 {
		rowCount = 1
	}
	if columnCount < 1 {
		columnCount = 1
	}
	return &SheetData{
		Version:     CurrentVersion,
		RowCount:    rowCount,
		ColumnCount: columnCount,
		Cells:       map[string]string{},
	}
}

// Sanitize returns a structurally valid copy of the sheet: dimensions
// clamped to at least one, cell keys restricted to well-formed addresses,
// and empty cells dropped. A nil sheet becomes an empty 1x1 sheet. Cells
// addressed outside the grid are kept; the grid describes the editing
// surface, not a hard bound.
func Sanitize(sheet *SheetData) *SheetData {
	if sheet == nil {
		return NewSheet(1, 1)
	}

	clean := NewSheet(sheet.RowCount, sheet.ColumnCount)
	for addr, content := range sheet.Cells {
		if content == "" || !IsAddress(addr) {
			continue
		}
		clean.Cells[addr] = content
	}
	return clean
}
