package sheet

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// DocMagic is the first line of the plain-text document format
const DocMagic = "#%sheetdoc 1"

// Document is a parsed plain-text sheet document
type Document struct {
	Version int
	Sheets  []DocSheet
}

// DocSheet is one sheet in a document
type DocSheet struct {
	Title string
	Rows  int
	Cols  int
	Cells []DocCell
}

// DocCell is one cell line. Value holds the display text for formula cells
// and the raw content for literal cells, so that literal content survives a
// round trip unchanged.
type DocCell struct {
	Address   string
	Value     string
	Formula   string
	DependsOn []string
}

// Data converts the sheet back to its editable form. Formula cells keep
// their formula, literal cells keep their raw content.
func (s *DocSheet) Data() *SheetData {
	data := NewSheet(s.Rows, s.Cols)
	for _, cell := range s.Cells {
		if cell.Formula != "" {
			data.Cells[cell.Address] = cell.Formula
		} else {
			data.Cells[cell.Address] = cell.Value
		}
	}
	return Sanitize(data)
}

// IsSheetDoc reports whether the text looks like a sheet document
func IsSheetDoc(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "#%sheetdoc")
}

// Serialize evaluates the sheet and renders it as a document. Formula
// cells carry their display value, formula, and dependency list; literal
// cells carry only their raw content.
func Serialize(sheet *SheetData) string {
	ev := Evaluate(sheet, nil)
	doc := &Document{
		Version: CurrentVersion,
		Sheets: []DocSheet{{
			Title: "Main",
			Rows:  ev.Sheet.RowCount,
			Cols:  ev.Sheet.ColumnCount,
		}},
	}

	for _, addr := range sortedAddresses(ev.Sheet) {
		cell := ev.Cell(addr)
		docCell := DocCell{Address: addr}
		if cell.Formula != "" {
			docCell.Value = cell.Display()
			docCell.Formula = cell.Formula
			docCell.DependsOn = cell.DependsOn
		} else {
			docCell.Value = cell.Content
		}
		doc.Sheets[0].Cells = append(doc.Sheets[0].Cells, docCell)
	}

	return renderDoc(doc)
}

func renderDoc(doc *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%%sheetdoc %d\n", doc.Version)
	for _, s := range doc.Sheets {
		fmt.Fprintf(&b, "sheet %s rows=%d cols=%d\n", strconv.Quote(s.Title), s.Rows, s.Cols)
		for _, cell := range s.Cells {
			fmt.Fprintf(&b, "%s %s", cell.Address, strconv.Quote(cell.Value))
			if cell.Formula != "" {
				fmt.Fprintf(&b, " %s", strconv.Quote(cell.Formula))
			}
			if len(cell.DependsOn) > 0 {
				b.WriteString(" <-")
				for _, dep := range cell.DependsOn {
					fmt.Fprintf(&b, " %s", strconv.Quote(dep))
				}
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ParseDoc parses document text. Unlike ParseContent it is strict: any
// malformed line is an error.
func ParseDoc(text string) (*Document, error) {
	doc := &Document{}
	sawMagic := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawMagic {
			version, ok := strings.CutPrefix(line, "#%sheetdoc")
			if !ok {
				return nil, fmt.Errorf("line %d: missing document header", lineNo)
			}
			v, err := strconv.Atoi(strings.TrimSpace(version))
			if err != nil {
				return nil, fmt.Errorf("line %d: malformed document header", lineNo)
			}
			if v != CurrentVersion {
				return nil, fmt.Errorf("line %d: unsupported document version %d", lineNo, v)
			}
			doc.Version = v
			sawMagic = true
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := docFields(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if !fields[0].quoted && fields[0].text == "sheet" {
			s, err := parseSheetLine(fields)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			doc.Sheets = append(doc.Sheets, s)
			continue
		}

		if len(doc.Sheets) == 0 {
			return nil, fmt.Errorf("line %d: cell outside of a sheet", lineNo)
		}
		cell, err := parseCellLine(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		last := &doc.Sheets[len(doc.Sheets)-1]
		last.Cells = append(last.Cells, cell)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawMagic {
		return nil, fmt.Errorf("missing document header")
	}

	return doc, nil
}

type docField struct {
	text   string
	quoted bool
}

// docFields splits a line into bare words and decoded quoted strings
func docFields(line string) ([]docField, error) {
	var fields []docField
	rest := line
	for rest != "" {
		if rest[0] == '"' {
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, fmt.Errorf("malformed quoted field")
			}
			text, err := strconv.Unquote(quoted)
			if err != nil {
				return nil, fmt.Errorf("malformed quoted field")
			}
			fields = append(fields, docField{text: text, quoted: true})
			rest = rest[len(quoted):]
			// fields are whitespace separated; anything glued to the
			// closing quote is malformed
			if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
				return nil, fmt.Errorf("missing separator after quoted field")
			}
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			fields = append(fields, docField{text: rest[:end]})
			rest = rest[end:]
		}
		rest = strings.TrimLeft(rest, " \t")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	return fields, nil
}

func parseSheetLine(fields []docField) (DocSheet, error) {
	s := DocSheet{Rows: 1, Cols: 1}
	if len(fields) < 2 || !fields[1].quoted {
		return s, fmt.Errorf("sheet line requires a quoted title")
	}
	s.Title = fields[1].text

	for _, f := range fields[2:] {
		if f.quoted {
			return s, fmt.Errorf("unexpected quoted field in sheet line")
		}
		key, val, ok := strings.Cut(f.text, "=")
		if !ok {
			return s, fmt.Errorf("malformed sheet attribute: %s", f.text)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return s, fmt.Errorf("malformed sheet attribute: %s", f.text)
		}
		switch key {
		case "rows":
			s.Rows = n
		case "cols":
			s.Cols = n
		default:
			return s, fmt.Errorf("unknown sheet attribute: %s", key)
		}
	}
	return s, nil
}

func parseCellLine(fields []docField) (DocCell, error) {
	cell := DocCell{}
	if fields[0].quoted || !IsAddress(fields[0].text) {
		return cell, fmt.Errorf("malformed cell address: %s", fields[0].text)
	}
	cell.Address = fields[0].text

	if len(fields) < 2 || !fields[1].quoted {
		return cell, fmt.Errorf("cell line requires a quoted value")
	}
	cell.Value = fields[1].text

	rest := fields[2:]
	if len(rest) > 0 && rest[0].quoted {
		cell.Formula = rest[0].text
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return cell, nil
	}
	if rest[0].quoted || rest[0].text != "<-" {
		return cell, fmt.Errorf("expected '<-' before dependency list")
	}
	for _, f := range rest[1:] {
		if !f.quoted {
			return cell, fmt.Errorf("dependencies must be quoted")
		}
		cell.DependsOn = append(cell.DependsOn, f.text)
	}
	return cell, nil
}
