package sheet

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSerialize(t *testing.T) {
	sheet := NewSheet(3, 2)
	sheet.Cells["A1"] = "15"
	sheet.Cells["A2"] = "25"
	sheet.Cells["B1"] = "=A1+A2"
	sheet.Cells["B2"] = `say "hi"`

	got := Serialize(sheet)
	want := `#%sheetdoc 1
sheet "Main" rows=3 cols=2
A1 "15"
B1 "40" "=A1+A2" <- "A1" "A2"
A2 "25"
B2 "say \"hi\""
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Serialize mismatch (-want +got):\n%s", diff)
	}
	if !IsSheetDoc(got) {
		t.Error("IsSheetDoc(Serialize(...)) = false")
	}
}

func TestSerializeErrors(t *testing.T) {
	sheet := NewSheet(1, 2)
	sheet.Cells["A1"] = "=1/0"

	got := Serialize(sheet)
	if !strings.Contains(got, `A1 "#ERROR" "=1/0"`) {
		t.Errorf("error cell not rendered with sentinel:\n%s", got)
	}
}

func TestParseDoc(t *testing.T) {
	text := `#%sheetdoc 1

# totals
sheet "Main" rows=2 cols=2
A1 "15"
B1 "30" "=A1*2" <- "A1"
`
	doc, err := ParseDoc(text)
	if err != nil {
		t.Fatalf("ParseDoc failed: %v", err)
	}

	want := &Document{
		Version: 1,
		Sheets: []DocSheet{{
			Title: "Main",
			Rows:  2,
			Cols:  2,
			Cells: []DocCell{
				{Address: "A1", Value: "15"},
				{Address: "B1", Value: "30", Formula: "=A1*2", DependsOn: []string{"A1"}},
			},
		}},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("ParseDoc mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDocMalformed(t *testing.T) {
	malformed := map[string]string{
		"no header":          `sheet "Main" rows=1 cols=1`,
		"bad version":        "#%sheetdoc 99\nsheet \"Main\" rows=1 cols=1",
		"cell before sheet":  "#%sheetdoc 1\nA1 \"x\"",
		"unquoted value":     "#%sheetdoc 1\nsheet \"Main\" rows=1 cols=1\nA1 x",
		"bad address":        "#%sheetdoc 1\nsheet \"Main\" rows=1 cols=1\nA0 \"x\"",
		"unterminated quote": "#%sheetdoc 1\nsheet \"Main\" rows=1 cols=1\nA1 \"x",
		"bad sheet attr":     "#%sheetdoc 1\nsheet \"Main\" rows=x cols=1",
		"bare dependency":    "#%sheetdoc 1\nsheet \"Main\" rows=1 cols=1\nA1 \"1\" \"=B1\" <- B1",
		"glued quoted pair":  "#%sheetdoc 1\nsheet \"Main\" rows=1 cols=1\nA1 \"x\"\"y\"",
		"glued after quote":  "#%sheetdoc 1\nsheet \"Main\" rows=1 cols=1\nA1 \"x\"y",
		"empty input":        "",
	}

	for name, text := range malformed {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDoc(text); err == nil {
				t.Errorf("ParseDoc succeeded, want error")
			}
		})
	}
}

func TestDocRoundTrip(t *testing.T) {
	sheet := NewSheet(4, 3)
	sheet.Cells["A1"] = "10"
	sheet.Cells["A2"] = "TRUE"
	sheet.Cells["A3"] = "plain text"
	sheet.Cells["B1"] = "=A1*2"
	sheet.Cells["B2"] = "=SUM(A1:A2)"
	sheet.Cells["C1"] = "=1/0"

	parsed := ParseContent(Serialize(sheet))
	if diff := cmp.Diff(Sanitize(sheet), parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseContentLoose(t *testing.T) {
	cases := []struct {
		name string
		text string
		want *SheetData
	}{
		{
			name: "json",
			text: `{"version": 1, "rowCount": 3, "columnCount": 2, "cells": {"A1": "5", "B1": "=A1"}}`,
			want: &SheetData{Version: 1, RowCount: 3, ColumnCount: 2, Cells: map[string]string{"A1": "5", "B1": "=A1"}},
		},
		{
			name: "case insensitive keys",
			text: `{"ROWCOUNT": 2, "ColumnCount": 2, "CELLS": {"a1": "x"}}`,
			want: &SheetData{Version: 1, RowCount: 2, ColumnCount: 2, Cells: map[string]string{"A1": "x"}},
		},
		{
			name: "fractional dimensions floor",
			text: `{"rowCount": 3.9, "columnCount": 2.2, "cells": {}}`,
			want: &SheetData{Version: 1, RowCount: 3, ColumnCount: 2, Cells: map[string]string{}},
		},
		{
			name: "numeric and bool cell values",
			text: `{"rowCount": 1, "columnCount": 3, "cells": {"A1": 15, "B1": 2.5, "C1": true}}`,
			want: &SheetData{Version: 1, RowCount: 1, ColumnCount: 3, Cells: map[string]string{"A1": "15", "B1": "2.5", "C1": "true"}},
		},
		{
			name: "yaml",
			text: "rowCount: 2\ncolumnCount: 2\ncells:\n  A1: \"7\"\n  B2: \"=A1\"\n",
			want: &SheetData{Version: 1, RowCount: 2, ColumnCount: 2, Cells: map[string]string{"A1": "7", "B2": "=A1"}},
		},
		{
			name: "garbage degrades to empty",
			text: "not a sheet at all",
			want: NewSheet(1, 1),
		},
		{
			name: "empty input",
			text: "",
			want: NewSheet(1, 1),
		},
		{
			name: "broken doc degrades to empty",
			text: "#%sheetdoc 1\nbroken line here",
			want: NewSheet(1, 1),
		},
		{
			name: "invalid cell keys dropped",
			text: `{"rowCount": 1, "columnCount": 1, "cells": {"foo": "1", "A1": "2"}}`,
			want: &SheetData{Version: 1, RowCount: 1, ColumnCount: 1, Cells: map[string]string{"A1": "2"}},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseContent(c.text)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("ParseContent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseContentDoc(t *testing.T) {
	text := `#%sheetdoc 1
sheet "Main" rows=2 cols=2
A1 "15"
B1 "30" "=A1*2" <- "A1"
`
	got := ParseContent(text)
	want := &SheetData{
		Version:     1,
		RowCount:    2,
		ColumnCount: 2,
		Cells:       map[string]string{"A1": "15", "B1": "=A1*2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseContent mismatch (-want +got):\n%s", diff)
	}
}
