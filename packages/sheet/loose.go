package sheet

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// ParseContent parses stored page content into sheet data. It accepts the
// plain-text document format as well as JSON or YAML objects, matching
// field names case-insensitively. It never fails: unusable input degrades
// to an empty sheet, and the result is always sanitized.
func ParseContent(text string) *SheetData {
	if strings.TrimSpace(text) == "" {
		return NewSheet(1, 1)
	}

	if IsSheetDoc(text) {
		doc, err := ParseDoc(text)
		if err != nil || len(doc.Sheets) == 0 {
			return NewSheet(1, 1)
		}
		return doc.Sheets[0].Data()
	}

	// YAML is a superset of JSON, so one decoder covers both
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return NewSheet(1, 1)
	}

	sheet := &SheetData{Version: CurrentVersion, Cells: map[string]string{}}
	for key, val := range raw {
		switch strings.ToLower(key) {
		case "version":
			if n, ok := looseInt(val); ok {
				sheet.Version = n
			}
		case "rowcount", "rows":
			if n, ok := looseInt(val); ok {
				sheet.RowCount = n
			}
		case "columncount", "cols":
			if n, ok := looseInt(val); ok {
				sheet.ColumnCount = n
			}
		case "cells":
			cells, ok := val.(map[string]any)
			if !ok {
				continue
			}
			for addr, content := range cells {
				if s, ok := looseString(content); ok {
					sheet.Cells[toUpperASCII(addr)] = s
				}
			}
		}
	}

	return Sanitize(sheet)
}

// looseInt coerces a decoded scalar to an int, flooring fractions
func looseInt(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(math.Floor(v)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Floor(f)), true
	default:
		return 0, false
	}
}

// looseString coerces a decoded scalar to cell content
func looseString(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case float64:
		return formatNumber(v), true
	case int:
		return formatNumber(float64(v)), true
	case int64:
		return formatNumber(float64(v)), true
	case uint64:
		return formatNumber(float64(v)), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
