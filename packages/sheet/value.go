package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind discriminates the variants of Value.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindNumber
	KindText
	KindBool
)

// Value is the tagged union of every runtime cell value. Exactly one of the
// payload fields is meaningful, selected by Kind. An empty Value is the
// zero value.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
	Bool bool
}

// Number builds a numeric Value.
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// Text builds a text Value.
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// Boolean builds a boolean Value.
func Boolean(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Empty is the empty-cell Value.
func Empty() Value {
	return Value{}
}

func (v Value) IsEmpty() bool {
	return v.Kind == KindEmpty
}

// String renders the value the way it appears in a cell display.
func (v Value) String() string {
	return toText(v)
}

// All coercion rules live below. Operators and built-in functions never
// inspect Value payloads directly; they go through toNumber/toText/isTruthy
// so that every coercion rule exists in exactly one place.

// toNumber coerces a value to a number. Empty cells coerce to 0, booleans
// to 1/0, and text is accepted when the whole trimmed string parses as a
// float. ok is false when no numeric reading exists.
func toNumber(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindText:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindEmpty:
		return 0, true
	default:
		return 0, false
	}
}

// toText coerces a value to text. Empty cells coerce to the empty string.
func toText(v Value) string {
	switch v.Kind {
	case KindNumber:
		return formatNumber(v.Num)
	case KindText:
		return v.Text
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// isTruthy implements the boolean coercion used by IF/AND/OR and friends:
// nonzero numbers and non-empty strings are true, empty cells are false.
func isTruthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindText:
		return v.Text != ""
	default:
		return false
	}
}

// compare orders two values. Returns -1, 0, or 1. Numbers compare
// numerically (text that reads as a number participates), booleans compare
// with false < true, everything else falls back to text comparison.
func compare(left, right Value) int {
	if left.IsEmpty() && right.IsEmpty() {
		return 0
	}

	leftNum, leftIsNum := toNumber(left)
	rightNum, rightIsNum := toNumber(right)
	if leftIsNum && rightIsNum {
		switch {
		case leftNum < rightNum:
			return -1
		case leftNum > rightNum:
			return 1
		default:
			return 0
		}
	}

	if left.Kind == KindBool && right.Kind == KindBool {
		switch {
		case left.Bool == right.Bool:
			return 0
		case !left.Bool:
			return -1
		default:
			return 1
		}
	}

	leftStr := toText(left)
	rightStr := toText(right)
	switch {
	case leftStr < rightStr:
		return -1
	case leftStr > rightStr:
		return 1
	default:
		return 0
	}
}

// formatNumber renders a number without unnecessary decimals
func formatNumber(n float64) string {
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return fmt.Sprintf("%g", n)
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// parseLiteral interprets a non-formula raw cell string: number first, then
// case-insensitive boolean, otherwise text.
func parseLiteral(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Number(n)
		}
		switch strings.ToLower(trimmed) {
		case "true":
			return Boolean(true)
		case "false":
			return Boolean(false)
		}
	}
	if raw == "" {
		return Empty()
	}
	return Text(raw)
}
