package sheet

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Clock provides the current time. Injectable so that date functions are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock
type WallClock struct{}

func (WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator provides random numbers. Injectable so that RAND and
// RANDBETWEEN are deterministic in tests.
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses math/rand
type DefaultRandomGenerator struct{}

func (DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// callArg is a single evaluated function argument. Range arguments arrive
// as lists of member values, everything else as a scalar.
type callArg struct {
	value  Value
	isList bool
	list   []Value
}

// BuiltInFunctions implements the spreadsheet function library
type BuiltInFunctions struct {
	Clock  Clock
	Random RandomGenerator
}

// NewBuiltInFunctions creates the function library with real time and
// randomness sources.
func NewBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{
		Clock:  WallClock{},
		Random: DefaultRandomGenerator{},
	}
}

// Call invokes a built-in function by its uppercase name
func (f *BuiltInFunctions) Call(name string, args []callArg) (Value, *CellError) {
	switch name {
	// aggregation
	case "SUM":
		return f.sum(args)
	case "AVERAGE":
		return f.average(args)
	case "COUNT":
		return f.count(args)
	case "COUNTA":
		return f.countA(args)
	case "MAX":
		return f.maxOf(args)
	case "MIN":
		return f.minOf(args)
	case "MEDIAN":
		return f.median(args)

	// math
	case "ABS":
		return f.mathOne(name, args, math.Abs)
	case "ROUND":
		return f.round(args)
	case "FLOOR":
		return f.mathOne(name, args, math.Floor)
	case "CEILING":
		return f.mathOne(name, args, math.Ceil)
	case "SQRT":
		return f.sqrt(args)
	case "POWER", "POW":
		return f.power(name, args)
	case "MOD":
		return f.mod(args)
	case "INT":
		return f.mathOne(name, args, math.Floor)
	case "SIGN":
		return f.sign(args)
	case "PI":
		if err := argCount(name, args, 0, 0); err != nil {
			return Empty(), err
		}
		return Number(math.Pi), nil
	case "RAND":
		if err := argCount(name, args, 0, 0); err != nil {
			return Empty(), err
		}
		return Number(f.Random.Float64()), nil
	case "RANDBETWEEN":
		return f.randBetween(args)

	// logic
	case "IF":
		return f.ifFunc(args)
	case "AND":
		return f.andOr(name, args, true)
	case "OR":
		return f.andOr(name, args, false)
	case "NOT":
		return f.not(args)
	case "ISBLANK":
		return f.kindCheck(name, args, KindEmpty)
	case "ISNUMBER":
		return f.kindCheck(name, args, KindNumber)
	case "ISTEXT":
		return f.kindCheck(name, args, KindText)

	// text
	case "UPPER":
		return f.textOne(name, args, strings.ToUpper)
	case "LOWER":
		return f.textOne(name, args, strings.ToLower)
	case "TRIM":
		return f.textOne(name, args, strings.TrimSpace)
	case "LEN":
		return f.length(args)
	case "LEFT":
		return f.leftRight(name, args, true)
	case "RIGHT":
		return f.leftRight(name, args, false)
	case "MID":
		return f.mid(args)
	case "SUBSTITUTE":
		return f.substitute(args)
	case "REPT":
		return f.rept(args)
	case "FIND":
		return f.findText(name, args, true)
	case "SEARCH":
		return f.findText(name, args, false)
	case "CONCAT", "CONCATENATE":
		return f.concat(args)

	// date
	case "TODAY":
		if err := argCount(name, args, 0, 0); err != nil {
			return Empty(), err
		}
		return Text(f.Clock.Now().Format("2006-01-02")), nil
	case "NOW":
		if err := argCount(name, args, 0, 0); err != nil {
			return Empty(), err
		}
		return Text(f.Clock.Now().Format("2006-01-02T15:04:05")), nil
	case "YEAR":
		return f.datePart(name, args, func(t time.Time) int { return t.Year() })
	case "MONTH":
		return f.datePart(name, args, func(t time.Time) int { return int(t.Month()) })
	case "DAY":
		return f.datePart(name, args, func(t time.Time) int { return t.Day() })

	default:
		return Empty(), newCellError(ErrRuntime, fmt.Sprintf("unknown function: %s", name))
	}
}

// argCount validates the argument count. maxArgs of -1 means variadic.
func argCount(name string, args []callArg, minArgs, maxArgs int) *CellError {
	n := len(args)
	if n < minArgs || (maxArgs >= 0 && n > maxArgs) {
		if minArgs == maxArgs {
			return newCellError(ErrArgument, fmt.Sprintf("%s requires exactly %d argument(s), got %d", name, minArgs, n))
		}
		return newCellError(ErrArgument, fmt.Sprintf("%s requires %d to %d arguments, got %d", name, minArgs, maxArgs, n))
	}
	return nil
}

// scalarArg returns argument i as a scalar, rejecting range arguments
func scalarArg(name string, args []callArg, i int) (Value, *CellError) {
	if args[i].isList {
		return Empty(), newCellError(ErrArgument, fmt.Sprintf("%s does not accept a range for argument %d", name, i+1))
	}
	return args[i].value, nil
}

func numberArg(name string, args []callArg, i int) (float64, *CellError) {
	val, err := scalarArg(name, args, i)
	if err != nil {
		return 0, err
	}
	num, ok := toNumber(val)
	if !ok {
		return 0, newCellError(ErrArgument, fmt.Sprintf("%s argument %d must be numeric", name, i+1))
	}
	return num, nil
}

func textArg(name string, args []callArg, i int) (string, *CellError) {
	val, err := scalarArg(name, args, i)
	if err != nil {
		return "", err
	}
	return toText(val), nil
}

// numbers collects numeric values for aggregation. Direct scalar arguments
// must coerce to numbers; range members that are not numbers are skipped.
func numbers(name string, args []callArg) ([]float64, *CellError) {
	var nums []float64
	for i, arg := range args {
		if arg.isList {
			for _, val := range arg.list {
				if val.Kind == KindNumber {
					nums = append(nums, val.Num)
				}
			}
			continue
		}
		num, ok := toNumber(arg.value)
		if !ok {
			return nil, newCellError(ErrArgument, fmt.Sprintf("%s argument %d must be numeric", name, i+1))
		}
		nums = append(nums, num)
	}
	return nums, nil
}

func (f *BuiltInFunctions) sum(args []callArg) (Value, *CellError) {
	nums, err := numbers("SUM", args)
	if err != nil {
		return Empty(), err
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return Number(total), nil
}

func (f *BuiltInFunctions) average(args []callArg) (Value, *CellError) {
	if err := argCount("AVERAGE", args, 1, -1); err != nil {
		return Empty(), err
	}
	nums, err := numbers("AVERAGE", args)
	if err != nil {
		return Empty(), err
	}
	if len(nums) == 0 {
		return Empty(), newCellError(ErrDiv0, "Division by zero")
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return Number(total / float64(len(nums))), nil
}

func (f *BuiltInFunctions) count(args []callArg) (Value, *CellError) {
	count := 0
	for _, arg := range args {
		if arg.isList {
			for _, val := range arg.list {
				if val.Kind == KindNumber {
					count++
				}
			}
			continue
		}
		if _, ok := toNumber(arg.value); ok && arg.value.Kind != KindEmpty {
			count++
		}
	}
	return Number(float64(count)), nil
}

func (f *BuiltInFunctions) countA(args []callArg) (Value, *CellError) {
	count := 0
	for _, arg := range args {
		if arg.isList {
			for _, val := range arg.list {
				if val.Kind != KindEmpty {
					count++
				}
			}
			continue
		}
		if arg.value.Kind != KindEmpty {
			count++
		}
	}
	return Number(float64(count)), nil
}

func (f *BuiltInFunctions) maxOf(args []callArg) (Value, *CellError) {
	nums, err := numbers("MAX", args)
	if err != nil {
		return Empty(), err
	}
	if len(nums) == 0 {
		return Number(0), nil
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if n > best {
			best = n
		}
	}
	return Number(best), nil
}

func (f *BuiltInFunctions) minOf(args []callArg) (Value, *CellError) {
	nums, err := numbers("MIN", args)
	if err != nil {
		return Empty(), err
	}
	if len(nums) == 0 {
		return Number(0), nil
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if n < best {
			best = n
		}
	}
	return Number(best), nil
}

func (f *BuiltInFunctions) median(args []callArg) (Value, *CellError) {
	if err := argCount("MEDIAN", args, 1, -1); err != nil {
		return Empty(), err
	}
	nums, err := numbers("MEDIAN", args)
	if err != nil {
		return Empty(), err
	}
	if len(nums) == 0 {
		return Empty(), newCellError(ErrArgument, "MEDIAN requires at least one numeric value")
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return Number(nums[mid]), nil
	}
	return Number((nums[mid-1] + nums[mid]) / 2), nil
}

func (f *BuiltInFunctions) mathOne(name string, args []callArg, fn func(float64) float64) (Value, *CellError) {
	if err := argCount(name, args, 1, 1); err != nil {
		return Empty(), err
	}
	num, err := numberArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	return Number(fn(num)), nil
}

func (f *BuiltInFunctions) round(args []callArg) (Value, *CellError) {
	if err := argCount("ROUND", args, 1, 2); err != nil {
		return Empty(), err
	}
	num, err := numberArg("ROUND", args, 0)
	if err != nil {
		return Empty(), err
	}
	digits := 0.0
	if len(args) == 2 {
		digits, err = numberArg("ROUND", args, 1)
		if err != nil {
			return Empty(), err
		}
	}
	scale := math.Pow(10, math.Trunc(digits))
	return Number(math.Round(num*scale) / scale), nil
}

func (f *BuiltInFunctions) sqrt(args []callArg) (Value, *CellError) {
	if err := argCount("SQRT", args, 1, 1); err != nil {
		return Empty(), err
	}
	num, err := numberArg("SQRT", args, 0)
	if err != nil {
		return Empty(), err
	}
	if num < 0 {
		return Empty(), newCellError(ErrArgument, "SQRT requires a non-negative number")
	}
	return Number(math.Sqrt(num)), nil
}

func (f *BuiltInFunctions) power(name string, args []callArg) (Value, *CellError) {
	if err := argCount(name, args, 2, 2); err != nil {
		return Empty(), err
	}
	base, err := numberArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	exp, err := numberArg(name, args, 1)
	if err != nil {
		return Empty(), err
	}
	return Number(math.Pow(base, exp)), nil
}

func (f *BuiltInFunctions) mod(args []callArg) (Value, *CellError) {
	if err := argCount("MOD", args, 2, 2); err != nil {
		return Empty(), err
	}
	num, err := numberArg("MOD", args, 0)
	if err != nil {
		return Empty(), err
	}
	divisor, err := numberArg("MOD", args, 1)
	if err != nil {
		return Empty(), err
	}
	if divisor == 0 {
		return Empty(), newCellError(ErrDiv0, "Division by zero")
	}
	return Number(math.Mod(num, divisor)), nil
}

func (f *BuiltInFunctions) sign(args []callArg) (Value, *CellError) {
	if err := argCount("SIGN", args, 1, 1); err != nil {
		return Empty(), err
	}
	num, err := numberArg("SIGN", args, 0)
	if err != nil {
		return Empty(), err
	}
	switch {
	case num > 0:
		return Number(1), nil
	case num < 0:
		return Number(-1), nil
	default:
		return Number(0), nil
	}
}

func (f *BuiltInFunctions) randBetween(args []callArg) (Value, *CellError) {
	if err := argCount("RANDBETWEEN", args, 2, 2); err != nil {
		return Empty(), err
	}
	low, err := numberArg("RANDBETWEEN", args, 0)
	if err != nil {
		return Empty(), err
	}
	high, err := numberArg("RANDBETWEEN", args, 1)
	if err != nil {
		return Empty(), err
	}
	lo := math.Ceil(low)
	hi := math.Floor(high)
	if lo > hi {
		return Empty(), newCellError(ErrArgument, "RANDBETWEEN requires low <= high")
	}
	return Number(lo + math.Floor(f.Random.Float64()*(hi-lo+1))), nil
}

func (f *BuiltInFunctions) ifFunc(args []callArg) (Value, *CellError) {
	if err := argCount("IF", args, 2, 3); err != nil {
		return Empty(), err
	}
	cond, err := scalarArg("IF", args, 0)
	if err != nil {
		return Empty(), err
	}
	if isTruthy(cond) {
		return scalarArg("IF", args, 1)
	}
	if len(args) == 3 {
		return scalarArg("IF", args, 2)
	}
	return Boolean(false), nil
}

func (f *BuiltInFunctions) andOr(name string, args []callArg, isAnd bool) (Value, *CellError) {
	if err := argCount(name, args, 1, -1); err != nil {
		return Empty(), err
	}
	for i := range args {
		var vals []Value
		if args[i].isList {
			vals = args[i].list
		} else {
			vals = []Value{args[i].value}
		}
		for _, val := range vals {
			if isAnd && !isTruthy(val) {
				return Boolean(false), nil
			}
			if !isAnd && isTruthy(val) {
				return Boolean(true), nil
			}
		}
	}
	return Boolean(isAnd), nil
}

func (f *BuiltInFunctions) not(args []callArg) (Value, *CellError) {
	if err := argCount("NOT", args, 1, 1); err != nil {
		return Empty(), err
	}
	val, err := scalarArg("NOT", args, 0)
	if err != nil {
		return Empty(), err
	}
	return Boolean(!isTruthy(val)), nil
}

func (f *BuiltInFunctions) kindCheck(name string, args []callArg, kind ValueKind) (Value, *CellError) {
	if err := argCount(name, args, 1, 1); err != nil {
		return Empty(), err
	}
	val, err := scalarArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	return Boolean(val.Kind == kind), nil
}

func (f *BuiltInFunctions) textOne(name string, args []callArg, fn func(string) string) (Value, *CellError) {
	if err := argCount(name, args, 1, 1); err != nil {
		return Empty(), err
	}
	text, err := textArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	return Text(fn(text)), nil
}

func (f *BuiltInFunctions) length(args []callArg) (Value, *CellError) {
	if err := argCount("LEN", args, 1, 1); err != nil {
		return Empty(), err
	}
	text, err := textArg("LEN", args, 0)
	if err != nil {
		return Empty(), err
	}
	return Number(float64(len([]rune(text)))), nil
}

func (f *BuiltInFunctions) leftRight(name string, args []callArg, fromLeft bool) (Value, *CellError) {
	if err := argCount(name, args, 1, 2); err != nil {
		return Empty(), err
	}
	text, err := textArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	count := 1.0
	if len(args) == 2 {
		count, err = numberArg(name, args, 1)
		if err != nil {
			return Empty(), err
		}
	}
	if count < 0 {
		return Empty(), newCellError(ErrArgument, name+" count must be non-negative")
	}

	runes := []rune(text)
	n := int(count)
	if n >= len(runes) {
		return Text(text), nil
	}
	if fromLeft {
		return Text(string(runes[:n])), nil
	}
	return Text(string(runes[len(runes)-n:])), nil
}

func (f *BuiltInFunctions) mid(args []callArg) (Value, *CellError) {
	if err := argCount("MID", args, 3, 3); err != nil {
		return Empty(), err
	}
	text, err := textArg("MID", args, 0)
	if err != nil {
		return Empty(), err
	}
	start, err := numberArg("MID", args, 1)
	if err != nil {
		return Empty(), err
	}
	count, err := numberArg("MID", args, 2)
	if err != nil {
		return Empty(), err
	}
	if start < 1 || count < 0 {
		return Empty(), newCellError(ErrArgument, "MID requires start >= 1 and count >= 0")
	}

	runes := []rune(text)
	from := int(start) - 1
	if from >= len(runes) {
		return Text(""), nil
	}
	to := from + int(count)
	if to > len(runes) {
		to = len(runes)
	}
	return Text(string(runes[from:to])), nil
}

func (f *BuiltInFunctions) substitute(args []callArg) (Value, *CellError) {
	if err := argCount("SUBSTITUTE", args, 3, 3); err != nil {
		return Empty(), err
	}
	text, err := textArg("SUBSTITUTE", args, 0)
	if err != nil {
		return Empty(), err
	}
	old, err := textArg("SUBSTITUTE", args, 1)
	if err != nil {
		return Empty(), err
	}
	repl, err := textArg("SUBSTITUTE", args, 2)
	if err != nil {
		return Empty(), err
	}
	if old == "" {
		return Text(text), nil
	}
	return Text(strings.ReplaceAll(text, old, repl)), nil
}

func (f *BuiltInFunctions) rept(args []callArg) (Value, *CellError) {
	if err := argCount("REPT", args, 2, 2); err != nil {
		return Empty(), err
	}
	text, err := textArg("REPT", args, 0)
	if err != nil {
		return Empty(), err
	}
	count, err := numberArg("REPT", args, 1)
	if err != nil {
		return Empty(), err
	}
	n := int(count)
	if n < 0 {
		return Empty(), newCellError(ErrArgument, "REPT count must be non-negative")
	}
	if len(text)*n > 1<<20 {
		return Empty(), newCellError(ErrArgument, "REPT result is too long")
	}
	return Text(strings.Repeat(text, n)), nil
}

func (f *BuiltInFunctions) findText(name string, args []callArg, caseSensitive bool) (Value, *CellError) {
	if err := argCount(name, args, 2, 3); err != nil {
		return Empty(), err
	}
	needle, err := textArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	haystack, err := textArg(name, args, 1)
	if err != nil {
		return Empty(), err
	}
	start := 1.0
	if len(args) == 3 {
		start, err = numberArg(name, args, 2)
		if err != nil {
			return Empty(), err
		}
	}
	if start < 1 {
		return Empty(), newCellError(ErrArgument, name+" start must be >= 1")
	}

	hayRunes := []rune(haystack)
	from := int(start) - 1
	if from > len(hayRunes) {
		return Empty(), newCellError(ErrRuntime, "text not found")
	}

	searchIn := string(hayRunes[from:])
	target := needle
	if !caseSensitive {
		searchIn = strings.ToLower(searchIn)
		target = strings.ToLower(needle)
	}

	idx := strings.Index(searchIn, target)
	if idx < 0 {
		return Empty(), newCellError(ErrRuntime, "text not found")
	}
	// position is 1-indexed in runes
	pos := from + len([]rune(searchIn[:idx])) + 1
	return Number(float64(pos)), nil
}

func (f *BuiltInFunctions) concat(args []callArg) (Value, *CellError) {
	var b strings.Builder
	for _, arg := range args {
		if arg.isList {
			for _, val := range arg.list {
				b.WriteString(toText(val))
			}
			continue
		}
		b.WriteString(toText(arg.value))
	}
	return Text(b.String()), nil
}

func (f *BuiltInFunctions) datePart(name string, args []callArg, part func(time.Time) int) (Value, *CellError) {
	if err := argCount(name, args, 1, 1); err != nil {
		return Empty(), err
	}
	text, err := textArg(name, args, 0)
	if err != nil {
		return Empty(), err
	}
	t, perr := parseDate(strings.TrimSpace(text))
	if perr != nil {
		return Empty(), newCellError(ErrArgument, fmt.Sprintf("%s could not parse date: %s", name, text))
	}
	return Number(float64(part(t))), nil
}

var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

func parseDate(text string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
