package sheet

// ErrorKind classifies per-cell evaluation errors
type ErrorKind uint8

const (
	ErrParse     ErrorKind = 1 // malformed formula or address
	ErrCircular  ErrorKind = 2 // cell participates in a dependency cycle
	ErrDiv0      ErrorKind = 3 // division by a zero operand
	ErrArgument  ErrorKind = 4 // wrong arity or type for a function
	ErrReference ErrorKind = 5 // external page unavailable or resolver failure
	ErrRuntime   ErrorKind = 6 // any other function-level failure
)

// defaultMessages maps error kinds to their fallback messages
var defaultMessages = map[ErrorKind]string{
	ErrParse:     "Parse error",
	ErrCircular:  "Circular reference detected",
	ErrDiv0:      "Division by zero",
	ErrArgument:  "Invalid argument",
	ErrReference: "reference not available",
	ErrRuntime:   "Evaluation error",
}

// ErrorDisplay is the display sentinel carried by every errored cell.
const ErrorDisplay = "#ERROR"

// CellError is an evaluation error scoped to a single cell. Errors flow as
// values through the evaluator; they never abort a sheet pass.
type CellError struct {
	Kind    ErrorKind
	Message string
}

func (e *CellError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Kind]
}

func newCellError(kind ErrorKind, message string) *CellError {
	if message == "" {
		message = defaultMessages[kind]
	}
	return &CellError{Kind: kind, Message: message}
}
