package sheet

import (
	"sort"
	"strings"
)

// EvalOptions configures an evaluation pass. All fields are optional.
type EvalOptions struct {
	// PageID and PageTitle identify the page owning the sheet. External
	// references that point back at the owning page are reported as
	// circular instead of being resolved.
	PageID    string
	PageTitle string

	// Resolve resolves external references. Nil fails every external
	// reference with the default message.
	Resolve ResolveFunc

	// Clock and Rand override the time and randomness sources
	Clock Clock
	Rand  RandomGenerator
}

// EvaluatedCell is the evaluation result for a single cell
type EvaluatedCell struct {
	Address    string
	Content    string // raw cell content
	Formula    string // raw formula including '=', "" for literal cells
	Value      Value
	Error      *CellError
	DependsOn  []string // referenced cells and external tokens, in order of first appearance
	Dependents []string // cells whose formulas reference this one, in row-major order
}

// Display returns the cell's display text: the error sentinel for failed
// cells, otherwise the value coerced to text.
func (c *EvaluatedCell) Display() string {
	if c.Error != nil {
		return ErrorDisplay
	}
	return toText(c.Value)
}

// Evaluation is the result of evaluating a whole sheet
type Evaluation struct {
	Sheet *SheetData

	// Cells maps addresses to results. Only cells with content, plus
	// cells referenced by formulas, have entries.
	Cells map[string]*EvaluatedCell

	// Dependents is the inverse dependency map: for each referenced
	// cell or external token, the addresses of cells that depend on it.
	Dependents map[string][]string
}

// Cell returns the result for an address, or an empty result when the
// address was never touched during evaluation.
func (ev *Evaluation) Cell(addr string) *EvaluatedCell {
	if c, ok := ev.Cells[addr]; ok {
		return c
	}
	return &EvaluatedCell{Address: addr, Value: Empty()}
}

const (
	stateVisiting = 1
	stateDone     = 2
)

type resolvedExternal struct {
	eval *Evaluation
	err  *CellError
}

// evalContext carries the state of one evaluation pass
type evalContext struct {
	sheet     *SheetData
	functions *BuiltInFunctions
	opts      *EvalOptions

	results  map[string]*EvaluatedCell
	state    map[string]int
	stack    []string
	extCache map[string]*resolvedExternal
}

// Evaluate evaluates every cell of the sheet and returns the results. The
// input is sanitized first; Evaluate never fails, per-cell problems are
// reported as cell errors.
func Evaluate(sheet *SheetData, opts *EvalOptions) *Evaluation {
	if opts == nil {
		opts = &EvalOptions{}
	}
	clean := Sanitize(sheet)

	functions := NewBuiltInFunctions()
	if opts.Clock != nil {
		functions.Clock = opts.Clock
	}
	if opts.Rand != nil {
		functions.Random = opts.Rand
	}

	ctx := &evalContext{
		sheet:     clean,
		functions: functions,
		opts:      opts,
		results:   map[string]*EvaluatedCell{},
		state:     map[string]int{},
		extCache:  map[string]*resolvedExternal{},
	}

	for _, addr := range sortedAddresses(clean) {
		ctx.evalCell(addr)
	}

	dependents := map[string][]string{}
	for _, addr := range sortedAddresses(clean) {
		for _, dep := range ctx.results[addr].DependsOn {
			dependents[dep] = append(dependents[dep], addr)
		}
	}
	for addr, cell := range ctx.results {
		cell.Dependents = dependents[addr]
	}

	return &Evaluation{Sheet: clean, Cells: ctx.results, Dependents: dependents}
}

// sortedAddresses returns the populated cell addresses in row-major order
// so that evaluation and dependent ordering are deterministic.
func sortedAddresses(sheet *SheetData) []string {
	type pos struct {
		addr     string
		row, col int
	}
	cells := make([]pos, 0, len(sheet.Cells))
	for addr := range sheet.Cells {
		row, col, err := DecodeAddress(addr)
		if err != nil {
			continue
		}
		cells = append(cells, pos{addr: addr, row: row, col: col})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].row != cells[j].row {
			return cells[i].row < cells[j].row
		}
		return cells[i].col < cells[j].col
	})
	addrs := make([]string, len(cells))
	for i, c := range cells {
		addrs[i] = c.addr
	}
	return addrs
}

// evalCell evaluates one cell, recursing into its dependencies first.
// Revisiting a cell already on the evaluation stack marks the whole cycle.
func (e *evalContext) evalCell(addr string) {
	switch e.state[addr] {
	case stateDone:
		return
	case stateVisiting:
		e.markCycle(addr)
		return
	}

	e.state[addr] = stateVisiting
	e.stack = append(e.stack, addr)
	defer func() {
		e.stack = e.stack[:len(e.stack)-1]
		e.state[addr] = stateDone
	}()

	content := e.sheet.Cells[addr]
	cell := &EvaluatedCell{Address: addr, Content: content, Value: Empty()}
	e.results[addr] = cell

	if content == "" {
		return
	}
	if !strings.HasPrefix(content, "=") {
		cell.Value = parseLiteral(content)
		return
	}

	cell.Formula = content
	ast, err := ParseFormula(content)
	if err != nil {
		cell.Error = err
		return
	}

	cell.DependsOn = extractDependencies(ast)
	for _, dep := range cell.DependsOn {
		if IsAddress(dep) {
			e.evalCell(dep)
		}
	}

	// a dependency loop back into this cell marks it while we're still
	// in the dependency walk above
	if cell.Error != nil {
		return
	}

	val, evalErr := ast.eval(e)
	if evalErr != nil {
		cell.Error = evalErr
		return
	}
	cell.Value = val
}

// markCycle marks every cell on the active stack from addr onward as
// circular. All members of a cycle fail, not just the closing edge.
func (e *evalContext) markCycle(addr string) {
	i := 0
	for i < len(e.stack) && e.stack[i] != addr {
		i++
	}
	for ; i < len(e.stack); i++ {
		cell := e.results[e.stack[i]]
		cell.Error = newCellError(ErrCircular, "Circular reference detected")
		cell.Value = Empty()
	}
}

// extractDependencies returns the cells and external tokens a formula
// references, deduplicated, in order of first appearance. Range references
// expand to their members in row-major order.
func extractDependencies(ast Node) []string {
	var deps []string
	seen := map[string]bool{}
	add := func(dep string) {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}

	ast.walk(func(n Node) {
		switch node := n.(type) {
		case *CellNode:
			add(node.Address)
		case *RangeNode:
			for _, member := range node.addresses() {
				add(member)
			}
		case *ExternalNode:
			add(node.token())
		}
	})

	return deps
}

// cellValue returns the evaluated value of a referenced cell. Errors
// propagate to the referencing cell with their message intact.
func (e *evalContext) cellValue(addr string) (Value, *CellError) {
	cell, ok := e.results[addr]
	if !ok {
		// referenced cells are evaluated before their dependents; a miss
		// means the address holds no content
		return Empty(), nil
	}
	if cell.Error != nil {
		return Empty(), cell.Error
	}
	return cell.Value, nil
}

// rangeValues returns the values of all range members in row-major order
func (e *evalContext) rangeValues(n *RangeNode) ([]Value, *CellError) {
	members := n.addresses()
	values := make([]Value, 0, len(members))
	for _, addr := range members {
		val, err := e.cellValue(addr)
		if err != nil {
			return nil, err
		}
		values = append(values, val)
	}
	return values, nil
}

// resolveExternal resolves and evaluates an external reference, caching the
// result per base token for the duration of the pass.
func (e *evalContext) resolveExternal(ref ExternalReference) *resolvedExternal {
	if cached, ok := e.extCache[ref.Raw]; ok {
		return cached
	}
	res := &resolvedExternal{}
	e.extCache[ref.Raw] = res

	// a reference back to the owning page can never settle
	if (ref.Identifier != "" && ref.Identifier == e.opts.PageID) ||
		(ref.Identifier == "" && e.opts.PageTitle != "" && ref.Label == e.opts.PageTitle) {
		res.err = newCellError(ErrCircular, "Circular reference detected")
		return res
	}

	if e.opts.Resolve == nil {
		res.err = newCellError(ErrReference, "reference not available")
		return res
	}

	resolved := e.opts.Resolve(ref)
	if resolved.Error != "" {
		res.err = newCellError(ErrReference, resolved.Error)
		return res
	}
	if resolved.Sheet == nil {
		res.err = newCellError(ErrReference, "reference not available")
		return res
	}

	// the referenced sheet is evaluated without a resolver: external
	// references only follow one level of indirection
	res.eval = Evaluate(resolved.Sheet, &EvalOptions{
		PageID:    resolved.PageID,
		PageTitle: resolved.PageTitle,
		Clock:     e.opts.Clock,
		Rand:      e.opts.Rand,
	})
	return res
}

// externalValue returns the value of a single external cell reference
func (e *evalContext) externalValue(n *ExternalNode) (Value, *CellError) {
	res := e.resolveExternal(n.Ref)
	if res.err != nil {
		return Empty(), res.err
	}
	if n.Start == "" {
		return Empty(), newCellError(ErrRuntime, "external reference requires a cell address")
	}
	// range suffixes only carry meaning as function arguments, same as
	// in-grid ranges
	if n.End != "" {
		return Empty(), newCellError(ErrRuntime, "range cannot be used as a single value")
	}
	cell := res.eval.Cell(n.Start)
	if cell.Error != nil {
		return Empty(), cell.Error
	}
	return cell.Value, nil
}

// externalRange returns the values of an external range in row-major order
func (e *evalContext) externalRange(n *ExternalNode) ([]Value, *CellError) {
	res := e.resolveExternal(n.Ref)
	if res.err != nil {
		return nil, res.err
	}

	startRow, startCol, err := DecodeAddress(n.Start)
	if err != nil {
		return nil, newCellError(ErrParse, err.Error())
	}
	endRow, endCol, err := DecodeAddress(n.End)
	if err != nil {
		return nil, newCellError(ErrParse, err.Error())
	}
	if startRow > endRow {
		startRow, endRow = endRow, startRow
	}
	if startCol > endCol {
		startCol, endCol = endCol, startCol
	}

	var values []Value
	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			cell := res.eval.Cell(EncodeAddress(row, col))
			if cell.Error != nil {
				return nil, cell.Error
			}
			values = append(values, cell.Value)
		}
	}
	return values, nil
}
