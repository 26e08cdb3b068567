package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// Node is an immutable formula AST node. The AST enables dependency
// extraction and evaluation through tree traversal rather than
// string manipulation.
type Node interface {
	eval(ctx *evalContext) (Value, *CellError)
	// walk visits the node and its children depth-first, left to right
	walk(fn func(Node))
	String() string
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value float64
}

func (n *NumberNode) eval(ctx *evalContext) (Value, *CellError) {
	return Number(n.Value), nil
}

func (n *NumberNode) walk(fn func(Node)) { fn(n) }

func (n *NumberNode) String() string {
	return formatNumber(n.Value)
}

// StringNode represents a string literal
type StringNode struct {
	Value string
}

func (n *StringNode) eval(ctx *evalContext) (Value, *CellError) {
	return Text(n.Value), nil
}

func (n *StringNode) walk(fn func(Node)) { fn(n) }

func (n *StringNode) String() string {
	return `"` + strings.ReplaceAll(n.Value, `"`, `""`) + `"`
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value bool
}

func (n *BooleanNode) eval(ctx *evalContext) (Value, *CellError) {
	return Boolean(n.Value), nil
}

func (n *BooleanNode) walk(fn func(Node)) { fn(n) }

func (n *BooleanNode) String() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellNode represents a single cell reference, normalized to uppercase
type CellNode struct {
	Address string
}

func (n *CellNode) eval(ctx *evalContext) (Value, *CellError) {
	return ctx.cellValue(n.Address)
}

func (n *CellNode) walk(fn func(Node)) { fn(n) }

func (n *CellNode) String() string {
	return n.Address
}

// RangeNode represents an inclusive rectangular range, normalized so that
// the start corner is less than or equal to the end corner.
type RangeNode struct {
	StartRow, StartCol int
	EndRow, EndCol     int
}

func (n *RangeNode) eval(ctx *evalContext) (Value, *CellError) {
	// ranges only carry meaning as function arguments
	return Empty(), newCellError(ErrRuntime, "range cannot be used as a single value")
}

func (n *RangeNode) walk(fn func(Node)) { fn(n) }

func (n *RangeNode) String() string {
	return EncodeAddress(n.StartRow, n.StartCol) + ":" + EncodeAddress(n.EndRow, n.EndCol)
}

// addresses returns the member addresses in row-major order
func (n *RangeNode) addresses() []string {
	members := make([]string, 0, (n.EndRow-n.StartRow+1)*(n.EndCol-n.StartCol+1))
	for row := n.StartRow; row <= n.EndRow; row++ {
		for col := n.StartCol; col <= n.EndCol; col++ {
			members = append(members, EncodeAddress(row, col))
		}
	}
	return members
}

// ExternalNode represents an external page reference, optionally addressing
// a cell or range inside the referenced page.
type ExternalNode struct {
	Ref   ExternalReference
	Start string // addressed cell, "" when the token has no suffix
	End   string // second corner for a range suffix, "" otherwise
}

func (n *ExternalNode) eval(ctx *evalContext) (Value, *CellError) {
	return ctx.externalValue(n)
}

func (n *ExternalNode) walk(fn func(Node)) { fn(n) }

func (n *ExternalNode) String() string {
	s := n.Ref.Raw
	if n.Start != "" {
		s += ":" + n.Start
	}
	if n.End != "" {
		s += ":" + n.End
	}
	return s
}

// token returns the full reference token including the address suffix
func (n *ExternalNode) token() string {
	return n.String()
}

// UnaryNode represents a unary operation
type UnaryNode struct {
	Op      UnaryOp
	Operand Node
}

func (n *UnaryNode) eval(ctx *evalContext) (Value, *CellError) {
	val, err := n.Operand.eval(ctx)
	if err != nil {
		return Empty(), err
	}

	num, ok := toNumber(val)
	if !ok {
		return Empty(), newCellError(ErrRuntime, "unary operator requires a numeric value")
	}

	switch n.Op {
	case UnaryOpPlus:
		return Number(num), nil
	case UnaryOpMinus:
		return Number(-num), nil
	case UnaryOpPercent:
		return Number(num / 100.0), nil
	default:
		return Empty(), newCellError(ErrRuntime, "unknown unary operator")
	}
}

func (n *UnaryNode) walk(fn func(Node)) {
	fn(n)
	n.Operand.walk(fn)
}

func (n *UnaryNode) String() string {
	switch n.Op {
	case UnaryOpPlus:
		return "+" + n.Operand.String()
	case UnaryOpMinus:
		return "-" + n.Operand.String()
	default:
		return "(" + n.Operand.String() + "%)"
	}
}

// BinaryNode represents a binary operation
type BinaryNode struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (n *BinaryNode) eval(ctx *evalContext) (Value, *CellError) {
	// errors propagate verbatim, left operand first
	leftVal, err := n.Left.eval(ctx)
	if err != nil {
		return Empty(), err
	}
	rightVal, err := n.Right.eval(ctx)
	if err != nil {
		return Empty(), err
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpPower:
		leftNum, leftOk := toNumber(leftVal)
		rightNum, rightOk := toNumber(rightVal)
		if !leftOk || !rightOk {
			return Empty(), newCellError(ErrRuntime, "arithmetic requires numeric values")
		}
		switch n.Op {
		case BinOpAdd:
			return Number(leftNum + rightNum), nil
		case BinOpSubtract:
			return Number(leftNum - rightNum), nil
		case BinOpMultiply:
			return Number(leftNum * rightNum), nil
		case BinOpDivide:
			if rightNum == 0 {
				return Empty(), newCellError(ErrDiv0, "Division by zero")
			}
			return Number(leftNum / rightNum), nil
		default: // BinOpPower
			return Number(math.Pow(leftNum, rightNum)), nil
		}

	case BinOpConcat:
		return Text(toText(leftVal) + toText(rightVal)), nil

	case BinOpEqual:
		return Boolean(compare(leftVal, rightVal) == 0), nil
	case BinOpNotEqual:
		return Boolean(compare(leftVal, rightVal) != 0), nil
	case BinOpLess:
		return Boolean(compare(leftVal, rightVal) < 0), nil
	case BinOpLessEqual:
		return Boolean(compare(leftVal, rightVal) <= 0), nil
	case BinOpGreater:
		return Boolean(compare(leftVal, rightVal) > 0), nil
	case BinOpGreaterEqual:
		return Boolean(compare(leftVal, rightVal) >= 0), nil

	default:
		return Empty(), newCellError(ErrRuntime, "unknown operator")
	}
}

func (n *BinaryNode) walk(fn func(Node)) {
	fn(n)
	n.Left.walk(fn)
	n.Right.walk(fn)
}

func (n *BinaryNode) String() string {
	var op string
	switch n.Op {
	case BinOpAdd:
		op = "+"
	case BinOpSubtract:
		op = "-"
	case BinOpMultiply:
		op = "*"
	case BinOpDivide:
		op = "/"
	case BinOpPower:
		op = "^"
	case BinOpConcat:
		op = "&"
	case BinOpEqual:
		op = "="
	case BinOpNotEqual:
		op = "<>"
	case BinOpLess:
		op = "<"
	case BinOpLessEqual:
		op = "<="
	case BinOpGreater:
		op = ">"
	case BinOpGreaterEqual:
		op = ">="
	}
	return "(" + n.Left.String() + op + n.Right.String() + ")"
}

// CallNode represents a function call
type CallNode struct {
	Name string
	Args []Node
}

func (n *CallNode) eval(ctx *evalContext) (Value, *CellError) {
	// IFERROR is a special form: its first argument's error is caught
	// instead of propagated
	if n.Name == "IFERROR" {
		if len(n.Args) != 2 {
			return Empty(), newCellError(ErrArgument, "IFERROR requires exactly 2 arguments")
		}
		val, err := n.Args[0].eval(ctx)
		if err == nil {
			return val, nil
		}
		return n.Args[1].eval(ctx)
	}

	args := make([]callArg, len(n.Args))
	for i, argNode := range n.Args {
		switch an := argNode.(type) {
		case *RangeNode:
			values, err := ctx.rangeValues(an)
			if err != nil {
				return Empty(), err
			}
			args[i] = callArg{list: values, isList: true}
		case *ExternalNode:
			if an.End != "" {
				values, err := ctx.externalRange(an)
				if err != nil {
					return Empty(), err
				}
				args[i] = callArg{list: values, isList: true}
				continue
			}
			val, err := argNode.eval(ctx)
			if err != nil {
				return Empty(), err
			}
			args[i] = callArg{value: val}
		default:
			val, err := argNode.eval(ctx)
			if err != nil {
				return Empty(), err
			}
			args[i] = callArg{value: val}
		}
	}

	return ctx.functions.Call(n.Name, args)
}

func (n *CallNode) walk(fn func(Node)) {
	fn(n)
	for _, arg := range n.Args {
		arg.walk(fn)
	}
}

func (n *CallNode) String() string {
	parts := make([]string, len(n.Args))
	for i, arg := range n.Args {
		parts[i] = arg.String()
	}
	return n.Name + "(" + strings.Join(parts, ",") + ")"
}

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a new parser over the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// ParseFormula lexes and parses a raw formula string (including the leading
// '=') into an AST.
func ParseFormula(formula string) (Node, *CellError) {
	tokens, err := NewLexer(formula).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (Node, *CellError) {
	if len(p.tokens) == 0 {
		return nil, newCellError(ErrParse, "no tokens to parse")
	}

	if p.tokens[p.pos].Type != TokenEquals {
		return nil, newCellError(ErrParse, "formula must start with '='")
	}
	p.pos++ // consume the equals token

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	// ensure we've consumed all tokens except EOF
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF {
		return nil, newCellError(ErrParse, fmt.Sprintf("unexpected token after expression: %s", p.tokens[p.pos].Value))
	}

	return node, nil
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (Node, *CellError) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "=":
			op = BinOpEqual
		case "<>", "!=":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}

	return left, nil
}

// parseConcatenation handles the string concatenation operator
func (p *Parser) parseConcatenation() (Node, *CellError) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp || tok.Value != "&" {
			break
		}

		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: BinOpConcat, Left: left, Right: right}
	}

	return left, nil
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (Node, *CellError) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}

	return left, nil
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (Node, *CellError) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}

	return left, nil
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (Node, *CellError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parsePower() // recursive for right-associativity
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: BinOpPower, Left: left, Right: right}, nil
	}

	return left, nil
}

// parseUnary handles unary prefix operators
func (p *Parser) parseUnary() (Node, *CellError) {
	if p.pos >= len(p.tokens) {
		return nil, newCellError(ErrParse, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type == TokenUnaryPrefixOp {
		var op UnaryOp
		switch tok.Value {
		case "+":
			op = UnaryOpPlus
		case "-":
			op = UnaryOpMinus
		default:
			return nil, newCellError(ErrParse, "unknown prefix operator: "+tok.Value)
		}

		p.pos++
		operand, err := p.parseUnary() // recurse for chained unary operators
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: op, Operand: operand}, nil
	}

	return p.parsePostfix()
}

// parsePostfix handles the postfix percent operator
func (p *Parser) parsePostfix() (Node, *CellError) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp {
		p.pos++
		return &UnaryNode{Op: UnaryOpPercent, Operand: node}, nil
	}

	return node, nil
}

// parsePrimary handles primary expressions (literals, references, calls,
// parentheses)
func (p *Parser) parsePrimary() (Node, *CellError) {
	if p.pos >= len(p.tokens) {
		return nil, newCellError(ErrParse, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, newCellError(ErrParse, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{Value: val}, nil

	case TokenString:
		p.pos++
		return &StringNode{Value: tok.Value}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{Value: tok.Value == "TRUE"}, nil

	case TokenCell:
		p.pos++
		addr := toUpperASCII(tok.Value)
		if !IsAddress(addr) {
			return nil, newCellError(ErrParse, fmt.Sprintf("invalid cell reference: %s", tok.Value))
		}
		return &CellNode{Address: addr}, nil

	case TokenRange:
		p.pos++
		return parseRangeWord(tok.Value)

	case TokenExternal:
		p.pos++
		return parseExternalToken(tok.Value)

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, newCellError(ErrParse, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	default:
		return nil, newCellError(ErrParse, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (Node, *CellError) {
	funcTok := p.tokens[p.pos]
	name := funcTok.Value
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, newCellError(ErrParse, "expected '(' after function name")
	}
	p.pos++

	args := []Node{}

	// empty argument list
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &CallNode{Name: name, Args: args}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, newCellError(ErrParse, "unexpected end in function arguments")
		}

		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}

		if p.tokens[p.pos].Type != TokenComma {
			return nil, newCellError(ErrParse, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &CallNode{Name: name, Args: args}, nil
}

// parseRangeWord converts a range token like "A1:B10" into a normalized
// RangeNode with start <= end on both axes.
func parseRangeWord(word string) (*RangeNode, *CellError) {
	parts := strings.SplitN(toUpperASCII(word), ":", 2)
	if len(parts) != 2 {
		return nil, newCellError(ErrParse, fmt.Sprintf("invalid range: %s", word))
	}

	startRow, startCol, err := DecodeAddress(parts[0])
	if err != nil {
		return nil, newCellError(ErrParse, fmt.Sprintf("invalid start cell in range: %s", parts[0]))
	}
	endRow, endCol, err := DecodeAddress(parts[1])
	if err != nil {
		return nil, newCellError(ErrParse, fmt.Sprintf("invalid end cell in range: %s", parts[1]))
	}

	return &RangeNode{
		StartRow: min(startRow, endRow),
		StartCol: min(startCol, endCol),
		EndRow:   max(startRow, endRow),
		EndCol:   max(startCol, endCol),
	}, nil
}
