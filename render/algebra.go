package render

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
)

var ErrInvalidExpression = errors.New("invalid expression")

var bandIdentRx = regexp.MustCompile(`\A(?i:b|band)([1-9][0-9]*)\z`)

// functionArity is the number of arguments of each supported function.
var functionArity = map[string]int{
	"abs":  1,
	"ln":   1,
	"max":  2,
	"min":  2,
	"sqrt": 1,
}

// A Parser parses a band-algebra formula into an expression.
type Parser interface {
	Parse(formula string) (Expr, error)
}

// A ParserFunc is a func that implements Parser.
type ParserFunc func(string) (Expr, error)

func (f ParserFunc) Parse(formula string) (Expr, error) {
	return f(formula)
}

// DefaultParser parses formulas with ParseBandAlgebra.
var DefaultParser Parser = ParserFunc(ParseBandAlgebra)

// ParseBandAlgebra parses an arithmetic formula over bands. Formulas may
// contain numbers, the operators + - * / with the usual precedence, unary
// minus, parentheses, the functions abs, ln, max, min, and sqrt, and band
// references. Identifiers and double-quoted strings reference bands by name.
// Builders resolve a name that no band has but that has the form b1, band1,
// or B1 to the band with that index, see BandIdentIndex.
//
// For example, a normalized difference vegetation index is
//
//	(nir - red) / (nir + red)
func ParseBandAlgebra(formula string) (Expr, error) {
	node, err := parser.ParseExpr(formula)
	if err != nil {
		return nil, fmt.Errorf("%q: %w: %w", formula, ErrInvalidExpression, err)
	}
	expr, err := convertAST(node)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", formula, err)
	}
	return expr, nil
}

// BandIdentIndex returns the band index of name if it has the form b<n>,
// band<n>, or B<n>.
func BandIdentIndex(name string) (int, bool) {
	m := bandIdentRx.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return index, true
}

func convertAST(node ast.Expr) (Expr, error) {
	switch node := node.(type) {
	case *ast.BasicLit:
		switch node.Kind {
		case token.INT, token.FLOAT:
			value, err := strconv.ParseFloat(node.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", node.Value, ErrInvalidExpression)
			}
			return Number(value), nil
		case token.STRING:
			name, err := strconv.Unquote(node.Value)
			if err != nil || name == "" {
				return nil, fmt.Errorf("%s: %w", node.Value, ErrInvalidExpression)
			}
			return NamedBand(name), nil
		}
	case *ast.Ident:
		return NamedBand(node.Name), nil
	case *ast.ParenExpr:
		return convertAST(node.X)
	case *ast.UnaryExpr:
		x, err := convertAST(node.X)
		if err != nil {
			return nil, err
		}
		switch node.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			if number, ok := x.(Number); ok {
				return -number, nil
			}
			return Neg(x), nil
		}
	case *ast.BinaryExpr:
		switch node.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
			x, err := convertAST(node.X)
			if err != nil {
				return nil, err
			}
			y, err := convertAST(node.Y)
			if err != nil {
				return nil, err
			}
			return &Call{Op: node.Op.String(), Args: []Expr{x, y}}, nil
		}
	case *ast.CallExpr:
		ident, ok := node.Fun.(*ast.Ident)
		if !ok {
			break
		}
		arity, ok := functionArity[ident.Name]
		if !ok {
			return nil, fmt.Errorf("%s: unknown function: %w", ident.Name, ErrInvalidExpression)
		}
		if len(node.Args) != arity || node.Ellipsis.IsValid() {
			return nil, fmt.Errorf("%s: expected %d arguments: %w", ident.Name, arity, ErrInvalidExpression)
		}
		args := make([]Expr, len(node.Args))
		for i, arg := range node.Args {
			var err error
			if args[i], err = convertAST(arg); err != nil {
				return nil, err
			}
		}
		return &Call{Op: ident.Name, Args: args}, nil
	}
	return nil, fmt.Errorf("%T: unsupported syntax: %w", node, ErrInvalidExpression)
}
