// Package render builds symbolic color-mapping expressions for raster
// datasets.
//
// An expression is a tree of Exprs that an external renderer evaluates per
// pixel. Expressions encode to JSON as nested arrays, for example:
//
//	["case", ["==", ["band", 1], -32768], ["color", 0, 0, 0, 0],
//	  ["interpolate", ["linear"], ["band", 1], 0, ["color", 0, 0, 0, 1], 100, ["color", 255, 255, 255, 1]]]
package render

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// An Expr is a node in an expression tree.
type Expr interface {
	json.Marshaler
	expr()
}

// A Number is a numeric literal.
type Number float64

// A Band is the value of the band with the given 1-based index at the current
// pixel.
type Band int

// A NamedBand is the value of the band with the given name at the current
// pixel. Builders resolve NamedBands to Bands before returning.
type NamedBand string

// A Call applies an operator to its arguments.
type Call struct {
	Op   string
	Args []Expr
}

// A Case evaluates to Then if Cond is true and Else otherwise.
type Case struct {
	Cond Expr
	Then Expr
	Else Expr
}

// An InterpolateStop is a single input value and its output.
type InterpolateStop struct {
	Input  float64
	Output Expr
}

// An Interpolate linearly interpolates between the outputs of the two stops
// that bracket Input. Inputs outside the stops are clamped to the first or
// last output. Stops are in strictly increasing order of input.
type Interpolate struct {
	Input Expr
	Stops []InterpolateStop
}

func (Number) expr()       {}
func (Band) expr()         {}
func (NamedBand) expr()    {}
func (*Call) expr()        {}
func (*Case) expr()        {}
func (*Interpolate) expr() {}
func (Color) expr()        {}

func (n Number) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return nil, fmt.Errorf("%v: unrepresentable number", float64(n))
	}
	return json.Marshal(float64(n))
}

func (b Band) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{"band", int(b)})
}

func (b NamedBand) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{"band", string(b)})
}

func (c *Call) MarshalJSON() ([]byte, error) {
	values := make([]any, 0, 1+len(c.Args))
	values = append(values, c.Op)
	for _, arg := range c.Args {
		values = append(values, arg)
	}
	return json.Marshal(values)
}

func (c *Case) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{"case", c.Cond, c.Then, c.Else})
}

func (i *Interpolate) MarshalJSON() ([]byte, error) {
	values := make([]any, 0, 3+2*len(i.Stops))
	values = append(values, "interpolate", []string{"linear"}, i.Input)
	for _, stop := range i.Stops {
		values = append(values, Number(stop.Input), stop.Output)
	}
	return json.Marshal(values)
}

// Add returns x + y.
func Add(x, y Expr) Expr { return &Call{Op: "+", Args: []Expr{x, y}} }

// Sub returns x - y.
func Sub(x, y Expr) Expr { return &Call{Op: "-", Args: []Expr{x, y}} }

// Mul returns x * y.
func Mul(x, y Expr) Expr { return &Call{Op: "*", Args: []Expr{x, y}} }

// Div returns x / y.
func Div(x, y Expr) Expr { return &Call{Op: "/", Args: []Expr{x, y}} }

// Neg returns -x.
func Neg(x Expr) Expr { return &Call{Op: "-", Args: []Expr{x}} }

// Equal returns x == y.
func Equal(x, y Expr) Expr { return &Call{Op: "==", Args: []Expr{x, y}} }

// Any returns whether any of conds is true.
func Any(conds ...Expr) Expr { return &Call{Op: "any", Args: conds} }

// Clamp returns x clamped to [lo, hi].
func Clamp(x, lo, hi Expr) Expr { return &Call{Op: "clamp", Args: []Expr{x, lo, hi}} }

// RGBA returns a color built from per-channel expressions, with r, g, and b
// in [0, 255] and a in [0, 1].
func RGBA(r, g, b, a Expr) Expr { return &Call{Op: "rgba", Args: []Expr{r, g, b, a}} }

// Rewrite returns a copy of e in which every node has been replaced by the
// result of f, applied bottom up.
func Rewrite(e Expr, f func(Expr) (Expr, error)) (Expr, error) {
	switch e := e.(type) {
	case *Call:
		args := make([]Expr, len(e.Args))
		for i, arg := range e.Args {
			var err error
			if args[i], err = Rewrite(arg, f); err != nil {
				return nil, err
			}
		}
		return f(&Call{Op: e.Op, Args: args})
	case *Case:
		cond, err := Rewrite(e.Cond, f)
		if err != nil {
			return nil, err
		}
		then, err := Rewrite(e.Then, f)
		if err != nil {
			return nil, err
		}
		els, err := Rewrite(e.Else, f)
		if err != nil {
			return nil, err
		}
		return f(&Case{Cond: cond, Then: then, Else: els})
	case *Interpolate:
		input, err := Rewrite(e.Input, f)
		if err != nil {
			return nil, err
		}
		stops := slices.Clone(e.Stops)
		for i := range stops {
			if stops[i].Output, err = Rewrite(stops[i].Output, f); err != nil {
				return nil, err
			}
		}
		return f(&Interpolate{Input: input, Stops: stops})
	default:
		return f(e)
	}
}

// Bands returns the sorted distinct band indexes referenced by e.
func Bands(e Expr) []int {
	var bands []int
	_, _ = Rewrite(e, func(e Expr) (Expr, error) {
		if band, ok := e.(Band); ok {
			bands = append(bands, int(band))
		}
		return e, nil
	})
	slices.Sort(bands)
	return slices.Compact(bands)
}
