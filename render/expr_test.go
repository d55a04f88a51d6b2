package render_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-terrain/render"
)

func TestExprJSON(t *testing.T) {
	for _, tc := range []struct {
		name     string
		expr     render.Expr
		expected string
	}{
		{name: "number", expr: render.Number(-32768), expected: `-32768`},
		{name: "band", expr: render.Band(2), expected: `["band",2]`},
		{name: "named_band", expr: render.NamedBand("slope"), expected: `["band","slope"]`},
		{name: "neg", expr: render.Neg(render.Band(1)), expected: `["-",["band",1]]`},
		{name: "clamp", expr: render.Clamp(render.Band(1), render.Number(0), render.Number(1)), expected: `["clamp",["band",1],0,1]`},
		{
			name: "case",
			expr: &render.Case{
				Cond: render.Any(render.Equal(render.Band(1), render.Number(0))),
				Then: render.Transparent,
				Else: render.RGBA(render.Number(1), render.Number(2), render.Number(3), render.Number(0.5)),
			},
			expected: `["case",["any",["==",["band",1],0]],["color",0,0,0,0],["rgba",1,2,3,0.5]]`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assertJSON(t, tc.expected, tc.expr)
		})
	}

	_, err := json.Marshal(render.Add(render.Band(1), render.Number(math.NaN())))
	assert.Error(t, err)
}

func TestRewrite(t *testing.T) {
	expr := &render.Case{
		Cond: render.Equal(render.NamedBand("a"), render.Number(0)),
		Then: render.Transparent,
		Else: render.GrayscaleRamp.Interpolate(render.Add(render.NamedBand("a"), render.Band(3)), 0, 1),
	}
	actual, err := render.Rewrite(expr, func(e render.Expr) (render.Expr, error) {
		if _, ok := e.(render.NamedBand); ok {
			return render.Band(7), nil
		}
		return e, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []int{3, 7}, render.Bands(actual))
	assert.Equal(t, []int{3}, render.Bands(expr))

	errTest := errors.New("test")
	_, err = render.Rewrite(expr, func(e render.Expr) (render.Expr, error) {
		if _, ok := e.(render.NamedBand); ok {
			return nil, errTest
		}
		return e, nil
	})
	assert.IsError(t, err, errTest)
}
