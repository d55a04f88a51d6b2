package render

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrInvalidColor = errors.New("invalid color")
	ErrInvalidRamp  = errors.New("invalid color ramp")
	ErrUnknownRamp  = errors.New("unknown color ramp")
)

// A Color is an RGB color with 8-bit channels and an alpha in [0, 1].
type Color struct {
	R uint8
	G uint8
	B uint8
	A float64
}

// Transparent is fully transparent black.
var Transparent = Color{}

// Opaque returns the fully opaque color (r, g, b).
func Opaque(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 1}
}

// ParseColor parses a color of the form #rrggbb or #rrggbbaa.
func ParseColor(s string) (Color, error) {
	digits, ok := strings.CutPrefix(s, "#")
	if !ok || (len(digits) != 6 && len(digits) != 8) {
		return Color{}, fmt.Errorf("%q: %w", s, ErrInvalidColor)
	}
	channels, err := hex.DecodeString(digits)
	if err != nil {
		return Color{}, fmt.Errorf("%q: %w", s, ErrInvalidColor)
	}
	color := Opaque(channels[0], channels[1], channels[2])
	if len(channels) == 4 {
		color.A = float64(channels[3]) / 255
	}
	return color, nil
}

func (c Color) String() string {
	if c.A == 1 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, uint8(c.A*255+0.5))
}

// MarshalJSON encodes c as the expression ["color", r, g, b, a].
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{"color", c.R, c.G, c.B, c.A})
}

// UnmarshalJSON decodes c from either a hex string or the expression
// ["color", r, g, b, a].
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		color, err := ParseColor(s)
		if err != nil {
			return err
		}
		*c = color
		return nil
	}
	var values []json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil || len(values) != 5 {
		return fmt.Errorf("%s: %w", data, ErrInvalidColor)
	}
	var op string
	if err := json.Unmarshal(values[0], &op); err != nil || op != "color" {
		return fmt.Errorf("%s: %w", data, ErrInvalidColor)
	}
	var color Color
	for i, channel := range []*uint8{&color.R, &color.G, &color.B} {
		if err := json.Unmarshal(values[i+1], channel); err != nil {
			return fmt.Errorf("%s: %w", data, ErrInvalidColor)
		}
	}
	if err := json.Unmarshal(values[4], &color.A); err != nil || color.A < 0 || color.A > 1 {
		return fmt.Errorf("%s: %w", data, ErrInvalidColor)
	}
	*c = color
	return nil
}

// A RampStop is a color at a position in [0, 1].
type RampStop struct {
	Stop  float64 `json:"stop"`
	Color Color   `json:"color"`
}

// A Ramp is a piecewise-linear color gradient over [0, 1].
type Ramp []RampStop

// Named ramps.
var (
	GrayscaleRamp = Ramp{
		{Stop: 0, Color: Opaque(0, 0, 0)},
		{Stop: 1, Color: Opaque(255, 255, 255)},
	}
	TerrainRamp = Ramp{
		{Stop: 0, Color: Opaque(0, 97, 71)},
		{Stop: 0.25, Color: Opaque(16, 122, 47)},
		{Stop: 0.5, Color: Opaque(232, 215, 125)},
		{Stop: 0.75, Color: Opaque(161, 67, 0)},
		{Stop: 1, Color: Opaque(255, 255, 255)},
	}
	ViridisRamp = Ramp{
		{Stop: 0, Color: Opaque(68, 1, 84)},
		{Stop: 0.25, Color: Opaque(59, 82, 139)},
		{Stop: 0.5, Color: Opaque(33, 145, 140)},
		{Stop: 0.75, Color: Opaque(94, 201, 98)},
		{Stop: 1, Color: Opaque(253, 231, 37)},
	}
)

var namedRamps = map[string]Ramp{
	"grayscale": GrayscaleRamp,
	"terrain":   TerrainRamp,
	"viridis":   ViridisRamp,
}

// NamedRamp returns the ramp called name.
func NamedRamp(name string) (Ramp, error) {
	ramp, ok := namedRamps[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownRamp)
	}
	return slices.Clone(ramp), nil
}

// RampNames returns the sorted names of all named ramps.
func RampNames() []string {
	return slices.Sorted(maps.Keys(namedRamps))
}

// Validate returns an error if r does not have at least two stops in strictly
// increasing order starting at 0 and ending at 1.
func (r Ramp) Validate() error {
	switch {
	case len(r) < 2:
		return fmt.Errorf("%d stops: %w", len(r), ErrInvalidRamp)
	case r[0].Stop != 0:
		return fmt.Errorf("first stop %v: %w", r[0].Stop, ErrInvalidRamp)
	case r[len(r)-1].Stop != 1:
		return fmt.Errorf("last stop %v: %w", r[len(r)-1].Stop, ErrInvalidRamp)
	}
	for i := 1; i < len(r); i++ {
		if r[i].Stop <= r[i-1].Stop {
			return fmt.Errorf("stop %d: %w", i, ErrInvalidRamp)
		}
	}
	return nil
}

// Interpolate returns an expression mapping input through r over the domain
// [minValue, maxValue]. If the domain is empty it is widened to
// [minValue, minValue+1].
func (r Ramp) Interpolate(input Expr, minValue, maxValue float64) *Interpolate {
	if !(maxValue > minValue) {
		maxValue = minValue + 1
	}
	stops := make([]InterpolateStop, len(r))
	for i, stop := range r {
		stops[i] = InterpolateStop{
			Input:  minValue + stop.Stop*(maxValue-minValue),
			Output: stop.Color,
		}
	}
	return &Interpolate{
		Input: input,
		Stops: stops,
	}
}
