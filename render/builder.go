package render

import (
	"log/slog"
	"math"

	"github.com/twpayne/go-terrain/raster"
)

// A BandStore is the read-only view of a dataset needed to build
// expressions.
type BandStore interface {
	BandCount() int
	Band(ref raster.BandRef) (*raster.Band, error)
	BandNodataValue(ref raster.BandRef) (float64, error)
	Resolve(ref raster.BandRef) (int, error)
}

// A Builder builds expressions from Specs.
type Builder struct {
	parser        Parser
	defaultRamp   Ramp
	customRamp    Ramp
	customMin     float64
	customMax     float64
	rgbDefaultMax float64
	logger        *slog.Logger
}

// A BuilderOption sets an option on a Builder.
type BuilderOption func(*Builder)

// NewBuilder returns a new Builder with the given options.
func NewBuilder(options ...BuilderOption) *Builder {
	b := &Builder{
		parser:        DefaultParser,
		defaultRamp:   TerrainRamp,
		customRamp:    ViridisRamp,
		customMin:     -1,
		customMax:     1,
		rgbDefaultMax: 255,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// WithParser sets the band-algebra parser used for custom expressions.
func WithParser(parser Parser) BuilderOption {
	return func(b *Builder) {
		b.parser = parser
	}
}

// WithDefaultRamp sets the ramp used by single band Specs without one.
func WithDefaultRamp(ramp Ramp) BuilderOption {
	return func(b *Builder) {
		b.defaultRamp = ramp
	}
}

// WithCustomDefaults sets the ramp and domain used by custom expressions
// whose Spec does not give them.
func WithCustomDefaults(ramp Ramp, minValue, maxValue float64) BuilderOption {
	return func(b *Builder) {
		b.customRamp = ramp
		b.customMin = minValue
		b.customMax = maxValue
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// Build returns the expression that renders store according to spec. Band
// references are checked before anything is built, so a returned expression
// only references bands that exist.
func (b *Builder) Build(store BandStore, spec Spec) (Expr, error) {
	if err := spec.Validate(store.BandCount()); err != nil {
		return nil, err
	}
	if spec.ColorRamp != nil {
		if err := spec.ColorRamp.Validate(); err != nil {
			return nil, err
		}
	}

	var expr Expr
	var err error
	switch {
	case spec.CustomExpression != nil:
		expr, err = b.buildCustom(store, spec)
	case spec.Mode == ModeRGB || spec.Mode == ModeRGBA:
		expr, err = b.buildRGB(store, spec)
	case spec.Mode == ModeGrayscale:
		expr, err = b.buildSingleband(store, spec, GrayscaleRamp)
	default:
		expr, err = b.buildSingleband(store, spec, orDefault(spec.ColorRamp, b.defaultRamp))
	}
	if err != nil {
		return nil, err
	}
	b.logger.Debug("build", "mode", spec.Mode, "custom", spec.CustomExpression != nil, "bands", Bands(expr))
	return expr, nil
}

func (b *Builder) buildSingleband(store BandStore, spec Spec, ramp Ramp) (Expr, error) {
	ref := raster.Index(spec.SelectedBand)
	band, err := store.Band(ref)
	if err != nil {
		return nil, err
	}
	nodata, err := store.BandNodataValue(ref)
	if err != nil {
		return nil, err
	}
	minValue, maxValue := band.Stats().Range(0, 1)
	if stretch, ok := spec.ChannelStretch[ChannelR]; ok {
		minValue, maxValue = stretch.Min, stretch.Max
	}
	if spec.Min != nil {
		minValue = *spec.Min
	}
	if spec.Max != nil {
		maxValue = *spec.Max
	}
	input := Band(spec.SelectedBand)
	return nodataGuard(ramp.Interpolate(input, minValue, maxValue), nodataTest(input, nodata)), nil
}

func (b *Builder) buildRGB(store BandStore, spec Spec) (Expr, error) {
	var channels [3]Expr
	for i, channel := range rgbChannels {
		stretch, err := b.stretch(store, spec, channel, spec.BandMapping[i])
		if err != nil {
			return nil, err
		}
		channels[i] = Clamp(Mul(Number(255), normalize(Band(spec.BandMapping[i]), stretch)), Number(0), Number(255))
	}

	var alpha Expr = Number(1)
	if spec.Mode == ModeRGBA && spec.AlphaBand != 0 {
		stretch, err := b.stretch(store, spec, ChannelA, spec.AlphaBand)
		if err != nil {
			return nil, err
		}
		alpha = Clamp(normalize(Band(spec.AlphaBand), stretch), Number(0), Number(1))
	}

	// Only the first mapped band is tested for nodata.
	first := spec.BandMapping[0]
	nodata, err := store.BandNodataValue(raster.Index(first))
	if err != nil {
		return nil, err
	}
	return nodataGuard(RGBA(channels[0], channels[1], channels[2], alpha), nodataTest(Band(first), nodata)), nil
}

func (b *Builder) buildCustom(store BandStore, spec Spec) (Expr, error) {
	parsed, err := b.parser.Parse(*spec.CustomExpression)
	if err != nil {
		return nil, err
	}
	bandCount := store.BandCount()
	input, err := Rewrite(parsed, func(e Expr) (Expr, error) {
		switch e := e.(type) {
		case NamedBand:
			if index, err := store.Resolve(raster.Name(string(e))); err == nil {
				return Band(index), nil
			}
			index, ok := BandIdentIndex(string(e))
			if !ok {
				return nil, &InvalidBandReferenceError{Field: "customExpression", Name: string(e), BandCount: bandCount}
			}
			if index < 1 || bandCount < index {
				return nil, &InvalidBandReferenceError{Field: "customExpression", Index: index, BandCount: bandCount}
			}
			return Band(index), nil
		case Band:
			if int(e) < 1 || bandCount < int(e) {
				return nil, &InvalidBandReferenceError{Field: "customExpression", Index: int(e), BandCount: bandCount}
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	var tests []Expr
	for _, index := range Bands(input) {
		nodata, err := store.BandNodataValue(raster.Index(index))
		if err != nil {
			return nil, err
		}
		if test := nodataTest(Band(index), nodata); test != nil {
			tests = append(tests, test)
		}
	}
	var test Expr
	switch len(tests) {
	case 0:
	case 1:
		test = tests[0]
	default:
		test = Any(tests...)
	}

	minValue, maxValue := b.customMin, b.customMax
	if spec.Min != nil {
		minValue = *spec.Min
	}
	if spec.Max != nil {
		maxValue = *spec.Max
	}
	ramp := orDefault(spec.ColorRamp, b.customRamp)
	return nodataGuard(ramp.Interpolate(input, minValue, maxValue), test), nil
}

// stretch returns the stretch of channel, falling back to the statistics of
// the band with the given index.
func (b *Builder) stretch(store BandStore, spec Spec, channel Channel, index int) (Stretch, error) {
	if stretch, ok := spec.ChannelStretch[channel]; ok {
		return stretch, nil
	}
	band, err := store.Band(raster.Index(index))
	if err != nil {
		return Stretch{}, err
	}
	maxDefault := b.rgbDefaultMax
	if channel == ChannelA {
		maxDefault = 1
	}
	minValue, maxValue := band.Stats().Range(0, maxDefault)
	return Stretch{Min: minValue, Max: maxValue}, nil
}

// normalize returns (input - stretch.Min) / (stretch.Max - stretch.Min),
// dividing by one if the stretch is empty.
func normalize(input Expr, stretch Stretch) Expr {
	denominator := stretch.Max - stretch.Min
	if !(denominator > 0) {
		denominator = 1
	}
	return Div(Sub(input, Number(stretch.Min)), Number(denominator))
}

// nodataTest returns an expression that is true where input is nodata, or nil
// if nodata cannot be tested for.
func nodataTest(input Expr, nodata float64) Expr {
	if math.IsNaN(nodata) || math.IsInf(nodata, 0) {
		return nil
	}
	return Equal(input, Number(nodata))
}

// nodataGuard wraps expr so that pixels for which test is true are
// transparent.
func nodataGuard(expr, test Expr) Expr {
	if test == nil {
		return expr
	}
	return &Case{
		Cond: test,
		Then: Transparent,
		Else: expr,
	}
}

func orDefault(ramp, defaultRamp Ramp) Ramp {
	if ramp == nil {
		return defaultRamp
	}
	return ramp
}
