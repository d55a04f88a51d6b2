package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidBandReference = errors.New("invalid band reference")
	ErrInvalidMode          = errors.New("invalid render mode")
)

// A Mode selects how bands are mapped to colors.
type Mode string

// Modes.
const (
	ModeSingleband Mode = "singleband"
	ModeRGB        Mode = "rgb"
	ModeRGBA       Mode = "rgba"
	ModeGrayscale  Mode = "grayscale"
)

// A Channel is an output color channel.
type Channel string

// Channels.
const (
	ChannelR Channel = "r"
	ChannelG Channel = "g"
	ChannelB Channel = "b"
	ChannelA Channel = "a"
)

var rgbChannels = [3]Channel{ChannelR, ChannelG, ChannelB}

// A Stretch is the input range mapped onto a channel's full output range.
type Stretch struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// A Spec is the display configuration of a raster layer. Band references are
// 1-based.
type Spec struct {
	Mode             Mode                `json:"mode"`
	SelectedBand     int                 `json:"selectedBand"`
	BandMapping      [3]int              `json:"bandMapping"`
	AlphaBand        int                 `json:"alphaBand,omitempty"`
	ColorRamp        Ramp                `json:"colorRamp,omitempty"`
	ChannelStretch   map[Channel]Stretch `json:"channelStretch,omitempty"`
	CustomExpression *string             `json:"customExpression,omitempty"`
	Min              *float64            `json:"min,omitempty"`
	Max              *float64            `json:"max,omitempty"`
}

// An InvalidBandReferenceError is returned when a Spec references a band that
// does not exist.
type InvalidBandReferenceError struct {
	Field     string
	Index     int
	Name      string
	BandCount int
}

func (e *InvalidBandReferenceError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: band %q does not exist", e.Field, e.Name)
	}
	return fmt.Sprintf("%s: band %d out of range 1..%d", e.Field, e.Index, e.BandCount)
}

func (e *InvalidBandReferenceError) Is(target error) bool {
	return target == ErrInvalidBandReference
}

// DefaultSpec returns the default Spec for a dataset with bandCount bands:
// single band 1 with the terrain ramp, and the band mapping (1, 2, 3) limited
// to the bands that exist.
func DefaultSpec(bandCount int) Spec {
	spec := Spec{
		Mode:         ModeSingleband,
		SelectedBand: 1,
		ColorRamp:    slices.Clone(TerrainRamp),
	}
	for i := range spec.BandMapping {
		spec.BandMapping[i] = min(i+1, max(bandCount, 1))
	}
	return spec
}

// SetCustomExpression sets the band-algebra formula. An empty formula clears
// it.
func (s *Spec) SetCustomExpression(formula string) {
	if formula == "" {
		s.CustomExpression = nil
		return
	}
	s.CustomExpression = &formula
}

// ShiftForRemovedBand updates s's band references after the band with 1-based
// index removed has been removed from its dataset. References to later bands
// are decremented. References to the removed band itself are reset to band 1,
// except AlphaBand, which is reset to zero.
func (s *Spec) ShiftForRemovedBand(removed int) {
	shift := func(index *int, reset int) {
		switch {
		case *index == removed:
			*index = reset
		case *index > removed:
			*index--
		}
	}
	shift(&s.SelectedBand, 1)
	for i := range s.BandMapping {
		shift(&s.BandMapping[i], 1)
	}
	if s.AlphaBand != 0 {
		shift(&s.AlphaBand, 0)
	}
}

// Validate returns an error if the band references used by s's mode do not
// exist in a dataset with bandCount bands. The references of a custom
// expression are checked when it is built.
func (s *Spec) Validate(bandCount int) error {
	check := func(field string, index int) error {
		if s.CustomExpression != nil || (1 <= index && index <= bandCount) {
			return nil
		}
		return &InvalidBandReferenceError{Field: field, Index: index, BandCount: bandCount}
	}
	switch s.Mode {
	case ModeSingleband, ModeGrayscale, "":
		return check("selectedBand", s.SelectedBand)
	case ModeRGB, ModeRGBA:
		for i, channel := range rgbChannels {
			if err := check("bandMapping."+string(channel), s.BandMapping[i]); err != nil {
				return err
			}
		}
		if s.Mode == ModeRGBA && s.AlphaBand != 0 {
			return check("alphaBand", s.AlphaBand)
		}
		return nil
	default:
		return fmt.Errorf("%q: %w", s.Mode, ErrInvalidMode)
	}
}

// UnmarshalJSON decodes s, filling omitted fields from DefaultSpec(3).
func (s *Spec) UnmarshalJSON(data []byte) error {
	type spec Spec
	value := spec(DefaultSpec(3))
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*s = Spec(value)
	return nil
}
