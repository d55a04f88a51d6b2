package raster

import "math"

// Stats are the minimum and maximum of a set of samples. Valid is false if
// there were no non-nodata samples, in which case Min and Max are
// meaningless.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Valid bool    `json:"valid"`
}

// ComputeStats returns the statistics of data, ignoring samples equal to
// nodata and NaNs.
func ComputeStats(data []float32, nodata float64) Stats {
	minValue, maxValue := math.Inf(1), math.Inf(-1)
	for _, value := range data {
		if isNodata(value, nodata) {
			continue
		}
		v := float64(value)
		minValue = min(minValue, v)
		maxValue = max(maxValue, v)
	}
	if minValue > maxValue {
		return Stats{}
	}
	return Stats{
		Min:   minValue,
		Max:   maxValue,
		Valid: true,
	}
}

// Merge returns the statistics of the union of the samples described by s
// and other.
func (s Stats) Merge(other Stats) Stats {
	switch {
	case !other.Valid:
		return s
	case !s.Valid:
		return other
	default:
		return Stats{
			Min:   min(s.Min, other.Min),
			Max:   max(s.Max, other.Max),
			Valid: true,
		}
	}
}

// Range returns s's Min and Max, or def0 and def1 if s is not valid.
func (s Stats) Range(def0, def1 float64) (float64, float64) {
	if !s.Valid {
		return def0, def1
	}
	return s.Min, s.Max
}
