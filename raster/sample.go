package raster

import "math"

// SampleBilinear returns the bilinearly interpolated value of the band
// referenced by ref at each coord, given as [lon, lat]. Samples are located
// at pixel centers. Coordinates outside the extent, or whose neighborhood
// contains nodata, yield NaN.
func (d *Dataset) SampleBilinear(ref BandRef, coords [][]float64) ([]float64, error) {
	band, err := d.Band(ref)
	if err != nil {
		return nil, err
	}
	nodata := d.bandNodata(band)
	pixelWidth, pixelHeight := d.pixelSize()
	result := make([]float64, len(coords))
	for i, coord := range coords {
		lon, lat := coord[0], coord[1]
		if lon < d.extent.Min[0] || d.extent.Max[0] < lon || lat < d.extent.Min[1] || d.extent.Max[1] < lat {
			result[i] = math.NaN()
			continue
		}

		// Fractional pixel coordinates relative to the first pixel center,
		// clamped so that edge half-pixels reuse the edge samples.
		fx := clamp((lon-d.extent.Min[0])/pixelWidth-0.5, 0, float64(d.width-1))
		fy := clamp((d.extent.Max[1]-lat)/pixelHeight-0.5, 0, float64(d.height-1))
		x0, y0 := int(fx), int(fy)
		x1, y1 := min(x0+1, d.width-1), min(y0+1, d.height-1)
		dx, dy := fx-float64(x0), fy-float64(y0)

		samples := [4]float32{
			band.data[y0*d.width+x0],
			band.data[y0*d.width+x1],
			band.data[y1*d.width+x0],
			band.data[y1*d.width+x1],
		}
		if isNodata(samples[0], nodata) || isNodata(samples[1], nodata) ||
			isNodata(samples[2], nodata) || isNodata(samples[3], nodata) {
			result[i] = math.NaN()
			continue
		}
		result[i] = 0 +
			float64(samples[0])*(1-dx)*(1-dy) +
			float64(samples[1])*dx*(1-dy) +
			float64(samples[2])*(1-dx)*dy +
			float64(samples[3])*dx*dy
	}
	return result, nil
}

func clamp(x, lo, hi float64) float64 {
	return max(lo, min(x, hi))
}
