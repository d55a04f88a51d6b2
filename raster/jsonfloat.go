package raster

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// A JSONFloat is a float64 that survives a JSON round trip when it is not
// finite. Finite values are encoded as numbers, NaN and the infinities as the
// strings "NaN", "+Inf", and "-Inf".
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	value := float64(f)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return json.Marshal(strconv.FormatFloat(value, 'g', -1, 64))
	}
	return json.Marshal(value)
}

func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		value, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsNaN(value) || math.IsInf(value, 0)) {
			return fmt.Errorf("%s: invalid non-finite number", data)
		}
		*f = JSONFloat(value)
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*f = JSONFloat(value)
	return nil
}
