package surfalib

import "math"

// ComputeNDVI returns (nir-red)/(nir+red) per pixel. Cells where either band
// is NaN, or where the denominator is zero, come out NaN rather than Inf or a
// silent zero. The output inherits RED's grid and georeferencing.
func ComputeNDVI(nir, red Band) (ndvi Band, err error) {
	if nir.Width != red.Width || nir.Height != red.Height {
		err = ErrShapeMismatch
		return
	}
	nan := float32(math.NaN())
	out := make([]float32, len(red.Data))
	for i, r := range red.Data {
		n := nir.Data[i]
		den := n + r
		if isNaN32(n) || isNaN32(r) || den == 0 {
			out[i] = nan
			continue
		}
		out[i] = (n - r) / den
	}
	ndvi = Band{
		Data:      out,
		Width:     red.Width,
		Height:    red.Height,
		Transform: red.Transform,
		WKT:       red.WKT,
	}
	return
}

func isNaN32(v float32) bool {
	return v != v
}
