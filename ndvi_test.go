package surfalib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBand(width, height int, vals []float32) Band {
	return Band{
		Data:      vals,
		Width:     width,
		Height:    height,
		Transform: [6]float64{0, 10, 0, 100, 0, -10},
		WKT:       "test",
	}
}

func fillBand(width, height int, v float32) Band {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = v
	}
	return newTestBand(width, height, data)
}

func TestComputeNDVI(t *testing.T) {
	nan := float32(math.NaN())
	red := newTestBand(2, 2, []float32{50, 0, nan, 100})
	nir := newTestBand(2, 2, []float32{200, 0, 80, nan})

	ndvi, err := ComputeNDVI(nir, red)
	require.NoError(t, err)
	require.InDelta(t, 0.6, ndvi.At(0, 0), 1e-6)
	// zero denominator and NaN inputs all come out NaN, never Inf or zero
	require.True(t, isNaN32(ndvi.At(1, 0)))
	require.True(t, isNaN32(ndvi.At(0, 1)))
	require.True(t, isNaN32(ndvi.At(1, 1)))
}

func TestComputeNDVIBounds(t *testing.T) {
	red := newTestBand(2, 2, []float32{10, 500, 3, 250})
	nir := newTestBand(2, 2, []float32{300, 20, 3, 250})
	ndvi, err := ComputeNDVI(nir, red)
	require.NoError(t, err)
	for _, v := range ndvi.Data {
		require.GreaterOrEqual(t, float64(v), -1.0)
		require.LessOrEqual(t, float64(v), 1.0)
	}
}

func TestComputeNDVIShapeMismatch(t *testing.T) {
	red := fillBand(2, 2, 1)
	nir := fillBand(3, 2, 1)
	_, err := ComputeNDVI(nir, red)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestComputeNDVIKeepsGrid(t *testing.T) {
	red := fillBand(3, 2, 100)
	nir := fillBand(3, 2, 100)
	ndvi, err := ComputeNDVI(nir, red)
	require.NoError(t, err)
	require.Equal(t, red.Transform, ndvi.Transform)
	require.Equal(t, red.WKT, ndvi.WKT)
}
