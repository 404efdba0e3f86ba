package surfalib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLabelMaskConnectivity(t *testing.T) {
	m := NewMask(3, 3)
	m.Data[0] = true // (0,0)
	m.Data[4] = true // (1,1)

	require.Equal(t, 2, LabelMask(m, 4).Num, "diagonal pixels are separate under 4-connectivity")
	require.Equal(t, 1, LabelMask(m, 8).Num, "diagonal pixels merge under 8-connectivity")
}

func TestLabelMaskCoversRegion(t *testing.T) {
	m := NewMask(5, 5)
	for y := 1; y < 4; y++ {
		for x := 1; x < 4; x++ {
			m.Data[y*5+x] = true
		}
	}
	lbl := LabelMask(m, 4)
	require.Equal(t, 1, lbl.Num)
	n := 0
	for i, l := range lbl.Data {
		require.Equal(t, m.Data[i], l != 0)
		if l != 0 {
			n++
		}
	}
	require.Equal(t, 9, n)
}

// two regions on one grid: left block watery, right block vegetated
func twoRegionFixture() (Mask, Band) {
	m := NewMask(10, 4)
	data := make([]float32, 40)
	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			m.Data[y*10+x] = true
			data[y*10+x] = -0.5
		}
		for x := 6; x < 9; x++ {
			m.Data[y*10+x] = true
			data[y*10+x] = 0.6
		}
	}
	return m, newTestBand(10, 4, data)
}

func TestFilterComponentsMeanDrop(t *testing.T) {
	m, ndvi := twoRegionFixture()
	out, st, err := FilterComponentsByNDVI(m, ndvi, rawOptions())
	require.NoError(t, err)
	require.Equal(t, 2, st.Regions)
	require.Equal(t, 1, st.DroppedMean)
	require.Equal(t, 0, st.DroppedP90)
	require.Equal(t, 12, out.Count())
	require.False(t, out.Data[0], "the watery region must be cleared")
	require.True(t, out.Data[6], "the vegetated region must survive")
}

func TestFilterComponentsUnscorableRegion(t *testing.T) {
	nan := float32(math.NaN())
	m := NewMask(4, 1)
	m.Data[0] = true
	m.Data[2] = true
	m.Data[3] = true
	ndvi := newTestBand(4, 1, []float32{nan, 0, 0.5, 0.5})

	out, st, err := FilterComponentsByNDVI(m, ndvi, rawOptions())
	require.NoError(t, err)
	require.Equal(t, 2, st.Regions)
	require.Equal(t, 1, st.DroppedP90, "an all-NaN region is unscorable and always dropped")
	require.False(t, out.Data[0])
	require.Equal(t, 2, out.Count())
}

func TestFilterComponentsAllFiltered(t *testing.T) {
	m := NewMask(3, 3)
	data := make([]float32, 9)
	for i := range data {
		m.Data[i] = true
		data[i] = -0.3
	}
	_, _, err := FilterComponentsByNDVI(m, newTestBand(3, 3, data), rawOptions())
	require.ErrorIs(t, err, ErrAllRegionsFiltered)
}

// A region sitting just above the mean floor but with a flat low profile:
// kept by the fast mean-only filter, dropped once the p90 pass runs.
func TestFilterComponentsP90Divergence(t *testing.T) {
	m := NewMask(10, 2)
	data := make([]float32, 20)
	for x := 0; x < 4; x++ {
		m.Data[x] = true
		data[x] = 0.03 // mean 0.03 >= 0.02, p90 0.03 < 0.05
	}
	for x := 6; x < 10; x++ {
		m.Data[x] = true
		data[x] = 0.5
	}
	ndvi := newTestBand(10, 2, data)

	fast := rawOptions()
	out, st, err := FilterComponentsByNDVI(m, ndvi, fast)
	require.NoError(t, err)
	require.Equal(t, 0, st.DroppedP90)
	require.Equal(t, 8, out.Count())

	strict := rawOptions()
	strict.FastMeanOnly = false
	out, st, err = FilterComponentsByNDVI(m, ndvi, strict)
	require.NoError(t, err)
	require.Equal(t, 1, st.DroppedP90)
	require.Equal(t, 4, out.Count())
	require.False(t, out.Data[0])
	require.True(t, out.Data[6])
}

func TestIntersectMask(t *testing.T) {
	m := NewMask(2, 2)
	aoi := NewMask(2, 2)
	m.Data[0], m.Data[1] = true, true
	aoi.Data[1], aoi.Data[2] = true, true
	out := IntersectMask(m, aoi)
	require.Equal(t, []bool{false, true, false, false}, out.Data)
}
