package surfalib

import (
	"math"
	"testing"

	"github.com/lukeroth/gdal"
	"github.com/stretchr/testify/require"
)

func squareGeom(t *testing.T, g *Toolbox, ref gdal.SpatialReference, x, y, side float64) gdal.Geometry {
	t.Helper()
	geo, err := g.parseWKT(SpanToWkt([4]float64{x, x + side, y, y + side}), ref)
	require.NoError(t, err)
	return geo
}

func metricOptions() Options {
	opt := DefaultOptions()
	// keep source and target identical so area checks are exact
	opt.TargetSRID = 32620
	return opt
}

func TestComputeAreasMinAreaFilter(t *testing.T) {
	g := newTestToolbox(t)
	wkt := epsgWKT(t, 32620)
	ref, err := g.getWktRef(wkt)
	require.NoError(t, err)

	geos := []gdal.Geometry{
		squareGeom(t, g, ref, 500000, 5000000, 100), // 10000 m2, kept
		squareGeom(t, g, ref, 501000, 5000000, 50),  // 2500 m2, dropped
	}
	out, totalKm2, srid, err := g.ComputeAreas(geos, wkt, metricOptions())
	require.NoError(t, err)
	defer out[0].Geom.Destroy()
	require.Len(t, out, 1)
	require.Equal(t, 32620, srid)
	require.InDelta(t, 10000, out[0].AreaM2, 1e-3)
	require.InDelta(t, 0.01, out[0].AreaKm2, 1e-9)
	require.InDelta(t, 0.01, totalKm2, 1e-9)
}

func TestComputeAreasAllBelowFloor(t *testing.T) {
	g := newTestToolbox(t)
	wkt := epsgWKT(t, 32620)
	ref, err := g.getWktRef(wkt)
	require.NoError(t, err)

	geos := []gdal.Geometry{squareGeom(t, g, ref, 500000, 5000000, 10)}
	_, _, _, err = g.ComputeAreas(geos, wkt, metricOptions())
	require.ErrorIs(t, err, ErrAllRegionsFiltered)
}

func TestComputeAreasRoundedTotal(t *testing.T) {
	g := newTestToolbox(t)
	wkt := epsgWKT(t, 32620)
	ref, err := g.getWktRef(wkt)
	require.NoError(t, err)

	var geos []gdal.Geometry
	for i := 0; i < 3; i++ {
		geos = append(geos, squareGeom(t, g, ref, 500000+float64(i)*1000, 5000000, 80))
	}
	out, totalKm2, _, err := g.ComputeAreas(geos, wkt, metricOptions())
	require.NoError(t, err)
	var sum float64
	for _, s := range out {
		require.InDelta(t, 0.0064, s.AreaKm2, 1e-9, "6400 m2 rounds to 0.0064 km2")
		sum += s.AreaKm2
		s.Geom.Destroy()
	}
	require.InDelta(t, roundTo(sum, 4), totalKm2, 1e-9, "total is the rounded sum of rounded values")
}

func TestComputeAreasKeepsSourceGeometry(t *testing.T) {
	g := newTestToolbox(t)
	wkt := epsgWKT(t, 32620)
	ref, err := g.getWktRef(wkt)
	require.NoError(t, err)

	geos := []gdal.Geometry{squareGeom(t, g, ref, 500000, 5000000, 100)}
	out, _, _, err := g.ComputeAreas(geos, wkt, metricOptions())
	require.NoError(t, err)
	defer out[0].Geom.Destroy()
	env := out[0].Geom.Envelope()
	require.InDelta(t, 500000, env.MinX(), 1e-6, "survivors keep their source-CRS coordinates")
	require.InDelta(t, 500100, env.MaxX(), 1e-6)
}

// planar shoelace over a polygon's exterior ring, independent of OGR's Area
func exteriorShoelaceM2(geo gdal.Geometry) float64 {
	ring := geo.Geometry(0)
	n := ring.PointCount()
	var area float64
	for i := 0; i < n; i++ {
		x1, y1, _ := ring.Point(i)
		x2, y2, _ := ring.Point((i + 1) % n)
		area += x1*y2 - x2*y1
	}
	return math.Abs(area) / 2
}

func TestComputeAreasGeographicReprojection(t *testing.T) {
	g := newTestToolbox(t)
	srcWKT := epsgWKT(t, 4326)
	ref, err := g.getWktRef(srcWKT)
	require.NoError(t, err)

	// ~0.8 km2 square near the UTM 20N central meridian
	geo, err := g.parseWKT(SpanToWkt([4]float64{-63.0, -62.99, 47.0, 47.01}), ref)
	require.NoError(t, err)

	utmRef, err := g.getSridRef(32620)
	require.NoError(t, err)
	clone := geo.Clone()
	require.NoError(t, clone.TransformTo(utmRef))
	expectedM2 := exteriorShoelaceM2(clone)
	clone.Destroy()
	require.Greater(t, expectedM2, 500000.0)

	opt := DefaultOptions()
	opt.TargetSRID = 32620
	out, totalKm2, srid, err := g.ComputeAreas([]gdal.Geometry{geo}, srcWKT, opt)
	require.NoError(t, err)
	require.Len(t, out, 1)
	defer out[0].Geom.Destroy()
	require.Equal(t, 32620, srid)
	require.InEpsilon(t, expectedM2, out[0].AreaM2, 1e-3, "metric area within 0.1% of the planar shoelace")
	require.InEpsilon(t, roundTo(expectedM2/1e6, 4), totalKm2, 1e-3)
	// geometry written out stays geographic
	env := out[0].Geom.Envelope()
	require.InDelta(t, -63.0, env.MinX(), 1e-9)
}

func TestComputeAreasMissingSourceCRS(t *testing.T) {
	g := newTestToolbox(t)
	ref, err := g.getSridRef(32620)
	require.NoError(t, err)
	geos := []gdal.Geometry{squareGeom(t, g, ref, 500000, 5000000, 100)}
	out, _, _, err := g.ComputeAreas(geos, "", metricOptions())
	require.ErrorIs(t, err, ErrMissingCRS)
	require.Empty(t, out)
}

func TestRoundTo(t *testing.T) {
	require.Equal(t, 1.2346, roundTo(1.23456, 4))
	require.Equal(t, 0.0046, roundTo(0.00456789, 4))
	require.Equal(t, 3.0, roundTo(2.5, 0))
}
