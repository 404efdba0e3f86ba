package surfalib

import (
	"os"
	"path/filepath"
	"testing"

	godal "github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"github.com/stretchr/testify/require"
)

// writeTestTif writes a uniform single-band float32 GTiff on a 10m UTM 20N
// grid.
func writeTestTif(t *testing.T, path string, width, height int, value float32) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, width, height)
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.SetGeoTransform([6]float64{500000, 10, 0, 5000000, 0, -10}))
	sr, err := godal.NewSpatialRefFromEPSG(32620)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))

	buf := make([]float32, width*height)
	for i := range buf {
		buf[i] = value
	}
	require.NoError(t, ds.Bands()[0].Write(0, 0, buf, width, height))
}

func TestExtractSurfaceUniformVegetation(t *testing.T) {
	dir := t.TempDir()
	red := filepath.Join(dir, "red.tif")
	nir := filepath.Join(dir, "nir.tif")
	out := filepath.Join(dir, "surface.shp")
	writeTestTif(t, red, 60, 60, 50)
	writeTestTif(t, nir, 60, 60, 200)

	opt := DefaultOptions()
	opt.TargetSRID = 32620
	g := NewToolbox(dir)
	rep, err := g.ExtractSurface(red, nir, out, opt)
	require.NoError(t, err)

	require.Equal(t, 0.05, rep.Threshold)
	require.Equal(t, 1, rep.Filter.Regions)
	require.Equal(t, 0, rep.Filter.DroppedMean)
	require.Equal(t, 1, rep.Polygons)
	require.Equal(t, 32620, rep.MetricSRID)
	// 60x60 pixels of 100 m2 each
	require.InDelta(t, 0.36, rep.TotalKm2, 1e-6)
	require.Equal(t, out, rep.OutFile)

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		_, err = os.Stat(filepath.Join(dir, "surface"+ext))
		require.NoError(t, err, "sidecar %s must be moved into place", ext)
	}
	requireSurfaceAttributes(t, out, 1, 0.36)
}

func TestExtractSurfaceAllWater(t *testing.T) {
	dir := t.TempDir()
	red := filepath.Join(dir, "red.tif")
	nir := filepath.Join(dir, "nir.tif")
	writeTestTif(t, red, 40, 40, 200)
	writeTestTif(t, nir, 40, 40, 50)

	opt := DefaultOptions()
	opt.TargetSRID = 32620
	g := NewToolbox(dir)
	_, err := g.ExtractSurface(red, nir, filepath.Join(dir, "surface.shp"), opt)
	require.ErrorIs(t, err, ErrNoLandPixels)
	_, err = os.Stat(filepath.Join(dir, "surface.shp"))
	require.True(t, os.IsNotExist(err), "a failed run must not leave output behind")
}

func TestExtractSurfaceBadOptions(t *testing.T) {
	g := NewToolbox(t.TempDir())
	opt := DefaultOptions()
	opt.Connectivity = 6
	_, err := g.ExtractSurface("red.tif", "nir.tif", "out.shp", opt)
	require.ErrorIs(t, err, ErrBadOption)
}

func TestLoadBandMissingCRS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nocrs.tif")
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, 4, 4)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{0, 10, 0, 0, 0, -10}))
	require.NoError(t, ds.Close())

	g := NewToolbox(dir)
	_, err = g.LoadBand(path, DefaultOptions())
	require.ErrorIs(t, err, ErrMissingCRS)

	opt := DefaultOptions()
	opt.SourceSRIDOverride = 32620
	b, err := g.LoadBand(path, opt)
	require.NoError(t, err)
	require.NotEmpty(t, b.WKT)
}

func requireSurfaceAttributes(t *testing.T, shp string, features int, totalKm2 float64) {
	t.Helper()
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(shp, 0)
	require.True(t, ok)
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	def := layer.Definition()
	totalIdx := def.FieldIndex(DEFAULT_TOTAL_NAME)
	require.GreaterOrEqual(t, totalIdx, 0)

	n := 0
	for {
		feature := layer.NextFeature()
		if feature == nil {
			break
		}
		require.InDelta(t, totalKm2, feature.FieldAsFloat64(totalIdx), 1e-6,
			"the total is repeated on every row")
		feature.Destroy()
		n++
	}
	require.Equal(t, features, n)
}
