package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/madgeo/surfalib"
	"github.com/madgeo/surfalib/log"
	"github.com/madgeo/surfalib/utils"

	"go.uber.org/zap"
)

// cliConfig is the parsed command line: input selection plus the assembled
// pipeline options.
type cliConfig struct {
	redFiles []string
	nirFiles []string
	tciFiles []string
	product  string
	out      string
	tmpDir   string
	geojson  bool
	verbose  bool
	opt      surfalib.Options
}

func parseArgs(args []string) (cfg cliConfig, err error) {
	fs := flag.NewFlagSet("surface", flag.ContinueOnError)
	var (
		redArg  = fs.String("red", "", "RED band raster(s), comma separated; tiles are mosaicked")
		nirArg  = fs.String("nir", "", "NIR band raster(s), comma separated; tiles are mosaicked")
		tciArg  = fs.String("tci", "", "TCI raster(s), comma separated; RED/NIR tiles are discovered next to each")
		product = fs.String("product", "", "Sentinel-2 product root; TCI files are discovered under GRANULE (overrides -tci)")
		out     = fs.String("out", "", "output shapefile path")
		aoi     = fs.String("aoi", "", "optional AOI shapefile to clip against")
		tmpDir  = fs.String("tmp", os.TempDir(), "scratch directory for intermediates")
		geojson = fs.Bool("geojson", false, "also export the result as WGS84 GeoJSON next to the shapefile")
		verbose = fs.Bool("v", false, "development logging")

		thrMode   = fs.String("threshold-mode", "", `"fixed" or "otsu"`)
		threshold = fs.Float64("threshold", math.NaN(), "fixed NDVI threshold, in [-1,1] (default 0.05)")
		median    = fs.Int("median", -1, "median smoothing window (odd, 1 disables)")
		morph     = fs.Int("morph-radius", -1, "closing disk radius (0 disables morphology)")
		minObj    = fs.Int("min-object", -1, "minimum region size in pixels")
		minHole   = fs.Int("min-hole", -1, "maximum hole size to fill, in pixels")
		conn      = fs.Int("connectivity", -1, "pixel connectivity, 4 or 8")
		meanMin   = fs.Float64("mean-min", math.NaN(), "minimum mean NDVI per region (default 0.02)")
		p90       = fs.Bool("p90", false, "enable the per-region 90th percentile filter")
		p90Min    = fs.Float64("p90-min", math.NaN(), "minimum p90 NDVI per region (default 0.05)")
		minArea   = fs.Float64("min-area", -1, "minimum polygon area in square meters")
		srid      = fs.Int("target-srid", 0, "metric EPSG code for area computation")
		srcSrid   = fs.Int("source-srid", 0, "EPSG code to assume for rasters without CRS metadata")
		noTotal   = fs.Bool("no-total", false, "omit the total-area field")
		totName   = fs.String("total-name", "", "total-area field name (10 chars max)")
		totDec    = fs.Int("total-decimals", -1, "decimals for km2 values")
	)
	if err = fs.Parse(args); err != nil {
		return
	}
	if *out == "" {
		err = errors.New("missing -out")
		return
	}
	if *product == "" && *tciArg == "" && (*redArg == "" || *nirArg == "") {
		err = errors.New("need -product, -tci, or both -red and -nir")
		return
	}

	opt := surfalib.DefaultOptions()
	opt.AOIFile = *aoi
	opt.FastMeanOnly = !*p90
	if *thrMode != "" {
		opt.ThresholdMode = *thrMode
	}
	// NaN defaults mark the NDVI-domain flags as unset; their valid range
	// includes negative values
	if !math.IsNaN(*threshold) {
		opt.ThresholdValue = *threshold
	}
	if !math.IsNaN(*meanMin) {
		opt.MeanMin = *meanMin
	}
	if !math.IsNaN(*p90Min) {
		opt.P90Min = *p90Min
	}
	if *median >= 0 {
		opt.MedianSize = *median
	}
	if *morph >= 0 {
		opt.MorphRadius = *morph
	}
	if *minObj >= 0 {
		opt.MinObjectPixels = *minObj
	}
	if *minHole >= 0 {
		opt.MinHolePixels = *minHole
	}
	if *conn > 0 {
		opt.Connectivity = *conn
	}
	if *minArea >= 0 {
		opt.MinAreaM2 = *minArea
	}
	if *srid > 0 {
		opt.TargetSRID = *srid
	}
	if *srcSrid > 0 {
		opt.SourceSRIDOverride = *srcSrid
	}
	if *noTotal {
		opt.AddTotalField = false
	}
	if *totName != "" {
		opt.TotalFieldName = *totName
	}
	if *totDec >= 0 {
		opt.TotalDecimals = *totDec
	}

	cfg = cliConfig{
		redFiles: splitList(*redArg),
		nirFiles: splitList(*nirArg),
		tciFiles: splitList(*tciArg),
		product:  *product,
		out:      *out,
		tmpDir:   *tmpDir,
		geojson:  *geojson,
		verbose:  *verbose,
		opt:      opt,
	}
	return
}

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "surface:", err)
		os.Exit(2)
	}

	if cfg.verbose {
		if l, e := zap.NewDevelopment(); e == nil {
			log.SetLogger(l)
		}
	}
	defer log.Sync()

	g := surfalib.NewToolbox(cfg.tmpDir)

	if cfg.product != "" {
		if cfg.tciFiles, err = utils.FindTCIFiles(cfg.product); err != nil {
			fail(err)
		}
	}
	if len(cfg.tciFiles) > 0 {
		if cfg.redFiles, cfg.nirFiles, err = discoverBands(cfg.tciFiles); err != nil {
			fail(err)
		}
	}

	redPath, err := resolveBand(g, cfg.redFiles, cfg.tmpDir, "red")
	if err != nil {
		fail(err)
	}
	nirPath, err := resolveBand(g, cfg.nirFiles, cfg.tmpDir, "nir")
	if err != nil {
		fail(err)
	}

	rep, err := g.ExtractSurface(redPath, nirPath, cfg.out, cfg.opt)
	if err != nil {
		fail(err)
	}
	if cfg.geojson {
		if _, err = g.ShapefileToGeoJSON(cfg.out); err != nil {
			fail(err)
		}
	}

	fmt.Printf("wrote %s: %d polygon(s), %.4f km2 total (threshold %.4f, metric EPSG %d)\n",
		rep.OutFile, rep.Polygons, rep.TotalKm2, rep.Threshold, rep.MetricSRID)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "surface:", err)
	os.Exit(1)
}

func splitList(s string) (out []string) {
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return
}

// discoverBands finds the RED (B04) and NIR (B08) tiles sitting next to each
// TCI raster.
func discoverBands(tciFiles []string) (redFiles, nirFiles []string, err error) {
	for _, tci := range tciFiles {
		var red, nir string
		if red, err = utils.FindBandFromTCI(tci, "B04"); err != nil {
			err = fmt.Errorf("%s: %w", tci, err)
			return
		}
		if nir, err = utils.FindBandFromTCI(tci, "B08"); err != nil {
			err = fmt.Errorf("%s: %w", tci, err)
			return
		}
		redFiles = append(redFiles, red)
		nirFiles = append(nirFiles, nir)
	}
	return
}

// resolveBand returns a single raster path for a band, mosaicking when the
// band arrives as several tiles.
func resolveBand(g *surfalib.Toolbox, files []string, tmpDir, name string) (path string, err error) {
	switch len(files) {
	case 0:
		err = fmt.Errorf("no %s band file", name)
	case 1:
		path = files[0]
	default:
		path = filepath.Join(tmpDir, "mosaic_"+name+surfalib.FILE_EXT_TIF)
		err = g.MosaicRasters(files, path)
	}
	return
}
