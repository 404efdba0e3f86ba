package surfalib

import "fmt"

const (
	FILE_EXT_SHP  = ".shp"
	FILE_EXT_JSON = ".json"
	FILE_EXT_TIF  = ".tif"

	SHAPE_ENCODING  = "UTF-8"
	SHP_DRIVER_NAME = "ESRI Shapefile"
	ENCODING_OPTION = "ENCODING=" + SHAPE_ENCODING

	GEOJSON_SRID = 4326

	// MTM-8 / NAD83, the metric zone covering the Îles-de-la-Madeleine.
	DEFAULT_METRIC_SRID = 32198
	// UTM 20N, last-resort metric fallback when the target zone is unavailable.
	FALLBACK_METRIC_SRID = 32620

	SHP_FIELD_AREA_M2  = "area_m2"
	SHP_FIELD_AREA_KM2 = "area_km2"
	DEFAULT_TOTAL_NAME = "TOT_KM2"

	// DBF attribute names are truncated at 10 characters.
	MAX_FIELD_NAME_LEN = 10

	ThresholdFixed = "fixed"
	ThresholdOtsu  = "otsu"

	TMP_WARP_TIF = "warp_%s.tif"
)

// Options configures one surface-extraction run. It is a plain value passed
// into each stage; nothing mutates it after Validate.
type Options struct {
	ThresholdMode  string  // "fixed" or "otsu"
	ThresholdValue float64 // fixed NDVI threshold; low on purpose to keep sand
	MedianSize     int     // median smoothing window, odd, 1 disables
	MorphRadius    int     // closing disk radius, 0 disables morphology

	MinObjectPixels int // drop true-regions smaller than this
	MinHolePixels   int // fill false-holes smaller than this

	Connectivity int     // 4 or 8, for component labeling
	MeanMin      float64 // drop regions with mean NDVI below this
	P90Min       float64 // only in percentile mode
	FastMeanOnly bool    // true = skip the per-region p90 pass

	MinAreaM2  float64
	TargetSRID int // metric CRS for area computation

	// SourceSRIDOverride substitutes a CRS for rasters carrying none. Zero
	// means a missing CRS fails the run.
	SourceSRIDOverride int

	AddTotalField  bool
	TotalFieldName string
	TotalDecimals  int

	AOIFile string // optional AOI shapefile, empty = whole image
}

func DefaultOptions() Options {
	return Options{
		ThresholdMode:   ThresholdFixed,
		ThresholdValue:  0.05,
		MedianSize:      5,
		MorphRadius:     2,
		MinObjectPixels: 150,
		MinHolePixels:   150,
		Connectivity:    4,
		MeanMin:         0.02,
		P90Min:          0.05,
		FastMeanOnly:    true,
		MinAreaM2:       3000,
		TargetSRID:      DEFAULT_METRIC_SRID,
		AddTotalField:   true,
		TotalFieldName:  DEFAULT_TOTAL_NAME,
		TotalDecimals:   4,
	}
}

func (o Options) Validate() error {
	switch o.ThresholdMode {
	case ThresholdFixed, ThresholdOtsu:
	default:
		return fmt.Errorf("%w: %q", ErrBadThresholdMode, o.ThresholdMode)
	}
	if o.MedianSize < 1 || o.MedianSize%2 == 0 {
		return fmt.Errorf("%w: median size %d", ErrBadOption, o.MedianSize)
	}
	if o.MorphRadius < 0 {
		return fmt.Errorf("%w: morph radius %d", ErrBadOption, o.MorphRadius)
	}
	if o.MinObjectPixels < 0 || o.MinHolePixels < 0 {
		return fmt.Errorf("%w: negative pixel floor", ErrBadOption)
	}
	if o.Connectivity != 4 && o.Connectivity != 8 {
		return fmt.Errorf("%w: connectivity %d", ErrBadOption, o.Connectivity)
	}
	if o.MinAreaM2 < 0 {
		return fmt.Errorf("%w: min area %f", ErrBadOption, o.MinAreaM2)
	}
	if o.TargetSRID <= 0 {
		return fmt.Errorf("%w: target srid %d", ErrBadOption, o.TargetSRID)
	}
	if o.AddTotalField {
		if o.TotalFieldName == "" || len(o.TotalFieldName) > MAX_FIELD_NAME_LEN {
			return fmt.Errorf("%w: total field name %q", ErrBadFieldName, o.TotalFieldName)
		}
	}
	if o.TotalDecimals < 0 {
		return fmt.Errorf("%w: total decimals %d", ErrBadOption, o.TotalDecimals)
	}
	return nil
}
