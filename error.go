package surfalib

import "errors"

var (
	ErrInvalidTif       = errors.New("tif open err")
	ErrWrongTif         = errors.New("tif has no usable band")
	ErrTifReadFailed    = errors.New("tif band read err")
	ErrMissingCRS       = errors.New("raster has no CRS")
	ErrShapeMismatch    = errors.New("band grids differ in shape")
	ErrEmptyMosaic      = errors.New("no inputs to mosaic")
	ErrGdalDriverOpen   = errors.New("gdal driver open err")
	ErrGdalDriverCreate = errors.New("gdal driver create err")
	ErrVoidSrid         = errors.New("spatial ref with void srid")
	ErrEmptyAOI         = errors.New("aoi has no usable geometry")

	// Classifier produced an all-false mask: almost always a misconfigured
	// threshold, never silently treated as an empty scene.
	ErrNoLandPixels = errors.New("no land pixels selected")
	// Every candidate region was dropped by the NDVI stats filter.
	ErrAllRegionsFiltered = errors.New("all candidate regions were filtered as water")

	ErrMetricReproject  = errors.New("no metric reprojection strategy succeeded")
	ErrBadThresholdMode = errors.New("unknown threshold mode")
	ErrBadFieldName     = errors.New("invalid shapefile field name")
	ErrBadOption        = errors.New("invalid option")
)
