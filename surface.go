package surfalib

import (
	"github.com/madgeo/surfalib/log"

	"go.uber.org/zap"
)

// ExtractSurface runs the full land-surface extraction on one band pair and
// writes the result shapefile: load bands → NDVI → binarize → optional AOI
// clip → anti-water component filter → vectorize → areas/attributes → write.
// One raster pair in, one shapefile out; a failure at any stage aborts the
// run before anything is written.
func (g *Toolbox) ExtractSurface(redPath, nirPath, outShp string, opt Options) (rep Report, err error) {
	if err = opt.Validate(); err != nil {
		return
	}
	log.Info(g.logTag+"start surface extraction",
		zap.String("red", redPath), zap.String("nir", nirPath), zap.String("out", outShp))

	red, nir, err := g.LoadBandPair(redPath, nirPath, opt)
	if err != nil {
		return
	}
	ndvi, err := ComputeNDVI(nir, red)
	if err != nil {
		return
	}

	mask, thr, err := BinarizeNDVI(ndvi, opt)
	if err != nil {
		return
	}
	rep.Threshold = thr

	if opt.AOIFile != "" {
		var aoi Mask
		if aoi, err = g.LoadAOIMask(opt.AOIFile, red); err != nil {
			return
		}
		mask = IntersectMask(mask, aoi)
		if mask.Count() == 0 {
			err = ErrNoLandPixels
			return
		}
	}

	final, stats, err := FilterComponentsByNDVI(mask, ndvi, opt)
	if err != nil {
		return
	}
	rep.Filter = stats

	geos, err := g.Vectorize(final, red.Transform, red.WKT, opt.Connectivity)
	if err != nil {
		return
	}

	surfaces, totalKm2, metricSrid, err := g.ComputeAreas(geos, red.WKT, opt)
	defer func() {
		for _, s := range surfaces {
			s.Geom.Destroy()
		}
	}()
	if err != nil {
		return
	}
	rep.Polygons = len(surfaces)
	rep.TotalKm2 = totalKm2
	rep.MetricSRID = metricSrid

	if err = g.WriteSurfaceShapefile(outShp, red.WKT, surfaces, totalKm2, opt); err != nil {
		return
	}
	rep.OutFile = outShp
	log.Info(g.logTag+"surface extraction done", zap.String("out", outShp),
		zap.Int("polygons", rep.Polygons), zap.Float64("totalKm2", rep.TotalKm2))
	return
}
