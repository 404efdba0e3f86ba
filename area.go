package surfalib

import (
	"math"

	"github.com/madgeo/surfalib/log"

	"github.com/lukeroth/gdal"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// metricRef is one attempt in the ordered reprojection chain. identity means
// areas are computed in the source CRS without transforming.
type metricRef struct {
	name     string
	srid     int
	ref      gdal.SpatialReference
	identity bool
}

// resolveMetricRef walks the ordered strategy list for a metric CRS: the
// configured target zone first, then the source CRS when it is already
// projected (upstream intermediates sometimes lose the zone the target EPSG
// assumes), and finally a generic UTM zone. Every attempt
// and its failure reason is logged so operators can see which fallback fired.
func (g *Toolbox) resolveMetricRef(srcRef gdal.SpatialReference, opt Options) (m metricRef, err error) {
	if ref, e := g.getSridRef(opt.TargetSRID); e == nil {
		return metricRef{name: "target-epsg", srid: opt.TargetSRID, ref: ref}, nil
	} else {
		log.Warn(g.logTag+"metric reprojection strategy failed",
			zap.String("strategy", "target-epsg"), zap.Int("srid", opt.TargetSRID), zap.Error(e))
	}
	if srcRef.IsProjected() {
		srid, _ := g.getSrid(srcRef)
		log.Info(g.logTag+"source CRS already projected, computing areas in place",
			zap.Int("srid", srid))
		return metricRef{name: "source-projected", srid: srid, ref: srcRef, identity: true}, nil
	}
	log.Warn(g.logTag+"metric reprojection strategy failed",
		zap.String("strategy", "source-projected"), zap.String("reason", "source CRS not projected"))
	if ref, e := g.getSridRef(FALLBACK_METRIC_SRID); e == nil {
		log.Info(g.logTag+"falling back to generic UTM zone", zap.Int("srid", FALLBACK_METRIC_SRID))
		return metricRef{name: "generic-utm", srid: FALLBACK_METRIC_SRID, ref: ref}, nil
	} else {
		log.Error(g.logTag+"metric reprojection strategy failed",
			zap.String("strategy", "generic-utm"), zap.Int("srid", FALLBACK_METRIC_SRID), zap.Error(e))
	}
	err = ErrMetricReproject
	return
}

// ComputeAreas measures each polygon in a metric CRS, drops those under the
// minimum area, and attaches per-polygon attributes. It takes ownership of
// geos: dropped and failed geometries are destroyed (on error paths too), and
// only the survivors come back. Survivors keep their original source-CRS
// geometry untouched (measuring happens on clones), so nothing needs a round
// trip back from the metric CRS.
//
// totalKm2 is the sum of the rounded per-polygon km2 values, rounded again
// to the configured decimals, the value stamped into the repeated total
// field.
func (g *Toolbox) ComputeAreas(geos []gdal.Geometry, srcWKT string, opt Options) (out []Surface, totalKm2 float64, metricSRID int, err error) {
	srcRef, err := g.getWktRef(srcWKT)
	if err != nil {
		destroyGeometries(geos)
		return
	}
	m, err := g.resolveMetricRef(srcRef, opt)
	if err != nil {
		destroyGeometries(geos)
		return
	}
	metricSRID = m.srid

	kept, dropped := 0, 0
	for _, geo := range geos {
		var areaM2 float64
		if m.identity {
			areaM2 = geo.Area()
		} else {
			clone := geo.Clone()
			if e := clone.TransformTo(m.ref); e != nil {
				log.Error(g.logTag+"polygon metric transform failed", zap.Error(e))
				clone.Destroy()
				geo.Destroy()
				dropped++
				continue
			}
			areaM2 = clone.Area()
			clone.Destroy()
		}
		if areaM2 < opt.MinAreaM2 {
			geo.Destroy()
			dropped++
			continue
		}
		areaKm2 := roundTo(areaM2/1e6, opt.TotalDecimals)
		out = append(out, Surface{Geom: geo, AreaM2: areaM2, AreaKm2: areaKm2})
		totalKm2 += areaKm2
		kept++
	}
	totalKm2 = roundTo(totalKm2, opt.TotalDecimals)

	log.Info(g.logTag+"areas computed", zap.String("strategy", m.name),
		zap.Int("metricSrid", m.srid), zap.Int("kept", kept), zap.Int("dropped", dropped),
		zap.Float64("totalKm2", totalKm2))
	if kept == 0 {
		err = errors.Wrap(ErrAllRegionsFiltered, "min-area filter")
	}
	return
}

func destroyGeometries(geos []gdal.Geometry) {
	for _, geo := range geos {
		geo.Destroy()
	}
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
