package surfalib

import (
	"math"
	"sort"

	"github.com/madgeo/surfalib/log"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// parseShpUnion opens a vector AOI and unions its features into a single
// geometry carrying the layer's spatial reference.
func (g *Toolbox) parseShpUnion(shp string) (ret gdal.Geometry, srid int, err error) {
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(shp, 0)
	if !ok {
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	if srid, err = g.getSrid(layer.SpatialReference()); err != nil {
		return
	}
	var (
		feature *gdal.Feature
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	ret = gdal.Create(gdal.GT_Polygon)
	for {
		if feature = layer.NextFeature(); feature != nil {
			gc = append(gc, *feature)
			gc = append(gc, ret)
			ret = ret.Union(feature.Geometry())
		} else {
			break
		}
	}
	if ret.IsEmpty() {
		gc = append(gc, ret)
		ret = emptyGeometry
		err = ErrEmptyAOI
	}
	return
}

// LoadAOIMask rasterizes an AOI vector file onto the band's grid. The AOI is
// reprojected into the raster CRS and filled scanline by scanline with the
// even-odd rule in pixel space, so rotated transforms work too.
func (g *Toolbox) LoadAOIMask(aoiFile string, b Band) (mask Mask, err error) {
	geo, srid, err := g.parseShpUnion(aoiFile)
	if err != nil {
		return
	}
	defer geo.Destroy()
	aoiRef, err := g.getSridRef(srid)
	if err != nil {
		return
	}
	geo.SetSpatialReference(aoiRef)
	rasterRef, err := g.getWktRef(b.WKT)
	if err != nil {
		return
	}
	if err = geo.TransformTo(rasterRef); err != nil {
		log.Error(g.logTag+"aoi transform failed", zap.String("aoi", aoiFile), zap.Error(err))
		return
	}

	rings := collectRings(geo, b.Transform)
	mask = NewMask(b.Width, b.Height)
	fillRings(mask, rings)
	n := mask.Count()
	log.Info(g.logTag+"aoi rasterized", zap.String("aoi", aoiFile),
		zap.Int("rings", len(rings)), zap.Int("pixels", n))
	if n == 0 {
		err = ErrEmptyAOI
	}
	return
}

// collectRings flattens a (multi)polygon into rings in pixel coordinates.
func collectRings(geo gdal.Geometry, tr [6]float64) (rings [][][2]float64) {
	switch geo.Type() {
	case gdal.GT_Polygon:
		for i, n := 0, geo.GeometryCount(); i < n; i++ {
			ring := geo.Geometry(i)
			np := ring.PointCount()
			pts := make([][2]float64, 0, np)
			for j := 0; j < np; j++ {
				x, y, _ := ring.Point(j)
				col, row := WorldToPixel(tr, x, y)
				pts = append(pts, [2]float64{col, row})
			}
			if len(pts) >= 3 {
				rings = append(rings, pts)
			}
		}
	case gdal.GT_MultiPolygon:
		for i, n := 0, geo.GeometryCount(); i < n; i++ {
			rings = append(rings, collectRings(geo.Geometry(i), tr)...)
		}
	}
	return
}

// fillRings marks pixels whose center falls inside the rings (even-odd).
func fillRings(mask Mask, rings [][][2]float64) {
	var xs []float64
	for row := 0; row < mask.Height; row++ {
		cy := float64(row) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			n := len(ring)
			for i, j := 0, n-1; i < n; j, i = i, i+1 {
				yi, yj := ring[i][1], ring[j][1]
				if (yi > cy) == (yj > cy) {
					continue
				}
				xi, xj := ring[i][0], ring[j][0]
				xs = append(xs, (xj-xi)*(cy-yi)/(yj-yi)+xi)
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)
		for k := 0; k+1 < len(xs); k += 2 {
			c0 := int(math.Ceil(xs[k] - 0.5))
			c1 := int(math.Ceil(xs[k+1]-0.5)) - 1
			if c0 < 0 {
				c0 = 0
			}
			if c1 >= mask.Width {
				c1 = mask.Width - 1
			}
			for c := c0; c <= c1; c++ {
				mask.Data[row*mask.Width+c] = true
			}
		}
	}
}
