package surfalib

import (
	"strconv"
	"strings"
	"sync"

	"github.com/madgeo/surfalib/log"

	godal "github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// Toolbox bundles the GDAL state one extraction run needs: a reusable cache
// of spatial references keyed by SRID, and a scratch directory for warp and
// shapefile intermediates.
type Toolbox struct {
	refMap  map[int]gdal.SpatialReference
	wktRefs map[string]gdal.SpatialReference
	rLock   sync.Mutex
	tmpDir  string
	logTag  string
}

// GDAL C objects that must be manually released.
type destroyable interface {
	Destroy()
}

var (
	emptyGeometry = gdal.Geometry{}

	registerOnce sync.Once
)

// NewToolbox initializes a toolbox; tmpDir is an optional scratch directory
// (current directory if omitted).
func NewToolbox(tmpDir ...string) *Toolbox {
	registerOnce.Do(godal.RegisterAll)
	g := &Toolbox{
		refMap:  map[int]gdal.SpatialReference{},
		wktRefs: map[string]gdal.SpatialReference{},
		logTag:  "Toolbox:",
	}
	if len(tmpDir) > 0 && tmpDir[0] != "" {
		g.tmpDir = tmpDir[0]
	}
	return g
}

// getSridRef returns the cached spatial reference for an SRID (reusable, so
// never destroyed).
func (g *Toolbox) getSridRef(srid int) (ref gdal.SpatialReference, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[srid]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromEPSG(srid); err != nil {
		log.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		ref.Destroy()
		return
	}
	// Keep data axes in (lon,lat) / (easting,northing) order regardless of
	// what the authority definition says, same as every raster we read.
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[srid] = ref
	return
}

// getWktRef returns the cached spatial reference for raster WKT (reusable,
// never destroyed — OGR geometries keep referring to it).
func (g *Toolbox) getWktRef(wkt string) (ref gdal.SpatialReference, err error) {
	if strings.TrimSpace(wkt) == "" {
		err = ErrMissingCRS
		return
	}
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.wktRefs[wkt]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference(wkt)
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.wktRefs[wkt] = ref
	return
}

func (g *Toolbox) getSrid(sp gdal.SpatialReference) (srid int, err error) {
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		err = ErrVoidSrid
		return
	}
	srid, err = strconv.Atoi(rawId)
	return
}

func (g *Toolbox) parseWKT(wkt string, ref gdal.SpatialReference) (ret gdal.Geometry, err error) {
	ret, err = gdal.CreateFromWKT(wkt, ref)
	if err != nil {
		log.Error(g.logTag+"parse wkt failed", zap.Error(err))
	}
	return
}
