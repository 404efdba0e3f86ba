package surfalib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/madgeo/surfalib/log"
	"github.com/madgeo/surfalib/utils"

	"github.com/lukeroth/gdal"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (g *Toolbox) getShpDriver(shp string, ref gdal.SpatialReference) (ds gdal.DataSource, layer gdal.Layer, err error) {
	log.Info(g.logTag+"output shp files", zap.String("shp", shp))
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Create(shp, nil)
	if !ok {
		err = ErrGdalDriverCreate
		return
	}
	layer = ds.CreateLayer("", ref, gdal.GT_Polygon, []string{ENCODING_OPTION})
	return
}

func (g *Toolbox) initSurfaceLayer(layer gdal.Layer, opt Options) (err error) {
	for _, name := range []string{SHP_FIELD_AREA_M2, SHP_FIELD_AREA_KM2} {
		fd := gdal.CreateFieldDefinition(name, gdal.FT_Real)
		if err = layer.CreateField(fd, false); err != nil {
			return
		}
	}
	if opt.AddTotalField {
		fd := gdal.CreateFieldDefinition(opt.TotalFieldName, gdal.FT_Real)
		err = layer.CreateField(fd, false)
	}
	return
}

// WriteSurfaceShapefile persists the attributed polygons in the source CRS.
// The dataset is assembled in a scratch directory and only moved into place
// once fully written, so a failed run never leaves a half-written attribute
// table or orphan sidecar files behind.
func (g *Toolbox) WriteSurfaceShapefile(shp, srcWKT string, surfaces []Surface, totalKm2 float64, opt Options) (err error) {
	ref, err := g.getWktRef(srcWKT)
	if err != nil {
		return
	}
	tmpDir, err := utils.GetUniqSubDir(g.tmpDir)
	if err != nil {
		return
	}
	defer os.RemoveAll(tmpDir)
	tmpShp := filepath.Join(tmpDir, utils.GetFilenameWithoutExt(shp)+FILE_EXT_SHP)

	if err = g.writeSurfaceLayer(tmpShp, ref, surfaces, totalKm2, opt); err != nil {
		return
	}
	if err = utils.MoveShapefile(tmpShp, shp); err != nil {
		log.Error(g.logTag+"failed to move shp into place", zap.String("shp", shp), zap.Error(err))
		return
	}
	log.Info(g.logTag+"shp files created", zap.String("shp", shp), zap.Int("features", len(surfaces)))
	return
}

func (g *Toolbox) writeSurfaceLayer(shp string, ref gdal.SpatialReference, surfaces []Surface, totalKm2 float64, opt Options) (err error) {
	ds, layer, err := g.getShpDriver(shp, ref)
	if err != nil {
		return
	}
	defer ds.Destroy() // flushes the dataset + releases resources
	if err = g.initSurfaceLayer(layer, opt); err != nil {
		return
	}
	var (
		def      = layer.Definition()
		m2Idx    = def.FieldIndex(SHP_FIELD_AREA_M2)
		km2Idx   = def.FieldIndex(SHP_FIELD_AREA_KM2)
		totalIdx = -1
		feature  gdal.Feature
		valid    int
		e        error
		gc       = make([]destroyable, 0, len(surfaces))
	)
	if opt.AddTotalField {
		totalIdx = def.FieldIndex(opt.TotalFieldName)
	}
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for i, s := range surfaces {
		feature = def.Create()
		gc = append(gc, feature)
		if e = feature.SetFID(int64(i)); e != nil {
			log.Error(g.logTag+"err in set feature fid", zap.Error(e))
			continue
		}
		feature.SetFieldFloat64(m2Idx, s.AreaM2)
		feature.SetFieldFloat64(km2Idx, s.AreaKm2)
		if totalIdx >= 0 {
			// repeated on every row: DBF has no summary-row concept
			feature.SetFieldFloat64(totalIdx, totalKm2)
		}
		if e = feature.SetGeometry(s.Geom); e != nil {
			log.Error(g.logTag+"err in set geom of feature", zap.Error(e))
			continue
		}
		if e = layer.Create(feature); e != nil {
			log.Error(g.logTag+"err in create feature of layer", zap.Error(e))
			continue
		}
		valid++
	}
	if valid < len(surfaces) {
		err = errors.Wrapf(ErrGdalDriverCreate, "only %d of %d features written", valid, len(surfaces))
	}
	return
}

// ShapefileToGeoJSON converts a written shapefile into GeoJSON for the map
// viewer, reprojected to EPSG:4326 by default.
func (g *Toolbox) ShapefileToGeoJSON(shp string, dstSrid ...int) (out string, err error) {
	sds, err := gdal.OpenEx(shp, gdal.OFVector, nil, nil, nil)
	if err != nil {
		log.Error(g.logTag+"open shp error", zap.Error(err))
		return
	}
	defer sds.Close()

	tSrid := GEOJSON_SRID
	if len(dstSrid) > 0 && dstSrid[0] > 0 {
		tSrid = dstSrid[0]
	}
	prefix := strings.TrimSuffix(shp, FILE_EXT_SHP)
	out = prefix + fmt.Sprintf("_%d"+FILE_EXT_JSON, tSrid)
	dds, err := gdal.VectorTranslate(out, []gdal.Dataset{sds}, []string{"-f", "GeoJSON", "-t_srs", fmt.Sprintf("epsg:%d", tSrid)})
	if err != nil {
		log.Error(g.logTag + "VectorTranslate failed")
		return
	}
	dds.Close()
	log.Info(g.logTag+"shp exported to GeoJSON", zap.String("shp", shp), zap.String("out", out))
	return
}
