package surfalib

import (
	"os"

	"github.com/madgeo/surfalib/log"

	gdal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// MosaicRasters merges same-band tiles into one continuous LZW GTiff. Tiles
// are stitched through a VRT at the highest common resolution with bilinear
// resampling, then materialized. Later inputs take precedence where tiles
// overlap.
func (g *Toolbox) MosaicRasters(inputs []string, out string) (err error) {
	if len(inputs) == 0 {
		err = ErrEmptyMosaic
		return
	}
	log.Info(g.logTag+"mosaic rasters", zap.Int("tiles", len(inputs)), zap.String("out", out))
	tmpVrt := out + "_tmp.vrt"
	defer os.Remove(tmpVrt)
	ods, err := gdal.BuildVRT(tmpVrt, inputs, []string{"-resolution", "highest", "-r", "bilinear", "-overwrite"})
	if err != nil {
		log.Error(g.logTag+"failed to build vrt", zap.Error(err))
		return
	}
	defer ods.Close()
	finalDs, err := ods.Translate(out, []string{"-co", "compress=lzw"})
	if err != nil {
		log.Error(g.logTag+"failed to translate vrt", zap.Error(err))
		return
	}
	finalDs.Close()
	return
}
