package surfalib

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/madgeo/surfalib/log"

	gdal "github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LoadBand reads band 1 of a raster into memory with nodata and non-finite
// samples normalized to NaN. A raster without CRS metadata fails the run and
// names the file, unless the caller opted into SourceSRIDOverride.
func (g *Toolbox) LoadBand(path string, opt Options) (b Band, err error) {
	sds, err := gdal.Open(path, gdal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open tif failed", zap.String("file", path), zap.Error(err))
		err = errors.Wrapf(ErrInvalidTif, "%s", path)
		return
	}
	defer sds.Close()
	if b, err = g.readBandGrid(sds, path); err != nil {
		return
	}
	if b.WKT == "" {
		if opt.SourceSRIDOverride <= 0 {
			err = errors.Wrapf(ErrMissingCRS, "%s", path)
			return
		}
		ref, e := g.getSridRef(opt.SourceSRIDOverride)
		if e != nil {
			err = e
			return
		}
		if b.WKT, err = ref.ToWKT(); err != nil {
			return
		}
		log.Warn(g.logTag+"raster has no CRS, using configured override",
			zap.String("file", path), zap.Int("srid", opt.SourceSRIDOverride))
	}
	return
}

func (g *Toolbox) readBandGrid(sds *gdal.Dataset, path string) (b Band, err error) {
	bands := sds.Bands()
	if len(bands) == 0 {
		log.Error(g.logTag+"tif has no band", zap.String("file", path))
		err = errors.Wrapf(ErrWrongTif, "%s", path)
		return
	}
	band := bands[0]
	st := band.Structure()
	b.Width = st.SizeX
	b.Height = st.SizeY
	b.Data = make([]float32, b.Width*b.Height)
	if err = band.Read(0, 0, b.Data, b.Width, b.Height); err != nil {
		log.Error(g.logTag+"read tif band failed", zap.String("file", path), zap.Error(err))
		err = errors.Wrapf(ErrTifReadFailed, "%s", path)
		return
	}
	if b.Transform, err = sds.GeoTransform(); err != nil {
		log.Error(g.logTag+"tif has no geotransform", zap.String("file", path), zap.Error(err))
		err = errors.Wrapf(ErrWrongTif, "%s", path)
		return
	}
	b.WKT = sds.Projection()

	nan := float32(math.NaN())
	nodata, hasNodata := band.NoData()
	for i, v := range b.Data {
		f := float64(v)
		if (hasNodata && f == nodata) || math.IsInf(f, 0) || isNaN32(v) {
			b.Data[i] = nan
		}
	}
	log.Info(g.logTag+"band loaded", zap.String("file", path),
		zap.Int("width", b.Width), zap.Int("height", b.Height), zap.Bool("nodata", hasNodata))
	return
}

// LoadBandPair returns RED with its native grid and NIR resampled onto that
// exact grid. When the two rasters already agree on CRS, transform and shape
// the NIR read is a plain passthrough: skipping the no-op warp also skips a
// class of "reprojection succeeded but shifted by rounding" bugs.
func (g *Toolbox) LoadBandPair(redPath, nirPath string, opt Options) (red, nir Band, err error) {
	if red, err = g.LoadBand(redPath, opt); err != nil {
		return
	}
	if nir, err = g.LoadBand(nirPath, opt); err != nil {
		return
	}
	if nir.SameGrid(red) {
		return
	}
	log.Info(g.logTag+"NIR grid differs from RED, resampling",
		zap.String("nir", nirPath),
		zap.Int("redW", red.Width), zap.Int("redH", red.Height),
		zap.Int("nirW", nir.Width), zap.Int("nirH", nir.Height))
	if nir, err = g.warpOntoGrid(nirPath, red, opt); err != nil {
		return
	}
	if nir.Width != red.Width || nir.Height != red.Height {
		// should not happen with an explicit -ts, but upstream products have
		// surprised us before; reconcile and flag the data quality
		log.Warn(g.logTag+"warped NIR shape still differs from RED, resizing",
			zap.Int("gotW", nir.Width), zap.Int("gotH", nir.Height),
			zap.Int("wantW", red.Width), zap.Int("wantH", red.Height))
		nir = resizeBilinear(nir, red.Width, red.Height)
	}
	nir.Transform = red.Transform
	nir.WKT = red.WKT
	return
}

// warpOntoGrid reprojects a raster onto the reference band's grid with
// bilinear resampling, through a scratch GTiff.
func (g *Toolbox) warpOntoGrid(path string, ref Band, opt Options) (b Band, err error) {
	sds, err := gdal.Open(path, gdal.RasterOnly())
	if err != nil {
		err = errors.Wrapf(ErrInvalidTif, "%s", path)
		return
	}
	defer sds.Close()

	minX, minY, maxX, maxY := GridExtent(ref.Transform, ref.Width, ref.Height)
	tmpTif := filepath.Join(g.tmpDir, fmt.Sprintf(TMP_WARP_TIF, uuid.NewString()))
	defer os.Remove(tmpTif)
	switches := []string{
		"-t_srs", ref.WKT,
		"-te", fmtF(minX), fmtF(minY), fmtF(maxX), fmtF(maxY),
		"-ts", strconv.Itoa(ref.Width), strconv.Itoa(ref.Height),
		"-r", "bilinear",
		"-dstnodata", "nan",
		"-overwrite",
		"-of", "GTiff",
	}
	if opt.SourceSRIDOverride > 0 && sds.Projection() == "" {
		switches = append(switches, "-s_srs", fmt.Sprintf("epsg:%d", opt.SourceSRIDOverride))
	}
	wds, err := gdal.Warp(tmpTif, []*gdal.Dataset{sds}, switches)
	if err != nil {
		log.Error(g.logTag+"failed to warp band", zap.String("file", path), zap.Error(err))
		return
	}
	defer wds.Close()
	return g.readBandGrid(wds, tmpTif)
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// resizeBilinear is the last-resort shape reconciliation: order-1
// interpolation of a grid onto a new shape, NaN-aware (missing neighbors are
// dropped and the remaining weights renormalized).
func resizeBilinear(b Band, width, height int) Band {
	out := Band{
		Data:      make([]float32, width*height),
		Width:     width,
		Height:    height,
		Transform: b.Transform,
		WKT:       b.WKT,
	}
	nan := float32(math.NaN())
	sx := float64(b.Width) / float64(width)
	sy := float64(b.Height) / float64(height)
	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		wy := fy - float64(y0)
		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			wx := fx - float64(x0)
			var sum, wsum float64
			for dy := 0; dy <= 1; dy++ {
				ny := y0 + dy
				if ny < 0 || ny >= b.Height {
					continue
				}
				for dx := 0; dx <= 1; dx++ {
					nx := x0 + dx
					if nx < 0 || nx >= b.Width {
						continue
					}
					v := b.Data[ny*b.Width+nx]
					if isNaN32(v) {
						continue
					}
					w := (1 - math.Abs(float64(dx)-wx)) * (1 - math.Abs(float64(dy)-wy))
					sum += float64(v) * w
					wsum += w
				}
			}
			if wsum > 0 {
				out.Data[y*width+x] = float32(sum / wsum)
			} else {
				out.Data[y*width+x] = nan
			}
		}
	}
	return out
}
