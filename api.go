package surfalib

import (
	"github.com/lukeroth/gdal"
)

// Band is one single-band raster held in memory: float samples plus the
// georeferencing needed to put pixels back on the map. Nodata is always NaN.
type Band struct {
	Data      []float32
	Width     int
	Height    int
	Transform [6]float64 // GDAL affine: x = t0 + col*t1 + row*t2, y = t3 + col*t4 + row*t5
	WKT       string     // spatial reference of the grid
}

// At returns the sample at (col, row). No bounds check.
func (b Band) At(col, row int) float32 {
	return b.Data[row*b.Width+col]
}

// SameGrid reports whether two bands share shape, transform and CRS.
func (b Band) SameGrid(o Band) bool {
	return b.Width == o.Width && b.Height == o.Height &&
		b.Transform == o.Transform && b.WKT == o.WKT
}

// Mask is a binary grid over the same shape as the band it came from.
type Mask struct {
	Data   []bool
	Width  int
	Height int
}

func NewMask(width, height int) Mask {
	return Mask{Data: make([]bool, width*height), Width: width, Height: height}
}

// Count returns the number of true pixels.
func (m Mask) Count() (n int) {
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return
}

// Labels is a labeled-component grid: 0 is background, labels run 1..Num.
type Labels struct {
	Data   []int32
	Width  int
	Height int
	Num    int
}

// Surface is one extracted land polygon with its computed attributes.
// The geometry is owned by the caller and must be destroyed after use.
type Surface struct {
	Geom    gdal.Geometry
	AreaM2  float64
	AreaKm2 float64
}

// FilterStats reports what the anti-water component filter dropped.
type FilterStats struct {
	Regions     int // labeled regions examined
	DroppedMean int // dropped by the mean-NDVI floor
	DroppedP90  int // dropped by the p90 floor (or unscorable regions)
}

// Report summarizes one pipeline run.
type Report struct {
	Threshold  float64
	Filter     FilterStats
	Polygons   int
	TotalKm2   float64
	MetricSRID int // metric CRS the areas were computed in
	OutFile    string
}
