package surfalib

import (
	"math"
	"sort"

	"github.com/madgeo/surfalib/log"

	"go.uber.org/zap"
)

const otsuBins = 256

// BinarizeNDVI turns an NDVI raster into a candidate-land mask: median
// smoothing, fixed or Otsu thresholding over the finite pixels, light
// morphology (opening before closing, so the closing cannot bridge separate
// noise islands into fake shapes), then small-object removal and small-hole
// filling. Returns the mask together with the threshold actually applied.
//
// An all-false result is ErrNoLandPixels: it almost always means a
// misconfigured threshold, not an empty scene, and must not proceed silently.
func BinarizeNDVI(ndvi Band, opt Options) (mask Mask, thr float64, err error) {
	work := ndvi
	if opt.MedianSize > 1 {
		work = medianFilter(ndvi, opt.MedianSize)
	}

	switch opt.ThresholdMode {
	case ThresholdOtsu:
		var ok bool
		if thr, ok = otsuThreshold(work.Data); !ok {
			log.Warn("otsu found no finite pixels, mask will be empty")
			err = ErrNoLandPixels
			return
		}
	default:
		thr = opt.ThresholdValue
	}

	mask = NewMask(work.Width, work.Height)
	for i, v := range work.Data {
		mask.Data[i] = !isNaN32(v) && float64(v) >= thr
	}

	if opt.MorphRadius > 0 {
		mask = binaryOpen(mask, crossOffsets())
		mask = binaryClose(mask, diskOffsets(opt.MorphRadius))
	}
	if opt.MinObjectPixels > 0 {
		mask = removeSmallObjects(mask, opt.MinObjectPixels, opt.Connectivity)
	}
	if opt.MinHolePixels > 0 {
		mask = fillSmallHoles(mask, opt.MinHolePixels, opt.Connectivity)
	}

	n := mask.Count()
	log.Info("ndvi binarized", zap.Float64("threshold", thr),
		zap.String("mode", opt.ThresholdMode), zap.Int("landPixels", n))
	if n == 0 {
		err = ErrNoLandPixels
	}
	return
}

// medianFilter replaces each finite pixel with the median of the finite
// values in a size x size window. NaN centers stay NaN: smoothing must never
// resurrect nodata.
func medianFilter(b Band, size int) Band {
	half := size / 2
	out := make([]float32, len(b.Data))
	vals := make([]float64, 0, size*size)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			idx := y*b.Width + x
			c := b.Data[idx]
			if isNaN32(c) {
				out[idx] = c
				continue
			}
			vals = vals[:0]
			for ky := -half; ky <= half; ky++ {
				ny := y + ky
				if ny < 0 || ny >= b.Height {
					continue
				}
				for kx := -half; kx <= half; kx++ {
					nx := x + kx
					if nx < 0 || nx >= b.Width {
						continue
					}
					v := b.Data[ny*b.Width+nx]
					if !isNaN32(v) {
						vals = append(vals, float64(v))
					}
				}
			}
			sort.Float64s(vals)
			n := len(vals)
			if n%2 == 1 {
				out[idx] = float32(vals[n/2])
			} else {
				out[idx] = float32((vals[n/2-1] + vals[n/2]) / 2)
			}
		}
	}
	return Band{Data: out, Width: b.Width, Height: b.Height, Transform: b.Transform, WKT: b.WKT}
}

// otsuThreshold picks the threshold maximizing between-class variance over a
// 256-bin histogram of the finite values. The returned threshold is the
// center of the best bin mapped back to the value domain. ok is false when no
// finite pixel exists.
func otsuThreshold(data []float32) (thr float64, ok bool) {
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, v := range data {
		if isNaN32(v) {
			continue
		}
		f := float64(v)
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if lo > hi {
		return 0, false
	}
	if lo == hi {
		return lo, true
	}

	var histo [otsuBins]int
	scale := float64(otsuBins-1) / (hi - lo)
	total := 0
	for _, v := range data {
		if isNaN32(v) {
			continue
		}
		histo[int((float64(v)-lo)*scale)]++
		total++
	}

	var totalWeightedSum float64
	for bin, pixels := range histo {
		totalWeightedSum += float64(bin) * float64(pixels)
	}
	var (
		bestBin      int
		bestVariance float64
		loPixels     int
		loSum        float64
	)
	for bin, pixels := range histo {
		loPixels += pixels
		loSum += float64(bin) * float64(pixels)
		hiPixels := total - loPixels
		if loPixels == 0 || hiPixels == 0 {
			continue
		}
		loMean := loSum / float64(loPixels)
		hiMean := (totalWeightedSum - loSum) / float64(hiPixels)
		d := loMean - hiMean
		variance := float64(loPixels) * float64(hiPixels) * d * d
		if variance > bestVariance {
			bestVariance = variance
			bestBin = bin
		}
	}
	thr = lo + (float64(bestBin)+0.5)/scale
	return thr, true
}

// 3x3 cross, the opening element.
func crossOffsets() [][2]int {
	return [][2]int{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}}
}

// diskOffsets returns the offsets of a radius-r disk element.
func diskOffsets(r int) (se [][2]int) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				se = append(se, [2]int{dx, dy})
			}
		}
	}
	return
}

func binaryErode(m Mask, se [][2]int) Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			if !m.Data[idx] {
				continue
			}
			keep := true
			for _, d := range se {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
					continue
				}
				if !m.Data[ny*m.Width+nx] {
					keep = false
					break
				}
			}
			out.Data[idx] = keep
		}
	}
	return out
}

func binaryDilate(m Mask, se [][2]int) Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			hit := false
			for _, d := range se {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
					continue
				}
				if m.Data[ny*m.Width+nx] {
					hit = true
					break
				}
			}
			out.Data[idx] = hit
		}
	}
	return out
}

func binaryOpen(m Mask, se [][2]int) Mask {
	return binaryDilate(binaryErode(m, se), se)
}

func binaryClose(m Mask, se [][2]int) Mask {
	return binaryErode(binaryDilate(m, se), se)
}

// removeSmallObjects drops connected true-regions below minPixels.
func removeSmallObjects(m Mask, minPixels, connectivity int) Mask {
	lbl := LabelMask(m, connectivity)
	counts := make([]int, lbl.Num+1)
	for _, l := range lbl.Data {
		counts[l]++
	}
	out := NewMask(m.Width, m.Height)
	for i, l := range lbl.Data {
		out.Data[i] = l > 0 && counts[l] >= minPixels
	}
	return out
}

// fillSmallHoles sets connected false-regions below minPixels to true. This
// is the complement of removeSmallObjects, so border-touching background gets
// filled too when small enough, matching the original pipeline.
func fillSmallHoles(m Mask, minPixels, connectivity int) Mask {
	inv := NewMask(m.Width, m.Height)
	for i, v := range m.Data {
		inv.Data[i] = !v
	}
	lbl := LabelMask(inv, connectivity)
	counts := make([]int, lbl.Num+1)
	for _, l := range lbl.Data {
		counts[l]++
	}
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Data {
		out.Data[i] = v || (lbl.Data[i] > 0 && counts[lbl.Data[i]] < minPixels)
	}
	return out
}
