package surfalib

import (
	"sort"

	"github.com/madgeo/surfalib/log"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

var (
	neighbors4 = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	neighbors8 = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
)

// LabelMask assigns each connected true-region a label 1..Num using flood
// fill. Connectivity is an explicit parameter (4 or 8) because it decides
// which regions merge; morphological closing can leave diagonal-only
// bridges that only 8-connectivity follows.
func LabelMask(m Mask, connectivity int) Labels {
	offs := neighbors4
	if connectivity == 8 {
		offs = neighbors8
	}
	lbl := Labels{
		Data:   make([]int32, len(m.Data)),
		Width:  m.Width,
		Height: m.Height,
	}
	var stack []int
	for idx := range m.Data {
		if !m.Data[idx] || lbl.Data[idx] != 0 {
			continue
		}
		lbl.Num++
		cur := int32(lbl.Num)
		lbl.Data[idx] = cur
		stack = append(stack[:0], idx)
		for len(stack) > 0 {
			n := len(stack) - 1
			p := stack[n]
			stack = stack[:n]
			x := p % m.Width
			y := p / m.Width
			for _, d := range offs {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
					continue
				}
				q := ny*m.Width + nx
				if m.Data[q] && lbl.Data[q] == 0 {
					lbl.Data[q] = cur
					stack = append(stack, q)
				}
			}
		}
	}
	return lbl
}

// FilterComponentsByNDVI is the anti-water pass. The NDVI threshold sits low
// on purpose so sand survives, which also lets sun glint and foam through in
// small patches; this drops whole regions whose NDVI statistics say water.
//
// Mean mode is a single O(n) pass of per-label sums and counts — region
// counts run into the thousands, so a per-region loop over the full grid
// would dominate the pipeline. Percentile mode additionally partitions each
// surviving region's finite values and drops it when the 90th percentile
// stays under P90Min: that catches a watery region with one thin land spike
// holding its mean up.
//
// A region with no finite pixel can't be scored: always dropped, tallied
// under DroppedP90 so the diagnostics stay honest.
func FilterComponentsByNDVI(mask Mask, ndvi Band, opt Options) (out Mask, st FilterStats, err error) {
	lbl := LabelMask(mask, opt.Connectivity)
	st.Regions = lbl.Num
	if lbl.Num == 0 {
		err = ErrNoLandPixels
		return
	}

	sums := make([]float64, lbl.Num+1)
	counts := make([]int, lbl.Num+1)
	for i, l := range lbl.Data {
		if l == 0 {
			continue
		}
		v := ndvi.Data[i]
		if isNaN32(v) {
			continue
		}
		sums[l] += float64(v)
		counts[l]++
	}

	keep := make([]bool, lbl.Num+1)
	for l := 1; l <= lbl.Num; l++ {
		if counts[l] == 0 {
			st.DroppedP90++
			continue
		}
		if sums[l]/float64(counts[l]) < opt.MeanMin {
			st.DroppedMean++
			continue
		}
		keep[l] = true
	}

	if !opt.FastMeanOnly {
		dropped := filterByP90(lbl, ndvi, counts, keep, opt.P90Min)
		st.DroppedP90 += dropped
	}

	out = NewMask(mask.Width, mask.Height)
	kept := 0
	for i, l := range lbl.Data {
		// Membership in the surviving label set is the definition of the
		// final mask; it is not recoverable from NDVI values alone.
		out.Data[i] = l > 0 && keep[l]
		if out.Data[i] {
			kept++
		}
	}
	log.Info("anti-water filter done", zap.Int("regions", st.Regions),
		zap.Int("droppedMean", st.DroppedMean), zap.Int("droppedP90", st.DroppedP90),
		zap.Int("keptPixels", kept))
	if kept == 0 {
		err = ErrAllRegionsFiltered
	}
	return
}

// filterByP90 computes the 90th percentile of each still-kept region in one
// grouped pass: finite values are bucketed per label up front, then each
// bucket is sorted for the empirical quantile. Avoids re-scanning the grid
// once per region.
func filterByP90(lbl Labels, ndvi Band, counts []int, keep []bool, p90Min float64) (dropped int) {
	offsets := make([]int, lbl.Num+1)
	total := 0
	for l := 1; l <= lbl.Num; l++ {
		offsets[l] = total
		if keep[l] {
			total += counts[l]
		}
	}
	flat := make([]float64, total)
	cursor := make([]int, lbl.Num+1)
	for i, l := range lbl.Data {
		if l == 0 || !keep[l] {
			continue
		}
		v := ndvi.Data[i]
		if isNaN32(v) {
			continue
		}
		flat[offsets[l]+cursor[l]] = float64(v)
		cursor[l]++
	}
	for l := 1; l <= lbl.Num; l++ {
		if !keep[l] {
			continue
		}
		vals := flat[offsets[l] : offsets[l]+cursor[l]]
		sort.Float64s(vals)
		if stat.Quantile(0.9, stat.Empirical, vals, nil) < p90Min {
			keep[l] = false
			dropped++
		}
	}
	return
}

// IntersectMask restricts a mask to an AOI of the same shape.
func IntersectMask(m, aoi Mask) Mask {
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Data {
		out.Data[i] = v && aoi.Data[i]
	}
	return out
}
