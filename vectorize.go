package surfalib

import (
	"github.com/madgeo/surfalib/log"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// boundary edge between a region pixel and the outside, directed so that the
// region interior stays on the left of travel (in row-down grid coordinates).
type traceEdge struct {
	from, to int // corner ids, id = y*(width+1) + x
	used     bool
}

// pixel-corner ring in grid coordinates.
type traceRing struct {
	pts  [][2]int
	area float64 // shoelace in grid coords; negative = shell, positive = hole
}

// Vectorize converts the final mask into one polygon per maximal connected
// true-region, in the raster's native CRS. Region outlines are traced along
// pixel edges and stitched into closed rings; holes become interior rings.
// Connectivity must match the one used for component filtering. Under
// 8-connectivity a region held together only by a diagonal corner comes out
// as one simple polygon per lobe, touching at that corner, rather than a
// single self-intersecting ring.
func (g *Toolbox) Vectorize(mask Mask, tr [6]float64, wkt string, connectivity int) (geos []gdal.Geometry, err error) {
	lbl := LabelMask(mask, connectivity)
	if lbl.Num == 0 {
		err = ErrAllRegionsFiltered
		return
	}
	ref, err := g.getWktRef(wkt)
	if err != nil {
		return
	}
	for l := int32(1); l <= int32(lbl.Num); l++ {
		rings := traceLabel(lbl, l)
		polys := assembleRings(rings, tr)
		for _, p := range polys {
			p.SetSpatialReference(ref)
			geos = append(geos, p)
		}
	}
	log.Info(g.logTag+"mask vectorized", zap.Int("regions", lbl.Num), zap.Int("polygons", len(geos)))
	return
}

// traceLabel collects the directed boundary edges of one label and stitches
// them into closed rings. At pinch corners (a region touching itself
// diagonally) the walk always takes the sharpest left turn, which keeps each
// lobe a separate simple ring instead of a self-intersecting one.
func traceLabel(lbl Labels, target int32) []traceRing {
	w, h := lbl.Width, lbl.Height
	cw := w + 1 // corners per row
	at := func(x, y int) int32 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return lbl.Data[y*w+x]
	}

	var edges []traceEdge
	byStart := map[int][]int{}
	add := func(fx, fy, tx, ty int) {
		from := fy*cw + fx
		edges = append(edges, traceEdge{from: from, to: ty*cw + tx})
		byStart[from] = append(byStart[from], len(edges)-1)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if at(x, y) != target {
				continue
			}
			if at(x, y-1) != target { // top, walked westward
				add(x+1, y, x, y)
			}
			if at(x, y+1) != target { // bottom, walked eastward
				add(x, y+1, x+1, y+1)
			}
			if at(x-1, y) != target { // left, walked southward
				add(x, y, x, y+1)
			}
			if at(x+1, y) != target { // right, walked northward
				add(x+1, y+1, x+1, y)
			}
		}
	}

	var rings []traceRing
	for i := range edges {
		if edges[i].used {
			continue
		}
		ring := walkRing(edges, byStart, i, cw)
		if len(ring.pts) >= 4 {
			rings = append(rings, ring)
		}
	}
	return rings
}

func walkRing(edges []traceEdge, byStart map[int][]int, start, cw int) (ring traceRing) {
	first := edges[start].from
	cur := start
	push := func(corner int) {
		p := [2]int{corner % cw, corner / cw}
		n := len(ring.pts)
		// collapse collinear runs
		if n >= 2 {
			a, b := ring.pts[n-2], ring.pts[n-1]
			if (a[0] == b[0] && b[0] == p[0]) || (a[1] == b[1] && b[1] == p[1]) {
				ring.pts[n-1] = p
				return
			}
		}
		ring.pts = append(ring.pts, p)
	}
	push(edges[start].from)
	for {
		e := &edges[cur]
		e.used = true
		push(e.to)
		if e.to == first {
			break
		}
		next := -1
		cands := byStart[e.to]
		if len(cands) == 1 {
			if !edges[cands[0]].used {
				next = cands[0]
			}
		} else {
			dx, dy := cornerDir(e.from, e.to, cw)
			// preference: left turn, then straight, then right turn
			ldx, ldy := dy, -dx
			best := 3
			for _, c := range cands {
				if edges[c].used {
					continue
				}
				cdx, cdy := cornerDir(edges[c].from, edges[c].to, cw)
				rank := 2
				if cdx == ldx && cdy == ldy {
					rank = 0
				} else if cdx == dx && cdy == dy {
					rank = 1
				}
				if rank < best {
					best = rank
					next = c
				}
			}
		}
		if next < 0 {
			// open chain; malformed mask edge bookkeeping
			ring.pts = nil
			return
		}
		cur = next
	}
	// drop the duplicated closing point, re-added at geometry build time
	ring.pts = ring.pts[:len(ring.pts)-1]
	// the closing segment may have been collinear with the opening one
	if len(ring.pts) >= 3 {
		a := ring.pts[len(ring.pts)-1]
		b := ring.pts[0]
		c := ring.pts[1]
		if (a[0] == b[0] && b[0] == c[0]) || (a[1] == b[1] && b[1] == c[1]) {
			ring.pts = ring.pts[1:]
		}
	}
	ring.area = shoelace(ring.pts)
	return
}

func cornerDir(from, to, cw int) (dx, dy int) {
	dx = to%cw - from%cw
	dy = to/cw - from/cw
	return
}

func shoelace(pts [][2]int) (area float64) {
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += float64(pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1])
	}
	return area / 2
}

// assembleRings groups one label's rings into polygons: each shell ring
// becomes a polygon, hole rings attach to the shell containing them. A label
// normally yields exactly one shell; pinch splits can yield more.
func assembleRings(rings []traceRing, tr [6]float64) (polys []gdal.Geometry) {
	var shells, holes []traceRing
	for _, r := range rings {
		if r.area < 0 {
			shells = append(shells, r)
		} else if r.area > 0 {
			holes = append(holes, r)
		}
	}
	if len(shells) == 0 {
		return
	}
	largest := 0
	for s := range shells {
		if -shells[s].area > -shells[largest].area {
			largest = s
		}
	}
	holeOwner := make([]int, len(holes))
	for i, hRing := range holes {
		holeOwner[i] = largest
		if len(shells) == 1 {
			continue
		}
		px := float64(hRing.pts[0][0])
		py := float64(hRing.pts[0][1])
		for s, shell := range shells {
			if pointInRing(px, py, shell.pts) {
				holeOwner[i] = s
				break
			}
		}
	}
	for s, shell := range shells {
		poly := gdal.Create(gdal.GT_Polygon)
		if e := poly.AddGeometryDirectly(gridRingToGeo(shell.pts, tr)); e != nil {
			poly.Destroy()
			continue
		}
		for i, hRing := range holes {
			if holeOwner[i] != s {
				continue
			}
			if e := poly.AddGeometryDirectly(gridRingToGeo(hRing.pts, tr)); e != nil {
				log.Error("failed to attach hole ring", zap.Error(e))
			}
		}
		polys = append(polys, poly)
	}
	return
}

func gridRingToGeo(pts [][2]int, tr [6]float64) gdal.Geometry {
	ring := gdal.Create(gdal.GT_LinearRing)
	for _, p := range pts {
		x, y := PixelToWorld(tr, float64(p[0]), float64(p[1]))
		ring.AddPoint2D(x, y)
	}
	x, y := PixelToWorld(tr, float64(pts[0][0]), float64(pts[0][1]))
	ring.AddPoint2D(x, y)
	return ring
}

// pointInRing is an even-odd ray cast in grid coordinates.
func pointInRing(px, py float64, pts [][2]int) bool {
	in := false
	n := len(pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(pts[i][0]), float64(pts[i][1])
		xj, yj := float64(pts[j][0]), float64(pts[j][1])
		if (yi > py) != (yj > py) &&
			px < (xj-xi)*(py-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}
