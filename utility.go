package surfalib

import "fmt"

// PixelToWorld applies the GDAL affine transform to fractional pixel
// coordinates (col, row are corner-based, not center-based).
func PixelToWorld(tr [6]float64, col, row float64) (x, y float64) {
	x = tr[0] + col*tr[1] + row*tr[2]
	y = tr[3] + col*tr[4] + row*tr[5]
	return
}

// GridExtent returns the bounding box of a raster grid in world coordinates,
// robust to south-up or rotated transforms.
func GridExtent(tr [6]float64, width, height int) (minX, minY, maxX, maxY float64) {
	w, h := float64(width), float64(height)
	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}
	for i, c := range corners {
		x, y := PixelToWorld(tr, c[0], c[1])
		if i == 0 || x < minX {
			minX = x
		}
		if i == 0 || x > maxX {
			maxX = x
		}
		if i == 0 || y < minY {
			minY = y
		}
		if i == 0 || y > maxY {
			maxY = y
		}
	}
	return
}

// WorldToPixel inverts the affine transform, returning fractional (col, row).
func WorldToPixel(tr [6]float64, x, y float64) (col, row float64) {
	det := tr[1]*tr[5] - tr[2]*tr[4]
	dx := x - tr[0]
	dy := y - tr[3]
	col = (tr[5]*dx - tr[2]*dy) / det
	row = (tr[1]*dy - tr[4]*dx) / det
	return
}

func PointsToWkt(x1, x2, y1, y2 float64) string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", x1, x2, y1, y2)
}

func SpanToWkt(span [4]float64) string {
	return PointsToWkt(span[0], span[1], span[2], span[3])
}
