package tile

import "math"

// Enumerator lists the tiles covering a bounding box for every zoom level in
// [minZ, maxZ]. Each call must return a fresh, finite, ordered slice.
type Enumerator interface {
	Tiles(bbox BBox, maxZ, minZ int) []Coord
}

// Counter is implemented by enumerators that can size a request without
// materializing it. Seeding uses it to refuse oversized boxes up front.
type Counter interface {
	Count(bbox BBox, maxZ, minZ int) int
}

// maxMercatorLat is the latitude where Web Mercator tiles end.
const maxMercatorLat = 85.0511287798

// WebMercator enumerates tiles in the standard XYZ scheme: zoom ascending,
// then x, then y.
type WebMercator struct{}

var (
	_ Enumerator = WebMercator{}
	_ Counter    = WebMercator{}
)

func (WebMercator) Tiles(bbox BBox, maxZ, minZ int) []Coord {
	if minZ < 0 {
		minZ = 0
	}
	var out []Coord
	for z := minZ; z <= maxZ; z++ {
		x0, y0, x1, y1 := span(bbox, z)
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				out = append(out, Coord{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// Count returns len(Tiles(bbox, maxZ, minZ)) in O(maxZ-minZ). The result
// saturates at math.MaxInt.
func (WebMercator) Count(bbox BBox, maxZ, minZ int) int {
	if minZ < 0 {
		minZ = 0
	}
	total := 0
	for z := minZ; z <= maxZ; z++ {
		x0, y0, x1, y1 := span(bbox, z)
		w, h := x1-x0+1, y1-y0+1
		if h != 0 && w > (math.MaxInt-total)/h {
			return math.MaxInt
		}
		total += w * h
	}
	return total
}

// span returns the inclusive tile range covering bbox at zoom z.
func span(bbox BBox, z int) (x0, y0, x1, y1 int) {
	x0, y0 = lngLatToTile(bbox.MinLng, bbox.MaxLat, z)
	x1, y1 = lngLatToTile(bbox.MaxLng, bbox.MinLat, z)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return x0, y0, x1, y1
}

func lngLatToTile(lng, lat float64, z int) (int, int) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	n := math.Exp2(float64(z))
	x := int(math.Floor((lng + 180) / 360 * n))
	rad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * n))
	last := int(n) - 1
	return clamp(x, 0, last), clamp(y, 0, last)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
