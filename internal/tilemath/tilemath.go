// Package tilemath implements the slippy-tile coordinate arithmetic the
// viewport-driven loader depends on: key encoding, lng/lat to tile
// conversion, viewport enumeration, center-out ordering, and the
// parent/child walk used for cache fallback and child-region mapping.
package tilemath

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Coord is a slippy tile coordinate. 0 <= X,Y < 2^Z is expected but not
// enforced by this package: neither LngLatToTile nor GetVisibleTiles
// clamps or checks it, so callers that need it must check it themselves.
type Coord struct {
	Z, X, Y int
}

// Key returns the canonical "z/x/y" serialization of a tile coordinate.
func (c Coord) Key() string {
	return strconv.Itoa(c.Z) + "/" + strconv.Itoa(c.X) + "/" + strconv.Itoa(c.Y)
}

// String implements fmt.Stringer for log-friendly output.
func (c Coord) String() string { return c.Key() }

// ParseTileKey parses a canonical "z/x/y" key. A malformed key reports
// false rather than an error: callers treat it as "no such tile", not
// as a failure worth propagating.
func ParseTileKey(s string) (Coord, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Coord{}, false
	}
	z, err := strconv.Atoi(parts[0])
	if err != nil {
		return Coord{}, false
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return Coord{}, false
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return Coord{}, false
	}
	if z < 0 || x < 0 || y < 0 {
		return Coord{}, false
	}
	return Coord{Z: z, X: x, Y: y}, true
}

// Bounds is a viewport expressed in WGS84 degrees.
type Bounds struct {
	West, East, North, South float64
}

// Region describes where a child tile falls within its ancestor's unit
// square, as returned by GetChildRegionInParent.
type Region struct {
	X, Y, Width, Height float64
}

// LngLatToTile converts a WGS84 point to the tile containing it at zoom z,
// using the standard slippy-map formula. Values are not clamped; callers
// that need 0 <= x,y < 2^z must check that themselves.
func LngLatToTile(lng, lat float64, z int) Coord {
	n := math.Exp2(float64(z))
	x := int(math.Floor((lng + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n))
	return Coord{Z: z, X: x, Y: y}
}

// GetVisibleTiles enumerates every tile in the axis-aligned rectangle
// covering bounds at zoom z, iterating x in the outer loop. It assumes
// bounds.West <= bounds.East; behavior across the antimeridian is
// undefined (documented limitation, not handled).
func GetVisibleTiles(bounds Bounds, z int) []Coord {
	nw := LngLatToTile(bounds.West, bounds.North, z)
	se := LngLatToTile(bounds.East, bounds.South, z)

	minX, maxX := nw.X, se.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := nw.Y, se.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	tiles := make([]Coord, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, Coord{Z: z, X: x, Y: y})
		}
	}
	return tiles
}

// GetViewportCenterTile converts the midpoint of bounds to a tile
// coordinate at zoom z.
func GetViewportCenterTile(bounds Bounds, z int) Coord {
	lng := (bounds.West + bounds.East) / 2
	lat := (bounds.North + bounds.South) / 2
	return LngLatToTile(lng, lat, z)
}

// PrioritizeTilesSort orders tiles by squared distance to center,
// ascending, via a stable sort. Intended for modest tile counts (<=~50);
// PrioritizeTilesBFS is the alternative for larger viewports.
func PrioritizeTilesSort(tiles []Coord, center Coord) []Coord {
	ordered := make([]Coord, len(tiles))
	copy(ordered, tiles)

	sqDist := func(c Coord) int {
		dx := c.X - center.X
		dy := c.Y - center.Y
		return dx*dx + dy*dy
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return sqDist(ordered[i]) < sqDist(ordered[j])
	})
	return ordered
}

// PrioritizeTilesBFS orders tiles by a 4-connected breadth-first walk
// starting at center. A tile not reachable from center through the
// supplied tile set is omitted from the result — this only matters for
// non-rectangular inputs, since GetVisibleTiles always returns a
// rectangle containing its center.
func PrioritizeTilesBFS(tiles []Coord, center Coord) []Coord {
	present := make(map[Coord]bool, len(tiles))
	for _, t := range tiles {
		present[t] = true
	}
	if !present[center] {
		return nil
	}

	visited := make(map[Coord]bool, len(tiles))
	visited[center] = true
	queue := []Coord{center}
	order := make([]Coord, 0, len(tiles))

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		neighbors := [4]Coord{
			{Z: cur.Z, X: cur.X + 1, Y: cur.Y},
			{Z: cur.Z, X: cur.X - 1, Y: cur.Y},
			{Z: cur.Z, X: cur.X, Y: cur.Y + 1},
			{Z: cur.Z, X: cur.X, Y: cur.Y - 1},
		}
		for _, n := range neighbors {
			if present[n] && !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return order
}

// GetParentTile returns the tile's immediate parent at z-1, or false if
// c is already at zoom 0.
func GetParentTile(c Coord) (Coord, bool) {
	if c.Z <= 0 {
		return Coord{}, false
	}
	return Coord{Z: c.Z - 1, X: c.X >> 1, Y: c.Y >> 1}, true
}

// GetParentTiles walks GetParentTile upward from c, stopping before
// zoom drops below minZoom. Pass minZoom < 0 to walk all the way to
// zoom 0.
func GetParentTiles(c Coord, minZoom int) []Coord {
	var out []Coord
	cur := c
	for {
		parent, ok := GetParentTile(cur)
		if !ok {
			break
		}
		if minZoom >= 0 && parent.Z < minZoom {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// GetChildTiles returns the four children of c at z+1.
func GetChildTiles(c Coord) [4]Coord {
	cz, cx, cy := c.Z+1, c.X*2, c.Y*2
	return [4]Coord{
		{Z: cz, X: cx, Y: cy},
		{Z: cz, X: cx + 1, Y: cy},
		{Z: cz, X: cx, Y: cy + 1},
		{Z: cz, X: cx + 1, Y: cy + 1},
	}
}

// GetChildRegionInParent returns where child falls within parent's unit
// square, or false if parent is not an ancestor of child (parent.Z must
// be strictly less than child.Z, and child must descend from parent).
func GetChildRegionInParent(child, parent Coord) (Region, bool) {
	if parent.Z >= child.Z {
		return Region{}, false
	}
	dz := child.Z - parent.Z
	scale := 1 << dz

	ancestorX := child.X >> dz
	ancestorY := child.Y >> dz
	if ancestorX != parent.X || ancestorY != parent.Y {
		return Region{}, false
	}

	size := 1.0 / float64(scale)
	localX := child.X - ancestorX*scale
	localY := child.Y - ancestorY*scale

	return Region{
		X:      float64(localX) * size,
		Y:      float64(localY) * size,
		Width:  size,
		Height: size,
	}, true
}
