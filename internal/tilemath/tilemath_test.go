package tilemath

import (
	"testing"
)

// Property 9: ParseTileKey(TileKey(x,y,z)) == (x,y,z) for non-negative ints.
func TestTileKeyRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Coord{
		{Z: 0, X: 0, Y: 0},
		{Z: 4, X: 3, Y: 7},
		{Z: 18, X: 123456, Y: 654321},
	}
	for _, c := range cases {
		parsed, ok := ParseTileKey(c.Key())
		if !ok {
			t.Fatalf("ParseTileKey(%q) returned false", c.Key())
		}
		if parsed != c {
			t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, c)
		}
	}
}

func TestParseTileKeyMalformed(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "1/2", "1/2/3/4", "a/b/c", "-1/2/3", "1/-2/3"} {
		if _, ok := ParseTileKey(s); ok {
			t.Fatalf("expected ParseTileKey(%q) to fail", s)
		}
	}
}

// S4: first element of the prioritized result is the center tile, distance 0.
func TestCenterOutPriorityScenarioS4(t *testing.T) {
	t.Parallel()

	bounds := Bounds{West: -10, East: 10, North: 10, South: -10}
	z := 4

	visible := GetVisibleTiles(bounds, z)
	center := GetViewportCenterTile(bounds, z)

	ordered := PrioritizeTilesSort(visible, center)
	if len(ordered) == 0 {
		t.Fatal("expected non-empty visible tile set")
	}
	if ordered[0] != center {
		t.Fatalf("expected first tile to be center %+v, got %+v", center, ordered[0])
	}
}

// Property 10: squared distance to center is non-decreasing in sort-form order.
func TestPrioritizeTilesSortNonDecreasing(t *testing.T) {
	t.Parallel()

	bounds := Bounds{West: -30, East: 30, North: 30, South: -30}
	z := 5
	visible := GetVisibleTiles(bounds, z)
	center := GetViewportCenterTile(bounds, z)
	ordered := PrioritizeTilesSort(visible, center)

	sqDist := func(c Coord) int {
		dx, dy := c.X-center.X, c.Y-center.Y
		return dx*dx + dy*dy
	}

	for i := 1; i < len(ordered); i++ {
		if sqDist(ordered[i]) < sqDist(ordered[i-1]) {
			t.Fatalf("distance decreased at index %d: %+v then %+v", i, ordered[i-1], ordered[i])
		}
	}
}

func TestPrioritizeTilesBFSVisitsRectangleFromCenter(t *testing.T) {
	t.Parallel()

	bounds := Bounds{West: -20, East: 20, North: 20, South: -20}
	z := 4
	visible := GetVisibleTiles(bounds, z)
	center := GetViewportCenterTile(bounds, z)

	ordered := PrioritizeTilesBFS(visible, center)
	if len(ordered) != len(visible) {
		t.Fatalf("expected BFS to reach every tile of a rectangular set, got %d of %d", len(ordered), len(visible))
	}
	if ordered[0] != center {
		t.Fatalf("expected BFS to start at center, got %+v", ordered[0])
	}
}

func TestPrioritizeTilesBFSDropsUnreachable(t *testing.T) {
	t.Parallel()

	center := Coord{Z: 4, X: 5, Y: 5}
	reachable := Coord{Z: 4, X: 6, Y: 5}
	unreachable := Coord{Z: 4, X: 9, Y: 9} // not 4-connected to the others

	tiles := []Coord{center, reachable, unreachable}
	ordered := PrioritizeTilesBFS(tiles, center)

	if len(ordered) != 2 {
		t.Fatalf("expected unreachable tile to be dropped, got %+v", ordered)
	}
	for _, c := range ordered {
		if c == unreachable {
			t.Fatalf("unreachable tile should not appear in BFS order")
		}
	}
}

func TestParentChildWalk(t *testing.T) {
	t.Parallel()

	c := Coord{Z: 3, X: 5, Y: 2}
	parent, ok := GetParentTile(c)
	if !ok {
		t.Fatal("expected a parent for z=3")
	}
	if parent != (Coord{Z: 2, X: 2, Y: 1}) {
		t.Fatalf("unexpected parent: %+v", parent)
	}

	_, ok = GetParentTile(Coord{Z: 0, X: 0, Y: 0})
	if ok {
		t.Fatal("expected no parent at z=0")
	}

	children := GetChildTiles(parent)
	found := false
	for _, child := range children {
		if child == c {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %+v to be among children of %+v: %+v", c, parent, children)
	}
}

func TestGetParentTilesRespectsMinZoom(t *testing.T) {
	t.Parallel()

	c := Coord{Z: 5, X: 10, Y: 20}
	parents := GetParentTiles(c, 2)
	if len(parents) != 3 {
		t.Fatalf("expected 3 ancestors down to z=2, got %d: %+v", len(parents), parents)
	}
	if parents[len(parents)-1].Z != 2 {
		t.Fatalf("expected last ancestor at z=2, got %+v", parents[len(parents)-1])
	}

	all := GetParentTiles(c, -1)
	if len(all) != 5 {
		t.Fatalf("expected 5 ancestors down to z=0, got %d: %+v", len(all), all)
	}
}

func TestGetChildRegionInParent(t *testing.T) {
	t.Parallel()

	parent := Coord{Z: 0, X: 0, Y: 0}
	children := GetChildTiles(parent)

	wantRegions := []Region{
		{X: 0, Y: 0, Width: 0.5, Height: 0.5},
		{X: 0.5, Y: 0, Width: 0.5, Height: 0.5},
		{X: 0, Y: 0.5, Width: 0.5, Height: 0.5},
		{X: 0.5, Y: 0.5, Width: 0.5, Height: 0.5},
	}

	for i, child := range children {
		region, ok := GetChildRegionInParent(child, parent)
		if !ok {
			t.Fatalf("expected %+v to be a descendant of %+v", child, parent)
		}
		if region != wantRegions[i] {
			t.Fatalf("region %d: got %+v, want %+v", i, region, wantRegions[i])
		}
	}
}

func TestGetChildRegionInParentNotAnAncestor(t *testing.T) {
	t.Parallel()

	_, ok := GetChildRegionInParent(Coord{Z: 2, X: 3, Y: 3}, Coord{Z: 2, X: 0, Y: 0})
	if ok {
		t.Fatal("expected false for a non-ancestor parent")
	}

	_, ok = GetChildRegionInParent(Coord{Z: 1, X: 0, Y: 0}, Coord{Z: 2, X: 0, Y: 0})
	if ok {
		t.Fatal("expected false when parent zoom is not less than child zoom")
	}
}

func TestLngLatToTileKnownValues(t *testing.T) {
	t.Parallel()

	// (0,0) at zoom 1 should land in the tile set covering the globe's center.
	c := LngLatToTile(0, 0, 1)
	if c.Z != 1 {
		t.Fatalf("expected zoom 1, got %d", c.Z)
	}
	if c.X != 1 || c.Y != 1 {
		t.Fatalf("expected tile (1,1) at the origin for zoom 1, got (%d,%d)", c.X, c.Y)
	}
}
