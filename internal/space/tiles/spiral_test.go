package tiles

import (
	"testing"

	"github.com/yungbote/atelier-backend/internal/types"
)

func TestSpiralOrderCoversGridOnce(t *testing.T) {
	for w := 1; w <= 5; w++ {
		for h := 1; h <= 5; h++ {
			order := SpiralOrder(w, h)
			if len(order) != w*h {
				t.Fatalf("grid %dx%d: len: want=%d got=%d", w, h, w*h, len(order))
			}
			seen := map[types.GridCoord]bool{}
			for _, cell := range order {
				if cell.X < 0 || cell.X >= w || cell.Y < 0 || cell.Y >= h {
					t.Fatalf("grid %dx%d: cell %v out of bounds", w, h, cell)
				}
				if seen[cell] {
					t.Fatalf("grid %dx%d: cell %v emitted twice", w, h, cell)
				}
				seen[cell] = true
			}
		}
	}
}

func TestSpiralOrderStartsAtCenter(t *testing.T) {
	cases := []struct {
		w, h  int
		start types.GridCoord
	}{
		{3, 3, types.GridCoord{X: 1, Y: 1}},
		{4, 4, types.GridCoord{X: 2, Y: 2}},
		{2, 2, types.GridCoord{X: 1, Y: 1}},
		{5, 3, types.GridCoord{X: 2, Y: 1}},
		{1, 1, types.GridCoord{X: 0, Y: 0}},
	}
	for _, tc := range cases {
		order := SpiralOrder(tc.w, tc.h)
		if order[0] != tc.start {
			t.Fatalf("grid %dx%d: start: want=%v got=%v", tc.w, tc.h, tc.start, order[0])
		}
	}
}

// Every cell after the first must have an already-emitted axis neighbor so
// generation can always condition on an adjacent completed image.
func TestSpiralOrderNeighborProperty(t *testing.T) {
	for w := 2; w <= 5; w++ {
		for h := 2; h <= 5; h++ {
			order := SpiralOrder(w, h)
			emitted := map[types.GridCoord]bool{order[0]: true}
			for _, cell := range order[1:] {
				hasNeighbor := false
				for _, n := range Neighbors(w, h, cell.X, cell.Y) {
					if emitted[n] {
						hasNeighbor = true
						break
					}
				}
				if !hasNeighbor {
					t.Fatalf("grid %dx%d: cell %v has no emitted neighbor", w, h, cell)
				}
				emitted[cell] = true
			}
		}
	}
}

func TestSpiralOrderInvalidDims(t *testing.T) {
	if got := SpiralOrder(0, 3); got != nil {
		t.Fatalf("want nil for zero width, got %v", got)
	}
	if got := SpiralOrder(3, -1); got != nil {
		t.Fatalf("want nil for negative height, got %v", got)
	}
}

func TestNeighborsBounds(t *testing.T) {
	corner := Neighbors(3, 3, 0, 0)
	if len(corner) != 2 {
		t.Fatalf("corner neighbors: want=2 got=%d", len(corner))
	}
	center := Neighbors(3, 3, 1, 1)
	if len(center) != 4 {
		t.Fatalf("center neighbors: want=4 got=%d", len(center))
	}
}
