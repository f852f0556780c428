package tiles

import "github.com/yungbote/atelier-backend/internal/types"

// neighborOffsets is the fixed expansion order for the four axis-aligned
// neighbors: up, right, down, left.
var neighborOffsets = [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// SpiralOrder returns the generation order for a width x height grid: a
// breadth-first traversal from the grid center outward. For even dimensions
// the start is the lower-right of the four center cells. Every coordinate
// after the first has at least one already-emitted axis neighbor (its BFS
// parent), which is what guarantees each new cell can be conditioned on an
// adjacent completed image.
func SpiralOrder(width, height int) []types.GridCoord {
	if width <= 0 || height <= 0 {
		return nil
	}

	start := types.GridCoord{X: width / 2, Y: height / 2}
	order := make([]types.GridCoord, 0, width*height)
	visited := make([]bool, width*height)

	queue := []types.GridCoord{start}
	visited[start.Y*width+start.X] = true

	for len(queue) > 0 {
		cell := queue[0]
		queue = queue[1:]
		order = append(order, cell)

		for _, off := range neighborOffsets {
			nx, ny := cell.X+off[0], cell.Y+off[1]
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			if visited[ny*width+nx] {
				continue
			}
			visited[ny*width+nx] = true
			queue = append(queue, types.GridCoord{X: nx, Y: ny})
		}
	}
	return order
}

// Neighbors returns the in-bounds axis neighbors of one cell.
func Neighbors(width, height, x, y int) []types.GridCoord {
	out := make([]types.GridCoord, 0, 4)
	for _, off := range neighborOffsets {
		nx, ny := x+off[0], y+off[1]
		if nx < 0 || nx >= width || ny < 0 || ny >= height {
			continue
		}
		out = append(out, types.GridCoord{X: nx, Y: ny})
	}
	return out
}
