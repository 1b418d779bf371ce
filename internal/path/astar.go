// Package path implements A* search over the room grid. Movement is
// 4-connected with unit step cost, so the Manhattan heuristic is admissible
// and consistent and the returned paths are optimal.
package path

import (
	"container/heap"

	"tilerise/internal/grid"
)

type offset struct {
	dx int
	dy int
}

var neighborOffsets = [...]offset{
	{0, -1},
	{1, 0},
	{0, 1},
	{-1, 0},
}

type node struct {
	tile   grid.Tile
	g      int
	f      int
	seq    uint64
	index  int
	parent *node
}

// queue orders frontier nodes by f; ties go to the most recently inserted
// node so iteration order never depends on map ordering and paths are
// reproducible.
type queue []*node

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq > q[j].seq
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// FindPath searches for the optimal route from start to goal and returns the
// tile sequence including both endpoints. It returns nil when start equals
// goal, when either endpoint is out of bounds, when the goal is blocked, or
// when no route exists. The start tile itself is exempt from the occupancy
// check since the mover is standing on it.
func FindPath(g *grid.Grid, start, goal grid.Tile) []grid.Tile {
	if g == nil || start == goal {
		return nil
	}
	if !g.IsValidTile(start) || !g.IsWalkable(goal) {
		return nil
	}

	open := &queue{}
	heap.Init(open)
	var seq uint64
	heap.Push(open, &node{tile: start, g: 0, f: grid.Manhattan(start, goal)})

	gScore := map[grid.Tile]int{start: 0}
	closed := make(map[grid.Tile]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*node)
		if _, seen := closed[current.tile]; seen {
			continue
		}
		closed[current.tile] = struct{}{}
		if current.tile == goal {
			return reconstruct(current)
		}

		for _, d := range neighborOffsets {
			next := grid.Tile{X: current.tile.X + d.dx, Y: current.tile.Y + d.dy}
			if !g.IsWalkable(next) {
				continue
			}
			if _, seen := closed[next]; seen {
				continue
			}
			tentative := current.g + 1
			if prev, ok := gScore[next]; ok && tentative >= prev {
				continue
			}
			gScore[next] = tentative
			seq++
			heap.Push(open, &node{
				tile:   next,
				g:      tentative,
				f:      tentative + grid.Manhattan(next, goal),
				seq:    seq,
				parent: current,
			})
		}
	}
	return nil
}

// FindPathAdjacent behaves like FindPath but, when the goal tile is blocked,
// falls back to the best reachable tile 4-adjacent to it. Callers opt into
// this explicitly; FindPath treats a blocked goal as unreachable.
func FindPathAdjacent(g *grid.Grid, start, goal grid.Tile) []grid.Tile {
	if g == nil {
		return nil
	}
	if g.IsWalkable(goal) {
		return FindPath(g, start, goal)
	}
	var best []grid.Tile
	for _, d := range neighborOffsets {
		side := grid.Tile{X: goal.X + d.dx, Y: goal.Y + d.dy}
		if side == start {
			// Already adjacent to the goal.
			return nil
		}
		candidate := FindPath(g, start, side)
		if candidate == nil {
			continue
		}
		if best == nil || len(candidate) < len(best) {
			best = candidate
		}
	}
	return best
}

// ClosestWalkable searches outward from t in breadth-first order and returns
// the nearest free tile. Used to clamp spawn points off occupied tiles.
func ClosestWalkable(g *grid.Grid, t grid.Tile) (grid.Tile, bool) {
	if g == nil || !g.IsValidTile(t) {
		return grid.Tile{}, false
	}
	visited := map[grid.Tile]struct{}{t: {}}
	queue := []grid.Tile{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.IsWalkable(cur) {
			return cur, true
		}
		for _, d := range neighborOffsets {
			next := grid.Tile{X: cur.X + d.dx, Y: cur.Y + d.dy}
			if !g.IsValidTile(next) {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return grid.Tile{}, false
}

func reconstruct(end *node) []grid.Tile {
	length := 0
	for n := end; n != nil; n = n.parent {
		length++
	}
	tiles := make([]grid.Tile, length)
	for n := end; n != nil; n = n.parent {
		length--
		tiles[length] = n.tile
	}
	return tiles
}
