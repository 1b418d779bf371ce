package grid

import (
	"errors"
	"math"
)

// Default tile footprint in world units. The isometric projection draws each
// tile twice as wide as it is tall.
const (
	DefaultTileWidth  = 64
	DefaultTileHeight = 32
)

var (
	ErrInvalidTile  = errors.New("grid: tile out of bounds")
	ErrTileOccupied = errors.New("grid: tile occupied")
)

// Tile addresses one cell of the isometric grid.
type Tile struct {
	X int `json:"tx"`
	Y int `json:"ty"`
}

// Manhattan returns the 4-connected step distance between two tiles.
func Manhattan(a, b Tile) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Grid is the walkability and occupancy model for one room. World positions
// are always derived from tile coordinates; the grid never stores them.
//
// Grid is not safe for concurrent use. The room command loop is the single
// writer on the server; each client engine owns its own mirror.
type Grid struct {
	width     int
	height    int
	tileW     float64
	tileH     float64
	occupants []string
}

// New builds an empty grid with the default tile footprint.
func New(width, height int) *Grid {
	return NewWithTileSize(width, height, DefaultTileWidth, DefaultTileHeight)
}

// NewWithTileSize builds an empty grid with an explicit tile footprint.
func NewWithTileSize(width, height int, tileW, tileH float64) *Grid {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Grid{
		width:     width,
		height:    height,
		tileW:     tileW,
		tileH:     tileH,
		occupants: make([]string, width*height),
	}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// TileWidth reports the world-unit width of one tile.
func (g *Grid) TileWidth() float64 { return g.tileW }

// TileHeight reports the world-unit height of one tile.
func (g *Grid) TileHeight() float64 { return g.tileH }

// TileToWorld projects a tile onto the isometric plane.
func (g *Grid) TileToWorld(t Tile) (float64, float64) {
	x := float64(t.X-t.Y) * g.tileW / 2
	y := float64(t.X+t.Y) * g.tileH / 2
	return x, y
}

// WorldToTile inverts TileToWorld, rounding to the nearest tile so that
// positions on a tile boundary resolve to the closer cell. Exact inverse for
// integer tile inputs.
func (g *Grid) WorldToTile(x, y float64) Tile {
	tx := math.Round((x/(g.tileW/2) + y/(g.tileH/2)) / 2)
	ty := math.Round((y/(g.tileH/2) - x/(g.tileW/2)) / 2)
	return Tile{X: int(tx), Y: int(ty)}
}

// IsValidTile reports whether the tile lies inside the grid bounds.
func (g *Grid) IsValidTile(t Tile) bool {
	return t.X >= 0 && t.X < g.width && t.Y >= 0 && t.Y < g.height
}

// IsWalkable reports whether the tile is in bounds and free of a blocking
// occupant.
func (g *Grid) IsWalkable(t Tile) bool {
	if !g.IsValidTile(t) {
		return false
	}
	return g.occupants[g.index(t)] == ""
}

// OccupantAt returns the id of the blocking entity on the tile, if any.
func (g *Grid) OccupantAt(t Tile) (string, bool) {
	if !g.IsValidTile(t) {
		return "", false
	}
	id := g.occupants[g.index(t)]
	return id, id != ""
}

// Occupy claims the tile for entityID. Claiming a tile already held by the
// same entity is a no-op; a tile held by a different entity reports
// ErrTileOccupied and leaves the table untouched.
func (g *Grid) Occupy(t Tile, entityID string) error {
	if !g.IsValidTile(t) {
		return ErrInvalidTile
	}
	idx := g.index(t)
	if cur := g.occupants[idx]; cur != "" && cur != entityID {
		return ErrTileOccupied
	}
	g.occupants[idx] = entityID
	return nil
}

// Vacate releases the tile regardless of who holds it. Releasing an empty or
// out-of-bounds tile is a no-op.
func (g *Grid) Vacate(t Tile) {
	if !g.IsValidTile(t) {
		return
	}
	g.occupants[g.index(t)] = ""
}

func (g *Grid) index(t Tile) int {
	return t.Y*g.width + t.X
}
