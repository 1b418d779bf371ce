// Package entity holds the canonical representation of everything that can
// stand on the grid: players, NPCs, and dropped items. It is a data model
// only; rendering and networking consume read-only snapshots of it.
package entity

import "tilerise/internal/grid"

// Kind tags the entity variant.
type Kind string

const (
	KindPlayer Kind = "player"
	KindNPC    Kind = "npc"
	KindItem   Kind = "item"
)

// Facing is one of the four cardinal directions an entity can face.
type Facing string

const (
	FacingUp    Facing = "up"
	FacingDown  Facing = "down"
	FacingLeft  Facing = "left"
	FacingRight Facing = "right"
)

// ValidFacing reports whether s names a cardinal direction.
func ValidFacing(s string) bool {
	switch Facing(s) {
	case FacingUp, FacingDown, FacingLeft, FacingRight:
		return true
	}
	return false
}

// DeriveFacing maps a movement delta to a facing, keeping the current facing
// for a zero delta. Horizontal movement wins over vertical, matching how the
// walk animations were keyed.
func DeriveFacing(dx, dy int, current Facing) Facing {
	switch {
	case dx < 0:
		return FacingLeft
	case dx > 0:
		return FacingRight
	case dy < 0:
		return FacingUp
	case dy > 0:
		return FacingDown
	}
	return current
}

// ItemInfo is the item-variant payload.
type ItemInfo struct {
	Name  string `json:"name"`
	Class string `json:"class"`
	Value int    `json:"value"`
}

// Entity is a tagged variant over players, NPCs, and items. Item carries the
// payload for KindItem and is nil otherwise.
type Entity struct {
	ID     string
	Kind   Kind
	Name   string
	Tile   grid.Tile
	Target grid.Tile
	Facing Facing
	Owned  bool
	Item   *ItemInfo
}

// NewPlayer creates an idle player entity standing on spawn.
func NewPlayer(id, name string, spawn grid.Tile) *Entity {
	return &Entity{
		ID:     id,
		Kind:   KindPlayer,
		Name:   name,
		Tile:   spawn,
		Target: spawn,
		Facing: FacingDown,
	}
}

// NewNPC creates a stationary NPC entity.
func NewNPC(id, name string, tile grid.Tile) *Entity {
	return &Entity{
		ID:     id,
		Kind:   KindNPC,
		Name:   name,
		Tile:   tile,
		Target: tile,
		Facing: FacingDown,
	}
}

// NewItem creates a dropped-item entity lying on tile.
func NewItem(id string, tile grid.Tile, info ItemInfo) *Entity {
	return &Entity{
		ID:     id,
		Kind:   KindItem,
		Name:   info.Name,
		Tile:   tile,
		Target: tile,
		Facing: FacingDown,
		Item:   &info,
	}
}

// Blocking reports whether the entity claims its tile in the occupancy table.
// Items lie flat and never block movement.
func (e *Entity) Blocking() bool {
	return e != nil && e.Kind != KindItem
}

// Interactable reports whether clicking the entity means something beyond
// walking to it.
func (e *Entity) Interactable() bool {
	return e != nil && (e.Kind == KindItem || e.Kind == KindNPC)
}

// Moving reports whether the entity is mid-move between tiles.
func (e *Entity) Moving() bool {
	return e != nil && e.Tile != e.Target
}

// Set is an id-keyed collection of entities with O(1) operations.
type Set struct {
	byID map[string]*Entity
}

// NewSet returns an empty entity set.
func NewSet() *Set {
	return &Set{byID: make(map[string]*Entity)}
}

// Add inserts or replaces the entity under its id.
func (s *Set) Add(e *Entity) {
	if e == nil || e.ID == "" {
		return
	}
	s.byID[e.ID] = e
}

// Get looks an entity up by id.
func (s *Set) Get(id string) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Remove deletes the entity and reports whether it was present.
func (s *Set) Remove(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	return true
}

// Len reports the number of live entities.
func (s *Set) Len() int { return len(s.byID) }

// Each calls fn for every entity. Iteration order is unspecified.
func (s *Set) Each(fn func(*Entity)) {
	for _, e := range s.byID {
		fn(e)
	}
}
