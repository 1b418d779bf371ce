package entity

import (
	"testing"

	"tilerise/internal/grid"
)

func TestDeriveFacing(t *testing.T) {
	cases := []struct {
		dx, dy int
		cur    Facing
		want   Facing
	}{
		{-1, 0, FacingDown, FacingLeft},
		{1, 0, FacingDown, FacingRight},
		{0, -1, FacingDown, FacingUp},
		{0, 1, FacingUp, FacingDown},
		{1, 1, FacingUp, FacingRight},
		{0, 0, FacingLeft, FacingLeft},
	}
	for _, tc := range cases {
		if got := DeriveFacing(tc.dx, tc.dy, tc.cur); got != tc.want {
			t.Fatalf("DeriveFacing(%d,%d,%s) = %s, want %s", tc.dx, tc.dy, tc.cur, got, tc.want)
		}
	}
}

func TestCapabilities(t *testing.T) {
	player := NewPlayer("p1", "alice", grid.Tile{X: 1, Y: 1})
	npc := NewNPC("n1", "trader", grid.Tile{X: 2, Y: 2})
	item := NewItem("i1", grid.Tile{X: 3, Y: 3}, ItemInfo{Name: "sword", Class: "weapon", Value: 10})

	if !player.Blocking() || !npc.Blocking() {
		t.Fatalf("players and NPCs must block their tile")
	}
	if item.Blocking() {
		t.Fatalf("items must not block their tile")
	}
	if player.Interactable() {
		t.Fatalf("players are not interactable")
	}
	if !npc.Interactable() || !item.Interactable() {
		t.Fatalf("NPCs and items must be interactable")
	}
	if item.Item == nil || item.Item.Value != 10 {
		t.Fatalf("item payload missing: %+v", item.Item)
	}
	if player.Item != nil {
		t.Fatalf("player must not carry an item payload")
	}
}

func TestMoving(t *testing.T) {
	p := NewPlayer("p1", "alice", grid.Tile{X: 1, Y: 1})
	if p.Moving() {
		t.Fatalf("freshly spawned player should be idle")
	}
	p.Target = grid.Tile{X: 2, Y: 1}
	if !p.Moving() {
		t.Fatalf("player with a target tile should report moving")
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet()
	s.Add(NewPlayer("p1", "alice", grid.Tile{}))
	s.Add(NewPlayer("p2", "bob", grid.Tile{X: 1}))

	if s.Len() != 2 {
		t.Fatalf("expected 2 entities, got %d", s.Len())
	}
	if e, ok := s.Get("p1"); !ok || e.Name != "alice" {
		t.Fatalf("lookup p1 failed: %+v %v", e, ok)
	}
	if !s.Remove("p1") {
		t.Fatalf("expected removal of p1 to succeed")
	}
	if s.Remove("p1") {
		t.Fatalf("expected second removal of p1 to fail")
	}
	if _, ok := s.Get("p1"); ok {
		t.Fatalf("p1 still present after removal")
	}
}
