package room

import (
	"errors"
	"sync"
	"testing"

	"tilerise/internal/config"
	"tilerise/internal/entity"
	"tilerise/internal/grid"
	"tilerise/internal/proto"
)

// recorder is a Sender that decodes everything it receives.
type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (rec *recorder) Send(data []byte) {
	msg, err := proto.DecodeServer(data)
	if err != nil {
		panic(err)
	}
	rec.mu.Lock()
	rec.msgs = append(rec.msgs, msg)
	rec.mu.Unlock()
}

func (rec *recorder) ofType(match func(any) bool) []any {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []any
	for _, m := range rec.msgs {
		if match(m) {
			out = append(out, m)
		}
	}
	return out
}

func (rec *recorder) moved() []*proto.PlayerMoved {
	var out []*proto.PlayerMoved
	for _, m := range rec.ofType(func(m any) bool { _, ok := m.(*proto.PlayerMoved); return ok }) {
		out = append(out, m.(*proto.PlayerMoved))
	}
	return out
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.GridWidth = 8
	cfg.GridHeight = 8
	cfg.SpawnTX = 2
	cfg.SpawnTY = 2
	cfg.NPCs = nil
	return cfg
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	r := New("test", testConfig(), nil)
	t.Cleanup(r.Close)
	return r
}

func join(t *testing.T, r *Room, sessionID, name string) *recorder {
	t.Helper()
	rec := &recorder{}
	if err := r.Attach(sessionID, rec); err != nil {
		t.Fatalf("attach %s: %v", sessionID, err)
	}
	if err := r.AddPlayer(sessionID, name, grid.Tile{X: -1, Y: -1}); err != nil {
		t.Fatalf("add player %s: %v", sessionID, err)
	}
	return rec
}

func TestJoinBroadcastsToOthersOnly(t *testing.T) {
	r := newTestRoom(t)
	recA := join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	joinedAtA := recA.ofType(func(m any) bool { _, ok := m.(*proto.PlayerJoined); return ok })
	if len(joinedAtA) != 1 {
		t.Fatalf("expected A to see exactly one player_joined, got %d", len(joinedAtA))
	}
	if joinedAtA[0].(*proto.PlayerJoined).SessionID != "b" {
		t.Fatalf("A saw join for %q, want b", joinedAtA[0].(*proto.PlayerJoined).SessionID)
	}
	if got := recB.ofType(func(m any) bool { _, ok := m.(*proto.PlayerJoined); return ok }); len(got) != 0 {
		t.Fatalf("B must not receive its own player_joined, got %d", len(got))
	}

	// B's welcome lists A.
	welcomes := recB.ofType(func(m any) bool { _, ok := m.(*proto.Welcome); return ok })
	if len(welcomes) != 1 {
		t.Fatalf("expected one welcome for B, got %d", len(welcomes))
	}
	w := welcomes[0].(*proto.Welcome)
	if len(w.Players) != 1 || w.Players[0].ID != "a" {
		t.Fatalf("welcome players = %+v, want just a", w.Players)
	}
}

func TestDuplicateConnectionRejected(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")
	if err := r.AddPlayer("a", "alice-again", grid.Tile{X: 3, Y: 3}); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
}

func TestMoveRebroadcastExceptOrigin(t *testing.T) {
	r := newTestRoom(t)
	recA := join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	from := grid.Tile{X: 2, Y: 2}
	to := grid.Tile{X: 2, Y: 3}
	if err := r.MovePlayer("a", from, to); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	movedAtB := recB.moved()
	if len(movedAtB) != 1 {
		t.Fatalf("expected B to see one player_moved, got %d", len(movedAtB))
	}
	if movedAtB[0].SessionID != "a" || movedAtB[0].From != from || movedAtB[0].To != to {
		t.Fatalf("unexpected player_moved at B: %+v", movedAtB[0])
	}
	if len(recA.moved()) != 0 {
		t.Fatalf("origin must not receive its own player_moved")
	}
}

func TestStaleMoveDropped(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	// Authority has a at (2,2); a claims to be at (5,5).
	err := r.MovePlayer("a", grid.Tile{X: 5, Y: 5}, grid.Tile{X: 5, Y: 6})
	if !errors.Is(err, ErrStaleIntent) {
		t.Fatalf("expected ErrStaleIntent, got %v", err)
	}
	if len(recB.moved()) != 0 {
		t.Fatalf("stale intent must not be rebroadcast")
	}
}

func TestMoveIntoOccupiedTileDropped(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice") // lands on (2,2)
	join(t, r, "b", "bob")   // clamped next to a

	// Read b's authoritative tile, then try to move it onto a's tile.
	var bTile grid.Tile
	if err := r.call(func() error {
		p, _ := r.players.Get("b")
		bTile = p.Target
		return nil
	}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	err := r.MovePlayer("b", bTile, grid.Tile{X: 2, Y: 2})
	if !errors.Is(err, grid.ErrTileOccupied) {
		t.Fatalf("expected ErrTileOccupied, got %v", err)
	}
}

func TestMoveCommitsArrival(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")

	first := grid.Tile{X: 2, Y: 3}
	second := grid.Tile{X: 2, Y: 4}
	if err := r.MovePlayer("a", grid.Tile{X: 2, Y: 2}, first); err != nil {
		t.Fatalf("first step: %v", err)
	}
	// Next step reports arrival at first; the old tile must be free again.
	if err := r.MovePlayer("a", first, second); err != nil {
		t.Fatalf("second step: %v", err)
	}
	if err := r.call(func() error {
		if !r.grid.IsWalkable(grid.Tile{X: 2, Y: 2}) {
			t.Errorf("origin tile still occupied after two steps")
		}
		if id, _ := r.grid.OccupantAt(second); id != "a" {
			t.Errorf("target tile occupant = %q, want a", id)
		}
		return nil
	}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestChatRelayedVerbatimToOthers(t *testing.T) {
	r := newTestRoom(t)
	recA := join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	if err := r.RelayChat("a", "hello there"); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	chats := recB.ofType(func(m any) bool { _, ok := m.(*proto.ChatRelay); return ok })
	if len(chats) != 1 {
		t.Fatalf("expected one chat at B, got %d", len(chats))
	}
	chat := chats[0].(*proto.ChatRelay)
	if chat.Text != "hello there" || chat.Name != "alice" || chat.SessionID != "a" {
		t.Fatalf("unexpected chat relay: %+v", chat)
	}
	if got := recA.ofType(func(m any) bool { _, ok := m.(*proto.ChatRelay); return ok }); len(got) != 0 {
		t.Fatalf("sender must not receive its own chat")
	}
}

func TestItemDropPickupScenario(t *testing.T) {
	r := newTestRoom(t)
	recA := join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")
	recC := join(t, r, "c", "carol")

	tile := grid.Tile{X: 2, Y: 3}
	info := entity.ItemInfo{Name: "ruby", Class: "consumable", Value: 40}
	if err := r.DropItem("a", "X", tile, info); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	for name, rec := range map[string]*recorder{"a": recA, "b": recB, "c": recC} {
		drops := rec.ofType(func(m any) bool { _, ok := m.(*proto.ItemDropped); return ok })
		if len(drops) != 1 {
			t.Fatalf("connection %s: expected exactly one item_dropped, got %d", name, len(drops))
		}
		d := drops[0].(*proto.ItemDropped)
		if d.ItemID != "X" || d.Tile != tile {
			t.Fatalf("connection %s: unexpected item_dropped %+v", name, d)
		}
	}

	// Any connection may pick it up; everyone sees the removal.
	if err := r.PickupItem("c", "X"); err != nil {
		t.Fatalf("pickup failed: %v", err)
	}
	for name, rec := range map[string]*recorder{"a": recA, "b": recB, "c": recC} {
		removed := rec.ofType(func(m any) bool { _, ok := m.(*proto.ItemRemoved); return ok })
		if len(removed) != 1 {
			t.Fatalf("connection %s: expected one item_removed, got %d", name, len(removed))
		}
	}
	if err := r.PickupItem("a", "X"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for second pickup, got %v", err)
	}
}

func TestItemDropLastWriterWins(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")

	if err := r.DropItem("a", "X", grid.Tile{X: 1, Y: 1}, entity.ItemInfo{Name: "old"}); err != nil {
		t.Fatalf("first drop: %v", err)
	}
	if err := r.DropItem("a", "X", grid.Tile{X: 4, Y: 4}, entity.ItemInfo{Name: "new"}); err != nil {
		t.Fatalf("second drop: %v", err)
	}
	if err := r.call(func() error {
		item, ok := r.items.Get("X")
		if !ok {
			t.Errorf("item X missing")
			return nil
		}
		if item.Tile != (grid.Tile{X: 4, Y: 4}) || item.Item.Name != "new" {
			t.Errorf("expected last drop to win, got %+v", item)
		}
		return nil
	}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestDisconnectMidMove(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	if err := r.MovePlayer("a", grid.Tile{X: 2, Y: 2}, grid.Tile{X: 2, Y: 3}); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	r.Detach("a", nil)

	left := recB.ofType(func(m any) bool { _, ok := m.(*proto.PlayerLeft); return ok })
	if len(left) != 1 || left[0].(*proto.PlayerLeft).SessionID != "a" {
		t.Fatalf("expected player_left for a at B, got %+v", left)
	}

	movedBefore := len(recB.moved())
	if err := r.MovePlayer("a", grid.Tile{X: 2, Y: 3}, grid.Tile{X: 2, Y: 4}); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer after disconnect, got %v", err)
	}
	if len(recB.moved()) != movedBefore {
		t.Fatalf("no player_moved may follow player_left for the same id")
	}

	// The mid-move reservation must be released.
	if err := r.call(func() error {
		if !r.grid.IsWalkable(grid.Tile{X: 2, Y: 3}) {
			t.Errorf("disconnected player's tile still blocked")
		}
		return nil
	}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestReconnectBroadcast(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	// Same session attaches again (new connection, same id).
	if err := r.Attach("a", &recorder{}); err != nil {
		t.Fatalf("re-attach failed: %v", err)
	}
	recon := recB.ofType(func(m any) bool { _, ok := m.(*proto.PlayerReconnected); return ok })
	if len(recon) != 1 || recon[0].(*proto.PlayerReconnected).SessionID != "a" {
		t.Fatalf("expected player_reconnected for a at B, got %+v", recon)
	}
	// The stale entity is gone; a fresh player_add succeeds.
	if err := r.AddPlayer("a", "alice", grid.Tile{X: 2, Y: 2}); err != nil {
		t.Fatalf("re-add after reconnect failed: %v", err)
	}
}

func TestSpawnClampedOffOccupiedTile(t *testing.T) {
	cfg := testConfig()
	cfg.NPCs = []config.NPCSpawn{{Name: "Blocker", TX: 2, TY: 2}}
	r := New("test", cfg, nil)
	defer r.Close()

	rec := &recorder{}
	if err := r.Attach("a", rec); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := r.AddPlayer("a", "alice", grid.Tile{X: 2, Y: 2}); err != nil {
		t.Fatalf("add player: %v", err)
	}
	if err := r.call(func() error {
		p, ok := r.players.Get("a")
		if !ok {
			t.Errorf("player missing")
			return nil
		}
		if p.Tile == (grid.Tile{X: 2, Y: 2}) {
			t.Errorf("player spawned on the NPC tile")
		}
		if grid.Manhattan(p.Tile, grid.Tile{X: 2, Y: 2}) != 1 {
			t.Errorf("expected clamp to an adjacent tile, got %+v", p.Tile)
		}
		return nil
	}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestChatTruncation(t *testing.T) {
	r := newTestRoom(t)
	join(t, r, "a", "alice")
	recB := join(t, r, "b", "bob")

	limit := 5
	if _, err := r.UpdateTunables(nil, &limit); err != nil {
		t.Fatalf("update tunables: %v", err)
	}
	if err := r.RelayChat("a", "1234567890"); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	chats := recB.ofType(func(m any) bool { _, ok := m.(*proto.ChatRelay); return ok })
	if len(chats) != 1 || chats[0].(*proto.ChatRelay).Text != "12345" {
		t.Fatalf("expected truncated chat, got %+v", chats)
	}
}

func TestRoomClosedCalls(t *testing.T) {
	r := New("test", testConfig(), nil)
	r.Close()
	if err := r.AddPlayer("a", "alice", grid.Tile{X: 2, Y: 2}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
}
