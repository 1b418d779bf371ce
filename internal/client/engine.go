// Package client implements the reconciliation engine: the local player
// moves optimistically the instant an intent fires, remote entities are
// dead-reckoned from replicated snapshots, and everything is keyed strictly
// by session id.
package client

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tilerise/internal/entity"
	"tilerise/internal/grid"
	"tilerise/internal/path"
	"tilerise/internal/proto"
)

const (
	// moveSpeed is the world-unit distance covered per tick, giving a fixed
	// per-tile duration of TileWidth/moveSpeed ticks.
	moveSpeed = 4.0
	// chatBubbleTicks keeps a bubble visible for 5s at the 20 Hz tick.
	chatBubbleTicks = 100
	chatLogCap      = 50
)

// Outbound carries encoded intents to the server.
type Outbound interface {
	Send(msg any) error
}

// EntityView is the read-only projection handed to a renderer.
type EntityView struct {
	ID     string
	Kind   entity.Kind
	Name   string
	Tile   grid.Tile
	Target grid.Tile
	Facing entity.Facing
	WorldX float64
	WorldY float64
	Chat   string
	Self   bool
}

// ChatLine is one entry of the rolling chat log.
type ChatLine struct {
	Name string
	Text string
}

type bubble struct {
	text    string
	expires uint64
}

// Engine owns the client-side mirror of one room.
type Engine struct {
	mu     sync.Mutex
	out    Outbound
	logger *zap.SugaredLogger

	name      string
	preferred grid.Tile
	sessionID string
	joined    bool

	grid    *grid.Grid
	self    *entity.Entity
	remotes *entity.Set
	items   *entity.Set

	progress map[string]float64
	pending  []grid.Tile
	bubbles  map[string]*bubble
	chatLog  []ChatLine
	focusID  string
	tick     uint64
}

// New builds an engine that will join as name near preferred once the
// welcome snapshot arrives.
func New(name string, preferred grid.Tile, out Outbound, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		out:       out,
		logger:    logger,
		name:      name,
		preferred: preferred,
		remotes:   entity.NewSet(),
		items:     entity.NewSet(),
		progress:  make(map[string]float64),
		bubbles:   make(map[string]*bubble),
	}
}

// SessionID reports the id assigned by the server, empty before welcome.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// GridSize reports the replicated grid dimensions, zero before welcome.
func (e *Engine) GridSize() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grid == nil {
		return 0, 0
	}
	return e.grid.Width(), e.grid.Height()
}

// HandleMessage applies one server message to the mirror. Unknown or
// malformed data is logged and skipped; the engine never aborts on it.
func (e *Engine) HandleMessage(data []byte) error {
	msg, err := proto.DecodeServer(data)
	if err != nil {
		e.logger.Debugw("discarding server message", "err", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := msg.(*proto.Welcome); ok {
		e.applyWelcome(w)
		return nil
	}
	if e.grid == nil {
		e.logger.Debugw("discarding pre-welcome message", "type", fmt.Sprintf("%T", msg))
		return nil
	}

	switch m := msg.(type) {
	case *proto.PlayerJoined:
		if m.SessionID == e.sessionID {
			return nil
		}
		e.addRemote(m.Player)
	case *proto.PlayerMoved:
		e.applyRemoteMove(m)
	case *proto.PlayerFaced:
		if remote, ok := e.remotes.Get(m.SessionID); ok && entity.ValidFacing(m.Facing) {
			remote.Facing = entity.Facing(m.Facing)
		}
	case *proto.PlayerLeft:
		e.dropRemote(m.SessionID)
	case *proto.PlayerReconnected:
		// The fresh player_joined follows; drop the stale mirror now.
		e.dropRemote(m.SessionID)
	case *proto.ChatRelay:
		e.bubbles[m.SessionID] = &bubble{text: m.Text, expires: e.tick + chatBubbleTicks}
		e.appendChat(ChatLine{Name: m.Name, Text: m.Text})
	case *proto.ItemDropped:
		e.items.Add(entity.NewItem(m.ItemID, m.Tile, m.Item))
	case *proto.ItemRemoved:
		if e.focusID == m.ItemID {
			e.focusID = ""
		}
		e.items.Remove(m.ItemID)
	default:
		e.logger.Debugw("unhandled server message", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

func (e *Engine) applyWelcome(w *proto.Welcome) {
	e.sessionID = w.SessionID
	e.grid = grid.New(w.GridWidth, w.GridHeight)
	for _, snap := range w.Players {
		e.addRemote(snap)
	}
	for _, snap := range w.NPCs {
		e.addRemote(snap)
	}
	for _, snap := range w.Items {
		e.items.Add(entity.NewItem(snap.ID, snap.Tile, snap.Item))
	}

	spawn := e.preferred
	if !e.grid.IsValidTile(spawn) {
		spawn = grid.Tile{X: e.grid.Width() / 2, Y: e.grid.Height() / 2}
	}
	if tile, ok := path.ClosestWalkable(e.grid, spawn); ok {
		spawn = tile
	}
	e.self = entity.NewPlayer(e.sessionID, e.name, spawn)
	e.self.Owned = true
	if err := e.grid.Occupy(spawn, e.sessionID); err != nil {
		e.logger.Warnw("local spawn occupy failed", "err", err)
	}
	e.joined = true
	e.send(proto.PlayerAdd{Ver: proto.Version, Type: proto.TypePlayerAdd, Name: e.name, Spawn: spawn})
}

func (e *Engine) addRemote(snap proto.EntityState) {
	if old, ok := e.remotes.Get(snap.ID); ok {
		e.grid.Vacate(old.Target)
	}
	var remote *entity.Entity
	if snap.Kind == string(entity.KindNPC) {
		remote = entity.NewNPC(snap.ID, snap.Name, snap.Tile)
	} else {
		remote = entity.NewPlayer(snap.ID, snap.Name, snap.Tile)
	}
	remote.Target = snap.Target
	remote.Facing = snap.Facing
	e.remotes.Add(remote)
	if err := e.grid.Occupy(remote.Target, remote.ID); err != nil {
		e.logger.Debugw("remote occupy conflict", "id", remote.ID, "err", err)
	}
	if remote.Moving() {
		e.progress[remote.ID] = 0
	}
}

// applyRemoteMove dead-reckons the addressed entity. A move arriving while a
// previous interpolation is still running simply supersedes it.
func (e *Engine) applyRemoteMove(m *proto.PlayerMoved) {
	remote, ok := e.remotes.Get(m.SessionID)
	if !ok {
		return
	}
	e.grid.Vacate(remote.Target)
	remote.Tile = m.From
	remote.Target = m.To
	remote.Facing = entity.DeriveFacing(m.To.X-m.From.X, m.To.Y-m.From.Y, remote.Facing)
	if err := e.grid.Occupy(m.To, remote.ID); err != nil {
		e.logger.Debugw("remote occupy conflict", "id", remote.ID, "err", err)
	}
	e.progress[remote.ID] = 0
}

func (e *Engine) dropRemote(sessionID string) {
	if remote, ok := e.remotes.Get(sessionID); ok {
		e.grid.Vacate(remote.Target)
		e.remotes.Remove(sessionID)
	}
	delete(e.progress, sessionID)
	delete(e.bubbles, sessionID)
	if e.focusID == sessionID {
		e.focusID = ""
	}
}

// MoveIntent starts one optimistic step in the given direction. A blocked or
// invalid target only turns the player to face it. Intents while a step is
// already in flight are ignored.
func (e *Engine) MoveIntent(dx, dy int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined || e.self.Moving() {
		return
	}
	// A direct intent cancels any queued path.
	e.pending = nil

	facing := entity.DeriveFacing(dx, dy, e.self.Facing)
	target := grid.Tile{X: e.self.Tile.X + dx, Y: e.self.Tile.Y + dy}
	if !e.grid.IsWalkable(target) {
		if e.self.Facing != facing {
			e.self.Facing = facing
			e.send(proto.PlayerFace{Ver: proto.Version, Type: proto.TypePlayerFace, Facing: string(facing)})
		}
		return
	}
	e.startStep(target)
}

// startStep begins the local interpolation and sends the matching intent.
// The engine never rolls this back: the server's rebroadcast is for other
// clients, not a correction channel for the sender.
func (e *Engine) startStep(target grid.Tile) {
	from := e.self.Tile
	if err := e.grid.Occupy(target, e.sessionID); err != nil {
		e.pending = nil
		return
	}
	e.grid.Vacate(from)
	e.self.Target = target
	e.self.Facing = entity.DeriveFacing(target.X-from.X, target.Y-from.Y, e.self.Facing)
	e.progress[e.sessionID] = 0
	e.send(proto.PlayerMove{Ver: proto.Version, Type: proto.TypePlayerMove, From: from, To: target})
}

// TileClicked resolves a click into a path request. Clicks on a blocked tile
// route to the nearest adjacent tile so items and NPCs can be approached.
func (e *Engine) TileClicked(tx, ty int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined {
		return
	}
	goal := grid.Tile{X: tx, Y: ty}
	if !e.grid.IsValidTile(goal) {
		return
	}
	start := e.self.Target
	tiles := path.FindPath(e.grid, start, goal)
	if tiles == nil {
		tiles = path.FindPathAdjacent(e.grid, start, goal)
	}
	if tiles == nil {
		return
	}
	// The leading element is the tile we already stand on.
	e.pending = tiles[1:]
	if !e.self.Moving() {
		e.advancePath()
	}
}

// advancePath issues the next queued step; if the next tile stopped being
// walkable in the local view, the rest of the path is abandoned.
func (e *Engine) advancePath() {
	if len(e.pending) == 0 {
		return
	}
	next := e.pending[0]
	e.pending = e.pending[1:]
	if !e.grid.IsWalkable(next) {
		e.pending = nil
		return
	}
	e.startStep(next)
}

// SpeakIntent sends chat and shows the local bubble immediately.
func (e *Engine) SpeakIntent(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined || text == "" {
		return
	}
	e.bubbles[e.sessionID] = &bubble{text: text, expires: e.tick + chatBubbleTicks}
	e.appendChat(ChatLine{Name: e.name, Text: text})
	e.send(proto.Chat{Ver: proto.Version, Type: proto.TypeChat, Text: text})
}

// PickupIntent requests an item pickup if the item lies within reach (the
// player's own tile or any of the 8 surrounding ones). Removal happens when
// the server's item_removed arrives.
func (e *Engine) PickupIntent(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined {
		return
	}
	item, ok := e.items.Get(itemID)
	if !ok {
		return
	}
	if !withinReach(e.self.Tile, item.Tile) {
		return
	}
	e.send(proto.ItemPickup{Ver: proto.Version, Type: proto.TypeItemPickup, ItemID: itemID})
}

// DropIntent requests an item drop; the mirror is updated when the server's
// item_dropped comes back to everyone, origin included.
func (e *Engine) DropIntent(itemID string, tile grid.Tile, info entity.ItemInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined || !e.grid.IsValidTile(tile) {
		return
	}
	e.send(proto.ItemDrop{Ver: proto.Version, Type: proto.TypeItemDrop, ItemID: itemID, Tile: tile, Item: info})
}

// Focus marks the entity under the cursor; an empty id or an id that no
// longer resolves clears the focus.
func (e *Engine) Focus(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focusID = id
}

// CurrentFocus returns the focused entity id and its action label: items
// offer a pick-up, NPCs a menu, players just their name.
func (e *Engine) CurrentFocus() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.focusID == "" {
		return "", ""
	}
	if item, ok := e.items.Get(e.focusID); ok {
		return item.ID, "Pick-up " + item.Name
	}
	if remote, ok := e.remotes.Get(e.focusID); ok {
		if remote.Kind == entity.KindNPC {
			return remote.ID, "Menu " + remote.Name
		}
		return remote.ID, remote.Name
	}
	e.focusID = ""
	return "", ""
}

// Advance runs one fixed-timestep tick: interpolations progress by a
// constant amount regardless of render rate.
func (e *Engine) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick++

	for id, b := range e.bubbles {
		if b.expires <= e.tick {
			delete(e.bubbles, id)
		}
	}
	if e.grid == nil {
		return
	}

	tileW := e.grid.TileWidth()
	step := func(ent *entity.Entity) bool {
		if !ent.Moving() {
			return false
		}
		p := e.progress[ent.ID] + moveSpeed
		if p >= tileW {
			ent.Tile = ent.Target
			delete(e.progress, ent.ID)
			return true
		}
		e.progress[ent.ID] = p
		return false
	}

	if e.joined && step(e.self) {
		e.advancePath()
	}
	e.remotes.Each(func(ent *entity.Entity) { step(ent) })
}

// Leave cancels all pending movement and path state. No in-flight intents
// are retried afterwards.
func (e *Engine) Leave() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
	e.joined = false
	e.progress = make(map[string]float64)
}

// Snapshot projects the mirror for a renderer: one view per live entity with
// interpolated world coordinates.
func (e *Engine) Snapshot() []EntityView {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grid == nil {
		return nil
	}
	views := make([]EntityView, 0, e.remotes.Len()+e.items.Len()+1)
	if e.joined {
		views = append(views, e.viewOf(e.self, true))
	}
	e.remotes.Each(func(ent *entity.Entity) {
		views = append(views, e.viewOf(ent, false))
	})
	e.items.Each(func(ent *entity.Entity) {
		views = append(views, e.viewOf(ent, false))
	})
	return views
}

// ChatLog returns the rolling chat history, oldest first.
func (e *Engine) ChatLog() []ChatLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ChatLine, len(e.chatLog))
	copy(out, e.chatLog)
	return out
}

func (e *Engine) viewOf(ent *entity.Entity, self bool) EntityView {
	view := EntityView{
		ID:     ent.ID,
		Kind:   ent.Kind,
		Name:   ent.Name,
		Tile:   ent.Tile,
		Target: ent.Target,
		Facing: ent.Facing,
		Self:   self,
	}
	sx, sy := e.grid.TileToWorld(ent.Tile)
	if ent.Moving() {
		gx, gy := e.grid.TileToWorld(ent.Target)
		f := e.progress[ent.ID] / e.grid.TileWidth()
		view.WorldX = sx + (gx-sx)*f
		view.WorldY = sy + (gy-sy)*f
	} else {
		view.WorldX = sx
		view.WorldY = sy
	}
	if b, ok := e.bubbles[ent.ID]; ok {
		view.Chat = b.text
	}
	return view
}

func (e *Engine) appendChat(line ChatLine) {
	e.chatLog = append(e.chatLog, line)
	if len(e.chatLog) > chatLogCap {
		e.chatLog = e.chatLog[len(e.chatLog)-chatLogCap:]
	}
}

func (e *Engine) send(msg any) {
	if err := e.out.Send(msg); err != nil {
		e.logger.Warnw("send intent failed", "err", err)
	}
}

func withinReach(a, b grid.Tile) bool {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx <= 1 && dy <= 1
}
