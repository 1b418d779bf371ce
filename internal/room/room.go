// Package room implements the session authority: the single writer of
// entity state for one shared world. All intents are applied on a single
// goroutine, which is what makes the entity/occupancy pair atomic without
// locks; broadcasts are fire-and-forget relative to the mutation.
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tilerise/internal/config"
	"tilerise/internal/entity"
	"tilerise/internal/grid"
	"tilerise/internal/path"
	"tilerise/internal/proto"
)

var (
	ErrDuplicateConnection = errors.New("room: connection already joined")
	ErrUnknownPlayer       = errors.New("room: unknown player")
	ErrStaleIntent         = errors.New("room: reported position disagrees with authority")
	ErrItemNotFound        = errors.New("room: item not found")
	ErrRoomFull            = errors.New("room: player cap reached")
	ErrRoomClosed          = errors.New("room: closed")
)

// Sender delivers an already-encoded message to one connection. Send must
// never block; the websocket session enqueues onto a buffered channel and
// drops when the receiver cannot keep up.
type Sender interface {
	Send(data []byte)
}

// Tunables are the hot-updatable room settings exposed on /admin/config.
type Tunables struct {
	MaxPlayers int `json:"maxPlayers"`
	ChatMaxLen int `json:"chatMaxLen"`
}

// Room owns the canonical grid, entity state, and connected senders.
type Room struct {
	ID string

	logger  *zap.SugaredLogger
	metrics *Metrics

	grid    *grid.Grid
	players *entity.Set
	npcs    *entity.Set
	items   *entity.Set
	senders map[string]Sender
	spawn   grid.Tile
	tun     Tunables

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a room from cfg, placing its NPCs, and starts the command loop.
func New(id string, cfg config.Config, logger *zap.SugaredLogger) *Room {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Room{
		ID:      id,
		logger:  logger.With("room", id),
		metrics: &Metrics{},
		grid:    grid.NewWithTileSize(cfg.GridWidth, cfg.GridHeight, cfg.TileWidth, cfg.TileHeight),
		players: entity.NewSet(),
		npcs:    entity.NewSet(),
		items:   entity.NewSet(),
		senders: make(map[string]Sender),
		spawn:   cfg.SpawnTile(),
		tun:     Tunables{MaxPlayers: cfg.MaxPlayers, ChatMaxLen: cfg.ChatMaxLen},
		ops:     make(chan func(), cfg.CommandBuffer),
		done:    make(chan struct{}),
	}
	for i, sp := range cfg.NPCs {
		npc := entity.NewNPC(fmt.Sprintf("npc-%d", i+1), sp.Name, grid.Tile{X: sp.TX, Y: sp.TY})
		if err := r.grid.Occupy(npc.Tile, npc.ID); err != nil {
			r.logger.Warnw("npc spawn tile unavailable", "npc", sp.Name, "err", err)
			continue
		}
		r.npcs.Add(npc)
	}
	go r.run()
	return r
}

// Metrics exposes the room counters.
func (r *Room) Metrics() *Metrics { return r.metrics }

// Grid reports the room's grid dimensions for handlers that need them.
func (r *Room) Grid() (width, height int) {
	return r.grid.Width(), r.grid.Height()
}

// Close stops the command loop. Pending calls return ErrRoomClosed.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			return
		case op := <-r.ops:
			op()
		}
	}
}

// call runs fn on the room goroutine and waits for its result. Every public
// operation funnels through here, so intents from one connection are applied
// strictly in send order and never interleave mid-mutation.
func (r *Room) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.ops <- func() { reply <- fn() }:
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

// Attach registers the sender for a session and delivers the welcome
// snapshot. A session id that still has a live player entity is treated as a
// reconnect: the stale entity is discarded and player_reconnected is
// broadcast so other clients drop their mirror before the fresh player_add.
func (r *Room) Attach(sessionID string, s Sender) error {
	return r.call(func() error {
		if p, ok := r.players.Get(sessionID); ok {
			r.grid.Vacate(p.Target)
			r.players.Remove(sessionID)
			r.broadcast(proto.PlayerReconnected{
				Ver:       proto.Version,
				Type:      proto.TypePlayerReconnected,
				SessionID: sessionID,
			}, sessionID)
		}
		r.senders[sessionID] = s
		welcome := r.welcomeLocked(sessionID)
		data, err := json.Marshal(welcome)
		if err != nil {
			return fmt.Errorf("marshal welcome: %w", err)
		}
		s.Send(data)
		return nil
	})
}

// Detach drops the sender and, if a player entity is live, removes it as a
// disconnect. When s is non-nil the cleanup only applies if s is still the
// registered sender, so a dead connection lingering after a reconnect cannot
// tear down its replacement.
func (r *Room) Detach(sessionID string, s Sender) {
	_ = r.call(func() error {
		cur, ok := r.senders[sessionID]
		if !ok || (s != nil && cur != s) {
			return nil
		}
		delete(r.senders, sessionID)
		r.removePlayerLocked(sessionID)
		return nil
	})
}

// AddPlayer creates the player entity for a session. The requested spawn is
// clamped to the nearest free tile so stacked joins cannot violate the
// one-blocker-per-tile invariant.
func (r *Room) AddPlayer(sessionID, name string, spawn grid.Tile) error {
	return r.call(func() error {
		if _, ok := r.players.Get(sessionID); ok {
			return r.drop(ErrDuplicateConnection, "player_add", sessionID)
		}
		if r.tun.MaxPlayers > 0 && r.players.Len() >= r.tun.MaxPlayers {
			return r.drop(ErrRoomFull, "player_add", sessionID)
		}
		if !r.grid.IsValidTile(spawn) {
			spawn = r.spawn
		}
		tile, ok := path.ClosestWalkable(r.grid, spawn)
		if !ok {
			return r.drop(grid.ErrTileOccupied, "player_add", sessionID)
		}
		p := entity.NewPlayer(sessionID, name, tile)
		if err := r.grid.Occupy(tile, sessionID); err != nil {
			return r.drop(err, "player_add", sessionID)
		}
		r.players.Add(p)
		r.metrics.IntentsAccepted.Add(1)
		r.metrics.PlayersJoined.Add(1)
		r.logger.Infow("player joined", "session", sessionID, "name", name, "tile", tile)
		r.broadcast(proto.PlayerJoined{
			Ver:       proto.Version,
			Type:      proto.TypePlayerJoined,
			SessionID: sessionID,
			Player:    proto.SnapshotEntity(p),
		}, sessionID)
		return nil
	})
}

// MovePlayer validates a per-tile move intent. from doubles as the client's
// arrival report for its previous step: the authority's record of the player
// is its target tile, and an intent whose from disagrees is stale and
// silently dropped.
func (r *Room) MovePlayer(sessionID string, from, to grid.Tile) error {
	return r.call(func() error {
		p, ok := r.players.Get(sessionID)
		if !ok {
			return r.drop(ErrUnknownPlayer, "player_move", sessionID)
		}
		if from != p.Target {
			return r.drop(ErrStaleIntent, "player_move", sessionID)
		}
		if !r.grid.IsValidTile(to) {
			return r.drop(grid.ErrInvalidTile, "player_move", sessionID)
		}
		if from == to {
			// Arrival report only; commit and stay idle.
			p.Tile = from
			r.metrics.IntentsAccepted.Add(1)
			return nil
		}
		if err := r.grid.Occupy(to, sessionID); err != nil {
			// Target filled up since the client planned the step.
			return r.drop(err, "player_move", sessionID)
		}
		r.grid.Vacate(from)
		p.Tile = from
		p.Target = to
		p.Facing = entity.DeriveFacing(to.X-from.X, to.Y-from.Y, p.Facing)
		r.metrics.IntentsAccepted.Add(1)
		r.broadcast(proto.PlayerMoved{
			Ver:       proto.Version,
			Type:      proto.TypePlayerMoved,
			SessionID: sessionID,
			From:      from,
			To:        to,
		}, sessionID)
		return nil
	})
}

// FacePlayer updates facing and tells everyone else.
func (r *Room) FacePlayer(sessionID string, facing string) error {
	return r.call(func() error {
		p, ok := r.players.Get(sessionID)
		if !ok {
			return r.drop(ErrUnknownPlayer, "player_face", sessionID)
		}
		if !entity.ValidFacing(facing) {
			return r.drop(fmt.Errorf("room: bad facing %q", facing), "player_face", sessionID)
		}
		p.Facing = entity.Facing(facing)
		r.metrics.IntentsAccepted.Add(1)
		r.broadcast(proto.PlayerFaced{
			Ver:       proto.Version,
			Type:      proto.TypePlayerFaced,
			SessionID: sessionID,
			Facing:    facing,
		}, sessionID)
		return nil
	})
}

// RelayChat forwards text verbatim to every other connection.
func (r *Room) RelayChat(sessionID, text string) error {
	return r.call(func() error {
		p, ok := r.players.Get(sessionID)
		if !ok {
			return r.drop(ErrUnknownPlayer, "chat", sessionID)
		}
		if r.tun.ChatMaxLen > 0 && len(text) > r.tun.ChatMaxLen {
			text = text[:r.tun.ChatMaxLen]
		}
		r.metrics.IntentsAccepted.Add(1)
		r.broadcast(proto.ChatRelay{
			Ver:       proto.Version,
			Type:      proto.TypeChatRelay,
			SessionID: sessionID,
			Name:      p.Name,
			Text:      text,
		}, sessionID)
		return nil
	})
}

// DropItem places an item on the grid. Re-dropping an id overwrites the
// unclaimed item: last writer wins. item_dropped goes to every connection,
// origin included, so the dropper renders the authoritative tile.
func (r *Room) DropItem(sessionID, itemID string, tile grid.Tile, info entity.ItemInfo) error {
	return r.call(func() error {
		if _, ok := r.players.Get(sessionID); !ok {
			return r.drop(ErrUnknownPlayer, "item_drop", sessionID)
		}
		if itemID == "" || !r.grid.IsValidTile(tile) {
			return r.drop(grid.ErrInvalidTile, "item_drop", sessionID)
		}
		r.items.Add(entity.NewItem(itemID, tile, info))
		r.metrics.IntentsAccepted.Add(1)
		r.metrics.ItemsDropped.Add(1)
		r.broadcast(proto.ItemDropped{
			Ver:    proto.Version,
			Type:   proto.TypeItemDropped,
			ItemID: itemID,
			Tile:   tile,
			Item:   info,
		}, "")
		return nil
	})
}

// PickupItem removes an item and tells every connection.
func (r *Room) PickupItem(sessionID, itemID string) error {
	return r.call(func() error {
		if _, ok := r.players.Get(sessionID); !ok {
			return r.drop(ErrUnknownPlayer, "item_pickup", sessionID)
		}
		if !r.items.Remove(itemID) {
			return r.drop(ErrItemNotFound, "item_pickup", sessionID)
		}
		r.metrics.IntentsAccepted.Add(1)
		r.metrics.ItemsPickedUp.Add(1)
		r.broadcast(proto.ItemRemoved{
			Ver:    proto.Version,
			Type:   proto.TypeItemRemoved,
			ItemID: itemID,
		}, "")
		return nil
	})
}

// RemovePlayer vacates and deletes the player and broadcasts player_left.
func (r *Room) RemovePlayer(sessionID string) error {
	return r.call(func() error {
		if !r.removePlayerLocked(sessionID) {
			return ErrUnknownPlayer
		}
		return nil
	})
}

// UpdateTunables overlays non-nil fields and returns the result.
func (r *Room) UpdateTunables(maxPlayers, chatMaxLen *int) (Tunables, error) {
	var out Tunables
	err := r.call(func() error {
		if maxPlayers != nil {
			r.tun.MaxPlayers = *maxPlayers
		}
		if chatMaxLen != nil {
			r.tun.ChatMaxLen = *chatMaxLen
		}
		out = r.tun
		return nil
	})
	return out, err
}

// TunablesSnapshot returns the current settings.
func (r *Room) TunablesSnapshot() (Tunables, error) {
	var out Tunables
	err := r.call(func() error {
		out = r.tun
		return nil
	})
	return out, err
}

// removePlayerLocked runs on the room goroutine.
func (r *Room) removePlayerLocked(sessionID string) bool {
	p, ok := r.players.Get(sessionID)
	if !ok {
		return false
	}
	r.grid.Vacate(p.Target)
	r.players.Remove(sessionID)
	r.metrics.PlayersLeft.Add(1)
	r.logger.Infow("player left", "session", sessionID, "name", p.Name)
	r.broadcast(proto.PlayerLeft{
		Ver:       proto.Version,
		Type:      proto.TypePlayerLeft,
		SessionID: sessionID,
		Name:      p.Name,
	}, sessionID)
	return true
}

// drop records a rejected intent. Bad input never propagates past here: the
// intent vanishes and the caller keeps its connection.
func (r *Room) drop(err error, kind, sessionID string) error {
	r.metrics.IntentsDropped.Add(1)
	r.logger.Debugw("intent dropped", "kind", kind, "session", sessionID, "reason", err)
	return err
}

// broadcast encodes msg once and fans it out, skipping exceptID when set.
// Per-receiver ordering follows the room's processing order because this is
// only called from the room goroutine.
func (r *Room) broadcast(msg any, exceptID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Errorw("marshal broadcast", "err", err)
		return
	}
	for id, s := range r.senders {
		if id == exceptID {
			continue
		}
		s.Send(data)
	}
	r.metrics.Broadcasts.Add(1)
}

func (r *Room) welcomeLocked(sessionID string) proto.Welcome {
	w := proto.Welcome{
		Ver:        proto.Version,
		Type:       proto.TypeWelcome,
		SessionID:  sessionID,
		GridWidth:  r.grid.Width(),
		GridHeight: r.grid.Height(),
		Players:    make([]proto.EntityState, 0, r.players.Len()),
		NPCs:       make([]proto.EntityState, 0, r.npcs.Len()),
		Items:      make([]proto.ItemState, 0, r.items.Len()),
	}
	r.players.Each(func(e *entity.Entity) {
		w.Players = append(w.Players, proto.SnapshotEntity(e))
	})
	r.npcs.Each(func(e *entity.Entity) {
		w.NPCs = append(w.NPCs, proto.SnapshotEntity(e))
	})
	r.items.Each(func(e *entity.Entity) {
		w.Items = append(w.Items, proto.SnapshotItem(e))
	})
	return w
}
