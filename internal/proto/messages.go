// Package proto defines the replicated message vocabulary between the room
// authority and its clients. Every message is a flat JSON object with a
// "type" discriminator; delivery is ordered per connection by the transport.
package proto

import (
	"encoding/json"
	"fmt"

	"tilerise/internal/entity"
	"tilerise/internal/grid"
)

// Version is bumped whenever a wire payload changes shape.
const Version = 1

// Client -> server message types.
const (
	TypePlayerAdd  = "player_add"
	TypePlayerMove = "player_move"
	TypePlayerFace = "player_face"
	TypeChat       = "chat"
	TypeItemPickup = "item_pickup"
	TypeItemDrop   = "item_drop"
)

// Server -> client message types.
const (
	TypeWelcome           = "welcome"
	TypePlayerJoined      = "player_joined"
	TypePlayerLeft        = "player_left"
	TypePlayerReconnected = "player_reconnected"
	TypePlayerMoved       = "player_moved"
	TypePlayerFaced       = "player_faced"
	TypeChatRelay         = "chat"
	TypeItemDropped       = "item_dropped"
	TypeItemRemoved       = "item_removed"
)

// EntityState is the replicated snapshot of a player or NPC.
type EntityState struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Kind   string        `json:"kind"`
	Tile   grid.Tile     `json:"tile"`
	Target grid.Tile     `json:"target"`
	Facing entity.Facing `json:"facing"`
}

// ItemState is the replicated snapshot of a dropped item.
type ItemState struct {
	ID   string          `json:"id"`
	Tile grid.Tile       `json:"tile"`
	Item entity.ItemInfo `json:"item"`
}

type PlayerAdd struct {
	Ver   int       `json:"ver"`
	Type  string    `json:"type"`
	Name  string    `json:"name"`
	Spawn grid.Tile `json:"spawn"`
}

type PlayerMove struct {
	Ver  int       `json:"ver"`
	Type string    `json:"type"`
	From grid.Tile `json:"from"`
	To   grid.Tile `json:"to"`
}

type PlayerFace struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Facing string `json:"facing"`
}

type Chat struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type ItemPickup struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	ItemID string `json:"itemId"`
}

type ItemDrop struct {
	Ver    int             `json:"ver"`
	Type   string          `json:"type"`
	ItemID string          `json:"itemId"`
	Tile   grid.Tile       `json:"tile"`
	Item   entity.ItemInfo `json:"item"`
}

type Welcome struct {
	Ver        int           `json:"ver"`
	Type       string        `json:"type"`
	SessionID  string        `json:"sessionId"`
	GridWidth  int           `json:"gridWidth"`
	GridHeight int           `json:"gridHeight"`
	Players    []EntityState `json:"players"`
	NPCs       []EntityState `json:"npcs"`
	Items      []ItemState   `json:"items"`
}

type PlayerJoined struct {
	Ver       int         `json:"ver"`
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Player    EntityState `json:"player"`
}

type PlayerLeft struct {
	Ver       int    `json:"ver"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

type PlayerReconnected struct {
	Ver       int    `json:"ver"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type PlayerMoved struct {
	Ver       int       `json:"ver"`
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	From      grid.Tile `json:"from"`
	To        grid.Tile `json:"to"`
}

type PlayerFaced struct {
	Ver       int    `json:"ver"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Facing    string `json:"facing"`
}

type ChatRelay struct {
	Ver       int    `json:"ver"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Text      string `json:"text"`
}

type ItemDropped struct {
	Ver    int             `json:"ver"`
	Type   string          `json:"type"`
	ItemID string          `json:"itemId"`
	Tile   grid.Tile       `json:"tile"`
	Item   entity.ItemInfo `json:"item"`
}

type ItemRemoved struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	ItemID string `json:"itemId"`
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeClient parses a message arriving from a client connection.
func DecodeClient(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("proto: malformed envelope: %w", err)
	}
	var msg any
	switch env.Type {
	case TypePlayerAdd:
		msg = &PlayerAdd{}
	case TypePlayerMove:
		msg = &PlayerMove{}
	case TypePlayerFace:
		msg = &PlayerFace{}
	case TypeChat:
		msg = &Chat{}
	case TypeItemPickup:
		msg = &ItemPickup{}
	case TypeItemDrop:
		msg = &ItemDrop{}
	default:
		return nil, fmt.Errorf("proto: unknown client message type %q", env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("proto: malformed %s: %w", env.Type, err)
	}
	return msg, nil
}

// DecodeServer parses a message arriving from the server.
func DecodeServer(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("proto: malformed envelope: %w", err)
	}
	var msg any
	switch env.Type {
	case TypeWelcome:
		msg = &Welcome{}
	case TypePlayerJoined:
		msg = &PlayerJoined{}
	case TypePlayerLeft:
		msg = &PlayerLeft{}
	case TypePlayerReconnected:
		msg = &PlayerReconnected{}
	case TypePlayerMoved:
		msg = &PlayerMoved{}
	case TypePlayerFaced:
		msg = &PlayerFaced{}
	case TypeChatRelay:
		msg = &ChatRelay{}
	case TypeItemDropped:
		msg = &ItemDropped{}
	case TypeItemRemoved:
		msg = &ItemRemoved{}
	default:
		return nil, fmt.Errorf("proto: unknown server message type %q", env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("proto: malformed %s: %w", env.Type, err)
	}
	return msg, nil
}

// SnapshotEntity converts an entity into its replicated form.
func SnapshotEntity(e *entity.Entity) EntityState {
	return EntityState{
		ID:     e.ID,
		Name:   e.Name,
		Kind:   string(e.Kind),
		Tile:   e.Tile,
		Target: e.Target,
		Facing: e.Facing,
	}
}

// SnapshotItem converts an item entity into its replicated form.
func SnapshotItem(e *entity.Entity) ItemState {
	state := ItemState{ID: e.ID, Tile: e.Tile}
	if e.Item != nil {
		state.Item = *e.Item
	}
	return state
}
