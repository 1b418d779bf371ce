package proto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tilerise/internal/entity"
	"tilerise/internal/grid"
	"tilerise/internal/proto"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	moveSchema := compile("player_move.schema.json")
	movedSchema := compile("player_moved.schema.json")
	dropSchema := compile("item_drop.schema.json")
	chatSchema := compile("chat.schema.json")
	welcomeSchema := compile("welcome.schema.json")

	validate(moveSchema, proto.PlayerMove{
		Ver:  proto.Version,
		Type: proto.TypePlayerMove,
		From: grid.Tile{X: 2, Y: 2},
		To:   grid.Tile{X: 2, Y: 3},
	})

	validate(movedSchema, proto.PlayerMoved{
		Ver:       proto.Version,
		Type:      proto.TypePlayerMoved,
		SessionID: "s1",
		From:      grid.Tile{X: 2, Y: 2},
		To:        grid.Tile{X: 2, Y: 3},
	})

	validate(dropSchema, proto.ItemDrop{
		Ver:    proto.Version,
		Type:   proto.TypeItemDrop,
		ItemID: "item-x",
		Tile:   grid.Tile{X: 2, Y: 3},
		Item:   entity.ItemInfo{Name: "sword", Class: "weapon", Value: 25},
	})

	validate(chatSchema, proto.Chat{Ver: proto.Version, Type: proto.TypeChat, Text: "hello"})
	validate(chatSchema, proto.ChatRelay{
		Ver:       proto.Version,
		Type:      proto.TypeChatRelay,
		SessionID: "s1",
		Name:      "alice",
		Text:      "hello",
	})

	validate(welcomeSchema, proto.Welcome{
		Ver:        proto.Version,
		Type:       proto.TypeWelcome,
		SessionID:  "s1",
		GridWidth:  25,
		GridHeight: 25,
		Players: []proto.EntityState{{
			ID: "s1", Name: "alice", Kind: "player",
			Tile: grid.Tile{X: 12, Y: 12}, Target: grid.Tile{X: 12, Y: 12},
			Facing: entity.FacingDown,
		}},
		NPCs:  []proto.EntityState{},
		Items: []proto.ItemState{},
	})
}

func TestSchemas_RejectInvalid(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "player_move.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var v any
	if err := json.Unmarshal([]byte(`{"ver":1,"type":"player_move","from":{"tx":-1,"ty":0},"to":{"tx":0,"ty":0}}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected negative tile coordinate to fail validation")
	}
}
