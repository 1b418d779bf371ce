// Package config loads server configuration from a YAML file, falling back
// to defaults when the file is absent.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tilerise/internal/grid"
)

// NPCSpawn places one named NPC on the grid at room creation.
type NPCSpawn struct {
	Name string `yaml:"name"`
	TX   int    `yaml:"tx"`
	TY   int    `yaml:"ty"`
}

// Config carries every server tunable.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogFile    string `yaml:"log_file"`

	GridWidth  int     `yaml:"grid_width"`
	GridHeight int     `yaml:"grid_height"`
	TileWidth  float64 `yaml:"tile_width"`
	TileHeight float64 `yaml:"tile_height"`

	SpawnTX int `yaml:"spawn_tx"`
	SpawnTY int `yaml:"spawn_ty"`

	// MaxPlayers caps concurrent players per room; 0 means unlimited.
	MaxPlayers int `yaml:"max_players"`
	// ChatMaxLen truncates relayed chat; 0 disables truncation.
	ChatMaxLen int `yaml:"chat_max_len"`
	// CommandBuffer sizes the room intent queue.
	CommandBuffer int `yaml:"command_buffer"`

	NPCs []NPCSpawn `yaml:"npcs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		LogFile:       "tilerise.log",
		GridWidth:     25,
		GridHeight:    25,
		TileWidth:     grid.DefaultTileWidth,
		TileHeight:    grid.DefaultTileHeight,
		SpawnTX:       12,
		SpawnTY:       12,
		MaxPlayers:    0,
		ChatMaxLen:    0,
		CommandBuffer: 256,
		NPCs: []NPCSpawn{
			{Name: "Trader", TX: 6, TY: 6},
			{Name: "Guide", TX: 18, TY: 6},
		},
	}
}

// Load reads path and overlays it on the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.GridWidth < 1 || c.GridHeight < 1 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", c.GridWidth, c.GridHeight)
	}
	if c.TileWidth <= 0 || c.TileHeight <= 0 {
		return fmt.Errorf("tile size must be positive, got %.1fx%.1f", c.TileWidth, c.TileHeight)
	}
	if c.SpawnTX < 0 || c.SpawnTX >= c.GridWidth || c.SpawnTY < 0 || c.SpawnTY >= c.GridHeight {
		return fmt.Errorf("spawn tile (%d,%d) outside %dx%d grid", c.SpawnTX, c.SpawnTY, c.GridWidth, c.GridHeight)
	}
	if c.CommandBuffer < 1 {
		return fmt.Errorf("command_buffer must be at least 1, got %d", c.CommandBuffer)
	}
	for _, npc := range c.NPCs {
		if npc.TX < 0 || npc.TX >= c.GridWidth || npc.TY < 0 || npc.TY >= c.GridHeight {
			return fmt.Errorf("npc %q tile (%d,%d) outside %dx%d grid", npc.Name, npc.TX, npc.TY, c.GridWidth, c.GridHeight)
		}
	}
	return nil
}

// SpawnTile returns the configured player spawn tile.
func (c Config) SpawnTile() grid.Tile {
	return grid.Tile{X: c.SpawnTX, Y: c.SpawnTY}
}
