package room

import "sync/atomic"

// Metrics tracks per-room counters for the /metrics endpoint.
type Metrics struct {
	IntentsAccepted atomic.Int64
	IntentsDropped  atomic.Int64
	Broadcasts      atomic.Int64
	PlayersJoined   atomic.Int64
	PlayersLeft     atomic.Int64
	ItemsDropped    atomic.Int64
	ItemsPickedUp   atomic.Int64
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"intents_accepted": m.IntentsAccepted.Load(),
		"intents_dropped":  m.IntentsDropped.Load(),
		"broadcasts":       m.Broadcasts.Load(),
		"players_joined":   m.PlayersJoined.Load(),
		"players_left":     m.PlayersLeft.Load(),
		"items_dropped":    m.ItemsDropped.Load(),
		"items_picked_up":  m.ItemsPickedUp.Load(),
	}
}
