package world

import "voxelflight/internal/player"

// World owns the avatar and the generated terrain for one run. It is built by
// the entry point and handed to whichever collaborators need it.
type World struct {
	player *player.Player
	blocks *Map
}

func New(p *player.Player, blocks *Map) *World {
	if blocks == nil {
		blocks = NewMap()
	}
	return &World{player: p, blocks: blocks}
}

func (w *World) Player() *player.Player {
	return w.player
}

// Blocks returns the occupancy map. Callers must treat it as read-only.
func (w *World) Blocks() *Map {
	return w.blocks
}

// Advance runs one simulation tick of dt seconds.
func (w *World) Advance(dt float64) {
	w.player.Advance(dt)
}
