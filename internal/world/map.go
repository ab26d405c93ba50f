package world

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Coord describes a block position in world space.
// x grows east, y grows up, z grows south.
type Coord struct {
	X int `json:"x" cbor:"x"`
	Y int `json:"y" cbor:"y"`
	Z int `json:"z" cbor:"z"`
}

// Entry pairs a coordinate with the block stored there.
type Entry struct {
	Coord Coord     `json:"coord" cbor:"coord"`
	Block BlockType `json:"block" cbor:"block"`
}

// Map is the voxel occupancy map. A coordinate is either absent (air) or holds
// exactly one block type; writing an occupied coordinate replaces the block.
//
// A Map is not safe for concurrent mutation. It is filled once during terrain
// generation and only read afterwards.
type Map struct {
	blocks map[Coord]BlockType
}

func NewMap() *Map {
	return &Map{blocks: make(map[Coord]BlockType)}
}

// Place stores block at coord, replacing any previous block.
func (m *Map) Place(coord Coord, block BlockType) {
	m.blocks[coord] = block
}

// Block returns the block at coord and whether the coordinate is occupied.
func (m *Map) Block(coord Coord) (BlockType, bool) {
	if m == nil {
		return 0, false
	}
	block, ok := m.blocks[coord]
	return block, ok
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.blocks)
}

// Each calls fn for every occupied coordinate in unspecified order until fn
// returns false.
func (m *Map) Each(fn func(coord Coord, block BlockType) bool) {
	if m == nil {
		return
	}
	for coord, block := range m.blocks {
		if !fn(coord, block) {
			return
		}
	}
}

// Entries returns every occupied coordinate sorted by (Y, X, Z).
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.blocks))
	for coord, block := range m.blocks {
		out = append(out, Entry{Coord: coord, Block: block})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Coord, out[j].Coord
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}

// Counts tallies occupied coordinates per block type.
func (m *Map) Counts() map[BlockType]int {
	counts := make(map[BlockType]int)
	m.Each(func(_ Coord, block BlockType) bool {
		counts[block]++
		return true
	})
	return counts
}

// Fingerprint hashes the sorted contents of the map. Two maps with the same
// fingerprint hold the same blocks at the same coordinates.
func (m *Map) Fingerprint() uint64 {
	digest := xxhash.New()
	var buf [25]byte
	for _, entry := range m.Entries() {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(int64(entry.Coord.X)))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(entry.Coord.Y)))
		binary.LittleEndian.PutUint64(buf[16:24], uint64(int64(entry.Coord.Z)))
		buf[24] = byte(entry.Block)
		_, _ = digest.Write(buf[:])
	}
	return digest.Sum64()
}
