// Package terrain builds the voxel occupancy map for a fresh world.
package terrain

import (
	"errors"
	"fmt"

	"voxelflight/internal/world"
)

const (
	groundLevel = -2
	rockLevel   = -3
	wallTop     = 2
)

// Source supplies random draws. *rand.Rand satisfies it; the generator never
// seeds it, so equal draw sequences produce equal maps.
type Source interface {
	Intn(n int) int
}

// Sink receives every placement as it is made, in generation order.
type Sink interface {
	Place(coord world.Coord, block world.BlockType)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(coord world.Coord, block world.BlockType)

func (f SinkFunc) Place(coord world.Coord, block world.BlockType) { f(coord, block) }

// Range is an inclusive integer interval.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

func (r Range) draw(src Source) int {
	return r.Min + src.Intn(r.Max-r.Min+1)
}

// Params describes the world to generate.
type Params struct {
	// HalfExtent n makes the floor span [-n, n] on both horizontal axes.
	HalfExtent int
	// Step is the spacing between floor columns, normally 1.
	Step int
	// HillCount is how many hills are raised.
	HillCount int
	// HillInset keeps hill centres at least this far inside the wall.
	HillInset int
	// HillHeight is the number of layers in a hill.
	HillHeight Range
	// HillHalfWidth is the half-width of a hill's bottom layer.
	HillHalfWidth Range
	// Taper shrinks the half-width after every layer.
	Taper int
	// SpawnClearRadius keeps hills out of the disk around the origin.
	SpawnClearRadius int

	Ground  world.BlockType
	Rock    world.BlockType
	Palette []world.BlockType
}

// DefaultParams matches the classic 161x161 world with 120 hills.
func DefaultParams() Params {
	return Params{
		HalfExtent:       80,
		Step:             1,
		HillCount:        120,
		HillInset:        10,
		HillHeight:       Range{Min: 1, Max: 6},
		HillHalfWidth:    Range{Min: 4, Max: 8},
		Taper:            1,
		SpawnClearRadius: 5,
		Ground:           world.BlockGrass,
		Rock:             world.BlockStone,
		Palette:          []world.BlockType{world.BlockGrass, world.BlockSand, world.BlockBrick},
	}
}

func (p Params) Validate() error {
	if p.HalfExtent <= 0 {
		return errors.New("half extent must be positive")
	}
	if p.Step <= 0 {
		return errors.New("step must be positive")
	}
	if p.HillCount < 0 {
		return errors.New("hill count cannot be negative")
	}
	if p.HillInset < 0 {
		return errors.New("hill inset cannot be negative")
	}
	if p.HillHeight.Min < 1 || p.HillHeight.Max < p.HillHeight.Min {
		return fmt.Errorf("hill height range [%d, %d] invalid", p.HillHeight.Min, p.HillHeight.Max)
	}
	if p.HillHalfWidth.Min < 0 || p.HillHalfWidth.Max < p.HillHalfWidth.Min {
		return fmt.Errorf("hill half-width range [%d, %d] invalid", p.HillHalfWidth.Min, p.HillHalfWidth.Max)
	}
	if p.Taper <= 0 {
		return errors.New("taper must be positive")
	}
	if p.SpawnClearRadius < 0 {
		return errors.New("spawn clear radius cannot be negative")
	}
	if !p.Ground.Valid() || !p.Rock.Valid() {
		return errors.New("ground and rock blocks must be set")
	}
	if p.HillCount > 0 && len(p.Palette) == 0 {
		return errors.New("palette cannot be empty")
	}
	for i, block := range p.Palette {
		if !block.Valid() {
			return fmt.Errorf("palette[%d] is not a known block", i)
		}
	}
	return nil
}

// Generate builds a new map. Every placement is also forwarded to sink when it
// is non-nil. Later placements replace earlier ones at the same coordinate.
func Generate(params Params, src Source, sink Sink) (*world.Map, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("terrain params: %w", err)
	}
	if src == nil && params.HillCount > 0 {
		return nil, errors.New("terrain: random source is nil")
	}

	g := &generation{params: params, blocks: world.NewMap(), sink: sink}
	g.floor()
	for i := 0; i < params.HillCount; i++ {
		g.hill(src)
	}
	return g.blocks, nil
}

type generation struct {
	params Params
	blocks *world.Map
	sink   Sink
}

func (g *generation) place(x, y, z int, block world.BlockType) {
	coord := world.Coord{X: x, Y: y, Z: z}
	g.blocks.Place(coord, block)
	if g.sink != nil {
		g.sink.Place(coord, block)
	}
}

// floor lays the ground and rock layers and the perimeter wall.
func (g *generation) floor() {
	n, step := g.params.HalfExtent, g.params.Step
	for x := -n; x <= n; x += step {
		for z := -n; z <= n; z += step {
			g.place(x, groundLevel, z, g.params.Ground)
			g.place(x, rockLevel, z, g.params.Rock)
			if x == -n || x == n || z == -n || z == n {
				for y := groundLevel; y <= wallTop; y++ {
					g.place(x, y, z, g.params.Rock)
				}
			}
		}
	}
}

// hill raises one stepped cone. The draw order (centre x, centre z, height,
// half-width, block) is part of the determinism contract.
func (g *generation) hill(src Source) {
	inset := g.params.HalfExtent - g.params.HillInset
	if inset < 0 {
		inset = 0
	}
	centre := Range{Min: -inset, Max: inset}
	a := centre.draw(src)
	b := centre.draw(src)
	height := g.params.HillHeight.draw(src)
	s := g.params.HillHalfWidth.draw(src)
	block := g.params.Palette[src.Intn(len(g.params.Palette))]

	spawn := g.params.SpawnClearRadius * g.params.SpawnClearRadius
	for y := 0; y < height; y++ {
		reach := (s + 1) * (s + 1)
		for x := a - s; x <= a+s; x++ {
			for z := b - s; z <= b+s; z++ {
				dx, dz := x-a, z-b
				if dx*dx+dz*dz > reach {
					continue
				}
				if x*x+z*z < spawn {
					continue
				}
				g.place(x, y, z, block)
			}
		}
		s -= g.params.Taper
	}
}
