package world

import "fmt"

// BlockType enumerates the materials a voxel can be made of. The zero value is
// not a valid block; air is represented by the absence of a coordinate.
type BlockType uint8

const (
	BlockGrass BlockType = iota + 1
	BlockSand
	BlockBrick
	BlockStone
)

var blockNames = map[BlockType]string{
	BlockGrass: "grass",
	BlockSand:  "sand",
	BlockBrick: "brick",
	BlockStone: "stone",
}

// BlockTypes lists every known block type in declaration order.
func BlockTypes() []BlockType {
	return []BlockType{BlockGrass, BlockSand, BlockBrick, BlockStone}
}

func (b BlockType) String() string {
	if name, ok := blockNames[b]; ok {
		return name
	}
	return fmt.Sprintf("block(%d)", uint8(b))
}

// Valid reports whether b is one of the declared block types.
func (b BlockType) Valid() bool {
	_, ok := blockNames[b]
	return ok
}

func (b BlockType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("unknown block type %d", uint8(b))
	}
	return []byte(blockNames[b]), nil
}

func (b *BlockType) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockType(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBlockType resolves a block name such as "grass" to its BlockType.
func ParseBlockType(name string) (BlockType, error) {
	for block, n := range blockNames {
		if n == name {
			return block, nil
		}
	}
	return 0, fmt.Errorf("unknown block type %q", name)
}

// Texture atlas cells (column, row) for the top, bottom and side faces of a
// block in a 4x4 atlas.
type Texture struct {
	Top    [2]int
	Bottom [2]int
	Side   [2]int
}

var textures = map[BlockType]Texture{
	BlockGrass: {Top: [2]int{1, 0}, Bottom: [2]int{0, 1}, Side: [2]int{0, 0}},
	BlockSand:  {Top: [2]int{1, 1}, Bottom: [2]int{1, 1}, Side: [2]int{1, 1}},
	BlockBrick: {Top: [2]int{2, 0}, Bottom: [2]int{2, 0}, Side: [2]int{2, 0}},
	BlockStone: {Top: [2]int{2, 1}, Bottom: [2]int{2, 1}, Side: [2]int{2, 1}},
}

// TextureFor returns the atlas cells used to draw b.
func TextureFor(b BlockType) (Texture, bool) {
	tex, ok := textures[b]
	return tex, ok
}
