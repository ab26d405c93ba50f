package world

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
)

const (
	MaxPreviewScale = 16

	previewAmbientLight = 0.35
)

var previewBackground = color.NRGBA{R: 128, G: 176, B: 255, A: 255}

var previewColors = map[BlockType]color.NRGBA{
	BlockGrass: {R: 96, G: 160, B: 64, A: 255},
	BlockSand:  {R: 222, G: 204, B: 140, A: 255},
	BlockBrick: {R: 170, G: 74, B: 68, A: 255},
	BlockStone: {R: 136, G: 136, B: 136, A: 255},
}

type column struct {
	top   int
	block BlockType
}

// RenderPreview draws the map from above. Each (x, z) column becomes a
// scale x scale square coloured by its highest block and brightened with
// height. North is up.
func RenderPreview(m *Map, scale int) (*image.NRGBA, error) {
	if scale <= 0 || scale > MaxPreviewScale {
		return nil, fmt.Errorf("preview scale %d outside [1, %d]", scale, MaxPreviewScale)
	}
	if m.Len() == 0 {
		return nil, errors.New("preview of an empty map")
	}

	columns := make(map[[2]int]column)
	minX, maxX := math.MaxInt, math.MinInt
	minZ, maxZ := math.MaxInt, math.MinInt
	minY, maxY := math.MaxInt, math.MinInt
	m.Each(func(coord Coord, block BlockType) bool {
		key := [2]int{coord.X, coord.Z}
		if col, ok := columns[key]; !ok || coord.Y > col.top {
			columns[key] = column{top: coord.Y, block: block}
		}
		minX, maxX = min(minX, coord.X), max(maxX, coord.X)
		minZ, maxZ = min(minZ, coord.Z), max(maxZ, coord.Z)
		minY, maxY = min(minY, coord.Y), max(maxY, coord.Y)
		return true
	})

	width := (maxX - minX + 1) * scale
	height := (maxZ - minZ + 1) * scale
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)

	span := float64(maxY - minY)
	for key, col := range columns {
		light := 1.0
		if span > 0 {
			light = previewAmbientLight + (1-previewAmbientLight)*float64(col.top-minY)/span
		}
		shade := applyLighting(previewColor(col.block), light)
		cell := image.Rect(0, 0, scale, scale).Add(image.Pt((key[0]-minX)*scale, (key[1]-minZ)*scale))
		draw.Draw(img, cell, &image.Uniform{shade}, image.Point{}, draw.Src)
	}
	return img, nil
}

// WritePreview encodes RenderPreview as PNG.
func WritePreview(w io.Writer, m *Map, scale int) error {
	img, err := RenderPreview(m, scale)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

func previewColor(block BlockType) color.NRGBA {
	if col, ok := previewColors[block]; ok {
		return col
	}
	return color.NRGBA{R: 255, G: 0, B: 255, A: 255}
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = math.Max(0, math.Min(1, factor))
	r := uint8(math.Round(float64(base.R) * factor))
	g := uint8(math.Round(float64(base.G) * factor))
	b := uint8(math.Round(float64(base.B) * factor))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
