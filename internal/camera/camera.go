// Package camera derives everything a render client needs to draw the world
// from a player snapshot: matrices, the HUD text and block geometry.
package camera

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelflight/internal/player"
	"voxelflight/internal/world"
)

const (
	FieldOfView = 65.0 // degrees, vertical
	NearPlane   = 0.1
	FarPlane    = 60.0

	// FogStart and FogEnd bound the linear fog, which ends at the far plane.
	FogStart = 20.0
	FogEnd   = FarPlane

	// BlockHalfSize is half the edge length of a rendered block.
	BlockHalfSize = 0.5

	atlasCells    = 4
	crosshairSize = 10
)

// SkyColor is the clear and fog colour as RGBA.
var SkyColor = [4]float64{0.5, 0.69, 1.0, 1}

// View returns the world to camera matrix. The camera first yaws around the
// vertical axis, then pitches around the horizontal axis perpendicular to the
// sight vector, then moves to the player position. When inverted is set the
// pitch angle is negated.
func View(snap player.Snapshot, inverted bool) mgl64.Mat4 {
	yaw := mgl64.HomogRotate3D(mgl64.DegToRad(snap.Rotation.Horizontal), mgl64.Vec3{0, 1, 0})

	pitchAngle := snap.Rotation.Vertical
	if inverted {
		pitchAngle = -pitchAngle
	}
	axis := player.Ortho(player.SightVector(snap.Rotation))
	pitch := mgl64.HomogRotate3D(mgl64.DegToRad(pitchAngle), axis.Normalize())

	pos := snap.Position
	move := mgl64.Translate3D(-pos.X(), -pos.Y(), -pos.Z())
	return yaw.Mul4(pitch).Mul4(move)
}

// Projection returns the perspective projection for a viewport. Degenerate
// sizes are treated as one pixel.
func Projection(width, height int) mgl64.Mat4 {
	w, h := math.Max(1, float64(width)), math.Max(1, float64(height))
	return mgl64.Perspective(mgl64.DegToRad(FieldOfView), w/h, NearPlane, FarPlane)
}

// Overlay returns the orthographic projection used for the HUD.
func Overlay(width, height int) mgl64.Mat4 {
	w, h := math.Max(1, float64(width)), math.Max(1, float64(height))
	return mgl64.Ortho(0, w, 0, h, -1, 1)
}

// Crosshair returns the two screen space line segments of the crosshair as
// x1, y1, x2, y2 pairs.
func Crosshair(width, height int) [8]int {
	x, y, n := width/2, height/2, crosshairSize
	return [8]int{x - n, y, x + n, y, x, y - n, x, y + n}
}

// Label formats the HUD line shown in the top left corner.
func Label(snap player.Snapshot, fps float64) string {
	pos := snap.Position
	return fmt.Sprintf("fps: %02d, posn: (%.2f, %.2f, %.2f), rotn: (%.2f, %.2f)",
		int(fps), pos.X(), pos.Y(), pos.Z(), snap.Rotation.Horizontal, snap.Rotation.Vertical)
}

// CubeVertices returns the 24 corners of the six quads of a block centred on
// coord, as a flat x, y, z list. Faces come in the order top, bottom, left,
// right, front, back.
func CubeVertices(coord world.Coord, half float64) []float64 {
	x, y, z, n := float64(coord.X), float64(coord.Y), float64(coord.Z), half
	return []float64{
		x - n, y + n, z - n, x - n, y + n, z + n, x + n, y + n, z + n, x + n, y + n, z - n,
		x - n, y - n, z - n, x + n, y - n, z - n, x + n, y - n, z + n, x - n, y - n, z + n,
		x - n, y - n, z - n, x - n, y - n, z + n, x - n, y + n, z + n, x - n, y + n, z - n,
		x + n, y - n, z + n, x + n, y - n, z - n, x + n, y + n, z - n, x + n, y + n, z + n,
		x - n, y - n, z + n, x + n, y - n, z + n, x + n, y + n, z + n, x - n, y + n, z + n,
		x + n, y - n, z - n, x - n, y - n, z - n, x - n, y + n, z - n, x + n, y + n, z - n,
	}
}

// TexCoords returns the atlas coordinates matching CubeVertices for a block:
// the top quad, the bottom quad, then the side square for each of the four
// sides. Unknown blocks report false.
func TexCoords(block world.BlockType) ([]float64, bool) {
	tex, ok := world.TextureFor(block)
	if !ok {
		return nil, false
	}
	coords := make([]float64, 0, 48)
	coords = append(coords, atlasSquare(tex.Top)...)
	coords = append(coords, atlasSquare(tex.Bottom)...)
	side := atlasSquare(tex.Side)
	for i := 0; i < 4; i++ {
		coords = append(coords, side...)
	}
	return coords, true
}

func atlasSquare(cell [2]int) []float64 {
	m := 1.0 / atlasCells
	dx, dy := float64(cell[0])*m, float64(cell[1])*m
	return []float64{dx, dy, dx + m, dy, dx + m, dy + m, dx, dy + m}
}
