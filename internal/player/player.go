// Package player models the flying avatar: its position, its orientation and
// the input accumulated between simulation ticks.
package player

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sasha-s/go-deadlock"
)

const (
	// DefaultFlyingSpeed is how many blocks per second the player covers.
	DefaultFlyingSpeed = 15.0

	maxVertical   = 90.0
	halfTurn      = 180.0
	fullTurn      = 360.0
	zeroTolerance = 1e-12
)

// Rotation is the player orientation in degrees. Horizontal lies in
// [-180, 180) and wraps; Vertical lies in [-90, 90] and is clamped.
type Rotation struct {
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
}

// Strafe holds the per-axis movement intent. Each counter is the number of
// currently held keys pushing in the positive direction minus those pushing in
// the negative direction.
type Strafe struct {
	Forward  int `json:"forward"`
	Side     int `json:"side"`
	Vertical int `json:"vertical"`
}

// Snapshot is a consistent copy of the guarded player state.
type Snapshot struct {
	Position mgl64.Vec3 `json:"position"`
	Rotation Rotation   `json:"rotation"`
	Strafe   Strafe     `json:"strafe"`
}

type Options struct {
	FlyingSpeed float64
	Position    mgl64.Vec3
	Rotation    Rotation
}

// Player is safe for concurrent use. Input mutators may be called from any
// goroutine; Advance must be called by a single tick driver.
type Player struct {
	flyingSpeed float64

	mu        deadlock.Mutex
	position  mgl64.Vec3
	rotation  Rotation
	rotBuffer Rotation
	strafe    Strafe
}

func New(opts Options) *Player {
	speed := opts.FlyingSpeed
	if speed <= 0 {
		speed = DefaultFlyingSpeed
	}
	return &Player{
		flyingSpeed: speed,
		position:    opts.Position,
		rotation:    normalizeRotation(opts.Rotation),
	}
}

// AddRotation buffers an orientation change. Buffered deltas are summed and
// applied by the next Advance, where wrapping and clamping take place. A delta
// that would leave the buffer non-finite is dropped.
func (p *Player) AddRotation(horizontal, vertical float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.rotBuffer.Horizontal + horizontal
	v := p.rotBuffer.Vertical + vertical
	if !finite(h) || !finite(v) {
		return
	}
	p.rotBuffer = Rotation{Horizontal: h, Vertical: v}
}

func (p *Player) AddForwardStrafe()  { p.adjustStrafe(&p.strafe.Forward, 1) }
func (p *Player) AddBackwardStrafe() { p.adjustStrafe(&p.strafe.Forward, -1) }
func (p *Player) AddLeftStrafe()     { p.adjustStrafe(&p.strafe.Side, -1) }
func (p *Player) AddRightStrafe()    { p.adjustStrafe(&p.strafe.Side, 1) }
func (p *Player) AddUpStrafe()       { p.adjustStrafe(&p.strafe.Vertical, 1) }
func (p *Player) RemoveUpStrafe()    { p.adjustStrafe(&p.strafe.Vertical, -1) }

func (p *Player) adjustStrafe(counter *int, delta int) {
	p.mu.Lock()
	*counter += delta
	p.mu.Unlock()
}

// ResetStrafe zeroes every strafe counter. Input drivers that cannot track
// held keys call it when focus is lost so a missed release does not leave the
// player drifting.
func (p *Player) ResetStrafe() {
	p.mu.Lock()
	p.strafe = Strafe{}
	p.mu.Unlock()
}

func (p *Player) Position() mgl64.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) Rotation() Rotation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotation
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Position: p.position,
		Rotation: p.rotation,
		Strafe:   p.strafe,
	}
}

// SightVector returns the unit vector the camera faces. Negative z points away
// from the viewer.
func (p *Player) SightVector() mgl64.Vec3 {
	return SightVector(p.Rotation())
}

// Velocity returns the unit direction of travel, or the zero vector when no
// movement is intended.
func (p *Player) Velocity() mgl64.Vec3 {
	p.mu.Lock()
	rot, strafe := p.rotation, p.strafe
	p.mu.Unlock()
	return Velocity(rot, strafe)
}

// Advance moves the player along its velocity for dt seconds, then applies and
// clears the buffered rotation.
func (p *Player) Advance(dt float64) {
	step := p.Velocity().Mul(dt * p.flyingSpeed)

	p.mu.Lock()
	p.position = p.position.Add(step)
	p.mu.Unlock()

	p.mu.Lock()
	next := Rotation{
		Horizontal: p.rotation.Horizontal + p.rotBuffer.Horizontal,
		Vertical:   p.rotation.Vertical + p.rotBuffer.Vertical,
	}
	p.rotBuffer = Rotation{}
	p.rotation = normalizeRotation(next)
	p.mu.Unlock()
}

// SightVector computes the facing direction for an orientation.
func SightVector(rot Rotation) mgl64.Vec3 {
	h := mgl64.DegToRad(rot.Horizontal)
	v := mgl64.DegToRad(rot.Vertical)
	return mgl64.Vec3{math.Sin(h), math.Sin(v), -math.Cos(h)}.Normalize()
}

// Velocity computes the unit travel direction for an orientation and strafe
// intent. Looking up or down does not tilt forward motion.
func Velocity(rot Rotation, strafe Strafe) mgl64.Vec3 {
	sight := SightVector(rot)

	forward := mgl64.Vec3{sight.X(), 0, sight.Z()}.Mul(float64(strafe.Forward))
	right := Ortho(sight).Mul(float64(strafe.Side))
	up := mgl64.Vec3{0, 1, 0}.Mul(float64(strafe.Vertical))

	vel := forward.Add(right).Add(up)
	if vel.Len() <= zeroTolerance {
		return mgl64.Vec3{}
	}
	return vel.Normalize()
}

// Ortho returns the horizontal vector pointing to the right of v.
func Ortho(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{-v.Z(), 0, v.X()}
}

func normalizeRotation(rot Rotation) Rotation {
	return Rotation{
		Horizontal: WrapHorizontal(rot.Horizontal),
		Vertical:   ClampVertical(rot.Vertical),
	}
}

// WrapHorizontal maps any angle in degrees into [-180, 180).
func WrapHorizontal(deg float64) float64 {
	if deg >= -halfTurn && deg < halfTurn {
		return deg
	}
	wrapped := math.Mod(deg+halfTurn, fullTurn)
	if wrapped < 0 {
		wrapped += fullTurn
	}
	wrapped -= halfTurn
	if wrapped >= halfTurn {
		wrapped -= fullTurn
	}
	return wrapped
}

// ClampVertical limits deg to [-90, 90].
func ClampVertical(deg float64) float64 {
	return mgl64.Clamp(deg, -maxVertical, maxVertical)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
