package player

import (
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func requireVecNear(t *testing.T, want, got mgl64.Vec3) {
	t.Helper()
	for i := range want {
		require.InDelta(t, want[i], got[i], epsilon, "component %d of %v", i, got)
	}
}

func TestAdvanceAppliesSummedRotation(t *testing.T) {
	p := New(Options{Rotation: Rotation{Horizontal: 10, Vertical: -5}})

	deltas := [][2]float64{{3, 1}, {-1.5, 2}, {20, -4}, {0.25, 0.5}}
	var sumH, sumV float64
	for _, d := range deltas {
		p.AddRotation(d[0], d[1])
		sumH += d[0]
		sumV += d[1]
	}

	require.Equal(t, Rotation{Horizontal: 10, Vertical: -5}, p.Rotation(), "rotation must not change before a tick")

	p.Advance(0)
	got := p.Rotation()
	require.InDelta(t, WrapHorizontal(10+sumH), got.Horizontal, epsilon)
	require.InDelta(t, ClampVertical(-5+sumV), got.Vertical, epsilon)
}

func TestAddRotationDropsNonFiniteDeltas(t *testing.T) {
	tests := []struct {
		name   string
		deltas [][2]float64
		wantH  float64
		wantV  float64
	}{
		{name: "nan", deltas: [][2]float64{{5, 1}, {math.NaN(), 0}}, wantH: 5, wantV: 1},
		{name: "inf", deltas: [][2]float64{{0, math.Inf(1)}, {2, 3}}, wantH: 2, wantV: 3},
		{name: "overflow", deltas: [][2]float64{{math.MaxFloat64, 0}, {math.MaxFloat64, 0}}, wantH: WrapHorizontal(math.MaxFloat64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Options{})
			for _, d := range tt.deltas {
				p.AddRotation(d[0], d[1])
			}
			p.AddForwardStrafe()
			p.Advance(1)

			got := p.Rotation()
			require.InDelta(t, tt.wantH, got.Horizontal, epsilon)
			require.InDelta(t, tt.wantV, got.Vertical, epsilon)
			require.GreaterOrEqual(t, got.Horizontal, -180.0)
			require.Less(t, got.Horizontal, 180.0)
			for i, c := range p.Position() {
				require.False(t, math.IsNaN(c), "component %d", i)
			}
		})
	}
}

func TestAdvanceWrapsHorizontal(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		delta float64
		want  float64
	}{
		{name: "positive boundary", start: 179, delta: 2, want: -179},
		{name: "exactly 180", start: 170, delta: 10, want: -180},
		{name: "negative boundary", start: -179, delta: -2, want: 179},
		{name: "stays inside", start: 45, delta: 10, want: 55},
		{name: "several turns", start: 0, delta: 725, want: 5},
		{name: "several negative turns", start: 0, delta: -725, want: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Options{Rotation: Rotation{Horizontal: tt.start}})
			p.AddRotation(tt.delta, 0)
			p.Advance(0)
			require.InDelta(t, tt.want, p.Rotation().Horizontal, epsilon)
		})
	}
}

func TestAdvanceClampsVertical(t *testing.T) {
	p := New(Options{Rotation: Rotation{Vertical: 89}})
	p.AddRotation(0, 5)
	p.Advance(0)
	require.Equal(t, 90.0, p.Rotation().Vertical)

	for i := 0; i < 3; i++ {
		p.Advance(1.0 / 60)
		require.Equal(t, 90.0, p.Rotation().Vertical)
	}

	p.AddRotation(0, -500)
	p.Advance(0)
	require.Equal(t, -90.0, p.Rotation().Vertical)
}

func TestRotationBufferDrainsOnce(t *testing.T) {
	p := New(Options{})
	p.AddRotation(30, 10)
	p.Advance(0)
	p.Advance(0)
	require.Equal(t, Rotation{Horizontal: 30, Vertical: 10}, p.Rotation())
}

func TestNewNormalizesStartingRotation(t *testing.T) {
	p := New(Options{Rotation: Rotation{Horizontal: 190, Vertical: 120}})
	require.Equal(t, Rotation{Horizontal: -170, Vertical: 90}, p.Rotation())
}

func TestSightVector(t *testing.T) {
	requireVecNear(t, mgl64.Vec3{0, 0, -1}, SightVector(Rotation{}))
	requireVecNear(t, mgl64.Vec3{1, 0, 0}, SightVector(Rotation{Horizontal: 90}))
	requireVecNear(t, mgl64.Vec3{-1, 0, 0}, SightVector(Rotation{Horizontal: -90}))
	requireVecNear(t, mgl64.Vec3{0, 0, 1}, SightVector(Rotation{Horizontal: -180}))

	up := SightVector(Rotation{Vertical: 90})
	require.InDelta(t, 1, up.Len(), epsilon)
	require.Greater(t, up.Y(), 0.0)
}

func TestPlayerSightVectorUsesCurrentRotation(t *testing.T) {
	p := New(Options{})
	p.AddRotation(90, 0)
	p.Advance(0)
	requireVecNear(t, mgl64.Vec3{1, 0, 0}, p.SightVector())
}

func TestVelocityIsZeroOrUnit(t *testing.T) {
	rotations := []Rotation{{}, {Horizontal: 37, Vertical: 12}, {Horizontal: -120, Vertical: -80}, {Vertical: 90}}
	for _, rot := range rotations {
		for fwd := -1; fwd <= 1; fwd++ {
			for side := -1; side <= 1; side++ {
				for vert := -1; vert <= 1; vert++ {
					vel := Velocity(rot, Strafe{Forward: fwd, Side: side, Vertical: vert})
					if fwd == 0 && side == 0 && vert == 0 {
						require.Equal(t, mgl64.Vec3{}, vel)
						continue
					}
					require.InDelta(t, 1, vel.Len(), epsilon, "rot=%v strafe=(%d,%d,%d)", rot, fwd, side, vert)
				}
			}
		}
	}
}

func TestVelocityIgnoresPitchForForwardMotion(t *testing.T) {
	vel := Velocity(Rotation{Vertical: 60}, Strafe{Forward: 1})
	requireVecNear(t, mgl64.Vec3{0, 0, -1}, vel)
}

func TestVelocityDirections(t *testing.T) {
	tests := []struct {
		name   string
		strafe Strafe
		want   mgl64.Vec3
	}{
		{name: "forward", strafe: Strafe{Forward: 1}, want: mgl64.Vec3{0, 0, -1}},
		{name: "backward", strafe: Strafe{Forward: -1}, want: mgl64.Vec3{0, 0, 1}},
		{name: "right", strafe: Strafe{Side: 1}, want: mgl64.Vec3{1, 0, 0}},
		{name: "left", strafe: Strafe{Side: -1}, want: mgl64.Vec3{-1, 0, 0}},
		{name: "up", strafe: Strafe{Vertical: 1}, want: mgl64.Vec3{0, 1, 0}},
		{name: "down", strafe: Strafe{Vertical: -1}, want: mgl64.Vec3{0, -1, 0}},
		{name: "forward right", strafe: Strafe{Forward: 1, Side: 1}, want: mgl64.Vec3{math.Sqrt2 / 2, 0, -math.Sqrt2 / 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireVecNear(t, tt.want, Velocity(Rotation{}, tt.strafe))
		})
	}
}

func TestMatchedStrafeCancels(t *testing.T) {
	p := New(Options{})
	p.AddForwardStrafe()
	p.AddBackwardStrafe()
	p.AddLeftStrafe()
	p.AddRightStrafe()
	p.AddUpStrafe()
	p.RemoveUpStrafe()
	p.AddForwardStrafe()
	p.AddForwardStrafe()
	p.AddBackwardStrafe()
	p.AddBackwardStrafe()

	require.Equal(t, mgl64.Vec3{}, p.Velocity())
	require.Equal(t, Strafe{}, p.Snapshot().Strafe)
}

func TestUnmatchedReleaseIsAccepted(t *testing.T) {
	p := New(Options{})
	p.AddBackwardStrafe() // release of W without a press
	require.Equal(t, Strafe{Forward: -1}, p.Snapshot().Strafe)
	requireVecNear(t, mgl64.Vec3{0, 0, 1}, p.Velocity())

	p.ResetStrafe()
	require.Equal(t, Strafe{}, p.Snapshot().Strafe)
	require.Equal(t, mgl64.Vec3{}, p.Velocity())
}

func TestAdvanceMovesBeforeRotating(t *testing.T) {
	p := New(Options{FlyingSpeed: 10})
	p.AddForwardStrafe()
	p.AddRotation(90, 0)

	p.Advance(0.5)
	// Movement used the pre-tick heading (north), then the turn was applied.
	requireVecNear(t, mgl64.Vec3{0, 0, -5}, p.Position())
	require.Equal(t, 90.0, p.Rotation().Horizontal)

	p.Advance(0.5)
	requireVecNear(t, mgl64.Vec3{5, 0, -5}, p.Position())
}

func TestAdvanceUsesDefaultFlyingSpeed(t *testing.T) {
	p := New(Options{Position: mgl64.Vec3{1, 2, 3}})
	p.AddUpStrafe()
	p.Advance(1)
	requireVecNear(t, mgl64.Vec3{1, 2 + DefaultFlyingSpeed, 3}, p.Position())
}

func TestConcurrentInputAndAdvance(t *testing.T) {
	p := New(Options{FlyingSpeed: 1})

	const (
		writers   = 8
		perWriter = 500
		ticks     = 400
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				p.AddForwardStrafe()
				p.AddRightStrafe()
				p.AddUpStrafe()
				p.AddRotation(0.5, 0.25)
				p.AddRotation(-0.5, -0.25)
				p.RemoveUpStrafe()
				p.AddLeftStrafe()
				p.AddBackwardStrafe()
			}
		}()
	}

	readers := make(chan struct{})
	var readWG sync.WaitGroup
	readWG.Add(1)
	go func() {
		defer readWG.Done()
		for {
			select {
			case <-readers:
				return
			default:
			}
			snap := p.Snapshot()
			assert.GreaterOrEqual(t, snap.Rotation.Vertical, -90.0)
			assert.LessOrEqual(t, snap.Rotation.Vertical, 90.0)
			assert.GreaterOrEqual(t, snap.Rotation.Horizontal, -180.0)
			assert.Less(t, snap.Rotation.Horizontal, 180.0)
			if vel := p.Velocity(); vel != (mgl64.Vec3{}) {
				assert.InDelta(t, 1, vel.Len(), 1e-6)
			}
		}
	}()

	for i := 0; i < ticks; i++ {
		p.Advance(1.0 / 60)
	}
	wg.Wait()
	p.Advance(1.0 / 60)
	close(readers)
	readWG.Wait()

	snap := p.Snapshot()
	require.Equal(t, Strafe{}, snap.Strafe)
	require.InDelta(t, 0, snap.Rotation.Horizontal, 1e-6)
	require.InDelta(t, 0, snap.Rotation.Vertical, 1e-6)
}
