// Package input turns key and mouse events from a client into player intent.
package input

import (
	"fmt"
	"math"
	"strings"

	"github.com/sasha-s/go-deadlock"
)

// DefaultSightSpeed converts mouse units into degrees.
const DefaultSightSpeed = 0.15

type Key uint8

const (
	KeyW Key = iota + 1
	KeyS
	KeyA
	KeyD
	KeySpace
	KeyF
	KeyEscape
)

var keyNames = map[Key]string{
	KeyW:      "w",
	KeyS:      "s",
	KeyA:      "a",
	KeyD:      "d",
	KeySpace:  "space",
	KeyF:      "f",
	KeyEscape: "escape",
}

// movementKeys lists the keys that change strafe intent, in release order.
var movementKeys = []Key{KeyW, KeyS, KeyA, KeyD, KeySpace, KeyF}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("key(%d)", uint8(k))
}

// ParseKey maps a wire name such as "w" or "space" to a Key. Matching is case
// insensitive and "esc" is accepted for Escape.
func ParseKey(name string) (Key, error) {
	if name == " " {
		return KeySpace, nil
	}
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "esc" {
		return KeyEscape, nil
	}
	for key, keyName := range keyNames {
		if keyName == normalized {
			return key, nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// Target receives the intent produced by a Controller. *player.Player
// satisfies it.
type Target interface {
	AddRotation(horizontal, vertical float64)
	AddForwardStrafe()
	AddBackwardStrafe()
	AddLeftStrafe()
	AddRightStrafe()
	AddUpStrafe()
	RemoveUpStrafe()
}

type Options struct {
	SightSpeed float64
	// Captured is the initial mouse capture state.
	Captured bool
}

// Controller tracks the keys held by one client so every press reaches the
// target exactly once and is later undone exactly once.
type Controller struct {
	target     Target
	sightSpeed float64

	mu       deadlock.Mutex
	held     map[Key]bool
	captured bool
	closed   bool
}

func NewController(target Target, opts Options) *Controller {
	speed := opts.SightSpeed
	if speed <= 0 {
		speed = DefaultSightSpeed
	}
	return &Controller{
		target:     target,
		sightSpeed: speed,
		held:       make(map[Key]bool),
		captured:   opts.Captured,
	}
}

// Press applies the key's intent. It reports false when the event was ignored:
// an auto-repeat of a held key, an unknown key, or a closed controller.
func (c *Controller) Press(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if key == KeyEscape {
		c.captured = false
		return true
	}
	if !isMovement(key) || c.held[key] {
		return false
	}
	c.held[key] = true
	c.apply(key, true)
	return true
}

// Release undoes the intent of a previous Press. Releasing a key that is not
// held is ignored.
func (c *Controller) Release(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.held[key] {
		return false
	}
	delete(c.held, key)
	c.apply(key, false)
	return true
}

// MouseMotion turns pointer movement into a buffered rotation while the mouse
// is captured. Motion that does not scale to a finite rotation is ignored.
func (c *Controller) MouseMotion(dx, dy float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.captured {
		return false
	}
	h, v := dx*c.sightSpeed, dy*c.sightSpeed
	if !finite(h) || !finite(v) {
		return false
	}
	c.target.AddRotation(h, v)
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (c *Controller) SetCapture(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.captured = enabled
	}
}

func (c *Controller) Captured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured
}

// Held returns the movement keys currently held, in a stable order.
func (c *Controller) Held() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []Key
	for _, key := range movementKeys {
		if c.held[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

// Blur releases every held key, as happens when the client window loses
// focus. It returns the number of keys released.
func (c *Controller) Blur() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseAll()
}

// Close releases every held key and turns all later events into no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseAll()
	c.captured = false
	c.closed = true
}

func (c *Controller) releaseAll() int {
	released := 0
	for _, key := range movementKeys {
		if c.held[key] {
			delete(c.held, key)
			c.apply(key, false)
			released++
		}
	}
	return released
}

func (c *Controller) apply(key Key, pressed bool) {
	switch key {
	case KeyW:
		if pressed {
			c.target.AddForwardStrafe()
		} else {
			c.target.AddBackwardStrafe()
		}
	case KeyS:
		if pressed {
			c.target.AddBackwardStrafe()
		} else {
			c.target.AddForwardStrafe()
		}
	case KeyA:
		if pressed {
			c.target.AddLeftStrafe()
		} else {
			c.target.AddRightStrafe()
		}
	case KeyD:
		if pressed {
			c.target.AddRightStrafe()
		} else {
			c.target.AddLeftStrafe()
		}
	case KeySpace:
		if pressed {
			c.target.AddUpStrafe()
		} else {
			c.target.RemoveUpStrafe()
		}
	case KeyF:
		if pressed {
			c.target.RemoveUpStrafe()
		} else {
			c.target.AddUpStrafe()
		}
	}
}

func isMovement(key Key) bool {
	for _, k := range movementKeys {
		if k == key {
			return true
		}
	}
	return false
}
