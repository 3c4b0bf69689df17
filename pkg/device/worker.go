package device

import (
	"fmt"
	"math"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

func (c *Channel) start() {
	go c.run()
}

// run is the motion worker. It advances the channel once per tick until
// SignalStop is called.
func (c *Channel) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.advanceLocked(c.tick)
			c.mu.Unlock()
		}
	}
}

// WorkerName identifies the worker in shutdown errors.
func (c *Channel) WorkerName() string {
	return fmt.Sprintf("channel %d", c.id)
}

// SignalStop asks the motion worker to exit after the current tick.
func (c *Channel) SignalStop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done is closed once the motion worker has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.doneCh
}

// advanceLocked runs one simulation step of length dt.
func (c *Channel) advanceLocked(dt time.Duration) {
	if c.movement == MovementNo && c.target != int64(c.encoder) {
		c.target = int64(c.encoder)
	}
	if c.target == int64(c.encoder) {
		if c.movement != MovementNo {
			// Zero-length move: it completes without travelling.
			c.convergeLocked()
			return
		}
		c.velocity = 0
		c.status &^= wire.StatusDirectionMask
		return
	}

	apt := c.velocityForLocked()
	remaining := c.target - int64(c.encoder)
	step := max(1, apt*c.scale.PositionScale/c.scale.VelocityScale*dt.Seconds())

	delta := remaining
	if step < math.Abs(float64(remaining)) {
		delta = int64(step)
		if remaining < 0 {
			delta = -delta
		}
	}

	c.velocity = apt / c.scale.VelocityScale
	if delta < 0 {
		c.velocity = -c.velocity
	}

	c.status &^= wire.StatusDirectionMask | wire.StatusLimitMask
	switch {
	case c.movement == MovementJogging && delta > 0:
		c.status |= wire.StatusJoggingForward
	case c.movement == MovementJogging:
		c.status |= wire.StatusJoggingReverse
	case delta > 0:
		c.status |= wire.StatusMovingForward
	default:
		c.status |= wire.StatusMovingReverse
	}

	next := int64(c.encoder) + delta
	if next < int64(c.min) || next > int64(c.max) {
		c.hitLimitLocked(delta < 0)
		return
	}

	c.encoder = int32(next)
	c.position = c.encoder
	if next == c.target {
		c.convergeLocked()
	}
}

// velocityForLocked returns the APT velocity of the current movement type,
// capped at the channel maximum.
func (c *Channel) velocityForLocked() float64 {
	var v int32
	switch c.movement {
	case MovementJogging:
		v = c.jogVelocity
	case MovementHoming:
		v = c.homeVelocity
	default:
		v = c.moveVelocity
	}
	return float64(max(0, min(c.maxVelocity, v)))
}

// hitLimitLocked clamps the channel to the bound it was about to cross and
// reports MOVE_STOPPED regardless of end-of-move suspension. The frame
// carries the in-motion status of the final tick; direction bits, velocity
// and the limit bit settle after it is queued.
func (c *Channel) hitLimitLocked(reverse bool) {
	bound, bit := c.max, wire.StatusAtMax
	if reverse {
		bound, bit = c.min, wire.StatusAtMin
	}
	c.encoder = bound
	c.position = bound
	c.target = int64(bound)
	c.pushStatusLocked(wire.MoveStopped, true)

	c.velocity = 0
	if c.status&wire.StatusMarkerMask == wire.StatusHoming {
		c.status = c.status&^wire.StatusMarkerMask | wire.StatusMotionComplete
	}
	c.status &^= wire.StatusDirectionMask | wire.StatusLimitMask
	c.status |= bit
	c.setMovementLocked(MovementNo, "limit")
}

// convergeLocked finishes a move that reached its target.
func (c *Channel) convergeLocked() {
	c.velocity = 0
	if c.movement == MovementHoming {
		c.status &^= wire.StatusMotionMask | wire.StatusDirectionMask | wire.StatusLimitMask
		c.status |= wire.StatusHomed | c.limitBitsLocked()
		c.out.push(wire.NewHeaderMessage(wire.MoveHomed, c.id, 0), true)
		c.setMovementLocked(MovementNo, "homed")
		return
	}

	c.status &^= wire.StatusDirectionMask | wire.StatusMarkerMask | wire.StatusLimitMask
	c.status |= wire.StatusMotionComplete | c.limitBitsLocked()
	if !c.out.endOfMoveSuspended() {
		c.pushStatusLocked(wire.MoveCompleted, true)
	}
	c.setMovementLocked(MovementNo, "completed")
}
