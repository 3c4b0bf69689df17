package device

import (
	"math"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// MovementType is the motion state of a channel.
type MovementType uint8

const (
	MovementNo MovementType = iota
	MovementMoving
	MovementJogging
	MovementHoming
)

// String returns the movement type name.
func (m MovementType) String() string {
	switch m {
	case MovementNo:
		return "No"
	case MovementMoving:
		return "Moving"
	case MovementJogging:
		return "Jogging"
	case MovementHoming:
		return "Homing"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the movement type by name.
func (m MovementType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Targets for MOVE_VELOCITY. They lie far outside the int32 travel range so a
// velocity move always ends on a bound or a stop.
const (
	velocityTargetForward int64 = math.MaxInt64 / 2
	velocityTargetReverse int64 = math.MinInt64 / 2
)

// sink is where a channel sends its frames and transitions.
type sink interface {
	push(msg wire.Message, unsolicited bool) int
	endOfMoveSuspended() bool
	logTransition(channel uint16, from, to MovementType, reason string)
}

// Snapshot is a copy of a channel's observable state.
type Snapshot struct {
	ID       uint16       `json:"id"`
	Encoder  int32        `json:"encoder"`
	Position int32        `json:"position"`
	Velocity float64      `json:"velocity"`
	Target   int64        `json:"target"`
	Movement MovementType `json:"movement"`
	Status   wire.Status  `json:"status"`
	Min      int32        `json:"min"`
	Max      int32        `json:"max"`
}

// Idle reports whether the channel has no motion pending.
func (s Snapshot) Idle() bool {
	return s.Movement == MovementNo && int64(s.Encoder) == s.Target && !s.Status.Moving()
}

// Channel is one simulated axis.
//
// Every field below mu is guarded by it.
type Channel struct {
	id    uint16
	scale ChannelConfig
	tick  time.Duration
	out   sink

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu sync.Mutex

	encoder  int32
	position int32
	velocity float64 // user units/s, signed by direction of travel
	target   int64
	movement MovementType
	status   wire.Status
	min, max int32

	maxVelocity      int32
	maxAcceleration  int32
	moveVelocity     int32
	moveAcceleration int32

	jogMode         uint16
	jogStep         int32
	jogVelocity     int32
	jogAcceleration int32
	jogStopMode     uint16

	backlash int32

	switches wire.LimitSwitchParams
	pid      wire.PIDParams

	homeDirection   uint16
	homeLimitSwitch uint16
	homeVelocity    int32
	homeOffset      int32
}

func newChannel(id uint16, cfg ChannelConfig, tick time.Duration, out sink) *Channel {
	lo, hi := cfg.bounds()
	velocity := func(v float64) int32 {
		if v == 0 {
			v = cfg.MaxVelocity
		}
		return toAPT(v, cfg.VelocityScale)
	}
	jogStep := cfg.JogStep
	if jogStep == 0 {
		jogStep = 1
	}
	homeDir := cfg.HomingDirection
	if homeDir == 0 {
		homeDir = 2
	}
	homeSwitch := cfg.HomingLimitSwitch
	if homeSwitch == 0 {
		homeSwitch = 1
	}

	c := &Channel{
		id:       id,
		scale:    cfg,
		tick:     tick,
		out:      out,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		encoder:  cfg.Encoder,
		position: cfg.Encoder,
		target:   int64(cfg.Encoder),
		status:   wire.StatusDefault,
		min:      lo,
		max:      hi,

		maxVelocity:      toAPT(cfg.MaxVelocity, cfg.VelocityScale),
		maxAcceleration:  toAPT(cfg.MaxAcceleration, cfg.AccelerationScale),
		moveVelocity:     velocity(cfg.MoveVelocity),
		moveAcceleration: toAPT(cfg.MaxAcceleration, cfg.AccelerationScale),

		jogMode:         2,
		jogStep:         toAPT(jogStep, cfg.PositionScale),
		jogVelocity:     velocity(cfg.JogVelocity),
		jogAcceleration: toAPT(cfg.MaxAcceleration, cfg.AccelerationScale),
		jogStopMode:     2,

		backlash: toAPT(cfg.Backlash, cfg.PositionScale),

		switches: wire.LimitSwitchParams{Channel: id, CWHard: 1, CCWHard: 1, SoftMode: 1},
		pid:      wire.PIDParams{Channel: id, FilterControl: 0x0F},

		homeDirection:   homeDir,
		homeLimitSwitch: homeSwitch,
		homeVelocity:    velocity(cfg.HomingVelocity),
		homeOffset:      toAPT(cfg.HomingOffset, cfg.PositionScale),
	}
	c.status |= c.limitBitsLocked()
	return c
}

// ID returns the channel id.
func (c *Channel) ID() uint16 {
	return c.id
}

// Snapshot returns a consistent copy of the channel state.
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:       c.id,
		Encoder:  c.encoder,
		Position: c.position,
		Velocity: c.velocity,
		Target:   c.target,
		Movement: c.movement,
		Status:   c.status,
		Min:      c.min,
		Max:      c.max,
	}
}

// ToCounts converts a position in user units to encoder counts.
func (c *Channel) ToCounts(units float64) int32 {
	return toAPT(units, c.scale.PositionScale)
}

// ToUnits converts encoder counts to user units.
func (c *Channel) ToUnits(counts int32) float64 {
	return float64(counts) / c.scale.PositionScale
}

func (c *Channel) limitBitsLocked() wire.Status {
	var s wire.Status
	if c.encoder == c.min {
		s |= wire.StatusAtMin
	}
	if c.encoder == c.max {
		s |= wire.StatusAtMax
	}
	return s
}

func (c *Channel) setMovementLocked(m MovementType, reason string) {
	if c.movement == m {
		return
	}
	from := c.movement
	c.movement = m
	c.out.logTransition(c.id, from, m, reason)
}

func (c *Channel) statusUpdateLocked() wire.StatusUpdate {
	return wire.StatusUpdate{
		Channel:  c.id,
		Position: c.position,
		Velocity: wireVelocity(c.velocity),
		Status:   c.status,
	}
}

// pushStatusLocked queues a status-carrying frame while the channel lock is
// held, which orders it after every earlier event of this channel.
func (c *Channel) pushStatusLocked(kind wire.Kind, unsolicited bool) {
	msg, err := wire.NewDataMessage(kind, c.statusUpdateLocked())
	if err != nil {
		return
	}
	c.out.push(msg, unsolicited)
}

// pushStatus queues a status-carrying frame for the broadcast worker.
func (c *Channel) pushStatus(kind wire.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushStatusLocked(kind, true)
}

// statusUpdate returns the current GET_DCSTATUSUPDATE payload.
func (c *Channel) statusUpdate() wire.StatusUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusUpdateLocked()
}

// setCounter forces encoder, position and target to v, clamped to the
// travel range. It aborts any motion in progress.
func (c *Channel) setCounter(v int32, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v = max(c.min, min(c.max, v))
	c.encoder = v
	c.position = v
	c.target = int64(v)
	c.velocity = 0
	c.status &^= wire.StatusDirectionMask | wire.StatusLimitMask | wire.StatusMotionMask
	c.status |= wire.StatusMotionComplete | c.limitBitsLocked()
	c.setMovementLocked(MovementNo, reason)
}

func (c *Channel) counter() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder
}

// moveTo starts a Moving or Jogging motion toward target.
func (c *Channel) moveTo(target int64, m MovementType, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.setMovementLocked(m, reason)
}

// moveBy starts a motion relative to the current encoder position.
func (c *Channel) moveBy(delta int64, m MovementType, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = int64(c.encoder) + delta
	c.setMovementLocked(m, reason)
}

// jog starts one jog step. Direction 1 steps toward negative counts.
func (c *Channel) jog(direction uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := int64(c.jogStep)
	if direction == 1 {
		step = -step
	}
	c.target = int64(c.encoder) + step
	c.setMovementLocked(MovementJogging, "MOVE_JOG")
}

// home starts a homing move toward the configured end of travel.
func (c *Channel) home() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.homeDirection == 2 {
		c.target = int64(c.min)
	} else {
		c.target = int64(c.max)
	}
	c.status = c.status&^wire.StatusMotionMask | wire.StatusHoming
	c.setMovementLocked(MovementHoming, "MOVE_HOME")
}

// stop aborts any motion: the target snaps to the encoder and the next tick
// clears the direction bits and velocity. It returns the MOVE_STOPPED
// payload and whether the channel was moving; an idle channel is left as is.
func (c *Channel) stop() (wire.StatusUpdate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.movement == MovementNo && c.target == int64(c.encoder) {
		return c.statusUpdateLocked(), false
	}
	c.target = int64(c.encoder)
	if c.status&wire.StatusMarkerMask == wire.StatusHoming {
		c.status = c.status&^wire.StatusMarkerMask | wire.StatusMotionComplete
	}
	c.setMovementLocked(MovementNo, "MOVE_STOP")
	return c.statusUpdateLocked(), true
}

func (c *Channel) velParams() wire.VelParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.VelParams{
		Channel:      c.id,
		MinVelocity:  0,
		Acceleration: c.moveAcceleration,
		MaxVelocity:  c.moveVelocity,
	}
}

func (c *Channel) setVelParams(p wire.VelParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveAcceleration = p.Acceleration
	c.moveVelocity = p.MaxVelocity
}

func (c *Channel) jogParams() wire.JogParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.JogParams{
		Channel:      c.id,
		Mode:         c.jogMode,
		StepSize:     c.jogStep,
		MinVelocity:  0,
		Acceleration: c.jogAcceleration,
		MaxVelocity:  c.jogVelocity,
		StopMode:     c.jogStopMode,
	}
}

func (c *Channel) setJogParams(p wire.JogParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jogMode = p.Mode
	c.jogStep = p.StepSize
	c.jogAcceleration = p.Acceleration
	c.jogVelocity = p.MaxVelocity
	c.jogStopMode = p.StopMode
}

func (c *Channel) genMoveParams() wire.GenMoveParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.GenMoveParams{Channel: c.id, Backlash: c.backlash}
}

func (c *Channel) setGenMoveParams(p wire.GenMoveParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backlash = p.Backlash
}

func (c *Channel) limitSwitchParams() wire.LimitSwitchParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.switches
	p.Channel = c.id
	return p
}

func (c *Channel) setLimitSwitchParams(p wire.LimitSwitchParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switches = p
}

func (c *Channel) pidParams() wire.PIDParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pid
	p.Channel = c.id
	return p
}

func (c *Channel) setPIDParams(p wire.PIDParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pid = p
}

func (c *Channel) homeParams() wire.HomeParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.HomeParams{
		Channel:     c.id,
		Direction:   c.homeDirection,
		LimitSwitch: c.homeLimitSwitch,
		Velocity:    c.homeVelocity,
		Offset:      c.homeOffset,
	}
}

func (c *Channel) setHomeParams(p wire.HomeParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.homeDirection = p.Direction
	c.homeLimitSwitch = p.LimitSwitch
	c.homeVelocity = p.Velocity
	c.homeOffset = p.Offset
	c.status = c.status&^wire.StatusMotionMask | wire.StatusMotionComplete
}

// toAPT scales a user-unit value and rounds it into the int32 range.
func toAPT(v, scale float64) int32 {
	r := math.Round(v * scale)
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	if r < math.MinInt32 {
		return math.MinInt32
	}
	return int32(r)
}

// wireVelocity encodes a user-unit velocity as the int16 tenths reported in
// status updates.
func wireVelocity(v float64) int16 {
	r := math.Round(v * 10)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}
