package logic

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mckinley/halloween-barrel/internal/device"
)

// Show light colors per phase, matching the staged build of the prop.
var (
	colorWarning = [3]uint8{255, 255, 0} // yellow
	colorPrepare = [3]uint8{0, 255, 0}   // green
	colorPump    = [3]uint8{255, 0, 0}   // red
)

// Actuators is the full set of show hardware the controller drives.
type Actuators struct {
	Motor device.Motor
	Pump  device.Relay
	Smoke device.Relay
	Light device.Light

	// Cues, in playing order: short alert at warning, spray at pump start,
	// finale during the pump hold.
	AlertCue  device.SoundPlayer
	SprayCue  device.SoundPlayer
	FinaleCue device.SoundPlayer
}

// Timing holds the phase durations for one sequence run.
type Timing struct {
	// MotorForward bounds the forward lunge in the warning phase.
	MotorForward time.Duration
	// MotorReverse bounds the retreat in the completion phase.
	MotorReverse time.Duration
	// WarningSettle is the pause after the lunge before preparation.
	WarningSettle time.Duration
	// SmokeDelay is the wait before the smoke relay energizes.
	SmokeDelay time.Duration
	// PrepSettle is the pause after smoke-on before the pump phase.
	PrepSettle time.Duration
	// PumpHold is how long the pump runs.
	PumpHold time.Duration
	// Cooldown is the minimum gap between completed sequences.
	Cooldown time.Duration
}

// Controller owns the actuation state machine. It is driven from the single
// control-loop goroutine; the only cross-goroutine interaction is
// RequestStop, which is why stopReq is atomic.
type Controller struct {
	acts   Actuators
	timing Timing
	log    *slog.Logger

	state        SequenceState
	lastTrigger  time.Time
	hasTriggered bool
	counts       SequenceCounts

	stopReq atomic.Bool

	// onTransition, if set, observes every state change.
	onTransition func(Transition)

	// now and sleep are injectable for deterministic tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewController creates a Controller in the Idle state.
func NewController(acts Actuators, timing Timing, log *slog.Logger) *Controller {
	return &Controller{
		acts:   acts,
		timing: timing,
		log:    log,
		state:  StateIdle,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// OnTransition registers an observer for state changes. Must be set before
// the control loop starts.
func (c *Controller) OnTransition(fn func(Transition)) { c.onTransition = fn }

// SetClock overrides the time source and sleeper. For tests.
func (c *Controller) SetClock(now func() time.Time, sleep func(time.Duration)) {
	c.now = now
	c.sleep = sleep
}

// State returns the externally visible sequence state. While idle but
// inside the cooldown window it reports Cooldown, so operators can see why
// triggers are being ignored.
func (c *Controller) State() SequenceState {
	if c.state == StateIdle && c.hasTriggered && !c.cooldownElapsed(c.now()) {
		return StateCooldown
	}
	return c.state
}

// LastTrigger returns the completion time of the last successful sequence.
func (c *Controller) LastTrigger() (time.Time, bool) {
	return c.lastTrigger, c.hasTriggered
}

// Counts returns sequence outcome counts since startup.
func (c *Controller) Counts() SequenceCounts { return c.counts }

// RequestStop asks the controller to divert to the emergency unwind at the
// next phase boundary. Safe to call from the signal-handling goroutine.
func (c *Controller) RequestStop() { c.stopReq.Store(true) }

// Trigger attempts to run the full actuation sequence. It blocks until the
// sequence reaches Idle again (normally or through the emergency unwind).
// With the cooldown still in effect the trigger is a logged no-op and no
// actuator is touched.
func (c *Controller) Trigger() TriggerOutcome {
	if c.state != StateIdle {
		return TriggerBusy
	}
	now := c.now()
	if !c.cooldownElapsed(now) {
		c.counts.CooldownSkips++
		c.log.Info("trigger ignored, cooling down",
			"remaining", c.timing.Cooldown-now.Sub(c.lastTrigger))
		return TriggerCoolingDown
	}

	c.counts.Triggers++
	if err := c.runSequence(); err != nil {
		c.emergencyStop(err)
		return TriggerAborted
	}
	c.counts.Completions++
	return TriggerRan
}

// EmergencyStop drives every actuator to its safe state and returns to
// Idle. Reachable externally (operator/signal) from any state; also used as
// the process-shutdown unwind.
func (c *Controller) EmergencyStop() {
	c.emergencyStop(errors.New("external stop request"))
}

func (c *Controller) cooldownElapsed(now time.Time) bool {
	if !c.hasTriggered {
		return true
	}
	return now.Sub(c.lastTrigger) >= c.timing.Cooldown
}

// runSequence executes Warning → Preparation → PumpActive → Completion.
// Any actuator failure aborts with an error; the caller unwinds.
func (c *Controller) runSequence() error {
	t := c.timing
	a := c.acts

	// Warning: announce, lunge forward, settle.
	c.transition(StateWarning)
	if err := a.Light.SetColor(colorWarning[0], colorWarning[1], colorWarning[2]); err != nil {
		return fmt.Errorf("warning light: %w", err)
	}
	a.AlertCue.Play()
	if err := a.Motor.Forward(t.MotorForward); err != nil {
		return fmt.Errorf("motor forward: %w", err)
	}
	c.sleep(t.WarningSettle)
	if err := c.checkStop(); err != nil {
		return err
	}

	// Preparation: smoke build-up.
	c.transition(StatePreparation)
	if err := a.Light.SetColor(colorPrepare[0], colorPrepare[1], colorPrepare[2]); err != nil {
		return fmt.Errorf("preparation light: %w", err)
	}
	c.sleep(t.SmokeDelay)
	if err := a.Smoke.On(); err != nil {
		return fmt.Errorf("smoke on: %w", err)
	}
	c.sleep(t.PrepSettle)
	if err := c.checkStop(); err != nil {
		return err
	}

	// PumpActive: the main event.
	c.transition(StatePumpActive)
	if err := a.Light.SetColor(colorPump[0], colorPump[1], colorPump[2]); err != nil {
		return fmt.Errorf("pump light: %w", err)
	}
	if err := a.Pump.On(); err != nil {
		return fmt.Errorf("pump on: %w", err)
	}
	a.SprayCue.Play()
	if err := a.Smoke.Off(); err != nil {
		return fmt.Errorf("smoke off: %w", err)
	}
	a.FinaleCue.Play()
	c.sleep(t.PumpHold)
	if err := a.Pump.Off(); err != nil {
		return fmt.Errorf("pump off: %w", err)
	}
	if err := c.checkStop(); err != nil {
		return err
	}

	// Completion: retreat and disarm. Only now does the cooldown clock start.
	c.transition(StateCompletion)
	if err := a.Motor.Reverse(t.MotorReverse); err != nil {
		return fmt.Errorf("motor reverse: %w", err)
	}
	if err := a.Light.TurnOff(); err != nil {
		return fmt.Errorf("light off: %w", err)
	}
	c.lastTrigger = c.now()
	c.hasTriggered = true
	c.transition(StateIdle)
	return nil
}

// checkStop observes an external stop request at a phase boundary.
func (c *Controller) checkStop() error {
	if c.stopReq.Load() {
		return errors.New("stop requested")
	}
	return nil
}

// emergencyStop performs the best-effort unwind: every stop command is
// attempted even if earlier ones fail, then the controller returns to Idle.
// lastTrigger is deliberately left untouched so the prop may re-arm sooner
// than a normal cooldown.
func (c *Controller) emergencyStop(cause error) {
	c.transition(StateEmergencyStop)
	c.counts.EmergencyStops++
	c.log.Error("emergency stop", "cause", cause)

	var errs []error
	if err := c.acts.Motor.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("motor stop: %w", err))
	}
	if err := c.acts.Pump.Off(); err != nil {
		errs = append(errs, fmt.Errorf("pump off: %w", err))
	}
	if err := c.acts.Smoke.Off(); err != nil {
		errs = append(errs, fmt.Errorf("smoke off: %w", err))
	}
	if err := c.acts.Light.TurnOff(); err != nil {
		errs = append(errs, fmt.Errorf("light off: %w", err))
	}
	c.acts.AlertCue.Stop()
	c.acts.SprayCue.Stop()
	c.acts.FinaleCue.Stop()

	if err := errors.Join(errs...); err != nil {
		c.log.Error("emergency unwind incomplete", "error", err)
	}
	c.stopReq.Store(false)
	c.transition(StateIdle)
}

func (c *Controller) transition(to SequenceState) {
	from := c.state
	c.state = to
	c.log.Info("sequence state", "from", from, "to", to)
	if c.onTransition != nil {
		c.onTransition(Transition{Timestamp: c.now(), From: from, To: to})
	}
}
