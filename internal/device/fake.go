package device

import (
	"sync"
	"time"
)

// FakeSensor is a test double that returns scripted distance readings.
type FakeSensor struct {
	// Readings contains the scripted samples. Each call to Read consumes
	// the next one; once exhausted the last reading repeats.
	Readings []FakeReading

	// Init controls the return value of Initialized.
	Init bool

	// Closed tracks whether Close was called.
	Closed bool

	index int
	calls int
}

// FakeReading is a single scripted sensor response.
type FakeReading struct {
	Cm  float64
	OK  bool
	Err error
}

// NewFakeSensor creates a FakeSensor with the given readings.
func NewFakeSensor(readings ...FakeReading) *FakeSensor {
	return &FakeSensor{Readings: readings, Init: true}
}

// Valid is a convenience constructor for a good reading.
func Valid(cm float64) FakeReading { return FakeReading{Cm: cm, OK: true} }

// Miss is a convenience constructor for a transient missing sample.
func Miss() FakeReading { return FakeReading{} }

// Fail is a convenience constructor for a sensor communication failure.
func Fail(err error) FakeReading { return FakeReading{Err: err} }

// Read returns the next scripted reading.
func (f *FakeSensor) Read() (float64, bool, error) {
	f.calls++
	if len(f.Readings) == 0 {
		return 0, false, nil
	}
	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r.Cm, r.OK, r.Err
}

// ReadCalls reports how many times Read was called.
func (f *FakeSensor) ReadCalls() int { return f.calls }

// Initialized reports the scripted init state.
func (f *FakeSensor) Initialized() bool { return f.Init }

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.Closed = true
	return nil
}

// FakeMotor records motor commands and can inject failures.
type FakeMotor struct {
	// Calls records each command in order: "forward", "reverse", "stop".
	Calls []string

	// ForwardErr/ReverseErr/StopErr, if set, are returned by the
	// corresponding command.
	ForwardErr error
	ReverseErr error
	StopErr    error

	// Init controls the return value of Initialized.
	Init bool
}

// NewFakeMotor creates an initialized FakeMotor.
func NewFakeMotor() *FakeMotor { return &FakeMotor{Init: true} }

// Forward records the command.
func (f *FakeMotor) Forward(time.Duration) error {
	f.Calls = append(f.Calls, "forward")
	return f.ForwardErr
}

// Reverse records the command.
func (f *FakeMotor) Reverse(time.Duration) error {
	f.Calls = append(f.Calls, "reverse")
	return f.ReverseErr
}

// Stop records the command. Idempotent like the real motor.
func (f *FakeMotor) Stop() error {
	f.Calls = append(f.Calls, "stop")
	return f.StopErr
}

// Initialized reports the scripted init state.
func (f *FakeMotor) Initialized() bool { return f.Init }

// Stopped reports whether the last movement command was a stop.
func (f *FakeMotor) Stopped() bool {
	return len(f.Calls) > 0 && f.Calls[len(f.Calls)-1] == "stop"
}

// FakeRelay records switching and can inject failures.
type FakeRelay struct {
	// State is true when the relay is on.
	State bool

	// Switches counts state-changing calls only (idempotence checks).
	Switches int

	// OnErr/OffErr, if set, are returned by On/Off.
	OnErr  error
	OffErr error

	// Init controls the return value of Initialized.
	Init bool
}

// NewFakeRelay creates an initialized, off FakeRelay.
func NewFakeRelay() *FakeRelay { return &FakeRelay{Init: true} }

// On energizes the fake relay.
func (f *FakeRelay) On() error {
	if f.OnErr != nil {
		return f.OnErr
	}
	if !f.State {
		f.State = true
		f.Switches++
	}
	return nil
}

// Off de-energizes the fake relay.
func (f *FakeRelay) Off() error {
	if f.OffErr != nil {
		return f.OffErr
	}
	if f.State {
		f.State = false
		f.Switches++
	}
	return nil
}

// Initialized reports the scripted init state.
func (f *FakeRelay) Initialized() bool { return f.Init }

// FakeLight records color changes and can inject failures.
type FakeLight struct {
	// Colors records each SetColor call as {r, g, b}.
	Colors [][3]uint8

	// On is true after TurnOn / SetColor and false after TurnOff.
	On bool

	// SetErr/OnErr/OffErr, if set, are returned by the matching call.
	SetErr error
	OnErr  error
	OffErr error
}

// NewFakeLight creates a FakeLight.
func NewFakeLight() *FakeLight { return &FakeLight{} }

// SetColor records the color.
func (f *FakeLight) SetColor(r, g, b uint8) error {
	if f.SetErr != nil {
		return f.SetErr
	}
	f.Colors = append(f.Colors, [3]uint8{r, g, b})
	f.On = true
	return nil
}

// TurnOn switches the fake light on.
func (f *FakeLight) TurnOn() error {
	if f.OnErr != nil {
		return f.OnErr
	}
	f.On = true
	return nil
}

// TurnOff switches the fake light off.
func (f *FakeLight) TurnOff() error {
	if f.OffErr != nil {
		return f.OffErr
	}
	f.On = false
	return nil
}

// FakeSound records play/stop calls. Safe for concurrent use because real
// players may be stopped from the unwind path while a cue is playing.
type FakeSound struct {
	mu      sync.Mutex
	playing bool
	plays   int
	stops   int
}

// NewFakeSound creates a FakeSound.
func NewFakeSound() *FakeSound { return &FakeSound{} }

// Play marks the cue as playing.
func (f *FakeSound) Play() {
	f.mu.Lock()
	f.playing = true
	f.plays++
	f.mu.Unlock()
}

// Stop marks the cue as stopped.
func (f *FakeSound) Stop() {
	f.mu.Lock()
	f.playing = false
	f.stops++
	f.mu.Unlock()
}

// Playing reports whether the cue is currently "playing".
func (f *FakeSound) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// Plays reports how many times Play was called.
func (f *FakeSound) Plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}
