package internal

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mckinley/halloween-barrel/internal/device"
	"github.com/mckinley/halloween-barrel/internal/logic"
	"github.com/mckinley/halloween-barrel/internal/mqtt"
	"github.com/mckinley/halloween-barrel/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// barrelRig wires sensors, controller, publisher, and tracker together the
// way the daemon does, minus the real tick loop.
type barrelRig struct {
	sensors    *logic.FallbackManager
	controller *logic.Controller
	pub        *mqtt.FakePublisher
	tracker    *status.Tracker
	bands      logic.Bands
	motor      *device.FakeMotor
	pump       *device.FakeRelay
	smoke      *device.FakeRelay
	light      *device.FakeLight
	alert      *device.FakeSound
	spray      *device.FakeSound
	finale     *device.FakeSound
}

func newBarrelRig(t *testing.T, a, b device.DistanceSensor, cooldown time.Duration) *barrelRig {
	t.Helper()
	log := testLogger()

	sensors := logic.NewFallbackManager(a, b, logic.FallbackConfig{
		MinValidCm:          2,
		MaxValidCm:          400,
		ConsecutiveReadings: 3,
		ReadingTolerance:    500,
		RecoveryProbeCycles: 3,
	}, log)

	r := &barrelRig{
		sensors: sensors,
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Date(2026, 10, 31, 18, 0, 0, 0, time.UTC), status.Config{}),
		bands:   logic.Bands{WarningCm: 100, TriggerCm: 50, MinValidCm: 2, MaxValidCm: 400},
		motor:   device.NewFakeMotor(),
		pump:    device.NewFakeRelay(),
		smoke:   device.NewFakeRelay(),
		light:   device.NewFakeLight(),
		alert:   device.NewFakeSound(),
		spray:   device.NewFakeSound(),
		finale:  device.NewFakeSound(),
	}

	r.controller = logic.NewController(logic.Actuators{
		Motor:     r.motor,
		Pump:      r.pump,
		Smoke:     r.smoke,
		Light:     r.light,
		AlertCue:  r.alert,
		SprayCue:  r.spray,
		FinaleCue: r.finale,
	}, logic.Timing{
		MotorForward:  time.Second,
		MotorReverse:  time.Second,
		WarningSettle: time.Second,
		SmokeDelay:    time.Second,
		PrepSettle:    time.Second,
		PumpHold:      2 * time.Second,
		Cooldown:      cooldown,
	}, log)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	n := 0
	r.controller.SetClock(func() time.Time {
		t := start.Add(time.Duration(n) * 100 * time.Millisecond)
		n++
		return t
	}, func(time.Duration) {})

	r.controller.OnTransition(func(tr logic.Transition) {
		eventType := mqtt.EventPhase
		if tr.To == logic.StateEmergencyStop {
			eventType = mqtt.EventEmergencyStop
		}
		r.pub.Publish(mqtt.Event{
			Timestamp: tr.Timestamp,
			Type:      eventType,
			State:     tr.To,
			From:      tr.From,
		})
	})

	return r
}

// step performs one poll cycle: read, classify, react, update the tracker.
// It mirrors the daemon's tick handling without the channel plumbing.
func (r *barrelRig) step(t *testing.T, now time.Time, inWarning *bool) {
	t.Helper()
	cm, ok := r.sensors.Read()
	defer func() {
		r.tracker.Update(r.controller.State(), cm, ok,
			r.sensors.Health(), r.controller.Counts(), r.sensors.FailedStreak())
	}()
	if !ok {
		return
	}

	cls := r.bands.Classify(cm)
	switch {
	case cls.Trigger:
		*inWarning = false
		r.pub.Publish(mqtt.Event{
			Timestamp:  now,
			Type:       mqtt.EventTrigger,
			State:      r.controller.State(),
			DistanceCm: cm,
		})
		switch r.controller.Trigger() {
		case logic.TriggerRan:
			if at, has := r.controller.LastTrigger(); has {
				r.tracker.SetLastTrigger(at)
			}
			r.sensors.ResetHistory()
		case logic.TriggerCoolingDown:
			r.pub.Publish(mqtt.Event{
				Timestamp:  now,
				Type:       mqtt.EventCooldownSkip,
				State:      r.controller.State(),
				DistanceCm: cm,
			})
		}
	case cls.Warning:
		if !*inWarning {
			*inWarning = true
			r.pub.Publish(mqtt.Event{
				Timestamp:  now,
				Type:       mqtt.EventWarning,
				State:      r.controller.State(),
				DistanceCm: cm,
			})
		}
	default:
		*inWarning = false
	}
}

// TestIntegrationVisitorApproach walks a visitor from far away through the
// warning band into the trigger band and checks the full event stream.
func TestIntegrationVisitorApproach(t *testing.T) {
	// Both sensors agree on the approach: 250 → 150 → 80 → 60 → 40 cm.
	approach := []device.FakeReading{
		device.Valid(250), device.Valid(150),
		device.Valid(80), device.Valid(60),
		device.Valid(40),
	}
	rig := newBarrelRig(t,
		device.NewFakeSensor(approach...),
		device.NewFakeSensor(approach...),
		time.Hour)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false
	for i := range approach {
		rig.step(t, start.Add(time.Duration(i)*100*time.Millisecond), &inWarning)
	}

	// WARNING (once, at 80), TRIGGER (at 40), then the five phase
	// transitions of the completed sequence.
	if len(rig.pub.Events) != 7 {
		t.Fatalf("expected 7 events, got %d: %+v", len(rig.pub.Events), rig.pub.Events)
	}

	if rig.pub.Events[0].Type != mqtt.EventWarning {
		t.Errorf("event 0: expected WARNING, got %s", rig.pub.Events[0].Type)
	}
	if rig.pub.Events[0].DistanceCm != 80 {
		t.Errorf("event 0: expected distance 80, got %v", rig.pub.Events[0].DistanceCm)
	}
	if rig.pub.Events[1].Type != mqtt.EventTrigger {
		t.Errorf("event 1: expected TRIGGER, got %s", rig.pub.Events[1].Type)
	}
	if rig.pub.Events[1].DistanceCm != 40 {
		t.Errorf("event 1: expected distance 40, got %v", rig.pub.Events[1].DistanceCm)
	}

	wantPhases := []logic.SequenceState{
		logic.StateWarning,
		logic.StatePreparation,
		logic.StatePumpActive,
		logic.StateCompletion,
		logic.StateIdle,
	}
	for i, want := range wantPhases {
		ev := rig.pub.Events[2+i]
		if ev.Type != mqtt.EventPhase {
			t.Errorf("event %d: expected PHASE, got %s", 2+i, ev.Type)
		}
		if ev.State != want {
			t.Errorf("event %d: expected state %s, got %s", 2+i, want, ev.State)
		}
	}

	// The hardware did a full show: lunge, smoke, spray, retreat, dark.
	if len(rig.motor.Calls) != 2 || rig.motor.Calls[0] != "forward" || rig.motor.Calls[1] != "reverse" {
		t.Errorf("unexpected motor calls: %v", rig.motor.Calls)
	}
	if rig.pump.Switches != 2 || rig.pump.State {
		t.Errorf("pump: switches=%d state=%v", rig.pump.Switches, rig.pump.State)
	}
	if rig.smoke.Switches != 2 || rig.smoke.State {
		t.Errorf("smoke: switches=%d state=%v", rig.smoke.Switches, rig.smoke.State)
	}
	if rig.light.On {
		t.Error("light should be off after the show")
	}
	if rig.alert.Plays() != 1 || rig.spray.Plays() != 1 || rig.finale.Plays() != 1 {
		t.Errorf("cue plays: alert=%d spray=%d finale=%d",
			rig.alert.Plays(), rig.spray.Plays(), rig.finale.Plays())
	}

	// The warning-band color sequence ran: yellow, green, red.
	want := [][3]uint8{{255, 255, 0}, {0, 255, 0}, {255, 0, 0}}
	if len(rig.light.Colors) != len(want) {
		t.Fatalf("expected %d light colors, got %v", len(want), rig.light.Colors)
	}
	for i, c := range want {
		if rig.light.Colors[i] != c {
			t.Errorf("color %d: got %v, want %v", i, rig.light.Colors[i], c)
		}
	}

	snap := rig.tracker.Snapshot()
	if !snap.HasTriggered {
		t.Error("tracker should record the trigger")
	}
	if snap.Counts.Completions != 1 {
		t.Errorf("expected 1 completion, got %d", snap.Counts.Completions)
	}
}

// TestIntegrationCooldownSuppressesSecondShow keeps a visitor in the trigger
// band across the cooldown window.
func TestIntegrationCooldownSuppressesSecondShow(t *testing.T) {
	rig := newBarrelRig(t,
		device.NewFakeSensor(device.Valid(40)),
		device.NewFakeSensor(device.Valid(40)),
		time.Hour)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false
	for i := 0; i < 3; i++ {
		rig.step(t, start.Add(time.Duration(i)*100*time.Millisecond), &inWarning)
	}

	counts := rig.controller.Counts()
	if counts.Triggers != 1 {
		t.Errorf("expected 1 trigger, got %d", counts.Triggers)
	}
	if counts.Completions != 1 {
		t.Errorf("expected 1 completion, got %d", counts.Completions)
	}
	if counts.CooldownSkips != 2 {
		t.Errorf("expected 2 cooldown skips, got %d", counts.CooldownSkips)
	}

	var skips int
	for _, ev := range rig.pub.Events {
		if ev.Type == mqtt.EventCooldownSkip {
			skips++
		}
	}
	if skips != 2 {
		t.Errorf("expected 2 COOLDOWN_SKIP events, got %d", skips)
	}

	// Between shows the tracker reports the cooldown so the web page can
	// explain the silence.
	if snap := rig.tracker.Snapshot(); snap.State != logic.StateCooldown {
		t.Errorf("expected tracker state COOLDOWN, got %s", snap.State)
	}
}

// TestIntegrationSensorFailover loses sensor A mid-approach and expects the
// show to run off sensor B alone.
func TestIntegrationSensorFailover(t *testing.T) {
	sensorA := device.NewFakeSensor(
		device.Valid(250),
		device.Fail(errors.New("echo timeout")),
	)
	sensorB := device.NewFakeSensor(
		device.Valid(250), device.Valid(80), device.Valid(40),
	)
	rig := newBarrelRig(t, sensorA, sensorB, time.Hour)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false
	for i := 0; i < 3; i++ {
		rig.step(t, start.Add(time.Duration(i)*100*time.Millisecond), &inWarning)
	}

	if rig.sensors.WorkingCount() != 1 {
		t.Errorf("expected 1 working sensor, got %d", rig.sensors.WorkingCount())
	}
	if got := rig.controller.Counts().Completions; got != 1 {
		t.Errorf("expected the show to complete on one sensor, got %d completions", got)
	}

	snap := rig.tracker.Snapshot()
	var a *logic.SensorHealth
	for i := range snap.Sensors {
		if snap.Sensors[i].ID == "A" {
			a = &snap.Sensors[i]
		}
	}
	if a == nil {
		t.Fatal("sensor A missing from tracker snapshot")
	}
	if a.Working {
		t.Error("sensor A should be marked not working")
	}
	if a.ConsecutiveFailures == 0 {
		t.Error("sensor A should have recorded failures")
	}
}

// TestIntegrationEmergencyUnwind aborts a show on a pump fault and checks
// every actuator landed in its safe state.
func TestIntegrationEmergencyUnwind(t *testing.T) {
	rig := newBarrelRig(t,
		device.NewFakeSensor(device.Valid(40)),
		device.NewFakeSensor(device.Valid(40)),
		time.Hour)
	rig.pump.OnErr = errors.New("relay stuck")

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false
	rig.step(t, start, &inWarning)

	counts := rig.controller.Counts()
	if counts.EmergencyStops != 1 {
		t.Errorf("expected 1 emergency stop, got %d", counts.EmergencyStops)
	}
	if counts.Completions != 0 {
		t.Errorf("expected 0 completions, got %d", counts.Completions)
	}

	var sawEmergency bool
	for _, ev := range rig.pub.Events {
		if ev.Type == mqtt.EventEmergencyStop {
			sawEmergency = true
		}
	}
	if !sawEmergency {
		t.Error("expected an EMERGENCY_STOP event")
	}

	if !rig.motor.Stopped() {
		t.Errorf("motor should be stopped, calls: %v", rig.motor.Calls)
	}
	if rig.smoke.State {
		t.Error("smoke relay should be off")
	}
	if rig.light.On {
		t.Error("light should be off")
	}
	if rig.controller.State() != logic.StateIdle {
		t.Errorf("controller should return to IDLE, got %s", rig.controller.State())
	}

	// An aborted show does not arm the cooldown.
	if _, has := rig.controller.LastTrigger(); has {
		t.Error("aborted sequence must not set the last-trigger time")
	}
}

// TestIntegrationEventPayloads checks the wire format of the events the
// approach produces.
func TestIntegrationEventPayloads(t *testing.T) {
	approach := []device.FakeReading{device.Valid(80), device.Valid(40)}
	rig := newBarrelRig(t,
		device.NewFakeSensor(approach...),
		device.NewFakeSensor(approach...),
		time.Hour)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false
	for i := range approach {
		rig.step(t, start.Add(time.Duration(i)*100*time.Millisecond), &inWarning)
	}

	for i, raw := range rig.pub.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Barrel.Timestamp == "" {
			t.Errorf("payload %d: missing timestamp", i)
		}
		if parsed.Barrel.Event == "" {
			t.Errorf("payload %d: missing event", i)
		}
		if parsed.Barrel.State == "" {
			t.Errorf("payload %d: missing state", i)
		}
	}

	// The first payload is the WARNING with its distance.
	var warning mqtt.Payload
	if err := json.Unmarshal(rig.pub.Payloads[0], &warning); err != nil {
		t.Fatalf("warning payload: %v", err)
	}
	if warning.Barrel.Event != "WARNING" {
		t.Errorf("expected WARNING, got %s", warning.Barrel.Event)
	}
	if warning.Barrel.DistanceCm != 80 {
		t.Errorf("expected distance 80, got %v", warning.Barrel.DistanceCm)
	}

	// Phase payloads carry the from state.
	var sawFrom bool
	for _, raw := range rig.pub.Payloads {
		var p mqtt.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Fatal(err)
		}
		if p.Barrel.Event == "PHASE" && p.Barrel.From != "" {
			sawFrom = true
		}
	}
	if !sawFrom {
		t.Error("expected at least one PHASE payload with a from state")
	}
}

// TestIntegrationLifecycleEvents publishes the startup/shutdown snapshots the
// daemon sends and checks their structure.
func TestIntegrationLifecycleEvents(t *testing.T) {
	rig := newBarrelRig(t,
		device.NewFakeSensor(device.Valid(250)),
		device.NewFakeSensor(device.Valid(250)),
		time.Hour)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false
	rig.step(t, start, &inWarning)

	snap := rig.tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := rig.pub.PublishSystem(startup); err != nil {
		t.Fatalf("startup publish: %v", err)
	}

	snap = rig.tracker.Snapshot()
	shutdown := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	}
	if err := rig.pub.PublishSystem(shutdown); err != nil {
		t.Fatalf("shutdown publish: %v", err)
	}

	if len(rig.pub.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(rig.pub.SystemEvents))
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(rig.pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("startup payload: invalid JSON: %v", err)
	}
	if parsed.Status.Event != "STARTUP" {
		t.Errorf("expected event STARTUP, got %q", parsed.Status.Event)
	}
	if parsed.Status.State != "IDLE" {
		t.Errorf("expected state IDLE, got %q", parsed.Status.State)
	}
	if len(parsed.Status.Sensors) != 2 {
		t.Errorf("expected 2 sensors in payload, got %d", len(parsed.Status.Sensors))
	}

	if err := json.Unmarshal(rig.pub.SystemPayloads[1], &parsed); err != nil {
		t.Fatalf("shutdown payload: invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("expected event SHUTDOWN, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", parsed.Status.Reason)
	}
}

// TestIntegrationRecoveryProbeReinstatesSensors loses both sensors, then lets
// the rate-limited probe bring them back.
func TestIntegrationRecoveryProbeReinstatesSensors(t *testing.T) {
	fault := errors.New("echo timeout")
	// Fail once; every later read (including the probe) succeeds.
	sensorA := device.NewFakeSensor(device.Fail(fault), device.Valid(200))
	sensorB := device.NewFakeSensor(device.Fail(fault), device.Valid(210))
	rig := newBarrelRig(t, sensorA, sensorB, time.Hour)

	start := time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC)
	inWarning := false

	// First step: both sensors error out, are marked not working, and the
	// immediate probe (allowed on the first dual failure) reinstates them.
	rig.step(t, start, &inWarning)
	if rig.sensors.WorkingCount() != 2 {
		t.Fatalf("expected probe to reinstate both sensors, got %d working", rig.sensors.WorkingCount())
	}

	// Second step is an ordinary clean read.
	rig.step(t, start.Add(100*time.Millisecond), &inWarning)
	if rig.sensors.FailedStreak() != 0 {
		t.Errorf("expected a clean streak, got %d", rig.sensors.FailedStreak())
	}

	snap := rig.tracker.Snapshot()
	if !snap.DistanceValid {
		t.Error("expected a valid distance after recovery")
	}
	// Min-fusion across the reinstated pair.
	if snap.DistanceCm != 200 {
		t.Errorf("expected fused distance 200, got %v", snap.DistanceCm)
	}
}
