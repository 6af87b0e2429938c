package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mckinley/halloween-barrel/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":8080", WarningCm: 100, TriggerCm: 50}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollMs != 100 {
		t.Errorf("Config.PollMs: got %d, want 100", snap.Config.PollMs)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.State != logic.StateIdle {
		t.Errorf("State: got %q, want IDLE", snap.State)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.HasTriggered {
		t.Error("expected HasTriggered=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	sensors := []logic.SensorHealth{
		{ID: "A", Working: true, Initialized: true},
		{ID: "B", Working: false, Initialized: true, ConsecutiveFailures: 2},
	}
	tr.Update(logic.StateWarning, 72.5, true, sensors, logic.SequenceCounts{Triggers: 3, Completions: 2}, 1)

	snap := tr.Snapshot()
	if snap.State != logic.StateWarning {
		t.Errorf("State: got %q, want WARNING", snap.State)
	}
	if snap.DistanceCm != 72.5 {
		t.Errorf("DistanceCm: got %v, want 72.5", snap.DistanceCm)
	}
	if !snap.DistanceValid {
		t.Error("expected DistanceValid=true")
	}
	if len(snap.Sensors) != 2 {
		t.Fatalf("Sensors: got %d, want 2", len(snap.Sensors))
	}
	if snap.Sensors[1].ConsecutiveFailures != 2 {
		t.Errorf("Sensors[1].ConsecutiveFailures: got %d, want 2", snap.Sensors[1].ConsecutiveFailures)
	}
	if snap.Counts.Triggers != 3 {
		t.Errorf("Counts.Triggers: got %d, want 3", snap.Counts.Triggers)
	}
	if snap.FailedReadings != 1 {
		t.Errorf("FailedReadings: got %d, want 1", snap.FailedReadings)
	}
}

func TestSetLastTrigger(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	at := time.Date(2026, 10, 31, 19, 30, 0, 0, time.UTC)
	tr.SetLastTrigger(at)

	snap := tr.Snapshot()
	if !snap.HasTriggered {
		t.Error("expected HasTriggered=true")
	}
	if !snap.LastTrigger.Equal(at) {
		t.Errorf("LastTrigger: got %v, want %v", snap.LastTrigger, at)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	sensors := []logic.SensorHealth{{ID: "A", Working: true}}
	tr.Update(logic.StateWarning, 40, true, sensors, logic.SequenceCounts{Triggers: 1}, 0)

	snap1 := tr.Snapshot()

	tr.Update(logic.StateIdle, 120, true, []logic.SensorHealth{{ID: "A", Working: false}}, logic.SequenceCounts{Triggers: 2}, 0)

	// snap1 should still reflect old state
	if snap1.State != logic.StateWarning {
		t.Error("snapshot should be a copy; State was modified")
	}
	if snap1.DistanceCm != 40 {
		t.Error("snapshot should be a copy; DistanceCm was modified")
	}
	if !snap1.Sensors[0].Working {
		t.Error("snapshot should be a copy; Sensors slice was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:         logic.StatePumpActive,
		DistanceCm:    38.5,
		DistanceValid: true,
		Sensors: []logic.SensorHealth{
			{ID: "A", Working: true, Initialized: true},
			{ID: "B", Working: false, Initialized: true, ConsecutiveFailures: 3},
		},
		Counts:        logic.SequenceCounts{Triggers: 5, Completions: 4, EmergencyStops: 1, CooldownSkips: 2},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 100, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080", WarningCm: 100, TriggerCm: 50, CooldownSec: 30},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.State != "PUMP_ACTIVE" {
		t.Errorf("State: got %q, want PUMP_ACTIVE", parsed.Status.State)
	}
	if parsed.Status.DistanceCm != 38.5 {
		t.Errorf("DistanceCm: got %v, want 38.5", parsed.Status.DistanceCm)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(parsed.Status.Sensors) != 2 {
		t.Fatalf("Sensors: got %d, want 2", len(parsed.Status.Sensors))
	}
	if parsed.Status.Sensors[1].ConsecutiveFailures != 3 {
		t.Errorf("Sensors[1].ConsecutiveFailures: got %d, want 3", parsed.Status.Sensors[1].ConsecutiveFailures)
	}
	if parsed.Status.Counts.Triggers != 5 {
		t.Errorf("Counts.Triggers: got %d, want 5", parsed.Status.Counts.Triggers)
	}
	if parsed.Status.Config.WarningCm != 100 {
		t.Errorf("Config.WarningCm: got %v, want 100", parsed.Status.Config.WarningCm)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 10, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.State)
	}
}

func TestFormatJSONOmitsLastTriggerBeforeFirstRun(t *testing.T) {
	snap := Snapshot{
		State:     logic.StateIdle,
		StartTime: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 10, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatJSON(snap)

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	inner := raw["status"].(map[string]interface{})
	if _, exists := inner["last_trigger"]; exists {
		t.Error("last_trigger should be omitted before the first sequence")
	}
}

func TestFormatJSONIncludesLastTrigger(t *testing.T) {
	at := time.Date(2026, 10, 31, 19, 30, 0, 0, time.UTC)
	snap := Snapshot{
		State:        logic.StateCooldown,
		LastTrigger:  at,
		HasTriggered: true,
		StartTime:    time.Date(2026, 10, 31, 18, 0, 0, 0, time.UTC),
		Now:          at.Add(10 * time.Second),
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.LastTrigger != "2026-10-31T19:30:00Z" {
		t.Errorf("LastTrigger: got %q, want 2026-10-31T19:30:00Z", parsed.Status.LastTrigger)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:         logic.StateIdle,
		DistanceCm:    150,
		DistanceValid: true,
		Counts:        logic.SequenceCounts{Triggers: 3},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 100, Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", parsed.Status.State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:     logic.StateIdle,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 10, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	inner := raw["status"].(map[string]interface{})
	if _, exists := inner["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if inner["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", inner["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.StateIdle, float64(i), true, []logic.SensorHealth{{ID: "A", Working: true}}, logic.SequenceCounts{Triggers: i}, 0)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetLastTrigger(time.Now())
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
