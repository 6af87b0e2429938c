// Package status provides a thread-safe status tracker for the barrel daemon.
// It is read by HTTP handlers and by the MQTT heartbeat snapshot.
package status

import (
	"sync"
	"time"

	"github.com/mckinley/halloween-barrel/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	WarningCm   float64
	TriggerCm   float64
	CooldownSec float64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	State          logic.SequenceState
	DistanceCm     float64
	DistanceValid  bool
	LastTrigger    time.Time
	HasTriggered   bool
	Sensors        []logic.SensorHealth
	Counts         logic.SequenceCounts
	FailedReadings int
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     logic.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the reading, sequence state, and health view.
// Called from runLoop on every tick.
func (t *Tracker) Update(state logic.SequenceState, distanceCm float64, valid bool, sensors []logic.SensorHealth, counts logic.SequenceCounts, failedReadings int) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.DistanceCm = distanceCm
	t.snap.DistanceValid = valid
	t.snap.Sensors = sensors
	t.snap.Counts = counts
	t.snap.FailedReadings = failedReadings
	t.mu.Unlock()
}

// SetLastTrigger records when the last sequence started.
func (t *Tracker) SetLastTrigger(at time.Time) {
	t.mu.Lock()
	t.snap.LastTrigger = at
	t.snap.HasTriggered = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Sensors = append([]logic.SensorHealth(nil), t.snap.Sensors...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
