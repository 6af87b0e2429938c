package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	State          string       `json:"state"`
	DistanceCm     float64      `json:"distance_cm"`
	DistanceValid  bool         `json:"distance_valid"`
	LastTrigger    string       `json:"last_trigger,omitempty"`
	FailedReadings int          `json:"failed_readings"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Sensors        []SensorJSON `json:"sensors"`
	Counts         CountsJSON   `json:"sequence_counts"`
	Config         ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SensorJSON is the JSON representation of one sensor's health.
type SensorJSON struct {
	ID                  string `json:"id"`
	Working             bool   `json:"working"`
	Initialized         bool   `json:"initialized"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// CountsJSON is the JSON representation of sequence counts.
type CountsJSON struct {
	Triggers       int `json:"triggers"`
	Completions    int `json:"completions"`
	EmergencyStops int `json:"emergency_stops"`
	CooldownSkips  int `json:"cooldown_skips"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64   `json:"poll_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
	WarningCm   float64 `json:"warning_cm"`
	TriggerCm   float64 `json:"trigger_cm"`
	CooldownSec float64 `json:"cooldown_seconds"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	sensors := make([]SensorJSON, 0, len(snap.Sensors))
	for _, s := range snap.Sensors {
		sensors = append(sensors, SensorJSON{
			ID:                  s.ID,
			Working:             s.Working,
			Initialized:         s.Initialized,
			ConsecutiveFailures: s.ConsecutiveFailures,
		})
	}

	inner := StatusInner{
		State:          state,
		DistanceCm:     snap.DistanceCm,
		DistanceValid:  snap.DistanceValid,
		FailedReadings: snap.FailedReadings,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Sensors:        sensors,
		Counts: CountsJSON{
			Triggers:       snap.Counts.Triggers,
			Completions:    snap.Counts.Completions,
			EmergencyStops: snap.Counts.EmergencyStops,
			CooldownSkips:  snap.Counts.CooldownSkips,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			WarningCm:   snap.Config.WarningCm,
			TriggerCm:   snap.Config.TriggerCm,
			CooldownSec: snap.Config.CooldownSec,
		},
	}
	if snap.HasTriggered {
		inner.LastTrigger = snap.LastTrigger.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
