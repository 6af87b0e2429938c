// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/mckinley/halloween-barrel/internal/logic"
)

// Topic is the MQTT topic for prop events.
const Topic = "halloween/barrel/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "halloween/barrel/system"

// EventType identifies a kind of prop event.
type EventType string

const (
	// EventWarning fires when a visitor crosses the warning band.
	EventWarning EventType = "WARNING"
	// EventTrigger fires when the actuation sequence starts.
	EventTrigger EventType = "TRIGGER"
	// EventPhase fires on each sequence phase transition.
	EventPhase EventType = "PHASE"
	// EventEmergencyStop fires when the sequence is unwound mid-run.
	EventEmergencyStop EventType = "EMERGENCY_STOP"
	// EventCooldownSkip fires when a trigger is suppressed by the cooldown.
	EventCooldownSkip EventType = "COOLDOWN_SKIP"
)

// Event represents a prop event published to the events topic.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	State      logic.SequenceState
	From       logic.SequenceState // Phase transitions only
	DistanceCm float64             // Fused reading when relevant (WARNING, TRIGGER)
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a prop event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT", "UNHEALTHY" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Barrel BarrelPayload `json:"barrel"`
}

// BarrelPayload contains the prop event details.
type BarrelPayload struct {
	Timestamp  string  `json:"timestamp"`
	Event      string  `json:"event"`
	State      string  `json:"state"`
	From       string  `json:"from,omitempty"`
	DistanceCm float64 `json:"distance_cm,omitempty"`
}

// FormatPayload creates the JSON payload for a prop event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Barrel: BarrelPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(event.Type),
			State:      string(event.State),
			From:       string(event.From),
			DistanceCm: event.DistanceCm,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
