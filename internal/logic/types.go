// Package logic contains the prop's decision core: sensor fallback and
// fusion, threshold classification, the triggered-sequence state machine,
// and health aggregation. Hardware is reached only through the narrow
// interfaces in internal/device, and time is always injectable, so the
// whole package tests without hardware or real sleeps.
package logic

import "time"

// SequenceState is the phase of the actuation sequence. It is owned
// exclusively by the Controller.
type SequenceState string

const (
	StateIdle          SequenceState = "IDLE"
	StateWarning       SequenceState = "WARNING"
	StatePreparation   SequenceState = "PREPARATION"
	StatePumpActive    SequenceState = "PUMP_ACTIVE"
	StateCompletion    SequenceState = "COMPLETION"
	StateCooldown      SequenceState = "COOLDOWN"
	StateEmergencyStop SequenceState = "EMERGENCY_STOP"
)

// Classification is the result of evaluating a distance against the
// configured bands.
type Classification struct {
	// Valid is true when the distance lies inside the physically
	// plausible [MinValidCm, MaxValidCm] window.
	Valid bool
	// Warning is true when an object is inside the warning band.
	Warning bool
	// Trigger is true when an object is close enough to start the show.
	Trigger bool
}

// Bands holds the immutable distance thresholds. Ordering
// (TriggerCm < WarningCm, MinValidCm < MaxValidCm) is enforced at
// configuration load, before a Bands value is ever constructed.
type Bands struct {
	WarningCm  float64
	TriggerCm  float64
	MinValidCm float64
	MaxValidCm float64
}

// Classify evaluates a distance against the bands. Pure function.
func (b Bands) Classify(d float64) Classification {
	return Classification{
		Valid:   d >= b.MinValidCm && d <= b.MaxValidCm,
		Warning: d < b.WarningCm,
		Trigger: d < b.TriggerCm,
	}
}

// SensorHealth is a snapshot of one sensor's fallback-tracking state.
type SensorHealth struct {
	ID                  string
	Working             bool
	Initialized         bool
	ConsecutiveFailures int
}

// SequenceCounts tracks sequence outcomes since startup.
type SequenceCounts struct {
	Triggers       int
	Completions    int
	EmergencyStops int
	CooldownSkips  int
}

// TriggerOutcome reports what a trigger attempt did.
type TriggerOutcome int

const (
	// TriggerRan means a full sequence executed and completed.
	TriggerRan TriggerOutcome = iota
	// TriggerCoolingDown means the cooldown guard suppressed the trigger.
	TriggerCoolingDown
	// TriggerBusy means a sequence was already active.
	TriggerBusy
	// TriggerAborted means the sequence started but ended in emergency stop.
	TriggerAborted
)

// String returns the outcome name for logs and events.
func (o TriggerOutcome) String() string {
	switch o {
	case TriggerRan:
		return "RAN"
	case TriggerCoolingDown:
		return "COOLING_DOWN"
	case TriggerBusy:
		return "BUSY"
	case TriggerAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Transition describes a state change for observers (MQTT, status page).
type Transition struct {
	Timestamp time.Time
	From      SequenceState
	To        SequenceState
}
