package logic

import "log/slog"

// Initializer is the slice of an actuator the health monitor cares about.
type Initializer interface {
	Initialized() bool
}

// HealthMonitor aggregates sensor and actuator status into one go/no-go
// signal for the control loop. When it reports unhealthy the loop stops
// polling and the process unwinds.
type HealthMonitor struct {
	sensors           *FallbackManager
	actuators         map[string]Initializer
	maxFailedReadings int
	log               *slog.Logger
}

// NewHealthMonitor creates a monitor over the fallback manager and the
// named safety-critical actuators.
func NewHealthMonitor(sensors *FallbackManager, actuators map[string]Initializer, maxFailedReadings int, log *slog.Logger) *HealthMonitor {
	return &HealthMonitor{
		sensors:           sensors,
		actuators:         actuators,
		maxFailedReadings: maxFailedReadings,
		log:               log,
	}
}

// Healthy reports whether the control loop may keep running: the
// failed-reading streak is under the ceiling, every safety-critical
// actuator is initialized, and at least one sensor is working.
func (h *HealthMonitor) Healthy() bool {
	if streak := h.sensors.FailedStreak(); streak >= h.maxFailedReadings {
		h.log.Error("unhealthy: failed-reading streak at ceiling",
			"streak", streak, "ceiling", h.maxFailedReadings)
		return false
	}
	for name, a := range h.actuators {
		if !a.Initialized() {
			h.log.Error("unhealthy: actuator not initialized", "actuator", name)
			return false
		}
	}
	if h.sensors.WorkingCount() == 0 {
		h.log.Error("unhealthy: no working distance sensor")
		return false
	}
	return true
}
