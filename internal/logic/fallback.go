package logic

import (
	"log/slog"

	"github.com/mckinley/halloween-barrel/internal/device"
)

// selfTestQuota is the fraction of a self-test batch that must be valid
// for a sensor to count as working.
const selfTestQuota = 0.6

// FallbackConfig holds the validation settings for the fallback manager.
type FallbackConfig struct {
	// MinValidCm / MaxValidCm bound physically plausible readings.
	MinValidCm float64
	MaxValidCm float64

	// ConsecutiveReadings is the reading-history window used for the
	// consistency check.
	ConsecutiveReadings int

	// ReadingTolerance is the max allowed spread (max - min) across the
	// history window before a reading is treated as a spike.
	ReadingTolerance float64

	// RecoveryProbeCycles rate-limits recovery probes: with both sensors
	// down, at most one probe attempt per this many Read calls.
	RecoveryProbeCycles int
}

// trackedSensor pairs a sensor with its sticky health state. Only the
// FallbackManager mutates it.
type trackedSensor struct {
	id                  string
	dev                 device.DistanceSensor
	working             bool
	consecutiveFailures int
}

// FallbackManager wraps the two distance sensors, tracks per-sensor health,
// and fuses readings into a single trusted value.
//
// Health is sticky: a communication error marks a sensor not-working, and
// only an explicit recovery probe (one attempt per RecoveryProbeCycles polls,
// and only once both sensors are down) can reinstate it. A missing or
// out-of-range sample is discarded without penalizing the sensor.
type FallbackManager struct {
	sensors          []*trackedSensor
	history          *readingHistory
	cfg              FallbackConfig
	cyclesSinceProbe int
	failedStreak     int
	log              *slog.Logger
}

// NewFallbackManager creates a manager over the two sensors. Sensors that
// did not initialize start out not-working.
func NewFallbackManager(a, b device.DistanceSensor, cfg FallbackConfig, log *slog.Logger) *FallbackManager {
	m := &FallbackManager{
		sensors: []*trackedSensor{
			{id: "A", dev: a, working: a.Initialized()},
			{id: "B", dev: b, working: b.Initialized()},
		},
		history: newReadingHistory(cfg.ConsecutiveReadings),
		cfg:     cfg,
		// First dual failure probes immediately; later ones are rate-limited.
		cyclesSinceProbe: cfg.RecoveryProbeCycles,
		log:              log,
	}
	return m
}

// Read polls the working sensors and returns one fused, validated distance.
// ok=false means no trusted reading was produced this cycle.
func (m *FallbackManager) Read() (float64, bool) {
	valid := m.collect()

	if len(valid) == 0 && m.WorkingCount() == 0 {
		m.cyclesSinceProbe++
		if m.cyclesSinceProbe >= m.cfg.RecoveryProbeCycles {
			m.cyclesSinceProbe = 0
			valid = m.probe()
		}
	}

	if len(valid) == 0 {
		m.failedStreak++
		m.log.Warn("no valid distance reading", "failed_streak", m.failedStreak)
		return 0, false
	}

	// Closest object wins: the prop must react to an approach from any
	// angle either sensor can see.
	fused := valid[0]
	for _, v := range valid[1:] {
		if v < fused {
			fused = v
		}
	}

	m.history.push(fused)
	if m.history.full() {
		if spread := m.history.spread(); spread > m.cfg.ReadingTolerance {
			// Spike: drop the offending sample so it suppresses exactly
			// one reading. The streak is neither bumped nor reset here —
			// the sensors did answer, we just don't trust the value.
			m.history.dropNewest()
			m.log.Warn("inconsistent reading discarded",
				"reading_cm", fused, "spread_cm", spread,
				"tolerance_cm", m.cfg.ReadingTolerance)
			return 0, false
		}
	}

	m.failedStreak = 0
	return fused, true
}

// collect reads every working sensor once and returns the in-range samples.
func (m *FallbackManager) collect() []float64 {
	var valid []float64
	for _, s := range m.sensors {
		if !s.working {
			continue
		}
		cm, ok, err := s.dev.Read()
		if err != nil {
			// Communication failure is sticky until a recovery probe.
			s.working = false
			s.consecutiveFailures++
			m.log.Error("sensor failed", "sensor", s.id, "error", err)
			continue
		}
		if !ok || !m.inRange(cm) {
			continue
		}
		valid = append(valid, cm)
	}
	return valid
}

// probe gives each non-working sensor a single diagnostic read. A valid
// read reinstates the sensor and doubles as this cycle's sample.
func (m *FallbackManager) probe() []float64 {
	var valid []float64
	for _, s := range m.sensors {
		if s.working {
			continue
		}
		cm, ok, err := s.dev.Read()
		if err != nil {
			s.consecutiveFailures++
			continue
		}
		if !ok || !m.inRange(cm) {
			continue
		}
		s.working = true
		s.consecutiveFailures = 0
		valid = append(valid, cm)
		m.log.Info("sensor recovered", "sensor", s.id, "reading_cm", cm)
	}
	return valid
}

// SelfTest reads each sensor samples times and requires 60% valid readings,
// marking sensors working or not-working accordingly. Returns the number of
// working sensors. Run at startup before the control loop.
func (m *FallbackManager) SelfTest(samples int) int {
	working := 0
	for _, s := range m.sensors {
		if !s.dev.Initialized() {
			s.working = false
			m.log.Warn("sensor not initialized", "sensor", s.id)
			continue
		}
		validCount := 0
		for i := 0; i < samples; i++ {
			cm, ok, err := s.dev.Read()
			if err != nil {
				break
			}
			if ok && m.inRange(cm) {
				validCount++
			}
		}
		need := int(float64(samples) * selfTestQuota)
		s.working = validCount >= need
		if s.working {
			working++
			m.log.Info("sensor self-test passed",
				"sensor", s.id, "valid", validCount, "samples", samples)
		} else {
			m.log.Error("sensor self-test failed",
				"sensor", s.id, "valid", validCount, "samples", samples)
		}
	}
	return working
}

// WorkingCount returns how many sensors are currently marked working.
func (m *FallbackManager) WorkingCount() int {
	n := 0
	for _, s := range m.sensors {
		if s.working {
			n++
		}
	}
	return n
}

// FailedStreak returns the current run of consecutive polls that produced
// no trusted reading.
func (m *FallbackManager) FailedStreak() int { return m.failedStreak }

// Health returns a snapshot of each sensor's tracking state.
func (m *FallbackManager) Health() []SensorHealth {
	out := make([]SensorHealth, len(m.sensors))
	for i, s := range m.sensors {
		out[i] = SensorHealth{
			ID:                  s.id,
			Working:             s.working,
			Initialized:         s.dev.Initialized(),
			ConsecutiveFailures: s.consecutiveFailures,
		}
	}
	return out
}

// ResetHistory clears the reading history (e.g. after a completed sequence,
// when the scene in front of the sensors has physically changed).
func (m *FallbackManager) ResetHistory() { m.history.reset() }

func (m *FallbackManager) inRange(v float64) bool {
	return v >= m.cfg.MinValidCm && v <= m.cfg.MaxValidCm
}
