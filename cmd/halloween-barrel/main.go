// Command halloween-barrel runs a motion-triggered barrel prop: two
// ultrasonic sensors watch for visitors, and a close approach fires a
// staged light / smoke / water-pump sequence. State changes are published
// to MQTT, readings go to InfluxDB, and a small HTTP page shows status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mckinley/halloween-barrel/internal/config"
	"github.com/mckinley/halloween-barrel/internal/device"
	"github.com/mckinley/halloween-barrel/internal/govee"
	"github.com/mckinley/halloween-barrel/internal/gpio"
	"github.com/mckinley/halloween-barrel/internal/logic"
	"github.com/mckinley/halloween-barrel/internal/mqtt"
	"github.com/mckinley/halloween-barrel/internal/sound"
	"github.com/mckinley/halloween-barrel/internal/status"
	"github.com/mckinley/halloween-barrel/internal/telemetry"
	"github.com/mckinley/halloween-barrel/internal/web"
)

// exerciseMove bounds the motor test pulses in the startup exercise.
const exerciseMove = time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	simulate := flag.Bool("simulate", false, "run with fake hardware (no GPIO, light, or sound)")
	readDistance := flag.Bool("read-distance", false, "take one fused distance reading, print it, and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *simulate, *readDistance); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// rig bundles the sensors and actuators with their teardown.
type rig struct {
	sensorA device.DistanceSensor
	sensorB device.DistanceSensor
	acts    logic.Actuators
	cleanup func()
}

// buildHardware opens the GPIO chip and constructs every real device.
func buildHardware(cfg *config.Config, log *slog.Logger) (*rig, error) {
	chipName := cfg.Hardware.GPIOChip
	if chipName == "" {
		chipName = gpio.DefaultChip
	}
	chip, err := gpio.OpenChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	var closers []func() error
	fail := func(err error) (*rig, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		chip.Close()
		return nil, err
	}

	sensorA, err := gpio.NewUltrasonic(chip, cfg.Hardware.SensorA.Trigger, cfg.Hardware.SensorA.Echo)
	if err != nil {
		return fail(fmt.Errorf("sensor A: %w", err))
	}
	closers = append(closers, sensorA.Close)

	sensorB, err := gpio.NewUltrasonic(chip, cfg.Hardware.SensorB.Trigger, cfg.Hardware.SensorB.Echo)
	if err != nil {
		return fail(fmt.Errorf("sensor B: %w", err))
	}
	closers = append(closers, sensorB.Close)

	motor, err := gpio.NewMotor(chip, cfg.Hardware.MotorPins.Forward, cfg.Hardware.MotorPins.Reverse)
	if err != nil {
		return fail(fmt.Errorf("motor: %w", err))
	}
	closers = append(closers, motor.Close)

	pump, err := gpio.NewRelay(chip, cfg.Hardware.PumpRelayPin, "pump")
	if err != nil {
		return fail(fmt.Errorf("pump relay: %w", err))
	}
	closers = append(closers, pump.Close)

	smoke, err := gpio.NewRelay(chip, cfg.Hardware.SmokeRelayPin, "smoke")
	if err != nil {
		return fail(fmt.Errorf("smoke relay: %w", err))
	}
	closers = append(closers, smoke.Close)

	port := cfg.Hardware.GoveeLight.Port
	if port == 0 {
		port = govee.DefaultPort
	}
	light, err := govee.Dial(cfg.Hardware.GoveeLight.IPAddress, port)
	if err != nil {
		return fail(fmt.Errorf("govee light: %w", err))
	}
	closers = append(closers, light.Close)

	player := cfg.Hardware.Sounds.Player
	alert := sound.NewPlayer(player, cfg.Hardware.Sounds.Alert, log)
	spray := sound.NewPlayer(player, cfg.Hardware.Sounds.Spray, log)
	finale := sound.NewPlayer(player, cfg.Hardware.Sounds.Finale, log)

	cleanup := func() {
		alert.Stop()
		spray.Stop()
		finale.Stop()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("hardware teardown", "error", err)
			}
		}
		if err := chip.Close(); err != nil {
			log.Warn("gpio chip close", "error", err)
		}
	}

	return &rig{
		sensorA: sensorA,
		sensorB: sensorB,
		acts: logic.Actuators{
			Motor:     motor,
			Pump:      pump,
			Smoke:     smoke,
			Light:     light,
			AlertCue:  alert,
			SprayCue:  spray,
			FinaleCue: finale,
		},
		cleanup: cleanup,
	}, nil
}

// buildSimulated constructs a rig of fakes for bench runs off the Pi.
// The fake sensors report a fixed far-away visitor.
func buildSimulated() *rig {
	return &rig{
		sensorA: device.NewFakeSensor(device.Valid(250)),
		sensorB: device.NewFakeSensor(device.Valid(250)),
		acts: logic.Actuators{
			Motor:     device.NewFakeMotor(),
			Pump:      device.NewFakeRelay(),
			Smoke:     device.NewFakeRelay(),
			Light:     device.NewFakeLight(),
			AlertCue:  device.NewFakeSound(),
			SprayCue:  device.NewFakeSound(),
			FinaleCue: device.NewFakeSound(),
		},
		cleanup: func() {},
	}
}

func run(cfg *config.Config, log *slog.Logger, simulate, readDistance bool) error {
	var hw *rig
	if simulate {
		log.Info("running with simulated hardware")
		hw = buildSimulated()
	} else {
		var err error
		hw, err = buildHardware(cfg, log)
		if err != nil {
			return err
		}
	}
	defer hw.cleanup()

	sensors := logic.NewFallbackManager(hw.sensorA, hw.sensorB, cfg.FallbackConfig(), log)

	working := sensors.SelfTest(cfg.Validation.SelfTestReadings)
	if working == 0 {
		return errors.New("sensor self-test: no working sensors")
	}
	log.Info("sensor self-test passed", "working", working)

	// One-shot reading mode for aiming the sensors.
	if readDistance {
		cm, ok := sensors.Read()
		if !ok {
			fmt.Println("no reading")
			return nil
		}
		fmt.Printf("%.1f cm\n", cm)
		return nil
	}

	controller := logic.NewController(hw.acts, cfg.SequenceTiming(), log)

	if cfg.Hardware.ExerciseOnStartup && !simulate {
		if err := exercise(hw.acts, log); err != nil {
			return fmt.Errorf("startup exercise: %w", err)
		}
	}

	health := logic.NewHealthMonitor(sensors, map[string]logic.Initializer{
		"motor":       hw.acts.Motor,
		"pump_relay":  hw.acts.Pump,
		"smoke_relay": hw.acts.Smoke,
	}, cfg.Validation.MaxFailedReadings, log)

	// MQTT is optional; when enabled a connect failure is fatal so a
	// misconfigured broker is caught at setup time, not mid-show.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		real, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		publisher = real
		mqttStatus = real
		defer real.Close()
	}

	// Telemetry is best-effort: a missing InfluxDB never stops the prop.
	var metrics metricsSink
	if cfg.InfluxDB.Enabled {
		client, err := telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("telemetry disabled", "error", err)
		} else {
			client.SetOnError(func(err error) {
				log.Warn("telemetry write", "error", err)
			})
			metrics = client
			defer client.Close()
		}
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.ReadingInterval().Milliseconds(),
		HeartbeatMs: cfg.HeartbeatInterval().Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		WarningCm:   cfg.Thresholds.Warning,
		TriggerCm:   cfg.Thresholds.Trigger,
		CooldownSec: cfg.Timing.CooldownSecs,
	})

	wireTransitions(controller, publisher, metrics, log)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warn("publish startup event", "error", err)
		}
	}

	log.Info("started",
		"poll", cfg.ReadingInterval(),
		"warning_cm", cfg.Thresholds.Warning,
		"trigger_cm", cfg.Thresholds.Trigger,
		"cooldown", cfg.SequenceTiming().Cooldown)

	ticker := time.NewTicker(cfg.ReadingInterval())
	defer ticker.Stop()

	// The control loop blocks inside Trigger while a sequence runs, so the
	// signal is intercepted here first: RequestStop aborts the sequence at
	// the next phase boundary, then the forwarded signal reaches the loop.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	loopSig := make(chan os.Signal, 1)
	go func() {
		s := <-sigCh
		controller.RequestStop()
		loopSig <- s
	}()

	deps := loopDeps{
		sensors:    sensors,
		controller: controller,
		health:     health,
		bands:      cfg.Bands(),
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    metrics,
		heartbeat:  cfg.HeartbeatInterval(),
		log:        log,
	}
	return runLoop(deps, time.Now, ticker.C, loopSig)
}

// metricsSink is the slice of the telemetry client the loop needs.
type metricsSink interface {
	WriteDistance(distanceCm float64, valid bool, workingSensors int)
	WriteSequenceEvent(event, state string)
}

// wireTransitions registers the controller observer that fans state
// changes out to MQTT and telemetry. The observer runs on the control-loop
// goroutine.
func wireTransitions(controller *logic.Controller, publisher mqtt.Publisher, metrics metricsSink, log *slog.Logger) {
	controller.OnTransition(func(tr logic.Transition) {
		eventType := mqtt.EventPhase
		if tr.To == logic.StateEmergencyStop {
			eventType = mqtt.EventEmergencyStop
		}
		if publisher != nil {
			err := publisher.Publish(mqtt.Event{
				Timestamp: tr.Timestamp,
				Type:      eventType,
				State:     tr.To,
				From:      tr.From,
			})
			if err != nil {
				log.Warn("publish transition", "error", err)
			}
		}
		if metrics != nil {
			metrics.WriteSequenceEvent(string(eventType), string(tr.To))
		}
	})
}

// loopDeps carries everything runLoop touches; nil publisher, tracker, and
// metrics are allowed and simply skipped.
type loopDeps struct {
	sensors    *logic.FallbackManager
	controller *logic.Controller
	health     *logic.HealthMonitor
	bands      logic.Bands
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    metricsSink
	heartbeat  time.Duration
	log        *slog.Logger
}

func runLoop(d loopDeps, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()
	inWarning := false

	for {
		select {
		case s := <-sig:
			d.log.Info("received signal, shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.publishSystem(now(), "SHUTDOWN", signalName)
			return nil

		case <-tick:
			t := now()
			cm, ok := d.sensors.Read()
			if d.metrics != nil {
				d.metrics.WriteDistance(cm, ok, d.sensors.WorkingCount())
			}
			d.updateTracker(cm, ok)

			// The read above may have reinstated a sensor through the
			// recovery probe, so health is judged after it.
			if !d.health.Healthy() {
				d.publishSystem(t, "SHUTDOWN", "UNHEALTHY")
				return errors.New("health check failed")
			}

			if !ok {
				d.maybeHeartbeat(t, &lastHeartbeat)
				continue
			}

			cls := d.bands.Classify(cm)
			switch {
			case cls.Trigger:
				inWarning = false
				d.publishEvent(mqtt.Event{
					Timestamp:  t,
					Type:       mqtt.EventTrigger,
					State:      d.controller.State(),
					DistanceCm: cm,
				})
				if d.metrics != nil {
					d.metrics.WriteSequenceEvent("TRIGGER", string(d.controller.State()))
				}

				outcome := d.controller.Trigger()
				d.log.Info("trigger", "outcome", outcome.String(), "distance_cm", cm)

				switch outcome {
				case logic.TriggerRan:
					if at, has := d.controller.LastTrigger(); has && d.tracker != nil {
						d.tracker.SetLastTrigger(at)
					}
					// Readings buffered before the show are stale now.
					d.sensors.ResetHistory()
				case logic.TriggerCoolingDown:
					d.publishEvent(mqtt.Event{
						Timestamp:  t,
						Type:       mqtt.EventCooldownSkip,
						State:      d.controller.State(),
						DistanceCm: cm,
					})
				}
				d.updateTracker(cm, ok)

			case cls.Warning:
				if !inWarning {
					inWarning = true
					d.log.Info("visitor in warning band", "distance_cm", cm)
					d.publishEvent(mqtt.Event{
						Timestamp:  t,
						Type:       mqtt.EventWarning,
						State:      d.controller.State(),
						DistanceCm: cm,
					})
				}

			default:
				inWarning = false
			}

			d.maybeHeartbeat(t, &lastHeartbeat)
		}
	}
}

func (d loopDeps) updateTracker(cm float64, ok bool) {
	if d.tracker == nil {
		return
	}
	d.tracker.Update(d.controller.State(), cm, ok, d.sensors.Health(), d.controller.Counts(), d.sensors.FailedStreak())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d loopDeps) publishEvent(event mqtt.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(event); err != nil {
		d.log.Warn("publish event", "event", event.Type, "error", err)
	}
}

// publishSystem publishes a lifecycle event carrying a full status snapshot.
func (d loopDeps) publishSystem(t time.Time, event, reason string) {
	if d.publisher == nil {
		return
	}
	se := mqtt.SystemEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if d.tracker != nil {
		snap := d.tracker.Snapshot()
		se.RawPayload = status.FormatStatusEvent(snap, event, reason)
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		d.log.Warn("publish system event", "event", event, "error", err)
	}
}

func (d loopDeps) maybeHeartbeat(t time.Time, last *time.Time) {
	if d.heartbeat <= 0 || t.Sub(*last) < d.heartbeat {
		return
	}
	*last = t
	d.log.Info("heartbeat", "state", d.controller.State(), "failed_readings", d.sensors.FailedStreak())
	if d.publisher == nil {
		return
	}
	se := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "HEARTBEAT",
	}
	if d.tracker != nil {
		snap := d.tracker.Snapshot()
		se.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		d.log.Warn("publish heartbeat", "error", err)
	}
}

// exercise briefly runs each actuator so wiring faults surface at boot.
// Sound cues are skipped; a failed Play is already non-fatal at show time.
func exercise(a logic.Actuators, log *slog.Logger) error {
	log.Info("exercising hardware")

	if err := a.Light.SetColor(255, 255, 255); err != nil {
		return fmt.Errorf("light: %w", err)
	}
	if err := a.Light.TurnOff(); err != nil {
		return fmt.Errorf("light off: %w", err)
	}
	if err := a.Pump.On(); err != nil {
		return fmt.Errorf("pump on: %w", err)
	}
	if err := a.Pump.Off(); err != nil {
		return fmt.Errorf("pump off: %w", err)
	}
	if err := a.Smoke.On(); err != nil {
		return fmt.Errorf("smoke on: %w", err)
	}
	if err := a.Smoke.Off(); err != nil {
		return fmt.Errorf("smoke off: %w", err)
	}
	if err := a.Motor.Forward(exerciseMove); err != nil {
		return fmt.Errorf("motor forward: %w", err)
	}
	if err := a.Motor.Reverse(exerciseMove); err != nil {
		return fmt.Errorf("motor reverse: %w", err)
	}

	log.Info("hardware exercise complete")
	return nil
}
