// Package telemetry records distance readings and sequence events to
// InfluxDB. Writes are batched and non-blocking; a write failure never
// interrupts the prop.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mckinley/halloween-barrel/internal/config"
)

const (
	connectTimeout = 10 * time.Second
	// millisecondsPerSecond converts the config flush interval for the client options.
	millisecondsPerSecond = 1000
)

var (
	// ErrDisabled indicates telemetry is disabled in config.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)

// Client wraps the InfluxDB v2 client. All methods are safe for
// concurrent use; write calls batch and return immediately.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)
}

// Connect creates the client, verifies connectivity with a ping, and
// configures the non-blocking write API.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	c := &Client{
		client:    client,
		writeAPI:  writeAPI,
		connected: true,
	}

	go c.handleWriteErrors(writeAPI.Errors())

	return c, nil
}

// handleWriteErrors processes async write errors from the WriteAPI.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback for async write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// WriteDistance records a fused distance reading.
// workingSensors tags how many sensors contributed.
func (c *Client) WriteDistance(distanceCm float64, valid bool, workingSensors int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"distance",
		map[string]string{
			"prop": "barrel",
		},
		map[string]interface{}{
			"cm":              distanceCm,
			"valid":           valid,
			"working_sensors": workingSensors,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSequenceEvent records a sequence lifecycle event
// (trigger, phase transition, completion, emergency stop).
func (c *Client) WriteSequenceEvent(event, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sequence",
		map[string]string{
			"prop":  "barrel",
			"event": event,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorHealth records one sensor's working state.
func (c *Client) WriteSensorHealth(sensorID string, working bool, consecutiveFailures int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_health",
		map[string]string{
			"prop":   "barrel",
			"sensor": sensorID,
		},
		map[string]interface{}{
			"working":              working,
			"consecutive_failures": consecutiveFailures,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// Flush forces all pending writes to be sent. Blocks until buffered
// points are written. Safe to call after Close (no-op).
func (c *Client) Flush() {
	if c.writeAPI == nil {
		return
	}

	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return
	}

	c.writeAPI.Flush()
}

// Close flushes pending writes and shuts down the connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()

	return nil
}
