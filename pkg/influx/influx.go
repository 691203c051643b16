// Package influx writes monitor events to InfluxDB as points of the
// "icmpmonitor" measurement.
package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/kylerisse/icmpmonitor/pkg/monitor"
)

const (
	// Measurement is the measurement every point is written to.
	Measurement = "icmpmonitor"

	// DefaultBatchSize is how many points are buffered before a write.
	DefaultBatchSize = 100

	// DefaultFlushInterval is the longest a point stays buffered.
	DefaultFlushInterval = 5 * time.Second
)

// Config addresses an InfluxDB v2 bucket.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Sink is a monitor.EventSink backed by the client's non-blocking write
// API. Write errors are logged.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPI
	logger *logrus.Logger

	batchSize     uint
	flushInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// Option is a functional option for configuring a Sink.
type Option func(*Sink) error

// WithBatchSize sets the number of points buffered per write.
func WithBatchSize(n uint) Option {
	return func(s *Sink) error {
		if n == 0 {
			return fmt.Errorf("batch size must be positive")
		}
		s.batchSize = n
		return nil
	}
}

// WithFlushInterval sets how long points may stay buffered.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) error {
		if d < time.Millisecond {
			return fmt.Errorf("flush interval must be at least 1ms, got %v", d)
		}
		s.flushInterval = d
		return nil
	}
}

// New creates a Sink writing to cfg's bucket.
func New(cfg Config, logger *logrus.Logger, opts ...Option) (*Sink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: url, org and bucket are required")
	}

	s := &Sink{
		logger:        logger,
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("influx: %w", err)
		}
	}

	options := influxdb2.DefaultOptions().
		SetBatchSize(s.batchSize).
		SetFlushInterval(uint(s.flushInterval / time.Millisecond)).
		SetMaxRetries(0)
	s.client = influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)
	s.write = s.client.WriteAPI(cfg.Org, cfg.Bucket)

	errs := s.write.Errors()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case err, ok := <-errs:
				if !ok {
					return
				}
				s.logger.Warnf("influx: write failed: %v", err)
			case <-s.done:
				return
			}
		}
	}()

	return s, nil
}

// Check asks the server for its health.
func (s *Sink) Check(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("influx: health check status %s", health.Status)
	}
	return nil
}

// Record queues e as a point. It never blocks on the network.
func (s *Sink) Record(e monitor.Event) {
	s.write.WritePoint(Point(e))
}

// Flush writes every buffered point.
func (s *Sink) Flush() {
	s.write.Flush()
}

// Close flushes buffered points and releases the client.
func (s *Sink) Close() {
	s.write.Flush()
	close(s.done)
	s.wg.Wait()
	s.client.Close()
}

// Point converts e to an InfluxDB point.
func Point(e monitor.Event) *write.Point {
	tags := map[string]string{"host": e.Host}
	if e.Address.IsValid() {
		tags["address"] = e.Address.String()
	}

	fields := map[string]interface{}{
		"event": e.Kind.String(),
		"up":    e.Up,
	}
	if e.Kind == monitor.EventReply || e.Kind == monitor.EventUp {
		fields["rtt_us"] = e.RTT.Microseconds()
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
	}

	return influxdb2.NewPoint(Measurement, tags, fields, e.Time)
}
