package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/vigilant-core/internal/device"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/vigilant-core/internal/realtime"
	"github.com/nerrad567/vigilant-core/internal/risk"
)

// maxLoggedPayload caps how much of a rejected payload is logged.
const maxLoggedPayload = 512

var (
	// ErrUnregistered is returned when the identifier has no device.
	ErrUnregistered = errors.New("ingest: identifier not registered")

	// ErrNoRegistry is returned by New when Options.Registry is nil.
	ErrNoRegistry = errors.New("ingest: registry is required")

	// ErrNoBroadcaster is returned by New when Options.Broadcaster is nil.
	ErrNoBroadcaster = errors.New("ingest: broadcaster is required")
)

// Registry resolves devices and applies readings.
type Registry interface {
	GetByExternalID(ctx context.Context, externalID string) (*device.Device, error)
	ApplyReading(ctx context.Context, id int64, reading device.Reading) (*device.Device, error)
}

// Broadcaster pushes an event to realtime sessions.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Recorder stores measurement history. Optional.
type Recorder interface {
	WriteMeasurement(m influxdb.Measurement)
}

// Logger is the logging surface the pipeline needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Pipeline.
type Options struct {
	Registry    Registry
	Broadcaster Broadcaster
	Recorder    Recorder
	Logger      Logger

	// Rules defaults to risk.DefaultRules.
	Rules risk.Rules

	// Location renders ultimaAtualizacao. Defaults to time.Local.
	Location *time.Location

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline turns inbound device messages into stored readings and realtime
// events.
type Pipeline struct {
	registry    Registry
	broadcaster Broadcaster
	recorder    Recorder
	logger      Logger
	rules       risk.Rules
	loc         *time.Location
	now         func() time.Time
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, ErrNoRegistry
	}
	if opts.Broadcaster == nil {
		return nil, ErrNoBroadcaster
	}

	p := &Pipeline{
		registry:    opts.Registry,
		broadcaster: opts.Broadcaster,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		rules:       opts.Rules,
		loc:         opts.Location,
		now:         opts.Now,
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.rules == nil {
		p.rules = risk.DefaultRules
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Handle processes one message and never fails: every problem is logged and
// the message dropped. It matches broker.InboundHandler.
func (p *Pipeline) Handle(ctx context.Context, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			messagesTotal.WithLabelValues(outcomePanic).Inc()
			p.logger.Error("ingest panic recovered", "topic", topic, "panic", r)
		}
	}()

	start := time.Now()
	d, err := p.Process(ctx, topic, payload)
	if err != nil {
		p.logFailure(topic, payload, err)
		return
	}

	messagesTotal.WithLabelValues(outcomeAccepted).Inc()
	processingSeconds.Observe(time.Since(start).Seconds())
	p.logger.Info("device updated from broker",
		"device_id", d.ID,
		"external_id", d.ExternalID,
		"status", d.Status.String(),
	)
}

// Process decodes payload, applies it to the registered device and
// broadcasts exactly one update. It returns the updated device.
func (p *Pipeline) Process(ctx context.Context, topic string, payload []byte) (*device.Device, error) {
	msg, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	if id := topicIdentifier(topic); id != "" && id != msg.Identifier {
		p.logger.Debug("topic and payload identifiers differ, using payload",
			"topic", topic,
			"identificador", msg.Identifier,
		)
	}

	d, err := p.registry.GetByExternalID(ctx, msg.Identifier)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnregistered, msg.Identifier)
		}
		return nil, fmt.Errorf("resolving %s: %w", msg.Identifier, err)
	}

	now := p.now()
	updated, err := p.registry.ApplyReading(ctx, d.ID, device.Reading{
		Name:        msg.Name,
		Location:    msg.Location,
		SensorKind:  msg.SensorKind,
		Status:      msg.Status,
		Measurement: msg.Measurement,
		At:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("applying reading to device %d: %w", d.ID, err)
	}

	p.broadcaster.Broadcast(realtime.EventEquipmentUpdate, realtime.NewEquipmentUpdate(updated, now, p.loc))

	p.afterAccept(updated, now)
	return updated, nil
}

// afterAccept runs the best-effort side paths of an accepted reading.
func (p *Pipeline) afterAccept(d *device.Device, at time.Time) {
	value, parseErr := risk.ParseMeasurement(d.LastMeasurement)

	if p.recorder != nil {
		p.recorder.WriteMeasurement(influxdb.Measurement{
			DeviceID:   d.ID,
			ExternalID: d.ExternalID,
			Location:   d.Location,
			SensorKind: d.SensorKind.String(),
			Status:     d.Status.String(),
			Raw:        d.LastMeasurement,
			Value:      value,
			HasValue:   parseErr == nil,
			At:         at,
		})
	}

	if parseErr != nil {
		return
	}
	if res := p.rules.Evaluate(d.SensorKind, value); res.IsRisk {
		riskTotal.WithLabelValues(res.Severity.String()).Inc()
		p.logger.Warn("measurement exceeds risk threshold",
			"device_id", d.ID,
			"external_id", d.ExternalID,
			"severity", res.Severity.String(),
			"message", res.Message,
		)
	}
}

func (p *Pipeline) logFailure(topic string, payload []byte, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		messagesTotal.WithLabelValues(outcomeInvalid).Inc()
		p.logger.Error("discarding malformed payload",
			"topic", topic,
			"payload", truncate(payload),
			"error", err,
		)
	case errors.Is(err, ErrUnregistered):
		messagesTotal.WithLabelValues(outcomeUnregistered).Inc()
		p.logger.Warn("data received for unregistered identifier", "topic", topic, "error", err)
	case errors.Is(err, device.ErrInvalidReading):
		messagesTotal.WithLabelValues(outcomeRejected).Inc()
		p.logger.Warn("reading rejected", "topic", topic, "error", err)
	default:
		messagesTotal.WithLabelValues(outcomeStoreError).Inc()
		p.logger.Error("failed to store reading", "topic", topic, "error", err)
	}
}

// topicIdentifier returns the last level of a "<ns>/data/<id>" topic, or ""
// when the topic has another shape.
func topicIdentifier(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] != "data" {
		return ""
	}
	return parts[2]
}

func truncate(b []byte) string {
	if len(b) <= maxLoggedPayload {
		return string(b)
	}
	return string(b[:maxLoggedPayload]) + "..."
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
