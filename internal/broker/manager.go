package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nerrad567/vigilant-core/internal/brokerconfig"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/mqtt"
)

// qosAtLeastOnce is used for the data subscription and every publish.
const qosAtLeastOnce byte = 1

// defaultRetryInterval is the poll period when none is configured.
const defaultRetryInterval = 5 * time.Second

// Transport is a single live broker session. *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Close() error
}

// DialFunc opens a Transport for one connect attempt.
type DialFunc func(ctx context.Context, opts mqtt.Options) (Transport, error)

// DialMQTT is the production DialFunc.
func DialMQTT(ctx context.Context, opts mqtt.Options) (Transport, error) {
	c, err := mqtt.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ConfigSource supplies the broker row. It is consulted before every attempt.
type ConfigSource interface {
	Get(ctx context.Context) (*brokerconfig.Config, error)
}

// InboundHandler receives every message delivered on the data subscription.
// It must not panic and has no way to report errors back to the broker.
type InboundHandler func(ctx context.Context, topic string, payload []byte)

// Publisher is the outbound half of the manager, as seen by callers that
// only send commands.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	SendCommand(ctx context.Context, externalID, command string) error
}

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Manager.
type Options struct {
	// MQTT carries credentials, TLS, keepalive and the client id prefix.
	MQTT config.MQTTConfig

	Config  ConfigSource
	Handler InboundHandler
	Logger  Logger

	// Dial defaults to DialMQTT.
	Dial DialFunc

	// RetryInterval overrides MQTT.RetryInterval when positive.
	RetryInterval time.Duration
}

// Status is a point-in-time view of the broker connection.
type Status struct {
	Connected      bool       `json:"connected"`
	Broker         string     `json:"broker,omitempty"`
	TopicWildcard  string     `json:"topic_wildcard,omitempty"`
	ClientID       string     `json:"client_id,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	Attempts       uint64     `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
}

// session is the transport of a successful attempt plus what it was built from.
type session struct {
	transport Transport
	cfg       brokerconfig.Config
	clientID  string
	since     time.Time
}

// Manager keeps one broker session alive.
//
// Run polls on a fixed interval. Each poll that finds no live session reads
// the broker row again, dials with a fresh client id and subscribes to the
// wildcard. A dropped session is only logged when it drops and replaced on the
// next poll. Publish is safe for concurrent use and never blocks on a
// reconnect.
type Manager struct {
	mqttCfg config.MQTTConfig
	source  ConfigSource
	handler InboundHandler
	dial    DialFunc
	logger  Logger
	retry   time.Duration

	current  atomic.Pointer[session]
	attempts atomic.Uint64

	// generation is bumped by Reconnect. A dial that started under an older
	// generation is discarded.
	generation atomic.Uint64

	errMu   sync.RWMutex
	lastErr string
}

// New creates a Manager. Call Run to start connecting.
func New(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, ErrNoConfigSource
	}
	if opts.Handler == nil {
		return nil, ErrNoHandler
	}

	m := &Manager{
		mqttCfg: opts.MQTT,
		source:  opts.Config,
		handler: opts.Handler,
		dial:    opts.Dial,
		logger:  opts.Logger,
		retry:   opts.RetryInterval,
	}
	if m.dial == nil {
		m.dial = DialMQTT
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	if m.retry <= 0 {
		m.retry = opts.MQTT.GetRetryInterval()
	}
	if m.retry <= 0 {
		m.retry = defaultRetryInterval
	}
	return m, nil
}

// Run polls until ctx is cancelled, then closes the live session.
// The first attempt is made immediately. Each later poll starts one
// retry interval after the previous one finished, however long it took.
func (m *Manager) Run(ctx context.Context) error {
	defer m.closeSession("shutdown")

	m.logger.Info("broker connection manager started", "retry_interval", m.retry.String())

	policy := backoff.WithContext(backoff.NewConstantBackOff(m.retry), ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		m.poll(ctx)

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// poll dials when there is no live session.
func (m *Manager) poll(ctx context.Context) {
	if s := m.current.Load(); s != nil {
		if s.transport.IsConnected() {
			return
		}
		if m.current.CompareAndSwap(s, nil) {
			_ = s.transport.Close()
		}
	}
	m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) {
	attempt := m.attempts.Add(1)
	gen := m.generation.Load()

	cfg, err := m.source.Get(ctx)
	if err != nil {
		m.fail(fmt.Errorf("loading broker config: %w", err), attempt, "")
		return
	}

	clientID := m.clientID()
	addr := cfg.Address()

	opts := mqtt.OptionsFromConfig(m.mqttCfg, cfg.Host, cfg.Port, clientID)
	opts.Logger = m.logger
	opts.OnConnectionLost = func(err error) {
		connectionsLost.Inc()
		connectedGauge.Set(0)
		m.logger.Warn("broker connection lost",
			"broker", addr,
			"client_id", clientID,
			"error", err,
		)
	}

	m.logger.Debug("connecting to broker", "broker", addr, "client_id", clientID, "attempt", attempt)

	t, err := m.dial(ctx, opts)
	if err != nil {
		m.fail(err, attempt, addr)
		return
	}

	if err := t.Subscribe(ctx, cfg.TopicWildcard, qosAtLeastOnce, m.inbound(ctx)); err != nil {
		_ = t.Close()
		m.fail(err, attempt, addr)
		return
	}

	s := &session{
		transport: t,
		cfg:       *cfg,
		clientID:  clientID,
		since:     time.Now(),
	}
	m.current.Store(s)

	// Reconnect bumps the generation before closing the stored session, so
	// checking after Store covers both orders.
	if m.generation.Load() != gen {
		if m.current.CompareAndSwap(s, nil) {
			_ = t.Close()
		}
		m.logger.Info("broker config changed while connecting, discarding session",
			"broker", addr,
			"client_id", clientID,
		)
		return
	}

	m.setLastError("")
	connectAttempts.WithLabelValues("success").Inc()
	connectedGauge.Set(1)

	m.logger.Info("connected to broker",
		"broker", addr,
		"client_id", clientID,
		"topic", cfg.TopicWildcard,
	)
}

func (m *Manager) fail(err error, attempt uint64, addr string) {
	connectAttempts.WithLabelValues("failure").Inc()
	m.setLastError(err.Error())
	m.logger.Warn("broker connect attempt failed",
		"broker", addr,
		"attempt", attempt,
		"retry_in", m.retry.String(),
		"error", err,
	)
}

func (m *Manager) clientID() string {
	prefix := m.mqttCfg.ClientPrefix
	if prefix == "" {
		prefix = "vigilant-server"
	}
	return prefix + "-" + uuid.NewString()
}

// inbound adapts the handler to the transport callback. ctx is the Run
// context so in-flight work stops with the manager.
func (m *Manager) inbound(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		m.handler(ctx, topic, payload)
		return nil
	}
}

// Publish sends payload with QoS 1, not retained.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte) error {
	s := m.current.Load()
	if s == nil || !s.transport.IsConnected() {
		publishTotal.WithLabelValues("not_connected").Inc()
		return ErrNotConnected
	}

	if err := s.transport.Publish(ctx, topic, payload, qosAtLeastOnce, false); err != nil {
		publishTotal.WithLabelValues("error").Inc()
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	publishTotal.WithLabelValues("ok").Inc()
	return nil
}

// SendCommand publishes command to the device's command topic under the
// namespace of the live subscription.
func (m *Manager) SendCommand(ctx context.Context, externalID, command string) error {
	s := m.current.Load()
	if s == nil {
		publishTotal.WithLabelValues("not_connected").Inc()
		return ErrNotConnected
	}
	topic := mqtt.Topics{}.DeviceCommand(s.cfg.Namespace(), externalID)
	return m.Publish(ctx, topic, []byte(command))
}

// Reconnect drops the live session so the next poll dials with the
// current broker row. A dial already in flight is discarded when it
// completes. Used after the row is edited.
func (m *Manager) Reconnect() {
	m.generation.Add(1)
	m.closeSession("reconfigured")
}

// IsConnected reports whether a broker session is live.
func (m *Manager) IsConnected() bool {
	s := m.current.Load()
	return s != nil && s.transport.IsConnected()
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	st := Status{
		Attempts:  m.attempts.Load(),
		LastError: m.getLastError(),
	}

	if s := m.current.Load(); s != nil {
		st.Broker = s.cfg.Address()
		st.TopicWildcard = s.cfg.TopicWildcard
		st.ClientID = s.clientID
		if s.transport.IsConnected() {
			st.Connected = true
			since := s.since
			st.ConnectedSince = &since
		}
	}
	return st
}

func (m *Manager) closeSession(reason string) {
	s := m.current.Swap(nil)
	if s == nil {
		return
	}
	connectedGauge.Set(0)
	if err := s.transport.Close(); err != nil {
		m.logger.Warn("closing broker session", "client_id", s.clientID, "error", err)
	}
	m.logger.Info("broker session closed", "client_id", s.clientID, "reason", reason)
}

func (m *Manager) setLastError(msg string) {
	m.errMu.Lock()
	m.lastErr = msg
	m.errMu.Unlock()
}

func (m *Manager) getLastError() string {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return m.lastErr
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
