package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
)

// fakeToken is a paho token completed by the test.
type fakeToken struct {
	pahomqtt.Token
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls and hands back configurable tokens.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	publishToken pahomqtt.Token
	subToken     pahomqtt.Token
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	disconnects  int
}

func newFakePaho() *fakePaho {
	return &fakePaho{
		connected:    true,
		publishToken: doneToken(nil),
		subToken:     doneToken(nil),
		handlers:     make(map[string]pahomqtt.MessageHandler),
	}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	return f.publishToken
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = cb
	return f.subToken
}

// deliver invokes the handler registered for filter as paho would.
func (f *fakePaho) deliver(filter, topic string, payload []byte) {
	f.mu.Lock()
	cb := f.handlers[filter]
	f.mu.Unlock()
	cb(f, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func newTestClient(f *fakePaho) *Client {
	return &Client{client: f, opts: Options{ClientID: "vigilant-server-test"}}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestDialRefused(t *testing.T) {
	opts := Options{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens here
		ClientID:       "vigilant-test-refused",
		ConnectTimeout: 2 * time.Second,
	}

	_, err := Dial(context.Background(), opts)
	if err == nil {
		t.Fatal("Dial() expected error for refused connection")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDialCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := Dial(ctx, Options{Host: "10.255.255.1", Port: 1883, ClientID: "vigilant-test-cancel"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Dial() error = %v, want ErrConnectionFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Dial() took %v after cancel, want prompt return", elapsed)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

func TestClose(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if f.disconnects != 1 {
		t.Errorf("Disconnect calls = %d, want 1", f.disconnects)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)

	err := c.Publish(context.Background(), "vigilant/command/SENS_01", []byte(CommandConnect), 1, false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(f.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(f.published))
	}
	got := f.published[0]
	if got.topic != "vigilant/command/SENS_01" || got.qos != 1 || got.retained {
		t.Errorf("published = %+v, want topic vigilant/command/SENS_01 qos 1 not retained", got)
	}
	if string(got.payload) != "CONECTAR" {
		t.Errorf("payload = %q, want CONECTAR", got.payload)
	}
}

func TestPublishValidation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"single-level wildcard", "vigilant/+/x", 1, nil, ErrInvalidTopic},
		{"multi-level wildcard", "vigilant/#", 1, nil, ErrInvalidTopic},
		{"qos out of range", "vigilant/command/x", 3, nil, ErrInvalidQoS},
		{"payload too large", "vigilant/command/x", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePaho()
			c := newTestClient(f)

			err := c.Publish(context.Background(), tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
			if len(f.published) != 0 {
				t.Errorf("published = %d messages, want 0", len(f.published))
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	f := newFakePaho()
	f.connected = false
	c := newTestClient(f)

	err := c.Publish(context.Background(), "vigilant/command/SENS_01", nil, 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if len(f.published) != 0 {
		t.Error("Publish() wrote to the network while disconnected")
	}
}

func TestPublishTokenError(t *testing.T) {
	f := newFakePaho()
	brokerErr := errors.New("not authorised")
	f.publishToken = doneToken(brokerErr)
	c := newTestClient(f)

	err := c.Publish(context.Background(), "vigilant/command/SENS_01", nil, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if !errors.Is(err, brokerErr) {
		t.Errorf("Publish() error = %v, want wrapped broker error", err)
	}
}

func TestPublishHonoursContext(t *testing.T) {
	f := newFakePaho()
	f.publishToken = pendingToken()
	c := newTestClient(f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Publish(ctx, "vigilant/command/SENS_01", nil, 1, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() error = %v, want context.DeadlineExceeded", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribeDeliversMessages(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)

	var gotTopic, gotPayload string
	err := c.Subscribe(context.Background(), "vigilant/data/#", 1, func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	f.deliver("vigilant/data/#", "vigilant/data/SENS_01", []byte(`{"x":1}`))

	if gotTopic != "vigilant/data/SENS_01" || gotPayload != `{"x":1}` {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
}

func TestSubscribeValidation(t *testing.T) {
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"qos out of range", "vigilant/data/#", 5, handler, ErrInvalidQoS},
		{"nil handler", "vigilant/data/#", 1, nil, ErrSubscribeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(newFakePaho())
			err := c.Subscribe(context.Background(), tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	f := newFakePaho()
	f.connected = false
	c := newTestClient(f)

	err := c.Subscribe(context.Background(), "vigilant/data/#", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeTokenError(t *testing.T) {
	f := newFakePaho()
	f.subToken = doneToken(errors.New("subscription refused"))
	c := newTestClient(f)

	err := c.Subscribe(context.Background(), "vigilant/data/#", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	f := newFakePaho()
	logger := &recordingLogger{}
	c := &Client{client: f, opts: Options{Logger: logger}}

	err := c.Subscribe(context.Background(), "vigilant/data/#", 1, func(string, []byte) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	f.deliver("vigilant/data/#", "vigilant/data/SENS_01", nil)

	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want one panic report", logger.errors)
	}
}

func TestHandlerReturnsError(t *testing.T) {
	f := newFakePaho()
	logger := &recordingLogger{}
	c := &Client{client: f, opts: Options{Logger: logger}}

	err := c.Subscribe(context.Background(), "vigilant/data/#", 1, func(string, []byte) error {
		return errors.New("handler error")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	f.deliver("vigilant/data/#", "vigilant/data/SENS_01", nil)

	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %v, want one", logger.warns)
	}
}

// =============================================================================
// Options and Topics
// =============================================================================

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.MQTTConfig{
		Auth:           config.MQTTAuthConfig{Username: "svc", Password: "secret"},
		TLS:            true,
		KeepAlive:      30,
		ConnectTimeout: 7,
	}

	opts := OptionsFromConfig(cfg, "broker.emqx.io", 8883, "vigilant-server-abc")

	if opts.BrokerURL() != "ssl://broker.emqx.io:8883" {
		t.Errorf("BrokerURL() = %q", opts.BrokerURL())
	}
	if opts.KeepAlive != 30*time.Second {
		t.Errorf("KeepAlive = %v, want 30s", opts.KeepAlive)
	}
	if opts.ConnectTimeout != 7*time.Second {
		t.Errorf("ConnectTimeout = %v, want 7s", opts.ConnectTimeout)
	}
	if opts.Username != "svc" || opts.Password != "secret" {
		t.Error("credentials not carried over")
	}
	if opts.ClientID != "vigilant-server-abc" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
}

func TestBuildClientOptions(t *testing.T) {
	po := buildClientOptions(Options{Host: "::1", Port: 1883, ClientID: "id-1"})
	r := pahomqtt.NewOptionsReader(po)

	if r.AutoReconnect() {
		t.Error("AutoReconnect() = true, want false")
	}
	if r.ConnectRetry() {
		t.Error("ConnectRetry() = true, want false")
	}
	if !r.CleanSession() {
		t.Error("CleanSession() = false, want true")
	}
	if r.KeepAlive() != defaultKeepAlive {
		t.Errorf("KeepAlive() = %v, want %v", r.KeepAlive(), defaultKeepAlive)
	}
	if r.ClientID() != "id-1" {
		t.Errorf("ClientID() = %q", r.ClientID())
	}
	if len(r.Servers()) != 1 || r.Servers()[0].String() != "tcp://[::1]:1883" {
		t.Errorf("Servers() = %v", r.Servers())
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceCommand", topics.DeviceCommand("vigilant", "SENS_01"), "vigilant/command/SENS_01"},
		{"CustomNamespace", topics.DeviceCommand("plant-a", "P-7"), "plant-a/command/P-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}
