package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Status is the sink state shown by the health and system endpoints.
type Status struct {
	Enabled     bool   `json:"enabled"`
	Connected   bool   `json:"connected"`
	URL         string `json:"url,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	WriteErrors uint64 `json:"write_errors"`
	LastError   string `json:"last_error,omitempty"`
}

// Client records device measurements in InfluxDB.
//
// Points are queued and sent in batches from a background goroutine, so a
// slow or unreachable server never delays ingestion. Failed batches are
// counted and surface through Status. A nil *Client is a disabled sink.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	cfg    config.InfluxDBConfig

	connected   atomic.Bool
	writeErrors atomic.Uint64

	mu      sync.Mutex
	lastErr string
	onError func(err error)
}

// Connect pings the server and starts the batched writer. It returns
// ErrDisabled when cfg.Enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	ok, err := influx.Ping(pingCtx)
	switch {
	case err != nil:
		influx.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		influx.Close()
		return nil, fmt.Errorf("%w: %s is not ready", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:    cfg,
	}
	c.connected.Store(true)

	// Errors() must be drained or the writer blocks on its first failure.
	go c.drainErrors(c.writer.Errors())

	return c, nil
}

// clientOptions maps the batch settings, falling back to defaults for
// non-positive values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

// drainErrors runs until the writer closes its error channel.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)
		writeErrorsTotal.Inc()

		c.mu.Lock()
		c.lastErr = err.Error()
		cb := c.onError
		c.mu.Unlock()

		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError registers a callback for failed batches.
func (c *Client) SetOnError(cb func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = cb
}

// Close sends queued points and releases the client. Calling it again is a
// no-op.
func (c *Client) Close() error {
	if c == nil || c.influx == nil {
		return nil
	}
	if !c.connected.Swap(false) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server. A nil client reports ErrDisabled.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil {
		return ErrDisabled
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := c.influx.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("pinging influxdb: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb at %s is not ready", c.cfg.URL)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c != nil && c.connected.Load()
}

// Status returns the sink state without touching the network.
func (c *Client) Status() Status {
	if c == nil {
		return Status{}
	}

	c.mu.Lock()
	lastErr := c.lastErr
	c.mu.Unlock()

	return Status{
		Enabled:     true,
		Connected:   c.connected.Load(),
		URL:         c.cfg.URL,
		Bucket:      c.cfg.Bucket,
		WriteErrors: c.writeErrors.Load(),
		LastError:   lastErr,
	}
}
