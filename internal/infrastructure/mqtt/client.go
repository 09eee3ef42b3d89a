package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is one live broker session.
//
// A Client never reconnects by itself. When the connection drops it stays
// disconnected and the owner is expected to Close it and Dial again.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	opts   Options
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked sequentially by the paho library in arrival order.
// They should not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Dial opens a connection to the broker described by opts.
//
// It returns once the broker has acknowledged the CONNECT, the connect
// timeout elapses, or ctx is cancelled, whichever happens first.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{opts: opts}

	po := buildClientOptions(opts)
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if opts.OnConnectionLost != nil {
			opts.OnConnectionLost(err)
		}
	})

	c.client = pahomqtt.NewClient(po)
	token := c.client.Connect()
	if err := waitToken(ctx, token, opts.connectTimeout()); err != nil {
		if !token.WaitTimeout(0) {
			// Still in flight. Disconnect aborts the pending attempt.
			c.client.Disconnect(0)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, opts.BrokerURL(), err)
	}

	return c, nil
}

// Close disconnects from the broker. Closing an already dropped connection
// is not an error.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// IsConnected reports whether the session is currently usable.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && c.client.IsConnected()
}

// waitToken blocks until token completes, timeout elapses or ctx is done.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if c.opts.Logger != nil {
					c.opts.Logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if c.opts.Logger != nil {
				c.opts.Logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
