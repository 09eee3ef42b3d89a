package mqtt

import (
	"context"
	"fmt"
)

// Subscribe registers a handler for messages matching the topic filter.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "vigilant/+/SENS_01"
//   - # (multi-level): "vigilant/data/#"
//
// The handler is wrapped with panic recovery. Subscriptions are not
// restored after a drop; a new session must subscribe again.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	return nil
}
