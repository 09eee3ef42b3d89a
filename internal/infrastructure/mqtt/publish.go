package mqtt

import (
	"context"
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic and waits for the
// broker acknowledgment (QoS 1 and 2) or the hand-off to the network (QoS 0).
//
// ctx bounds the wait; cancelling it returns ctx.Err() wrapped in
// ErrPublishFailed. The message may still reach the broker in that case.
//
// Example:
//
//	topic := mqtt.Topics{}.DeviceCommand("vigilant", "SENS_01")
//	err := client.Publish(ctx, topic, []byte(mqtt.CommandConnect), 1, false)
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// validatePublishTopic rejects topics a broker would refuse for PUBLISH.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: NUL in topic", ErrInvalidTopic)
	}
	return nil
}
