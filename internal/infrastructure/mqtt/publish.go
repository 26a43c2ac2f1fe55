package mqtt

import (
	"fmt"
)

// maxPayloadSize caps message payloads at 1MB, matching typical broker
// limits.
const maxPayloadSize = 1 << 20

// Publish sends a message to the given topic.
//
// QoS 0 is fire and forget, 1 guarantees delivery with possible
// duplicates, 2 guarantees exactly-once. Retained messages are stored
// by the broker and delivered to new subscribers immediately; use them
// for state topics, not events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
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
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishPowerReading publishes one device's reading to its retained
// power topic with the configured default QoS. This is the poller's
// MQTT sink.
func (c *Client) PublishPowerReading(deviceName string, payload []byte) error {
	return c.Publish(Topics{}.DevicePower(deviceName), payload, byte(c.cfg.QoS), true)
}
