package mqtt

import "errors"

// Transport errors. Use errors.Is() to check for these in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails or times out.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the broker rejects a publish or the link drops mid-publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrPublishTimeout is returned when no acknowledgement arrives within the publish timeout.
	ErrPublishTimeout = errors.New("mqtt: publish timed out")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTLSConfig is returned when the broker profile's CA file cannot be used.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")
)
