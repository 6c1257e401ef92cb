package connection

import "errors"

var (
	// ErrNotConnected is returned by Publish when the manager is not connected.
	ErrNotConnected = errors.New("connection: not connected to MQTT broker")

	// ErrConnectionFailed wraps the failure of a single broker profile.
	ErrConnectionFailed = errors.New("connection: broker connection failed")

	// ErrAllBrokersFailed is returned when every profile in the registry failed.
	ErrAllBrokersFailed = errors.New("connection: all broker profiles failed")

	// ErrInvalidTransition is returned for a state change outside the allowed edges.
	ErrInvalidTransition = errors.New("connection: invalid state transition")

	// ErrNoBrokers is returned by New for an empty registry.
	ErrNoBrokers = errors.New("connection: no broker profiles configured")

	// ErrClosed is returned to callers waiting on a manager that was closed.
	ErrClosed = errors.New("connection: manager closed")
)
