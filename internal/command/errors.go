package command

import (
	"errors"

	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
)

var (
	// ErrNotConnected is returned when no broker session is live. Nothing is sent.
	ErrNotConnected = connection.ErrNotConnected

	// ErrPublishTimeout is returned when the broker did not acknowledge in time.
	ErrPublishTimeout = mqtt.ErrPublishTimeout

	// ErrInvalidBrightness is returned for a brightness outside 0-255.
	ErrInvalidBrightness = errors.New("command: brightness must be between 0 and 255")

	// ErrInvalidColor is returned for a colour component outside 0-255.
	ErrInvalidColor = errors.New("command: color components must be between 0 and 255")

	// ErrEmptyCommand is returned for an empty command or topic.
	ErrEmptyCommand = errors.New("command: command cannot be empty")

	// ErrTopicNotConfigured is returned when the target topic is not configured.
	ErrTopicNotConfigured = errors.New("command: topic not configured")
)
