package ingest

import "errors"

var (
	// ErrMalformedPayload means the payload failed to decode or validate.
	// The message is dropped and nothing is applied.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrUnknownTopic means the topic is not in the topic table. Inert.
	ErrUnknownTopic = errors.New("ingest: unknown topic")

	// ErrClosed is returned by Enqueue after the ingestor stopped.
	ErrClosed = errors.New("ingest: ingestor closed")
)
