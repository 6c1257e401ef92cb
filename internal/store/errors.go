package store

import "errors"

// ErrUnknownChannel is returned for a channel name outside Channels.
var ErrUnknownChannel = errors.New("unknown channel")
