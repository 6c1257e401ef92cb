// Package store is the bridge's in-memory state: the device's current
// state, one bounded ring buffer per telemetry channel and a free-form
// device status map.
//
// Writers are the message ingestor (via Apply) and the HTTP clear route.
// Readers are HTTP handlers. Every read returns a copy, so callers never
// observe a buffer mid-eviction or a half-applied message.
//
// Nothing is persisted; a restart starts from an empty store.
package store
