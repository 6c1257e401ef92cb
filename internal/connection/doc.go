// Package connection is the bridge's connection manager: the single owner
// of the broker session and of the connection state machine
//
//	disconnected -> connecting -> connected -> disconnected
//	                connecting -> error -> connecting
//
// Profiles from the broker registry are tried strictly in order; the first
// one that both connects and subscribes wins. If every profile fails the
// manager settles in the error state until Reconnect is called. When
// auto-reconnect is enabled a lost session restarts the sequence from the
// first profile after a short delay.
//
// Connection work happens on one goroutine started by Start. HTTP handlers
// only call Publish, Reconnect, State and Status, none of which block on
// the network while holding the state lock.
package connection
