// Package command publishes device commands: power on/off, brightness,
// colour, a best-effort toggle, and raw publishes to any topic.
//
// Every operation first checks that the connection manager is connected
// and fails with ErrNotConnected otherwise, without sending anything.
// Publishes are synchronous with a bounded wait and are never retried.
package command
