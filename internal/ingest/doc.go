// Package ingest decodes inbound MQTT messages and folds them into the
// state store.
//
// Every subscribed topic maps to a Kind. Decode turns a payload into one
// tagged variant (StateMessage, WeatherData, ScalarReading, MotionReading,
// ColorMessage, StatusMessage, CommandEcho) and each variant produces a
// single store.Update that is applied atomically. A payload that fails
// validation is logged, counted and dropped without touching the store;
// other messages keep flowing.
package ingest
