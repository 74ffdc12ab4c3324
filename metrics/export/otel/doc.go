// Package otel bridges gatehouse engine metrics into an OpenTelemetry
// meter via observable instruments and a single registered callback.
package otel
