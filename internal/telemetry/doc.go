// Package telemetry samples process and host memory for the supervisor's
// periodic health line and renders byte counts for humans.
package telemetry
