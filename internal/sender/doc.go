// Package sender drives the paced transmission of pre-built frame
// batches through a stream or datagram transport.
//
// The pacing schedule is anchored to the session start time (send i
// happens at start + i*batchInterval), so scheduling drift never
// compounds; a slow transport simply eats into later sleep windows.
// Backpressure from a blocking transport is normal operation, never an
// error. Transport failures surface as ConnectionError and end the
// session; reconnect policy belongs to the caller.
package sender
