// Package faults defines the error taxonomy shared across the booking
// backend. Handlers decide, based on the error kind, whether a failure is
// surfaced to the caller or logged and acknowledged.
package faults

import "fmt"

// ConfigError marks a missing or invalid piece of static configuration,
// such as a booking option with no price mapping. Not retryable.
type ConfigError struct {
	What string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.What)
}

// SignatureError marks a webhook whose signature could not be verified.
// Nothing from the body may be trusted or persisted.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// UpstreamError marks a non-2xx response from an external API.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Service, e.Status, e.Body)
}

// PersistenceError marks a failed datastore read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
