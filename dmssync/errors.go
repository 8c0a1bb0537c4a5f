package dmssync

import "fmt"

// ConfigurationError is run-fatal: missing/unusable DMS credentials or no
// usable inspection template. The run goes straight to failed.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// AdapterError is run-fatal: the DMS fetch itself reported failure.
type AdapterError struct {
	Message string
}

func (e *AdapterError) Error() string {
	return "dms adapter error: " + e.Message
}

// EntityCreationError is booking-scoped: creating or updating a customer,
// vehicle or health check failed for one booking. The orchestrator records
// it and moves on to the next booking.
type EntityCreationError struct {
	Entity string
	Err    error
}

func (e *EntityCreationError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.Entity, e.Err)
}

func (e *EntityCreationError) Unwrap() error {
	return e.Err
}
