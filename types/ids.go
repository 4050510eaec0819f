package types

import "github.com/google/uuid"

// NewClientID returns a process-unique Client identifier.
func NewClientID() string {
	return uuid.NewString()
}

// NewServerID returns a process-unique Control Server identifier, used
// in log fields to correlate a run's servers.
func NewServerID() string {
	return uuid.NewString()
}
