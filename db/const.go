package db

import "time"

const (
	activationsCollection = "activations"

	// defaultTimeout bounds every single database operation.
	defaultTimeout = 10 * time.Second

	// DefaultRetention is how long journal entries are kept.
	DefaultRetention = 90 * 24 * time.Hour
)
