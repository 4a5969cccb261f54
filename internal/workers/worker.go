package workers

import (
	"context"
)

// Worker is the interface that all workers must implement
type Worker interface {
	// Start begins processing work items
	Start(ctx context.Context) error
	// Stop gracefully stops the worker
	Stop(ctx context.Context) error
	// Name returns the worker's name for logging
	Name() string
}
