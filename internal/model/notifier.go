package model

import "context"

// Notifier publishes a report after each processing cycle.
type Notifier interface {
	Notify(ctx context.Context, report CycleReport) error
	Close()
}
