package model

import "context"

// RecordSource supplies the flow records of one processing cycle.
// This is the interface for the "input layer".
type RecordSource interface {
	// Records returns every record currently available. Records that cannot be
	// decoded are skipped by the source, not reported as errors.
	Records(ctx context.Context) ([]FlowRecord, error)

	// Commit marks the input returned by the last Records call as consumed so it
	// is never read again.
	Commit(ctx context.Context) error

	// Name identifies the source in logs.
	Name() string
}
