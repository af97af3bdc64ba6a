package model

import "context"

// Writer defines a secondary sink that receives every flushed batch row.
type Writer interface {
	// Write persists rows. Implementations must apply merge-add semantics.
	Write(ctx context.Context, rows []BatchRow) error

	Close() error
}
