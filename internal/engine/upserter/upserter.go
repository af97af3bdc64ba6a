package upserter

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/storage"
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ErrEmptyChunk is returned when an upsert is built for zero rows.
var ErrEmptyChunk = xerrors.New("empty chunk")

// Path names the write strategy used for a chunk.
type Path string

const (
	// PathFast is one multi-row statement against a single table.
	PathFast Path = "fast"
	// PathFallback is one transaction of single-row statements spanning tables.
	PathFallback Path = "fallback"
)

// RowSource is anything that can be flattened into batch rows, such as an
// aggregation cache.
type RowSource interface {
	Rows() []model.BatchRow
}

// ChunkObserver is told about every chunk the upserter attempts.
type ChunkObserver func(path Path, rows int, elapsed time.Duration, err error)

// Result describes the chunks a flush applied.
type Result struct {
	Rows           int
	Chunks         int
	FastChunks     int
	FallbackChunks int
}

// Add merges o into r.
func (r *Result) Add(o Result) {
	r.Rows += o.Rows
	r.Chunks += o.Chunks
	r.FastChunks += o.FastChunks
	r.FallbackChunks += o.FallbackChunks
}

// Upserter writes batch rows into the monthly partition tables in bounded chunks
// using merge-add upserts.
type Upserter struct {
	store     storage.Store
	chunkSize int
	observer  ChunkObserver
}

// New creates an upserter writing chunks of at most chunkSize rows.
func New(store storage.Store, chunkSize int) (*Upserter, error) {
	if chunkSize < 1 || chunkSize > config.MaxChunkRows {
		return nil, xerrors.Errorf("chunk size must be within [1, %d], got %d", config.MaxChunkRows, chunkSize)
	}
	return &Upserter{store: store, chunkSize: chunkSize}, nil
}

// Observe registers fn to be called after every chunk.
func (u *Upserter) Observe(fn ChunkObserver) {
	u.observer = fn
}

// Flush writes every row of src. The first failing chunk aborts the flush; chunks
// written before it stay applied and are reported in the returned Result.
// Flushing the same rows twice adds them twice.
func (u *Upserter) Flush(ctx context.Context, src RowSource) (Result, error) {
	return u.FlushRows(ctx, src.Rows())
}

// FlushRows writes rows in order, chunkSize rows at a time.
func (u *Upserter) FlushRows(ctx context.Context, rows []model.BatchRow) (Result, error) {
	var res Result
	for start := 0; start < len(rows); start += u.chunkSize {
		end := min(start+u.chunkSize, len(rows))
		chunk := rows[start:end]
		index := start / u.chunkSize

		path := PathFallback
		table, same := homogeneous(chunk)
		if same {
			path = PathFast
		}

		began := time.Now()
		var err error
		if same {
			err = u.upsertChunk(ctx, table, chunk)
		} else {
			err = u.upsertFallback(ctx, chunk)
		}
		if u.observer != nil {
			u.observer(path, len(chunk), time.Since(began), err)
		}
		if err != nil {
			return res, xerrors.Errorf("chunk %d (%s path, %d rows): %w", index, path, len(chunk), err)
		}

		res.Rows += len(chunk)
		res.Chunks++
		if same {
			res.FastChunks++
		} else {
			res.FallbackChunks++
			log.WithFields(log.Fields{"chunk": index, "rows": len(chunk)}).Debug("Chunk spanned several tables, used transactional path")
		}
	}
	return res, nil
}

// upsertChunk writes a single-table chunk with one multi-row statement.
func (u *Upserter) upsertChunk(ctx context.Context, table string, chunk []model.BatchRow) error {
	query, err := BuildUpsert(table, len(chunk))
	if err != nil {
		return err
	}
	return u.store.Exec(ctx, query, chunkArgs(chunk)...)
}

// upsertFallback writes a chunk spanning several tables row by row inside one
// transaction, so either every row is applied or none is.
func (u *Upserter) upsertFallback(ctx context.Context, chunk []model.BatchRow) error {
	return u.store.InTx(ctx, func(tx storage.Execer) error {
		for i, row := range chunk {
			query, err := BuildUpsert(row.Table, 1)
			if err != nil {
				return err
			}
			if err := tx.Exec(ctx, query, rowArgs(row)...); err != nil {
				return xerrors.Errorf("row %d (%s into %s): %w", i, row.Key, row.Table, err)
			}
		}
		return nil
	})
}

// homogeneous reports whether every row of chunk targets the same table.
func homogeneous(chunk []model.BatchRow) (string, bool) {
	if len(chunk) == 0 {
		return "", false
	}
	first := chunk[0].Table
	for _, row := range chunk[1:] {
		if row.Table != first {
			return "", false
		}
	}
	return first, true
}
