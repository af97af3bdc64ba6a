// Package pipeline runs the processing and maintenance cycles of the collector.
package pipeline

import (
	"NetFlowRollup/internal/engine/aggregator"
	"NetFlowRollup/internal/engine/classifier"
	"NetFlowRollup/internal/engine/maintainer"
	"NetFlowRollup/internal/engine/upserter"
	"NetFlowRollup/internal/metrics"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/notification"
	"NetFlowRollup/internal/storage"
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Options wires a Processor. Source, Store and Inside are required.
type Options struct {
	Source    model.RecordSource
	Store     storage.Store
	Inside    classifier.Predicate
	Supernet  netip.Prefix
	Shards    int
	ChunkSize int

	// Timeout bounds one whole processing cycle. Zero means no bound.
	Timeout time.Duration

	Mirror   model.Writer     // optional
	Notifier model.Notifier   // optional
	Metrics  *metrics.Metrics // optional
	Clock    func() time.Time // measures cycle duration; defaults to time.Now
}

// Processor turns the records of a source into merged hourly rows.
type Processor struct {
	source     model.RecordSource
	inside     classifier.Predicate
	shards     int
	timeout    time.Duration
	upserter   *upserter.Upserter
	maintainer *maintainer.Maintainer
	mirror     model.Writer
	notifier   model.Notifier
	metrics    *metrics.Metrics
	clock      func() time.Time

	mu      sync.Mutex
	last    model.CycleReport
	hasLast bool
}

// New creates a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Source == nil || opts.Store == nil || opts.Inside == nil {
		return nil, xerrors.New("pipeline: source, store and inside predicate are required")
	}
	if opts.Shards < 1 {
		return nil, xerrors.Errorf("pipeline: shards must be >= 1, got %d", opts.Shards)
	}
	up, err := upserter.New(opts.Store, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	p := &Processor{
		source:     opts.Source,
		inside:     opts.Inside,
		shards:     opts.Shards,
		timeout:    opts.Timeout,
		upserter:   up,
		maintainer: maintainer.New(opts.Store, opts.Supernet),
		mirror:     opts.Mirror,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
	}
	if p.notifier == nil {
		p.notifier = notification.NopNotifier{}
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.metrics != nil {
		up.Observe(p.metrics.ObserveChunk)
	}
	return p, nil
}

// RunCycle reads every available record, aggregates them in parallel shards and
// merges the shard caches into storage one after another. Input is committed
// once flushing has begun, even when a flush fails, so every file is merged at
// most once. A cycle that fails before flushing leaves its input to be read
// again.
func (p *Processor) RunCycle(ctx context.Context, now time.Time) (model.CycleReport, error) {
	report := model.CycleReport{Source: p.source.Name(), StartedAt: now}
	err := p.runCycle(ctx, &report)
	report.Duration = p.clock().Sub(now)
	if err != nil {
		report.Error = err.Error()
	}
	p.finish(ctx, report, err)
	return report, err
}

func (p *Processor) runCycle(ctx context.Context, report *model.CycleReport) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	records, err := p.source.Records(ctx)
	if err != nil {
		return xerrors.Errorf("read records: %w", err)
	}
	report.Records = len(records)
	if len(records) == 0 {
		// Files that yielded nothing still have to be retired.
		return p.commit(ctx)
	}

	caches, err := aggregator.AggregateParallel(ctx, records, p.inside, p.shards)
	if err != nil {
		return xerrors.Errorf("aggregate: %w", err)
	}
	stats := aggregator.TotalStats(caches)
	report.Shards = len(caches)
	report.Accepted = stats.Accepted
	report.Unclassified = stats.Unclassified
	report.Rejected = stats.Rejected
	report.Bytes = stats.Bytes
	if stats.Rejected > 0 {
		log.Warnf("Rejected %d records whose bytes would overflow a counter", stats.Rejected)
	}

	var res upserter.Result
	for i, cache := range caches {
		r, err := p.upserter.Flush(ctx, cache)
		res.Add(r)
		p.fill(report, res)
		if err != nil {
			err = xerrors.Errorf("flush shard %d: %w", i, err)
			// Chunks merged before the failure must not be sent again, so the
			// input is retired and the unflushed rest of the cycle is lost.
			if cerr := p.commit(context.WithoutCancel(ctx)); cerr != nil {
				log.Errorf("Retiring input of failed cycle: %v", cerr)
			}
			return err
		}
	}

	if p.mirror != nil {
		p.writeMirror(ctx, caches)
	}
	return p.commit(ctx)
}

func (p *Processor) fill(report *model.CycleReport, res upserter.Result) {
	report.Rows = res.Rows
	report.Chunks = res.Chunks
	report.FastChunks = res.FastChunks
	report.FallbackChunks = res.FallbackChunks
}

// writeMirror copies the flushed rows to the secondary store. PostgreSQL stays
// authoritative: a mirror failure is logged and does not fail the cycle.
func (p *Processor) writeMirror(ctx context.Context, caches []*aggregator.Cache) {
	for i, cache := range caches {
		if err := p.mirror.Write(ctx, cache.Rows()); err != nil {
			log.Errorf("Mirror write of shard %d failed: %v", i, err)
			return
		}
	}
}

func (p *Processor) commit(ctx context.Context) error {
	if err := p.source.Commit(ctx); err != nil {
		return xerrors.Errorf("commit source: %w", err)
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, report model.CycleReport, err error) {
	p.mu.Lock()
	p.last = report
	p.hasLast = true
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ObserveCycle(report, err)
	}

	entry := log.WithFields(log.Fields{
		"source":   report.Source,
		"records":  report.Records,
		"rows":     report.Rows,
		"chunks":   report.Chunks,
		"fallback": report.FallbackChunks,
		"duration": report.Duration.Round(time.Millisecond),
	})
	if err != nil {
		entry.Errorf("Cycle failed: %v", err)
	} else if report.Records > 0 {
		entry.Infof("Cycle merged %s records (%s)", humanize.Comma(int64(report.Records)), humanize.Bytes(uint64(report.Bytes)))
	} else {
		entry.Debug("Cycle found no records")
	}

	if report.Records == 0 && err == nil {
		return
	}
	if nerr := p.notifier.Notify(ctx, report); nerr != nil {
		log.Warnf("Failed to publish cycle report: %v", nerr)
	}
}

// RunMaintenance makes sure the partition tables of the month of now and of the
// following month exist.
func (p *Processor) RunMaintenance(ctx context.Context, now time.Time) ([]string, error) {
	created, err := p.maintainer.EnsurePartitions(ctx, now)
	if p.metrics != nil {
		p.metrics.ObserveMaintenance(len(created), err)
	}
	if err != nil {
		return created, xerrors.Errorf("partition maintenance: %w", err)
	}
	return created, nil
}

// LastReport returns the report of the most recent cycle.
func (p *Processor) LastReport() (model.CycleReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}
