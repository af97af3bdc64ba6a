package aggregator

import (
	"NetFlowRollup/internal/engine/classifier"
	"NetFlowRollup/internal/engine/router"
	"NetFlowRollup/internal/model"
	"math"
	"sort"

	"golang.org/x/xerrors"
)

// ErrByteOverflow is returned when a record's byte count does not fit the
// signed 64-bit accumulator.
var ErrByteOverflow = xerrors.New("byte count overflows accumulator")

// Stats counts what happened to the records offered to a cache.
type Stats struct {
	Records      int
	Accepted     int
	Unclassified int
	Rejected     int
	Bytes        int64
}

// Add merges o into s.
func (s *Stats) Add(o Stats) {
	s.Records += o.Records
	s.Accepted += o.Accepted
	s.Unclassified += o.Unclassified
	s.Rejected += o.Rejected
	s.Bytes += o.Bytes
}

// Cache accumulates hourly per-address counters for one cycle or one shard.
// A Cache is owned by a single goroutine and is not safe for concurrent use.
type Cache struct {
	entries map[model.AggregationKey]*model.FlowCount
	stats   Stats
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[model.AggregationKey]*model.FlowCount)}
}

// Ingest classifies rec and accumulates it. Unclassified records are dropped.
func (c *Cache) Ingest(rec *model.FlowRecord, inside classifier.Predicate) error {
	c.stats.Records++
	dir := classifier.Classify(rec, inside)
	if dir == model.Unclassified {
		c.stats.Unclassified++
		return nil
	}
	if err := c.Accumulate(rec, dir); err != nil {
		c.stats.Rejected++
		return err
	}
	c.stats.Accepted++
	return nil
}

// Accumulate adds the record's bytes to the counters selected by dir.
// A record that would overflow a counter is rejected and leaves the cache unchanged.
func (c *Cache) Accumulate(rec *model.FlowRecord, dir model.Direction) error {
	if rec.Bytes > math.MaxInt64 {
		return xerrors.Errorf("%d bytes from %s: %w", rec.Bytes, rec.Src, ErrByteOverflow)
	}
	b := int64(rec.Bytes)

	switch dir {
	case model.ExternalInbound:
		key := model.KeyOf(rec.Dst, rec.First)
		if !fits(c.peek(key).ExternalIn, b) {
			return xerrors.Errorf("external_in of %s: %w", key, ErrByteOverflow)
		}
		c.entry(key).ExternalIn += b
	case model.ExternalOutbound:
		key := model.KeyOf(rec.Src, rec.First)
		if !fits(c.peek(key).ExternalOut, b) {
			return xerrors.Errorf("external_out of %s: %w", key, ErrByteOverflow)
		}
		c.entry(key).ExternalOut += b
	case model.InternalBoth:
		inKey := model.KeyOf(rec.Dst, rec.First)
		outKey := model.KeyOf(rec.Src, rec.First)
		if !fits(c.peek(inKey).InternalIn, b) {
			return xerrors.Errorf("internal_in of %s: %w", inKey, ErrByteOverflow)
		}
		if !fits(c.peek(outKey).InternalOut, b) {
			return xerrors.Errorf("internal_out of %s: %w", outKey, ErrByteOverflow)
		}
		c.entry(inKey).InternalIn += b
		c.entry(outKey).InternalOut += b
	default:
		return nil
	}
	c.stats.Bytes += b
	return nil
}

// Len returns the number of distinct keys.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Get returns a copy of the counters for key.
func (c *Cache) Get(key model.AggregationKey) (model.FlowCount, bool) {
	fc, ok := c.entries[key]
	if !ok {
		return model.FlowCount{}, false
	}
	return *fc, true
}

// Stats returns the ingestion counters of the cache.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Rows flattens the cache into batch rows labeled with their partition table.
// The order is stable: by table, date, hour, then address.
func (c *Cache) Rows() []model.BatchRow {
	rows := make([]model.BatchRow, 0, len(c.entries))
	for key, fc := range c.entries {
		rows = append(rows, model.BatchRow{
			Table: router.Table(key.Date),
			Key:   key,
			Count: *fc,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Key.Date != b.Key.Date {
			return a.Key.Date.Before(b.Key.Date)
		}
		if a.Key.Hour != b.Key.Hour {
			return a.Key.Hour < b.Key.Hour
		}
		return a.Key.Addr.Less(b.Key.Addr)
	})
	return rows
}

func (c *Cache) peek(key model.AggregationKey) model.FlowCount {
	if fc, ok := c.entries[key]; ok {
		return *fc
	}
	return model.FlowCount{}
}

func (c *Cache) entry(key model.AggregationKey) *model.FlowCount {
	fc, ok := c.entries[key]
	if !ok {
		fc = &model.FlowCount{}
		c.entries[key] = fc
	}
	return fc
}

func fits(cur, add int64) bool {
	return cur <= math.MaxInt64-add
}
