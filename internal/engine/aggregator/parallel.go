package aggregator

import (
	"NetFlowRollup/internal/engine/classifier"
	"NetFlowRollup/internal/model"
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// cancelCheckEvery bounds how many records a worker handles between context checks.
const cancelCheckEvery = 4096

// AggregateParallel splits records into contiguous shards of near-equal size and
// aggregates each shard into its own cache on its own goroutine. The returned
// caches are independent and are never merged: a key may appear in several of
// them and each must be flushed on its own.
func AggregateParallel(ctx context.Context, records []model.FlowRecord, inside classifier.Predicate, shards int) ([]*Cache, error) {
	bounds := shardBounds(len(records), shards)
	caches := make([]*Cache, len(bounds))

	g, ctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		i, b := i, b
		g.Go(func() error {
			cache := NewCache()
			for j, rec := range records[b[0]:b[1]] {
				if j%cancelCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if err := cache.Ingest(&rec, inside); err != nil {
					log.WithField("shard", i).Warnf("Rejecting record %s -> %s: %v", rec.Src, rec.Dst, err)
				}
			}
			caches[i] = cache
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return caches, nil
}

// Aggregate runs the single-shard path over all records.
func Aggregate(records []model.FlowRecord, inside classifier.Predicate) *Cache {
	cache := NewCache()
	for i := range records {
		if err := cache.Ingest(&records[i], inside); err != nil {
			log.Warnf("Rejecting record %s -> %s: %v", records[i].Src, records[i].Dst, err)
		}
	}
	return cache
}

// shardBounds partitions [0, n) into at most shards contiguous, disjoint,
// non-empty ranges whose sizes differ by at most one.
func shardBounds(n, shards int) [][2]int {
	if n == 0 {
		return nil
	}
	if shards < 1 {
		shards = 1
	}
	if shards > n {
		shards = n
	}
	size, extra := n/shards, n%shards
	bounds := make([][2]int, 0, shards)
	start := 0
	for i := 0; i < shards; i++ {
		end := start + size
		if i < extra {
			end++
		}
		bounds = append(bounds, [2]int{start, end})
		start = end
	}
	return bounds
}

// TotalStats sums the stats of several caches.
func TotalStats(caches []*Cache) Stats {
	var total Stats
	for _, c := range caches {
		total.Add(c.Stats())
	}
	return total
}
