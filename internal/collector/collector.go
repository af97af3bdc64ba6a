// Package collector wires the configured source, storage, schedule and HTTP
// server into one running service.
package collector

import (
	"NetFlowRollup/internal/api"
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/engine/classifier"
	"NetFlowRollup/internal/engine/manager"
	"NetFlowRollup/internal/factory"
	"NetFlowRollup/internal/metrics"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/notification"
	"NetFlowRollup/internal/pipeline"
	"NetFlowRollup/internal/query"
	"NetFlowRollup/internal/storage/clickhouse"
	"NetFlowRollup/internal/storage/postgres"
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Collector owns every long-lived resource of the service.
type Collector struct {
	store     *postgres.Store
	mirror    model.Writer
	notifier  model.Notifier
	processor *pipeline.Processor
	manager   *manager.Manager
	server    *api.Server
}

// New connects to the configured backends and builds the processing pipeline.
func New(cfg *config.Config, fs afero.Fs) (*Collector, error) {
	src, err := factory.Create(cfg.Source, fs)
	if err != nil {
		return nil, err
	}

	store, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	c := &Collector{store: store, notifier: notification.NopNotifier{}}

	if cfg.ClickHouse.Enabled {
		mirror, err := clickhouse.NewMirror(cfg.ClickHouse)
		if err != nil {
			c.close()
			return nil, err
		}
		c.mirror = mirror
	}
	if cfg.NATS.Enabled {
		n, err := notification.NewNATSNotifier(cfg.NATS)
		if err != nil {
			c.close()
			return nil, err
		}
		c.notifier = n
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewMetrics(reg)
	if err != nil {
		c.close()
		return nil, xerrors.Errorf("failed to register metrics: %w", err)
	}

	c.processor, err = pipeline.New(pipeline.Options{
		Source:    src,
		Store:     store,
		Inside:    classifier.PrefixSet(cfg.Collector.Inside).Contains,
		Supernet:  cfg.Collector.SupernetPrefix,
		Shards:    cfg.Collector.NumShards,
		ChunkSize: cfg.Collector.ChunkSize,
		Timeout:   cfg.Collector.Timeout,
		Mirror:    c.mirror,
		Notifier:  c.notifier,
		Metrics:   m,
	})
	if err != nil {
		c.close()
		return nil, err
	}

	c.manager, err = manager.NewManager(c.processor, cfg.Collector)
	if err != nil {
		c.close()
		return nil, err
	}

	if cfg.API.ListenAddr != "" {
		router := api.NewRouter(c.processor, query.NewPostgresQuerier(store.DB()), reg)
		c.server = api.NewServer(cfg.API.ListenAddr, router)
	}

	log.Printf("Collector initialized: source=%s shards=%d chunk_size=%d inside=%v",
		src.Name(), cfg.Collector.NumShards, cfg.Collector.ChunkSize, cfg.Collector.Inside)
	return c, nil
}

// Start begins serving HTTP and running the schedule.
func (c *Collector) Start() {
	if c.server != nil {
		c.server.Start()
	}
	c.manager.Start()
}

// RunOnce runs maintenance and a single processing cycle.
func (c *Collector) RunOnce(ctx context.Context) error {
	return c.manager.RunOnce(ctx)
}

// Maintain only ensures the partition tables exist.
func (c *Collector) Maintain(ctx context.Context, now time.Time) error {
	_, err := c.processor.RunMaintenance(ctx, now)
	return err
}

// Stop shuts everything down, waiting for a running cycle until ctx is done.
func (c *Collector) Stop(ctx context.Context) {
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			log.Warnf("API server shutdown: %v", err)
		}
	}
	c.manager.Stop(ctx)
	c.close()
}

func (c *Collector) close() {
	c.notifier.Close()
	if c.mirror != nil {
		if err := c.mirror.Close(); err != nil {
			log.Warnf("Closing mirror: %v", err)
		}
	}
	if err := c.store.Close(); err != nil {
		log.Warnf("Closing database: %v", err)
	}
}
