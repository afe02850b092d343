package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// CampaignStatsProvider reports campaign counts per status
type CampaignStatsProvider interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Collector refreshes gauges on an interval
type Collector struct {
	metrics   *Metrics
	campaigns CampaignStatsProvider
	interval  time.Duration
	startTime time.Time
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a gauge collector. campaigns may be nil.
func NewCollector(m *Metrics, campaigns CampaignStatsProvider, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		metrics:   m,
		campaigns: campaigns,
		interval:  interval,
		startTime: time.Now(),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins background collection
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop halts collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect updates all gauges once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.campaigns == nil {
		return
	}
	counts, err := c.campaigns.CountByStatus(ctx)
	if err != nil {
		c.logger.Warn("failed to collect campaign stats", "error", err)
		return
	}
	c.metrics.CampaignsByStatus.Reset()
	for status, n := range counts {
		c.metrics.CampaignsByStatus.WithLabelValues(status).Set(float64(n))
	}
}
