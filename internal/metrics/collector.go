package metrics

import (
	"context"
	"time"

	"helpmeout/internal/logging"
)

// StatsProvider supplies the inventory counts exported as gauges.
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// Stats holds the current inventory counts.
type Stats struct {
	Users          int
	Sessions       int
	VideosByStatus map[string]int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	for _, status := range []string{"processing", "completed", "failed"} {
		VideosTotal.WithLabelValues(status).Set(float64(stats.VideosByStatus[status]))
	}
	UsersTotal.Set(float64(stats.Users))
	ActiveSessions.Set(float64(stats.Sessions))

	logging.Debug("Metrics collected: users=%d, sessions=%d, videos=%v",
		stats.Users, stats.Sessions, stats.VideosByStatus)
}
