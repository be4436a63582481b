package metrics

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	bolt "go.etcd.io/bbolt"
)

// TemplateStats contains library statistics for metrics
type TemplateStats struct {
	Total     int
	TotalSize int64
}

// TemplateStatsProvider provides library statistics for metrics
type TemplateStatsProvider interface {
	TemplateStats(ctx context.Context) (*TemplateStats, error)
}

var (
	bucketMetrics = []byte("metrics")
	keyCounters   = []byte("counters")
)

// persistedSample is one labelled counter value
type persistedSample struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Collector persists counters across restarts and refreshes gauges
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	templates     TemplateStatsProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector and restores persisted counters
func NewCollector(db *bolt.DB, m *Metrics, templates TemplateStatsProvider, storagePath string, flushInterval time.Duration) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		templates:     templates,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		stopCh:        make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return c.persistCounters()
}

// counters maps persisted metric names to their collectors
func (c *Collector) counters() map[string]prometheus.Collector {
	return map[string]prometheus.Collector{
		"htmlmailer_emails_sent_total":         c.metrics.EmailsSentTotal,
		"htmlmailer_emails_failed_total":       c.metrics.EmailsFailedTotal,
		"htmlmailer_content_rejected_total":    c.metrics.ContentRejectedTotal,
		"htmlmailer_templates_imported_total":  c.metrics.TemplatesImportedTotal,
		"htmlmailer_uploads_rejected_total":    c.metrics.UploadsRejectedTotal,
		"htmlmailer_send_limit_exceeded_total": c.metrics.SendLimitExceededTotal,
	}
}

// loadCounters adds persisted values back onto the fresh counters
func (c *Collector) loadCounters() error {
	var saved map[string][]persistedSample

	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMetrics).Get(keyCounters)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &saved); err != nil {
			saved = nil // Skip invalid data
		}
		return nil
	})
	if err != nil {
		return err
	}

	targets := c.counters()
	for name, samples := range saved {
		switch counter := targets[name].(type) {
		case *prometheus.CounterVec:
			for _, s := range samples {
				if cv, err := counter.GetMetricWith(prometheus.Labels(s.Labels)); err == nil {
					cv.Add(s.Value)
				}
			}
		case prometheus.Counter:
			for _, s := range samples {
				counter.Add(s.Value)
			}
		}
	}

	return nil
}

// persistCounters gathers the current counter values and saves them
func (c *Collector) persistCounters() error {
	families, err := c.metrics.Registry().Gather()
	if err != nil {
		return err
	}

	targets := c.counters()
	saved := make(map[string][]persistedSample)
	for _, mf := range families {
		if _, ok := targets[mf.GetName()]; !ok || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range mf.GetMetric() {
			sample := persistedSample{Value: metric.GetCounter().GetValue()}
			if len(metric.GetLabel()) > 0 {
				sample.Labels = make(map[string]string, len(metric.GetLabel()))
				for _, lp := range metric.GetLabel() {
					sample.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			saved[mf.GetName()] = append(saved[mf.GetName()], sample)
		}
	}

	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetrics).Put(keyCounters, data)
	})
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	persist := time.NewTicker(c.flushInterval)
	defer persist.Stop()
	gauges := time.NewTicker(5 * time.Second)
	defer gauges.Stop()

	c.collectGauges(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-persist.C:
			c.persistCounters()
		case <-gauges.C:
			c.collectGauges(ctx)
		}
	}
}

// collectGauges refreshes system and library gauges
func (c *Collector) collectGauges(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.templates != nil {
		if stats, err := c.templates.TemplateStats(ctx); err == nil {
			c.metrics.TemplatesStored.Set(float64(stats.Total))
			c.metrics.TemplatesStoredBytes.Set(float64(stats.TotalSize))
		}
	}
}
