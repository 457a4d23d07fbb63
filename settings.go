package woofdb

import (
	"sync"

	"github.com/jgraettinger/gorocksdb"
	"github.com/prometheus/client_golang/prometheus"
)

// Settings is the process-wide shared block cache and tunables. Mutating
// BlockCacheBytes is only permitted before any database has been opened.
type Settings struct {
	mu sync.Mutex

	// BlockCacheBytes sizes the lazily-created shared LRU block cache.
	// Defaults to 64 MiB.
	BlockCacheBytes uint64

	cache      *gorocksdb.Cache
	cacheOnce  sync.Once
	anyOpened  bool
	metricsReg bool
}

var defaultSettings = &Settings{BlockCacheBytes: 64 << 20}

// GlobalSettings returns the process-wide Settings singleton.
func GlobalSettings() *Settings { return defaultSettings }

// sharedCache lazily constructs the block cache on first use and marks the
// settings as frozen against further BlockCacheBytes changes.
func (s *Settings) sharedCache() *gorocksdb.Cache {
	s.mu.Lock()
	s.anyOpened = true
	s.mu.Unlock()

	s.cacheOnce.Do(func() {
		s.cache = gorocksdb.NewLRUCache(s.BlockCacheBytes)
	})
	return s.cache
}

// SetBlockCacheBytes resizes the shared block cache. It returns
// ErrInvalidArgument if any database has already been opened against this
// process's Settings, since the cache is constructed lazily on first open
// and cannot be resized thereafter without invalidating live handles.
func (s *Settings) SetBlockCacheBytes(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anyOpened {
		return newError(KindInvalidArgument, "block cache size is fixed once a database has been opened", nil)
	}
	s.BlockCacheBytes = n
	return nil
}

// metricsCollector exposes registry/descriptor/lock/log-store gauges.
type metricsCollector struct {
	registry *DescriptorRegistry
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.registry.mu.Lock()
	var openDescriptors = 0
	var liveTxns = 0
	var lockDepth = 0
	var pendingDepth = 0
	var rotations int64
	for _, wp := range c.registry.descriptors {
		if d := wp.Value(); d != nil {
			openDescriptors++
			d.mu.Lock()
			liveTxns += len(d.txns)
			d.mu.Unlock()
			lockDepth += d.locks.depth()

			d.logMu.Lock()
			for _, s := range d.logStores {
				pendingDepth += s.PendingDepth()
				rotations += s.Rotations()
			}
			d.logMu.Unlock()
		}
	}
	c.registry.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(openDescriptorsDesc, prometheus.GaugeValue, float64(openDescriptors))
	ch <- prometheus.MustNewConstMetric(liveTransactionsDesc, prometheus.GaugeValue, float64(liveTxns))
	ch <- prometheus.MustNewConstMetric(lockQueueDepthDesc, prometheus.GaugeValue, float64(lockDepth))
	ch <- prometheus.MustNewConstMetric(logPendingDepthDesc, prometheus.GaugeValue, float64(pendingDepth))
	ch <- prometheus.MustNewConstMetric(logRotationsDesc, prometheus.CounterValue, float64(rotations))
}

var (
	openDescriptorsDesc = prometheus.NewDesc(
		"woofdb_open_descriptors", "Number of live database descriptors.", nil, nil)
	liveTransactionsDesc = prometheus.NewDesc(
		"woofdb_live_transactions", "Number of open transactions across all descriptors.", nil, nil)
	lockQueueDepthDesc = prometheus.NewDesc(
		"woofdb_lock_queue_depth", "Total queued (non-running) lock-table callbacks across all descriptors.", nil, nil)
	logPendingDepthDesc = prometheus.NewDesc(
		"woofdb_log_pending_depth", "Total unflushed batches queued across all transaction log stores.", nil, nil)
	logRotationsDesc = prometheus.NewDesc(
		"woofdb_log_rotations_total", "Total transaction log file rotations across all descriptors.", nil, nil)
)

// RegisterMetrics registers this Settings' registry metrics with the default
// prometheus registry. Calling it twice panics.
func (s *Settings) RegisterMetrics(r *DescriptorRegistry) {
	prometheus.MustRegister(&metricsCollector{registry: r})
}
