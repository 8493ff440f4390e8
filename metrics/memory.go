package metrics

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

type MemoryMetrics struct {
	ctx        context.Context
	logger     types.Logger
	counters   sync.Map
	gauges     sync.Map
	histograms sync.Map
	running    int32
}

func NewMemoryMetrics(ctx context.Context, logger types.Logger, _ *types.MetricsConfig) (types.MetricsManager, error) {
	return &MemoryMetrics{
		ctx:    ctx,
		logger: logger,
	}, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := metricKey(name, labels)
	if c, ok := m.counters.Load(key); ok {
		return c.(*MemoryCounter)
	}

	counter := &MemoryCounter{name: name, labels: labels}
	actual, _ := m.counters.LoadOrStore(key, counter)
	return actual.(*MemoryCounter)
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := metricKey(name, labels)
	if g, ok := m.gauges.Load(key); ok {
		return g.(*MemoryGauge)
	}

	gauge := &MemoryGauge{name: name, labels: labels}
	actual, _ := m.gauges.LoadOrStore(key, gauge)
	return actual.(*MemoryGauge)
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := metricKey(name, labels)
	if h, ok := m.histograms.Load(key); ok {
		return h.(*MemoryHistogram)
	}

	histogram := NewMemoryHistogram(name, buckets, labels)
	actual, _ := m.histograms.LoadOrStore(key, histogram)
	return actual.(*MemoryHistogram)
}

func (m *MemoryMetrics) GetMetrics() ([]byte, error) {
	var metrics []types.MetricValue
	now := time.Now()

	m.counters.Range(func(_, value interface{}) bool {
		c := value.(*MemoryCounter)
		metrics = append(metrics, types.MetricValue{
			Name:      c.name,
			Type:      "COUNTER",
			Value:     c.Get(),
			Labels:    c.labels,
			Timestamp: now,
		})
		return true
	})

	m.gauges.Range(func(_, value interface{}) bool {
		g := value.(*MemoryGauge)
		metrics = append(metrics, types.MetricValue{
			Name:      g.name,
			Type:      "GAUGE",
			Value:     g.Get(),
			Labels:    g.labels,
			Timestamp: now,
		})
		return true
	})

	m.histograms.Range(func(_, value interface{}) bool {
		h := value.(*MemoryHistogram)
		metrics = append(metrics, types.MetricValue{
			Name:      h.name,
			Type:      "HISTOGRAM",
			Value:     h.Sum(),
			Labels:    h.labels,
			Timestamp: now,
		})
		return true
	})

	return utils.Marshal(metrics)
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteByte('{')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
		sb.WriteByte('}')
	}
	return sb.String()
}

type MemoryCounter struct {
	name   string
	labels map[string]string
	bits   uint64
}

func (c *MemoryCounter) Inc() {
	c.Add(1)
}

func (c *MemoryCounter) Add(value float64) {
	for {
		old := atomic.LoadUint64(&c.bits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&c.bits, old, next) {
			return
		}
	}
}

func (c *MemoryCounter) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bits))
}

type MemoryGauge struct {
	name   string
	labels map[string]string
	bits   uint64
}

func (g *MemoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.bits, math.Float64bits(value))
}

func (g *MemoryGauge) Inc() {
	g.add(1)
}

func (g *MemoryGauge) Dec() {
	g.add(-1)
}

func (g *MemoryGauge) add(value float64) {
	for {
		old := atomic.LoadUint64(&g.bits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&g.bits, old, next) {
			return
		}
	}
}

func (g *MemoryGauge) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.bits))
}

type MemoryHistogram struct {
	name    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     uint64
	count   uint64
	mu      sync.Mutex
}

func NewMemoryHistogram(name string, buckets []float64, labels map[string]string) *MemoryHistogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &MemoryHistogram{
		name:    name,
		labels:  labels,
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
}

func (h *MemoryHistogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := sort.SearchFloat64s(h.buckets, value)
	h.counts[idx]++
	h.count++
	h.sum = math.Float64bits(math.Float64frombits(h.sum) + value)
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return math.Float64frombits(h.sum)
}

func (h *MemoryHistogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
