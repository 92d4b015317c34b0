package kstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics are the Prometheus collectors shared by metered stores.
// Labels: scope (the supplier's MetricsScope), store, task, op.
type StoreMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewStoreMetrics registers the store collectors on reg. Collectors already
// registered by an earlier call are reused.
func NewStoreMetrics(reg prometheus.Registerer) (*StoreMetrics, error) {
	m := &StoreMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kstreams",
			Subsystem: "state_store",
			Name:      "operations_total",
			Help:      "Total number of state store operations",
		}, []string{"scope", "store", "task", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kstreams",
			Subsystem: "state_store",
			Name:      "errors_total",
			Help:      "Total number of failed state store operations",
		}, []string{"scope", "store", "task", "op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kstreams",
			Subsystem: "state_store",
			Name:      "operation_duration_seconds",
			Help:      "State store operation latency in seconds",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"scope", "store", "task", "op"}),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			if existing, ok := alreadyRegErr.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register state store metrics: %w", err)
	}
	return c, nil
}

// observer records operations of one store instance.
type observer struct {
	metrics *StoreMetrics
	scope   string
	store   string
	task    string
}

func (o *observer) bind(ctx kprocessor.StateStoreContext) {
	o.task = ctx.TaskID().String()
}

func (o *observer) observe(op string, start time.Time, err error) {
	o.metrics.operations.WithLabelValues(o.scope, o.store, o.task, op).Inc()
	o.metrics.latency.WithLabelValues(o.scope, o.store, o.task, op).Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.errors.WithLabelValues(o.scope, o.store, o.task, op).Inc()
	}
}

// MeteredKeyValueBytesStore records count, failures and latency of every
// operation of the wrapped store.
// Matches Kafka Streams' MeteredKeyValueStore
type MeteredKeyValueBytesStore struct {
	KeyValueBytesStore
	obs observer
}

func NewMeteredKeyValueBytesStore(inner KeyValueBytesStore, metrics *StoreMetrics, scope string) *MeteredKeyValueBytesStore {
	return &MeteredKeyValueBytesStore{
		KeyValueBytesStore: inner,
		obs:                observer{metrics: metrics, scope: scope, store: inner.Name()},
	}
}

func (m *MeteredKeyValueBytesStore) Unwrap() StateStore {
	return m.KeyValueBytesStore
}

func (m *MeteredKeyValueBytesStore) Init(ctx kprocessor.StateStoreContext) error {
	m.obs.bind(ctx)
	return m.KeyValueBytesStore.Init(ctx)
}

func (m *MeteredKeyValueBytesStore) Get(key Bytes) (v []byte, err error) {
	defer func(start time.Time) { m.obs.observe("get", start, err) }(time.Now())
	return m.KeyValueBytesStore.Get(key)
}

func (m *MeteredKeyValueBytesStore) Put(key Bytes, value []byte) (err error) {
	defer func(start time.Time) { m.obs.observe("put", start, err) }(time.Now())
	return m.KeyValueBytesStore.Put(key, value)
}

func (m *MeteredKeyValueBytesStore) PutIfAbsent(key Bytes, value []byte) (v []byte, err error) {
	defer func(start time.Time) { m.obs.observe("put_if_absent", start, err) }(time.Now())
	return m.KeyValueBytesStore.PutIfAbsent(key, value)
}

func (m *MeteredKeyValueBytesStore) PutAll(entries []KeyValue[Bytes, []byte]) (err error) {
	defer func(start time.Time) { m.obs.observe("put_all", start, err) }(time.Now())
	return m.KeyValueBytesStore.PutAll(entries)
}

func (m *MeteredKeyValueBytesStore) Delete(key Bytes) (v []byte, err error) {
	defer func(start time.Time) { m.obs.observe("delete", start, err) }(time.Now())
	return m.KeyValueBytesStore.Delete(key)
}

func (m *MeteredKeyValueBytesStore) Range(from, to Bytes) (it KeyValueIterator[Bytes, []byte], err error) {
	defer func(start time.Time) { m.obs.observe("range", start, err) }(time.Now())
	return m.KeyValueBytesStore.Range(from, to)
}

func (m *MeteredKeyValueBytesStore) All() (it KeyValueIterator[Bytes, []byte], err error) {
	defer func(start time.Time) { m.obs.observe("all", start, err) }(time.Now())
	return m.KeyValueBytesStore.All()
}

func (m *MeteredKeyValueBytesStore) Flush(ctx context.Context) (err error) {
	defer func(start time.Time) { m.obs.observe("flush", start, err) }(time.Now())
	return m.KeyValueBytesStore.Flush(ctx)
}

// MeteredWindowBytesStore is the window store counterpart of
// MeteredKeyValueBytesStore.
type MeteredWindowBytesStore struct {
	WindowBytesStore
	obs observer
}

func NewMeteredWindowBytesStore(inner WindowBytesStore, metrics *StoreMetrics, scope string) *MeteredWindowBytesStore {
	return &MeteredWindowBytesStore{
		WindowBytesStore: inner,
		obs:              observer{metrics: metrics, scope: scope, store: inner.Name()},
	}
}

func (m *MeteredWindowBytesStore) Unwrap() StateStore {
	return m.WindowBytesStore
}

func (m *MeteredWindowBytesStore) Init(ctx kprocessor.StateStoreContext) error {
	m.obs.bind(ctx)
	return m.WindowBytesStore.Init(ctx)
}

func (m *MeteredWindowBytesStore) Put(key Bytes, value []byte, windowStart int64) (err error) {
	defer func(start time.Time) { m.obs.observe("put", start, err) }(time.Now())
	return m.WindowBytesStore.Put(key, value, windowStart)
}

func (m *MeteredWindowBytesStore) Get(key Bytes, windowStart int64) (v []byte, err error) {
	defer func(start time.Time) { m.obs.observe("get", start, err) }(time.Now())
	return m.WindowBytesStore.Get(key, windowStart)
}

func (m *MeteredWindowBytesStore) Fetch(key Bytes, timeFrom, timeTo int64) (it KeyValueIterator[int64, []byte], err error) {
	defer func(start time.Time) { m.obs.observe("fetch", start, err) }(time.Now())
	return m.WindowBytesStore.Fetch(key, timeFrom, timeTo)
}

func (m *MeteredWindowBytesStore) FetchAll(timeFrom, timeTo int64) (it KeyValueIterator[Windowed[Bytes], []byte], err error) {
	defer func(start time.Time) { m.obs.observe("fetch_all", start, err) }(time.Now())
	return m.WindowBytesStore.FetchAll(timeFrom, timeTo)
}

func (m *MeteredWindowBytesStore) Flush(ctx context.Context) (err error) {
	defer func(start time.Time) { m.obs.observe("flush", start, err) }(time.Now())
	return m.WindowBytesStore.Flush(ctx)
}

var (
	_ KeyValueBytesStore = (*MeteredKeyValueBytesStore)(nil)
	_ WindowBytesStore   = (*MeteredWindowBytesStore)(nil)
)
