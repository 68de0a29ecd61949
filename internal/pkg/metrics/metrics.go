package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AssetMetrics exports asset pipeline counters. A nil *AssetMetrics is a no-op.
type AssetMetrics struct {
	duration    *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	uploadBytes prometheus.Counter
	deletes     prometheus.Counter
}

func NewAssetMetrics(reg prometheus.Registerer) (*AssetMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &AssetMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assets",
			Name:      "operation_duration_seconds",
			Help:      "Latency of asset pipeline operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assets",
			Name:      "operation_errors_total",
			Help:      "Count of failed asset pipeline operations.",
		}, []string{"operation"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assets",
			Name:      "uploaded_total",
			Help:      "Assets committed, by classification.",
		}, []string{"type"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "assets",
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative size of committed primary files.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "assets",
			Name:      "deleted_total",
			Help:      "Assets hard-deleted.",
		}),
	}

	var err error
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.uploads, err = register(reg, m.uploads); err != nil {
		return nil, err
	}
	if m.uploadBytes, err = register(reg, m.uploadBytes); err != nil {
		return nil, err
	}
	if m.deletes, err = register(reg, m.deletes); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the collector already registered under the same
// descriptor, so building the metrics twice on one registry is fine.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register asset metric: %w", err)
	}
	return c, nil
}

func (m *AssetMetrics) RecordUpload(assetType string, size int64, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues("upload").Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues("upload").Inc()
		return
	}
	m.uploads.WithLabelValues(assetType).Inc()
	m.uploadBytes.Add(float64(size))
}

func (m *AssetMetrics) RecordDelete(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues("delete").Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues("delete").Inc()
		return
	}
	m.deletes.Inc()
}
