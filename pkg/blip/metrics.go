package blip

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics collector.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "blip").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the metrics collector.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the dispatch-duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the Prometheus metrics of one or more engines. Attach a
// collector with the WithMetrics engine option.
type Metrics struct {
	framesSent         prometheus.Counter
	framesReceived     prometheus.Counter
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
	requestsSent       prometheus.Counter
	acksSent           prometheus.Counter
	acksReceived       prometheus.Counter
	frozenMessages     prometheus.Gauge
	requestsDispatched *prometheus.CounterVec
	dispatchDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "blip",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_sent_total",
			Help:        "Total number of frames written to the transport",
			ConstLabels: config.ConstLabels,
		}),

		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_received_total",
			Help:        "Total number of frames read from the transport",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "bytes_sent_total",
			Help:        "Total frame bytes written to the transport",
			ConstLabels: config.ConstLabels,
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "bytes_received_total",
			Help:        "Total frame bytes read from the transport",
			ConstLabels: config.ConstLabels,
		}),

		requestsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "requests_sent_total",
			Help:        "Total number of requests queued for sending",
			ConstLabels: config.ConstLabels,
		}),

		acksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "acks_sent_total",
			Help:        "Total acknowledgment frames queued",
			ConstLabels: config.ConstLabels,
		}),

		acksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "acks_received_total",
			Help:        "Total acknowledgment frames received",
			ConstLabels: config.ConstLabels,
		}),

		frozenMessages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "frozen_messages",
			Help:        "Number of outgoing messages frozen awaiting ACKs",
			ConstLabels: config.ConstLabels,
		}),

		requestsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "requests_dispatched_total",
			Help:        "Total requests dispatched to handlers",
			ConstLabels: config.ConstLabels,
		}, []string{"profile", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "dispatch_duration_seconds",
			Help:        "Handler execution duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"profile"}),
	}
}
