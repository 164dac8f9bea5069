package blip

import (
	"compress/flate"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCompressionLevel is the flate level used when none is configured.
const DefaultCompressionLevel = flate.DefaultCompression

// config holds engine construction settings.
type config struct {
	logger             *slog.Logger
	compressionLevel   int
	compressionEnabled bool
	metrics            *Metrics
	tracer             trace.Tracer
}

func defaultConfig() config {
	return config{
		logger:             slog.Default(),
		compressionLevel:   DefaultCompressionLevel,
		compressionEnabled: true,
	}
}

// Option configures an Engine.
type Option func(*config)

// WithLogger sets the engine's logger. The engine logs frame traffic at
// Debug, lifecycle events at Info, and benign anomalies at Warn.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCompressionLevel sets the flate level for outgoing compressed
// messages.
func WithCompressionLevel(level int) Option {
	return func(c *config) {
		c.compressionLevel = level
	}
}

// WithCompression enables or disables outgoing compression. When
// disabled, the compressed flag is cleared from every outgoing message;
// incoming compressed messages are still accepted.
func WithCompression(enabled bool) Option {
	return func(c *config) {
		c.compressionEnabled = enabled
	}
}

// WithMetrics attaches a Prometheus metrics collector to the engine.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithTracing enables an OpenTelemetry span around every dispatched
// request, using the named tracer from the global provider.
func WithTracing(tracerName string) Option {
	return func(c *config) {
		c.tracer = otel.Tracer(tracerName)
	}
}
