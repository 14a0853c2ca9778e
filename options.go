package vecd

import (
	"log/slog"

	"github.com/hupe1980/vecd/codec"
	"github.com/hupe1980/vecd/scalar"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	scalars          scalar.Store
}

// Option configures DB constructor behavior.
type Option func(*options)

// WithCodec configures the codec used for stored documents and snapshots.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithScalarStore configures where documents are persisted. The default is
// an in-memory store; pass a badger-backed store for durability:
//
//	store, err := scalar.OpenBadger(scalar.DefaultBadgerConfig("./data"))
//	if err != nil { ... }
//	db, err := vecd.New(vecd.WithScalarStore(store))
//
// The DB takes ownership and closes the store on Close.
func WithScalarStore(s scalar.Store) Option {
	return func(o *options) {
		o.scalars = s
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecd.BasicMetricsCollector{}
//	db, _ := vecd.New(vecd.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Upserts: %d, Avg latency: %dns\n", stats.UpsertCount, stats.UpsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecd.NewJSONLogger(slog.LevelInfo)
//	db, _ := vecd.New(vecd.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns ...Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
