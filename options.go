package vecdir

import (
	"log/slog"

	"github.com/hupe1980/vecdir/blobstore"
	"github.com/hupe1980/vecdir/codec"
)

type options struct {
	compression      codec.Compression
	metricsCollector MetricsCollector
	logger           *Logger
	fileSystem       blobstore.FileSystem
	cacheBytes       int64
	limits           ResourceLimits
}

// Option configures Open and NewDatabase.
type Option func(*options)

// ResourceLimits bounds the backend traffic of a Database. Zero values mean
// unlimited.
type ResourceLimits struct {
	// MaxConcurrentRequests caps in-flight backend calls.
	MaxConcurrentRequests int64

	// BytesPerSec caps backend throughput.
	BytesPerSec int64
}

// WithCompression selects the payload compression used when saving
// collections. Collections written with any compression can always be read.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecdir.BasicMetricsCollector{}
//	db, _ := vecdir.Open(ctx, "./data", vecdir.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Loads: %d, Avg latency: %dns\n", stats.LoadCount, stats.LoadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
//	logger := vecdir.NewJSONLogger(slog.LevelInfo)
//	db, _ := vecdir.Open(ctx, "./data", vecdir.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
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

// WithCacheSize keeps up to bytes of recently read collection blobs in
// memory so repeated GetCollection calls skip the backend.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheBytes = bytes
	}
}

// WithResourceLimits throttles backend calls.
func WithResourceLimits(l ResourceLimits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithFileSystem routes the local backend of Open through fsys, for
// example a wrapper around blobstore.OSFileSystem(). It is ignored by
// NewDatabase.
func WithFileSystem(fsys blobstore.FileSystem) Option {
	return func(o *options) {
		o.fileSystem = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		compression:      codec.None,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
