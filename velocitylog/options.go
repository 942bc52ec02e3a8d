package velocitylog

import "go.uber.org/zap"

// Options configures an LSMTree. Zero fields take the Default* values.
type Options struct {
	BitsPerKey        int                // Bloom filter bits per key for every SSTable written.
	MaxMemtableSize   int64              // Memtable size in bytes before it is flushed to an SSTable.
	MaxTablesPerLevel int                // Tables a level may hold before it is compacted.
	RecoverFromWAL    bool               // Replay the WAL into the memtable on Open.
	SyncWAL           bool               // fsync the WAL on every write.
	Logger            *zap.SugaredLogger // Defaults to a no-op logger.
}

// Option mutates Options. Options are applied in order.
type Option func(*Options)

func WithBitsPerKey(bitsPerKey int) Option {
	return func(o *Options) { o.BitsPerKey = bitsPerKey }
}

func WithMaxMemtableSize(size int64) Option {
	return func(o *Options) { o.MaxMemtableSize = size }
}

func WithMaxTablesPerLevel(n int) Option {
	return func(o *Options) { o.MaxTablesPerLevel = n }
}

func WithRecoveryFromWAL(enabled bool) Option {
	return func(o *Options) { o.RecoverFromWAL = enabled }
}

func WithWALSync(enabled bool) Option {
	return func(o *Options) { o.SyncWAL = enabled }
}

// WithLogger sets the logger. The tree logs under the "velocitylog" name.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = log }
}

func newOptions(opts ...Option) Options {
	o := Options{SyncWAL: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BitsPerKey <= 0 {
		o.BitsPerKey = DefaultBitsPerKey
	}
	if o.MaxMemtableSize <= 0 {
		o.MaxMemtableSize = DefaultMaxMemtableSize
	}
	if o.MaxTablesPerLevel < 2 {
		o.MaxTablesPerLevel = DefaultMaxTablesPerLevel
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	o.Logger = o.Logger.Named("velocitylog")
	return o
}
