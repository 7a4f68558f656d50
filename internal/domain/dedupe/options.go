package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*lruDeduper)

// WithMaxSize sets the maximum number of IDs to keep in memory.
// If maxSize > 0 the least recently seen IDs are evicted past it.
// If maxSize <= 0 the deduper is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *lruDeduper) {
		d.maxSize = maxSize
	}
}
