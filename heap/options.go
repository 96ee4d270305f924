package heap

import "go.uber.org/zap"

// config holds the heap's tunables, set via functional Options passed to
// With. The functional-options shape mirrors the constructor-plus-config
// pattern used throughout the pack's allocator constructors (e.g.
// NewOptimizedAllocator(config *Config)), adapted to Go's idiomatic
// variadic-option form since there is no single natural Config struct
// literal callers would want to build by hand.
type config struct {
	blockSize       uintptr
	memSource       MemorySource
	logger          *zap.Logger
	growthThreshold int // trigger a collection once live blocks exceed this count
}

func defaultConfig() config {
	return config{
		blockSize:       DefaultBlockSize,
		memSource:       defaultMemorySource(),
		logger:          noopLogger(),
		growthThreshold: 64,
	}
}

// Option configures a Heap at construction time.
type Option func(*config)

// WithDefaultBlockSize overrides DefaultBlockSize for the allocator
// blocks this heap's mutators create.
func WithDefaultBlockSize(size uintptr) Option {
	return func(c *config) { c.blockSize = size }
}

// WithMemorySource overrides the backing memory source. Defaults to
// MmapMemorySource; HeapMemorySource is never selected automatically.
func WithMemorySource(src MemorySource) Option {
	return func(c *config) { c.memSource = src }
}

// WithLogger attaches a *zap.Logger that receives collection-cycle
// lifecycle events and fatal-error reports. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithGrowthThreshold sets how many retired blocks may accumulate in the
// registry before Mutator.Alloc triggers a collection, mirroring the
// role GOGC plays for the real runtime.
func WithGrowthThreshold(blocks int) Option {
	return func(c *config) { c.growthThreshold = blocks }
}
