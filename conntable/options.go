package conntable

// defaultBuckets is used when NewTable is called with no WithBuckets
// option. spec.md's Design Notes call for "a power of two with mask
// indexing"; 256 buckets keeps chains short for the expected endpoint
// cardinality of a single service's connection pool.
const defaultBuckets = 256

type tableConfig struct {
	buckets int
}

// Option configures a Table at construction time, following the same
// plain functional-option shape the rest of this module's constructors
// use (e.g. middleware.Middleware chains).
type Option func(*tableConfig)

// WithBuckets sets the table's fixed bucket count. Rounded up to the
// nearest power of two since lookups mask the hash key rather than taking
// a modulus. spec.md's Non-goals explicitly exclude dynamic resizing —
// this is the only sizing knob the table exposes.
func WithBuckets(n int) Option {
	return func(c *tableConfig) { c.buckets = n }
}

func newTableConfig(opts []Option) tableConfig {
	cfg := tableConfig{buckets: defaultBuckets}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.buckets = nextPowerOfTwo(cfg.buckets)
	return cfg
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
