package optimize

import (
	"sync"
)

// StringSlicePool is a pool for string slices. The scratch directory
// scan runs several times a second and collects file names into a
// slice each pass; pooling the slice avoids churning the allocator.
type StringSlicePool struct {
	pool sync.Pool
	size int
}

// NewStringSlicePool creates a new string slice pool
func NewStringSlicePool(size int) *StringSlicePool {
	return &StringSlicePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]string, 0, size)
			},
		},
	}
}

// Get gets an empty string slice from the pool
func (p *StringSlicePool) Get() []string {
	return p.pool.Get().([]string)
}

// Put returns a string slice to the pool
func (p *StringSlicePool) Put(s []string) {
	if cap(s) <= p.size*2 {
		s = s[:0]
		p.pool.Put(s)
	}
}

// PreAllocateSlice pre-allocates a slice with known capacity
func PreAllocateSlice[T any](length, capacity int) []T {
	if capacity < length {
		capacity = length
	}
	return make([]T, length, capacity)
}
