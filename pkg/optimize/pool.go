package optimize

import (
	"bytes"
	"sync"
)

// BufferPool is a pool of byte buffers used for assembling frame
// payloads before they hit the wire. JPEG frames arrive several times
// a second and every viewer gets its own copy, so buffer reuse keeps
// allocation pressure down on the broadcast path.
type BufferPool struct {
	pool   sync.Pool
	maxCap int
}

// NewBufferPool creates a buffer pool. Buffers whose capacity grew
// beyond maxCap are dropped instead of pooled.
func NewBufferPool(maxCap int) *BufferPool {
	return &BufferPool{
		maxCap: maxCap,
		pool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get gets an empty buffer from the pool
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets the buffer and returns it to the pool
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > p.maxCap {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
