// Package pool provides reusable I/O buffers for file copying and
// hashing. Buffers are recycled through sync.Pool so concurrent workers do
// not allocate a fresh copy buffer per file.
package pool

import "sync"

// DefaultBufferSize is the copy buffer size used when the caller does not
// configure one.
const DefaultBufferSize int64 = 1 << 20 // 1 MiB

// Buffers hands out byte slices of a single fixed size.
type Buffers struct {
	size int64
	pool sync.Pool
}

// NewBuffers creates a pool of size-byte buffers. Non-positive sizes fall
// back to DefaultBufferSize.
func NewBuffers(size int64) *Buffers {
	if size <= 0 {
		size = DefaultBufferSize
	}
	b := &Buffers{size: size}
	b.pool.New = func() any {
		buf := make([]byte, int(size))
		return &buf
	}
	return b
}

// Size returns the length of the buffers this pool hands out.
func (b *Buffers) Size() int64 { return b.size }

// Get retrieves a buffer. The returned slice always has its full length.
func (b *Buffers) Get() *[]byte {
	buf := b.pool.Get().(*[]byte)
	*buf = (*buf)[:cap(*buf)]
	return buf
}

// Put returns a buffer to the pool. Buffers of a different size are
// dropped rather than pooled.
func (b *Buffers) Put(buf *[]byte) {
	if buf == nil || int64(cap(*buf)) != b.size {
		return
	}
	b.pool.Put(buf)
}
