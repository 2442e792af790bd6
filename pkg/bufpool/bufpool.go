// Package bufpool provides a refcounted, size-bucketed buffer pool used on
// the hot receive/encode paths to avoid an allocation per datagram.
package bufpool

import "sync"

// Buffer is a pooled byte slice. Callers that hand a Buffer to another
// goroutine (or retain it past the current call) must Retain it first and
// Release it exactly once per Retain/Get.
type Buffer struct {
	data []byte
	refs int32
	pool *Pool
	mu   sync.Mutex
}

// Data returns the buffer's current slice.
func (b *Buffer) Data() []byte {
	return b.data
}

// Retain increments the reference count.
func (b *Buffer) Retain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs++
}

// Release decrements the reference count, returning the buffer to its pool
// once it reaches zero.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refs--
	if b.refs <= 0 && b.pool != nil {
		b.pool.put(b)
	}
}

// Pool manages buffers bucketed by size, the way size-class allocators
// avoid fragmentation: Get rounds up to the smallest bucket that fits.
type Pool struct {
	mu    sync.RWMutex
	pools map[int]*sync.Pool
	sizes []int
}

// New creates a Pool with the given ascending bucket sizes.
func New(sizes []int) *Pool {
	p := &Pool{
		pools: make(map[int]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for _, size := range sizes {
		s := size
		p.pools[size] = &sync.Pool{
			New: func() interface{} {
				return &Buffer{data: make([]byte, s), pool: p}
			},
		}
	}

	return p
}

// DefaultPool buckets around the 1400-octet MTU ceiling: most datagrams fit
// the first bucket, with headroom buckets for DTLS record expansion and
// clipboard payloads up to the 64KiB cap.
func DefaultPool() *Pool {
	return New([]int{1500, 4096, 16384, 65536 + 64})
}

// Get retrieves a buffer sized exactly size, with refs=1. A size larger than
// every bucket gets a freshly allocated buffer that is not returned to the
// pool on Release.
func (p *Pool) Get(size int) *Buffer {
	bucket := p.bucketFor(size)

	p.mu.RLock()
	sp, ok := p.pools[bucket]
	p.mu.RUnlock()

	if !ok || size > bucket {
		return &Buffer{data: make([]byte, size), refs: 1}
	}

	buf := sp.Get().(*Buffer)
	buf.refs = 1
	buf.data = buf.data[:size]
	return buf
}

func (p *Pool) put(buf *Buffer) {
	if buf.pool != p {
		return
	}

	bucket := cap(buf.data)
	p.mu.RLock()
	sp, ok := p.pools[bucket]
	p.mu.RUnlock()
	if !ok {
		return
	}

	buf.refs = 0
	buf.data = buf.data[:cap(buf.data)]
	sp.Put(buf)
}

func (p *Pool) bucketFor(size int) int {
	for _, bucket := range p.sizes {
		if bucket >= size {
			return bucket
		}
	}
	if len(p.sizes) > 0 {
		return p.sizes[len(p.sizes)-1]
	}
	return size
}
