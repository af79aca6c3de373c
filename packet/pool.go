package packet

import "sync"

// Buffer is a single fixed-size packet-sized byte buffer owned by a Pool.
// It carries its own reference count so a Handle can be shared by a
// sender and the retransmission scheduler without copying the payload.
type Buffer struct {
	data [Size]byte
	refs int32
}

// Bytes returns the full backing array as a slice, sized to the wire
// packet size. Callers encode into it with Packet.Encode and trim the
// returned slice to the number of bytes actually written.
func (b *Buffer) Bytes() []byte { return b.data[:] }

// Handle is a reference-counted handle to a pooled Buffer. Copying a
// Handle does not copy the underlying Buffer; use Retain to share it and
// Release when done.
type Handle struct {
	pool *Pool
	buf  *Buffer
}

// Buffer returns the handle's backing buffer.
func (h Handle) Buffer() *Buffer { return h.buf }

// Retain increments the reference count and returns the same handle, so
// a caller handing the buffer to a second owner (e.g. the task scheduler
// holding onto it for retransmission while the sender moves on) can write
// `retained := h.Retain()`.
func (h Handle) Retain() Handle {
	h.pool.retain(h.buf)
	return h
}

// Release decrements the reference count, returning the buffer to its
// pool's free stack once no owner remains.
func (h Handle) Release() {
	h.pool.release(h.buf)
}

// Pool hands out packet-sized buffers from pages allocated in batches, and
// recycles them through a free stack once every owner has released its
// Handle. Grounded on the CS-Node net::PacketPool model: packets are
// expensive to allocate at line rate, so the pool grows page by page and
// otherwise reuses buffers from an explicit free list rather than relying
// on GC churn.
type Pool struct {
	mu    sync.Mutex
	pages [][]Buffer
	free  []*Buffer
}

// PageSize is the number of buffers allocated per growth page.
const PageSize = 2048

// NewPool creates an empty Pool. Buffers are allocated lazily, one page at
// a time, the first time GetFree cannot satisfy a request from the free
// stack.
func NewPool() *Pool {
	return &Pool{}
}

// GetFree returns a Handle to a zeroed buffer with a reference count of
// one. The caller must Release it when done.
func (p *Pool) GetFree() Handle {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.grow()
	}
	n := len(p.free) - 1
	buf := p.free[n]
	p.free = p.free[:n]
	buf.refs = 1
	p.mu.Unlock()
	return Handle{pool: p, buf: buf}
}

// grow allocates one new page of buffers and pushes them all onto the free
// stack. Callers must hold p.mu.
func (p *Pool) grow() {
	page := make([]Buffer, PageSize)
	p.pages = append(p.pages, page)
	for i := range page {
		p.free = append(p.free, &page[i])
	}
}

func (p *Pool) retain(buf *Buffer) {
	p.mu.Lock()
	buf.refs++
	p.mu.Unlock()
}

func (p *Pool) release(buf *Buffer) {
	p.mu.Lock()
	buf.refs--
	if buf.refs <= 0 {
		buf.data = [Size]byte{}
		p.free = append(p.free, buf)
	}
	p.mu.Unlock()
}

// Allocated returns the total number of buffers ever allocated by the
// pool (across all pages), for diagnostics.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages) * PageSize
}
