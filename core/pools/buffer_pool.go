package pools

import (
	"sync"
	"sync/atomic"
)

// Buffer tiers used for serialising response heads.
const (
	SmallBufferSize  = 512
	MediumBufferSize = 4 * 1024
	LargeBufferSize  = 16 * 1024
)

// BufferPool hands out reusable byte slices in three size tiers.
type BufferPool struct {
	tiers [3]sync.Pool

	gets    atomic.Uint64
	puts    atomic.Uint64
	dropped atomic.Uint64
}

var tierSizes = [3]int{SmallBufferSize, MediumBufferSize, LargeBufferSize}

// NewBufferPool creates an empty buffer pool.
func NewBufferPool() *BufferPool {
	bp := &BufferPool{}
	for i, size := range tierSizes {
		size := size
		bp.tiers[i].New = func() any {
			buf := make([]byte, 0, size)
			return &buf
		}
	}
	return bp
}

func tierFor(size int) int {
	for i, s := range tierSizes {
		if size <= s {
			return i
		}
	}
	return len(tierSizes) - 1
}

// Get returns an empty buffer with room for at least estimatedSize bytes
// where the tiers allow it.
func (bp *BufferPool) Get(estimatedSize int) *[]byte {
	bp.gets.Add(1)
	return bp.tiers[tierFor(estimatedSize)].Get().(*[]byte)
}

// Put returns buf to the tier matching its capacity. Buffers that outgrew
// the largest tier are left to the GC.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := cap(*buf)
	if c > LargeBufferSize {
		bp.dropped.Add(1)
		return
	}
	*buf = (*buf)[:0]
	bp.puts.Add(1)

	// A buffer joins the largest tier it can fully serve.
	i := len(tierSizes) - 1
	for i > 0 && c < tierSizes[i] {
		i--
	}
	bp.tiers[i].Put(buf)
}

// Stats returns pool counters.
func (bp *BufferPool) Stats() BufferStats {
	return BufferStats{
		Gets:    bp.gets.Load(),
		Puts:    bp.puts.Load(),
		Dropped: bp.dropped.Load(),
	}
}

// BufferStats contains buffer pool counters.
type BufferStats struct {
	Gets    uint64 `json:"gets"`
	Puts    uint64 `json:"puts"`
	Dropped uint64 `json:"dropped"`
}

var globalBufferPool = NewBufferPool()

// AcquireBuffer gets a buffer from the global pool.
func AcquireBuffer(estimatedSize int) *[]byte {
	return globalBufferPool.Get(estimatedSize)
}

// ReleaseBuffer returns a buffer to the global pool.
func ReleaseBuffer(buf *[]byte) {
	globalBufferPool.Put(buf)
}

// GetBufferStats returns statistics for the global buffer pool.
func GetBufferStats() BufferStats {
	return globalBufferPool.Stats()
}
