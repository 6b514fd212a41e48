// Package buffer pools the fixed-size chunks the relay moves bytes in.
// The chunk is the granularity at which throttling decisions are made.
package buffer

import "sync"

const DefaultChunkSize = 4096

var (
	ChunkSize = DefaultChunkSize
	pool      = newPool(DefaultChunkSize)
)

func newPool(size int) *sync.Pool {
	return &sync.Pool{New: func() any { b := make([]byte, size); return &b }}
}

// Initialize replaces the pool with one of the given chunk size.
// Call before any relays start; buffers already pooled are discarded.
func Initialize(size int) {
	ChunkSize = size
	pool = newPool(size)
}

func Get() *[]byte  { return pool.Get().(*[]byte) }
func Put(b *[]byte) { pool.Put(b) }
