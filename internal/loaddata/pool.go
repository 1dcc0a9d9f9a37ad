package loaddata

import "sync"

// frameBuffer is a pooled byte region the stream writer encodes rows into.
//
// Contract:
//   - The owning load writes into b.B[0:len(b.B)] only (no growth).
//   - The load must call Free on every exit path, error paths included.
//   - Do not retain b or b.B after Free.
type frameBuffer struct {
	B []byte
}

var framePool sync.Pool

// getFrameBuffer returns a pooled buffer whose length is exactly size. Pooled
// buffers that are too small are dropped and replaced.
func getFrameBuffer(size int) *frameBuffer {
	if v := framePool.Get(); v != nil {
		b := v.(*frameBuffer)
		if cap(b.B) >= size {
			b.B = b.B[:size]
			return b
		}
	}
	return &frameBuffer{B: make([]byte, size)}
}

// Free returns the buffer to the pool. The caller must not use b after Free.
func (b *frameBuffer) Free() {
	framePool.Put(b)
}
