package codec

import (
	"bytes"
	"sync"
)

// bytesBufPool reuses buffers for nested binary frames and in-memory
// marshaling. This reduces GC pressure by avoiding frequent allocations.
var bytesBufPool = sync.Pool{
	New: func() any {
		// A 4KB default is chosen to avoid re-allocations for common payload sizes.
		return bytes.NewBuffer(make([]byte, 0, BUFFER_SIZE))
	},
}

// maxPooledBuffer keeps one oversized payload from pinning memory in the pool.
const maxPooledBuffer = 1 << 20

func getBuffer() *bytes.Buffer {
	buf := bytesBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bytesBufPool.Put(buf)
}
