package api

import (
	"bytes"
	"sync"
)

// bufferPool reuses request body buffers. Image prompts carry base64 payloads,
// so bodies are large and allocated once per generator call.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// getBuffer retrieves a reset buffer; pair every call with putBuffer
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns buf to the pool unless it grew past maxPooledBuffer
func putBuffer(buf *bytes.Buffer) {
	const maxPooledBuffer = 8 << 20 // one downscaled product photo plus prompt
	if buf.Cap() <= maxPooledBuffer {
		bufferPool.Put(buf)
	}
}
