package hostfuncs

import (
	"bytes"
	"io"
)

// DefaultMaxRequestSize limits the size of incoming guest requests (1MB).
// A guest cannot make the host allocate more by claiming a larger length.
const DefaultMaxRequestSize = 1 * 1024 * 1024

// BoundedBuffer collects a resource body up to a fixed limit. Data past the
// limit is dropped and Truncated is set; a caller treats a truncated body as
// a failed fetch rather than delivering partial data.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{
		limit: limit,
	}
}

// Write implements io.Writer. It never returns a short write, so copying
// into a full buffer keeps draining the source.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.Truncated = true
		if remaining > 0 {
			b.buffer.Write(p[:remaining])
		}
		return len(p), nil
	}
	return b.buffer.Write(p)
}

// ReadFrom implements io.ReaderFrom. Unlike Write it stops reading one byte
// past the limit, so io.Copy from a huge or endless body returns promptly.
func (b *BoundedBuffer) ReadFrom(r io.Reader) (int64, error) {
	remaining := int64(b.limit - b.buffer.Len())
	if remaining < 0 {
		remaining = 0
	}
	n, err := b.buffer.ReadFrom(io.LimitReader(r, remaining+1))
	if b.buffer.Len() > b.limit {
		b.buffer.Truncate(b.limit)
		b.Truncated = true
	}
	return n, err
}

// Bytes returns the buffer contents.
func (b *BoundedBuffer) Bytes() []byte {
	return b.buffer.Bytes()
}

// Len returns the current length of the buffer.
func (b *BoundedBuffer) Len() int {
	return b.buffer.Len()
}

// Reset resets the buffer and clears the Truncated flag.
func (b *BoundedBuffer) Reset() {
	b.buffer.Reset()
	b.Truncated = false
}
