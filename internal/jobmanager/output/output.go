// Package output accumulates the combined output of a build process.
// Callers either take snapshots of the full text or subscribe readers that
// each receive the complete output from the beginning.
package output

import (
	"bytes"
	"io"
	"sync"
)

// initialBufferCapacity is the starting size for the output buffer. Driver
// runs log a few KB before compiling anything.
const initialBufferCapacity = 8192

// Buffer is an append-only text accumulator. Carriage returns are dropped
// on write, so the text only ever contains '\n' line endings. The buffer
// grows indefinitely and is never truncated.
type Buffer struct {
	// NOTE: no upper bound; a build log is assumed to fit in memory.
	buffer []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	cond      sync.Cond
}

// NewBuffer creates an empty Buffer ready for writing.
func NewBuffer() *Buffer {
	b := &Buffer{
		buffer: make([]byte, 0, initialBufferCapacity),
		done:   make(chan struct{}),
	}

	b.cond.L = &b.mu

	return b
}

// Append strips carriage returns from p, appends the result and returns the
// full text accumulated so far.
func (b *Buffer) Append(p []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = appendWithoutCR(b.buffer, p)

	b.cond.Broadcast()

	return string(b.buffer)
}

// Write implements io.Writer. It always reports len(p) bytes written, even
// though carriage returns are not stored.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)

	return len(p), nil
}

// String returns the full text accumulated so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return string(b.buffer)
}

// Close marks the buffer as complete. Subscribed readers return io.EOF once
// they've consumed everything. Safe to call more than once.
func (b *Buffer) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		close(b.done)
		b.cond.Broadcast()
		b.mu.Unlock()
	})

	return nil
}

// Subscribe returns an io.ReadCloser that reads all output from the start
// and blocks waiting for more until the Buffer is closed. Close cancels the
// subscription.
func (b *Buffer) Subscribe() io.ReadCloser {
	return &reader{b: b}
}

// Done returns a channel that is closed when the Buffer is closed.
func (b *Buffer) Done() <-chan struct{} {
	return b.done
}

func (b *Buffer) isDone() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func appendWithoutCR(dst, p []byte) []byte {
	for {
		i := bytes.IndexByte(p, '\r')
		if i < 0 {
			return append(dst, p...)
		}

		dst = append(dst, p[:i]...)
		p = p[i+1:]
	}
}
