package output

import (
	"io"
	"sync/atomic"
)

// reader reads from a Buffer, tracking its own position and waiting for new
// data as it arrives. Safe for concurrent use.
type reader struct {
	position int
	closed   atomic.Bool

	b *Buffer
}

// Read performs a blocking read from the Buffer. When everything has been
// read and the Buffer is closed, it returns io.EOF.
func (r *reader) Read(p []byte) (int, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	// Broadcast is called on 'more data' and on 'close' of either side.
	for r.position >= len(r.b.buffer) && !r.isFinished() {
		r.b.cond.Wait()
	}

	if r.isFinished() {
		return 0, io.EOF
	}

	n := copy(p, r.b.buffer[r.position:])

	r.position += n

	return n, nil
}

// Close unsubscribes the reader and wakes any blocked Read. Closing twice
// returns io.ErrClosedPipe.
func (r *reader) Close() error {
	if r.closed.Swap(true) {
		return io.ErrClosedPipe
	}

	r.b.mu.Lock()
	r.b.cond.Broadcast()
	r.b.mu.Unlock()

	return nil
}

func (r *reader) isFinished() bool {
	return r.closed.Load() || (r.b.isDone() && r.position >= len(r.b.buffer))
}
