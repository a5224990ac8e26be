package zerocopy

import "slices"

// MinGrowth is the smallest number of bytes a BufferSink adds when it has to
// grow its target.
const MinGrowth = 16

// BufferSink is an OutputStream that writes directly into a caller-owned
// byte slice, appending after its current length.
//
// The sink borrows the slice for its whole lifetime: the owner must not read
// or modify it until Close. While the sink is open the slice header held by
// the owner is stale; Close stores the final header, truncated to exactly
// the bytes written, so the unused capacity handed out by Next is never
// visible to the owner.
type BufferSink struct {
	target *[]byte
	buf    []byte // buf[:pos] is committed, buf[pos:] is free capacity
	start  int
	pos    int
	last   int
	closed bool
}

// NewBufferSink returns a sink appending to *target. Callers must Close the
// sink; WithBufferSink does that on every exit path.
func NewBufferSink(target *[]byte) *BufferSink {
	b := *target
	return &BufferSink{
		target: target,
		buf:    b[:cap(b)],
		start:  len(b),
		pos:    len(b),
	}
}

// WithBufferSink runs fn with a sink over *target and closes the sink when
// fn returns or panics.
func WithBufferSink(target *[]byte, fn func(*BufferSink) error) error {
	s := NewBufferSink(target)
	defer s.Close() //nolint:errcheck // Close never fails
	return fn(s)
}

// Next returns the free capacity after the cursor, growing the buffer first
// when none is left. The whole region counts as written until backed up.
func (s *BufferSink) Next() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos == len(s.buf) {
		s.grow()
	}
	region := s.buf[s.pos:]
	s.last = len(region)
	s.pos = len(s.buf)
	return region, nil
}

// grow at least doubles the committed length, adding no less than MinGrowth.
func (s *BufferSink) grow() {
	grown := slices.Grow(s.buf[:s.pos], max(s.pos, MinGrowth))
	s.buf = grown[:cap(grown)]
}

func (s *BufferSink) BackUp(count int) {
	checkBackUp(count, s.last)
	s.pos -= count
	s.last -= count
}

func (s *BufferSink) ByteCount() int64 {
	return int64(s.pos - s.start)
}

// Close publishes the written bytes to the target slice. It is idempotent.
func (s *BufferSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.last = 0
	*s.target = s.buf[:s.pos]
	return nil
}
