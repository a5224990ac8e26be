// Package zerocopy provides byte stream abstractions that hand the caller
// memory regions directly instead of copying through an intermediate buffer.
//
// An input stream returns regions to read from; an output stream returns
// regions to write into. In both cases the caller may return the unused tail
// of the last region with BackUp. Streams are not safe for concurrent use.
package zerocopy

import "errors"

// DefaultBlockSize is the buffer size used by the copying adaptors when no
// block size is configured.
const DefaultBlockSize = 8192

var (
	// ErrBufferFull is returned by a fixed-size output stream that has no
	// space left.
	ErrBufferFull = errors.New("zerocopy: output buffer full")

	// ErrClosed is returned by a stream used after Close.
	ErrClosed = errors.New("zerocopy: stream closed")
)

// InputStream is a pull-based stream that returns regions of its own memory.
type InputStream interface {
	// Next returns the next region of data. The region is valid until the
	// next call to any method of the stream. It returns io.EOF once the
	// stream is exhausted; any other error is sticky.
	Next() ([]byte, error)

	// BackUp returns the last count bytes of the region returned by Next
	// so that the following Next returns them again. It panics if count is
	// negative or larger than the bytes handed out and not yet backed up.
	BackUp(count int)

	// Skip discards count bytes. It returns io.EOF if the stream ended
	// before count bytes could be skipped.
	Skip(count int) error

	// ByteCount returns the number of bytes consumed so far.
	ByteCount() int64
}

// OutputStream is a push-based stream that returns regions to write into.
type OutputStream interface {
	// Next returns a writable region. Every byte of the region counts as
	// written unless returned with BackUp before the next call.
	Next() ([]byte, error)

	// BackUp returns the last count bytes of the region returned by Next
	// as unwritten. It panics if count is negative or larger than the bytes
	// handed out and not yet backed up.
	BackUp(count int)

	// ByteCount returns the number of bytes written so far.
	ByteCount() int64
}

// StreamOption configures a stream constructor.
type StreamOption func(*streamConfig)

type streamConfig struct {
	blockSize int
}

// WithBlockSize sets the maximum region size a stream hands out. Values
// less than or equal to zero select the constructor's default.
func WithBlockSize(n int) StreamOption {
	return func(c *streamConfig) { c.blockSize = n }
}

func newStreamConfig(def int, opts []StreamOption) streamConfig {
	cfg := streamConfig{blockSize: def}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.blockSize <= 0 {
		cfg.blockSize = def
	}
	return cfg
}

// checkBackUp enforces the BackUp contract shared by every stream.
func checkBackUp(count, available int) {
	if count < 0 {
		panic("zerocopy: BackUp with negative count")
	}
	if count > available {
		panic("zerocopy: BackUp count exceeds bytes returned by the last Next")
	}
}
