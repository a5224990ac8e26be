package zerocopy

import "io"

// SliceInputStream reads from a fixed byte slice without copying it.
type SliceInputStream struct {
	data      []byte
	blockSize int
	pos       int
	last      int
}

// NewSliceInputStream returns a stream over data. By default each Next
// returns all remaining bytes; WithBlockSize limits the region size.
func NewSliceInputStream(data []byte, opts ...StreamOption) *SliceInputStream {
	cfg := newStreamConfig(len(data), opts)
	if cfg.blockSize == 0 {
		cfg.blockSize = 1
	}
	return &SliceInputStream{data: data, blockSize: cfg.blockSize}
}

func (s *SliceInputStream) Next() ([]byte, error) {
	if s.pos >= len(s.data) {
		s.last = 0
		return nil, io.EOF
	}
	n := min(s.blockSize, len(s.data)-s.pos)
	region := s.data[s.pos : s.pos+n]
	s.pos += n
	s.last = n
	return region, nil
}

func (s *SliceInputStream) BackUp(count int) {
	checkBackUp(count, s.last)
	s.pos -= count
	s.last -= count
}

func (s *SliceInputStream) Skip(count int) error {
	if count < 0 {
		panic("zerocopy: Skip with negative count")
	}
	s.last = 0
	if count > len(s.data)-s.pos {
		s.pos = len(s.data)
		return io.EOF
	}
	s.pos += count
	return nil
}

func (s *SliceInputStream) ByteCount() int64 {
	return int64(s.pos)
}

// SliceOutputStream writes into a fixed byte slice. It never grows the
// slice; once full, Next returns ErrBufferFull.
type SliceOutputStream struct {
	data      []byte
	blockSize int
	pos       int
	last      int
}

// NewSliceOutputStream returns a stream writing into data[0:len(data)].
func NewSliceOutputStream(data []byte, opts ...StreamOption) *SliceOutputStream {
	cfg := newStreamConfig(len(data), opts)
	if cfg.blockSize == 0 {
		cfg.blockSize = 1
	}
	return &SliceOutputStream{data: data, blockSize: cfg.blockSize}
}

func (s *SliceOutputStream) Next() ([]byte, error) {
	if s.pos >= len(s.data) {
		s.last = 0
		return nil, ErrBufferFull
	}
	n := min(s.blockSize, len(s.data)-s.pos)
	region := s.data[s.pos : s.pos+n]
	s.pos += n
	s.last = n
	return region, nil
}

func (s *SliceOutputStream) BackUp(count int) {
	checkBackUp(count, s.last)
	s.pos -= count
	s.last -= count
}

func (s *SliceOutputStream) ByteCount() int64 {
	return int64(s.pos)
}

// Bytes returns the written prefix of the underlying slice.
func (s *SliceOutputStream) Bytes() []byte {
	return s.data[:s.pos]
}
