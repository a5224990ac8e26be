package zerocopy

import "io"

// maxConsecutiveEmptyReads bounds how often a reader may return no data
// and no error before the stream gives up with io.ErrNoProgress.
const maxConsecutiveEmptyReads = 100

// ReaderStream adapts an io.Reader to InputStream. It owns a block-sized
// buffer that the reader fills; regions handed out point into that buffer.
type ReaderStream struct {
	r        io.Reader
	buf      []byte
	filled   int
	backedUp int
	last     int
	position int64
	err      error
}

// NewReaderStream returns an InputStream reading from r.
func NewReaderStream(r io.Reader, opts ...StreamOption) *ReaderStream {
	cfg := newStreamConfig(DefaultBlockSize, opts)
	return &ReaderStream{r: r, buf: make([]byte, cfg.blockSize)}
}

func (s *ReaderStream) Next() ([]byte, error) {
	if s.backedUp > 0 {
		region := s.buf[s.filled-s.backedUp : s.filled]
		s.position += int64(s.backedUp)
		s.last = s.backedUp
		s.backedUp = 0
		return region, nil
	}
	s.last = 0
	if s.err != nil {
		return nil, s.err
	}
	n, err := s.fill()
	if n == 0 {
		s.err = err
		return nil, err
	}
	s.position += int64(n)
	s.last = n
	return s.buf[:n], nil
}

func (s *ReaderStream) BackUp(count int) {
	checkBackUp(count, s.last)
	s.backedUp += count
	s.last -= count
	s.position -= int64(count)
}

func (s *ReaderStream) Skip(count int) error {
	if count < 0 {
		panic("zerocopy: Skip with negative count")
	}
	s.last = 0
	if count <= s.backedUp {
		s.backedUp -= count
		s.position += int64(count)
		return nil
	}
	count -= s.backedUp
	s.position += int64(s.backedUp)
	s.backedUp = 0

	for count > 0 {
		if s.err != nil {
			return s.err
		}
		n, err := s.fill()
		if n == 0 {
			s.err = err
			return err
		}
		if n > count {
			s.backedUp = n - count
			s.position += int64(count)
			return nil
		}
		count -= n
		s.position += int64(n)
	}
	return nil
}

func (s *ReaderStream) ByteCount() int64 {
	return s.position
}

// Close closes the underlying reader if it implements io.Closer.
func (s *ReaderStream) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// fill reads the next block. An error that arrives together with data is
// kept and reported by the following call.
func (s *ReaderStream) fill() (int, error) {
	for range maxConsecutiveEmptyReads {
		n, err := s.r.Read(s.buf)
		if n < 0 || n > len(s.buf) {
			panic("zerocopy: reader returned invalid count")
		}
		if n > 0 {
			s.filled = n
			if err != nil {
				s.err = err
			}
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return 0, io.ErrNoProgress
}

// WriterStream adapts an io.Writer to OutputStream. Regions point into an
// internal block that is pushed to the writer when full or on Flush. The
// first write failure is sticky and aborts every later operation.
type WriterStream struct {
	w        io.Writer
	buf      []byte
	used     int
	last     int
	position int64
	err      error
}

// NewWriterStream returns an OutputStream writing to w.
func NewWriterStream(w io.Writer, opts ...StreamOption) *WriterStream {
	cfg := newStreamConfig(DefaultBlockSize, opts)
	return &WriterStream{w: w, buf: make([]byte, cfg.blockSize)}
}

func (s *WriterStream) Next() ([]byte, error) {
	s.last = 0
	if s.err != nil {
		return nil, s.err
	}
	if s.used == len(s.buf) {
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	region := s.buf[s.used:]
	s.last = len(region)
	s.used = len(s.buf)
	s.position += int64(len(region))
	return region, nil
}

func (s *WriterStream) BackUp(count int) {
	checkBackUp(count, s.last)
	s.used -= count
	s.last -= count
	s.position -= int64(count)
}

func (s *WriterStream) ByteCount() int64 {
	return s.position
}

// Flush pushes buffered bytes to the writer. It does not close the writer.
func (s *WriterStream) Flush() error {
	if s.err != nil {
		return s.err
	}
	return s.flush()
}

// Err returns the sticky write error, if any.
func (s *WriterStream) Err() error {
	return s.err
}

func (s *WriterStream) flush() error {
	s.last = 0
	if s.used == 0 {
		return nil
	}
	n, err := s.w.Write(s.buf[:s.used])
	if err == nil && n < s.used {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = err
		return err
	}
	s.used = 0
	return nil
}
