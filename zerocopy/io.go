package zerocopy

import (
	"errors"
	"io"
)

// WriteAll copies p into out region by region, backing up the unused tail
// of the final region.
func WriteAll(out OutputStream, p []byte) error {
	for len(p) > 0 {
		region, err := out.Next()
		if err != nil {
			return err
		}
		if len(region) == 0 {
			return io.ErrShortWrite
		}
		n := copy(region, p)
		p = p[n:]
		if n < len(region) {
			out.BackUp(len(region) - n)
		}
	}
	return nil
}

// Copy moves everything from in to out and returns the number of bytes
// copied. Reaching the end of in is not an error.
func Copy(out OutputStream, in InputStream) (int64, error) {
	var total int64
	for {
		chunk, err := in.Next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if err := WriteAll(out, chunk); err != nil {
			return total, err
		}
		total += int64(len(chunk))
	}
}

// NewReader returns an io.Reader draining in. Bytes the caller does not
// consume from a region are backed up into the stream.
func NewReader(in InputStream) io.Reader {
	return &streamReader{in: in}
}

type streamReader struct {
	in InputStream
}

func (r *streamReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk, err := r.in.Next()
	if err != nil {
		return 0, err
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		r.in.BackUp(len(chunk) - n)
	}
	return n, nil
}
