package codec

import "io"

// LimitedReader reads at most N bytes from R. Unlike io.LimitedReader it
// fails with ErrTooLarge when the source holds more, so an oversized payload
// is not mistaken for a truncated one.
type LimitedReader struct {
	R io.Reader
	N int64 // bytes remaining
}

func LimitReader(r io.Reader, n int64) *LimitedReader {
	return &LimitedReader{R: r, N: n}
}

func (r *LimitedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.N <= 0 {
		// Probe one byte to tell an exact fit from an overflow.
		var probe [1]byte
		n, err := r.R.Read(probe[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	if int64(len(p)) > r.N {
		p = p[:r.N]
	}
	n, err := r.R.Read(p)
	r.N -= int64(n)
	return n, err
}
