package codec

import (
	"encoding/binary"
	"io"

	"golang.org/x/exp/constraints"
)

// Order is the byte order of fixed-width binary fields. Little-endian
// matches the protobuf fixed32/fixed64 layout.
var Order binary.ByteOrder = binary.LittleEndian

const BUFFER_SIZE = 4096

// MaxFieldSize bounds any single length-delimited binary payload.
const MaxFieldSize = 64 << 20

// Discard skips n bytes of r. In-memory payloads are skipped without copying.
func Discard(r io.Reader, n int64) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	if n < 0 {
		return 0, ErrDiscardNegative
	}
	if br, ok := r.(*BytesReader); ok {
		rest := int64(len(br.Remaining()))
		if n > rest {
			br.N = len(br.B)
			return rest, io.EOF
		}
		br.N += int(n)
		return n, nil
	}
	return io.CopyN(io.Discard, r, n)
}

// zigzag maps signed integers onto unsigned ones so that small magnitudes
// stay short as varints.
func zigzag[T constraints.Signed](v T) uint64 {
	x := int64(v)
	return uint64(x<<1) ^ uint64(x>>63)
}

func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
