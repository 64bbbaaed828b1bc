package axml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// byteWindow is a sliding buffer over a non-seekable input. The bytes in
// buf[start:end] are resident; everything before start has been consumed.
type byteWindow struct {
	r   io.Reader
	buf []byte

	start, end int
	eof        bool

	// bytes consumed since the start of the document
	consumed int64
}

func newByteWindow(size int) *byteWindow {
	if size < chunkHeaderSize {
		size = defaultBufferSize
	}
	return &byteWindow{buf: make([]byte, size)}
}

func (w *byteWindow) reset(r io.Reader) {
	w.r = r
	w.start, w.end = 0, 0
	w.eof = false
	w.consumed = 0
}

func (w *byteWindow) available() int {
	return w.end - w.start
}

// exhausted reports whether no resident bytes are left and the input hit EOF.
func (w *byteWindow) exhausted() bool {
	return w.eof && w.available() == 0
}

// refill moves the unconsumed bytes to the front of the buffer and reads
// from the input up to the buffer capacity. Running into EOF only marks the
// window, it is not an error.
func (w *byteWindow) refill() error {
	return w.fill(len(w.buf))
}

// require makes sure at least n bytes are resident, growing the buffer when a
// single chunk does not fit. Hitting EOF first is ErrTruncatedStream.
func (w *byteWindow) require(n int) error {
	if w.available() >= n {
		return nil
	}

	if n > len(w.buf) {
		grown := make([]byte, n)
		w.end = copy(grown, w.buf[w.start:w.end])
		w.start = 0
		w.buf = grown
	}

	if err := w.fill(n); err != nil {
		return err
	}

	if w.available() < n {
		return fmt.Errorf("%w: need %d bytes at offset 0x%x, only %d left", ErrTruncatedStream, n, w.consumed, w.available())
	}
	return nil
}

func (w *byteWindow) fill(n int) error {
	if w.start != 0 {
		w.end = copy(w.buf, w.buf[w.start:w.end])
		w.start = 0
	}

	if w.eof || w.end >= n {
		return nil
	}

	read, err := io.ReadAtLeast(w.r, w.buf[w.end:], n-w.end)
	w.end += read
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		w.eof = true
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// word reads the little-endian word at a byte offset relative to the window
// start. The bytes must have been made resident with require.
func (w *byteWindow) word(off int) uint32 {
	if off < 0 || off+wordSize > w.available() {
		panic(fmt.Sprintf("axml: word at +%d is not resident (%d bytes available)", off, w.available()))
	}
	return binary.LittleEndian.Uint32(w.buf[w.start+off:])
}

// bytes returns a view of n resident bytes at off. The view is only valid
// until the next require or refill.
func (w *byteWindow) bytes(off, n int) []byte {
	if off < 0 || n < 0 || off+n > w.available() {
		panic(fmt.Sprintf("axml: bytes [+%d, +%d) are not resident (%d bytes available)", off, off+n, w.available()))
	}
	return w.buf[w.start+off : w.start+off+n]
}

func (w *byteWindow) advance(n int) {
	if n > w.available() {
		panic(fmt.Sprintf("axml: advancing %d bytes past the %d resident ones", n, w.available()))
	}
	w.start += n
	w.consumed += int64(n)
}
