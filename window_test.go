package axml

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestWindowWordsAcrossShortReads(t *testing.T) {
	var buf bytes.Buffer
	writeWords(&buf, 1, 2, 3, 0xDEADBEEF)

	w := newByteWindow(8)
	w.reset(iotest.OneByteReader(bytes.NewReader(buf.Bytes())))

	for _, want := range []uint32{1, 2, 3, 0xDEADBEEF} {
		require.NoError(t, w.require(wordSize))
		require.Equal(t, want, w.word(0))
		w.advance(wordSize)
	}
	require.EqualValues(t, 16, w.consumed)

	require.NoError(t, w.refill())
	require.True(t, w.exhausted())
}

func TestWindowTruncated(t *testing.T) {
	w := newByteWindow(16)
	w.reset(bytes.NewReader([]byte{1, 2, 3}))

	err := w.require(wordSize)
	require.ErrorIs(t, err, ErrTruncatedStream)
	require.Equal(t, 3, w.available())

	w.reset(bytes.NewReader(nil))
	require.ErrorIs(t, w.require(1), ErrTruncatedStream)
}

func TestWindowGrows(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	w := newByteWindow(chunkHeaderSize)
	w.reset(bytes.NewReader(data))

	require.NoError(t, w.require(4))
	w.advance(2)
	require.NoError(t, w.require(90))
	require.Equal(t, data[2:92], w.bytes(0, 90))
	require.GreaterOrEqual(t, len(w.buf), 90)
	require.EqualValues(t, 2, w.consumed)
}

func TestWindowReadError(t *testing.T) {
	readErr := errors.New("disk on fire")

	w := newByteWindow(16)
	w.reset(iotest.ErrReader(readErr))

	err := w.require(wordSize)
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, readErr)
}

func TestWindowNotResident(t *testing.T) {
	w := newByteWindow(16)
	w.reset(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}))
	require.NoError(t, w.require(6))

	require.Panics(t, func() { w.word(4) })
	require.Panics(t, func() { w.bytes(2, 8) })
	require.Panics(t, func() { w.advance(7) })
	require.NotPanics(t, func() { w.word(2) })
}
