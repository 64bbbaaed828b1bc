package axml

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

const (
	stringFlagSorted = 0x00000001
	stringFlagUtf8   = 0x00000100
)

var (
	utf16Decoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf8Decoding  = unicode.UTF8
)

// StringPool is the decoded string table of one document. It is immutable
// once built.
type StringPool struct {
	isUtf8  bool
	strings []string
	styles  int
}

// stringWarning is a non-fatal decoding-quality problem found while building a pool.
type stringWarning struct {
	index   int
	message string
}

// Len returns the number of strings in the pool.
func (p *StringPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.strings)
}

// IsUtf8 reports whether the strings were stored as UTF-8 (as opposed to UTF-16LE).
func (p *StringPool) IsUtf8() bool {
	return p != nil && p.isUtf8
}

// StyleCount is the number of style spans declared by the pool. Their content is not decoded.
func (p *StringPool) StyleCount() int {
	if p == nil {
		return 0
	}
	return p.styles
}

// Get returns the string with the given id. ok is false for the "no value"
// sentinel and for ids outside of the pool.
func (p *StringPool) Get(idx uint32) (s string, ok bool) {
	if p == nil || idx == noIndex || idx >= uint32(len(p.strings)) {
		return "", false
	}
	return p.strings[idx], true
}

// parseStringPool decodes a complete string pool chunk, header included.
//
//	0: 0x001C0001
//	1: chunk size
//	2: string count
//	3: style count
//	4: flags (0x100 = UTF-8, otherwise UTF-16LE; 0x1 = sorted)
//	5: offset from the chunk start to the string data
//	6: offset from the chunk start to the style data
//
// The header is followed by the string offsets and the style offsets.
func parseStringPool(chunk []byte) (*StringPool, []stringWarning, error) {
	if len(chunk) < stringPoolHeaderSize {
		return nil, nil, fmt.Errorf("%w: string pool of %d bytes is smaller than its header", ErrMalformedChunk, len(chunk))
	}

	word := func(i int) uint32 {
		return binary.LittleEndian.Uint32(chunk[i*wordSize:])
	}

	stringCnt := word(2)
	styleCnt := word(3)
	flags := word(4)
	stringsStart := word(5)
	stylesStart := word(6)

	res := &StringPool{
		isUtf8: (flags & stringFlagUtf8) != 0,
	}
	if res.isUtf8 {
		flags &^= stringFlagUtf8
	}
	flags &^= stringFlagSorted // just ignore

	if flags != 0 {
		return nil, nil, fmt.Errorf("%w: unknown string flags 0x%08x", ErrUnsupportedEncoding, flags)
	}

	size := uint64(len(chunk))
	offsetsEnd := uint64(stringPoolHeaderSize) + 4*uint64(stringCnt) + 4*uint64(styleCnt)
	if offsetsEnd > size {
		return nil, nil, fmt.Errorf("%w: %d string and %d style offsets do not fit in %d bytes",
			ErrMalformedChunk, stringCnt, styleCnt, size)
	}

	if uint64(stringsStart) > size || (stringCnt != 0 && uint64(stringsStart) < offsetsEnd) {
		return nil, nil, fmt.Errorf("%w: string data offset 0x%x out of range", ErrMalformedChunk, stringsStart)
	}

	// Style spans are not represented; their offsets are only checked so that a
	// broken pool is reported here rather than misread later.
	if styleCnt != 0 {
		if uint64(stylesStart) < offsetsEnd || uint64(stylesStart) > size {
			return nil, nil, fmt.Errorf("%w: style data offset 0x%x out of range", ErrMalformedChunk, stylesStart)
		}
		for i := uint32(0); i < styleCnt; i++ {
			off := word(stringPoolHeaderSize/wordSize + int(stringCnt) + int(i))
			if uint64(stylesStart)+uint64(off) >= size {
				return nil, nil, fmt.Errorf("%w: style %d offset 0x%x out of range", ErrMalformedChunk, i, off)
			}
		}
	}
	res.styles = int(styleCnt)

	var data []byte
	if stringCnt != 0 {
		data = chunk[stringsStart:]
		if styleCnt != 0 && stylesStart > stringsStart {
			data = chunk[stringsStart:stylesStart]
		}
	}

	var warnings []stringWarning
	res.strings = make([]string, stringCnt)
	decoded := make(map[uint32]int, stringCnt)
	for i := uint32(0); i < stringCnt; i++ {
		off := word(stringPoolHeaderSize/wordSize + int(i))
		if prev, prs := decoded[off]; prs {
			res.strings[i] = res.strings[prev]
			continue
		}

		if uint64(off) >= uint64(len(data)) {
			return nil, nil, fmt.Errorf("%w: string %d offset 0x%x out of bounds (%d bytes of data)",
				ErrMalformedChunk, i, off, len(data))
		}

		var (
			str       string
			declared  int
			err       error
			stringBuf = data[off:]
		)
		if res.isUtf8 {
			str, declared, err = parseString8(stringBuf)
		} else {
			str, declared, err = parseString16(stringBuf)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("string %d: %w", i, err)
		}

		if actual := utf16Len(str); actual != declared {
			warnings = append(warnings, stringWarning{
				index:   int(i),
				message: fmt.Sprintf("decoding seems off for string %d, expected %d characters, got %d", i, declared, actual),
			})
		}

		res.strings[i] = str
		decoded[off] = int(i)
	}

	return res, warnings, nil
}

// parseString16 decodes a UTF-16LE string: a character count (one unit, or two
// when the high bit of the first is set) followed by count units of text.
func parseString16(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, fmt.Errorf("%w: string length cut off", ErrMalformedChunk)
	}

	strCharacters := int(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]
	if (strCharacters & 0x8000) != 0 {
		if len(buf) < 2 {
			return "", 0, fmt.Errorf("%w: string length cut off", ErrMalformedChunk)
		}
		strCharacters = ((strCharacters & 0x7FFF) << 16) | int(binary.LittleEndian.Uint16(buf))
		buf = buf[2:]
	}

	if len(buf) < 2*strCharacters {
		return "", 0, fmt.Errorf("%w: string of %d characters exceeds the pool", ErrMalformedChunk, strCharacters)
	}

	str, err := decodeWith(utf16Decoding, buf[:2*strCharacters])
	if err != nil {
		return "", 0, err
	}
	return str, strCharacters, nil
}

// parseString8Len reads one UTF-8 pool length: one byte, or two when the high
// bit of the first is set.
func parseString8Len(buf []byte) (int, []byte, error) {
	if len(buf) < 1 {
		return 0, nil, fmt.Errorf("%w: string length cut off", ErrMalformedChunk)
	}

	strLen := int(buf[0])
	if (strLen & 0x80) != 0 {
		if len(buf) < 2 {
			return 0, nil, fmt.Errorf("%w: string length cut off", ErrMalformedChunk)
		}
		return ((strLen & 0x7F) << 8) | int(buf[1]), buf[2:], nil
	}
	return strLen, buf[1:], nil
}

// parseString8 decodes a UTF-8 string. It carries two lengths: the length in
// UTF-16 characters, then the length in bytes.
func parseString8(buf []byte) (string, int, error) {
	strCharacters, buf, err := parseString8Len(buf)
	if err != nil {
		return "", 0, err
	}

	len8, buf, err := parseString8Len(buf)
	if err != nil {
		return "", 0, err
	}

	if len(buf) < len8 {
		return "", 0, fmt.Errorf("%w: string of %d bytes exceeds the pool", ErrMalformedChunk, len8)
	}

	str, err := decodeWith(utf8Decoding, buf[:len8])
	if err != nil {
		return "", 0, err
	}
	return str, strCharacters, nil
}

func decodeWith(enc encoding.Encoding, b []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	return string(out), nil
}

// utf16Len is the length of s in UTF-16 code units, which is what the pool
// declares as the character count.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
