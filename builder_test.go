package axml

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// docBuilder assembles binary xml documents for tests. Strings are interned
// as they are used and the string pool is written in front of the body.
type docBuilder struct {
	utf8    bool
	strings []string
	index   map[string]uint32
	resIds  []uint32
	body    bytes.Buffer
}

type testAttr struct {
	uri, name, value string
	typ, data        uint32
	typed            bool
}

func strAttr(uri, name, value string) testAttr {
	return testAttr{uri: uri, name: name, value: value}
}

func typedAttr(uri, name string, typ, data uint32) testAttr {
	return testAttr{uri: uri, name: name, typ: typ, data: data, typed: true}
}

// rawAttr carries both a raw string value and a typed value.
func rawAttr(uri, name, value string, typ, data uint32) testAttr {
	return testAttr{uri: uri, name: name, value: value, typ: typ, data: data}
}

func newDocBuilder(utf8 bool) *docBuilder {
	return &docBuilder{utf8: utf8, index: make(map[string]uint32)}
}

func (b *docBuilder) str(s string) uint32 {
	if idx, ok := b.index[s]; ok {
		return idx
	}
	idx := uint32(len(b.strings))
	b.strings = append(b.strings, s)
	b.index[s] = idx
	return idx
}

func (b *docBuilder) ns(uri string) uint32 {
	if uri == "" {
		return noIndex
	}
	return b.str(uri)
}

func (b *docBuilder) words(words ...uint32) *docBuilder {
	writeWords(&b.body, words...)
	return b
}

func (b *docBuilder) resources(ids ...uint32) *docBuilder {
	b.resIds = append(b.resIds, ids...)
	return b
}

func (b *docBuilder) nsStart(prefix, uri string) *docBuilder {
	return b.words(chunkXmlNsStart, nsChunkSize, 1, noIndex, b.str(prefix), b.str(uri))
}

func (b *docBuilder) nsEnd(prefix, uri string) *docBuilder {
	return b.words(chunkXmlNsEnd, nsChunkSize, 1, noIndex, b.str(prefix), b.str(uri))
}

func (b *docBuilder) start(uri, name string, attrs ...testAttr) *docBuilder {
	b.words(chunkXmlTagStart, uint32(tagStartMinSize+attrMinSize*len(attrs)), 1, noIndex,
		b.ns(uri), b.str(name), 0x00140014, uint32(len(attrs)), 0)

	for _, a := range attrs {
		if a.typed {
			b.words(b.ns(a.uri), b.str(a.name), noIndex, a.typ, a.data)
		} else {
			raw := b.str(a.value)
			typ, data := a.typ, a.data
			if typ == 0 {
				typ, data = AttrTypeString<<24|8, raw
			}
			b.words(b.ns(a.uri), b.str(a.name), raw, typ, data)
		}
	}
	return b
}

func (b *docBuilder) end(uri, name string) *docBuilder {
	return b.words(chunkXmlTagEnd, tagEndChunkSize, 1, noIndex, b.ns(uri), b.str(name))
}

func (b *docBuilder) text(s string) *docBuilder {
	return b.words(chunkXmlText, textChunkSize, 1, noIndex, b.str(s), 8, 0)
}

func (b *docBuilder) bytes() []byte {
	var body bytes.Buffer
	body.Write(encodePool(b.strings, b.utf8))
	if len(b.resIds) != 0 {
		writeWords(&body, chunkResourceIds, uint32(chunkHeaderSize+wordSize*len(b.resIds)))
		writeWords(&body, b.resIds...)
	}
	body.Write(b.body.Bytes())

	var doc bytes.Buffer
	writeWords(&doc, chunkAxmlFile, uint32(chunkHeaderSize+body.Len()))
	doc.Write(body.Bytes())
	return doc.Bytes()
}

func writeWords(buf *bytes.Buffer, words ...uint32) {
	var w [wordSize]byte
	for _, v := range words {
		binary.LittleEndian.PutUint32(w[:], v)
		buf.Write(w[:])
	}
}

func putWord(doc []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(doc[off:], v)
}

// encodePool builds a string pool chunk the way aapt does: offsets relative
// to the string data, NUL terminated strings, data padded to a word.
func encodePool(strs []string, utf8 bool) []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(data.Len())
		if utf8 {
			writeLen8(&data, utf16Len(s))
			writeLen8(&data, len(s))
			data.WriteString(s)
			data.WriteByte(0)
		} else {
			units := utf16.Encode([]rune(s))
			writeLen16(&data, len(units))
			for _, u := range units {
				binary.Write(&data, binary.LittleEndian, u)
			}
			binary.Write(&data, binary.LittleEndian, uint16(0))
		}
	}
	for data.Len()%wordSize != 0 {
		data.WriteByte(0)
	}

	var flags uint32
	if utf8 {
		flags = stringFlagUtf8
	}

	stringsStart := stringPoolHeaderSize + wordSize*len(strs)

	var chunk bytes.Buffer
	writeWords(&chunk, chunkStringTable, uint32(stringsStart+data.Len()), uint32(len(strs)), 0, flags, uint32(stringsStart), 0)
	writeWords(&chunk, offsets...)
	chunk.Write(data.Bytes())
	return chunk.Bytes()
}

func writeLen8(buf *bytes.Buffer, n int) {
	if n > 0x7F {
		buf.WriteByte(byte(0x80 | n>>8))
	}
	buf.WriteByte(byte(n))
}

func writeLen16(buf *bytes.Buffer, n int) {
	if n > 0x7FFF {
		binary.Write(buf, binary.LittleEndian, uint16(0x8000|n>>16))
	}
	binary.Write(buf, binary.LittleEndian, uint16(n))
}

var errSinkFailed = errors.New("sink failed")

type event struct {
	Kind   string
	Name   string
	Uri    string
	Prefix string
	Attrs  []Attribute
}

// recorder is a Sink remembering every event. failOn makes the event of that
// kind return errSinkFailed.
type recorder struct {
	events []event
	resIds []uint32
	failOn string
}

func (r *recorder) add(e event) error {
	if len(e.Attrs) == 0 {
		e.Attrs = nil
	}
	r.events = append(r.events, e)
	if e.Kind == r.failOn {
		return errSinkFailed
	}
	return nil
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) StartDocument() error {
	return r.add(event{Kind: "startDocument"})
}

func (r *recorder) EndDocument() error {
	return r.add(event{Kind: "endDocument"})
}

func (r *recorder) StartPrefixMapping(prefix, uri string) error {
	return r.add(event{Kind: "startPrefixMapping", Prefix: prefix, Uri: uri})
}

func (r *recorder) EndPrefixMapping(prefix, uri string) error {
	return r.add(event{Kind: "endPrefixMapping", Prefix: prefix, Uri: uri})
}

func (r *recorder) StartElement(localName string, attrs []Attribute, uri, prefix string) error {
	return r.add(event{Kind: "startElement", Name: localName, Uri: uri, Prefix: prefix, Attrs: attrs})
}

func (r *recorder) EndElement(localName, uri, prefix string) error {
	return r.add(event{Kind: "endElement", Name: localName, Uri: uri, Prefix: prefix})
}

func (r *recorder) Text(data string) error {
	return r.add(event{Kind: "text", Name: data})
}

func (r *recorder) ResourceMap(ids []uint32) error {
	r.resIds = append(r.resIds, ids...)
	return nil
}
