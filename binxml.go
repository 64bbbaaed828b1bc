package axml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
)

type decoderState int

const (
	stateAwaitingDocument decoderState = iota
	stateInDocument
	stateDone
)

// Decoder decodes Android binary XML documents into Sink events.
//
// A Decoder can decode any number of documents one after another, but it is
// not safe for concurrent use; use one Decoder per goroutine.
type Decoder struct {
	opts Options

	win         *byteWindow
	strings     *StringPool
	resourceIds []uint32
	ns          namespaceScope
	sink        Sink

	state   decoderState
	docSize int64
	depth   int

	// document offset of the chunk being decoded
	chunkOffset int64
}

// NewDecoder returns a Decoder configured with opts.
func NewDecoder(opts Options) *Decoder {
	opts = opts.withDefaults()
	return &Decoder{
		opts: opts,
		win:  newByteWindow(opts.BufferSize),
	}
}

// Decode decodes one binary XML document from r with the default options.
func Decode(r io.Reader, sink Sink) error {
	return NewDecoder(DefaultOptions()).Decode(r, sink)
}

// Decode reads one document from r and reports it to sink. The document ends
// when the size declared by its first chunk has been consumed, not at EOF.
// The window reads ahead, so r may be read past the end of the document.
// r is not closed.
//
// After an error the decoder may be reused for another document.
func (d *Decoder) Decode(r io.Reader, sink Sink) (err error) {
	if r == nil || sink == nil {
		return errors.New("axml: nil reader or sink")
	}

	d.reset(r, sink)
	defer func() {
		if pn := recover(); pn != nil {
			err = fmt.Errorf("Panic at 0x%08x: %v\n%s", d.chunkOffset, pn, string(debug.Stack()))
		}
		d.sink = nil
		d.win.r = nil
	}()

	for d.state != stateDone {
		if err := d.next(); err != nil {
			return err
		}
	}
	return nil
}

// Strings returns the string pool of the last decoded document.
func (d *Decoder) Strings() *StringPool {
	return d.strings
}

// ResourceIDs returns the resource map of the last decoded document.
func (d *Decoder) ResourceIDs() []uint32 {
	return d.resourceIds
}

func (d *Decoder) reset(r io.Reader, sink Sink) {
	d.win.reset(r)
	d.strings = nil
	d.resourceIds = nil
	d.ns.reset()
	d.sink = sink
	d.state = stateAwaitingDocument
	d.docSize = 0
	d.depth = 0
	d.chunkOffset = 0
}

func (d *Decoder) next() error {
	d.chunkOffset = d.win.consumed

	if d.win.available() < chunkHeaderSize {
		if err := d.win.refill(); err != nil {
			return err
		}
		if d.win.exhausted() {
			return fmt.Errorf("%w: input ended at 0x%x, before the end of the document", ErrTruncatedStream, d.win.consumed)
		}
	}

	if err := d.win.require(wordSize); err != nil {
		return err
	}

	tag := d.win.word(0)

	var err error
	if d.state == stateAwaitingDocument {
		err = d.parseDocumentStart(tag)
	} else {
		switch tag {
		case chunkResourceIds:
			err = d.parseResourceIds()
		case chunkStringTable:
			err = d.parseStringTable()
		case chunkXmlNsStart:
			err = d.parseNamespace(true)
		case chunkXmlNsEnd:
			err = d.parseNamespace(false)
		case chunkXmlTagStart:
			err = d.parseTagStart()
		case chunkXmlTagEnd:
			err = d.parseTagEnd()
		case chunkXmlText:
			err = d.parseText()
		default:
			// Probably a newer chunk kind. Skipping a single word keeps us
			// aligned as long as the chunk does not contain known tags.
			d.report(DiagUnknownChunk, "unknown chunk id 0x%08x, skipping one word", tag)
			d.win.advance(wordSize)
		}
	}

	if err != nil {
		return fmt.Errorf("Chunk: 0x%08x (%s) at 0x%08x: %w", tag, chunkName(tag), d.chunkOffset, err)
	}

	if d.state == stateInDocument && d.win.consumed >= d.docSize {
		if d.depth != 0 {
			return fmt.Errorf("%w: document ends with %d open elements", ErrUnbalancedElement, d.depth)
		}
		d.state = stateDone
		return d.sink.EndDocument()
	}
	return nil
}

// A document starts with the following words:
//
//	0: 0x00080003
//	1: document size in bytes, this chunk included
func (d *Decoder) parseDocumentStart(tag uint32) error {
	if tag != chunkAxmlFile {
		if (tag&0xFF) == '<' && d.win.require(chunkHeaderSize) == nil {
			head := d.win.bytes(0, chunkHeaderSize)
			if bytes.HasPrefix(head, []byte("<?xml ")) || bytes.HasPrefix(head, []byte("<manif")) {
				return ErrPlainTextManifest
			}
		}
		return fmt.Errorf("%w: invalid top chunk id 0x%08x", ErrNotAxmlDocument, tag)
	}

	if err := d.win.require(chunkHeaderSize); err != nil {
		return err
	}

	size := d.win.word(wordSize)
	if size < chunkHeaderSize {
		return fmt.Errorf("%w: document size %d is smaller than its header", ErrMalformedChunk, size)
	}

	d.docSize = int64(size)
	d.win.advance(chunkHeaderSize)
	d.state = stateInDocument
	return d.sink.StartDocument()
}

// beginChunk validates the size word of the chunk at the window start and
// makes the whole chunk resident.
func (d *Decoder) beginChunk(minSize int) (int, error) {
	if err := d.win.require(chunkHeaderSize); err != nil {
		return 0, err
	}

	size := int64(d.win.word(wordSize))
	if size < int64(minSize) {
		return 0, fmt.Errorf("%w: chunk size %d, at least %d expected", ErrMalformedChunk, size, minSize)
	}

	if left := d.docSize - d.win.consumed; size > left {
		return 0, fmt.Errorf("%w: chunk size %d overruns the document (%d bytes left)", ErrMalformedChunk, size, left)
	}

	if size > int64(d.opts.MaxChunkSize) {
		return 0, fmt.Errorf("%w: chunk size %d exceeds the limit of %d", ErrMalformedChunk, size, d.opts.MaxChunkSize)
	}

	if err := d.win.require(int(size)); err != nil {
		return 0, err
	}
	return int(size), nil
}

// expectSize checks that a handler consumed exactly the declared chunk size.
func expectSize(declared, consumed int) error {
	if declared != consumed {
		return fmt.Errorf("%w: chunk declares %d bytes, content takes %d", ErrMalformedChunk, declared, consumed)
	}
	return nil
}

// The resource ids chunk is the header followed by one resource id per
// attribute name, in string pool order.
func (d *Decoder) parseResourceIds() error {
	size, err := d.beginChunk(chunkHeaderSize)
	if err != nil {
		return err
	}

	if (size % wordSize) != 0 {
		return fmt.Errorf("%w: resource map size %d is not a multiple of %d", ErrMalformedChunk, size, wordSize)
	}

	count := (size - chunkHeaderSize) / wordSize
	ids := make([]uint32, count)
	for i := range ids {
		ids[i] = d.win.word(chunkHeaderSize + i*wordSize)
	}
	d.resourceIds = append(d.resourceIds, ids...)
	d.win.advance(size)

	if rs, ok := d.sink.(ResourceMapSink); ok {
		return rs.ResourceMap(ids)
	}
	return nil
}

func (d *Decoder) parseStringTable() error {
	size, err := d.beginChunk(stringPoolHeaderSize)
	if err != nil {
		return err
	}

	pool, warnings, err := parseStringPool(d.win.bytes(0, size))
	if err != nil {
		return err
	}

	if d.strings != nil {
		log.Debugf("string pool at 0x%08x replaces the previous one", d.chunkOffset)
	}
	d.strings = pool
	log.Debugf("string pool: %d strings, %d styles, utf8=%v", pool.Len(), pool.StyleCount(), pool.IsUtf8())

	for _, w := range warnings {
		d.report(DiagStringLength, "%s", w.message)
	}

	d.win.advance(size)
	return nil
}

// A namespace chunk contains the following words:
//
//	0: 0x00100100 (start) / 0x00100101 (end)
//	1: chunk size
//	2: line number in the source xml
//	3: comment string id, usually 0xFFFFFFFF
//	4: prefix string id
//	5: uri string id
func (d *Decoder) parseNamespace(start bool) error {
	size, err := d.beginChunk(nsChunkSize)
	if err != nil {
		return err
	}
	if err := expectSize(size, nsChunkSize); err != nil {
		return err
	}

	log.Debugf("namespace chunk: line %d, comment 0x%x", d.win.word(8), d.win.word(12))

	prefix, err := d.getString(d.win.word(16))
	if err != nil {
		return fmt.Errorf("error decoding prefix: %w", err)
	}

	uri, err := d.getString(d.win.word(20))
	if err != nil {
		return fmt.Errorf("error decoding uri: %w", err)
	}

	d.win.advance(size)

	if start {
		d.ns.declare(prefix, uri)
		return d.sink.StartPrefixMapping(prefix, uri)
	}

	if err := d.ns.undeclare(prefix, uri); err != nil {
		return err
	}
	return d.sink.EndPrefixMapping(prefix, uri)
}

// An element start chunk contains the following words:
//
//	0: 0x00100102
//	1: chunk size
//	2: line number in the source xml
//	3: comment string id, usually 0xFFFFFFFF
//	4: namespace uri string id, or 0xFFFFFFFF
//	5: element name string id
//	6: attribute start (low 16 bits, relative to word 4) and attribute size (high 16 bits)
//	7: attribute count (low 16 bits) and id attribute index (high 16 bits)
//	8: class attribute index (low 16 bits) and style attribute index (high 16 bits)
//
// Each attribute then takes five words:
//
//	0: namespace uri string id, or 0xFFFFFFFF
//	1: name string id
//	2: raw value string id, or 0xFFFFFFFF for typed values
//	3: value type (high byte)
//	4: value data
func (d *Decoder) parseTagStart() error {
	size, err := d.beginChunk(tagStartMinSize)
	if err != nil {
		return err
	}

	namespaceIdx := d.win.word(16)
	nameIdx := d.win.word(20)
	attrLayout := d.win.word(24)
	attrCount := int(d.win.word(28) & 0xFFFF)

	log.Debugf("element start chunk: line %d, comment 0x%x, id/class/style 0x%x 0x%x",
		d.win.word(8), d.win.word(12), d.win.word(28)>>16, d.win.word(32))

	attrStart := int(attrLayout & 0xFFFF)
	attrSize := int(attrLayout >> 16)
	if attrStart == 0 {
		attrStart = tagStartMinSize - tagStartExtStart
	}
	if attrSize == 0 {
		attrSize = attrMinSize
	}

	if attrSize < attrMinSize || tagStartExtStart+attrStart < tagStartMinSize {
		return fmt.Errorf("%w: attribute layout start %d size %d", ErrMalformedChunk, attrStart, attrSize)
	}
	if err := expectSize(size, tagStartExtStart+attrStart+attrCount*attrSize); err != nil {
		return err
	}

	name, err := d.getString(nameIdx)
	if err != nil {
		return fmt.Errorf("error decoding name: %w", err)
	}

	uri, prefix, err := d.elementNamespace(namespaceIdx)
	if err != nil {
		return err
	}

	attrs := make([]Attribute, 0, attrCount)
	for i := 0; i < attrCount; i++ {
		attr, err := d.parseAttribute(tagStartExtStart + attrStart + i*attrSize)
		if err != nil {
			return fmt.Errorf("attribute %d: %w", i, err)
		}
		attrs = append(attrs, attr)
	}

	d.depth++
	d.win.advance(size)
	return d.sink.StartElement(name, attrs, uri, prefix)
}

func (d *Decoder) parseAttribute(off int) (Attribute, error) {
	var attr Attribute

	namespaceIdx := d.win.word(off)
	nameIdx := d.win.word(off + 4)
	rawValueIdx := d.win.word(off + 8)
	value := TypedValue{Type: d.win.word(off + 12), Data: d.win.word(off + 16)}

	var err error
	if attr.Name, err = d.getString(nameIdx); err != nil {
		return attr, fmt.Errorf("error decoding attrNameIdx: %w", err)
	}

	if namespaceIdx != noIndex {
		if attr.NamespaceUri, err = d.getString(namespaceIdx); err != nil {
			return attr, fmt.Errorf("error decoding attrNamespaceIdx: %w", err)
		}
		attr.Prefix, _ = d.ns.resolve(attr.NamespaceUri)
	}

	switch {
	case rawValueIdx != noIndex:
		attr.Value, err = d.getString(rawValueIdx)
	case value.DataType() == AttrTypeString:
		attr.Value, err = d.getString(value.Data)
	default:
		if !value.Known() {
			d.report(DiagUnknownValueType, "attribute %q: unknown value type 0x%x (data = 0x%X)", attr.Name, value.Type, value.Data)
		}
		attr.Value = value.String()
	}
	if err != nil {
		return attr, fmt.Errorf("error decoding attrStringIdx: %w", err)
	}
	return attr, nil
}

// An element end chunk contains the following words:
//
//	0: 0x00100103
//	1: chunk size
//	2: line number in the source xml
//	3: comment string id, usually 0xFFFFFFFF
//	4: namespace uri string id, or 0xFFFFFFFF
//	5: element name string id
func (d *Decoder) parseTagEnd() error {
	size, err := d.beginChunk(tagEndChunkSize)
	if err != nil {
		return err
	}
	if err := expectSize(size, tagEndChunkSize); err != nil {
		return err
	}

	namespaceIdx := d.win.word(16)
	nameIdx := d.win.word(20)

	name, err := d.getString(nameIdx)
	if err != nil {
		return fmt.Errorf("error decoding name: %w", err)
	}

	uri, prefix, err := d.elementNamespace(namespaceIdx)
	if err != nil {
		return err
	}

	if d.depth == 0 {
		return fmt.Errorf("%w: </%s> without an open element", ErrUnbalancedElement, name)
	}
	d.depth--

	d.win.advance(size)
	return d.sink.EndElement(name, uri, prefix)
}

// A text chunk contains the following words:
//
//	0: 0x00100104
//	1: chunk size
//	2: line number in the source xml
//	3: comment string id, usually 0xFFFFFFFF
//	4: text string id
//	5, 6: typed value, unused for text
func (d *Decoder) parseText() error {
	size, err := d.beginChunk(textChunkSize)
	if err != nil {
		return err
	}
	if err := expectSize(size, textChunkSize); err != nil {
		return err
	}

	log.Debugf("text chunk: line %d, comment 0x%x, typed value 0x%x 0x%x",
		d.win.word(8), d.win.word(12), d.win.word(20), d.win.word(24))

	text, err := d.getString(d.win.word(16))
	if err != nil {
		return fmt.Errorf("error decoding idx: %w", err)
	}

	d.win.advance(size)
	return d.sink.Text(text)
}

// elementNamespace resolves the namespace of an element. A uri without a
// prefix in scope is dropped entirely.
func (d *Decoder) elementNamespace(idx uint32) (uri, prefix string, err error) {
	if idx == noIndex {
		return "", "", nil
	}

	if uri, err = d.getString(idx); err != nil {
		return "", "", fmt.Errorf("error decoding namespace: %w", err)
	}

	prefix, ok := d.ns.resolve(uri)
	if !ok {
		d.report(DiagUndeclaredNamespace, "namespace %q has no prefix in scope", uri)
		return "", "", nil
	}
	return uri, prefix, nil
}

func (d *Decoder) getString(idx uint32) (string, error) {
	if idx == noIndex {
		return "", nil
	}

	if s, ok := d.strings.Get(idx); ok {
		return s, nil
	}

	if d.opts.Strict {
		return "", fmt.Errorf("%w: string with idx %d not found (pool has %d)", ErrStringIndex, idx, d.strings.Len())
	}
	d.report(DiagStringIndex, "string with idx %d not found (pool has %d)", idx, d.strings.Len())
	return "", nil
}

func (d *Decoder) report(kind DiagnosticKind, format string, args ...interface{}) {
	diag := Diagnostic{
		Offset:  d.chunkOffset,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
	log.Warningf("%s", diag)
	if d.opts.Diagnostics != nil {
		d.opts.Diagnostics(diag)
	}
}
