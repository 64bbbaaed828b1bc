package axml

import "encoding/xml"

// ManifestEncoder is the subset of *xml.Encoder used by EncoderSink.
type ManifestEncoder interface {
	EncodeToken(t xml.Token) error
	Flush() error
}

// EncoderSink is a Sink that writes the document back as textual XML through
// an encoder, usually an *xml.Encoder:
//
//	enc := xml.NewEncoder(os.Stdout)
//	enc.Indent("", "    ")
//	err := axml.Decode(r, axml.NewEncoderSink(enc))
//
// Names are written as prefix:local and namespace declarations as xmlns
// attributes on the element that follows them, so the encoder never has to
// invent prefixes of its own.
type EncoderSink struct {
	// Declaration writes an <?xml ...?> header at the start of the document.
	Declaration bool

	encoder ManifestEncoder
	pending []xml.Attr
}

// NewEncoderSink returns a sink writing to enc.
func NewEncoderSink(enc ManifestEncoder) *EncoderSink {
	return &EncoderSink{encoder: enc}
}

func (s *EncoderSink) StartDocument() error {
	s.pending = s.pending[:0]
	if !s.Declaration {
		return nil
	}
	return s.encoder.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="utf-8"`)})
}

func (s *EncoderSink) EndDocument() error {
	return s.encoder.Flush()
}

func (s *EncoderSink) StartPrefixMapping(prefix, uri string) error {
	name := "xmlns"
	if prefix != "" {
		name += ":" + prefix
	}
	s.pending = append(s.pending, xml.Attr{Name: xml.Name{Local: name}, Value: uri})
	return nil
}

func (s *EncoderSink) EndPrefixMapping(prefix, uri string) error {
	return nil
}

func (s *EncoderSink) StartElement(localName string, attrs []Attribute, uri, prefix string) error {
	tok := xml.StartElement{
		Name: xml.Name{Local: qualifiedName(localName, prefix)},
		Attr: make([]xml.Attr, 0, len(s.pending)+len(attrs)),
	}
	tok.Attr = append(tok.Attr, s.pending...)
	s.pending = s.pending[:0]

	for _, a := range attrs {
		tok.Attr = append(tok.Attr, xml.Attr{Name: xml.Name{Local: a.QualifiedName()}, Value: a.Value})
	}
	return s.encoder.EncodeToken(tok)
}

func (s *EncoderSink) EndElement(localName, uri, prefix string) error {
	return s.encoder.EncodeToken(xml.EndElement{Name: xml.Name{Local: qualifiedName(localName, prefix)}})
}

func (s *EncoderSink) Text(data string) error {
	return s.encoder.EncodeToken(xml.CharData(data))
}

func qualifiedName(local, prefix string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
