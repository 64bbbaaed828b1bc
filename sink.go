package axml

import "fmt"

// Attribute is one decoded attribute of an element. Prefix and NamespaceUri
// are empty when the attribute has no namespace.
type Attribute struct {
	Name         string
	Value        string
	Prefix       string
	NamespaceUri string
}

// QualifiedName returns prefix:name, or just the name without a prefix.
func (a Attribute) QualifiedName() string {
	if a.Prefix == "" {
		return a.Name
	}
	return a.Prefix + ":" + a.Name
}

func (a Attribute) String() string {
	if a.NamespaceUri == "" {
		return fmt.Sprintf("%s=%q", a.QualifiedName(), a.Value)
	}
	return fmt.Sprintf("%s=%q [%s]", a.QualifiedName(), a.Value, a.NamespaceUri)
}

// Sink receives the events of a decoded document, synchronously and in
// document order. An error returned from any method aborts the decoding and
// is returned by Decode.
//
// uri and prefix are empty for elements without a namespace.
type Sink interface {
	StartDocument() error
	EndDocument() error
	StartPrefixMapping(prefix, uri string) error
	EndPrefixMapping(prefix, uri string) error
	StartElement(localName string, attrs []Attribute, uri, prefix string) error
	EndElement(localName, uri, prefix string) error
	Text(data string) error
}

// ResourceMapSink is implemented by sinks that want the raw resource ids of
// the resource map chunk. Attribute name i corresponds to ids[i].
type ResourceMapSink interface {
	ResourceMap(ids []uint32) error
}
