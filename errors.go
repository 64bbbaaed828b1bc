package axml

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAxmlDocument is returned when the first chunk is not a document start chunk.
	ErrNotAxmlDocument = errors.New("not an android binary xml document")

	// Some samples have manifest in plaintext, this is an error.
	// 2c882a2376034ed401be082a42a21f0ac837689e7d3ab6be0afb82f44ca0b859
	ErrPlainTextManifest = fmt.Errorf("%w: xml is in plaintext, binary form expected", ErrNotAxmlDocument)

	// ErrTruncatedStream means the input ended before the declared document
	// (or the chunk being read) was complete.
	ErrTruncatedStream = errors.New("truncated stream")

	// ErrUnsupportedEncoding is returned for string pools that are neither UTF-8 nor UTF-16LE.
	ErrUnsupportedEncoding = errors.New("unsupported string pool encoding")

	// ErrUnbalancedNamespace is returned when a namespace end chunk has no matching start.
	ErrUnbalancedNamespace = errors.New("unbalanced namespace declaration")

	// ErrUnbalancedElement is returned when an element end chunk has no open element.
	ErrUnbalancedElement = errors.New("unbalanced element end")

	// ErrMalformedChunk is returned when a chunk's declared size does not match its content.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrStringIndex is returned in strict mode for string ids outside of the string pool.
	ErrStringIndex = errors.New("string index out of range")

	// ErrIO wraps read failures of the underlying input.
	ErrIO = errors.New("i/o error")
)
