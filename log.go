package axml

import (
	"fmt"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("axml")

// DiagnosticKind classifies a non-fatal decoding problem.
type DiagnosticKind int

const (
	// DiagStringLength: a pool string decoded to a different length than declared.
	DiagStringLength DiagnosticKind = iota
	// DiagUnknownChunk: an unknown chunk tag was skipped one word at a time.
	DiagUnknownChunk
	// DiagUnknownValueType: an attribute value had an unknown type and was formatted raw.
	DiagUnknownValueType
	// DiagStringIndex: a string id outside of the pool decoded as an empty string.
	DiagStringIndex
	// DiagUndeclaredNamespace: an element used a namespace uri with no prefix in scope.
	DiagUndeclaredNamespace
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagStringLength:
		return "string-length"
	case DiagUnknownChunk:
		return "unknown-chunk"
	case DiagUnknownValueType:
		return "unknown-value-type"
	case DiagStringIndex:
		return "string-index"
	case DiagUndeclaredNamespace:
		return "undeclared-namespace"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(k))
	}
}

// Diagnostic is a non-fatal problem found while decoding. Decoding continues
// with a best-effort value.
type Diagnostic struct {
	// Offset is the document offset of the chunk being decoded.
	Offset  int64
	Kind    DiagnosticKind
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("0x%08x: %s: %s", d.Offset, d.Kind, d.Message)
}
