package axml

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Options configures a Decoder. The zero value is usable; unset sizes take
// their defaults.
type Options struct {
	// Strict makes string ids outside of the string pool fatal (ErrStringIndex).
	// Otherwise they decode as empty strings and are reported as diagnostics.
	Strict bool `json:"strict"`

	// BufferSize is the initial size of the read window. Chunks larger than
	// the window grow it.
	BufferSize int `json:"bufferSize,omitempty"`

	// MaxChunkSize caps the size of a single chunk, larger chunks are
	// ErrMalformedChunk.
	MaxChunkSize int `json:"maxChunkSize,omitempty"`

	// Diagnostics, if set, receives every non-fatal decoding problem.
	Diagnostics func(Diagnostic) `json:"-"`
}

// DefaultOptions returns the options used by Decode.
func DefaultOptions() Options {
	return Options{
		BufferSize:   defaultBufferSize,
		MaxChunkSize: defaultMaxChunkSize,
	}
}

// ParseOptions reads options from YAML (or JSON), starting from DefaultOptions.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.UnmarshalStrict(data, &opts); err != nil {
		return opts, fmt.Errorf("error parsing options: %w", err)
	}
	return opts.withDefaults(), nil
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), err
	}
	return ParseOptions(data)
}

func (o Options) withDefaults() Options {
	if o.BufferSize < chunkHeaderSize {
		o.BufferSize = defaultBufferSize
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = defaultMaxChunkSize
	}
	return o
}
