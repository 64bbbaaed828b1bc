// Package axml decodes Android binary XML ("AXML"), the compiled form of
// AndroidManifest.xml and of the XML resources inside APKs.
//
// Decoding is a single pass over an io.Reader that pushes SAX-like events to
// a Sink. EncoderSink writes the events back as textual XML, TreeSink builds
// an in-memory tree.
package axml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

// ManifestName is the name of the manifest entry inside an APK.
const ManifestName = "AndroidManifest.xml"

type nopSink struct{}

func (nopSink) StartDocument() error { return nil }
func (nopSink) EndDocument() error { return nil }
func (nopSink) StartPrefixMapping(prefix, uri string) error { return nil }
func (nopSink) EndPrefixMapping(prefix, uri string) error { return nil }
func (nopSink) StartElement(string, []Attribute, string, string) error { return nil }
func (nopSink) EndElement(localName, uri, prefix string) error { return nil }
func (nopSink) Text(data string) error { return nil }

// DecodeApkFile opens the APK at path and decodes its binary XML entry name
// (ManifestName if empty) into sink.
func DecodeApkFile(path, name string, sink Sink, opts Options) error {
	zr, err := OpenZip(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	return DecodeApk(zr, name, sink, opts)
}

// DecodeApk decodes the binary XML entry name (ManifestName if empty) of an
// opened APK into sink. When the APK stores several entries under that name,
// they are tried in turn and the first one that decodes is reported; sink
// only ever sees the events of that one.
//
// This method will not Close() the zip.
func DecodeApk(zr *ZipReader, name string, sink Sink, opts Options) (err error) {
	if name == "" {
		name = ManifestName
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Panic: %v\n%s", r, string(debug.Stack()))
		}
	}()

	f := zr.File[name]
	if f == nil {
		return fmt.Errorf("Failed to find %s: %w", name, os.ErrNotExist)
	}

	// The dry run reports nothing, diagnostics come from the real pass only.
	dryOpts := opts
	dryOpts.Diagnostics = nil
	dry := NewDecoder(dryOpts)

	var lastErr error
	for i := 0; i < f.Entries(); i++ {
		rc, err := f.Open(i)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, int64(dry.opts.MaxChunkSize)))
		rc.Close()
		if err != nil {
			lastErr = err
			continue
		}

		// Dry run first, so a broken decoy entry does not leave half a
		// document in the sink.
		if err := dry.Decode(bytes.NewReader(data), nopSink{}); err != nil {
			if errors.Is(err, ErrPlainTextManifest) {
				return err
			}
			lastErr = err
			continue
		}
		return NewDecoder(opts).Decode(bytes.NewReader(data), sink)
	}

	return fmt.Errorf("Failed to decode %s, last error: %w", name, lastErr)
}
