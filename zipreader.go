package axml

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/klauspost/compress/flate"
)

var localFileHeaderMagic = []byte{0x50, 0x4B, 0x03, 0x04}

const localFileHeaderSize = 30

// ZipReader reads APKs, including broken or crafted ones that Android
// installs but archive/zip rejects.
type ZipReader struct {
	File map[string]*ZipReaderFile

	// Files in the order they were found. May contain the same ZipReaderFile
	// several times for crafted ZIPs.
	FilesOrdered []*ZipReaderFile

	owned *os.File
}

// ZipReaderFile is every entry stored under one name. Android reads the
// last local header of a name, so crafted APKs may carry decoys.
type ZipReaderFile struct {
	Name    string
	entries []zipEntry
}

type zipEntry struct {
	zf *zip.File

	// set for entries found by scanning local headers
	r      io.ReaderAt
	offset int64
	size   int64
	method uint16
}

// Entries is the number of entries stored under this name.
func (f *ZipReaderFile) Entries() int {
	return len(f.entries)
}

// Open opens the i-th entry stored under this name, most authoritative first.
func (f *ZipReaderFile) Open(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(f.entries) {
		return nil, fmt.Errorf("entry %d of %s does not exist", i, f.Name)
	}

	e := f.entries[i]
	if e.zf != nil {
		return e.zf.Open()
	}

	section := io.NewSectionReader(e.r, e.offset, e.size)
	if e.method == zip.Store {
		return io.NopCloser(section), nil
	}
	// Android treats everything but 0 as deflate
	return newFlateReader(section), nil
}

// ReadAll reads the first entry under this name that can be read completely,
// up to limit bytes.
func (f *ZipReaderFile) ReadAll(limit int64) ([]byte, error) {
	var lastErr error
	for i := range f.entries {
		rc, err := f.Open(i)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, limit))
		rc.Close()
		if err == nil {
			return data, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return nil, lastErr
}

// OpenZip opens the APK at path.
func OpenZip(path string) (*ZipReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	zr, err := OpenZipReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	zr.owned = f
	return zr, nil
}

// OpenZipReader reads the archive in r. It uses the central directory when
// archive/zip accepts it and falls back to scanning local file headers.
func OpenZipReader(r io.ReaderAt, size int64) (*ZipReader, error) {
	zr := &ZipReader{File: make(map[string]*ZipReaderFile)}

	if zipinfo, err := tryReadZip(r, size); err == nil {
		for _, zf := range zipinfo.File {
			if zf.Method != zip.Store && zf.Method != zip.Deflate {
				// Android seems to be treating unknown method as deflate, except for
				// data extracted with ZipAssetsProvider
				// 9a7d5266c223122d24d0061465bf781888984b4b04d9d0df8a76c3e3fe7a3fd0
				switch path.Clean(zf.Name) {
				case "AndroidManifest.xml", "resources.arsc":
					zf.Method = zip.Store
					zf.CompressedSize64 = zf.UncompressedSize64
				default:
					zf.Method = zip.Deflate
				}
			}
			zr.add(path.Clean(zf.Name), zipEntry{zf: zf}, false)
		}
		return zr, nil
	}

	var off int64
	for {
		next, err := findNextFileHeader(r, size, off)
		if err != nil {
			return nil, err
		}
		if next < 0 {
			break
		}

		entry, name, err := readLocalHeader(r, size, next)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			zr.add(name, *entry, true)
		}
		off = next + int64(len(localFileHeaderMagic))
	}

	if len(zr.FilesOrdered) == 0 {
		return nil, zip.ErrFormat
	}
	return zr, nil
}

func (zr *ZipReader) add(name string, e zipEntry, lastWins bool) {
	f := zr.File[name]
	if f == nil {
		f = &ZipReaderFile{Name: name}
		zr.File[name] = f
	}
	zr.FilesOrdered = append(zr.FilesOrdered, f)

	if lastWins {
		f.entries = append([]zipEntry{e}, f.entries...)
	} else {
		f.entries = append(f.entries, e)
	}
}

// Close closes the underlying file if the reader was created by OpenZip.
func (zr *ZipReader) Close() error {
	if zr.owned == nil {
		return nil
	}
	err := zr.owned.Close()
	zr.owned = nil
	return err
}

func tryReadZip(r io.ReaderAt, size int64) (zr *zip.Reader, err error) {
	defer func() {
		if pn := recover(); pn != nil {
			err = fmt.Errorf("%v", pn)
			zr = nil
		}
	}()

	zr, err = zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zip.Deflate, newFlateReader)
	return zr, nil
}

// readLocalHeader parses the local file header at off. A nil entry means the
// header was bogus and scanning should continue.
func readLocalHeader(r io.ReaderAt, size, off int64) (*zipEntry, string, error) {
	var hdr [localFileHeaderSize]byte
	if _, err := r.ReadAt(hdr[:], off); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, "", nil
		}
		return nil, "", err
	}

	method := binary.LittleEndian.Uint16(hdr[8:])
	nameLen := int64(binary.LittleEndian.Uint16(hdr[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(hdr[28:]))

	dataOff := off + localFileHeaderSize + nameLen + extraLen
	if dataOff > size {
		return nil, "", nil
	}

	name := make([]byte, nameLen)
	if _, err := r.ReadAt(name, off+localFileHeaderSize); err != nil {
		return nil, "", err
	}

	// The compressed size may only be in a data descriptor, so the entry runs
	// to the end of the archive; the consumer stops on its own.
	return &zipEntry{
		r:      r,
		offset: dataOff,
		size:   size - dataOff,
		method: method,
	}, path.Clean(string(name)), nil
}

// findNextFileHeader returns the offset of the next local header signature at
// or after start, or -1.
func findNextFileHeader(r io.ReaderAt, size, start int64) (int64, error) {
	buf := make([]byte, 64*1024)
	overlap := int64(len(localFileHeaderMagic) - 1)

	for off := start; off < size; {
		n, err := r.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return -1, err
		}
		if n == 0 {
			break
		}

		if idx := bytes.Index(buf[:n], localFileHeaderMagic); idx >= 0 {
			return off + int64(idx), nil
		}

		if int64(n) <= overlap {
			break
		}
		off += int64(n) - overlap
	}
	return -1, nil
}

var flateReaderPool sync.Pool

func newFlateReader(r io.Reader) io.ReadCloser {
	fr, ok := flateReaderPool.Get().(io.ReadCloser)
	if ok {
		fr.(flate.Resetter).Reset(r, nil)
	} else {
		fr = flate.NewReader(r)
	}
	return &pooledFlateReader{fr: fr}
}

type pooledFlateReader struct {
	mu sync.Mutex // guards Close and Read
	fr io.ReadCloser
}

func (r *pooledFlateReader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fr == nil {
		return 0, errors.New("Read after Close")
	}
	return r.fr.Read(p)
}

func (r *pooledFlateReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.fr != nil {
		err = r.fr.Close()
		flateReaderPool.Put(r.fr)
		r.fr = nil
	}
	return err
}
