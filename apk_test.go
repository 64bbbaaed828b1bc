package axml

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type apkEntry struct {
	name   string
	method uint16
	data   []byte
}

func buildApk(t *testing.T, entries ...apkEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		var (
			w   io.Writer
			err error
		)
		if e.method == zip.Store || e.method == zip.Deflate {
			w, err = zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		} else {
			// stored as is, under a method archive/zip does not know
			w, err = zw.CreateRaw(&zip.FileHeader{
				Name:               e.name,
				Method:             e.method,
				CRC32:              crc32.ChecksumIEEE(e.data),
				CompressedSize64:   uint64(len(e.data)),
				UncompressedSize64: uint64(len(e.data)),
			})
		}
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func openApk(t *testing.T, data []byte) *ZipReader {
	t.Helper()
	zr, err := OpenZipReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}

func TestDecodeApk(t *testing.T) {
	arsc := []byte("not really a resource table")
	apk := buildApk(t,
		apkEntry{name: "classes.dex", method: zip.Deflate, data: bytes.Repeat([]byte("dex\n"), 100)},
		apkEntry{name: ManifestName, method: zip.Deflate, data: manifestDoc()},
		apkEntry{name: "resources.arsc", method: zip.Store, data: arsc},
	)

	zr := openApk(t, apk)
	defer zr.Close()
	require.Len(t, zr.FilesOrdered, 3)

	tree := &TreeSink{}
	require.NoError(t, DecodeApk(zr, "", tree, DefaultOptions()))
	require.Equal(t, "manifest", tree.Root().Name)

	data, err := zr.File["resources.arsc"].ReadAll(1024)
	require.NoError(t, err)
	require.Equal(t, arsc, data)

	err = DecodeApk(zr, "res/layout/main.xml", tree, DefaultOptions())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeApkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(path, buildApk(t, apkEntry{name: ManifestName, method: zip.Deflate, data: manifestDoc()}), 0o644))

	rec := &recorder{}
	require.NoError(t, DecodeApkFile(path, ManifestName, rec, DefaultOptions()))
	require.Equal(t, 1, rec.count("endDocument"))

	err := DecodeApkFile(filepath.Join(t.TempDir(), "missing.apk"), "", rec, DefaultOptions())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeApkDecoyEntries(t *testing.T) {
	apk := buildApk(t,
		apkEntry{name: ManifestName, method: zip.Deflate, data: []byte{0x03, 0x00, 0x08, 0x00, 0xFF, 0xFF, 0x00, 0x00}},
		apkEntry{name: ManifestName, method: zip.Deflate, data: manifestDoc()},
	)

	zr := openApk(t, apk)
	require.Equal(t, 2, zr.File[ManifestName].Entries())

	rec := &recorder{}
	require.NoError(t, DecodeApk(zr, ManifestName, rec, DefaultOptions()))
	require.Equal(t, 1, rec.count("startDocument"))
	require.Equal(t, 1, rec.count("endDocument"))
	require.Equal(t, 3, rec.count("startElement"))
}

func TestDecodeApkDiagnosticsOnce(t *testing.T) {
	doc := newDocBuilder(true).start("", "root").words(0xDEADBEEF).end("", "root").bytes()
	apk := buildApk(t, apkEntry{name: ManifestName, method: zip.Deflate, data: doc})

	var diags []Diagnostic
	opts := DefaultOptions()
	opts.Diagnostics = func(d Diagnostic) { diags = append(diags, d) }

	require.NoError(t, DecodeApk(openApk(t, apk), "", &recorder{}, opts))
	require.Len(t, diags, 1)
	require.Equal(t, DiagUnknownChunk, diags[0].Kind)
}

func TestDecodeApkAllEntriesBroken(t *testing.T) {
	apk := buildApk(t, apkEntry{name: ManifestName, method: zip.Store, data: []byte{1, 2, 3, 4, 5, 6, 7, 8}})

	rec := &recorder{}
	err := DecodeApk(openApk(t, apk), "", rec, DefaultOptions())
	require.ErrorIs(t, err, ErrNotAxmlDocument)
	require.Empty(t, rec.events)
}

func TestDecodeApkPlainManifest(t *testing.T) {
	apk := buildApk(t, apkEntry{name: ManifestName, method: zip.Deflate, data: []byte(`<?xml version="1.0"?><manifest/>`)})

	err := DecodeApk(openApk(t, apk), "", &recorder{}, DefaultOptions())
	require.ErrorIs(t, err, ErrPlainTextManifest)
}

func TestDecodeApkUnknownMethod(t *testing.T) {
	apk := buildApk(t, apkEntry{name: ManifestName, method: 99, data: manifestDoc()})

	tree := &TreeSink{}
	require.NoError(t, DecodeApk(openApk(t, apk), "", tree, DefaultOptions()))
	require.Equal(t, "manifest", tree.Root().Name)
}

func TestDecodeApkWithoutCentralDirectory(t *testing.T) {
	apk := buildApk(t,
		apkEntry{name: "assets/readme.txt", method: zip.Store, data: []byte("hello")},
		apkEntry{name: ManifestName, method: zip.Deflate, data: manifestDoc()},
	)

	cd := bytes.Index(apk, []byte{0x50, 0x4B, 0x01, 0x02})
	require.Greater(t, cd, 0)
	apk = apk[:cd]

	zr := openApk(t, apk)
	require.Contains(t, zr.File, ManifestName)
	require.Contains(t, zr.File, "assets/readme.txt")

	tree := &TreeSink{}
	require.NoError(t, DecodeApk(zr, "", tree, DefaultOptions()))
	require.Len(t, tree.Root().Elements(), 2)
}

func TestOpenZipReaderNotZip(t *testing.T) {
	data := []byte("this is not a zip archive at all")
	_, err := OpenZipReader(bytes.NewReader(data), int64(len(data)))
	require.ErrorIs(t, err, zip.ErrFormat)
}
