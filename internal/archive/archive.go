// Package archive decodes module packages and file containers into their
// regular file entries.
package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const (
	FormatZip     = "zip"
	FormatTarGzip = "tar+gzip"
	FormatTarXz   = "tar+xz"
	FormatTarZstd = "tar+zstd"
)

// Entry is one regular file of an archive. Path is slash separated and
// relative.
type Entry struct {
	Path string
	Body []byte
	Mode os.FileMode
}

// FormatFromExt maps an artifact extension to an archive format.
func FormatFromExt(ext string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "zip", "jar", "war":
		return FormatZip, nil
	case "tar.gz", "tgz":
		return FormatTarGzip, nil
	case "tar.xz", "txz":
		return FormatTarXz, nil
	case "tar.zst", "tzst":
		return FormatTarZstd, nil
	default:
		return "", fmt.Errorf("unsupported archive extension %q", ext)
	}
}

// Read decodes every regular file of an archive.
func Read(content []byte, format string) ([]Entry, error) {
	switch format {
	case FormatZip:
		return readZipEntries(content)
	case FormatTarGzip, FormatTarXz, FormatTarZstd:
		return readTarEntries(content, format)
	default:
		return nil, fmt.Errorf("unsupported archive encoding %q", format)
	}
}

// StripFirstSegment drops the leading directory of every entry. Entries
// directly at the archive root are dropped.
func StripFirstSegment(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		_, rest, ok := strings.Cut(entry.Path, "/")
		if !ok || rest == "" {
			continue
		}
		entry.Path = rest
		out = append(out, entry)
	}
	return out
}

func readZipEntries(content []byte) ([]Entry, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, file := range reader.File {
		if !file.Mode().IsRegular() {
			continue
		}
		entryPath, err := NormalizeEntryName(file.Name)
		if err != nil {
			return nil, err
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: entryPath, Body: body, Mode: file.Mode().Perm()})
	}
	return entries, nil
}

func readTarEntries(content []byte, format string) ([]Entry, error) {
	reader, closer, err := openTarStream(content, format)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	tarReader := tar.NewReader(reader)
	var entries []Entry
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !header.FileInfo().Mode().IsRegular() {
			continue
		}

		entryPath, err := NormalizeEntryName(header.Name)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Path: entryPath,
			Body: body,
			Mode: header.FileInfo().Mode().Perm(),
		})
	}
	return entries, nil
}

func openTarStream(content []byte, format string) (io.Reader, io.Closer, error) {
	var baseReader io.Reader = bytes.NewReader(content)
	switch format {
	case FormatTarGzip:
		gzipReader, err := gzip.NewReader(baseReader)
		if err != nil {
			return nil, nil, err
		}
		return gzipReader, gzipReader, nil
	case FormatTarXz:
		xzReader, err := xz.NewReader(baseReader)
		if err != nil {
			return nil, nil, err
		}
		return xzReader, nil, nil
	case FormatTarZstd:
		decoder, err := zstd.NewReader(baseReader)
		if err != nil {
			return nil, nil, err
		}
		rc := decoder.IOReadCloser()
		return rc, rc, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive encoding %q", format)
	}
}

// NormalizeEntryName cleans an archive member name and rejects names that
// would escape the extraction root.
func NormalizeEntryName(value string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(value, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("invalid archive entry path %q", value)
	}
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("archive entry path escapes root: %q", value)
	}
	return cleaned, nil
}
