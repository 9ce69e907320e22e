package importer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/desertthunder/histx/internal/models"
)

// maxNestedArchive bounds how much of an archive-inside-an-archive is read into memory.
const maxNestedArchive = 1 << 30

var zipMagic = []byte("PK\x03\x04")

// entry is one logical file: a loose upload or a member of an archive.
type entry struct {
	name  string
	loose bool
	open  func() (io.ReadCloser, error)
}

func (e entry) base() string {
	return path.Base(strings.ReplaceAll(e.name, "\\", "/"))
}

func isZip(r io.ReaderAt) bool {
	head := make([]byte, len(zipMagic))
	if _, err := r.ReadAt(head, 0); err != nil {
		return false
	}
	return bytes.Equal(head, zipMagic)
}

// expand flattens uploads into entries, opening archives (and archives nested one level deep).
func expand(p models.Platform, files []File) ([]entry, error) {
	var out []entry
	for _, f := range files {
		if f.Data == nil {
			continue
		}
		if !isZip(f.Data) {
			sr := io.NewSectionReader(f.Data, 0, f.Size)
			out = append(out, entry{name: f.Name, loose: true, open: func() (io.ReadCloser, error) {
				return io.NopCloser(io.NewSectionReader(sr, 0, sr.Size())), nil
			}})
			continue
		}
		members, err := zipEntries(p, f.Name, f.Data, f.Size, 1)
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	return out, nil
}

func zipEntries(p models.Platform, name string, r io.ReaderAt, size int64, depth int) ([]entry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, unknownFailure(p, fmt.Sprintf("%s is not a readable archive", name), err)
	}

	var out []entry
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasPrefix(path.Base(zf.Name), "._") || strings.HasPrefix(zf.Name, "__MACOSX/") {
			continue
		}
		if depth > 0 && strings.EqualFold(path.Ext(zf.Name), ".zip") && zf.UncompressedSize64 <= maxNestedArchive {
			nested, err := readNested(p, zf)
			if err != nil {
				return nil, err
			}
			members, err := zipEntries(p, zf.Name, nested, int64(nested.Len()), depth-1)
			if err != nil {
				return nil, err
			}
			out = append(out, members...)
			continue
		}
		out = append(out, entry{name: zf.Name, open: zf.Open})
	}
	return out, nil
}

func readNested(p models.Platform, zf *zip.File) (*bytes.Reader, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, unknownFailure(p, fmt.Sprintf("cannot open %s", zf.Name), err)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxNestedArchive))
	if err != nil {
		return nil, unknownFailure(p, fmt.Sprintf("cannot read %s", zf.Name), err)
	}
	return bytes.NewReader(b), nil
}
