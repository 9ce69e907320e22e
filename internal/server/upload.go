package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/histx/internal/importer"
	"github.com/desertthunder/histx/internal/shared"
)

// uploadField is the multipart field carrying export files.
const uploadField = "files"

// spoolUploads streams each "files" part to a temp file so archives can be read
// with random access. The returned cleanup closes and removes everything; it is
// safe to call more than once.
func (s *Server) spoolUploads(w http.ResponseWriter, r *http.Request) ([]importer.File, func(), error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, nil, fmt.Errorf("%w: expected multipart/form-data upload", shared.ErrInvalidInput)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	dir, err := os.MkdirTemp(s.tempDir, "histx-upload-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	var (
		files  []importer.File
		opened []*os.File
	)
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		opened = nil
		os.RemoveAll(dir)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			return nil, nil, s.uploadError(err)
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}
		if len(files) >= s.limits.MaxFiles {
			part.Close()
			cleanup()
			return nil, nil, fmt.Errorf("%w: more than %d files", shared.ErrInvalidInput, s.limits.MaxFiles)
		}

		f, err := os.CreateTemp(dir, "part-*")
		if err != nil {
			part.Close()
			cleanup()
			return nil, nil, fmt.Errorf("failed to spool upload: %w", err)
		}
		opened = append(opened, f)

		n, err := io.Copy(f, part)
		part.Close()
		if err != nil {
			cleanup()
			return nil, nil, s.uploadError(err)
		}
		files = append(files, importer.File{Name: filepath.Base(part.FileName()), Size: n, Data: f})
	}

	if len(files) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("%w: no files in %q field", shared.ErrInvalidInput, uploadField)
	}
	return files, cleanup, nil
}

// uploadError keeps the size limit recognizable when multipart wraps it as text.
func (s *Server) uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	if strings.Contains(err.Error(), "request body too large") {
		return &http.MaxBytesError{Limit: s.limits.MaxUploadBytes}
	}
	return fmt.Errorf("%w: failed to read upload: %v", shared.ErrInvalidInput, err)
}
