package uploads

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// MaxFileSize is the largest photo accepted by default (10 MiB).
const MaxFileSize int64 = 10 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// File is one photo of an upload batch.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

func FromFileHeader(h *multipart.FileHeader) File {
	return File{
		Name:        h.Filename,
		ContentType: h.Header.Get("Content-Type"),
		Size:        h.Size,
		Open: func() (io.ReadCloser, error) {
			return h.Open()
		},
	}
}

func FromBytes(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// ValidateFile checks the declared type and size of a photo against the
// default limit.
func ValidateFile(f File) error {
	return validateFile(f, MaxFileSize)
}

func validateFile(f File, maxSize int64) error {
	if ct := baseContentType(f.ContentType); !allowedTypes[ct] {
		return &models.ValidationError{
			Field:   f.Name,
			Message: fmt.Sprintf("unsupported file type %q (allowed: jpeg, png, webp)", f.ContentType),
		}
	}
	if f.Size <= 0 {
		return &models.ValidationError{Field: f.Name, Message: "file is empty"}
	}
	if f.Size > maxSize {
		return &models.ValidationError{
			Field:   f.Name,
			Message: fmt.Sprintf("file is %s, the limit is %s", humanize.IBytes(uint64(f.Size)), humanize.IBytes(uint64(maxSize))),
		}
	}
	return nil
}
