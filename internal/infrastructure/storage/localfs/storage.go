package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

const DefaultMaxFileBytes int64 = 50 << 20

// Source reads local PDFs into upload requests. Relative paths resolve
// against basePath.
type Source struct {
	basePath string
	maxBytes int64
}

func New(basePath string, maxBytes int64) *Source {
	if basePath == "" {
		basePath = "."
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &Source{basePath: basePath, maxBytes: maxBytes}
}

// Load reads the file at path and sniffs its content type. A non-PDF file
// is returned as-is so the upload validation rejects it with its usual error.
func (s *Source) Load(_ context.Context, path, category, subcategory string) (domain.UploadRequest, error) {
	resolved := s.resolve(path)
	f, err := os.Open(resolved)
	if err != nil {
		return domain.UploadRequest{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes+1))
	if err != nil {
		return domain.UploadRequest{}, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return domain.UploadRequest{}, domain.ValidationError(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}

	return domain.UploadRequest{
		FileBytes:   data,
		FileName:    filepath.Base(resolved),
		MimeType:    DetectMimeType(data),
		Category:    category,
		Subcategory: subcategory,
	}, nil
}

// Save copies data under basePath; the console keeps a copy of uploads when
// configured to.
func (s *Source) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(s.basePath, filepath.Base(key))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

func (s *Source) resolve(path string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(s.basePath, path)
}

// DetectMimeType returns the media type without parameters.
func DetectMimeType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}
