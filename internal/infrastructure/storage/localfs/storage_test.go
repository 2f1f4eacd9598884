package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

const minimalPDF = "%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n"

func TestLoadDetectsPDF(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "manual.pdf"), []byte(minimalPDF), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	req, err := New(dir, 0).Load(context.Background(), "manual.pdf", "manuals", "hw")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if req.MimeType != domain.PDFMimeType || req.FileName != "manual.pdf" || req.Category != "manuals" || req.Subcategory != "hw" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid upload, got %v", err)
	}
}

func TestLoadTextFileFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.pdf")
	if err := os.WriteFile(path, []byte("just some notes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	req, err := New("", 0).Load(context.Background(), path, "manuals", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !strings.HasPrefix(req.MimeType, "text/plain") {
		t.Fatalf("unexpected mime type %q", req.MimeType)
	}
	if err := req.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.pdf"), []byte(minimalPDF), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := New(dir, 8).Load(context.Background(), "big.pdf", "c", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := New(t.TempDir(), 0).Load(context.Background(), "nope.pdf", "c", ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveWritesUnderBase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	path, err := New(dir, 0).Save(context.Background(), "../escape.pdf", strings.NewReader(minimalPDF))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("file written outside base: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != minimalPDF {
		t.Fatalf("unexpected content: %q err=%v", data, err)
	}
}
