package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

// UploadCoordinator validates a PDF upload, stores it on the backend and
// starts processing. It never retries.
type UploadCoordinator struct {
	gateway ports.BackendGateway
	logger  *slog.Logger
}

func NewUploadCoordinator(gateway ports.BackendGateway, logger *slog.Logger) *UploadCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadCoordinator{gateway: gateway, logger: logger}
}

func (uc *UploadCoordinator) Submit(ctx context.Context, req domain.UploadRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	stored, err := uc.gateway.UploadFile(ctx, domain.FileUpload{
		FileName: sanitizeFilename(req.FileName),
		MimeType: req.MimeType,
		Content:  req.FileBytes,
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if strings.TrimSpace(stored.FilePath) == "" {
		return "", domain.WrapError(domain.ErrRemote, "upload file", fmt.Errorf("backend returned empty file_path"))
	}

	taskID, err := uc.startProcessing(ctx, stored.FilePath, req.Category, req.Subcategory)
	if err != nil {
		return "", err
	}

	uc.logger.Info("document_submitted",
		"task_id", taskID,
		"file_name", req.FileName,
		"file_path", stored.FilePath,
		"bytes", len(req.FileBytes),
		"category", req.Category,
	)
	return taskID, nil
}

// SubmitPath starts processing of a file the backend can already reach, by
// server-side path or URL.
func (uc *UploadCoordinator) SubmitPath(ctx context.Context, pathOrURL, category, subcategory string) (string, error) {
	if strings.TrimSpace(pathOrURL) == "" {
		return "", domain.ValidationError("path or url required")
	}
	if strings.TrimSpace(category) == "" {
		return "", domain.ValidationError("category required")
	}

	taskID, err := uc.startProcessing(ctx, strings.TrimSpace(pathOrURL), category, subcategory)
	if err != nil {
		return "", err
	}
	uc.logger.Info("document_submitted", "task_id", taskID, "file_path", pathOrURL, "category", category)
	return taskID, nil
}

func (uc *UploadCoordinator) startProcessing(ctx context.Context, path, category, subcategory string) (string, error) {
	taskID, err := uc.gateway.ProcessDocument(ctx, domain.ProcessRequest{
		PathOrURL:   path,
		Category:    strings.TrimSpace(category),
		Subcategory: strings.TrimSpace(subcategory),
	})
	if err != nil {
		return "", fmt.Errorf("start processing: %w", err)
	}
	if strings.TrimSpace(taskID) == "" {
		return "", domain.WrapError(domain.ErrRemote, "start processing", fmt.Errorf("backend returned empty task_id"))
	}
	return taskID, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base += ".pdf"
	}
	return base
}
