package httpadapter

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/infrastructure/storage/localfs"
)

type ingestForm struct {
	Category    string `validate:"required,max=128"`
	Subcategory string `validate:"max=128"`
}

type ingestPathBody struct {
	PathOrURL   string `json:"path_or_url" validate:"required"`
	Category    string `json:"category" validate:"required,max=128"`
	Subcategory string `json:"subcategory" validate:"max=128"`
}

type submittedResponse struct {
	TaskID string `json:"task_id"`
}

func (rt *Router) ingestUpload(w http.ResponseWriter, r *http.Request) {
	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart form required"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	form := ingestForm{
		Category:    strings.TrimSpace(r.FormValue("category")),
		Subcategory: strings.TrimSpace(r.FormValue("subcategory")),
	}
	if err := rt.validate.Struct(form); err != nil {
		rt.validationFailure(w, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read upload: " + err.Error()})
		return
	}
	if int64(len(data)) > rt.cfg.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds size limit"})
		return
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = localfs.DetectMimeType(data)
	}

	taskID, err := rt.svc.Submitter.Submit(r.Context(), domain.UploadRequest{
		FileBytes:   data,
		FileName:    header.Filename,
		MimeType:    mimeType,
		Category:    form.Category,
		Subcategory: form.Subcategory,
	})
	rt.recordSubmission(err)
	if err != nil && taskID == "" {
		writeError(w, err)
		return
	}
	if err != nil {
		rt.logger.Warn("ingest_tracking_degraded", "task_id", taskID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, submittedResponse{TaskID: taskID})
}

func (rt *Router) ingestPath(w http.ResponseWriter, r *http.Request) {
	var body ingestPathBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := rt.validate.Struct(body); err != nil {
		rt.validationFailure(w, err)
		return
	}

	taskID, err := rt.svc.Submitter.SubmitPath(r.Context(), body.PathOrURL, body.Category, body.Subcategory)
	rt.recordSubmission(err)
	if err != nil && taskID == "" {
		writeError(w, err)
		return
	}
	if err != nil {
		rt.logger.Warn("ingest_tracking_degraded", "task_id", taskID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, submittedResponse{TaskID: taskID})
}

func (rt *Router) recordSubmission(err error) {
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordSubmission(serviceName, err)
	}
}
