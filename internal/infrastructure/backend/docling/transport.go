package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/observability/logging"
)

const (
	requestIDHeader  = "X-Request-Id"
	maxResponseBytes = 32 << 20
	maxErrorBytes    = 64 << 10
)

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out, operation)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, operation string) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	return c.send(req, out, operation)
}

func (c *Client) deleteJSON(ctx context.Context, path string, out any, operation string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	return c.send(req, out, operation)
}

func (c *Client) postMultipart(ctx context.Context, path, field string, file domain.FileUpload, out any, operation string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.FileName))
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s form part: %w", operation, err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return fmt.Errorf("write %s form part: %w", operation, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close %s form: %w", operation, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil, &body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.send(req, out, operation)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) send(req *http.Request, out any, operation string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTransport, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeRemoteError(operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return domain.WrapError(domain.ErrRemote, operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// decodeRemoteError extracts the backend's human-readable detail. FastAPI
// sends either {"detail": "..."} or a validation list {"detail": [{"msg": ...}]}.
func decodeRemoteError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	return &domain.RemoteError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(raw, resp.StatusCode),
	}
}

func parseDetail(raw []byte, statusCode int) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Detail) > 0 {
		var text string
		if err := json.Unmarshal(envelope.Detail, &text); err == nil {
			return strings.TrimSpace(text)
		}

		var items []struct {
			Msg string `json:"msg"`
			Loc []any  `json:"loc"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
			messages := make([]string, 0, len(items))
			for _, item := range items {
				msg := strings.TrimSpace(item.Msg)
				if len(item.Loc) > 0 {
					msg = fmt.Sprintf("%v: %s", item.Loc[len(item.Loc)-1], msg)
				}
				messages = append(messages, msg)
			}
			return strings.Join(messages, "; ")
		}
		return strings.TrimSpace(string(envelope.Detail))
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return http.StatusText(statusCode)
}
