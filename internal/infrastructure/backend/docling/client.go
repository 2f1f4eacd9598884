package docling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/infrastructure/resilience"
)

const apiPrefix = "/api/v1"

// RequestObserver records one backend call. outcome is one of ok,
// remote_error, transport_error or circuit_open.
type RequestObserver interface {
	ObserveBackendRequest(operation, outcome string, duration time.Duration)
}

type Options struct {
	Timeout time.Duration
	// RateLimit caps outbound requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	UserAgent string

	Executor   *resilience.Executor
	Observer   RequestObserver
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client is the gateway to the document-processing backend. Each method maps
// to exactly one endpoint and is issued once: no retries, no caching.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	observer   RequestObserver
	logger     *slog.Logger
	userAgent  string
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "docling-console/1.0"
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		executor:   opts.Executor,
		observer:   opts.Observer,
		logger:     logger,
		userAgent:  userAgent,
	}
}

func (c *Client) UploadFile(ctx context.Context, file domain.FileUpload) (domain.StoredFile, error) {
	var response uploadResponse
	err := c.call(ctx, "upload_file", func(ctx context.Context) error {
		return c.postMultipart(ctx, apiPrefix+"/upload/file", "file", file, &response, "upload_file")
	})
	if err != nil {
		return domain.StoredFile{}, err
	}
	return response.toDomain(), nil
}

func (c *Client) ProcessDocument(ctx context.Context, req domain.ProcessRequest) (string, error) {
	var response processResponse
	err := c.call(ctx, "process_document", func(ctx context.Context) error {
		return c.postJSON(ctx, apiPrefix+"/documents/process", processRequest{
			PDFPathOrURL: req.PathOrURL,
			Category:     req.Category,
			Subcategory:  req.Subcategory,
		}, &response, "process_document")
	})
	if err != nil {
		return "", err
	}
	return response.TaskID, nil
}

func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (domain.IngestionTask, error) {
	var response taskStatusResponse
	err := c.call(ctx, "get_task_status", func(ctx context.Context) error {
		return c.getJSON(ctx, apiPrefix+"/documents/task/"+url.PathEscape(taskID), nil, &response, "get_task_status")
	})
	if err != nil {
		return domain.IngestionTask{}, err
	}
	task, err := response.toDomain(taskID)
	if err != nil {
		return domain.IngestionTask{}, domain.WrapError(domain.ErrRemote, "get_task_status", err)
	}
	return task, nil
}

func (c *Client) SearchDocuments(ctx context.Context, query domain.SearchQuery) ([]domain.SearchResult, error) {
	var response searchResponse
	err := c.call(ctx, "search_documents", func(ctx context.Context) error {
		return c.postJSON(ctx, apiPrefix+"/documents/search", newSearchRequest(query), &response, "search_documents")
	})
	if err != nil {
		return nil, err
	}
	return response.toDomain(), nil
}

func (c *Client) ListChunks(ctx context.Context, query domain.ChunkQuery) (domain.ChunkListing, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(query.Limit))
	params.Set("offset", strconv.Itoa(query.Offset))
	if query.DocumentID != "" {
		params.Set("document_id", query.DocumentID)
	}

	var response chunksResponse
	err := c.call(ctx, "list_chunks", func(ctx context.Context) error {
		return c.getJSON(ctx, apiPrefix+"/documents/chunks", params, &response, "list_chunks")
	})
	if err != nil {
		return domain.ChunkListing{}, err
	}
	return response.toDomain(), nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	var response documentsResponse
	err := c.call(ctx, "list_documents", func(ctx context.Context) error {
		return c.getJSON(ctx, apiPrefix+"/documents/list", nil, &response, "list_documents")
	})
	if err != nil {
		return nil, err
	}
	return response.toDomain(), nil
}

func (c *Client) RevokeTask(ctx context.Context, taskID string) error {
	return c.call(ctx, "revoke_task", func(ctx context.Context) error {
		return c.deleteJSON(ctx, apiPrefix+"/documents/task/"+url.PathEscape(taskID), nil, "revoke_task")
	})
}

func (c *Client) Health(ctx context.Context) (domain.BackendHealth, error) {
	var response domain.BackendHealth
	err := c.call(ctx, "health", func(ctx context.Context) error {
		return c.getJSON(ctx, apiPrefix+"/health", nil, &response, "health")
	})
	if err != nil {
		return domain.BackendHealth{}, err
	}
	return response, nil
}

// call applies the rate limiter and breaker around a single attempt and
// normalizes whatever comes back into the Transport/Remote error kinds.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	err := c.limitAndExecute(ctx, operation, fn)
	err = normalizeError(operation, err)

	if c.observer != nil {
		c.observer.ObserveBackendRequest(operation, outcomeOf(err), time.Since(start))
	}
	if err != nil {
		c.logger.Debug("backend_request_failed", "operation", operation, "error", err)
	}
	return err
}

func (c *Client) limitAndExecute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, "docling."+operation, fn, recordsFailure)
}

func normalizeError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrRemote) || errors.Is(err, domain.ErrTransport) {
		return err
	}
	return domain.WrapError(domain.ErrTransport, operation, err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case resilience.IsCircuitOpen(err):
		return "circuit_open"
	case errors.Is(err, domain.ErrRemote):
		return "remote_error"
	default:
		return "transport_error"
	}
}
