package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"squeeze/internal/config"
	"squeeze/internal/fileutil"
	"squeeze/internal/logging"
)

// ErrTaskNotFound marks a task id the service no longer knows about.
var ErrTaskNotFound = errors.New("task not found")

// Client provides access to the compression service API.
type Client struct {
	baseURL        string
	logger         *slog.Logger
	requestClient  *http.Client
	uploadClient   *http.Client
	downloadClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides every underlying HTTP client, dropping the
// per-concern timeouts. Intended for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.requestClient = client
			c.uploadClient = client
			c.downloadClient = client
		}
	}
}

// New creates a service client from the server section of cfg. Uploads
// and downloads get their own, longer timeouts so a large video cannot
// be killed by the status-poll budget.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("remote client: config required")
	}
	baseURL := strings.TrimSpace(cfg.Server.BaseURL)
	if baseURL == "" {
		return nil, errors.New("remote client: base url required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		logger:         logging.NewComponentLogger(logger, "remote"),
		requestClient:  &http.Client{Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second},
		uploadClient:   &http.Client{Timeout: time.Duration(cfg.Server.UploadTimeout) * time.Second},
		downloadClient: &http.Client{Timeout: time.Duration(cfg.Server.DownloadTimeout) * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL returns the normalized service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns a service-relative path (as found in download_url
// fields) into an absolute URL. Absolute inputs pass through unchanged.
func (c *Client) ResolveURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return c.baseURL + raw
}

// UploadFile uploads one staged file for single-file compression. The
// returned task id is in the uploaded state until StartCompress confirms.
func (c *Client) UploadFile(ctx context.Context, staged *fileutil.StagedFile) (*UploadResult, error) {
	if staged == nil || len(staged.Data) == 0 {
		return nil, errors.New("upload requires a staged file")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	field, err := writer.CreateFormFile("file", staged.Name)
	if err != nil {
		return nil, fmt.Errorf("create file field: %w", err)
	}
	if _, err := field.Write(staged.Data); err != nil {
		return nil, fmt.Errorf("write file payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	requestStart := time.Now()
	resp, err := c.uploadClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError("upload", resp, latency)
	}

	var payload UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	c.logger.Debug("uploaded file",
		logging.String("filename", payload.Filename),
		logging.String(logging.FieldTaskID, payload.TaskID),
		logging.Int64("upload_size", payload.UploadSize),
		logging.Duration("latency", latency))
	return &payload, nil
}

// UploadBatch uploads staged files for batch compression. File order is
// preserved: the service's file indexes match the slice indexes here.
func (c *Client) UploadBatch(ctx context.Context, staged []*fileutil.StagedFile) (*BatchUploadResult, error) {
	if len(staged) == 0 {
		return nil, errors.New("batch upload requires at least one staged file")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, file := range staged {
		if file == nil || len(file.Data) == 0 {
			return nil, errors.New("batch upload requires staged file payloads")
		}
		field, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, fmt.Errorf("create files field: %w", err)
		}
		if _, err := field.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write file payload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-batch", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	requestStart := time.Now()
	resp, err := c.uploadClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError("batch upload", resp, latency)
	}

	var payload BatchUploadResult
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode batch upload response: %w", err)
	}

	c.logger.Debug("uploaded batch",
		logging.String(logging.FieldTaskID, payload.TaskID),
		logging.Int("file_count", payload.Total),
		logging.Duration("latency", latency))
	return &payload, nil
}

// StartCompress confirms an uploaded task and starts compression. The
// empty JSON body keeps the service's optional settings block untouched.
func (c *Client) StartCompress(ctx context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return errors.New("task id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/start-compress/"+taskID, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	requestStart := time.Now()
	resp, err := c.requestClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("start compress %s: %w", taskID, ErrTaskNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError("start compress", resp, latency)
	}
	return nil
}

// TaskStatus fetches the current state of a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("task id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/task/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.requestClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError("task status", resp, latency)
	}

	var payload TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode task status: %w", err)
	}
	payload.TaskID = taskID
	return &payload, nil
}

// FetchBlob downloads the payload behind a service URL (typically a
// download_url from a task status) and returns it with its content type.
func (c *Client) FetchBlob(ctx context.Context, rawURL string) ([]byte, string, error) {
	resolved := c.ResolveURL(rawURL)
	if resolved == "" {
		return nil, "", errors.New("blob url required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.downloadClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, "", fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeError("blob fetch", resp, latency)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read blob payload: %w", err)
	}

	c.logger.Debug("fetched blob",
		logging.String("url", resolved),
		logging.Int("payload_size", len(payload)),
		logging.Duration("latency", latency))
	return payload, resp.Header.Get("Content-Type"), nil
}

// DownloadArchive fetches the ZIP archive of every compressed file in a
// batch task. The filename comes from the service's Content-Disposition
// header when present.
func (c *Client) DownloadArchive(ctx context.Context, taskID string) (string, []byte, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return "", nil, errors.New("task id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/download-all/"+taskID, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.downloadClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil, fmt.Errorf("archive for %s: %w", taskID, ErrTaskNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, decodeError("archive download", resp, latency)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read archive payload: %w", err)
	}

	filename := fmt.Sprintf("compressed_%s.zip", taskID)
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			filename = params["filename"]
		}
	}

	c.logger.Debug("downloaded archive",
		logging.String(logging.FieldTaskID, taskID),
		logging.String("filename", filename),
		logging.Int("archive_size", len(data)),
		logging.Duration("latency", latency))
	return filename, data, nil
}

// DeleteTask tells the service to discard a task's uploads and outputs.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return errors.New("task id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/delete/"+taskID, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.requestClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete %s: %w", taskID, ErrTaskNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError("delete task", resp, latency)
	}
	return nil
}

// Ping checks that the service is reachable and answering.
func (c *Client) Ping(ctx context.Context) (*ServiceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.requestClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError("service status", resp, latency)
	}

	var payload ServiceStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode service status: %w", err)
	}
	return &payload, nil
}

// decodeError turns a non-200 response into an error, keeping the
// service's own error message when it sends one.
func decodeError(operation string, resp *http.Response, latency time.Duration) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	if payload.Error != "" {
		return fmt.Errorf("%s returned %d: %s (latency=%v)", operation, resp.StatusCode, payload.Error, latency)
	}
	return fmt.Errorf("%s returned %d (latency=%v)", operation, resp.StatusCode, latency)
}
