package remote

// Task states reported by the service. Batch tasks end in partial when
// some files compressed and some failed.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusPartial    = "partial"
)

// IsTerminal reports whether a task in this state will never change again.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}

// UploadResult is the service's acknowledgement of a single-file upload.
type UploadResult struct {
	TaskID     string `json:"task_id"`
	Filename   string `json:"filename"`
	FileExt    string `json:"file_ext"`
	UploadSize int64  `json:"upload_size"`
	Message    string `json:"message"`
}

// BatchUploadResult is the service's acknowledgement of a batch upload.
// Files are listed in upload order; their index is the file index used
// everywhere else in the API.
type BatchUploadResult struct {
	TaskID  string       `json:"task_id"`
	Total   int          `json:"total"`
	Files   []FileStatus `json:"files"`
	Message string       `json:"message"`
}

// FileStatus describes one file of a batch task.
type FileStatus struct {
	OriginalFilename string  `json:"original_filename"`
	OutputFilename   string  `json:"output_filename"`
	FileExt          string  `json:"file_ext"`
	UploadSize       int64   `json:"upload_size"`
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	Status           string  `json:"status"`
	Error            string  `json:"error"`
	DownloadToken    string  `json:"download_token"`
	DownloadURL      string  `json:"download_url"`

	PreviewOriginalURL   string `json:"preview_original_url"`
	PreviewCompressedURL string `json:"preview_compressed_url"`
}

// TaskStatus is the service's view of a task. Single-file tasks populate
// the flat fields; batch tasks populate Total/Completed/Failed/Files.
type TaskStatus struct {
	TaskID   string `json:"-"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error"`

	Filename         string  `json:"filename"`
	FileExt          string  `json:"file_ext"`
	UploadSize       int64   `json:"upload_size"`
	OutputFilename   string  `json:"output_filename"`
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	DownloadToken    string  `json:"download_token"`
	DownloadURL      string  `json:"download_url"`

	PreviewOriginalURL   string `json:"preview_original_url"`
	PreviewCompressedURL string `json:"preview_compressed_url"`

	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Files     []FileStatus `json:"files"`
}

// IsBatch reports whether the task was created by a batch upload.
func (t *TaskStatus) IsBatch() bool {
	return t != nil && (t.Total > 0 || len(t.Files) > 0)
}

// Terminal reports whether the task has finished, successfully or not.
func (t *TaskStatus) Terminal() bool {
	return t != nil && IsTerminal(t.Status)
}

// ServiceStatus is the service's self-report from /api/status.
type ServiceStatus struct {
	Status    string `json:"status"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	UploadDir string `json:"upload_dir"`
	OutputDir string `json:"output_dir"`
}
