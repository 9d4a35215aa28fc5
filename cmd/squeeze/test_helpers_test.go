package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"

	"squeeze/internal/remote"
)

type cliTestEnv struct {
	service     *fakeService
	baseDir     string
	configPath  string
	cacheDir    string
	downloadDir string
	logDir      string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(base, "xdg-cache"))

	env := &cliTestEnv{
		baseDir:     base,
		configPath:  filepath.Join(base, "config.toml"),
		cacheDir:    filepath.Join(base, "cache"),
		downloadDir: filepath.Join(base, "downloads"),
		logDir:      filepath.Join(base, "logs"),
	}
	for _, dir := range []string{env.cacheDir, env.downloadDir, env.logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	env.service = newFakeService(t)
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	writeTestConfigWorkflow(t, env, "poll_interval = 1\npoll_timeout = 30")
}

func writeTestConfigWorkflow(t *testing.T, env *cliTestEnv, workflow string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
cache_dir = %q
download_dir = %q
log_dir = %q

[server]
base_url = %q

[workflow]
%s

[logging]
level = "debug"
format = "console"
`, env.cacheDir, env.downloadDir, env.logDir, env.service.server.URL, workflow)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// writeMediaFile drops an input fixture outside the managed directories,
// the way a user's source file would live anywhere on disk.
func writeMediaFile(t *testing.T, env *cliTestEnv, name, content string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input %s: %v", name, err)
	}
	return path
}

// runCLI executes one full command invocation: fresh root command, fresh
// session, store opened and closed. Cross-invocation state lives only in
// the cache database and the fake service, as it would for a real user.
func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q to not contain %q", output, substr)
	}
}

type fakeBlob struct {
	data     []byte
	mimeType string
}

// fakeService plays the compression service: it accepts uploads, serves
// scripted status snapshots, and hands out blobs and archives. Tests
// inspect what the CLI actually sent and fetched.
type fakeService struct {
	server *httptest.Server
	host   string
	port   int

	mu         sync.Mutex
	nextTaskID string
	workers    string
	tasks      map[string][]*remote.TaskStatus
	blobs      map[string]fakeBlob
	blobHits   map[string]int
	archives   map[string]map[string][]byte
	uploads    []string
	batches    [][]string
	started    []string
	deleted    []string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		nextTaskID: "task-1",
		workers:    "running",
		tasks:      make(map[string][]*remote.TaskStatus),
		blobs:      make(map[string]fakeBlob),
		blobHits:   make(map[string]int),
		archives:   make(map[string]map[string][]byte),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)

	parsed, err := url.Parse(f.server.URL)
	if err != nil {
		t.Fatalf("parse fake service url: %v", err)
	}
	f.host = parsed.Hostname()
	f.port, _ = strconv.Atoi(parsed.Port())
	return f
}

func (f *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/status":
		f.mu.Lock()
		workers := f.workers
		f.mu.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status":     workers,
			"host":       f.host,
			"port":       f.port,
			"upload_dir": "/srv/uploads",
			"output_dir": "/srv/outputs",
		})

	case path == "/api/upload" && r.Method == http.MethodPost:
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, map[string]any{"error": "no file"})
			return
		}
		file.Close()
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		taskID := f.nextTaskID
		f.mu.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"task_id":     taskID,
			"filename":    header.Filename,
			"file_ext":    filepath.Ext(header.Filename),
			"upload_size": header.Size,
			"message":     "uploaded",
		})

	case path == "/api/upload-batch" && r.Method == http.MethodPost:
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, map[string]any{"error": "bad multipart"})
			return
		}
		headers := r.MultipartForm.File["files"]
		names := make([]string, 0, len(headers))
		entries := make([]map[string]any, 0, len(headers))
		for _, header := range headers {
			names = append(names, header.Filename)
			entries = append(entries, map[string]any{
				"original_filename": header.Filename,
				"file_ext":          filepath.Ext(header.Filename),
				"upload_size":       header.Size,
				"status":            "uploaded",
			})
		}
		f.mu.Lock()
		f.batches = append(f.batches, names)
		taskID := f.nextTaskID
		f.mu.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"task_id": taskID,
			"total":   len(names),
			"files":   entries,
			"message": "uploaded",
		})

	case strings.HasPrefix(path, "/api/start-compress/"):
		taskID := strings.TrimPrefix(path, "/api/start-compress/")
		f.mu.Lock()
		f.started = append(f.started, taskID)
		f.mu.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]any{"message": "compression started"})

	case strings.HasPrefix(path, "/api/task/"):
		taskID := strings.TrimPrefix(path, "/api/task/")
		f.mu.Lock()
		queue := f.tasks[taskID]
		var status *remote.TaskStatus
		if len(queue) > 0 {
			status = queue[0]
			if len(queue) > 1 {
				f.tasks[taskID] = queue[1:]
			}
		}
		f.mu.Unlock()
		if status == nil {
			writeJSONResponse(w, http.StatusNotFound, map[string]any{"error": "task not found"})
			return
		}
		writeJSONResponse(w, http.StatusOK, status)

	case strings.HasPrefix(path, "/api/download-all/"):
		taskID := strings.TrimPrefix(path, "/api/download-all/")
		f.mu.Lock()
		files := f.archives[taskID]
		f.mu.Unlock()
		if files == nil {
			writeJSONResponse(w, http.StatusNotFound, map[string]any{"error": "task not found"})
			return
		}
		var buf bytes.Buffer
		writer := zip.NewWriter(&buf)
		for name, data := range files {
			entry, err := writer.Create(name)
			if err != nil {
				writeJSONResponse(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			if _, err := entry.Write(data); err != nil {
				writeJSONResponse(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
		}
		if err := writer.Close(); err != nil {
			writeJSONResponse(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "compressed_"+taskID+".zip"))
		w.Write(buf.Bytes())

	case strings.HasPrefix(path, "/api/download/"):
		f.mu.Lock()
		blob, ok := f.blobs[path]
		f.blobHits[path]++
		f.mu.Unlock()
		if !ok {
			writeJSONResponse(w, http.StatusNotFound, map[string]any{"error": "file not found"})
			return
		}
		w.Header().Set("Content-Type", blob.mimeType)
		w.Write(blob.data)

	case strings.HasPrefix(path, "/api/delete/"):
		taskID := strings.TrimPrefix(path, "/api/delete/")
		f.mu.Lock()
		f.deleted = append(f.deleted, taskID)
		f.mu.Unlock()
		writeJSONResponse(w, http.StatusOK, map[string]any{"message": "task deleted"})

	default:
		writeJSONResponse(w, http.StatusNotFound, map[string]any{"error": "unknown endpoint"})
	}
}

func writeJSONResponse(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// setTask scripts the status snapshots served for taskID, in order. The
// last snapshot repeats once the queue is drained.
func (f *fakeService) setTask(taskID string, statuses ...*remote.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID] = statuses
}

func (f *fakeService) addBlob(path string, data []byte, mimeType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[path] = fakeBlob{data: data, mimeType: mimeType}
}

func (f *fakeService) setArchive(taskID string, files map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives[taskID] = files
}

func (f *fakeService) setWorkers(state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers = state
}

func (f *fakeService) uploadedFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

func (f *fakeService) batchUploads() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func (f *fakeService) startedTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeService) deletedTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeService) blobHitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobHits[path]
}

const singleDownloadPath = "/api/download/task-1/compressed_clip.mp4"

func processingSingle(progress int) *remote.TaskStatus {
	return &remote.TaskStatus{
		Status:     remote.StatusProcessing,
		Progress:   progress,
		Filename:   "clip.mp4",
		FileExt:    ".mp4",
		UploadSize: 11,
	}
}

func completedSingle() *remote.TaskStatus {
	return &remote.TaskStatus{
		Status:           remote.StatusCompleted,
		Progress:         100,
		Filename:         "clip.mp4",
		FileExt:          ".mp4",
		UploadSize:       11,
		OutputFilename:   "compressed_clip.mp4",
		OriginalSize:     11,
		CompressedSize:   7,
		CompressionRatio: 36.4,
		DownloadToken:    "tok-1",
		DownloadURL:      singleDownloadPath + "?token=tok-1",
	}
}

func failedSingle(message string) *remote.TaskStatus {
	return &remote.TaskStatus{
		Status:   remote.StatusFailed,
		Filename: "clip.mp4",
		FileExt:  ".mp4",
		Error:    message,
	}
}

// completedBatch builds a finished two-file batch status for taskID with
// per-file download paths under /api/download/<taskID>/.
func completedBatch(taskID string) *remote.TaskStatus {
	return &remote.TaskStatus{
		Status:    remote.StatusCompleted,
		Progress:  100,
		Total:     2,
		Completed: 2,
		Files: []remote.FileStatus{
			{
				OriginalFilename: "first.mp4",
				OutputFilename:   "compressed_first.mp4",
				FileExt:          ".mp4",
				UploadSize:       9,
				OriginalSize:     9,
				CompressedSize:   5,
				CompressionRatio: 44.4,
				Status:           remote.StatusCompleted,
				DownloadToken:    "tok-b0",
				DownloadURL:      "/api/download/" + taskID + "/compressed_first.mp4?token=tok-b0",
			},
			{
				OriginalFilename: "second.webm",
				OutputFilename:   "compressed_second.webm",
				FileExt:          ".webm",
				UploadSize:       10,
				OriginalSize:     10,
				CompressedSize:   6,
				CompressionRatio: 40.0,
				Status:           remote.StatusCompleted,
				DownloadToken:    "tok-b1",
				DownloadURL:      "/api/download/" + taskID + "/compressed_second.webm?token=tok-b1",
			},
		},
	}
}
