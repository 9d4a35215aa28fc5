package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StagedFile carries everything the cache and upload paths need to know about
// a local media file: identity inputs for key derivation plus the payload.
type StagedFile struct {
	Path     string
	Name     string
	Size     int64
	Modified time.Time
	MimeType string
	Data     []byte
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".webp": "image/webp",
}

var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
}

// IsSupportedMedia reports whether the file extension names a media type the
// compression service accepts.
func IsSupportedMedia(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := imageExtensions[ext]; ok {
		return true
	}
	_, ok := videoExtensions[ext]
	return ok
}

// DetectMimeType maps a file name to a MIME type by extension. Unknown
// extensions fall back to application/octet-stream.
func DetectMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mime, ok := imageExtensions[ext]; ok {
		return mime
	}
	if mime, ok := videoExtensions[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ReadStaged loads the file at path into staged form. The returned Size and
// Modified values come from the same stat the payload read follows, so key
// derivation sees a consistent snapshot.
func ReadStaged(path string) (*StagedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat staged file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("staged path %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	name := filepath.Base(path)
	return &StagedFile{
		Path:     path,
		Name:     name,
		Size:     info.Size(),
		Modified: info.ModTime(),
		MimeType: DetectMimeType(name),
		Data:     data,
	}, nil
}
