package remote

import (
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/klauspost/compress/zip"
)

// ArchiveFile is one extracted member of a batch download archive.
type ArchiveFile struct {
	Name string
	Data []byte
}

// ExtractArchive unpacks a service ZIP archive into memory. The service
// writes flat archives, so entry names are reduced to their base name
// and directory entries are skipped.
func ExtractArchive(data []byte) ([]ArchiveFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	files := make([]ArchiveFile, 0, len(reader.File))
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s: %w", entry.Name, err)
		}
		payload, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s: %w", entry.Name, err)
		}
		files = append(files, ArchiveFile{Name: path.Base(entry.Name), Data: payload})
	}
	return files, nil
}
