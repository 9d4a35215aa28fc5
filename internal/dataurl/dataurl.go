// Package dataurl renders cached payloads as RFC 2397 data URLs so
// callers can hand them straight to anything that accepts a URL, without
// touching the filesystem or the network.
package dataurl

import (
	"encoding/base64"
	"fmt"
	"strings"

	"squeeze/internal/blobstore"
)

const defaultMimeType = "application/octet-stream"

const scheme = "data:"

// Encode renders payload as a base64 data URL. A blank MIME type falls
// back to application/octet-stream.
func Encode(mimeType string, payload []byte) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return scheme + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

// FromEntry renders a store entry as a data URL. A nil entry yields "".
func FromEntry(entry *blobstore.Entry) string {
	if entry == nil {
		return ""
	}
	return Encode(entry.MimeType, entry.Payload)
}

// Decode parses a base64 data URL back into its MIME type and payload.
func Decode(raw string) (string, []byte, error) {
	if !strings.HasPrefix(raw, scheme) {
		return "", nil, fmt.Errorf("not a data url: %q", truncate(raw))
	}
	rest := strings.TrimPrefix(raw, scheme)
	mimeType, encoded, found := strings.Cut(rest, ";base64,")
	if !found {
		return "", nil, fmt.Errorf("data url missing base64 marker: %q", truncate(raw))
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url payload: %w", err)
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return mimeType, payload, nil
}

func truncate(raw string) string {
	const limit = 48
	if len(raw) <= limit {
		return raw
	}
	return raw[:limit] + "..."
}
