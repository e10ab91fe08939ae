package inbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// sidecarSuffix is appended to a document's stem to locate its metadata file,
// e.g. invoice_001.pdf -> invoice_001.meta.json.
const sidecarSuffix = ".meta.json"

// metaKeyReceived is the sidecar field carrying the upstream receipt time.
const metaKeyReceived = "received_timestamp"

// sidecarPath returns the sidecar metadata path for a document path.
func sidecarPath(docPath string) string {
	ext := filepath.Ext(docPath)
	return strings.TrimSuffix(docPath, ext) + sidecarSuffix
}

// isSidecar reports whether path names a sidecar metadata file.
func isSidecar(path string) bool {
	return strings.HasSuffix(path, sidecarSuffix)
}

// readSidecar loads sidecar metadata for docPath. A missing sidecar yields an
// empty map; a malformed one yields an empty map and the parse error so the
// caller can log it. Sidecar problems are never fatal.
func readSidecar(docPath string) (map[string]string, error) {
	data, err := os.ReadFile(sidecarPath(docPath))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return map[string]string{}, err
	}
	var meta map[string]string
	if err := json.Unmarshal(data, &meta); err != nil {
		return map[string]string{}, err
	}
	if meta == nil {
		meta = map[string]string{}
	}
	return meta, nil
}

// parseReceivedTimestamp parses an ISO-8601 timestamp from sidecar metadata,
// tolerant of a trailing UTC marker ("Z" or " UTC"). Returns false when the
// field is absent or unparseable.
func parseReceivedTimestamp(meta map[string]string) (time.Time, bool) {
	raw, ok := meta[metaKeyReceived]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	trimmed := strings.TrimSuffix(strings.TrimSuffix(raw, " UTC"), "Z")
	if t, err := time.Parse("2006-01-02T15:04:05", trimmed); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
