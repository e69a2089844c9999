package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// ContentStore caches extracted transcript text on disk, keyed by
// sha256(transcript_id|source_url), so a retried or force-reanalyzed job
// never re-downloads a transcript it already fetched.
type ContentStore struct {
	dir    string
	client *http.Client
}

func NewContentStore(dir string, client *http.Client) *ContentStore {
	return &ContentStore{dir: dir, client: client}
}

func contentKey(transcriptID, sourceURL string) string {
	sum := sha256.Sum256([]byte(transcriptID + "|" + sourceURL))
	return hex.EncodeToString(sum[:])
}

func (c *ContentStore) path(transcriptID, sourceURL string) string {
	return filepath.Join(c.dir, contentKey(transcriptID, sourceURL)+".txt")
}

// Fetch returns the cached extracted text at contentPath when present,
// otherwise downloads from sourceURL, extracts it, stores the result, and
// returns both the text and the path it was written to.
func (c *ContentStore) Fetch(ctx context.Context, transcriptID, sourceURL, contentPath string) (text string, path string, err error) {
	if contentPath != "" {
		if data, err := os.ReadFile(contentPath); err == nil {
			return string(data), contentPath, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build transcript download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("download transcript: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("download transcript: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read transcript body: %w", err)
	}

	extracted, err := extract(raw)
	if err != nil {
		return "", "", fmt.Errorf("extract transcript text: %w", err)
	}

	dest := c.path(transcriptID, sourceURL)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", "", fmt.Errorf("create content store dir: %w", err)
	}
	if err := os.WriteFile(dest, []byte(extracted), 0o644); err != nil {
		return "", "", fmt.Errorf("write content store file: %w", err)
	}

	return extracted, dest, nil
}

// extract picks a strategy from the sniffed MIME type. HTML and plain text
// both pass through as-is here; a real PDF/HTML-to-text pipeline is left
// for a future content type.
func extract(raw []byte) (string, error) {
	mt := mimetype.Detect(raw)
	switch {
	case mt.Is("text/plain"), mt.Is("text/html"):
		return string(raw), nil
	default:
		return string(raw), nil
	}
}
