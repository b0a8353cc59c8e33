package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"
)

// Downloader fetches image bytes from the catalog CDN
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// NewDownloader creates a downloader with its own timeout and size cap
func NewDownloader(timeout time.Duration, maxBytes int64, logger *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		logger:     logger.With("component", "downloader"),
	}
}

// Download returns the body and media type of src. Every failure wraps ErrDownload.
func (d *Downloader) Download(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownload, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			d.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d for %s", ErrDownload, resp.StatusCode, src)
	}

	// Read one byte past the cap to detect oversized bodies
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", fmt.Errorf("%w: image exceeds %d bytes", ErrDownload, d.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body for %s", ErrDownload, src)
	}

	mediaType := http.DetectContentType(data)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = parsed
		}
	}

	d.logger.Debug("Downloaded image", "src", src, "bytes", len(data), "media_type", mediaType)
	return data, mediaType, nil
}
