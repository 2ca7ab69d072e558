// Package fetcher downloads remote map data with per-host rate limiting.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns the bytes written.
	// Nothing is left at path when the download fails.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
