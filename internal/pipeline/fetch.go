package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/afero"
)

// Fetcher retrieves the raw bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// SourceFetcher reads http(s) URIs over the network and file:// URIs or
// plain paths from a filesystem.
type SourceFetcher struct {
	client  *http.Client
	fs      afero.Fs
	timeout time.Duration
}

// NewSourceFetcher creates a fetcher. A nil client uses http.DefaultClient;
// timeout bounds each request when positive.
func NewSourceFetcher(client *http.Client, fsys afero.Fs, timeout time.Duration) *SourceFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &SourceFetcher{client: client, fs: fsys, timeout: timeout}
}

func (f *SourceFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid source uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.get(ctx, uri)
	case "file":
		return afero.ReadFile(f.fs, u.Path)
	case "":
		return afero.ReadFile(f.fs, uri)
	}
	return nil, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, uri)
}

func (f *SourceFetcher) get(ctx context.Context, uri string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %s", uri, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, nil
}
