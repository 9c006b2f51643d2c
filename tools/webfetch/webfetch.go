package webfetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// Fetcher pulls a page over plain HTTP and extracts its readable text,
// used to expand top search hits into fuller evidence during deep dives.
type Fetcher struct {
	client  *http.Client
	maxText int
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxText: 4000,
	}
}

// FetchReadable returns the readable text content of a URL.
func (f *Fetcher) FetchReadable(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "planscribe/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", fmt.Errorf("readability %s: %w", rawURL, err)
	}
	text := article.TextContent
	if len(text) > f.maxText {
		text = text[:f.maxText]
	}
	return text, nil
}
