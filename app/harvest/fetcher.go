package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/flathound/flathound/app/parser"
	"github.com/flathound/flathound/app/regions"
)

const detailTimeout = 20 * time.Second

// Fetcher downloads region feeds and listing detail pages.
type Fetcher struct {
	client    *http.Client
	parser    *parser.Parser
	userAgent string
}

func NewFetcher(client *http.Client, p *parser.Parser, userAgent string) *Fetcher {
	return &Fetcher{
		client:    client,
		parser:    p,
		userAgent: userAgent,
	}
}

// FetchRegion downloads and parses one region feed, honoring the
// region's timeout and item cap.
func (f *Fetcher) FetchRegion(ctx context.Context, region regions.Region) ([]parser.RawListing, error) {
	timeout := time.Duration(region.Settings.Timeout) * time.Second
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := f.get(fetchCtx, region.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch region %s: %w", region.Name, err)
	}

	raws, err := f.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse region %s: %w", region.Name, err)
	}

	if max := region.Settings.MaxItems; max > 0 && len(raws) > max {
		raws = raws[:max]
	}
	return raws, nil
}

// FetchDetail downloads a listing page and extracts its readable text.
func (f *Fetcher) FetchDetail(ctx context.Context, pageURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, detailTimeout)
	defer cancel()

	data, err := f.get(fetchCtx, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch detail page: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract detail content: %w", err)
	}
	return article.TextContent, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
