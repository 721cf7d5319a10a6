package parser

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// Parser turns region search feeds (RSS/Atom) into raw listing fragments
type Parser struct {
	gofeedParser *gofeed.Parser
}

// NewParser creates a new feed parser
func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Parse parses feed data and returns the raw listings it carries
func (p *Parser) Parse(data []byte) ([]RawListing, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	listings := make([]RawListing, 0, len(feed.Items))
	for _, item := range feed.Items {
		listings = append(listings, p.rawListing(item))
	}

	return listings, nil
}

// rawListing converts a gofeed.Item to our RawListing wire form
func (p *Parser) rawListing(item *gofeed.Item) RawListing {
	raw := RawListing{
		ExternalID:  p.coalesce(item.GUID, item.Link),
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		GeoPoint:    extractGeoPoint(item),
	}

	if item.PublishedParsed != nil {
		raw.PostedAt = item.PublishedParsed
	} else {
		// Some boards emit a human relative label instead of a timestamp;
		// keep the raw text for the recency filter to interpret.
		raw.PostedLabel = item.Published
	}

	if item.Categories != nil {
		raw.Categories = item.Categories
	}

	return raw
}

// extractGeoPoint pulls an embedded georss point ("lat lon") when the feed has one
func extractGeoPoint(item *gofeed.Item) string {
	ns, ok := item.Extensions["georss"]
	if !ok {
		return ""
	}
	points, ok := ns["point"]
	if !ok || len(points) == 0 {
		return ""
	}
	return points[0].Value
}

// coalesce returns the first non-empty string from the provided values
func (p *Parser) coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
