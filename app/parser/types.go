package parser

import (
	"time"
)

// RawListing is one posting fragment as the source feed carries it, before
// any field normalization.
type RawListing struct {
	ExternalID  string
	Title       string
	Link        string
	Description string
	PostedAt    *time.Time // Machine-readable publish time when the feed has one
	PostedLabel string     // Raw publish text otherwise, often a relative label ("45m ago")
	GeoPoint    string     // Embedded map reference as "lat lon", when present
	Categories  []string
}
