package harvest

import (
	"github.com/flathound/flathound/app/database"
)

type Depth string

const (
	DepthShallow  Depth = "shallow"
	DepthEnhanced Depth = "enhanced"
)

// Options controls one harvest run
type Options struct {
	RecencyMinutes int   `json:"recency_minutes"`
	DetailDepth    Depth `json:"detail_depth"`
	Persist        bool  `json:"persist"`
}

// Result is the structured outcome of one harvest run
type Result struct {
	Success         bool               `json:"success"`
	TotalFound      int                `json:"total_found"`
	NewListings     int                `json:"new_listings"`
	Duplicates      int                `json:"duplicates"`
	PerRegionCounts map[string]int     `json:"per_region_counts"`
	Listings        []database.Listing `json:"-"`
	Errors          []string           `json:"errors,omitempty"`
}
