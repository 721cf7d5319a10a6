package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flathound/flathound/app/database"
	"github.com/flathound/flathound/app/parser"
	"github.com/flathound/flathound/app/regions"
)

// RegionFetcher is the slice of Fetcher the harvester needs.
type RegionFetcher interface {
	FetchRegion(ctx context.Context, region regions.Region) ([]parser.RawListing, error)
	FetchDetail(ctx context.Context, pageURL string) (string, error)
}

// Harvester pulls every enabled region feed, filters entries to the
// recency window, normalizes them and persists the survivors.
type Harvester struct {
	regions     *regions.Cache
	fetcher     RegionFetcher
	normalizer  *Normalizer
	listings    database.ListingRepository
	regionDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewHarvester(regionCache *regions.Cache, fetcher RegionFetcher, normalizer *Normalizer,
	listings database.ListingRepository, regionDelay time.Duration) *Harvester {
	return &Harvester{
		regions:     regionCache,
		fetcher:     fetcher,
		normalizer:  normalizer,
		listings:    listings,
		regionDelay: regionDelay,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Run executes one harvest pass over all enabled regions. A failing
// region never aborts the pass; the run only counts as failed when
// every region fails or the context is cancelled.
func (h *Harvester) Run(ctx context.Context, opts Options) *Result {
	start := time.Now()
	result := &Result{PerRegionCounts: make(map[string]int)}

	enabled := h.regions.Enabled()
	if len(enabled) == 0 {
		slog.Warn("No enabled regions configured, nothing to harvest")
		result.Success = true
		return result
	}

	failedRegions := 0
	for i, region := range enabled {
		if i > 0 {
			h.sleep(ctx, h.regionDelay)
		}
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("harvest aborted: %v", ctx.Err()))
			break
		}

		kept, found, err := h.harvestRegion(ctx, region, opts, result)
		if err != nil {
			slog.Error("Region harvest failed", "region", region.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("region %s: %v", region.Name, err))
			failedRegions++
			continue
		}

		result.PerRegionCounts[region.Name] = kept
		slog.Info("Region harvested", "region", region.Name, "found", found, "kept", kept)
	}

	if opts.Persist && ctx.Err() == nil {
		h.persist(result)
	}

	result.Success = ctx.Err() == nil && failedRegions < len(enabled)

	slog.Info("Harvest completed",
		"duration", time.Since(start),
		"total_found", result.TotalFound,
		"new_listings", result.NewListings,
		"duplicates", result.Duplicates,
		"errors", len(result.Errors))
	return result
}

func (h *Harvester) harvestRegion(ctx context.Context, region regions.Region, opts Options, result *Result) (int, int, error) {
	raws, err := h.fetcher.FetchRegion(ctx, region)
	if err != nil {
		return 0, 0, err
	}

	now := h.now()
	kept := 0
	for _, raw := range raws {
		result.TotalFound++

		if !WithinWindow(raw, now, opts.RecencyMinutes) {
			continue
		}

		listing := h.normalizer.Normalize(raw, now)
		if opts.DetailDepth == DepthEnhanced {
			h.enrich(ctx, &listing, raw, result)
		}

		result.Listings = append(result.Listings, listing)
		kept++
	}
	return kept, len(raws), nil
}

func (h *Harvester) enrich(ctx context.Context, listing *database.Listing, raw parser.RawListing, result *Result) {
	detail, err := h.fetcher.FetchDetail(ctx, raw.Link)
	if err != nil {
		// Enhanced extraction is best-effort; the shallow listing stands.
		result.Errors = append(result.Errors, fmt.Sprintf("detail %s: %v", raw.ExternalID, err))
		return
	}
	h.normalizer.Enrich(listing, detail)
}

func (h *Harvester) persist(result *Result) {
	for _, listing := range result.Listings {
		inserted, err := h.listings.Insert(listing)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persist %s: %v", listing.ExternalID, err))
			continue
		}
		if inserted {
			result.NewListings++
		} else {
			result.Duplicates++
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
