package match

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/flathound/flathound/app/database"
)

const recentListingsLimit = 500

// Result is the structured outcome of one match run
type Result struct {
	Success                bool     `json:"success"`
	MatchesFound           int      `json:"matches_found"`
	NotificationsGenerated int      `json:"notifications_generated"`
	Errors                 []string `json:"errors,omitempty"`
}

// Matcher cross-references recently harvested listings against active
// alerts and records a pending notification for every new match.
type Matcher struct {
	alerts        database.AlertRepository
	listings      database.ListingRepository
	notifications database.NotificationRepository
	estimator     Estimator // nil disables the commute constraint
	lookback      time.Duration
	perAlertCap   int

	now func() time.Time
}

func NewMatcher(alerts database.AlertRepository, listings database.ListingRepository,
	notifications database.NotificationRepository, estimator Estimator,
	lookback time.Duration, perAlertCap int) *Matcher {
	return &Matcher{
		alerts:        alerts,
		listings:      listings,
		notifications: notifications,
		estimator:     estimator,
		lookback:      lookback,
		perAlertCap:   perAlertCap,
		now:           time.Now,
	}
}

// Run executes one match pass. Per-alert failures are isolated; the run
// only counts as failed when the candidate sets cannot be loaded at all.
func (m *Matcher) Run(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{Success: true}

	alerts, err := m.alerts.GetActive()
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("load alerts: %v", err))
		return result
	}
	if len(alerts) == 0 {
		slog.Info("No active alerts, nothing to match")
		return result
	}

	since := m.now().Add(-m.lookback)
	listings, err := m.listings.GetRecentActive(since, recentListingsLimit)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("load listings: %v", err))
		return result
	}
	if len(listings) == 0 {
		slog.Info("No recent listings, nothing to match")
		return result
	}

	for _, alert := range alerts {
		if ctx.Err() != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("match aborted: %v", ctx.Err()))
			break
		}
		m.matchAlert(ctx, alert, listings, result)
	}

	slog.Info("Match completed",
		"duration", time.Since(start),
		"alerts", len(alerts),
		"listings", len(listings),
		"matches_found", result.MatchesFound,
		"notifications_generated", result.NotificationsGenerated,
		"errors", len(result.Errors))
	return result
}

func (m *Matcher) matchAlert(ctx context.Context, alert database.Alert, listings []database.Listing, result *Result) {
	recorded := 0
	for _, listing := range listings {
		if recorded >= m.perAlertCap {
			slog.Debug("Per-alert match cap reached", "alert", alert.ID, "cap", m.perAlertCap)
			break
		}
		if !m.satisfies(ctx, alert, listing) {
			continue
		}
		result.MatchesFound++

		exists, err := m.notifications.Exists(alert.UserID, alert.ID, listing.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("alert %s listing %s: %v", alert.ID, listing.ID, err))
			continue
		}
		if exists {
			continue
		}

		inserted, err := m.notifications.InsertIfAbsent(alert.UserID, alert.ID, listing.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("alert %s listing %s: %v", alert.ID, listing.ID, err))
			continue
		}
		if inserted {
			result.NotificationsGenerated++
			recorded++
		}
	}
}

// satisfies reports whether every criterion of the alert holds for the
// listing. A listing missing a value for a constrained field does not
// match; the commute criterion alone fails open when no estimate can be
// produced.
func (m *Matcher) satisfies(ctx context.Context, alert database.Alert, listing database.Listing) bool {
	if len(alert.Neighborhoods) > 0 {
		if listing.Neighborhood == "" || !slices.Contains(alert.Neighborhoods, listing.Neighborhood) {
			return false
		}
	}

	if alert.MinPrice != nil {
		if listing.Price == nil || *listing.Price < *alert.MinPrice {
			return false
		}
	}
	if alert.MaxPrice != nil {
		if listing.Price == nil || *listing.Price > *alert.MaxPrice {
			return false
		}
	}

	if alert.Bedrooms != nil {
		if listing.Bedrooms == nil || *listing.Bedrooms != *alert.Bedrooms {
			return false
		}
	}

	if alert.PetFriendly {
		if listing.PetFriendly == nil || !*listing.PetFriendly {
			return false
		}
	}

	return m.commuteAcceptable(ctx, alert, listing)
}

func (m *Matcher) commuteAcceptable(ctx context.Context, alert database.Alert, listing database.Listing) bool {
	if alert.MaxCommuteMinutes == nil || alert.CommuteLat == nil || alert.CommuteLon == nil {
		return true
	}
	if m.estimator == nil {
		return true
	}
	if listing.Latitude == nil || listing.Longitude == nil {
		return true
	}

	minutes, err := m.estimator.EstimateMinutes(ctx,
		*listing.Latitude, *listing.Longitude, *alert.CommuteLat, *alert.CommuteLon)
	if err != nil {
		slog.Debug("Commute estimate unavailable", "alert", alert.ID, "listing", listing.ID, "error", err)
		return true
	}

	return minutes <= *alert.MaxCommuteMinutes
}
