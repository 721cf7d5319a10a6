package match

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flathound/flathound/app/database"
)

type fakeAlerts struct {
	alerts []database.Alert
	err    error
}

func (f *fakeAlerts) GetActive() ([]database.Alert, error) { return f.alerts, f.err }
func (f *fakeAlerts) GetActiveCount() (int, error)         { return len(f.alerts), nil }
func (f *fakeAlerts) DeleteStaleInactive(cutoff time.Time, limit int) (int64, error) {
	return 0, nil
}

type fakeListings struct {
	listings []database.Listing
	err      error
}

func (f *fakeListings) Insert(listing database.Listing) (bool, error) { return true, nil }
func (f *fakeListings) GetRecentActive(since time.Time, limit int) ([]database.Listing, error) {
	return f.listings, f.err
}
func (f *fakeListings) GetActiveCount() (int, error) { return len(f.listings), nil }
func (f *fakeListings) DeactivateOlderThan(cutoff time.Time, limit int) (int64, error) {
	return 0, nil
}
func (f *fakeListings) DeleteOlderThan(cutoff time.Time, limit int) (int64, error) {
	return 0, nil
}

type fakeNotifications struct {
	existing map[string]bool
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{existing: make(map[string]bool)}
}

func tripleKey(userID, alertID, listingID string) string {
	return fmt.Sprintf("%s|%s|%s", userID, alertID, listingID)
}

func (f *fakeNotifications) Exists(userID, alertID, listingID string) (bool, error) {
	return f.existing[tripleKey(userID, alertID, listingID)], nil
}

func (f *fakeNotifications) InsertIfAbsent(userID, alertID, listingID string) (bool, error) {
	key := tripleKey(userID, alertID, listingID)
	if f.existing[key] {
		return false, nil
	}
	f.existing[key] = true
	return true, nil
}

func (f *fakeNotifications) GetPendingBatch(limit int) ([]database.PendingNotification, error) {
	return nil, nil
}
func (f *fakeNotifications) GetPendingCount() (int, error)                      { return len(f.existing), nil }
func (f *fakeNotifications) MarkGroupSent(ids []string, messageID string) error { return nil }
func (f *fakeNotifications) MarkGroupFailed(ids []string, sendError string) error {
	return nil
}
func (f *fakeNotifications) ResetStaleFailed(cutoff time.Time, limit, maxAttempts int) (int64, error) {
	return 0, nil
}
func (f *fakeNotifications) DeleteOlderThan(cutoff time.Time, limit int) (int64, error) {
	return 0, nil
}

type fakeEstimator struct {
	minutes int
	err     error
	calls   int
}

func (f *fakeEstimator) EstimateMinutes(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (int, error) {
	f.calls++
	return f.minutes, f.err
}

func testListing(id string, price, bedrooms int, neighborhood string, pets *bool) database.Listing {
	return database.Listing{
		ID:           id,
		ExternalID:   "ext-" + id,
		Title:        "listing " + id,
		Price:        &price,
		Bedrooms:     &bedrooms,
		Neighborhood: neighborhood,
		PetFriendly:  pets,
		IsActive:     true,
	}
}

func newTestMatcher(alerts *fakeAlerts, listings *fakeListings, notifications *fakeNotifications, estimator Estimator, perAlertCap int) *Matcher {
	m := NewMatcher(alerts, listings, notifications, estimator, time.Hour, perAlertCap)
	m.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestMatcherPredicate(t *testing.T) {
	yes := true
	no := false
	intp := func(v int) *int { return &v }

	tests := []struct {
		name     string
		alert    database.Alert
		listing  database.Listing
		expected bool
	}{
		{
			"unconstrained alert matches anything",
			database.Alert{},
			testListing("1", 2000, 2, "Ballard", nil),
			true,
		},
		{
			"neighborhood match",
			database.Alert{Neighborhoods: []string{"Ballard", "Fremont"}},
			testListing("1", 2000, 2, "Ballard", nil),
			true,
		},
		{
			"neighborhood mismatch",
			database.Alert{Neighborhoods: []string{"Fremont"}},
			testListing("1", 2000, 2, "Ballard", nil),
			false,
		},
		{
			"unknown neighborhood never satisfies a constraint",
			database.Alert{Neighborhoods: []string{"Fremont"}},
			testListing("1", 2000, 2, "", nil),
			false,
		},
		{
			"price inside window",
			database.Alert{MinPrice: intp(1500), MaxPrice: intp(2500)},
			testListing("1", 2000, 2, "", nil),
			true,
		},
		{
			"price below minimum",
			database.Alert{MinPrice: intp(2100)},
			testListing("1", 2000, 2, "", nil),
			false,
		},
		{
			"price above maximum",
			database.Alert{MaxPrice: intp(1900)},
			testListing("1", 2000, 2, "", nil),
			false,
		},
		{
			"unknown price never satisfies a price bound",
			database.Alert{MaxPrice: intp(2500)},
			database.Listing{ID: "1", Neighborhood: "Ballard"},
			false,
		},
		{
			"bedrooms exact match",
			database.Alert{Bedrooms: intp(2)},
			testListing("1", 2000, 2, "", nil),
			true,
		},
		{
			"bedrooms mismatch",
			database.Alert{Bedrooms: intp(3)},
			testListing("1", 2000, 2, "", nil),
			false,
		},
		{
			"unknown bedrooms never satisfies a bedroom constraint",
			database.Alert{Bedrooms: intp(2)},
			database.Listing{ID: "1"},
			false,
		},
		{
			"pets required and listing allows",
			database.Alert{PetFriendly: true},
			testListing("1", 2000, 2, "", &yes),
			true,
		},
		{
			"pets required and listing forbids",
			database.Alert{PetFriendly: true},
			testListing("1", 2000, 2, "", &no),
			false,
		},
		{
			"pets required and policy unknown",
			database.Alert{PetFriendly: true},
			testListing("1", 2000, 2, "", nil),
			false,
		},
		{
			"pets not required ignores policy",
			database.Alert{PetFriendly: false},
			testListing("1", 2000, 2, "", &no),
			true,
		},
	}

	m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), nil, 10)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.satisfies(context.Background(), tt.alert, tt.listing); got != tt.expected {
				t.Errorf("satisfies() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestMatcherCommute(t *testing.T) {
	maxMinutes := 30
	lat, lon := 47.6145, -122.3210
	alert := database.Alert{
		ID:                "a1",
		UserID:            "u1",
		MaxCommuteMinutes: &maxMinutes,
		CommuteLat:        &lat,
		CommuteLon:        &lon,
	}

	listing := testListing("1", 2000, 2, "Ballard", nil)
	listing.Latitude = &lat
	listing.Longitude = &lon

	t.Run("within limit", func(t *testing.T) {
		m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), &fakeEstimator{minutes: 20}, 10)
		if !m.satisfies(context.Background(), alert, listing) {
			t.Error("Expected listing within commute limit to match")
		}
	})

	t.Run("over limit", func(t *testing.T) {
		m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), &fakeEstimator{minutes: 45}, 10)
		if m.satisfies(context.Background(), alert, listing) {
			t.Error("Expected listing over commute limit to be rejected")
		}
	})

	t.Run("estimator error fails open", func(t *testing.T) {
		m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), &fakeEstimator{err: errors.New("routing down")}, 10)
		if !m.satisfies(context.Background(), alert, listing) {
			t.Error("Expected estimator failure to leave the listing eligible")
		}
	})

	t.Run("no estimator fails open", func(t *testing.T) {
		m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), nil, 10)
		if !m.satisfies(context.Background(), alert, listing) {
			t.Error("Expected missing estimator to leave the listing eligible")
		}
	})

	t.Run("missing listing coordinates fail open", func(t *testing.T) {
		estimator := &fakeEstimator{minutes: 45}
		m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), estimator, 10)
		noCoords := testListing("1", 2000, 2, "Ballard", nil)
		if !m.satisfies(context.Background(), alert, noCoords) {
			t.Error("Expected listing without coordinates to stay eligible")
		}
		if estimator.calls != 0 {
			t.Errorf("Expected no estimator call without coordinates, got %d", estimator.calls)
		}
	})
}

func TestMatcherRun(t *testing.T) {
	alerts := &fakeAlerts{alerts: []database.Alert{
		{ID: "a1", UserID: "u1", Neighborhoods: []string{"Ballard"}},
		{ID: "a2", UserID: "u2"},
	}}
	listings := &fakeListings{listings: []database.Listing{
		testListing("l1", 2000, 2, "Ballard", nil),
		testListing("l2", 2400, 1, "Fremont", nil),
	}}
	notifications := newFakeNotifications()

	m := newTestMatcher(alerts, listings, notifications, nil, 10)
	result := m.Run(context.Background())

	if !result.Success {
		t.Errorf("Expected success, got errors %v", result.Errors)
	}
	// a1 matches only the Ballard listing, a2 matches both
	if result.MatchesFound != 3 {
		t.Errorf("Expected 3 matches, got %d", result.MatchesFound)
	}
	if result.NotificationsGenerated != 3 {
		t.Errorf("Expected 3 notifications, got %d", result.NotificationsGenerated)
	}
}

func TestMatcherIdempotence(t *testing.T) {
	alerts := &fakeAlerts{alerts: []database.Alert{{ID: "a1", UserID: "u1"}}}
	listings := &fakeListings{listings: []database.Listing{
		testListing("l1", 2000, 2, "Ballard", nil),
		testListing("l2", 2400, 1, "Fremont", nil),
	}}
	notifications := newFakeNotifications()
	m := newTestMatcher(alerts, listings, notifications, nil, 10)

	first := m.Run(context.Background())
	if first.NotificationsGenerated != 2 {
		t.Fatalf("Expected 2 notifications on first run, got %d", first.NotificationsGenerated)
	}

	second := m.Run(context.Background())
	if second.NotificationsGenerated != 0 {
		t.Errorf("Expected 0 notifications on unchanged second run, got %d", second.NotificationsGenerated)
	}
	if second.MatchesFound != 2 {
		t.Errorf("Expected matches still found on second run, got %d", second.MatchesFound)
	}
	if !second.Success {
		t.Error("Expected second run to succeed")
	}
}

func TestMatcherPerAlertCap(t *testing.T) {
	alerts := &fakeAlerts{alerts: []database.Alert{{ID: "a1", UserID: "u1"}}}
	var all []database.Listing
	for i := 0; i < 5; i++ {
		all = append(all, testListing(fmt.Sprintf("l%d", i), 2000, 2, "Ballard", nil))
	}
	listings := &fakeListings{listings: all}
	notifications := newFakeNotifications()

	m := newTestMatcher(alerts, listings, notifications, nil, 2)
	result := m.Run(context.Background())

	if result.NotificationsGenerated != 2 {
		t.Errorf("Expected cap of 2 notifications, got %d", result.NotificationsGenerated)
	}
	if len(notifications.existing) != 2 {
		t.Errorf("Expected 2 stored notifications, got %d", len(notifications.existing))
	}
}

func TestMatcherNoAlerts(t *testing.T) {
	m := newTestMatcher(&fakeAlerts{}, &fakeListings{}, newFakeNotifications(), nil, 10)
	result := m.Run(context.Background())

	if !result.Success {
		t.Error("Expected empty run to succeed")
	}
	if result.MatchesFound != 0 {
		t.Errorf("Expected no matches, got %d", result.MatchesFound)
	}
}

func TestMatcherAlertLoadFailure(t *testing.T) {
	m := newTestMatcher(&fakeAlerts{err: errors.New("db down")}, &fakeListings{}, newFakeNotifications(), nil, 10)
	result := m.Run(context.Background())

	if result.Success {
		t.Error("Expected run to fail when alerts cannot be loaded")
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 error, got %v", result.Errors)
	}
}
