package database

import (
	"time"
)

type Listing struct {
	ID           string // Database UUID
	ExternalID   string // Source posting identifier, dedup key
	Title        string
	URL          string
	Price        *int // Normalized monthly price, nil when missing or outside the configured band
	Bedrooms     *int // nil when not extractable; 0 means studio
	Neighborhood string
	Latitude     *float64
	Longitude    *float64
	PetFriendly  *bool // Tri-state: true/false/nil (unknown)
	PostedAt     *time.Time
	HarvestedAt  time.Time
	IsActive     bool
	RiskScore    int // Count of scam-signal keyword hits, advisory only
	CreatedAt    time.Time
}

type Alert struct {
	ID                string
	UserID            string
	Neighborhoods     []string // Empty set imposes no neighborhood constraint
	MinPrice          *int
	MaxPrice          *int
	Bedrooms          *int // Exact match when set
	PetFriendly       bool // true = listing must be explicitly pet-friendly
	CommuteLat        *float64
	CommuteLon        *float64
	MaxCommuteMinutes *int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type User struct {
	ID               string
	Email            string
	IsActive         bool
	UnsubscribeToken string
	CreatedAt        time.Time
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type Notification struct {
	ID        string
	UserID    string
	AlertID   string
	ListingID string
	Status    NotificationStatus
	Attempts  int
	LastError string
	MessageID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingNotification is a pending row joined with the recipient and the
// matched listing, shaped for the notifier's per-recipient batching.
type PendingNotification struct {
	NotificationID   string
	UserID           string
	AlertID          string
	ListingID        string
	Email            string
	UnsubscribeToken string
	ListingTitle     string
	ListingURL       string
	ListingPrice     *int
	ListingBedrooms  *int
	Neighborhood     string
}
