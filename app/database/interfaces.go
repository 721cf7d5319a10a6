package database

import (
	"time"
)

type ListingRepository interface {
	Insert(listing Listing) (bool, error)
	GetRecentActive(since time.Time, limit int) ([]Listing, error)
	GetActiveCount() (int, error)
	DeactivateOlderThan(cutoff time.Time, limit int) (int64, error)
	DeleteOlderThan(cutoff time.Time, limit int) (int64, error)
}

type AlertRepository interface {
	GetActive() ([]Alert, error)
	GetActiveCount() (int, error)
	DeleteStaleInactive(cutoff time.Time, limit int) (int64, error)
}

type NotificationRepository interface {
	Exists(userID, alertID, listingID string) (bool, error)
	InsertIfAbsent(userID, alertID, listingID string) (bool, error)
	GetPendingBatch(limit int) ([]PendingNotification, error)
	GetPendingCount() (int, error)
	MarkGroupSent(ids []string, messageID string) error
	MarkGroupFailed(ids []string, sendError string) error
	ResetStaleFailed(cutoff time.Time, limit int, maxAttempts int) (int64, error)
	DeleteOlderThan(cutoff time.Time, limit int) (int64, error)
}

type TokenRepository interface {
	DeleteOlderThan(cutoff time.Time, limit int) (int64, error)
}
