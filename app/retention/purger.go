package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flathound/flathound/app/database"
)

// Ages holds the per-class retention thresholds.
type Ages struct {
	ListingActive time.Duration // active listings older than this are deactivated
	ListingPurge  time.Duration // listings older than this are deleted outright
	Notification  time.Duration // sent/failed notification history
	Token         time.Duration // auth tokens
	AlertStale    time.Duration // inactive alerts unchanged past this
}

// Result is the structured outcome of one retention run
type Result struct {
	Success              bool     `json:"success"`
	ListingsDeactivated  int64    `json:"listings_deactivated"`
	ListingsDeleted      int64    `json:"listings_deleted"`
	NotificationsDeleted int64    `json:"notifications_deleted"`
	TokensDeleted        int64    `json:"tokens_deleted"`
	AlertsDeleted        int64    `json:"alerts_deleted"`
	Errors               []string `json:"errors,omitempty"`
}

// Purger ages out rows class by class. Deletes run in chunks so no
// single statement holds long locks on large tables.
type Purger struct {
	listings      database.ListingRepository
	notifications database.NotificationRepository
	tokens        database.TokenRepository
	alerts        database.AlertRepository
	ages          Ages
	chunkSize     int

	now func() time.Time
}

func NewPurger(listings database.ListingRepository, notifications database.NotificationRepository,
	tokens database.TokenRepository, alerts database.AlertRepository, ages Ages, chunkSize int) *Purger {
	return &Purger{
		listings:      listings,
		notifications: notifications,
		tokens:        tokens,
		alerts:        alerts,
		ages:          ages,
		chunkSize:     chunkSize,
		now:           time.Now,
	}
}

// Run executes one retention pass. Classes are isolated; a failing
// class is recorded and the remaining classes still run. Zero matches
// in every class is a successful run.
func (p *Purger) Run(ctx context.Context) *Result {
	start := time.Now()
	now := p.now()
	result := &Result{}

	classes := []struct {
		label  string
		cutoff time.Time
		op     func(time.Time, int) (int64, error)
		total  *int64
	}{
		{"deactivate listings", now.Add(-p.ages.ListingActive), p.listings.DeactivateOlderThan, &result.ListingsDeactivated},
		{"purge listings", now.Add(-p.ages.ListingPurge), p.listings.DeleteOlderThan, &result.ListingsDeleted},
		{"purge notifications", now.Add(-p.ages.Notification), p.notifications.DeleteOlderThan, &result.NotificationsDeleted},
		{"purge auth tokens", now.Add(-p.ages.Token), p.tokens.DeleteOlderThan, &result.TokensDeleted},
		{"purge stale alerts", now.Add(-p.ages.AlertStale), p.alerts.DeleteStaleInactive, &result.AlertsDeleted},
	}

	for _, class := range classes {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cleanup aborted: %v", ctx.Err()))
			break
		}
		*class.total = p.runClass(class.label, class.cutoff, class.op, result)
	}

	result.Success = len(result.Errors) == 0

	slog.Info("Cleanup completed",
		"duration", time.Since(start),
		"listings_deactivated", result.ListingsDeactivated,
		"listings_deleted", result.ListingsDeleted,
		"notifications_deleted", result.NotificationsDeleted,
		"tokens_deleted", result.TokensDeleted,
		"alerts_deleted", result.AlertsDeleted,
		"errors", len(result.Errors))
	return result
}

func (p *Purger) runClass(label string, cutoff time.Time, op func(time.Time, int) (int64, error), result *Result) int64 {
	var total int64
	for {
		n, err := op(cutoff, p.chunkSize)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
			break
		}
		total += n
		if n < int64(p.chunkSize) {
			break
		}
	}
	if total > 0 {
		slog.Debug("Retention class processed", "class", label, "rows", total)
	}
	return total
}
