package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/flathound/flathound/app/database"
)

// Notifier drains pending notifications into digest emails, one message
// per recipient per run.
type Notifier struct {
	notifications database.NotificationRepository
	deliverer     Deliverer // nil forces skip-delivery mode
	publicURL     string
	groupDelay    time.Duration
	retryAge      time.Duration
	sweepLimit    int
	maxAttempts   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewNotifier(notifications database.NotificationRepository, deliverer Deliverer,
	publicURL string, groupDelay, retryAge time.Duration, sweepLimit, maxAttempts int) *Notifier {
	return &Notifier{
		notifications: notifications,
		deliverer:     deliverer,
		publicURL:     publicURL,
		groupDelay:    groupDelay,
		retryAge:      retryAge,
		sweepLimit:    sweepLimit,
		maxAttempts:   maxAttempts,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

// Run executes one notify pass: sweep stale failures back to pending,
// fetch a batch, group it per recipient and send one digest per group.
// Groups transition all-or-nothing; a partial group outcome never exists.
func (n *Notifier) Run(ctx context.Context, opts Options) *Result {
	start := time.Now()
	result := &Result{Success: true}

	n.sweepFailed(result)

	pending, err := n.notifications.GetPendingBatch(opts.MaxNotifications)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("load pending: %v", err))
		return result
	}
	if len(pending) == 0 {
		slog.Info("No pending notifications")
		return result
	}

	result.NotificationsProcessed = len(pending)
	groups := groupByRecipient(pending)

	skip := opts.SkipDelivery
	if n.deliverer == nil && !skip {
		slog.Warn("No mail client configured, skipping delivery")
		skip = true
	}
	if skip {
		slog.Info("Delivery skipped", "pending", len(pending), "recipients", len(groups))
		return result
	}

	emails := make([]string, 0, len(groups))
	for email := range groups {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	for i, email := range emails {
		if ctx.Err() != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("notify aborted: %v", ctx.Err()))
			break
		}
		if i > 0 {
			n.sleep(ctx, n.groupDelay)
		}
		n.sendGroup(ctx, email, groups[email], result)
	}

	slog.Info("Notify completed",
		"duration", time.Since(start),
		"processed", result.NotificationsProcessed,
		"sent", result.EmailsSent,
		"failed", result.EmailsFailed,
		"users", result.UsersNotified)
	return result
}

func (n *Notifier) sweepFailed(result *Result) {
	cutoff := n.now().Add(-n.retryAge)
	reset, err := n.notifications.ResetStaleFailed(cutoff, n.sweepLimit, n.maxAttempts)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("retry sweep: %v", err))
		return
	}
	if reset > 0 {
		slog.Info("Requeued stale failed notifications", "count", reset)
	}
}

func (n *Notifier) sendGroup(ctx context.Context, email string, group []database.PendingNotification, result *Result) {
	ids := make([]string, len(group))
	for i, item := range group {
		ids[i] = item.NotificationID
	}

	msg := composeMessage(email, group, n.publicURL)

	delivery, err := n.deliverer.Send(ctx, msg)
	if err != nil {
		result.EmailsFailed++
		result.Errors = append(result.Errors, fmt.Sprintf("send to %s: %v", email, err))
		if markErr := n.notifications.MarkGroupFailed(ids, err.Error()); markErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("mark failed for %s: %v", email, markErr))
		}
		return
	}

	if err := n.notifications.MarkGroupSent(ids, delivery.MessageID); err != nil {
		// The message is out; the rows just did not transition. Surface it.
		result.Errors = append(result.Errors, fmt.Sprintf("mark sent for %s: %v", email, err))
	}
	result.EmailsSent++
	result.UsersNotified++
	slog.Debug("Digest sent", "recipient", email, "listings", len(group), "message_id", delivery.MessageID)
}

func groupByRecipient(pending []database.PendingNotification) map[string][]database.PendingNotification {
	groups := make(map[string][]database.PendingNotification)
	for _, item := range pending {
		groups[item.Email] = append(groups[item.Email], item)
	}
	return groups
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
