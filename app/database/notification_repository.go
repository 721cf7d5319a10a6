package database

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// notificationRepository handles database operations for match notifications
type notificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Exists reports whether a notification already exists for the triple
func (r *notificationRepository) Exists(userID, alertID, listingID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND alert_id = $2 AND listing_id = $3
		)
	`, userID, alertID, listingID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent creates a pending notification for the (user, alert, listing)
// triple unless one already exists. The unique constraint on the triple backs
// this up against concurrent writers; returns false when nothing was inserted.
func (r *notificationRepository) InsertIfAbsent(userID, alertID, listingID string) (bool, error) {
	result, err := r.db.Exec(`
		INSERT INTO notifications (user_id, alert_id, listing_id, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (user_id, alert_id, listing_id) DO NOTHING
	`, userID, alertID, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

// GetPendingBatch returns up to limit pending notifications joined with the
// recipient and listing, oldest first so backlog drains in order.
func (r *notificationRepository) GetPendingBatch(limit int) ([]PendingNotification, error) {
	rows, err := r.db.Query(`
		SELECT n.id, n.user_id, n.alert_id, n.listing_id,
		       u.email, COALESCE(u.unsubscribe_token, ''),
		       COALESCE(l.title, ''), COALESCE(l.url, ''),
		       l.price, l.bedrooms, COALESCE(l.neighborhood, '')
		FROM notifications n
		JOIN users u ON u.id = n.user_id
		JOIN listings l ON l.id = n.listing_id
		WHERE n.status = 'pending'
		  AND u.is_active = true
		ORDER BY n.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notifications: %w", err)
	}
	defer rows.Close()

	var pending []PendingNotification
	for rows.Next() {
		var p PendingNotification
		err := rows.Scan(
			&p.NotificationID, &p.UserID, &p.AlertID, &p.ListingID,
			&p.Email, &p.UnsubscribeToken,
			&p.ListingTitle, &p.ListingURL,
			&p.ListingPrice, &p.ListingBedrooms, &p.Neighborhood,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending notification row: %w", err)
		}
		pending = append(pending, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending notification rows: %w", err)
	}

	return pending, nil
}

// GetPendingCount returns the number of pending notifications
func (r *notificationRepository) GetPendingCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM notifications WHERE status = 'pending'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending notification count: %w", err)
	}
	return count, nil
}

// MarkGroupSent transitions every notification in a recipient group to sent
func (r *notificationRepository) MarkGroupSent(ids []string, messageID string) error {
	_, err := r.db.Exec(`
		UPDATE notifications
		SET status = 'sent', message_id = $2, last_error = '', updated_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark notifications sent: %w", err)
	}
	return nil
}

// MarkGroupFailed transitions every notification in a recipient group to
// failed, recording the delivery error and counting the attempt.
func (r *notificationRepository) MarkGroupFailed(ids []string, sendError string) error {
	_, err := r.db.Exec(`
		UPDATE notifications
		SET status = 'failed', last_error = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids), sendError)
	if err != nil {
		return fmt.Errorf("failed to mark notifications failed: %w", err)
	}
	return nil
}

// ResetStaleFailed moves failed notifications older than the cutoff back to
// pending so a later run retries them, bounded per sweep and capped on total
// attempts so nothing is resurrected indefinitely.
func (r *notificationRepository) ResetStaleFailed(cutoff time.Time, limit int, maxAttempts int) (int64, error) {
	result, err := r.db.Exec(`
		WITH stale AS (
			SELECT id FROM notifications
			WHERE status = 'failed'
			  AND updated_at < $1
			  AND attempts < $3
			ORDER BY updated_at
			LIMIT $2
		)
		UPDATE notifications n
		SET status = 'pending', updated_at = NOW()
		FROM stale
		WHERE n.id = stale.id
	`, cutoff, limit, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed notifications: %w", err)
	}
	return result.RowsAffected()
}

// DeleteOlderThan removes delivered or failed notifications created before the
// cutoff, at most limit rows per call. Pending rows are never purged.
func (r *notificationRepository) DeleteOlderThan(cutoff time.Time, limit int) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM notifications
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status IN ('sent', 'failed') AND created_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return result.RowsAffected()
}
