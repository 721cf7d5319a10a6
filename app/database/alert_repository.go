package database

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// alertRepository reads saved alerts. Alerts are owned by the web-facing
// collaborator; this side never creates or updates them.
type alertRepository struct {
	db *DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *DB) AlertRepository {
	return &alertRepository{db: db}
}

// GetActive returns active alerts whose owners are active recipients
func (r *alertRepository) GetActive() ([]Alert, error) {
	rows, err := r.db.Query(`
		SELECT a.id, a.user_id, COALESCE(a.neighborhoods, '{}'),
		       a.min_price, a.max_price, a.bedrooms, a.pet_friendly,
		       a.commute_lat, a.commute_lon, a.max_commute_minutes,
		       a.is_active, a.created_at, a.updated_at
		FROM alerts a
		JOIN users u ON u.id = a.user_id
		WHERE a.is_active = true
		  AND u.is_active = true
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		err := rows.Scan(
			&a.ID, &a.UserID, pq.Array(&a.Neighborhoods),
			&a.MinPrice, &a.MaxPrice, &a.Bedrooms, &a.PetFriendly,
			&a.CommuteLat, &a.CommuteLon, &a.MaxCommuteMinutes,
			&a.IsActive, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

// GetActiveCount returns the number of active alerts
func (r *alertRepository) GetActiveCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM alerts WHERE is_active = true").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get active alert count: %w", err)
	}
	return count, nil
}

// DeleteStaleInactive removes alerts that were deactivated before the cutoff,
// at most limit rows per call.
func (r *alertRepository) DeleteStaleInactive(cutoff time.Time, limit int) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM alerts
		WHERE id IN (
			SELECT id FROM alerts
			WHERE is_active = false AND updated_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale alerts: %w", err)
	}
	return result.RowsAffected()
}
