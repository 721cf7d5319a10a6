package database

import (
	"fmt"
	"time"
)

// listingRepository handles database operations for harvested listings
type listingRepository struct {
	db *DB
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *DB) ListingRepository {
	return &listingRepository{db: db}
}

// Insert stores a listing with duplicate suppression keyed on external_id.
// Returns false when a listing with the same external_id already exists.
func (r *listingRepository) Insert(listing Listing) (bool, error) {
	result, err := r.db.Exec(`
		INSERT INTO listings (
			external_id, title, url, price, bedrooms, neighborhood,
			latitude, longitude, pet_friendly, posted_at, harvested_at,
			is_active, risk_score
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		WHERE NOT EXISTS (
			SELECT 1 FROM listings WHERE external_id = $1
		)
	`, listing.ExternalID, listing.Title, listing.URL, listing.Price,
		listing.Bedrooms, nullIfEmpty(listing.Neighborhood), listing.Latitude,
		listing.Longitude, listing.PetFriendly, listing.PostedAt,
		listing.HarvestedAt, listing.IsActive, listing.RiskScore)
	if err != nil {
		return false, fmt.Errorf("failed to insert listing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

// GetRecentActive returns active listings harvested at or after the given time,
// newest first.
func (r *listingRepository) GetRecentActive(since time.Time, limit int) ([]Listing, error) {
	rows, err := r.db.Query(`
		SELECT id, external_id, COALESCE(title, ''), COALESCE(url, ''),
		       price, bedrooms, COALESCE(neighborhood, ''),
		       latitude, longitude, pet_friendly,
		       posted_at, harvested_at, is_active, risk_score, created_at
		FROM listings
		WHERE is_active = true
		  AND harvested_at >= $1
		ORDER BY harvested_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent listings: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		err := rows.Scan(
			&l.ID, &l.ExternalID, &l.Title, &l.URL,
			&l.Price, &l.Bedrooms, &l.Neighborhood,
			&l.Latitude, &l.Longitude, &l.PetFriendly,
			&l.PostedAt, &l.HarvestedAt, &l.IsActive, &l.RiskScore, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}

	return listings, nil
}

// GetActiveCount returns the number of active listings
func (r *listingRepository) GetActiveCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM listings WHERE is_active = true").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get active listing count: %w", err)
	}
	return count, nil
}

// DeactivateOlderThan marks active listings harvested before the cutoff as
// inactive, at most limit rows per call.
func (r *listingRepository) DeactivateOlderThan(cutoff time.Time, limit int) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE listings SET is_active = false
		WHERE id IN (
			SELECT id FROM listings
			WHERE is_active = true AND harvested_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate listings: %w", err)
	}
	return result.RowsAffected()
}

// DeleteOlderThan removes listings harvested before the cutoff, at most limit
// rows per call. Notifications referencing them are removed by cascade.
func (r *listingRepository) DeleteOlderThan(cutoff time.Time, limit int) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM listings
		WHERE id IN (
			SELECT id FROM listings
			WHERE harvested_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete listings: %w", err)
	}
	return result.RowsAffected()
}

// nullIfEmpty maps empty strings to NULL for optional text columns
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
