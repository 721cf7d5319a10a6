package database

import (
	"fmt"
	"time"
)

// tokenRepository purges auth tokens by age. Tokens are written by the
// web-facing collaborator; this side only retires them.
type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new auth token repository
func NewTokenRepository(db *DB) TokenRepository {
	return &tokenRepository{db: db}
}

// DeleteOlderThan removes auth tokens created before the cutoff, at most
// limit rows per call.
func (r *tokenRepository) DeleteOlderThan(cutoff time.Time, limit int) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM auth_tokens
		WHERE id IN (
			SELECT id FROM auth_tokens
			WHERE created_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete auth tokens: %w", err)
	}
	return result.RowsAffected()
}
