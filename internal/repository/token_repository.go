package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo records revoked access tokens by their jti claim.  Rows are only
// needed until the token would have expired anyway.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Revoke marks jti as revoked.  Revoking twice is not an error.
func (r *TokenRepo) Revoke(ctx context.Context, jti, userID string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT OR IGNORE INTO revoked_tokens (jti, user_id, expires_at) VALUES (?,?,?)",
		jti, userID, exp.UTC())
	return err
}

// IsRevoked reports whether jti has been revoked.
func (r *TokenRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM revoked_tokens WHERE jti=?", jti).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired deletes rows for tokens that have expired by now.
func (r *TokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
