package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReadMarkerRepo persists per-user, per-room last-read watermarks. Room ids
// use the same keyspace as the realtime subscription index, so one table
// covers channels and conversations.
type ReadMarkerRepo struct {
	pool *pgxpool.Pool
}

func NewReadMarkerRepo(pool *pgxpool.Pool) *ReadMarkerRepo {
	return &ReadMarkerRepo{pool: pool}
}

// Get returns the user's watermark for the room, or the zero time when the
// user has never read it.
func (r *ReadMarkerRepo) Get(ctx context.Context, userID int, roomID string) (time.Time, error) {
	query := `SELECT last_read_at FROM read_markers WHERE user_id = $1 AND room_id = $2`
	var at time.Time
	err := r.pool.QueryRow(ctx, query, userID, roomID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// Set upserts the watermark, never moving it backwards.
func (r *ReadMarkerRepo) Set(ctx context.Context, userID int, roomID string, at time.Time) error {
	query := `INSERT INTO read_markers (user_id, room_id, last_read_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, room_id)
		DO UPDATE SET last_read_at = GREATEST(read_markers.last_read_at, EXCLUDED.last_read_at)`
	_, err := r.pool.Exec(ctx, query, userID, roomID, at)
	return err
}
