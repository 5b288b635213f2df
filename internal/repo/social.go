package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SocialRepo reads the block and friendship edges the relay consults. The
// friendship CRUD itself lives outside this subsystem.
type SocialRepo struct {
	pool *pgxpool.Pool
}

func NewSocialRepo(pool *pgxpool.Pool) *SocialRepo {
	return &SocialRepo{pool: pool}
}

// IsBlocked reports whether either user blocks the other. Blocks suppress
// delivery symmetrically: the direction does not matter.
func (r *SocialRepo) IsBlocked(ctx context.Context, userA, userB int) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM blocks
		WHERE (blocker_id = $1 AND blocked_id = $2)
		   OR (blocker_id = $2 AND blocked_id = $1))`
	var blocked bool
	if err := r.pool.QueryRow(ctx, query, userA, userB).Scan(&blocked); err != nil {
		return false, err
	}
	return blocked, nil
}

// AreFriends reports whether an accepted friendship exists between the pair.
func (r *SocialRepo) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM friendships
		WHERE (user_a_id = $1 AND user_b_id = $2)
		   OR (user_a_id = $2 AND user_b_id = $1))`
	var friends bool
	if err := r.pool.QueryRow(ctx, query, userA, userB).Scan(&friends); err != nil {
		return false, err
	}
	return friends, nil
}
