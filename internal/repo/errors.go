package repo

import "github.com/jackc/pgx/v5"

// ErrNoRow is the single not-found sentinel repositories report, whether the
// miss came from a query scan or an update that matched nothing.
var ErrNoRow = pgx.ErrNoRows
