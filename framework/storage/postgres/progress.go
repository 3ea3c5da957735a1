package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/storage"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "cqrskit_progress"

type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("pgprogress: op: %q err: %q", e.Op, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// ProgressTracker keeps one row per group partition. Proceed locks the
// row with SELECT ... FOR UPDATE and writes with an upsert in the same
// transaction, so the commit is durable before Proceed returns.
type ProgressTracker struct {
	db    *sql.DB
	table string
	clock cqrs.Clock
}

func NewProgressTracker(db *sql.DB, table string, clock cqrs.Clock) *ProgressTracker {
	if table == "" {
		table = DefaultTable
	}
	if clock == nil {
		clock = cqrs.SystemClock{}
	}
	return &ProgressTracker{db: db, table: pq.QuoteIdentifier(table), clock: clock}
}

// Open connects to dsn using the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, Error{"open", err}
	}
	return db, nil
}

// EnsureSchema creates the progress table when missing.
func (pt *ProgressTracker) EnsureSchema(ctx context.Context) error {
	_, err := pt.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+pt.table+` (
	group_name    TEXT        NOT NULL,
	partition_no  INTEGER     NOT NULL,
	last_event_id TEXT        NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (group_name, partition_no)
)`)
	if err != nil {
		return Error{"ensure-schema", err}
	}
	return nil
}

func (pt *ProgressTracker) Current(ctx context.Context, group string, partition int) (cqrs.Progress, error) {
	var id string
	err := pt.db.QueryRowContext(ctx,
		`SELECT last_event_id FROM `+pt.table+` WHERE group_name = $1 AND partition_no = $2`,
		group, partition,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return cqrs.Progress{}, nil
	}
	if err != nil {
		return cqrs.Progress{}, Error{"current", err}
	}
	return cqrs.Progress{LastEventID: id}, nil
}

func (pt *ProgressTracker) Proceed(ctx context.Context, group string, partition int, next func(cqrs.Progress) (cqrs.Progress, error)) (err error) {
	tx, err := pt.db.BeginTx(ctx, nil)
	if err != nil {
		return Error{"begin", err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cur cqrs.Progress
	err = tx.QueryRowContext(ctx,
		`SELECT last_event_id FROM `+pt.table+` WHERE group_name = $1 AND partition_no = $2 FOR UPDATE`,
		group, partition,
	).Scan(&cur.LastEventID)
	if err != nil && err != sql.ErrNoRows {
		return Error{"lock", err}
	}

	p, err := storage.Advance(cur, next)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+pt.table+` (group_name, partition_no, last_event_id, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (group_name, partition_no) DO UPDATE SET last_event_id = EXCLUDED.last_event_id, updated_at = EXCLUDED.updated_at`,
		group, partition, p.LastEventID, pt.clock.Now(),
	)
	if err != nil {
		return Error{"upsert", err}
	}
	if err = tx.Commit(); err != nil {
		return Error{"commit", errors.Wrapf(err, "progress for %s/%d", group, partition)}
	}
	return nil
}

// Reset deletes the row of a group partition.
func (pt *ProgressTracker) Reset(ctx context.Context, group string, partition int) error {
	_, err := pt.db.ExecContext(ctx, `DELETE FROM `+pt.table+` WHERE group_name = $1 AND partition_no = $2`, group, partition)
	if err != nil {
		return Error{"reset", err}
	}
	return nil
}
