package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createThreadHistoryTable = `
CREATE TABLE IF NOT EXISTS thread_history (
    published_at       TIMESTAMPTZ PRIMARY KEY,
    post_fingerprints  TEXT[]      NOT NULL,
    influencer_handles TEXT[]      NOT NULL DEFAULT '{}'
);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLedger stores entries in the thread_history table.
type PostgresLedger struct {
	pool   PgxPool
	tracer trace.Tracer
	now    func() time.Time
}

func NewPostgresLedger(pool PgxPool, tracer trace.Tracer) *PostgresLedger {
	return &PostgresLedger{pool: pool, tracer: tracer, now: time.Now}
}

func (l *PostgresLedger) RunMigrations(ctx context.Context) error {
	_, span := l.tracer.Start(ctx, "thread-ledger.run-migrations")
	defer span.End()

	_, err := l.pool.Exec(ctx, createThreadHistoryTable)
	return err
}

func (l *PostgresLedger) Append(ctx context.Context, e Entry) error {
	_, span := l.tracer.Start(ctx, "thread-ledger.append")
	defer span.End()

	influencers := e.Influencers
	if influencers == nil {
		influencers = []string{}
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO thread_history (published_at, post_fingerprints, influencer_handles)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (published_at) DO UPDATE SET
		     post_fingerprints = EXCLUDED.post_fingerprints,
		     influencer_handles = EXCLUDED.influencer_handles`,
		e.Timestamp.UTC().Truncate(time.Second), e.Fingerprints, influencers,
	)
	if err != nil {
		return fmt.Errorf("insert thread entry: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Load(ctx context.Context, maxAge time.Duration) ([]Entry, error) {
	_, span := l.tracer.Start(ctx, "thread-ledger.load")
	defer span.End()

	rows, err := l.pool.Query(ctx,
		`SELECT published_at, post_fingerprints, influencer_handles
		 FROM thread_history
		 WHERE published_at >= $1
		 ORDER BY published_at ASC`,
		l.now().Add(-maxAge).UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query thread history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Timestamp, &e.Fingerprints, &e.Influencers); err != nil {
			return nil, fmt.Errorf("scan thread entry: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	_, span := l.tracer.Start(ctx, "thread-ledger.prune")
	defer span.End()

	tag, err := l.pool.Exec(ctx,
		`DELETE FROM thread_history WHERE published_at < $1`,
		l.now().Add(-maxAge).UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune thread history: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
