// Package ledger keeps a queryable record of every file written to the archive.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS archive_ledger (
		id          BIGSERIAL PRIMARY KEY,
		kind        TEXT        NOT NULL,
		category    TEXT        NOT NULL,
		name        TEXT        NOT NULL,
		path        TEXT        NOT NULL,
		bytes       BIGINT      NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS archive_ledger_category_archived_at
		ON archive_ledger (category, archived_at);
`

type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresLedger(ctx context.Context, connString string, logger *slog.Logger) (*PostgresLedger, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger database config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ledger database not responding: %w", err)
	}

	l := &PostgresLedger{pool: p, logger: logger}
	if err := l.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}

	logger.Info("Connected to archive ledger")
	return l, nil
}

func (r *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// Record stores one archived file. Repeated deliveries of the same record add a row each time
func (r *PostgresLedger) Record(ctx context.Context, kind string, entry archive.Entry) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO archive_ledger (kind, category, name, path, bytes, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(opCtx, query, kind, entry.Category, entry.Name, entry.Path, entry.Bytes, entry.ArchivedAt)
	if err != nil {
		return fmt.Errorf("failed to record ledger entry for %s: %w", entry.Path, err)
	}
	return nil
}

// Prune deletes rows archived before cutoff and returns how many went
func (r *PostgresLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(opCtx, `DELETE FROM archive_ledger WHERE archived_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresLedger) Close() {
	r.logger.Info("Closing archive ledger pool")
	r.pool.Close()
}
