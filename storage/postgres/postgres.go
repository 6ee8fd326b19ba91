// Package postgres provides a checkpoint persister backed by a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

const (
	createTable = `
		CREATE TABLE IF NOT EXISTS eph_checkpoints (
			namespace       TEXT        NOT NULL,
			hub             TEXT        NOT NULL,
			consumer_group  TEXT        NOT NULL,
			partition_id    TEXT        NOT NULL,
			"offset"        TEXT        NOT NULL,
			sequence_number BIGINT      NOT NULL,
			enqueue_time    TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, hub, consumer_group, partition_id)
		)`

	// a stale writer never moves a stored checkpoint backwards
	upsertCheckpoint = `
		INSERT INTO eph_checkpoints (namespace, hub, consumer_group, partition_id, "offset", sequence_number, enqueue_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (namespace, hub, consumer_group, partition_id)
		DO UPDATE SET
			"offset" = EXCLUDED."offset",
			sequence_number = EXCLUDED.sequence_number,
			enqueue_time = EXCLUDED.enqueue_time,
			updated_at = EXCLUDED.updated_at
		WHERE eph_checkpoints.sequence_number <= EXCLUDED.sequence_number`

	selectCheckpoint = `
		SELECT "offset", sequence_number, enqueue_time
		FROM eph_checkpoints
		WHERE namespace = $1 AND hub = $2 AND consumer_group = $3 AND partition_id = $4`
)

type (
	// Persister implements persist.CheckpointPersister on a PostgreSQL table
	Persister struct {
		db *sql.DB
	}

	// Config holds the connection settings for the persister
	Config struct {
		DSN             string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
	}
)

// New opens a connection pool and verifies the database is reachable
func New(ctx context.Context, cfg Config) (*Persister, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres DSN is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &Persister{db: db}, nil
}

// EnsureStore creates the checkpoint table if it does not exist
func (p *Persister) EnsureStore(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTable); err != nil {
		return errors.Wrap(err, "create checkpoint table")
	}
	return nil
}

// Write upserts the checkpoint. A checkpoint older than the stored one is ignored.
func (p *Persister) Write(ctx context.Context, namespace, name, consumerGroup, partitionID string, checkpoint persist.Checkpoint) error {
	enqueued := checkpoint.EnqueueTime
	if enqueued.IsZero() {
		enqueued = time.Unix(0, 0).UTC()
	}

	res, err := p.db.ExecContext(ctx, upsertCheckpoint,
		namespace, name, consumerGroup, partitionID,
		checkpoint.Offset, checkpoint.SequenceNumber, enqueued)
	if err != nil {
		return errors.Wrapf(err, "save checkpoint for partition %q", partitionID)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.WithFields(log.Fields{
			"partitionID":    partitionID,
			"sequenceNumber": checkpoint.SequenceNumber,
		}).Debug("stored checkpoint is newer; write ignored")
	}
	return nil
}

// Read loads the checkpoint. A missing row yields persist.ErrNotFound.
func (p *Persister) Read(ctx context.Context, namespace, name, consumerGroup, partitionID string) (persist.Checkpoint, error) {
	var checkpoint persist.Checkpoint
	err := p.db.QueryRowContext(ctx, selectCheckpoint, namespace, name, consumerGroup, partitionID).Scan(
		&checkpoint.Offset,
		&checkpoint.SequenceNumber,
		&checkpoint.EnqueueTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.Checkpoint{}, errors.Wrapf(persist.ErrNotFound, "no checkpoint for partition %q", partitionID)
		}
		return persist.Checkpoint{}, errors.Wrapf(err, "load checkpoint for partition %q", partitionID)
	}
	return checkpoint, nil
}

// Close closes the connection pool
func (p *Persister) Close() error {
	return p.db.Close()
}
