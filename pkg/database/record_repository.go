// Copyright 2025 Ukweli Project
//
// Record Mirror Repository
// Mirrors appended chain records into Postgres for dashboards and ad-hoc
// queries. Rows are written after the chain append succeeds and are never
// read back for verification.

package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ukweli/ukwelidb/pkg/record"
)

// MirroredRecord is the row shape of a mirrored chain record.
type MirroredRecord struct {
	RowID        uuid.UUID
	RecordID     uint64
	Hash         string
	PreviousHash string
	Timestamp    int64
	EntityID     sql.NullString
	WorkflowName sql.NullString
	ActionName   sql.NullString
	Payload      []byte
	Signers      []string
	MirroredAt   time.Time
}

// RecordRepository handles mirrored record operations.
type RecordRepository struct {
	client *Client
}

// NewRecordRepository creates a new record mirror repository.
func NewRecordRepository(client *Client) *RecordRepository {
	return &RecordRepository{client: client}
}

// EnsureSchema creates the mirror table if it does not exist.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS chain_records (
			row_id        UUID PRIMARY KEY,
			record_id     BIGINT NOT NULL UNIQUE,
			hash          TEXT NOT NULL,
			previous_hash TEXT NOT NULL,
			ts            BIGINT NOT NULL,
			entity_id     TEXT,
			workflow_name TEXT,
			action_name   TEXT,
			payload       BYTEA,
			signers       TEXT[] NOT NULL,
			mirrored_at   TIMESTAMPTZ NOT NULL
		)`
	if _, err := r.client.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure mirror schema: %w", err)
	}
	return nil
}

// MirrorRecord inserts one appended record. Re-mirroring an existing id is
// a no-op so replays after a partial mirror are safe.
func (r *RecordRepository) MirrorRecord(ctx context.Context, rec *record.Record) error {
	row := &MirroredRecord{
		RowID:        uuid.New(),
		RecordID:     rec.ID,
		Hash:         rec.HashHex(),
		PreviousHash: hex.EncodeToString(rec.PreviousHash),
		Timestamp:    rec.Timestamp,
		Payload:      rec.Payload,
		Signers:      rec.SignerNames(),
		MirroredAt:   time.Now().UTC(),
	}
	if rec.EntityID != "" {
		row.EntityID = sql.NullString{String: rec.EntityID, Valid: true}
	}
	if rec.Workflow != nil {
		row.WorkflowName = sql.NullString{String: rec.Workflow.Qualified(), Valid: true}
		row.ActionName = sql.NullString{String: rec.Workflow.Action, Valid: true}
	}

	query := `
		INSERT INTO chain_records (
			row_id, record_id, hash, previous_hash, ts,
			entity_id, workflow_name, action_name, payload, signers, mirrored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (record_id) DO NOTHING`

	_, err := r.client.db.ExecContext(ctx, query,
		row.RowID, row.RecordID, row.Hash, row.PreviousHash, row.Timestamp,
		row.EntityID, row.WorkflowName, row.ActionName, row.Payload,
		pq.Array(row.Signers), row.MirroredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mirror record %d: %w", rec.ID, err)
	}
	return nil
}

// GetRecord retrieves a mirrored record by chain id.
func (r *RecordRepository) GetRecord(ctx context.Context, recordID uint64) (*MirroredRecord, error) {
	query := `
		SELECT row_id, record_id, hash, previous_hash, ts,
			entity_id, workflow_name, action_name, payload, signers, mirrored_at
		FROM chain_records WHERE record_id = $1`

	var row MirroredRecord
	err := r.client.db.QueryRowContext(ctx, query, recordID).Scan(
		&row.RowID, &row.RecordID, &row.Hash, &row.PreviousHash, &row.Timestamp,
		&row.EntityID, &row.WorkflowName, &row.ActionName, &row.Payload,
		pq.Array(&row.Signers), &row.MirroredAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrRecordNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mirrored record %d: %w", recordID, err)
	}
	return &row, nil
}

// ListRecords retrieves mirrored records for an entity in chain order.
func (r *RecordRepository) ListRecords(ctx context.Context, entityID string, limit int) ([]*MirroredRecord, error) {
	query := `
		SELECT row_id, record_id, hash, previous_hash, ts,
			entity_id, workflow_name, action_name, payload, signers, mirrored_at
		FROM chain_records WHERE entity_id = $1
		ORDER BY record_id ASC LIMIT $2`

	rows, err := r.client.db.QueryContext(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirrored records: %w", err)
	}
	defer rows.Close()

	var out []*MirroredRecord
	for rows.Next() {
		var row MirroredRecord
		if err := rows.Scan(
			&row.RowID, &row.RecordID, &row.Hash, &row.PreviousHash, &row.Timestamp,
			&row.EntityID, &row.WorkflowName, &row.ActionName, &row.Payload,
			pq.Array(&row.Signers), &row.MirroredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mirrored record: %w", err)
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mirrored records: %w", err)
	}
	return out, nil
}
