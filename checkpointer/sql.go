package checkpointer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqlCheckpointer is the shared implementation behind SQLiteCheckpointer and
// MySQLCheckpointer. Both backends use "?" placeholders (the sqlite and
// go-sql-driver/mysql drivers agree on this), so the DML is identical; only
// driver name, DSN, and DDL differ between the two constructors.
type sqlCheckpointer[S any] struct {
	db *sql.DB
}

func openSQLCheckpointer[S any](driverName, dsn string, ddl []string) (*sqlCheckpointer[S], error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpointer: open %s: %w", driverName, err)
	}

	// Schema setup runs on its own round trips, outside any transaction,
	// before the connection pool is handed out for DML.
	ctx := context.Background()
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("checkpointer: schema setup: %w", err)
		}
	}

	return &sqlCheckpointer[S]{db: db}, nil
}

func (c *sqlCheckpointer[S]) Close() error {
	return c.db.Close()
}

func (c *sqlCheckpointer[S]) Put(ctx context.Context, threadID, parentCheckpointID string, state S, meta Metadata) (string, error) {
	// created_at orders GetLatest/List; a zero timestamp would make the
	// tiebreak fall through to checkpoint_id, which is a random UUID.
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("checkpointer: marshal state: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("checkpointer: marshal metadata: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("checkpointer: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentLatest string
	row := tx.QueryRowContext(ctx, `
		SELECT checkpoint_id FROM checkpoints
		WHERE thread_id = ?
		ORDER BY created_at DESC, checkpoint_id DESC
		LIMIT 1`, threadID)
	switch err := row.Scan(&currentLatest); {
	case err == sql.ErrNoRows:
		currentLatest = ""
	case err != nil:
		return "", fmt.Errorf("checkpointer: read latest: %w", err)
	}

	if currentLatest != parentCheckpointID {
		return "", fmt.Errorf("%w: thread %s latest is %q, put specified parent %q", ErrConflict, threadID, currentLatest, parentCheckpointID)
	}

	checkpointID := newCheckpointID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, checkpoint_id, parent_checkpoint_id, payload, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		threadID, checkpointID, parentCheckpointID, string(payload), string(metaJSON), meta.Timestamp)
	if err != nil {
		return "", fmt.Errorf("checkpointer: insert checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoint_writes (thread_id, checkpoint_id, task_id, seq, channel, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		threadID, checkpointID, meta.NodeName, 0, "state", string(payload))
	if err != nil {
		return "", fmt.Errorf("checkpointer: insert checkpoint_writes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("checkpointer: commit: %w", err)
	}
	return checkpointID, nil
}

func (c *sqlCheckpointer[S]) GetLatest(ctx context.Context, threadID string) (Record[S], error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, parent_checkpoint_id, payload, metadata, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY created_at DESC, checkpoint_id DESC
		LIMIT 1`, threadID)

	rec, err := scanRecord[S](row, threadID)
	if err == sql.ErrNoRows {
		var zero Record[S]
		return zero, ErrNotFound
	}
	return rec, err
}

func (c *sqlCheckpointer[S]) List(ctx context.Context, threadID string) ([]Record[S], error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT checkpoint_id, parent_checkpoint_id, payload, metadata, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY created_at DESC, checkpoint_id DESC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpointer: list: %w", err)
	}
	defer rows.Close()

	var out []Record[S]
	for rows.Next() {
		rec, err := scanRecord[S](rows, threadID)
		if err != nil {
			return nil, fmt.Errorf("checkpointer: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord[S any](row rowScanner, threadID string) (Record[S], error) {
	var (
		checkpointID, parentID, payload, metaJSON string
		createdAt                                 time.Time
	)
	if err := row.Scan(&checkpointID, &parentID, &payload, &metaJSON, &createdAt); err != nil {
		var zero Record[S]
		return zero, err
	}

	var state S
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("unmarshal state: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return Record[S]{
		ThreadID:           threadID,
		CheckpointID:       checkpointID,
		ParentCheckpointID: parentID,
		State:              state,
		Metadata:           meta,
	}, nil
}
