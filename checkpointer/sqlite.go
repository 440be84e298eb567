package checkpointer

import (
	"context"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteCheckpointer is the default durable backend: a single-file database
// requiring no external server, suited to development and single-node
// deployments.
type SQLiteCheckpointer[S any] struct {
	*sqlCheckpointer[S]
}

// NewSQLiteCheckpointer opens (creating if absent) a SQLite database at
// path and ensures the checkpoints/checkpoint_writes schema exists. Pass
// ":memory:" for an ephemeral database useful in tests that still want to
// exercise the SQL code path.
func NewSQLiteCheckpointer[S any](path string) (*SQLiteCheckpointer[S], error) {
	inner, err := openSQLCheckpointer[S]("sqlite", path, []string{
		createCheckpointsTableSQLite,
		createCheckpointWritesTableSQLite,
		createThreadIndexSQLite,
	})
	if err != nil {
		return nil, err
	}

	// SQLite allows only one writer at a time. The pool is limited to a
	// single open connection, so all reads and writes (including
	// /chat/history reads) are serialized through it.
	if _, err := inner.db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("checkpointer: enable WAL: %w", err)
	}
	inner.db.SetMaxOpenConns(1)

	return &SQLiteCheckpointer[S]{sqlCheckpointer: inner}, nil
}

func (s *SQLiteCheckpointer[S]) Close() error { return s.sqlCheckpointer.Close() }
