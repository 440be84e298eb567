package checkpointer

import (
	_ "github.com/go-sql-driver/mysql"
)

// MySQLCheckpointer is the second interchangeable durable backend: any
// SQL store keyed by (thread_id, checkpoint_id) satisfies the
// Checkpointer contract.
type MySQLCheckpointer[S any] struct {
	*sqlCheckpointer[S]
}

// NewMySQLCheckpointer opens a MySQL connection using dsn (the
// go-sql-driver/mysql DSN format, e.g.
// "user:pass@tcp(127.0.0.1:3306)/dbname?parseTime=true") and ensures the
// checkpoints/checkpoint_writes schema exists.
func NewMySQLCheckpointer[S any](dsn string) (*MySQLCheckpointer[S], error) {
	inner, err := openSQLCheckpointer[S]("mysql", dsn, []string{
		createCheckpointsTableMySQL,
		createCheckpointWritesTableMySQL,
	})
	if err != nil {
		return nil, err
	}
	return &MySQLCheckpointer[S]{sqlCheckpointer: inner}, nil
}

func (s *MySQLCheckpointer[S]) Close() error { return s.sqlCheckpointer.Close() }
