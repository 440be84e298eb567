package checkpointer

// Schema creation MUST be idempotent and MUST run outside any
// multi-statement transaction; some engines (notably MySQL with certain
// storage engines) forbid DDL inside a transaction, and "CREATE TABLE IF
// NOT EXISTS" already makes re-running safe. Normal read/write operations
// use a transactional connection distinct from schema setup.
//
// checkpoints holds one row per (thread_id, checkpoint_id): the durable
// linked-list node of graph state. checkpoint_writes gets one row per
// checkpoint, written in the same transaction: task_id is the node name,
// seq is 0 and channel is "state", with the checkpoint's full state as
// payload. The task_id/seq key shape admits several writes per
// transition without a schema migration.
const createCheckpointsTableSQLite = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id            TEXT NOT NULL,
	checkpoint_id        TEXT NOT NULL,
	parent_checkpoint_id TEXT NOT NULL DEFAULT '',
	payload              TEXT NOT NULL,
	metadata             TEXT NOT NULL,
	created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (thread_id, checkpoint_id)
)`

const createCheckpointWritesTableSQLite = `
CREATE TABLE IF NOT EXISTS checkpoint_writes (
	thread_id     TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL,
	task_id       TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	channel       TEXT NOT NULL,
	payload       TEXT NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id, task_id, seq)
)`

const createThreadIndexSQLite = `
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_created
	ON checkpoints (thread_id, created_at)`

const createCheckpointsTableMySQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id            VARCHAR(191) NOT NULL,
	checkpoint_id        VARCHAR(191) NOT NULL,
	parent_checkpoint_id VARCHAR(191) NOT NULL DEFAULT '',
	payload              LONGTEXT NOT NULL,
	metadata             TEXT NOT NULL,
	created_at           TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (thread_id, checkpoint_id),
	INDEX idx_checkpoints_thread_created (thread_id, created_at)
) ENGINE=InnoDB`

const createCheckpointWritesTableMySQL = `
CREATE TABLE IF NOT EXISTS checkpoint_writes (
	thread_id     VARCHAR(191) NOT NULL,
	checkpoint_id VARCHAR(191) NOT NULL,
	task_id       VARCHAR(191) NOT NULL,
	seq           INT NOT NULL,
	channel       VARCHAR(191) NOT NULL,
	payload       LONGTEXT NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id, task_id, seq)
) ENGINE=InnoDB`
