package stepflow

import (
	"database/sql"

	"github.com/fieldworks/stepflow/internal/persistence"
	"github.com/fieldworks/stepflow/internal/taskqueue"
	workerpkg "github.com/fieldworks/stepflow/pkg/worker"
)

// WorkerBundle wires together a durable job store, a durable task queue,
// and a Worker consuming from that queue. Job records and queued tasks
// survive a process restart; a restarted worker re-registers its workflow
// factories and continues from the queue.
type WorkerBundle struct {
	Store  JobStore
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Store and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Store + Queue + Worker combo
// sharing the same SQLite database.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:jobs.db?_journal=WAL")
//	bundle, err := stepflow.NewSQLiteBundle(db, stepflow.WorkerConfig{})
//	bundle.Worker.RegisterFactory(stepflow.JobTypePackage, buildPackageWorkflow)
//	// enqueue work via bundle.Worker.EnqueueJob
func NewSQLiteBundle(db *sql.DB, cfg WorkerConfig) (*WorkerBundle, error) {
	store, err := persistence.NewSQLiteJobStore(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.NewWithConfig(store, q, cfg)

	return &WorkerBundle{
		Store:  store,
		Worker: w,
		queue:  q,
	}, nil
}
