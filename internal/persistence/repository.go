package persistence

import "hedged-grid-backtest/internal/models"

// RunRepository defines the interface for run persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the backtest harness.
type RunRepository interface {
	// SaveRun stores the final record of a completed run.
	SaveRun(rec *models.RunRecord) error

	// LoadRun returns the record of runID, or (nil, nil) if there is none.
	LoadRun(runID string) (*models.RunRecord, error)

	// ListRuns returns every stored run, oldest first.
	ListRuns() ([]models.RunRecord, error)

	// SaveCheckpoint overwrites the latest checkpoint of a run.
	SaveCheckpoint(cp *models.Checkpoint) error

	// LoadCheckpoint returns the latest checkpoint of runID, or (nil, nil).
	LoadCheckpoint(runID string) (*models.Checkpoint, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
