package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"hedged-grid-backtest/internal/models"
)

var (
	runPrefix        = []byte("run/")
	checkpointPrefix = []byte("checkpoint/")
)

// badgerRepository is the BadgerDB implementation of the RunRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (RunRepository, error) {
	return open(badger.DefaultOptions(dbPath))
}

// NewInMemoryRepository returns a repository that lives only as long as the process.
func NewInMemoryRepository() (RunRepository, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (RunRepository, error) {
	// Badger's own logging is disabled to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

func key(prefix []byte, id string) []byte {
	return append(append([]byte{}, prefix...), id...)
}

func (r *badgerRepository) put(k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, data)
	})
}

// get decodes the value at k into v. It reports false when the key is absent.
func (r *badgerRepository) get(k []byte, v any) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("value is empty in database")
			}
			return json.Unmarshal(val, v)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *badgerRepository) SaveRun(rec *models.RunRecord) error {
	return r.put(key(runPrefix, rec.RunID), rec)
}

func (r *badgerRepository) LoadRun(runID string) (*models.RunRecord, error) {
	var rec models.RunRecord
	found, err := r.get(key(runPrefix, runID), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (r *badgerRepository) ListRuns() ([]models.RunRecord, error) {
	var runs []models.RunRecord
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(runPrefix); it.ValidForPrefix(runPrefix); it.Next() {
			var rec models.RunRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			runs = append(runs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs, nil
}

func (r *badgerRepository) SaveCheckpoint(cp *models.Checkpoint) error {
	return r.put(key(checkpointPrefix, cp.RunID), cp)
}

func (r *badgerRepository) LoadCheckpoint(runID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	found, err := r.get(key(checkpointPrefix, runID), &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
