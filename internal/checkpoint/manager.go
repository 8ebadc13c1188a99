package checkpoint

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"hedged-grid-backtest/internal/models"
)

// Saver is the subset of persistence.RunRepository the manager needs.
type Saver interface {
	SaveCheckpoint(cp *models.Checkpoint) error
}

// Manager persists checkpoints off the hot loop.
// Submit never blocks the backtest; the latest checkpoint of a run always wins.
type Manager struct {
	repo            Saver
	persistenceChan chan models.Checkpoint
	stopChan        chan struct{}
	wg              sync.WaitGroup
	logger          *zap.Logger

	mu      sync.Mutex
	dropped int
	saved   int
}

// NewManager creates a new Manager.
func NewManager(repo Saver, logger *zap.Logger) *Manager {
	return &Manager{
		repo:            repo,
		persistenceChan: make(chan models.Checkpoint, 128), // Buffered channel for checkpoints to be persisted
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// Start begins the persistence loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.persistenceLoop()
	m.logger.Sugar().Debug("Checkpoint manager started.")
}

// Stop drains pending checkpoints and waits for the loop to exit.
func (m *Manager) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	m.logger.Sugar().Debugf("Checkpoint manager stopped. saved=%d dropped=%d", m.Saved(), m.Dropped())
}

// Submit queues cp for saving. If the buffer is full the checkpoint is dropped.
func (m *Manager) Submit(cp models.Checkpoint) {
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now().UTC()
	}
	select {
	case m.persistenceChan <- cp:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		m.logger.Sugar().Warnf("Checkpoint queue full, dropping window %d of run %s", cp.Window, cp.RunID)
	}
}

// Saved returns how many checkpoints reached the repository.
func (m *Manager) Saved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

// Dropped returns how many checkpoints were discarded on a full queue.
func (m *Manager) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// persistenceLoop handles the asynchronous saving of checkpoints.
func (m *Manager) persistenceLoop() {
	defer m.wg.Done()
	for {
		select {
		case cp := <-m.persistenceChan:
			m.save(cp)
		case <-m.stopChan:
			// 退出前把队列里剩余的检查点写完
			for {
				select {
				case cp := <-m.persistenceChan:
					m.save(cp)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) save(cp models.Checkpoint) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveCheckpoint(&cp); err != nil {
		m.logger.Sugar().Errorf("Failed to save checkpoint for run %s: %v", cp.RunID, err)
		return
	}
	m.mu.Lock()
	m.saved++
	m.mu.Unlock()
}
