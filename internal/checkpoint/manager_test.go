package checkpoint

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hedged-grid-backtest/internal/models"
)

// mockSaver is a mock implementation of the Saver interface for testing.
type mockSaver struct {
	sync.Mutex
	saved        []models.Checkpoint
	saveError    error
	saveDoneChan chan bool // Channel to signal when SaveCheckpoint is done
}

func newMockSaver() *mockSaver {
	return &mockSaver{saveDoneChan: make(chan bool, 256)}
}

func (m *mockSaver) SaveCheckpoint(cp *models.Checkpoint) error {
	m.Lock()
	defer m.Unlock()
	m.saved = append(m.saved, *cp)
	m.saveDoneChan <- true
	return m.saveError
}

func (m *mockSaver) count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.saved)
}

func (m *mockSaver) last() models.Checkpoint {
	m.Lock()
	defer m.Unlock()
	return m.saved[len(m.saved)-1]
}

func TestSubmitPersistsAsynchronously(t *testing.T) {
	repo := newMockSaver()
	m := NewManager(repo, zap.NewNop())
	m.Start()
	defer m.Stop()

	m.Submit(models.Checkpoint{RunID: "run-1", Window: 1, Progress: 33})

	select {
	case <-repo.saveDoneChan:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for checkpoint to be saved")
	}

	cp := repo.last()
	assert.Equal(t, "run-1", cp.RunID)
	assert.Equal(t, 1, cp.Window)
	assert.False(t, cp.SavedAt.IsZero(), "SavedAt should be stamped on submit")
}

func TestStopDrainsQueue(t *testing.T) {
	repo := newMockSaver()
	m := NewManager(repo, zap.NewNop())
	for i := 1; i <= 5; i++ {
		m.Submit(models.Checkpoint{RunID: "run-2", Window: i})
	}
	m.Start()
	m.Stop()

	require.Equal(t, 5, repo.count())
	assert.Equal(t, 5, repo.last().Window)
	assert.Equal(t, 5, m.Saved())
	assert.Equal(t, 0, m.Dropped())
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	repo := newMockSaver()
	m := NewManager(repo, zap.NewNop())
	// 不启动循环, 队列满后应丢弃而不是阻塞
	for i := 0; i < cap(m.persistenceChan)+3; i++ {
		m.Submit(models.Checkpoint{RunID: "run-3", Window: i})
	}
	assert.Equal(t, 3, m.Dropped())

	m.Start()
	m.Stop()
	assert.Equal(t, cap(m.persistenceChan), repo.count())
}

func TestSaveErrorIsNotCounted(t *testing.T) {
	repo := newMockSaver()
	repo.saveError = errors.New("disk full")
	m := NewManager(repo, zap.NewNop())
	m.Start()
	m.Submit(models.Checkpoint{RunID: "run-4"})
	m.Stop()

	assert.Equal(t, 1, repo.count())
	assert.Equal(t, 0, m.Saved())
}
