package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"
)

// ImportStatus represents the current state of a plate import.
type ImportStatus string

const (
	ImportStatusQueued    ImportStatus = "queued"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ErrQueueFull is returned by Submit when no more imports can be queued.
var ErrQueueFull = errors.New("import queue is full; try again later")

// ImportJob is one plate import request.
type ImportJob struct {
	ID         string       `json:"job_id"`
	ZarrPath   string       `json:"zarr_path"`
	PlateID    string       `json:"plate_id,omitempty"`
	Status     ImportStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// ImportManagerConfig contains configuration for the import manager.
type ImportManagerConfig struct {
	Workers   int // Concurrent imports (default 1)
	QueueSize int // Pending imports (default 16)
}

// ImportManager runs plate imports on background workers.
type ImportManager struct {
	cfg      ImportManagerConfig
	queue    chan string
	jobs     map[string]*ImportJob
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	// Executor opens, catalogs and registers the plate. It returns the ID the
	// plate was registered under.
	Executor func(ctx context.Context, zarrPath, plateID string) (string, error)
}

// NewImportManager creates a new import manager.
func NewImportManager(cfg ImportManagerConfig) *ImportManager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ImportManager{
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueSize),
		jobs:   make(map[string]*ImportJob),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the worker goroutines.
func (m *ImportManager) Start() {
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
}

// Stop cancels running imports and waits for the workers.
func (m *ImportManager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.mu.Lock()
		close(m.queue)
		m.mu.Unlock()
		m.wg.Wait()
	})
}

func (m *ImportManager) worker() {
	defer m.wg.Done()
	for id := range m.queue {
		m.run(id)
	}
}

func (m *ImportManager) run(id string) {
	m.mu.Lock()
	job := m.jobs[id]
	now := time.Now()
	job.Status = ImportStatusRunning
	job.StartedAt = &now
	path, plateID := job.ZarrPath, job.PlateID
	m.mu.Unlock()

	var registered string
	var err error
	if m.Executor != nil {
		registered, err = m.Executor(m.ctx, path, plateID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	done := time.Now()
	job.FinishedAt = &done
	if err != nil {
		job.Status = ImportStatusFailed
		job.Error = err.Error()
		log.Printf("[ImportManager] import %s of %s failed: %v", id, path, err)
		return
	}
	job.Status = ImportStatusCompleted
	job.PlateID = registered
	log.Printf("[ImportManager] imported %s as plate %s", path, registered)
}

// Submit creates a new import and enqueues it.
func (m *ImportManager) Submit(zarrPath, plateID string) (ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return ImportJob{}, errors.New("import manager stopped")
	}

	job := &ImportJob{
		ID:        generateJobID(),
		ZarrPath:  zarrPath,
		PlateID:   plateID,
		Status:    ImportStatusQueued,
		CreatedAt: time.Now(),
	}
	select {
	case m.queue <- job.ID:
	default:
		return ImportJob{}, ErrQueueFull
	}
	m.jobs[job.ID] = job
	return *job, nil
}

// Get returns a snapshot of an import.
func (m *ImportManager) Get(id string) (ImportJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ImportJob{}, false
	}
	return *job, true
}

func generateJobID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
