// Package transfer runs downloads as background jobs that save into local
// storage once the whole body has arrived.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patternguard/console/internal/logger"
	"github.com/patternguard/console/internal/models"
)

const module = "transfer"

// Status represents the download job status.
type Status string

const (
	StatusFetching Status = "fetching"
	StatusSaving   Status = "saving"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Source says which backend path a job downloads from.
type Source string

const (
	SourceFile    Source = "file"    // admin path, by ID
	SourceRelease Source = "release" // public path, by platform and version
)

// Job represents an async download.
type Job struct {
	ID          string            `json:"id"`
	Source      Source            `json:"source"`
	Target      string            `json:"target"` // file ID or platform/version
	FileName    string            `json:"fileName,omitempty"`
	Status      Status            `json:"status"`
	Bytes       int64             `json:"bytes"`
	Saved       *models.SavedFile `json:"saved,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`

	err  error
	done chan struct{}
}

// Err returns the failure of a finished job.
func (j *Job) Err() error {
	return j.err
}

// Fetcher defines the interface needed from the backend client.
type Fetcher interface {
	DownloadByID(ctx context.Context, id string) (*models.Payload, error)
	DownloadRelease(ctx context.Context, platform, version string) (*models.Payload, error)
}

// Store defines the interface needed from the storage layer.
type Store interface {
	Save(name string, r io.Reader) (*models.SavedFile, error)
}

// Manager handles async downloads.
type Manager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	fetcher Fetcher
	store   Store
	log     logger.Logger
	wg      sync.WaitGroup
}

// NewManager creates a download manager. log may be nil.
func NewManager(fetcher Fetcher, store Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		jobs:    make(map[string]*Job),
		fetcher: fetcher,
		store:   store,
		log:     log,
	}
}

// StartFile downloads a stored build by ID. The file is saved as suggested
// when given, else under the server's name, else file-{id}.zip.
func (m *Manager) StartFile(ctx context.Context, id, suggested string) *Job {
	fetch := func(ctx context.Context) (*models.Payload, error) {
		return m.fetcher.DownloadByID(ctx, id)
	}
	return m.start(ctx, SourceFile, id, suggested, fmt.Sprintf("file-%s.zip", id), fetch)
}

// StartRelease downloads the public build for platform and version, saved
// under the server's name or {platform}-{version}.zip.
func (m *Manager) StartRelease(ctx context.Context, platform, version string) *Job {
	fetch := func(ctx context.Context) (*models.Payload, error) {
		return m.fetcher.DownloadRelease(ctx, platform, version)
	}
	target := platform + "/" + version
	return m.start(ctx, SourceRelease, target, "", fmt.Sprintf("%s-%s.zip", platform, version), fetch)
}

func (m *Manager) start(ctx context.Context, source Source, target, suggested, fallback string,
	fetch func(context.Context) (*models.Payload, error)) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Source:    source,
		Target:    target,
		Status:    StatusFetching,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	// A started job always runs to the end, even if the caller gives up.
	go m.processJob(context.WithoutCancel(ctx), job, suggested, fallback, fetch)

	return m.snapshot(job)
}

func (m *Manager) processJob(ctx context.Context, job *Job, suggested, fallback string,
	fetch func(context.Context) (*models.Payload, error)) {
	defer m.wg.Done()
	defer close(job.done)

	m.log.Debug(module, "download started", map[string]interface{}{
		"job":    job.ID,
		"source": string(job.Source),
		"target": job.Target,
	})

	payload, err := fetch(ctx)
	if err != nil {
		m.markJobError(job, err)
		return
	}

	name := suggested
	if name == "" {
		name = payload.FileName
	}
	if name == "" {
		name = fallback
	}
	m.updateJobStatus(job, StatusSaving, name, int64(len(payload.Data)))

	saved, err := m.store.Save(name, bytes.NewReader(payload.Data))
	if err != nil {
		m.markJobError(job, fmt.Errorf("saving %s: %w", name, err))
		return
	}

	m.markJobComplete(job, saved)
	m.log.Info(module, "download saved", map[string]interface{}{
		"job":    job.ID,
		"file":   saved.Name,
		"bytes":  saved.Size,
		"digest": saved.Digest,
	})
}

// Wait blocks until the job finishes or ctx ends, and returns the job's
// final state. A failed job returns its error.
func (m *Manager) Wait(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown download job %s", id)
	}

	select {
	case <-job.done:
	case <-ctx.Done():
		return m.snapshot(job), ctx.Err()
	}

	final := m.snapshot(job)
	return final, final.err
}

// WaitAll blocks until every started job has finished.
func (m *Manager) WaitAll() {
	m.wg.Wait()
}

// GetJob retrieves a copy of a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.snapshot(job), true
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *job
	return &cp
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, fileName string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.FileName = fileName
	job.Bytes = n
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(job *Job, saved *models.SavedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Saved = saved
	now := time.Now()
	job.CompletedAt = &now
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, err error) {
	m.mu.Lock()
	job.Status = StatusError
	job.Error = err.Error()
	job.err = err
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	m.log.Warn(module, "download failed", map[string]interface{}{
		"job":    job.ID,
		"target": job.Target,
		"error":  err,
	})
}

// CleanupOldJobs removes jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}
