package catalog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patternguard/console/internal/logger"
	"github.com/patternguard/console/internal/models"
)

const module = "catalog"

// FileAPI is the part of the backend client the catalog drives.
type FileAPI interface {
	ListFiles(ctx context.Context) ([]models.FileRecord, error)
	Upload(ctx context.Context, req models.UploadRequest) (string, error)
	DeleteFile(ctx context.Context, id string) error
}

// Manager runs file operations against the backend and folds their results
// into a Catalog. Failed operations leave the catalog unchanged.
type Manager struct {
	api     FileAPI
	catalog *Catalog
	log     logger.Logger
	now     func() time.Time

	idMu   sync.Mutex
	lastID int64
}

// NewManager creates a Manager with an empty catalog. log may be nil.
func NewManager(api FileAPI, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		api:     api,
		catalog: New(),
		log:     log,
		now:     time.Now,
	}
}

// Catalog exposes the underlying collection.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Refresh fetches the file list. The returned bool is false when a newer
// refresh had already been applied and this result was dropped.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	ticket := m.catalog.BeginRefresh()

	records, err := m.api.ListFiles(ctx)
	if err != nil {
		return false, err
	}

	applied := m.catalog.CompleteRefresh(ticket, records)
	if !applied {
		m.log.Debug(module, "dropped stale file list", map[string]interface{}{
			"ticket": uint64(ticket),
			"count":  len(records),
		})
	}
	return applied, nil
}

// Upload sends a build and, on success, prepends a local record for it.
// The backend does not return the new ID, so the record gets the current
// Unix millisecond time as a provisional ID until the next refresh. Two
// uploads in the same millisecond get consecutive IDs.
func (m *Manager) Upload(ctx context.Context, req models.UploadRequest) (models.FileRecord, string, error) {
	ticket := m.catalog.BeginMutation()

	msg, err := m.api.Upload(ctx, req)
	if err != nil {
		return models.FileRecord{}, "", err
	}

	platform, version := req.Normalized()
	rec := models.FileRecord{
		ID:          m.provisionalID(),
		DisplayName: req.Name(),
		Platform:    platform,
		Version:     version,
		SizeBytes:   req.Size(),
	}
	m.catalog.Insert(ticket, rec)

	m.log.Info(module, "added uploaded build", map[string]interface{}{
		"id":       rec.ID,
		"platform": string(rec.Platform),
		"version":  rec.Version,
	})
	return rec, msg, nil
}

func (m *Manager) provisionalID() string {
	m.idMu.Lock()
	defer m.idMu.Unlock()

	id := m.now().UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return strconv.FormatInt(id, 10)
}

// Delete removes a build on the backend and then locally.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ticket := m.catalog.BeginMutation()

	if err := m.api.DeleteFile(ctx, id); err != nil {
		return err
	}
	m.catalog.Remove(ticket, id)
	return nil
}

// Records returns the current collection.
func (m *Manager) Records() []models.FileRecord {
	return m.catalog.Records()
}
