package catalog

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternguard/console/internal/client"
	"github.com/patternguard/console/internal/models"
	"github.com/patternguard/console/internal/session"
	"github.com/patternguard/console/internal/testutil"
)

// stubAPI lets a test hold ListFiles open until it is released.
type stubAPI struct {
	mu        sync.Mutex
	files     []models.FileRecord
	listGate  chan struct{}
	listed    chan struct{}
	uploadErr error
	deleteErr error
}

func (s *stubAPI) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	s.mu.Lock()
	snapshot := append([]models.FileRecord(nil), s.files...)
	gate := s.listGate
	s.mu.Unlock()

	if gate != nil {
		s.listed <- struct{}{}
		<-gate
	}
	return snapshot, nil
}

func (s *stubAPI) Upload(ctx context.Context, req models.UploadRequest) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return "File uploaded successfully with ID: 9", nil
}

func (s *stubAPI) DeleteFile(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.files[:0:0]
	for _, f := range s.files {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	s.files = kept
	return nil
}

func TestManager_UploadPrependsSynthesizedRecord(t *testing.T) {
	api := &stubAPI{files: []models.FileRecord{rec("1")}}
	m := NewManager(api, nil)
	m.now = func() time.Time { return time.UnixMilli(1700000000123) }

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	got, msg, err := m.Upload(context.Background(), models.UploadRequest{
		FileName: "ext.zip",
		Payload:  []byte("12345"),
		Platform: "Firefox",
		Version:  " 2.0 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "File uploaded successfully with ID: 9", msg)
	assert.Equal(t, models.FileRecord{
		ID:          "1700000000123",
		DisplayName: "ext.zip",
		Platform:    models.PlatformFirefox,
		Version:     "2.0",
		SizeBytes:   5,
	}, got)
	assert.Equal(t, []string{"1700000000123", "1"}, ids(m.Records()))
}

func TestManager_FailuresLeaveCatalog(t *testing.T) {
	api := &stubAPI{
		files:     []models.FileRecord{rec("1"), rec("2")},
		uploadErr: errors.New("Upload failed"),
		deleteErr: errors.New("File not found"),
	}
	m := NewManager(api, nil)
	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	_, _, err = m.Upload(context.Background(), models.UploadRequest{Payload: []byte("x"), Platform: "chrome", Version: "1"})
	assert.Error(t, err)
	assert.Error(t, m.Delete(context.Background(), "1"))
	assert.Equal(t, []string{"1", "2"}, ids(m.Records()))
}

func TestManager_DeleteDuringSlowRefresh(t *testing.T) {
	api := &stubAPI{
		files:    []models.FileRecord{rec("4"), rec("5")},
		listGate: make(chan struct{}),
		listed:   make(chan struct{}, 1),
	}
	m := NewManager(api, nil)

	done := make(chan bool)
	go func() {
		applied, err := m.Refresh(context.Background())
		assert.NoError(t, err)
		done <- applied
	}()

	// The list is fetched with 5 still present, then held.
	<-api.listed
	require.NoError(t, m.Delete(context.Background(), "5"))
	close(api.listGate)

	assert.True(t, <-done)
	assert.Equal(t, []string{"4"}, ids(m.Records()))
}

func TestManager_WithBackend(t *testing.T) {
	fake := testutil.NewFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	fake.AddFile("chrome", "1.0", "a.zip", []byte("a"))
	fake.AddFile("edge", "1.0", "b.zip", []byte("b"))

	sess := session.New(session.NewMemoryProfile())
	require.NoError(t, sess.SetToken(testutil.AdminToken))
	api := client.New(client.Options{BaseURL: srv.URL, Timeout: 5 * time.Second}, sess, nil)
	m := NewManager(api, nil)

	applied, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{"1", "2"}, ids(m.Records()))

	require.NoError(t, m.Delete(context.Background(), "1"))
	assert.Equal(t, []string{"2"}, ids(m.Records()))

	_, _, err = m.Upload(context.Background(), models.UploadRequest{
		FileName: "c.zip",
		Payload:  []byte("ccc"),
		Platform: models.PlatformDummyBrowser,
		Version:  "dummy-version-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Catalog().Len())

	unnamed, _, err := m.Upload(context.Background(), models.UploadRequest{
		Payload:  []byte("dd"),
		Platform: " Dummy-Browser ",
		Version:  " dummy-version-2 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "dummy-browser-dummy-version-2.zip", unnamed.DisplayName)
	stored := fake.Files()
	require.Len(t, stored, 3)
	assert.Equal(t, stored[len(stored)-1].FileName, unnamed.DisplayName)

	// After a refresh the provisional IDs are replaced by the backend's.
	_, err = m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4"}, ids(m.Records()))
	found, ok := m.Catalog().Find("4")
	require.True(t, ok)
	assert.Equal(t, unnamed.DisplayName, found.DisplayName)
}

func TestManager_UploadsInSameMillisecond(t *testing.T) {
	api := &stubAPI{}
	m := NewManager(api, nil)
	m.now = func() time.Time { return time.UnixMilli(1700000000123) }

	req := models.UploadRequest{Payload: []byte("x"), Platform: "chrome", Version: "1.0"}
	first, _, err := m.Upload(context.Background(), req)
	require.NoError(t, err)
	second, _, err := m.Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "1700000000123", first.ID)
	assert.Equal(t, "1700000000124", second.ID)
	assert.Equal(t, []string{"1700000000124", "1700000000123"}, ids(m.Records()))
	assert.Equal(t, "chrome-1.0.zip", second.DisplayName)
}
