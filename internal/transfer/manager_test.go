package transfer

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternguard/console/internal/client"
	"github.com/patternguard/console/internal/models"
	"github.com/patternguard/console/internal/session"
	"github.com/patternguard/console/internal/storage"
	"github.com/patternguard/console/internal/testutil"
)

type stubFetcher struct {
	payload *models.Payload
	err     error
	gate    chan struct{}
}

func (s *stubFetcher) DownloadByID(ctx context.Context, id string) (*models.Payload, error) {
	if s.gate != nil {
		<-s.gate
	}
	return s.payload, s.err
}

func (s *stubFetcher) DownloadRelease(ctx context.Context, platform, version string) (*models.Payload, error) {
	return s.DownloadByID(ctx, platform+"/"+version)
}

func newStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStartFile_SavesExactBytes(t *testing.T) {
	data := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff, 0x0d, 0x0a}
	store := newStore(t)
	m := NewManager(&stubFetcher{payload: &models.Payload{Data: data}}, store, nil)

	job := m.StartFile(context.Background(), "12", "ext-chrome.zip")
	assert.Equal(t, StatusFetching, job.Status)
	assert.Equal(t, SourceFile, job.Source)

	final, err := m.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, "ext-chrome.zip", final.FileName)
	require.NotNil(t, final.Saved)
	assert.Equal(t, int64(len(data)), final.Saved.Size)
	assert.NotNil(t, final.CompletedAt)

	onDisk, err := os.ReadFile(filepath.Join(store.Dir(), "ext-chrome.zip"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestStart_NameFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		server   string
		start    func(m *Manager) *Job
		wantFile string
	}{
		{
			name:     "file without names",
			start:    func(m *Manager) *Job { return m.StartFile(context.Background(), "7", "") },
			wantFile: "file-7.zip",
		},
		{
			name:     "file with server name",
			server:   "from-server.zip",
			start:    func(m *Manager) *Job { return m.StartFile(context.Background(), "7", "") },
			wantFile: "from-server.zip",
		},
		{
			name:     "release without server name",
			start:    func(m *Manager) *Job { return m.StartRelease(context.Background(), "edge", "3.1") },
			wantFile: "edge-3.1.zip",
		},
		{
			name:     "release with server name",
			server:   "pg-edge-3.1.zip",
			start:    func(m *Manager) *Job { return m.StartRelease(context.Background(), "edge", "3.1") },
			wantFile: "pg-edge-3.1.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			m := NewManager(&stubFetcher{payload: &models.Payload{FileName: tt.server, Data: []byte("x")}}, store, nil)

			final, err := m.Wait(context.Background(), tt.start(m).ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, final.Saved.Name)
			_, err = store.Get(tt.wantFile)
			assert.NoError(t, err)
		})
	}
}

func TestStartFile_FailedFetchSavesNothing(t *testing.T) {
	store := newStore(t)
	boom := errors.New("File not found")
	m := NewManager(&stubFetcher{err: boom}, store, nil)

	job := m.StartFile(context.Background(), "404", "")
	final, err := m.Wait(context.Background(), job.ID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, final.Status)
	assert.Equal(t, "File not found", final.Error)
	assert.Nil(t, final.Saved)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStartFile_SurvivesCallerCancel(t *testing.T) {
	gate := make(chan struct{})
	store := newStore(t)
	m := NewManager(&stubFetcher{payload: &models.Payload{Data: []byte("late")}, gate: gate}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	job := m.StartFile(ctx, "1", "late.zip")
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waitCancel()
	pending, err := m.Wait(waitCtx, job.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFetching, pending.Status)

	close(gate)
	m.WaitAll()

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, got.Status)
}

func TestWait_UnknownJob(t *testing.T) {
	m := NewManager(&stubFetcher{}, newStore(t), nil)
	_, err := m.Wait(context.Background(), "nope")
	assert.Error(t, err)
}

func TestGetJob_ReturnsCopy(t *testing.T) {
	m := NewManager(&stubFetcher{payload: &models.Payload{Data: []byte("x")}}, newStore(t), nil)
	job := m.StartFile(context.Background(), "1", "a.zip")
	m.WaitAll()

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	got.Status = StatusError

	again, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusComplete, again.Status)
}

func TestCleanupOldJobs(t *testing.T) {
	m := NewManager(&stubFetcher{payload: &models.Payload{Data: []byte("x")}}, newStore(t), nil)
	job := m.StartFile(context.Background(), "1", "a.zip")
	m.WaitAll()

	assert.Equal(t, 0, m.CleanupOldJobs(time.Hour))
	_, ok := m.GetJob(job.ID)
	assert.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupOldJobs(time.Millisecond))
	_, ok = m.GetJob(job.ID)
	assert.False(t, ok)
}

func TestStartRelease_FromBackend(t *testing.T) {
	fake := testutil.NewFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	data := []byte("firefox build \x00\x01")
	fake.AddFile("firefox", "4.2", "pg-firefox-4.2.xpi", data)

	api := client.New(client.Options{BaseURL: srv.URL, Timeout: 5 * time.Second}, session.New(session.NewMemoryProfile()), nil)
	store := newStore(t)
	m := NewManager(api, store, nil)

	final, err := m.Wait(context.Background(), m.StartRelease(context.Background(), "firefox", "4.2").ID)
	require.NoError(t, err)
	assert.Equal(t, "pg-firefox-4.2.xpi", final.Saved.Name)

	onDisk, err := os.ReadFile(final.Saved.Path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	// The admin path needs a session; no file is written without one.
	failed, err := m.Wait(context.Background(), m.StartFile(context.Background(), "1", "").ID)
	assert.True(t, client.IsKind(err, client.KindAuthorization))
	assert.Equal(t, StatusError, failed.Status)

	saved, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}
