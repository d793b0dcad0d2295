package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alefe53/mis-esencias-live/internal/middleware"
	"github.com/alefe53/mis-esencias-live/internal/recording"
	"github.com/alefe53/mis-esencias-live/internal/status"
	"github.com/alefe53/mis-esencias-live/internal/studio"
	"github.com/alefe53/mis-esencias-live/internal/token"
	"github.com/alefe53/mis-esencias-live/internal/transport"
	"github.com/alefe53/mis-esencias-live/pkg/pubsub"
	"github.com/alefe53/mis-esencias-live/pkg/storage"
)

type memStatusRepo struct {
	mu     sync.Mutex
	status status.Status
}

func (r *memStatusRepo) Get(ctx context.Context) (status.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, nil
}

func (r *memStatusRepo) Set(ctx context.Context, live bool) (status.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status.Status{IsLive: live, UpdatedAt: time.Now()}
	return r.status, nil
}

type nopBus struct{}

func (nopBus) Publish(ctx context.Context, channel string, event *pubsub.Event) error { return nil }
func (nopBus) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	return make(chan *pubsub.Event), nil
}
func (nopBus) Unsubscribe(ctx context.Context, channel string) error { return nil }
func (nopBus) Close() error                                          { return nil }

type nopStore struct{}

func (nopStore) Exists(ctx context.Context, key string) (bool, error) { return true, nil }
func (nopStore) List(ctx context.Context, prefix string) ([]storage.FileInfo, error) {
	return nil, nil
}
func (nopStore) Delete(ctx context.Context, key string) error { return nil }
func (nopStore) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://media.example/" + key, nil
}

type fakeEgress struct {
	mu      sync.Mutex
	result  recording.StopResult
	started int
}

func (e *fakeEgress) StartJob(ctx context.Context, roomID string, spec recording.OutputSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started++
	return "job-1", nil
}

func (e *fakeEgress) StopJob(ctx context.Context, jobID string) (recording.StopResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, nil
}

type memRecordingRepo struct {
	mu   sync.Mutex
	rows map[string]*recording.Session
}

func (r *memRecordingRepo) Create(ctx context.Context, session *recording.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.Status = recording.RowStatusOpen
	clone := *session
	r.rows[session.EgressID] = &clone
	return nil
}

func (r *memRecordingRepo) GetByJob(ctx context.Context, egressID string) (*recording.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[egressID]
	if !ok {
		return nil, recording.ErrSessionNotFound
	}
	clone := *row
	return &clone, nil
}

func (r *memRecordingRepo) Finalize(ctx context.Context, egressID, storagePath string, endedAt time.Time, durationSeconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[egressID]
	if !ok || row.Status != recording.RowStatusOpen {
		return recording.ErrSessionNotFound
	}
	row.Status = recording.RowStatusComplete
	row.StoragePath = storagePath
	row.EndedAt = &endedAt
	row.DurationSeconds = durationSeconds
	return nil
}

func (r *memRecordingRepo) MarkAbandoned(ctx context.Context, egressID string, endedAt time.Time) error {
	return nil
}

func (r *memRecordingRepo) ListOpenOlderThan(ctx context.Context, cutoff time.Time) ([]recording.Session, error) {
	return nil, nil
}

func (r *memRecordingRepo) ListComplete(ctx context.Context, limit int) ([]recording.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recording.Session
	for _, row := range r.rows {
		if row.Status == recording.RowStatusComplete {
			out = append(out, *row)
		}
	}
	return out, nil
}

type fixture struct {
	router *gin.Engine
	tokens *token.Manager
	egress *fakeEgress
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := token.NewManager(time.Hour, time.Hour, "test")
	require.NoError(t, err)

	hub := transport.NewHub(tokens.VerifyRoomToken, zerolog.Nop())
	statusService := status.NewService(&memStatusRepo{}, nopBus{}, zerolog.Nop())
	sessions := studio.NewManager("studio-main", hub, tokens, statusService, studio.NewLocalCapture(), zerolog.Nop())

	egress := &fakeEgress{result: recording.StopResult{
		Status:    recording.JobStatusComplete,
		FilePath:  "recordings/a.mp4",
		StartedAt: time.Now().Add(-time.Minute).UTC(),
		EndedAt:   time.Now().UTC(),
	}}
	recordings := recording.NewService(egress, &memRecordingRepo{rows: make(map[string]*recording.Session)}, nopStore{}, nil, recording.ServiceConfig{}, zerolog.Nop())

	h := NewHandler(sessions, statusService, recordings, tokens, middleware.NewAuthMiddleware(tokens))

	router := gin.New()
	h.RegisterRoutes(router)

	return &fixture{router: router, tokens: tokens, egress: egress}
}

func (f *fixture) request(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := f.tokens.IssueAccess("admin", true)
	require.NoError(t, err)
	return tok
}

func (f *fixture) viewerToken(t *testing.T) string {
	t.Helper()
	tok, err := f.tokens.IssueAccess("fan", false)
	require.NoError(t, err)
	return tok
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestStatusIsPublic(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/streaming/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	require.Equal(t, false, data["is_live"])
}

func TestTokenRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/streaming/token", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, http.MethodGet, "/streaming/token", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenGrantSplit(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/streaming/token", f.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, true, data["can_publish"])
	require.Equal(t, "studio-main", data["room_id"])

	w = f.request(t, http.MethodGet, "/streaming/token", f.viewerToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	require.Equal(t, false, data["can_publish"])
}

func TestMutationsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	viewer := f.viewerToken(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/streaming/start"},
		{http.MethodPost, "/streaming/stop"},
		{http.MethodPost, "/streaming/record/start"},
		{http.MethodPost, "/streaming/record/stop"},
	}

	for _, p := range paths {
		w := f.request(t, p.method, p.path, viewer, nil)
		require.Equal(t, http.StatusForbidden, w.Code, "%s %s", p.method, p.path)
	}
}

func TestStartAndStopBroadcast(t *testing.T) {
	f := newFixture(t)
	admin := f.adminToken(t)

	w := f.request(t, http.MethodPost, "/streaming/start", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, "live", data["state"])

	// The persisted flag now reads live for everyone.
	w = f.request(t, http.MethodGet, "/streaming/status", "", nil)
	require.Equal(t, true, decodeData(t, w)["is_live"])

	// Starting again is idempotent.
	w = f.request(t, http.MethodPost, "/streaming/start", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodPost, "/streaming/stop", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "idle", decodeData(t, w)["state"])

	w = f.request(t, http.MethodGet, "/streaming/status", "", nil)
	require.Equal(t, false, decodeData(t, w)["is_live"])
}

func TestToggleDeviceValidation(t *testing.T) {
	f := newFixture(t)
	admin := f.adminToken(t)

	w := f.request(t, http.MethodPost, "/streaming/devices/toggle", admin, map[string]string{"source": "hologram"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// A toggle before entering the studio is a conflict, not a crash.
	w = f.request(t, http.MethodPost, "/streaming/devices/toggle", admin, map[string]string{"source": "camera"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestToggleDeviceWhileConnected(t *testing.T) {
	f := newFixture(t)
	admin := f.adminToken(t)

	w := f.request(t, http.MethodPost, "/streaming/start", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodPost, "/streaming/devices/toggle", admin, map[string]string{"source": "screen_share"})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	devices, ok := data["devices"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, devices["screen_share"])
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t)
	admin := f.adminToken(t)

	w := f.request(t, http.MethodPost, "/streaming/record/start", admin, map[string]string{"title": "Friday set"})
	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	jobID, ok := data["egress_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)

	w = f.request(t, http.MethodPost, "/streaming/record/stop", admin, map[string]string{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	require.Equal(t, true, data["finalized"])

	// Finalized recordings are publicly listable with playback URLs.
	w = f.request(t, http.MethodGet, "/streaming/recordings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	items, ok := data["recordings"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	require.Contains(t, item["playback_url"], "recordings/a.mp4")
}

func TestRecordStartRequiresTitle(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/streaming/record/start", f.adminToken(t), map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopUnknownRecording(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/streaming/record/stop", f.adminToken(t), map[string]string{"job_id": "nope"})
	require.Equal(t, http.StatusNotFound, w.Code)
}
