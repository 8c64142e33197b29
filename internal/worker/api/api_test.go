package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/idempotency"
	"soundfleet/internal/music/player"
	"soundfleet/internal/music/queue"
	"soundfleet/internal/music/resolver"
	"soundfleet/internal/music/track"
	"soundfleet/internal/music/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "shh"

type fakeEngine struct {
	joinErr    error
	leaveErr   error
	enqueueErr error
	volumeErr  error

	enqueueCalls int32
	joinCalls    int32
	view         queue.View
}

func (f *fakeEngine) Join(_ context.Context, guildID, channelID string) error {
	atomic.AddInt32(&f.joinCalls, 1)
	return f.joinErr
}

func (f *fakeEngine) Leave(_ context.Context, guildID string) error { return f.leaveErr }

func (f *fakeEngine) Enqueue(_ context.Context, guildID, url, _, _ string) (int, []track.Track, error) {
	atomic.AddInt32(&f.enqueueCalls, 1)
	if f.enqueueErr != nil {
		return 0, nil, f.enqueueErr
	}
	return 3, []track.Track{{Title: "song", URL: url}}, nil
}

func (f *fakeEngine) Skip(guildID string, count int) ([]string, error) {
	return []string{"song"}, nil
}

func (f *fakeEngine) TogglePause(guildID string) (bool, error) { return true, nil }
func (f *fakeEngine) Stop(guildID string) error                { return nil }
func (f *fakeEngine) Clear(guildID string) int                 { return 2 }

func (f *fakeEngine) SetVolume(guildID string, level int) error { return f.volumeErr }
func (f *fakeEngine) Seek(guildID string, _ int) error          { return nil }
func (f *fakeEngine) Replay(guildID string) (string, error)     { return "song", nil }

func (f *fakeEngine) ToggleAutoplay(guildID string, explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	return true
}

func (f *fakeEngine) Queue(guildID string) queue.View { return f.view }

func (f *fakeEngine) Status(guildID string) GuildStatus {
	return GuildStatus{BotType: config.BotMusic, InstanceID: "i-1", Connected: true}
}

func (f *fakeEngine) Health() Health { return Health{Ready: true, Uptime: time.Minute} }
func (f *fakeEngine) Sounds() []string {
	return []string{"airhorn.mp3"}
}

func newTestServer(t *testing.T, eng Engine) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(eng, testSecret, idempotency.New(time.Minute)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-worker-secret", testSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSecretGuard(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})

	resp, err := http.Post(srv.URL+"/v1/commands/stop", "application/json",
		bytes.NewReader([]byte(`{"guildId":"g"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open without the secret.
	resp, err = http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSecretGuardUnconfigured(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeEngine{}, "", nil).Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/commands/stop",
		bytes.NewReader([]byte(`{"guildId":"g"}`)))
	req.Header.Set("x-worker-secret", "anything")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestJoinResponses(t *testing.T) {
	t.Run("joined", func(t *testing.T) {
		srv := newTestServer(t, &fakeEngine{})
		resp, body := post(t, srv, "/v1/commands/join",
			map[string]string{"guildId": "g", "channelId": "c"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "joined", body["status"])
		assert.Equal(t, "c", body["channelId"])
	})

	t.Run("already connected", func(t *testing.T) {
		srv := newTestServer(t, &fakeEngine{joinErr: voice.ErrAlreadyConnected})
		resp, body := post(t, srv, "/v1/commands/join",
			map[string]string{"guildId": "g", "channelId": "c"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "already_connected", body["status"])
	})

	t.Run("unknown channel", func(t *testing.T) {
		srv := newTestServer(t, &fakeEngine{joinErr: voice.ErrNotFound})
		resp, _ := post(t, srv, "/v1/commands/join",
			map[string]string{"guildId": "g", "channelId": "c"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing guildId", func(t *testing.T) {
		srv := newTestServer(t, &fakeEngine{})
		resp, _ := post(t, srv, "/v1/commands/join", map[string]string{"channelId": "c"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLeaveNotConnected(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{leaveErr: voice.ErrNotConnected})
	resp, body := post(t, srv, "/v1/commands/leave", map[string]string{"guildId": "g"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not_connected", body["status"])
}

func TestEnqueueIdempotentReplay(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(t, eng)

	payload := map[string]string{
		"requestId": "req-42", "guildId": "g", "url": "https://youtu.be/abc",
	}

	resp, body := post(t, srv, "/v1/commands/enqueue", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(3), body["position"])

	resp, replay := post(t, srv, "/v1/commands/enqueue", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, body, replay, "retry must replay the original response")
	assert.Equal(t, int32(1), atomic.LoadInt32(&eng.enqueueCalls))
}

func TestEnqueueWithoutRequestIDExecutesEachTime(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(t, eng)

	payload := map[string]string{"guildId": "g", "url": "https://youtu.be/abc"}
	post(t, srv, "/v1/commands/enqueue", payload)
	post(t, srv, "/v1/commands/enqueue", payload)

	assert.Equal(t, int32(2), atomic.LoadInt32(&eng.enqueueCalls))
}

func TestVolumeValidation(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{volumeErr: player.ErrVolumeOutOfRange})
	resp, _ := post(t, srv, "/v1/commands/volume",
		map[string]any{"guildId": "g", "level": 250})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVolumeLevelZeroIsValid(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})
	resp, body := post(t, srv, "/v1/commands/volume",
		map[string]any{"guildId": "g", "level": 0})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["volume"])
}

func TestQueueView(t *testing.T) {
	now := track.Track{Title: "playing", URL: "u1"}
	eng := &fakeEngine{view: queue.View{
		Tracks:      []track.Track{{Title: "next", URL: "u2"}},
		Total:       1,
		NowPlaying:  &now,
		PositionSec: 42,
		Paused:      true,
		Autoplay:    false,
		Volume:      80,
	}}
	srv := newTestServer(t, eng)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/queue/g", nil)
	req.Header.Set("x-internal-secret", testSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, true, body["isPaused"])
	assert.Equal(t, float64(80), body["volume"])

	np, ok := body["nowPlaying"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "playing", np["title"])
	assert.Equal(t, float64(42), np["position"])

	items, ok := body["queue"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "next", items[0].(map[string]any)["title"])
}

func TestEnqueueNoResults(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{enqueueErr: resolver.ErrNoResults})
	resp, body := post(t, srv, "/v1/commands/enqueue",
		map[string]string{"guildId": "g", "url": "gibberish"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
}

func TestSoundsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/sounds", nil)
	req.Header.Set("x-worker-secret", testSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []any{"airhorn.mp3"}, body["sounds"])
}
