package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"soundfleet/internal/config"
	"soundfleet/internal/orchestrator/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeWorker(t *testing.T, status map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/commands/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"status":"error","error":"nothing is playing"}`))
	})
	mux.HandleFunc("/v1/status/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(status)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestForwardNoWorker(t *testing.T) {
	rt := New(registry.New(), "s")

	_, _, err := rt.Forward(context.Background(), config.BotMusic, "/v1/commands/stop", nil)
	assert.ErrorIs(t, err, ErrNoWorker)
}

func TestForwardRelaysStatusAndBodyVerbatim(t *testing.T) {
	reg := registry.New()
	worker := fakeWorker(t, nil)
	require.NoError(t, reg.Register(registry.Registration{
		BotType: config.BotMusic, InstanceID: "i-1", Addr: worker.URL,
	}))

	rt := New(reg, "s")
	code, body, err := rt.Forward(context.Background(), config.BotMusic,
		"/v1/commands/skip", []byte(`{"guildId":"g"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, code, "worker status passes through untouched")
	assert.JSONEq(t, `{"status":"error","error":"nothing is playing"}`, string(body))
}

func TestStatusMergesWorkersAndErrors(t *testing.T) {
	reg := registry.New()

	healthy := fakeWorker(t, map[string]any{
		"connected": true, "playing": true, "queueLength": 4, "volume": 80,
	})
	require.NoError(t, reg.Register(registry.Registration{
		BotType: config.BotMusic, InstanceID: "i-music", Addr: healthy.URL,
	}))
	require.NoError(t, reg.Register(registry.Registration{
		BotType: config.BotSoundboard, InstanceID: "i-sb", Addr: "http://127.0.0.1:1",
	}))

	rt := New(reg, "s")
	got := rt.Status(context.Background(), "g1")

	assert.Equal(t, "g1", got.GuildID)
	require.Len(t, got.Workers, 2)

	// Sorted by bot type: music before soundboard.
	music := got.Workers[0]
	assert.Equal(t, config.BotMusic, music.BotType)
	assert.Equal(t, "i-music", music.InstanceID)
	assert.True(t, music.Playing)
	assert.Equal(t, 4, music.QueueLength)
	assert.Empty(t, music.Error)

	sb := got.Workers[1]
	assert.Equal(t, config.BotSoundboard, sb.BotType)
	assert.NotEmpty(t, sb.Error, "unreachable worker reports an error entry")
	assert.Equal(t, "i-sb", sb.InstanceID, "identity survives the failed fetch")
}

func TestStatusEmptyRegistry(t *testing.T) {
	rt := New(registry.New(), "s")
	got := rt.Status(context.Background(), "g")
	assert.Empty(t, got.Workers)
}
