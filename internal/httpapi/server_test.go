package httpapi_test

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/httpapi"
	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

type fakeSource struct {
	world      *world.World
	connected  []string
	events     chan *wt.WorldEvent
	subscribed chan struct{}
}

func (f *fakeSource) World() *world.World        { return f.world }
func (f *fakeSource) ConnectedPlayers() []string { return f.connected }
func (f *fakeSource) Subscribe() (<-chan *wt.WorldEvent, func()) {
	close(f.subscribed)
	return f.events, func() {}
}

func newSource(t *testing.T) *fakeSource {
	t.Helper()
	cat, err := gamedata.Load()
	require.NoError(t, err)
	cfg := world.DefaultConfig()
	cfg.Name = "test"
	cfg.Seed = 42
	w, err := world.New(context.Background(), cfg, cat, nil, rand.New(rand.NewSource(42)), nil)
	require.NoError(t, err)
	return &fakeSource{
		world:      w,
		events:     make(chan *wt.WorldEvent, 8),
		subscribed: make(chan struct{}),
	}
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndStats(t *testing.T) {
	src := newSource(t)
	srv := httptest.NewServer(httpapi.New(src, nil, nil).Handler())
	defer srv.Close()

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/health", &health))
	assert.Equal(t, "healthy", health["status"])

	var stats map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/stats", &stats))
	worldStats, ok := stats["world"].(map[string]any)
	require.True(t, ok, "в статистике должен быть раздел мира")
	assert.Equal(t, float64(42), worldStats["seed"])
	assert.Contains(t, stats, "noise")
}

func TestPlayersList(t *testing.T) {
	src := newSource(t)
	for _, name := range []string{"bob", "alice"} {
		_, err := src.world.JoinPlayer(context.Background(), world.PlayerID(name), name)
		require.NoError(t, err)
	}
	src.connected = []string{world.PlayerID("bob")}

	srv := httptest.NewServer(httpapi.New(src, nil, nil).Handler())
	defer srv.Close()

	var players []httpapi.PlayerInfo
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/players", &players))
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Name, "игроки отсортированы по имени")
	assert.False(t, players[0].Connected)
	assert.True(t, players[1].Connected)
	assert.Equal(t, 20, players[1].Health)
}

func TestChunkEndpoint(t *testing.T) {
	src := newSource(t)
	srv := httptest.NewServer(httpapi.New(src, nil, nil).Handler())
	defer srv.Close()

	var chunk httpapi.ChunkResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/chunks/-1/2", &chunk))
	assert.Equal(t, wt.ChunkPosition{X: -1, Y: 2}, chunk.Position)
	require.Len(t, chunk.Tiles, wt.ChunkSize)
	for _, row := range chunk.Tiles {
		require.Len(t, row, wt.ChunkSize)
	}

	var errResp httpapi.ErrorResponse
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/v1/chunks/abc/0", &errResp))
	assert.Equal(t, http.StatusBadRequest, errResp.Code)
}

func TestWorldsEndpoint(t *testing.T) {
	src := newSource(t)

	srv := httptest.NewServer(httpapi.New(src, nil, nil).Handler())
	var errResp httpapi.ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv, "/api/v1/worlds", &errResp), "без каталога - 503")
	srv.Close()

	catalog, err := savegame.Open(t.TempDir())
	require.NoError(t, err)
	defer catalog.Close()
	_, err = catalog.Create(context.Background(), "alpha", 7)
	require.NoError(t, err)

	srv = httptest.NewServer(httpapi.New(src, catalog, nil).Handler())
	defer srv.Close()

	var entries []savegame.Entry
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/worlds", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, int64(7), entries[0].Seed)
}

func TestDebugVars(t *testing.T) {
	srv := httptest.NewServer(httpapi.New(newSource(t), nil, nil).Handler())
	defer srv.Close()

	var vars map[string]json.RawMessage
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/debug/vars", &vars))
	assert.Contains(t, vars, "memstats")
}

func TestEventsWebsocketFiltersTypes(t *testing.T) {
	src := newSource(t)
	srv := httptest.NewServer(httpapi.New(src, nil, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?types=chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-src.subscribed:
	case <-time.After(3 * time.Second):
		t.Fatal("наблюдатель не подписался на события")
	}

	src.events <- &wt.WorldEvent{Type: wt.EventTileChanged, Position: wt.Vec2{X: 1, Y: 1}}
	src.events <- &wt.WorldEvent{Type: wt.EventChat, Message: "hello", PlayerID: "p1"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev httpapi.ObservedEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "chat", ev.Type, "события вне фильтра не передаются")
	assert.Equal(t, "hello", ev.Message)

	// закрытие канала подписки закрывает соединение
	close(src.events)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "ожидалось закрытие с GoingAway, получено %v", err)
}
