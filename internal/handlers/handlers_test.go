package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/careline/realtime/internal/auth"
	"github.com/careline/realtime/internal/cache"
	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/models"
	ws "github.com/careline/realtime/internal/websocket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()
	db := database.NewMemoryDB()
	hub := ws.NewHub(db, db, zerolog.Nop())

	e := echo.New()
	e.Use(RequestID(), Recovery(zerolog.Nop()))
	NewWebSocketHandlers(auth.NewService(testSecret, true), hub, ws.DefaultClientOptions(), []string{"*"}, zerolog.Nop()).RegisterRoutes(e)
	NewHealthHandlers(hub, db, nil).RegisterRoutes(e)

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Invocation {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var inv models.Invocation
	require.NoError(t, conn.ReadJSON(&inv))
	return inv
}

func TestWebSocket_RejectsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_TokenAndPresence(t *testing.T) {
	srv, hub := newTestServer(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "bob", "exp": time.Now().Add(time.Hour).Unix()})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	bob := dial(t, srv, "token="+signed)
	assert.Equal(t, models.EventOnlineUsers, readEvent(t, bob).Method)

	alice := dial(t, srv, "userId=alice")
	assert.Equal(t, models.EventOnlineUsers, readEvent(t, alice).Method)

	online := readEvent(t, bob)
	require.Equal(t, models.EventUserOnline, online.Method)
	var who string
	require.NoError(t, online.Bind(&who))
	assert.Equal(t, "alice", who)

	require.NoError(t, alice.WriteJSON(models.NewEvent(models.MethodInitiateCall, "bob", true)))
	incoming := readEvent(t, bob)
	assert.Equal(t, models.EventIncomingCall, incoming.Method)

	require.NoError(t, alice.Close())
	offline := readEvent(t, bob)
	assert.Equal(t, models.EventUserOffline, offline.Method)
	assert.Eventually(t, func() bool { return hub.Stats().Connections == 1 }, time.Second, 10*time.Millisecond)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestHealth(t *testing.T) {
	db := database.NewMemoryDB()
	hub := ws.NewHub(db, db, zerolog.Nop())
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, NewHealthHandlers(hub, db, nil).Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "cache")

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, NewHealthHandlers(hub, failingPinger{}, nil).Health(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fixedCacheStats cache.Stats

func (s fixedCacheStats) Stats() cache.Stats { return cache.Stats(s) }

func TestHealth_ReportsProfileCache(t *testing.T) {
	db := database.NewMemoryDB()
	hub := ws.NewHub(db, db, zerolog.Nop())
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, NewHealthHandlers(hub, db, fixedCacheStats{Hits: 7, Misses: 2}).Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cache *cache.Stats `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Cache)
	assert.Equal(t, uint64(7), body.Cache.Hits)
	assert.Equal(t, uint64(2), body.Cache.Misses)
	assert.Zero(t, body.Cache.Errors)
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(echo.Context) error { panic("boom") })(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, "my-id", seen)
	assert.Equal(t, "my-id", rec.Header().Get(RequestIDHeader))
}
