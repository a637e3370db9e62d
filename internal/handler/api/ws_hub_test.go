package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
)

func TestHubPushesSignalEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil)
	go func() { _ = hub.Run(ctx) }()

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(models.Event{Type: models.EventOutcomeRecorded, PairAddress: "0xignored"})
	hub.Broadcast(models.Event{ID: "e1", Type: models.EventSignalEmitted, PairAddress: "0xabc"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "e1", ev.ID)
	assert.Equal(t, "0xabc", ev.PairAddress)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	check := originChecker([]string{"https://app.example"})
	req := httptest.NewRequest("GET", "/ws/signals", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
