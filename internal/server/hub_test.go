package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastConcurrentWriters(t *testing.T) {
	hub := newProgressHub()
	defer hub.closeAll()

	ts := httptest.NewServer(http.HandlerFunc(hub.handleWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)

	// Gorilla connections allow a single writer at a time, so broadcasts
	// from overlapping pipeline runs must be serialized by the hub.
	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(stage string) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hub.Broadcast(ProgressEvent{Stage: stage, Pct: float64(i)})
			}
		}("detection")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < writers*perWriter; i++ {
		var ev ProgressEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "detection", ev.Stage)
	}
	wg.Wait()
}

func waitForClients(t *testing.T, hub *progressHub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		got := len(hub.clients)
		hub.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %d connected clients", n)
}

func TestBroadcastDropsDeadClient(t *testing.T) {
	hub := newProgressHub()
	defer hub.closeAll()

	ts := httptest.NewServer(http.HandlerFunc(hub.handleWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	waitForClients(t, hub, 1)
	conn.Close()

	// Writes to the closed connection fail until the hub evicts it.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		hub.Broadcast(ProgressEvent{Stage: "detection"})
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dead client was never evicted")
}
