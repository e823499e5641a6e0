package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumoServer upgrades to a websocket and sends each message. With hold set
// the connection stays open until the client goes away.
func sumoServer(t *testing.T, hold bool, messages ...string) *httptest.Server {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for _, m := range messages {
			if err := c.WriteMessage(ws.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for hold {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestScenarioURL(t *testing.T) {
	b := NewSimulatorBridge("http://localhost:5000", "ws://localhost:5678", 0, zerolog.Nop())

	for day := 0; day < 7; day++ {
		date := time.Date(2024, 6, 3+day, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, "http://localhost:5000/scenarios/ongar/", b.ScenarioURL(date))
	}
}

func TestSimulatorBridge_Health(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer up.Close()

	b := NewSimulatorBridge(up.URL, "", 0, zerolog.Nop())
	assert.NoError(t, b.Health(context.Background()))

	down := NewSimulatorBridge("http://127.0.0.1:1", "", 0, zerolog.Nop())
	assert.Error(t, down.Health(context.Background()))
}

func TestSimulatorBridge_PublishBoundsLog(t *testing.T) {
	b := NewSimulatorBridge("", "", 3, zerolog.Nop())
	for i := 0; i < 5; i++ {
		b.Publish(fmt.Sprintf("step %d", i))
	}

	msgs := b.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "step 2", msgs[0].Data)
	assert.Equal(t, "step 4", msgs[2].Data)
}

func TestSimulatorBridge_Subscribe(t *testing.T) {
	b := NewSimulatorBridge("", "", 10, zerolog.Nop())
	ch, cancel := b.Subscribe()

	b.Publish("vehicle 1 departed")
	select {
	case msg := <-ch:
		assert.Equal(t, "vehicle 1 departed", msg.Data)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	assert.NotPanics(t, func() { b.Publish("after cancel") })
}

func TestSimulatorBridge_RunRelaysUpstream(t *testing.T) {
	srv := sumoServer(t, true, "step 1", "step 2")
	b := NewSimulatorBridge("", wsURL(srv), 10, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(b.Messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, b.Connected())
	assert.Equal(t, "step 1", b.Messages()[0].Data)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.False(t, b.Connected())
}

func TestSimulatorBridge_RunReconnects(t *testing.T) {
	srv := sumoServer(t, false, "hello")
	b := NewSimulatorBridge("", wsURL(srv), 10, zerolog.Nop())
	b.minBackoff = 10 * time.Millisecond
	b.maxBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	// The server hangs up after each greeting, so every redial adds one
	require.Eventually(t, func() bool { return len(b.Messages()) >= 2 }, 2*time.Second, 10*time.Millisecond)
}
