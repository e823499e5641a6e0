package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultLogSize  = 500
	subscriberBuf   = 64
	minBackoff      = time.Second
	maxBackoff      = 30 * time.Second
	handshakeWindow = 10 * time.Second
)

// scenarios maps each weekday to the SUMO scenario served for it
var scenarios = map[time.Weekday]string{
	time.Monday:    "ongar",
	time.Tuesday:   "ongar",
	time.Wednesday: "ongar",
	time.Thursday:  "ongar",
	time.Friday:    "ongar",
	time.Saturday:  "ongar",
	time.Sunday:    "ongar",
}

// SimulatorMessage is one text frame received from the SUMO websocket
type SimulatorMessage struct {
	ReceivedAt time.Time `json:"received_at"`
	Data       string    `json:"data"`
}

// SimulatorBridge connects the twin to the SUMO traffic simulator. It serves
// scenario URLs and relays the simulator's websocket feed to subscribers.
type SimulatorBridge struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	dialer     *ws.Dialer
	log        zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
	connected  atomic.Bool

	mu       sync.RWMutex
	logSize  int
	messages []SimulatorMessage
	subs     map[chan SimulatorMessage]struct{}
}

// NewSimulatorBridge creates a new simulator bridge
func NewSimulatorBridge(baseURL, wsURL string, logSize int, log zerolog.Logger) *SimulatorBridge {
	if logSize <= 0 {
		logSize = defaultLogSize
	}
	return &SimulatorBridge{
		baseURL: baseURL,
		wsURL:   wsURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		dialer:     &ws.Dialer{HandshakeTimeout: handshakeWindow},
		log:        log,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logSize:    logSize,
		subs:       make(map[chan SimulatorMessage]struct{}),
	}
}

// ScenarioName returns the scenario for the weekday of date
func ScenarioName(date time.Time) string {
	if name, ok := scenarios[date.Weekday()]; ok {
		return name
	}
	return "ongar"
}

// ScenarioURL returns the page the client embeds for date
func (b *SimulatorBridge) ScenarioURL(date time.Time) string {
	return fmt.Sprintf("%s/scenarios/%s/", b.baseURL, ScenarioName(date))
}

// Health checks SUMO web server connectivity
func (b *SimulatorBridge) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("simulator: failed to create health request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("simulator: health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("simulator: health check returned status %d", resp.StatusCode)
	}

	return nil
}

// Connected reports whether the upstream websocket is currently open
func (b *SimulatorBridge) Connected() bool {
	return b.connected.Load()
}

// Run keeps a connection to the simulator websocket open until ctx is done,
// reconnecting with capped exponential backoff.
func (b *SimulatorBridge) Run(ctx context.Context) {
	backoff := b.minBackoff
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// a session that got far enough to read resets the backoff
			backoff = b.minBackoff
		}
		b.log.Debug().Err(err).Dur("backoff", backoff).Msg("simulator websocket disconnected")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
		}
	}
}

// session dials once and reads until the connection drops. It returns nil
// when the connection was established, so the caller can reset its backoff.
func (b *SimulatorBridge) session(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("simulator: websocket dial failed: %w", err)
	}
	b.connected.Store(true)
	b.log.Info().Str("url", b.wsURL).Msg("simulator websocket connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		b.connected.Store(false)
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if msgType != ws.TextMessage {
			continue
		}
		b.Publish(string(data))
	}
}

// Publish appends a message to the bounded log and fans it out. Slow
// subscribers miss messages rather than block the reader.
func (b *SimulatorBridge) Publish(data string) {
	msg := SimulatorMessage{ReceivedAt: time.Now(), Data: data}

	b.mu.Lock()
	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.logSize; over > 0 {
		b.messages = append(b.messages[:0:0], b.messages[over:]...)
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.Unlock()
}

// Messages returns a copy of the message log, oldest first
func (b *SimulatorBridge) Messages() []SimulatorMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SimulatorMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Subscribe registers for new messages. The returned cancel func must be
// called to release the subscription; it closes the channel.
func (b *SimulatorBridge) Subscribe() (<-chan SimulatorMessage, func()) {
	ch := make(chan SimulatorMessage, subscriberBuf)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
