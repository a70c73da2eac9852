package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopzz/catmap/internal/id"
)

const (
	// DefaultHeartbeatInterval is how often connected clients receive a heartbeat.
	DefaultHeartbeatInterval = 30 * time.Second

	// historySize is the number of recent events kept for Last-Event-ID replay.
	historySize = 256

	queueSize       = 1000
	clientQueueSize = 100
)

// Client represents a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// SessionID restricts delivery to events of one session.
	// Empty string means "receive all".
	SessionID string
}

// wants reports whether the client subscribed to event.
// Events without a session (catalog changes, heartbeats) reach everyone.
func (c *Client) wants(event Event) bool {
	return event.SessionID == "" || c.SessionID == "" || c.SessionID == event.SessionID
}

// Manager fans events out to SSE clients. Events are numbered in broadcast
// order and the most recent ones are kept so a reconnecting client can
// resume from its Last-Event-ID.
type Manager struct {
	logger            *slog.Logger
	heartbeatInterval time.Duration

	queue chan Event
	wg    sync.WaitGroup

	mu      sync.Mutex
	clients map[string]*Client
	seq     uint64
	history []Event // ring of the last historySize events, oldest first

	// closeMu guards closed and the close of queue against concurrent Emits.
	closeMu sync.RWMutex
	closed  bool
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:            logger,
		heartbeatInterval: DefaultHeartbeatInterval,
		queue:             make(chan Event, queueSize),
		clients:           make(map[string]*Client),
		history:           make([]Event, 0, historySize),
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown closes the queue.
// Call it once, in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")

	heartbeat := time.NewTicker(m.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.broadcast(event)

		case <-heartbeat.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is still queued and closes
// every client. It is safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range m.queue {
			m.broadcast(event)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timed out, some events were lost")
	}

	m.wg.Wait()
	m.closeAllClients()

	m.logger.Info("SSE manager shut down")
	return nil
}

// Emit queues an event for broadcasting. It never blocks: when the queue is
// full the event is dropped and logged. Values other than Event are ignored.
// This implements the session.EventEmitter interface.
func (m *Manager) Emit(event any) {
	evt, ok := event.(Event)
	if !ok {
		m.logger.Error("ignoring emitted value that is not an SSE event")
		return
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- evt:
	default:
		// Auto-map jobs emit one progress event per 5% step, so a full
		// queue means the broadcast loop is not running.
		m.logger.Error("SSE event queue full, dropping event",
			slog.String("event_type", string(evt.Type)),
			slog.String("session_id", evt.SessionID))
	}
}

// broadcast numbers event, records it and hands it to every subscribed client.
// Slow clients whose buffer is full miss the event.
func (m *Manager) broadcast(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Type != EventHeartbeat {
		m.seq++
		event.ID = m.seq
		if len(m.history) == historySize {
			copy(m.history, m.history[1:])
			m.history = m.history[:historySize-1]
		}
		m.history = append(m.history, event)
	}

	var delivered, dropped int
	for _, client := range m.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
		}
	}

	if dropped > 0 {
		m.logger.Warn("SSE clients too slow, event dropped",
			slog.String("event_type", string(event.Type)),
			slog.Int("dropped", dropped))
	}
	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.Uint64("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("session_id", event.SessionID),
			slog.Int("delivered", delivered))
	}
}

// Connect registers a client. A non-empty sessionID limits the client to that
// session's events. When lastEventID is non-zero, recorded events newer than
// it are queued to the client first.
func (m *Manager) Connect(sessionID string, lastEventID uint64) (*Client, error) {
	clientID, err := id.Short(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		SessionID:   sessionID,
		EventChan:   make(chan Event, clientQueueSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	replayed := 0
	if lastEventID > 0 {
		for _, event := range m.history {
			if event.ID <= lastEventID || !client.wants(event) {
				continue
			}
			if replayed == clientQueueSize {
				break
			}
			client.EventChan <- event
			replayed++
		}
	}
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("session_id", sessionID),
		slog.Int("replayed", replayed),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels. Unknown IDs are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}
	close(client.Done)
	close(client.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// LastEventID returns the ID of the most recently broadcast event.
func (m *Manager) LastEventID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		close(client.Done)
		close(client.EventChan)
	}
	if len(clients) > 0 {
		m.logger.Info("all SSE clients disconnected", slog.Int("count", len(clients)))
	}
}
