package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/configs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/metrics"
	"groupchat/internal/pkg/randx"
)

// ErrShuttingDown is returned by Connect once Shutdown has started.
var ErrShuttingDown = errors.New("chat: manager is shutting down")

// Options tunes connection handling and presence timing.
type Options struct {
	// DisconnectGraceDelay is how long a user with no connection left stays online. Zero
	// makes the offline check run immediately.
	DisconnectGraceDelay time.Duration

	// ZombieSweepInterval is how often the sweeper runs.
	ZombieSweepInterval time.Duration

	// ZombieStaleness is how long an online user may go unseen before the sweeper flips it.
	ZombieStaleness time.Duration

	// SendQueueSize is the outbound frame buffer per connection.
	SendQueueSize int

	// OpsPerSecond and OpsBurst limit inbound operations per connection. A zero rate
	// disables the limit.
	OpsPerSecond float64
	OpsBurst     int
}

// OptionsFromConfig picks the chat settings out of the application config.
func OptionsFromConfig(cfg *configs.AppConfig) Options {
	return Options{
		DisconnectGraceDelay: cfg.DisconnectGraceDelay,
		ZombieSweepInterval:  cfg.ZombieSweepInterval,
		ZombieStaleness:      cfg.ZombieStaleness,
		SendQueueSize:        cfg.SendQueueSize,
		OpsPerSecond:         cfg.OpsPerSecond,
		OpsBurst:             cfg.OpsBurst,
	}
}

func (o Options) withDefaults() Options {
	if o.DisconnectGraceDelay < 0 {
		o.DisconnectGraceDelay = 0
	}
	if o.ZombieSweepInterval <= 0 {
		o.ZombieSweepInterval = time.Minute
	}
	if o.ZombieStaleness <= 0 {
		o.ZombieStaleness = 24 * time.Hour
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.OpsBurst < 1 {
		o.OpsBurst = 1
	}
	return o
}

// Manager owns the live connections of this instance and wires them to the coordinators.
type Manager struct {
	store    store.Store
	registry *Registry
	presence *Presence
	channels *Channels
	messages *Messages
	typing   *Typing
	users    *Users

	ops  map[string]opHandler
	opts Options

	// mu guards conns and closing. conns is every connection that has not been disconnected.
	mu      sync.Mutex
	conns   map[*Connection]struct{}
	closing bool

	// serving counts socket connections whose Serve has not returned. Connect adds under mu,
	// so no Add can race Shutdown's Wait.
	serving sync.WaitGroup

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewManager builds a manager on top of st. m may be nil.
func NewManager(st store.Store, opts Options, m *metrics.Metrics) *Manager {
	opts = opts.withDefaults()
	registry := NewRegistry(m)
	presence := NewPresence(st, registry, opts, m)

	mgr := &Manager{
		store:    st,
		registry: registry,
		presence: presence,
		channels: NewChannels(st, registry),
		messages: NewMessages(st, st, registry),
		typing:   NewTyping(st, registry),
		users:    NewUsers(st, presence),
		opts:     opts,
		conns:    make(map[*Connection]struct{}),
		metrics:  m,
		logger:   logx.Component("Manager"),
	}
	mgr.ops = mgr.routes()
	return mgr
}

// Registry exposes the room registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Presence exposes the presence tracker.
func (m *Manager) Presence() *Presence { return m.presence }

// Connect registers a connection for an authenticated user. The connection joins its user room,
// its session room and the rooms of every channel the user belongs to, and the user is marked
// online. ws may be nil for an in-process connection that is never served; a connection with a
// socket must be handed to Serve exactly once.
func (m *Manager) Connect(ctx context.Context, userID, sessionID string, ws *websocket.Conn) (*Connection, error) {
	c := newConnection(randx.ConnectionID(), userID, sessionID, ws, m.opts, m.metrics)
	served := ws != nil

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.conns[c] = struct{}{}
	if served {
		m.serving.Add(1)
	}
	m.mu.Unlock()

	m.metrics.ConnectionOpened()

	fail := func(err error) (*Connection, error) {
		m.drop(c)
		if served {
			m.serving.Done()
		}
		return nil, err
	}

	// The user room comes first so a channel another tab creates from here on reaches this
	// connection through JoinAll, even before the membership list below is read.
	m.registry.Join(c, userRoom(userID))
	m.registry.Join(c, sessionRoom(sessionID))

	channelIDs, err := m.store.ListMemberships(ctx, userID)
	if err != nil {
		return fail(err)
	}
	for _, channelID := range channelIDs {
		m.registry.Join(c, channelRoom(channelID))
	}

	if err := m.presence.OnConnect(ctx, c); err != nil {
		return fail(err)
	}

	c.logger.Info().Int("channels", len(channelIDs)).Msg("Connection established")
	return c, nil
}

// Serve pumps frames for a websocket connection until it ends, then disconnects it.
func (m *Manager) Serve(c *Connection) {
	defer m.serving.Done()

	go c.WritePump()

	// Store writes started by a frame finish even when the client goes away mid-operation.
	c.ReadPump(func(frame []byte) {
		m.Handle(context.Background(), c, frame)
	})

	m.Disconnect(c)
}

// Disconnect tears c down: it leaves every room, schedules the user's offline check and clears
// the user's typing state in all their channels. Calling it again is a no-op.
func (m *Manager) Disconnect(c *Connection) {
	if !m.drop(c) {
		return
	}

	m.presence.OnDisconnect(c.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	if err := m.typing.ClearAll(ctx, c.UserID); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear typing state")
	}

	c.logger.Info().Msg("Connection closed")
}

// drop closes c and removes it from every room. It reports whether c was still live.
func (m *Manager) drop(c *Connection) bool {
	m.mu.Lock()
	_, live := m.conns[c]
	delete(m.conns, c)
	m.mu.Unlock()

	if !live {
		return false
	}

	c.Close()
	m.registry.LeaveAll(c)
	m.metrics.ConnectionClosed()
	return true
}

// DisconnectSession closes every connection of a login session, e.g. after logout.
// It returns how many connections were closed.
func (m *Manager) DisconnectSession(sessionID string) int {
	conns := m.registry.Connections(sessionRoom(sessionID))
	for _, c := range conns {
		c.CloseWithCode(WsCloseCodeSessionEnded)
		m.Disconnect(c)
	}

	if len(conns) > 0 {
		m.logger.Info().Str("session_id", sessionID).Int("count", len(conns)).Msg("Session connections closed")
	}
	return len(conns)
}

// RunSweeper runs the zombie sweeper until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context) {
	m.presence.RunSweeper(ctx)
}

// Shutdown stops accepting connections, cancels pending offline checks and closes every live
// connection. It waits for served connections to finish until ctx is done.
//
// Users still marked online are left for the sweeper: other instances sharing the store may
// hold connections for them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info().Msg("Shutting down Manager...")

	m.mu.Lock()
	m.closing = true
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[*Connection]struct{})
	m.mu.Unlock()

	m.presence.Stop()

	for _, c := range conns {
		c.CloseWithCode(websocket.CloseGoingAway)
		m.registry.LeaveAll(c)
		m.metrics.ConnectionClosed()
	}

	done := make(chan struct{})
	go func() {
		m.serving.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Int("connections", len(conns)).Msg("Manager shutdown complete.")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
