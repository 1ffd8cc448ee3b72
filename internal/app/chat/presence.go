package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"groupchat/internal/app/store"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/metrics"
)

// backgroundTimeout bounds store calls made by timers and the sweeper.
const backgroundTimeout = 10 * time.Second

// Presence maintains each user's online flag.
//
// Offline -> Online happens on connect and is decided by an atomic test-and-set in the store,
// so near-simultaneous connects broadcast user:connected once. Online -> Offline happens only
// after a grace delay with no live connection left; the store's conditional mark-offline makes
// racing timers and the zombie sweep broadcast user:disconnected at most once.
type Presence struct {
	store    store.PresenceStore
	registry *Registry

	grace     time.Duration
	interval  time.Duration
	staleness time.Duration

	// timers holds pending grace checks so Stop can cancel them.
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewPresence builds a tracker. grace may be zero.
func NewPresence(st store.PresenceStore, registry *Registry, opts Options, m *metrics.Metrics) *Presence {
	return &Presence{
		store:     st,
		registry:  registry,
		grace:     opts.DisconnectGraceDelay,
		interval:  opts.ZombieSweepInterval,
		staleness: opts.ZombieStaleness,
		timers:    make(map[*time.Timer]struct{}),
		metrics:   m,
		logger:    logx.Component("Presence"),
	}
}

// OnConnect marks the user online and, on an Offline -> Online transition, tells the user's
// presence subscribers. The connecting connection itself is excluded.
func (p *Presence) OnConnect(ctx context.Context, c *Connection) error {
	wasOnline, err := p.store.SetUserOnline(ctx, c.UserID)
	if err != nil {
		return err
	}

	if !wasOnline {
		p.metrics.PresenceChanged(true)
		p.registry.Multicast(presenceRoom(c.UserID), EventUserConnected, c.UserID, c)
	}
	return nil
}

// OnDisconnect schedules the grace check for userID. The connection must already have left
// its rooms.
func (p *Presence) OnDisconnect(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(p.grace, func() {
		p.mu.Lock()
		delete(p.timers, t)
		stopped := p.stopped
		p.mu.Unlock()

		// Fired just before Stop took the lock.
		if stopped {
			return
		}
		p.checkDisconnected(userID)
	})
	p.timers[t] = struct{}{}
}

// checkDisconnected runs when a grace delay elapses. Errors are logged: nobody awaits the timer.
func (p *Presence) checkDisconnected(userID string) {
	if p.registry.Count(userRoom(userID)) > 0 {
		p.logger.Debug().Str("user_id", userID).Msg("User reconnected within grace delay")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	wasOnline, err := p.store.SetUserOffline(ctx, userID)
	if err != nil {
		p.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to mark user offline")
		return
	}

	// Another timer or the sweeper got there first.
	if !wasOnline {
		return
	}

	p.metrics.PresenceChanged(false)
	p.registry.Multicast(presenceRoom(userID), EventUserDisconnected, userID, nil)

	// A connect that slipped in between the room check and the store write saw the user still
	// online and stayed quiet. Put the flag back so it matches the live connection.
	if p.registry.Count(userRoom(userID)) == 0 {
		return
	}
	wasOnline, err = p.store.SetUserOnline(ctx, userID)
	if err != nil {
		p.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to restore online flag")
		return
	}
	if !wasOnline {
		p.metrics.PresenceChanged(true)
		p.registry.Multicast(presenceRoom(userID), EventUserConnected, userID, nil)
	}
}

// Subscribe joins c to userID's presence room.
func (p *Presence) Subscribe(c *Connection, userID string) {
	p.registry.Join(c, presenceRoom(userID))
}

// Sweep runs one reconciliation cycle: it refreshes the last-seen time of users connected to
// this instance, then flips users that stayed online past the staleness threshold to offline.
func (p *Presence) Sweep(ctx context.Context) ([]string, error) {
	if live := p.registry.LiveUsers(); len(live) > 0 {
		if err := p.store.TouchUsers(ctx, live); err != nil {
			return nil, err
		}
	}

	swept, err := p.store.SweepStaleOnlineUsers(ctx, p.staleness)
	if err != nil {
		return nil, err
	}

	for _, userID := range swept {
		p.metrics.PresenceChanged(false)
		p.registry.Multicast(presenceRoom(userID), EventUserDisconnected, userID, nil)
	}
	p.metrics.ZombiesSwept(len(swept))
	return swept, nil
}

// RunSweeper sweeps once immediately and then every interval until ctx is done.
func (p *Presence) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Dur("staleness", p.staleness).Msg("Zombie sweeper started.")

	for {
		p.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Zombie sweeper stopped.")
			return
		case <-ticker.C:
		}
	}
}

func (p *Presence) sweepOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
	defer cancel()

	swept, err := p.Sweep(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Zombie sweep failed")
		return
	}
	if len(swept) > 0 {
		p.logger.Info().Int("count", len(swept)).Msg("Zombie users marked offline")
	}
}

// Stop cancels pending grace checks. Users they would have flipped are left to the sweeper.
func (p *Presence) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	for t := range p.timers {
		t.Stop()
		delete(p.timers, t)
	}
}
