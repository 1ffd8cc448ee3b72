package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/app/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func userIDOf(t *testing.T, e receivedEvent) string {
	t.Helper()
	var id string
	require.NoError(t, json.Unmarshal(e.Data, &id))
	return id
}

// watch connects a watcher user subscribed to target's presence.
func (h *harness) watch(target string) *inbox {
	h.t.Helper()
	watcher := h.connect(h.user("watcher"), "watcher-session")
	h.ok(watcher, OpUserGet, map[string]any{"userId": target}, nil)
	return newInbox(watcher)
}

func TestPresence_SecondSessionDoesNotBroadcast(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: time.Hour})
	alice := h.user("alice")
	watcher := h.watch(alice)

	h.connect(alice, "s1")
	connected := watcher.named(EventUserConnected)
	require.Len(t, connected, 1)
	assert.Equal(t, alice, userIDOf(t, connected[0]))

	h.connect(alice, "s2")
	assert.Len(t, watcher.named(EventUserConnected), 1)
}

func TestPresence_OnlyLastDisconnectBroadcasts(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: 0})
	alice := h.user("alice")
	watcher := h.watch(alice)

	first := h.connect(alice, "s1")
	second := h.connect(alice, "s2")

	h.mgr.Disconnect(first)
	assert.Never(t, func() bool {
		return len(watcher.named(EventUserDisconnected)) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)

	h.mgr.Disconnect(second)
	require.Eventually(t, func() bool {
		return len(watcher.named(EventUserDisconnected)) == 1
	}, time.Second, 10*time.Millisecond)

	disconnected := watcher.named(EventUserDisconnected)
	assert.Equal(t, alice, userIDOf(t, disconnected[0]))

	u, err := h.store.FindUser(context.Background(), alice)
	require.NoError(t, err)
	assert.False(t, u.IsOnline)

	// No second broadcast trails behind.
	assert.Never(t, func() bool {
		return len(watcher.named(EventUserDisconnected)) > 1
	}, 50*time.Millisecond, 10*time.Millisecond)
}

func TestPresence_ReconnectWithinGrace(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: 50 * time.Millisecond})
	alice := h.user("alice")
	watcher := h.watch(alice)

	c := h.connect(alice, "s1")
	h.mgr.Disconnect(c)
	h.connect(alice, "s2")

	assert.Never(t, func() bool {
		return len(watcher.named(EventUserDisconnected)) > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, watcher.named(EventUserConnected), 1)

	u, err := h.store.FindUser(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
}

func TestPresence_SweepFlipsZombiesOnly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := newHarness(t, Options{ZombieStaleness: 24 * time.Hour}, store.WithClock(clock.Now))
	ctx := context.Background()

	zombie := h.user("zombie")
	live := h.user("live")
	watcher := h.watch(zombie)

	// Left online by a process that crashed.
	_, err := h.store.SetUserOnline(ctx, zombie)
	require.NoError(t, err)
	h.connect(live, "s1")

	clock.Advance(25 * time.Hour)

	swept, err := h.mgr.Presence().Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{zombie}, swept)

	disconnected := watcher.named(EventUserDisconnected)
	require.Len(t, disconnected, 1)
	assert.Equal(t, zombie, userIDOf(t, disconnected[0]))

	u, err := h.store.FindUser(ctx, live)
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	swept, err = h.mgr.Presence().Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestPresence_StopCancelsPendingChecks(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: 20 * time.Millisecond})
	alice := h.user("alice")

	h.mgr.Disconnect(h.connect(alice, "s1"))
	h.mgr.Presence().Stop()

	time.Sleep(60 * time.Millisecond)

	u, err := h.store.FindUser(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, u.IsOnline, "cancelled check must not flip the user")
}

func TestPresence_TimerFiredDuringStopDoesNothing(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: 20 * time.Millisecond})
	alice := h.user("alice")

	h.mgr.Disconnect(h.connect(alice, "s1"))

	// Hold the lock past the grace delay so the timer fires and waits, then stop as Stop does.
	p := h.mgr.presence
	p.mu.Lock()
	time.Sleep(60 * time.Millisecond)
	p.stopped = true
	p.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	u, err := h.store.FindUser(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, u.IsOnline, "a check that fired before Stop must not flip the user")
}

// offlineHookStore runs beforeOffline once, just ahead of the first offline write.
type offlineHookStore struct {
	*store.Memory
	once          sync.Once
	beforeOffline func()
}

func (s *offlineHookStore) SetUserOffline(ctx context.Context, userID string) (bool, error) {
	s.once.Do(s.beforeOffline)
	return s.Memory.SetUserOffline(ctx, userID)
}

func TestPresence_ConnectDuringOfflineWriteRestoresOnline(t *testing.T) {
	st := &offlineHookStore{Memory: store.NewMemory()}
	mgr := NewManager(st, Options{DisconnectGraceDelay: 0}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	h := &harness{t: t, store: st.Memory, mgr: mgr}

	alice := h.user("alice")
	watcher := h.watch(alice)
	first := h.connect(alice, "s1")
	seen := len(watcher.all())

	// The second session arrives after the room check but before the store write.
	reconnected := make(chan error, 1)
	st.beforeOffline = func() {
		_, err := mgr.Connect(context.Background(), alice, "s2", nil)
		reconnected <- err
	}

	mgr.Disconnect(first)

	require.Eventually(t, func() bool {
		return len(watcher.all()) >= seen+2
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, <-reconnected)

	events := watcher.all()[seen:]
	require.Len(t, events, 2)
	assert.Equal(t, EventUserDisconnected, events[0].Event)
	assert.Equal(t, EventUserConnected, events[1].Event)
	assert.Equal(t, alice, userIDOf(t, events[0]))
	assert.Equal(t, alice, userIDOf(t, events[1]))

	assert.Never(t, func() bool {
		return len(watcher.all()) > seen+2
	}, 50*time.Millisecond, 10*time.Millisecond)

	u, err := h.store.FindUser(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
	assert.Equal(t, 1, mgr.Registry().Count(userRoom(alice)))
}
