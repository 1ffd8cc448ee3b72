package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/app/store"
)

func typingOf(t *testing.T, e receivedEvent) TypingPayload {
	t.Helper()
	var p TypingPayload
	require.NoError(t, json.Unmarshal(e.Data, &p))
	return p
}

func TestTyping_RelaysToOtherMembers(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: time.Hour})
	aliceID := h.user("alice")
	alice := h.connect(aliceID, "s1")
	bob := h.connect(h.user("bob"), "s2")
	aliceInbox, bobInbox := newInbox(alice), newInbox(bob)
	general := h.store.GeneralChannelID()

	res := h.ok(alice, OpMessageTyping, map[string]any{"channelId": general, "isTyping": true}, nil)
	assert.Nil(t, res.Data)

	events := bobInbox.named(EventMessageTyping)
	require.Len(t, events, 1)
	assert.Equal(t, TypingPayload{UserID: aliceID, ChannelID: general, IsTyping: true}, typingOf(t, events[0]))
	assert.Empty(t, aliceInbox.named(EventMessageTyping))
}

func TestTyping_RequiresMembershipAndFlag(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect(h.user("alice"), "s1")
	bobID := h.user("bob")

	var private store.Channel
	h.ok(alice, OpUserReach, map[string]any{"userIds": []string{bobID}}, &private)

	carol := h.connect(h.user("carol"), "s2")
	res := h.do(carol, OpMessageTyping, map[string]any{"channelId": private.ID, "isTyping": true})
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, res.Errors)

	res = h.do(alice, OpMessageTyping, map[string]any{"channelId": private.ID})
	assert.Equal(t, StatusError, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "isTyping", res.Errors[0].Field)
}

func TestTyping_ClearedOnDisconnect(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: time.Hour})
	aliceID := h.user("alice")
	alice := h.connect(aliceID, "s1")
	bob := h.connect(h.user("bob"), "s2")
	bobInbox := newInbox(bob)

	var foo store.Channel
	h.ok(alice, OpChannelCreate, map[string]any{"name": "foo"}, &foo)
	h.ok(bob, OpChannelJoin, map[string]any{"channelId": foo.ID}, nil)
	h.ok(alice, OpMessageTyping, map[string]any{"channelId": foo.ID, "isTyping": true}, nil)

	h.mgr.Disconnect(alice)

	cleared := map[string]bool{}
	for _, e := range bobInbox.named(EventMessageTyping) {
		p := typingOf(t, e)
		if p.UserID == aliceID && !p.IsTyping {
			cleared[p.ChannelID] = true
		}
	}
	assert.Equal(t, map[string]bool{foo.ID: true, h.store.GeneralChannelID(): true}, cleared)
}
