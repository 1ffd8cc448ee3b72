package chat

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/app/store"
)

func TestMessages_PrivateChannelDelivery(t *testing.T) {
	h := newHarness(t, Options{DisconnectGraceDelay: time.Hour})
	aliceID, bobID := h.user("alice"), h.user("bob")
	alice := h.connect(aliceID, "s1")

	var private store.Channel
	h.ok(alice, OpUserReach, map[string]any{"userIds": []string{bobID}}, &private)
	assert.Equal(t, store.ChannelPrivate, private.Type)
	assert.Nil(t, private.Name)
	assert.Equal(t, []string{bobID}, private.Users)
	assert.Equal(t, 2, private.UserCount)

	bob := h.connect(bobID, "s2")
	bobInbox := newInbox(bob)
	aliceInbox := newInbox(alice)

	var sent struct {
		ID string `json:"id"`
	}
	h.ok(alice, OpMessageSend, map[string]any{"channelId": private.ID, "content": "hi"}, &sent)
	require.NotEmpty(t, sent.ID)

	events := bobInbox.named(EventMessageSent)
	require.Len(t, events, 1)
	var got struct {
		ID        string `json:"id"`
		ChannelID string `json:"channelId"`
		From      string `json:"from"`
		Content   string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(events[0].Data, &got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, private.ID, got.ChannelID)
	assert.Equal(t, aliceID, got.From)
	assert.Equal(t, "hi", got.Content)
	assert.Empty(t, aliceInbox.named(EventMessageSent), "sender is excluded")

	// The message stays unread for bob until bob acks it; the sender has read it already.
	assert.Equal(t, 1, unreadOf(t, h, bob, private.ID))
	assert.Equal(t, 0, unreadOf(t, h, alice, private.ID))

	var acked struct {
		UnreadCount int `json:"unreadCount"`
	}
	h.ok(bob, OpMessageAck, map[string]any{"channelId": private.ID, "messageId": sent.ID}, &acked)
	assert.Zero(t, acked.UnreadCount)
	assert.Equal(t, 0, unreadOf(t, h, bob, private.ID))
}

func TestMessages_AckNeverMovesBackwards(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect(h.user("alice"), "s1")
	bob := h.connect(h.user("bob"), "s2")
	general := h.store.GeneralChannelID()

	ids := make([]string, 0, 3)
	for _, content := range []string{"one", "two", "three"} {
		var sent struct {
			ID string `json:"id"`
		}
		h.ok(alice, OpMessageSend, map[string]any{"channelId": general, "content": content}, &sent)
		ids = append(ids, sent.ID)
	}

	h.ok(bob, OpMessageAck, map[string]any{"channelId": general, "messageId": ids[1]}, nil)
	assert.Equal(t, 1, unreadOf(t, h, bob, general))

	h.ok(bob, OpMessageAck, map[string]any{"channelId": general, "messageId": ids[0]}, nil)
	h.ok(bob, OpMessageAck, map[string]any{"channelId": general, "messageId": ids[1]}, nil)
	assert.Equal(t, 1, unreadOf(t, h, bob, general))

	// Acks for a channel the user is not in succeed and change nothing.
	var private store.Channel
	h.ok(alice, OpUserReach, map[string]any{"userIds": []string{bob.UserID}}, &private)
	carol := h.connect(h.user("carol"), "s3")
	res := h.ok(carol, OpMessageAck, map[string]any{"channelId": private.ID, "messageId": ids[2]}, nil)
	assert.Nil(t, res.Data)
}

func TestMessages_ListPagination(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect(h.user("alice"), "s1")
	general := h.store.GeneralChannelID()

	for i := 0; i < 5; i++ {
		h.ok(alice, OpMessageSend, map[string]any{"channelId": general, "content": "m" + strconv.Itoa(i)}, nil)
	}

	var seen []string
	after := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)

		payload := map[string]any{"channelId": general, "size": 2}
		if after != "" {
			payload["after"] = after
		}
		var page []store.Message
		res := h.ok(alice, OpMessageList, payload, &page)

		for _, m := range page {
			seen = append(seen, m.Content)
		}
		if !*res.HasMore {
			break
		}
		require.NotEmpty(t, page)
		after = strconv.FormatInt(page[len(page)-1].ID, 10)
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, seen)

	var newest []store.Message
	res := h.ok(alice, OpMessageList, map[string]any{"channelId": general, "size": 5, "orderBy": "id:desc"}, &newest)
	assert.False(t, *res.HasMore, "exactly size rows remain")
	require.Len(t, newest, 5)
	assert.Equal(t, "m4", newest[0].Content)

	var older []store.Message
	cursor := strconv.FormatInt(newest[1].ID, 10)
	h.ok(alice, OpMessageList, map[string]any{"channelId": general, "after": cursor, "orderBy": "id:desc"}, &older)
	require.Len(t, older, 3)
	assert.Equal(t, "m2", older[0].Content)
}

func TestMessages_NonMemberRefused(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect(h.user("alice"), "s1")
	bobID := h.user("bob")

	var private store.Channel
	h.ok(alice, OpUserReach, map[string]any{"userIds": []string{bobID}}, &private)

	carol := h.connect(h.user("carol"), "s2")
	carolInbox := newInbox(carol)

	res := h.do(carol, OpMessageSend, map[string]any{"channelId": private.ID, "content": "let me in"})
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, res.Errors)

	res = h.do(carol, OpMessageList, map[string]any{"channelId": private.ID})
	assert.Equal(t, StatusError, res.Status)

	assert.Empty(t, newInbox(alice).named(EventMessageSent))
	assert.Empty(t, carolInbox.named(EventMessageSent))
}

func unreadOf(t *testing.T, h *harness, c *Connection, channelID string) int {
	t.Helper()

	var channels []store.Channel
	h.ok(c, OpChannelList, map[string]any{"size": 100}, &channels)
	for _, ch := range channels {
		if ch.ID == channelID {
			return ch.UnreadCount
		}
	}
	t.Fatalf("channel %s not listed", channelID)
	return 0
}
