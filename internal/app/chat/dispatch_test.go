package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/pkg/errs"
)

func fields(res Response) []string {
	out := make([]string, 0, len(res.Errors))
	for _, fe := range res.Errors {
		out = append(out, fe.Field)
	}
	return out
}

func TestHandle_InvalidFrame(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect(h.user("alice"), "s1")

	res := h.mgr.Handle(context.Background(), c, []byte("{not json"))
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, []errs.FieldError{{Field: "frame", Message: "must be a JSON object"}}, res.Errors)

	require.Len(t, c.send, 1)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(<-c.send, &wire))
	assert.Equal(t, "response", wire["type"])
	assert.Equal(t, "ERROR", wire["status"])
}

func TestHandle_UnknownOpEchoesID(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect(h.user("alice"), "s1")

	res := h.mgr.Handle(context.Background(), c, []byte(`{"id":"abc-1","op":"channel:delete","payload":{}}`))
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, json.RawMessage(`"abc-1"`), res.ID)
	assert.Empty(t, res.Errors)
}

func TestHandle_ValidationErrors(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect(h.user("alice"), "s1")

	tests := []struct {
		name    string
		op      string
		payload any
		fields  []string
	}{
		{
			name:    "message list collects every failed rule",
			op:      OpMessageList,
			payload: map[string]any{"channelId": "nope", "size": 0, "orderBy": "content:asc", "after": "abc"},
			fields:  []string{"channelId", "size", "orderBy", "after"},
		},
		{
			name:    "size above limit",
			op:      OpChannelList,
			payload: map[string]any{"size": 101},
			fields:  []string{"size"},
		},
		{
			name:    "channel list only orders by name",
			op:      OpChannelList,
			payload: map[string]any{"orderBy": "id:desc"},
			fields:  []string{"orderBy"},
		},
		{
			name:    "unknown field",
			op:      OpChannelCreate,
			payload: map[string]any{"name": "foo", "topic": "x"},
			fields:  []string{"topic"},
		},
		{
			name:    "wrong type",
			op:      OpMessageSend,
			payload: map[string]any{"channelId": 5, "content": "hi"},
			fields:  []string{"channelId"},
		},
		{
			name:    "content too long",
			op:      OpMessageSend,
			payload: map[string]any{"channelId": h.store.GeneralChannelID(), "content": string(make([]byte, 5001))},
			fields:  []string{"content"},
		},
		{
			name:    "ack needs a positive id",
			op:      OpMessageAck,
			payload: map[string]any{"channelId": h.store.GeneralChannelID(), "messageId": "-3"},
			fields:  []string{"messageId"},
		},
		{
			name:    "reach takes exactly one user",
			op:      OpUserReach,
			payload: map[string]any{"userIds": []string{}},
			fields:  []string{"userIds"},
		},
		{
			name:    "get needs a user id",
			op:      OpUserGet,
			payload: nil,
			fields:  []string{"userId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.do(c, tt.op, tt.payload)
			assert.Equal(t, StatusError, res.Status)
			assert.ElementsMatch(t, tt.fields, fields(res))
		})
	}
}

func TestHandle_RateLimited(t *testing.T) {
	h := newHarness(t, Options{OpsPerSecond: 0.001, OpsBurst: 2})
	c := h.connect(h.user("alice"), "s1")

	h.ok(c, OpChannelList, nil, nil)
	h.ok(c, OpChannelList, nil, nil)

	res := h.do(c, OpChannelList, nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, res.Errors)
}

func TestHandle_UserSearchAndGet(t *testing.T) {
	h := newHarness(t, Options{})
	aliceID := h.user("alice")
	h.user("alfred")
	h.user("bob")
	alice := h.connect(aliceID, "s1")

	var found []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	h.ok(alice, OpUserSearch, map[string]any{"q": "al"}, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "alfred", found[0].Username)

	var got struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		IsOnline bool   `json:"isOnline"`
	}
	h.ok(alice, OpUserGet, map[string]any{"userId": aliceID}, &got)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.IsOnline)

	res := h.do(alice, OpUserGet, map[string]any{"userId": "7f1c5a52-4f8e-4c43-a4a6-7f0b5f1f7a10"})
	assert.Equal(t, StatusError, res.Status)
}
