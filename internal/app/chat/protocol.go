/*
Package chat contains the real-time coordination layer: live connections, rooms, presence, and the
channel, message and typing coordinators that operate on them.

This file defines the websocket wire protocol. Clients send operations as
{"id": <correlation>, "op": <name>, "payload": {...}} and receive exactly one response per
operation plus any number of events.
*/
package chat

import (
	"encoding/json"

	"groupchat/internal/pkg/errs"
)

// Response statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Frame types.
const (
	frameResponse = "response"
	frameEvent    = "event"
)

// Events pushed to rooms.
const (
	EventChannelCreated   = "channel:created"
	EventChannelJoined    = "channel:joined"
	EventMessageSent      = "message:sent"
	EventMessageTyping    = "message:typing"
	EventUserConnected    = "user:connected"
	EventUserDisconnected = "user:disconnected"
)

// Inbound operations.
const (
	OpChannelCreate = "channel:create"
	OpChannelJoin   = "channel:join"
	OpChannelList   = "channel:list"
	OpChannelSearch = "channel:search"
	OpMessageSend   = "message:send"
	OpMessageList   = "message:list"
	OpMessageAck    = "message:ack"
	OpMessageTyping = "message:typing"
	OpUserGet       = "user:get"
	OpUserReach     = "user:reach"
	OpUserSearch    = "user:search"
)

// Inbound is one operation request read from a connection.
type Inbound struct {
	// ID is echoed back verbatim in the response; any JSON value is accepted.
	ID      json.RawMessage `json:"id,omitempty"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers one Inbound.
type Response struct {
	Type    string            `json:"type"`
	ID      json.RawMessage   `json:"id,omitempty"`
	Status  string            `json:"status"`
	Data    any               `json:"data,omitempty"`
	HasMore *bool             `json:"hasMore,omitempty"`
	Errors  []errs.FieldError `json:"errors,omitempty"`
}

// Event is a server-initiated frame delivered through a room.
type Event struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// TypingPayload is the data of EventMessageTyping.
type TypingPayload struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
	IsTyping  bool   `json:"isTyping"`
}

// Room name helpers. A channel room holds every live connection of the channel's members, a
// user room all connections of one user, a session room all connections of one login session,
// and a presence room every connection that asked for the user's online state.
const (
	channelRoomPrefix  = "channel:"
	userRoomPrefix     = "user:"
	sessionRoomPrefix  = "session:"
	presenceRoomPrefix = "user_state:"
)

func channelRoom(channelID string) string { return channelRoomPrefix + channelID }
func userRoom(userID string) string { return userRoomPrefix + userID }
func sessionRoom(sessionID string) string { return sessionRoomPrefix + sessionID }
func presenceRoom(userID string) string { return presenceRoomPrefix + userID }
