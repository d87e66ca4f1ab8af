package models

import "encoding/json"

// Inbound events.
const (
	EventJoinRoom    = "join-room"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventPrivacy     = "room:privacy"
	EventKickUser    = "room:kick-user"
)

// Outbound events.
const (
	EventUsersUpdate      = "users-update"
	EventMessage          = "message"
	EventUsersTyping      = "users-typing"
	EventRoomPrivate      = "room-private"
	EventPrivacyChanged   = "room:privacy-changed"
	EventKicked           = "kicked"
	EventUserDisconnected = "user-disconnected"
	EventError            = "error"
)

const (
	MessageKindText  = "text"
	MessageKindAudio = "audio"
)

// Envelope is the frame exchanged over the WebSocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is queued on a client's send channel and encoded by its write pump.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinRoomRequest struct {
	Room     string          `json:"room"`
	UserData json.RawMessage `json:"userData"`
	Language string          `json:"language"`
}

type SendMessageRequest struct {
	Message     string `json:"message"`
	UserToken   string `json:"userToken"`
	Color       string `json:"color"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Room        string `json:"room"`
	Language    string `json:"language"`
	Type        string `json:"type"`
}

type TypingRequest struct {
	UserToken string `json:"userToken"`
	Room      string `json:"room"`
	Typing    bool   `json:"typing"`
}

type PrivacyRequest struct {
	Room    string `json:"room"`
	Private bool   `json:"private"`
}

type KickRequest struct {
	Room            string `json:"room"`
	TargetUserToken string `json:"targetUserToken"`
}

// PresenceEntry is one element of a users-update snapshot.
type PresenceEntry struct {
	UserData IdentityRecord `json:"userData"`
	Host     bool           `json:"host"`
}

// ChatEvent is the payload of a message broadcast.
type ChatEvent struct {
	Message     string `json:"message"`
	UserToken   string `json:"userToken"`
	Date        string `json:"date"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Color       string `json:"color"`
	Language    string `json:"language"`
	Type        string `json:"type"`
}

type TypingEvent struct {
	UserToken string `json:"userToken"`
	Typing    bool   `json:"typing"`
}

type PrivacyChangedEvent struct {
	Private bool `json:"private"`
}

// UserLeftEvent tells the remaining members that someone disconnected.
type UserLeftEvent struct {
	UserToken string `json:"userToken"`
}
