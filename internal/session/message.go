package session

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Scope says whether a log belongs to a 1:1 session or a room.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeRoom    Scope = "room"
)

// LogKey identifies one append-only log. ThreadKey is empty for the main log
// of a session or room.
type LogKey struct {
	Scope     Scope
	ID        string
	ThreadKey string
}

// SessionKey is the main log of a 1:1 session.
func SessionKey(id string) LogKey { return LogKey{Scope: ScopeSession, ID: id} }

// RoomKey is the main log of a room.
func RoomKey(id string) LogKey { return LogKey{Scope: ScopeRoom, ID: id} }

// ThreadLogKey is an artifact thread inside a room.
func ThreadLogKey(roomID, threadKey string) LogKey {
	return LogKey{Scope: ScopeRoom, ID: roomID, ThreadKey: threadKey}
}

func (k LogKey) String() string {
	s := string(k.Scope) + ":" + k.ID
	if k.ThreadKey != "" {
		s += "#" + k.ThreadKey
	}
	return s
}

// Message is immutable once stored.
type Message struct {
	ID         string    `json:"id"`
	Scope      Scope     `json:"scope"`
	OwnerID    string    `json:"owner_id"`
	ThreadKey  string    `json:"thread_key,omitempty"`
	Role       string    `json:"role"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	PersonaID  string    `json:"persona_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key returns the log the message belongs to.
func (m Message) Key() LogKey {
	return LogKey{Scope: m.Scope, ID: m.OwnerID, ThreadKey: m.ThreadKey}
}

// Session is one 1:1 conversation bound to a single persona.
type Session struct {
	ID        string    `json:"session_id"`
	PersonaID string    `json:"persona_id"`
	CreatedAt time.Time `json:"created_at"`
	Closed    bool      `json:"closed,omitempty"`
}
