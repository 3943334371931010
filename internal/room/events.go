package room

import (
	"encoding/json"
	"time"

	"mentorchat/backend/internal/session"
)

// Outbound event types
const (
	EventSystem               = "system"
	EventChatMessage          = "chat_message"
	EventLinkPreview          = "link_preview"
	EventFileShared           = "file_shared"
	EventRoomGuruChanged      = "room_guru_changed"
	EventMentorEnabledChanged = "mentor_enabled_changed"
	EventLobbyStats           = "lobby_stats"
	EventThreadMessage        = "thread_message"
	EventThreadHistory        = "thread_history"
)

// Inbound event types
const (
	InJoinRoom         = "join_room"
	InChatMessage      = "chat_message"
	InSetRoomGuru      = "set_room_guru"
	InSetMentorEnabled = "set_mentor_enabled"
	InThreadOpen       = "thread_open"
	InThreadMessage    = "thread_message"
	InShareFile        = "share_file"
	InPing             = "ping"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type outEnvelope struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

func encode(eventType string, content any) []byte {
	b, err := json.Marshal(outEnvelope{Type: eventType, Content: content})
	if err != nil {
		return nil
	}
	return b
}

type SystemPayload struct {
	Text string `json:"text"`
}

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatPayload is a stored message as seen by clients.
type ChatPayload struct {
	ID        string `json:"id"`
	ThreadKey string `json:"threadKey,omitempty"`
	Role      string `json:"role"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	PersonaID string `json:"personaId,omitempty"`
	TS        int64  `json:"ts"`
}

func chatPayload(m session.Message) ChatPayload {
	return ChatPayload{
		ID:        m.ID,
		ThreadKey: m.ThreadKey,
		Role:      m.Role,
		Sender:    Sender{ID: m.SenderID, Name: m.SenderName},
		Text:      m.Text,
		PersonaID: m.PersonaID,
		TS:        m.CreatedAt.UnixMilli(),
	}
}

type GuruPayload struct {
	GuruID string `json:"guruId"`
	Label  string `json:"label"`
}

type MentorEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

type LobbyStatsPayload struct {
	Count int `json:"count"`
}

type LinkPreviewPayload struct {
	ThreadKey   string `json:"threadKey"`
	URL         string `json:"url"`
	Host        string `json:"host"`
	SiteName    string `json:"siteName,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	OwnerID     string `json:"ownerId"`
	OwnerName   string `json:"ownerName"`
}

type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
	Mime     string `json:"mime,omitempty"`
	URL      string `json:"url,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

type FileSharedPayload struct {
	ThreadKey string   `json:"threadKey"`
	OwnerID   string   `json:"ownerId"`
	OwnerName string   `json:"ownerName"`
	File      FileInfo `json:"file"`
	Preview   string   `json:"preview"`
	TS        int64    `json:"ts"`
}

type ThreadHistoryPayload struct {
	ThreadKey string             `json:"threadKey"`
	Meta      session.ThreadMeta `json:"meta"`
	Messages  []ChatPayload      `json:"messages"`
}

// Inbound payloads

type JoinRequest struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type GuruRequest struct {
	GuruID string `json:"guruId"`
}

type MentorRequest struct {
	Enabled bool `json:"enabled"`
}

type ThreadOpenRequest struct {
	ThreadKey string `json:"threadKey"`
}

type ThreadMessageRequest struct {
	ThreadKey string `json:"threadKey"`
	Text      string `json:"text"`
}

// FileShare is an uploaded file announced to the room. Preview is the
// extracted text the mentor summarizes.
type FileShare struct {
	FileInfo
	Preview string `json:"preview"`
}

func nowMillis() int64 { return time.Now().UnixMilli() }
