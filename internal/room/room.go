package room

import (
	"slices"
	"sync"

	"mentorchat/backend/internal/session"
)

// Lifecycle policies for a room whose last member left.
const (
	LifecycleRetain  = "retain"
	LifecycleDestroy = "destroy"
)

// Room is one multi-user conversation. Every mutation and every broadcast
// happens under mu, so members observe events in the order they were
// applied.
type Room struct {
	ID string

	mu            sync.Mutex
	logID         string
	personaID     string
	mentorEnabled bool
	members       map[string]*Client
	threads       map[string]map[string]*Client
	destroyed     bool
}

// Snapshot is the externally visible room state.
type Snapshot struct {
	RoomID        string   `json:"room_id"`
	PersonaID     string   `json:"persona_id"`
	Label         string   `json:"label"`
	MentorEnabled bool     `json:"mentor_enabled"`
	Count         int      `json:"count"`
	Members       []string `json:"members"`
	Threads       []string `json:"threads"`
}

func newRoom(id, logID, personaID string, mentorEnabled bool) *Room {
	return &Room{
		ID:            id,
		logID:         logID,
		personaID:     personaID,
		mentorEnabled: mentorEnabled,
		members:       make(map[string]*Client),
		threads:       make(map[string]map[string]*Client),
	}
}

func (r *Room) mainKey() session.LogKey { return session.RoomKey(r.logID) }

func (r *Room) threadKey(key string) session.LogKey { return session.ThreadLogKey(r.logID, key) }

func (r *Room) isMemberLocked(c *Client) bool {
	m, ok := r.members[c.ID]
	return ok && m == c
}

// sendLocked delivers to one member. A member whose buffer is full is
// dropped from the room.
func (r *Room) sendLocked(c *Client, b []byte) {
	if b == nil || !r.isMemberLocked(c) {
		return
	}
	if !c.offer(b) {
		r.dropLocked([]*Client{c})
	}
}

func (r *Room) broadcastLocked(b []byte) {
	if b == nil {
		return
	}
	var dropped []*Client
	for _, c := range r.members {
		if !c.offer(b) {
			dropped = append(dropped, c)
		}
	}
	r.dropLocked(dropped)
}

// publishThreadLocked delivers to the members subscribed to a thread.
func (r *Room) publishThreadLocked(key string, b []byte) {
	if b == nil {
		return
	}
	var dropped []*Client
	for _, c := range r.threads[key] {
		if !r.isMemberLocked(c) {
			continue
		}
		if !c.offer(b) {
			dropped = append(dropped, c)
		}
	}
	r.dropLocked(dropped)
}

func (r *Room) dropLocked(dropped []*Client) {
	if len(dropped) == 0 {
		return
	}
	for _, c := range dropped {
		r.removeLocked(c)
		c.close()
	}
	r.broadcastLocked(encode(EventLobbyStats, LobbyStatsPayload{Count: len(r.members)}))
}

func (r *Room) removeLocked(c *Client) bool {
	if !r.isMemberLocked(c) {
		return false
	}
	delete(r.members, c.ID)
	for _, subs := range r.threads {
		delete(subs, c.ID)
	}
	return true
}

func (r *Room) subscribeLocked(key string, c *Client) {
	subs, ok := r.threads[key]
	if !ok {
		subs = make(map[string]*Client)
		r.threads[key] = subs
	}
	subs[c.ID] = c
}

func (r *Room) trackThreadLocked(key string) {
	if _, ok := r.threads[key]; !ok {
		r.threads[key] = make(map[string]*Client)
	}
}

func (r *Room) snapshotLocked(label string) Snapshot {
	s := Snapshot{
		RoomID:        r.ID,
		PersonaID:     r.personaID,
		Label:         label,
		MentorEnabled: r.mentorEnabled,
		Count:         len(r.members),
		Members:       make([]string, 0, len(r.members)),
		Threads:       make([]string, 0, len(r.threads)),
	}
	for _, c := range r.members {
		s.Members = append(s.Members, c.name())
	}
	for k := range r.threads {
		s.Threads = append(s.Threads, k)
	}
	slices.Sort(s.Members)
	slices.Sort(s.Threads)
	return s
}
