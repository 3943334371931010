// Package session keeps per-session, per-room and per-artifact message logs
// consistent under concurrent access.
package session

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mentorchat/backend/pkg/logger"
)

var (
	ErrClosed            = errors.New("log closed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrPersonaMismatch   = errors.New("session bound to a different persona")
	ErrThreadKeyConflict = errors.New("thread key resolves to two artifacts")
	ErrThreadNotFound    = errors.New("thread not found")
)

const shardCount = 64

type logEntry struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	hydrated bool
}

// shard locks guard only map lookups; each log has its own mutex.
type shard struct {
	mu       sync.Mutex
	logs     map[LogKey]*logEntry
	sessions map[string]*Session
	threads  map[string]ThreadMeta
}

// Store is the in-memory message log, optionally backed by a Repository.
type Store struct {
	shards    [shardCount]shard
	repo      Repository
	logger    *logger.Logger
	now       func() time.Time
	deriveKey func(kind, identity string) string

	// destroyed room log ids; their entries are dropped from the shards
	closedRooms sync.Map
}

// NewStore creates a store. repo may be nil for a purely in-memory store.
func NewStore(repo Repository, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	s := &Store{
		repo:      repo,
		logger:    log.WithComponent("session-store"),
		now:       time.Now,
		deriveKey: DeriveKey,
	}
	for i := range s.shards {
		s.shards[i].logs = make(map[LogKey]*logEntry)
		s.shards[i].sessions = make(map[string]*Session)
		s.shards[i].threads = make(map[string]ThreadMeta)
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *Store) entry(key LogKey) *logEntry {
	if key.Scope == ScopeRoom {
		if _, ok := s.closedRooms.Load(key.ID); ok {
			return &logEntry{closed: true, hydrated: true}
		}
	}
	sh := s.shardFor(key.String())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.logs[key]
	if !ok {
		e = &logEntry{}
		sh.logs[key] = e
	}
	return e
}

// hydrate loads a cold log from the repository. Caller holds e.mu.
func (s *Store) hydrate(ctx context.Context, key LogKey, e *logEntry) {
	if e.hydrated {
		return
	}
	e.hydrated = true
	if s.repo == nil {
		return
	}

	msgs, err := s.repo.LoadMessages(ctx, key)
	if err != nil {
		s.logger.LogError(err, "hydrate log", "key", key.String())
		e.hydrated = false
		return
	}
	e.messages = append(msgs, e.messages...)

	if key.Scope == ScopeSession && key.ThreadKey == "" {
		if sess, err := s.repo.LoadSession(ctx, key.ID); err == nil && sess != nil && sess.Closed {
			e.closed = true
		}
	}
}

// Append is the only mutation of a log. It assigns the message id and
// timestamp and returns the stored copy. Appending to a closed log fails with
// ErrClosed.
func (s *Store) Append(ctx context.Context, key LogKey, msg Message) (Message, error) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	s.hydrate(ctx, key, e)
	if e.closed {
		return Message{}, ErrClosed
	}

	msg.ID = uuid.NewString()
	msg.Scope = key.Scope
	msg.OwnerID = key.ID
	msg.ThreadKey = key.ThreadKey
	msg.CreatedAt = s.now()
	if n := len(e.messages); n > 0 && !msg.CreatedAt.After(e.messages[n-1].CreatedAt) {
		msg.CreatedAt = e.messages[n-1].CreatedAt.Add(time.Nanosecond)
	}

	if s.repo != nil {
		if err := s.repo.SaveMessage(ctx, msg); err != nil {
			s.logger.LogError(err, "persist message", "key", key.String())
		}
	}
	e.messages = append(e.messages, msg)
	return msg, nil
}

// History returns an ordered copy of the log.
func (s *Store) History(ctx context.Context, key LogKey) []Message {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	s.hydrate(ctx, key, e)
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Tail returns at most the last n messages of the log.
func (s *Store) Tail(ctx context.Context, key LogKey, n int) []Message {
	h := s.History(ctx, key)
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}

// Close marks a log closed. Later appends fail with ErrClosed so replies
// generated after teardown are discarded.
func (s *Store) Close(key LogKey) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// IsClosed reports whether a log has been closed.
func (s *Store) IsClosed(key LogKey) bool {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// CloseRoom closes a room's main log and all of its thread logs and releases
// their messages. Later appends to any of them fail with ErrClosed.
func (s *Store) CloseRoom(roomID string) {
	s.closedRooms.Store(roomID, struct{}{})

	var entries []*logEntry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.logs {
			if k.Scope == ScopeRoom && k.ID == roomID {
				entries = append(entries, e)
				delete(sh.logs, k)
			}
		}
		sh.mu.Unlock()
	}
	for _, e := range entries {
		e.mu.Lock()
		e.closed = true
		e.messages = nil
		e.mu.Unlock()
	}
}

// CreateSession starts a new session bound to personaID.
func (s *Store) CreateSession(ctx context.Context, personaID string) (Session, error) {
	sess := Session{ID: uuid.NewString(), PersonaID: personaID, CreatedAt: s.now()}

	sh := s.shardFor(sess.ID)
	sh.mu.Lock()
	sh.sessions[sess.ID] = &sess
	sh.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, sess); err != nil {
			s.logger.LogError(err, "persist session", "session_id", sess.ID)
		}
	}
	return sess, nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	sh.mu.Unlock()
	if ok {
		return *sess, nil
	}

	if s.repo == nil {
		return Session{}, ErrSessionNotFound
	}
	loaded, err := s.repo.LoadSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if loaded == nil {
		return Session{}, ErrSessionNotFound
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.sessions[id]; ok {
		return *existing, nil
	}
	sh.sessions[id] = loaded
	return *loaded, nil
}

// BindSession returns the session with id, creating it for personaID when
// absent. A session is never reused across personas.
func (s *Store) BindSession(ctx context.Context, id, personaID string) (Session, error) {
	sess, err := s.GetSession(ctx, id)
	switch {
	case errors.Is(err, ErrSessionNotFound):
	case err != nil:
		return Session{}, err
	case sess.Closed:
		return sess, ErrClosed
	case sess.PersonaID != personaID:
		return sess, ErrPersonaMismatch
	default:
		return sess, nil
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	if existing, ok := sh.sessions[id]; ok {
		sh.mu.Unlock()
		if existing.PersonaID != personaID {
			return *existing, ErrPersonaMismatch
		}
		return *existing, nil
	}
	created := &Session{ID: id, PersonaID: personaID, CreatedAt: s.now()}
	sh.sessions[id] = created
	sh.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, *created); err != nil {
			s.logger.LogError(err, "persist session", "session_id", id)
		}
	}
	return *created, nil
}

// CloseSession closes the session and its log.
func (s *Store) CloseSession(ctx context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	if ok {
		sess.Closed = true
	}
	sh.mu.Unlock()

	if !ok {
		loaded, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		sh.mu.Lock()
		sh.sessions[id].Closed = true
		sh.mu.Unlock()
		sess = &loaded
		sess.Closed = true
	}

	s.Close(SessionKey(id))
	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, *sess); err != nil {
			s.logger.LogError(err, "persist session close", "session_id", id)
		}
	}
	return nil
}

// RegisterThread derives the thread key for an artifact and records its
// metadata. Registering the same artifact again returns the stored metadata.
// A key already bound to a different artifact is rejected with
// ErrThreadKeyConflict.
func (s *Store) RegisterThread(ctx context.Context, meta ThreadMeta) (ThreadMeta, error) {
	meta.Identity = strings.TrimSpace(meta.Identity)
	meta.Key = s.deriveKey(meta.Kind, meta.Identity)

	sh := s.shardFor(meta.Key)
	sh.mu.Lock()
	existing, ok := sh.threads[meta.Key]
	sh.mu.Unlock()

	if !ok && s.repo != nil {
		if loaded, err := s.repo.LoadThread(ctx, meta.Key); err == nil && loaded != nil {
			existing, ok = *loaded, true
		}
	}

	if ok {
		if existing.Kind != meta.Kind || existing.Identity != meta.Identity {
			s.logger.Error("thread key conflict",
				"key", meta.Key,
				"existing", existing.Identity,
				"incoming", meta.Identity,
			)
			return ThreadMeta{}, ErrThreadKeyConflict
		}
		sh.mu.Lock()
		sh.threads[meta.Key] = existing
		sh.mu.Unlock()
		return existing, nil
	}

	sh.mu.Lock()
	if raced, ok := sh.threads[meta.Key]; ok {
		sh.mu.Unlock()
		if raced.Identity != meta.Identity {
			return ThreadMeta{}, ErrThreadKeyConflict
		}
		return raced, nil
	}
	sh.threads[meta.Key] = meta
	sh.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveThread(ctx, meta); err != nil {
			s.logger.LogError(err, "persist thread", "key", meta.Key)
		}
	}
	return meta, nil
}

// Thread returns the metadata registered for key.
func (s *Store) Thread(ctx context.Context, key string) (ThreadMeta, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	meta, ok := sh.threads[key]
	sh.mu.Unlock()
	if ok {
		return meta, nil
	}
	if s.repo != nil {
		loaded, err := s.repo.LoadThread(ctx, key)
		if err != nil {
			return ThreadMeta{}, err
		}
		if loaded != nil {
			sh.mu.Lock()
			sh.threads[key] = *loaded
			sh.mu.Unlock()
			return *loaded, nil
		}
	}
	return ThreadMeta{}, ErrThreadNotFound
}
