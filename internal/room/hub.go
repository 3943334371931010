// Package room fans out chat traffic, presence and mentor toggles to the
// members of multi-user rooms and keeps per-artifact threads.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"mentorchat/backend/internal/intent"
	"mentorchat/backend/internal/linkpreview"
	"mentorchat/backend/internal/persona"
	"mentorchat/backend/internal/session"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/logger"
)

const (
	anonymousName  = "익명"
	mentorSenderID = "mentor"

	threadContextLimit = 1800
	previewLimit       = 280
)

// Turn is one request for a mentor reply.
type Turn struct {
	Key       session.LogKey
	PersonaID string
	Text      string
	// Context is artifact grounding such as a link body or file preview.
	Context string
}

// Mentor produces persona replies for room traffic.
type Mentor interface {
	Respond(ctx context.Context, turn Turn) (string, error)
}

// LinkFetcher resolves shared links into previews.
type LinkFetcher interface {
	Fetch(ctx context.Context, raw string) (*linkpreview.Preview, error)
}

type Options struct {
	DefaultRoom    string
	DefaultPersona string
	MentorDefault  bool
	Lifecycle      string
	ReplayLimit    int
	InboundRate    float64
	InboundBurst   int
	PreviewEmit    bool
	ReplyTimeout   time.Duration
}

// OptionsFrom reads room settings from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		DefaultRoom:    cfg.Rooms.DefaultRoom,
		DefaultPersona: cfg.Rooms.DefaultPersona,
		MentorDefault:  cfg.Rooms.MentorDefaultEnabled,
		Lifecycle:      cfg.Rooms.Lifecycle,
		ReplayLimit:    cfg.Rooms.ReplayLimit,
		InboundRate:    cfg.Rooms.InboundRate,
		InboundBurst:   cfg.Rooms.InboundBurst,
		PreviewEmit:    cfg.Links.PreviewEmit,
		ReplyTimeout:   cfg.Generation.RequestTimeout,
	}
}

// Hub owns every room. Rooms are looked up under mu; each room serializes its
// own mutations, so two rooms never block each other.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	epochs map[string]int

	store    *session.Store
	personas *persona.Registry
	mentor   Mentor
	links    LinkFetcher
	opts     Options
	logger   *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool

	connections metric.Int64UpDownCounter
}

// NewHub creates a hub. links may be nil to disable link previews.
func NewHub(store *session.Store, personas *persona.Registry, mentor Mentor, links LinkFetcher, opts Options, log *logger.Logger) *Hub {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = "lobby"
	}
	if _, ok := personas.Normalize(opts.DefaultPersona); !ok {
		opts.DefaultPersona = "buffett"
	}
	if opts.Lifecycle != LifecycleDestroy {
		opts.Lifecycle = LifecycleRetain
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = 50
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	connections, _ := otel.Meter("mentorchat/room").Int64UpDownCounter(
		"mentor.ws.connections",
		metric.WithDescription("Open room connections"),
	)
	return &Hub{
		rooms:       make(map[string]*Room),
		epochs:      make(map[string]int),
		store:       store,
		personas:    personas,
		mentor:      mentor,
		links:       links,
		opts:        opts,
		logger:      log.WithComponent("room-hub"),
		ctx:         ctx,
		cancel:      cancel,
		connections: connections,
	}
}

// Close cancels in-flight mentor replies and waits for them to finish.
func (h *Hub) Close() {
	h.closing.Store(true)
	h.cancel()
	h.wg.Wait()
}

// Attach prepares a client for this hub, applying the inbound rate limit.
func (h *Hub) Attach(c *Client) {
	c.hub = h
	if h.opts.InboundRate > 0 {
		burst := h.opts.InboundBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.InboundRate), burst)
	}
	if h.connections != nil {
		h.connections.Add(h.ctx, 1)
	}
}

func (h *Hub) label(personaID string) string {
	p, err := h.personas.Get(personaID)
	if err != nil {
		return personaID
	}
	return p.DisplayName
}

func (h *Hub) getOrCreate(id string) *Room {
	h.mu.RLock()
	r, ok := h.rooms[id]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r
	}
	logID := id
	if n := h.epochs[id]; n > 0 {
		logID = fmt.Sprintf("%s~%d", id, n)
	}
	r = newRoom(id, logID, h.opts.DefaultPersona, h.opts.MentorDefault)
	h.rooms[id] = r
	h.logger.Info("room created", "room_id", id)
	return r
}

// lookup returns an existing room.
func (h *Hub) lookup(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// destroyLocked removes an empty room. Caller holds r.mu.
func (h *Hub) destroyLocked(r *Room) {
	r.destroyed = true
	h.store.CloseRoom(r.logID)

	h.mu.Lock()
	if h.rooms[r.ID] == r {
		delete(h.rooms, r.ID)
		h.epochs[r.ID]++
	}
	h.mu.Unlock()
	h.logger.Info("room destroyed", "room_id", r.ID)
}

// Snapshot returns the current state of a room.
func (h *Hub) Snapshot(roomID string) (Snapshot, bool) {
	r, ok := h.lookup(roomID)
	if !ok {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return Snapshot{}, false
	}
	return r.snapshotLocked(h.label(r.personaID)), true
}

// Rooms returns the number of live rooms.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ThreadHistory returns the log of a thread inside a room.
func (h *Hub) ThreadHistory(ctx context.Context, roomID, threadKey string) ([]session.Message, bool) {
	r, ok := h.lookup(roomID)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	logKey := r.threadKey(threadKey)
	_, known := r.threads[threadKey]
	r.mu.Unlock()
	if !known {
		return nil, false
	}
	return h.store.History(ctx, logKey), true
}

// Dispatch routes one inbound envelope.
func (h *Hub) Dispatch(ctx context.Context, c *Client, env Envelope) {
	var err error
	switch env.Type {
	case InJoinRoom:
		var req JoinRequest
		if err = decode(env, &req); err == nil {
			h.Join(ctx, c, req.Room, req.Name)
		}
	case InChatMessage:
		var req ChatRequest
		if err = decode(env, &req); err == nil {
			h.Post(ctx, c, req.Text)
		}
	case InSetRoomGuru:
		var req GuruRequest
		if err = decode(env, &req); err == nil {
			h.SetPersona(c, req.GuruID)
		}
	case InSetMentorEnabled:
		var req MentorRequest
		if err = decode(env, &req); err == nil {
			h.SetMentorEnabled(c, req.Enabled)
		}
	case InThreadOpen:
		var req ThreadOpenRequest
		if err = decode(env, &req); err == nil {
			h.OpenThread(ctx, c, req.ThreadKey)
		}
	case InThreadMessage:
		var req ThreadMessageRequest
		if err = decode(env, &req); err == nil {
			h.PostThread(ctx, c, req.ThreadKey, req.Text)
		}
	case InShareFile:
		var req FileShare
		if err = decode(env, &req); err == nil {
			h.ShareFile(ctx, c, req)
		}
	case InPing:
		c.offer(encode("pong", nil))
	default:
		h.logger.Debug("unknown event type", "type", env.Type, "client_id", c.ID)
	}
	if err != nil {
		h.logger.Debug("bad event payload", "type", env.Type, "client_id", c.ID, "error", err)
	}
}

func decode(env Envelope, v any) error {
	if len(env.Content) == 0 {
		return nil
	}
	return json.Unmarshal(env.Content, v)
}

// Join adds c to a room. The joiner first receives the recent main log,
// then the persona and mentor snapshot; everyone receives the join notice
// and the new member count.
func (h *Hub) Join(ctx context.Context, c *Client, roomID, name string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		roomID = h.opts.DefaultRoom
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = anonymousName
	}

	if prev := c.room.Load(); prev != nil {
		if prev.ID == roomID {
			return
		}
		h.leave(prev, c)
	}

	for {
		r := h.getOrCreate(roomID)
		r.mu.Lock()
		if r.destroyed {
			r.mu.Unlock()
			continue
		}

		c.setName(name)
		r.members[c.ID] = c
		c.room.Store(r)

		for _, m := range h.store.Tail(ctx, r.mainKey(), h.opts.ReplayLimit) {
			r.sendLocked(c, encode(EventChatMessage, chatPayload(m)))
		}
		r.sendLocked(c, encode(EventRoomGuruChanged, GuruPayload{GuruID: r.personaID, Label: h.label(r.personaID)}))
		r.sendLocked(c, encode(EventMentorEnabledChanged, MentorEnabledPayload{Enabled: r.mentorEnabled}))

		r.broadcastLocked(encode(EventSystem, SystemPayload{Text: name + " 님이 입장했습니다."}))
		r.broadcastLocked(encode(EventLobbyStats, LobbyStatsPayload{Count: len(r.members)}))
		r.mu.Unlock()

		h.logger.Debug("member joined", "room_id", roomID, "client_id", c.ID)
		return
	}
}

// Leave removes c from its room and closes its send channel.
func (h *Hub) Leave(_ context.Context, c *Client) {
	if r := c.room.Load(); r != nil {
		h.leave(r, c)
	}
	c.close()
	if h.connections != nil && c.hub == h {
		h.connections.Add(h.ctx, -1)
	}
}

func (h *Hub) leave(r *Room, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.room.CompareAndSwap(r, nil)
	if !r.removeLocked(c) {
		return
	}
	r.broadcastLocked(encode(EventSystem, SystemPayload{Text: c.name() + " 님이 퇴장했습니다."}))
	r.broadcastLocked(encode(EventLobbyStats, LobbyStatsPayload{Count: len(r.members)}))

	if len(r.members) == 0 && h.opts.Lifecycle == LifecycleDestroy {
		h.destroyLocked(r)
	}
}

// memberRoom returns c's room locked, or nil when c is not a member.
func (h *Hub) memberRoom(c *Client) *Room {
	r := c.room.Load()
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.destroyed || !r.isMemberLocked(c) {
		r.mu.Unlock()
		return nil
	}
	return r
}

// accepted is the snapshot taken when a message is accepted. The reply is
// attributed to this persona even if the room toggles before it is ready.
type accepted struct {
	room      *Room
	key       session.LogKey
	personaID string
	mentorOn  bool
}

// Post accepts a main-room chat message.
func (h *Hub) Post(ctx context.Context, c *Client, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r := h.memberRoom(c)
	if r == nil {
		return
	}

	acc := accepted{room: r, key: r.mainKey(), personaID: r.personaID, mentorOn: r.mentorEnabled}
	msg, err := h.store.Append(ctx, acc.key, session.Message{
		Role:       session.RoleUser,
		SenderID:   c.ID,
		SenderName: c.name(),
		Text:       text,
		PersonaID:  acc.personaID,
	})
	if err != nil {
		r.mu.Unlock()
		h.logger.Debug("message discarded", "room_id", r.ID, "error", err)
		return
	}
	r.broadcastLocked(encode(EventChatMessage, chatPayload(msg)))
	r.mu.Unlock()

	urls := intent.ExtractURLs(text)
	if len(urls) == 0 && !acc.mentorOn {
		return
	}

	owner := Sender{ID: c.ID, Name: c.name()}
	h.spawn(func(ctx context.Context) {
		grounding := h.previewLinks(ctx, r, owner, urls)
		if acc.mentorOn {
			h.reply(ctx, acc, text, grounding)
		}
	})
}

// previewLinks fetches shared links, registers a thread per link and emits
// link_preview. It returns the first link body as mentor grounding.
func (h *Hub) previewLinks(ctx context.Context, r *Room, owner Sender, urls []string) string {
	if h.links == nil {
		return ""
	}
	grounding := ""
	for _, raw := range urls {
		p, err := h.links.Fetch(ctx, raw)
		if err != nil {
			if !errors.Is(err, linkpreview.ErrDisabled) {
				h.logger.Warn("link preview failed", "room_id", r.ID, "url", raw, "error", err)
			}
			continue
		}

		meta, err := h.store.RegisterThread(ctx, session.ThreadMeta{
			Kind:     session.ThreadURL,
			Identity: p.URL,
			URL:      p.URL,
			Title:    p.Title,
			Preview:  p.Summary(),
		})
		if err != nil {
			h.logger.LogError(err, "register link thread", "room_id", r.ID, "url", p.URL)
			continue
		}

		r.mu.Lock()
		if !r.destroyed {
			r.trackThreadLocked(meta.Key)
			if h.opts.PreviewEmit {
				r.broadcastLocked(encode(EventLinkPreview, LinkPreviewPayload{
					ThreadKey:   meta.Key,
					URL:         p.URL,
					Host:        p.Host,
					SiteName:    p.SiteName,
					Title:       p.Title,
					Description: p.Description,
					Image:       p.Image,
					OwnerID:     owner.ID,
					OwnerName:   owner.Name,
				}))
			}
		}
		r.mu.Unlock()

		if grounding == "" && p.Text != "" {
			grounding = linkContext(p)
		}
	}
	return grounding
}

// SetPersona switches the room's mentor. Unknown ids are ignored; a no-op
// switch only re-sends the snapshot to the requester.
func (h *Hub) SetPersona(c *Client, requested string) {
	id, ok := h.personas.Normalize(requested)
	if !ok {
		return
	}
	r := h.memberRoom(c)
	if r == nil {
		return
	}
	defer r.mu.Unlock()

	payload := GuruPayload{GuruID: id, Label: h.label(id)}
	if id == r.personaID {
		r.sendLocked(c, encode(EventRoomGuruChanged, payload))
		return
	}
	r.personaID = id
	r.broadcastLocked(encode(EventSystem, SystemPayload{Text: "현재 멘토는 " + payload.Label + " 입니다."}))
	r.broadcastLocked(encode(EventRoomGuruChanged, payload))
}

// SetMentorEnabled toggles mentor replies for the room.
func (h *Hub) SetMentorEnabled(c *Client, enabled bool) {
	r := h.memberRoom(c)
	if r == nil {
		return
	}
	defer r.mu.Unlock()

	payload := MentorEnabledPayload{Enabled: enabled}
	if enabled == r.mentorEnabled {
		r.sendLocked(c, encode(EventMentorEnabledChanged, payload))
		return
	}
	r.mentorEnabled = enabled
	r.broadcastLocked(encode(EventMentorEnabledChanged, payload))
	text := "멘토 응답이 비활성화되었습니다."
	if enabled {
		text = "멘토 응답이 활성화되었습니다."
	}
	r.broadcastLocked(encode(EventSystem, SystemPayload{Text: text}))
}

// OpenThread subscribes c to a thread and sends it the full thread history.
// The history is sent under the room lock, so no live thread message can
// reach c before it. Opening twice re-sends history but never duplicates
// the subscription.
func (h *Hub) OpenThread(ctx context.Context, c *Client, threadKey string) {
	if !session.IsThreadKey(threadKey) {
		return
	}
	meta, err := h.store.Thread(ctx, threadKey)
	if err != nil {
		h.logger.Debug("thread_open for unknown thread", "thread_key", threadKey, "error", err)
		return
	}

	r := h.memberRoom(c)
	if r == nil {
		return
	}
	defer r.mu.Unlock()

	r.subscribeLocked(threadKey, c)
	history := h.store.History(ctx, r.threadKey(threadKey))
	msgs := make([]ChatPayload, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, chatPayload(m))
	}
	r.sendLocked(c, encode(EventThreadHistory, ThreadHistoryPayload{ThreadKey: threadKey, Meta: meta, Messages: msgs}))
}

// PostThread accepts a message inside an artifact thread. Any room member
// may post; the poster is subscribed implicitly.
func (h *Hub) PostThread(ctx context.Context, c *Client, threadKey, text string) {
	text = strings.TrimSpace(text)
	if text == "" || !session.IsThreadKey(threadKey) {
		return
	}
	meta, err := h.store.Thread(ctx, threadKey)
	if err != nil {
		return
	}

	r := h.memberRoom(c)
	if r == nil {
		return
	}

	acc := accepted{room: r, key: r.threadKey(threadKey), personaID: r.personaID, mentorOn: r.mentorEnabled}
	msg, err := h.store.Append(ctx, acc.key, session.Message{
		Role:       session.RoleUser,
		SenderID:   c.ID,
		SenderName: c.name(),
		Text:       text,
		PersonaID:  acc.personaID,
	})
	if err != nil {
		r.mu.Unlock()
		return
	}
	r.subscribeLocked(threadKey, c)
	r.publishThreadLocked(threadKey, encode(EventThreadMessage, chatPayload(msg)))
	r.mu.Unlock()

	if !acc.mentorOn {
		return
	}
	h.spawn(func(ctx context.Context) {
		h.reply(ctx, acc, text, h.threadContext(ctx, meta))
	})
}

// ShareFile announces an uploaded file and registers its thread.
func (h *Hub) ShareFile(ctx context.Context, c *Client, f FileShare) {
	identity := f.Checksum
	if identity == "" {
		identity = f.ID
	}
	if identity == "" {
		return
	}
	meta, err := h.store.RegisterThread(ctx, session.ThreadMeta{
		Kind:     session.ThreadFile,
		Identity: identity,
		URL:      f.URL,
		Title:    f.Name,
		FileName: f.Name,
		Preview:  truncate(f.Preview, threadContextLimit),
	})
	if err != nil {
		h.logger.LogError(err, "register file thread", "file_id", f.ID)
		return
	}

	r := h.memberRoom(c)
	if r == nil {
		return
	}
	acc := accepted{room: r, key: r.mainKey(), personaID: r.personaID, mentorOn: r.mentorEnabled}
	r.trackThreadLocked(meta.Key)
	r.broadcastLocked(encode(EventFileShared, FileSharedPayload{
		ThreadKey: meta.Key,
		OwnerID:   c.ID,
		OwnerName: c.name(),
		File:      f.FileInfo,
		Preview:   truncate(f.Preview, previewLimit),
		TS:        nowMillis(),
	}))
	r.mu.Unlock()

	if !acc.mentorOn || strings.TrimSpace(f.Preview) == "" {
		return
	}
	request := "[업로드 파일 요약 요청]\n파일명: " + f.Name + "\n핵심 포인트를 5줄 내로 정리해줘."
	h.spawn(func(ctx context.Context) {
		h.reply(ctx, acc, request, h.threadContext(ctx, meta))
	})
}

func (h *Hub) spawn(fn func(ctx context.Context)) {
	if h.closing.Load() {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.ctx, h.opts.ReplyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// reply asks the mentor for an answer and appends it under the persona
// captured at acceptance. Replies for closed logs are discarded.
func (h *Hub) reply(ctx context.Context, acc accepted, text, grounding string) {
	if h.mentor == nil {
		return
	}
	answer, err := h.mentor.Respond(ctx, Turn{Key: acc.key, PersonaID: acc.personaID, Text: text, Context: grounding})
	if err != nil {
		h.logger.Warn("mentor reply failed", "room_id", acc.room.ID, "error", err)
		return
	}
	if strings.TrimSpace(answer) == "" {
		return
	}

	r := acc.room
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	msg, err := h.store.Append(context.WithoutCancel(ctx), acc.key, session.Message{
		Role:       session.RoleAssistant,
		SenderID:   mentorSenderID,
		SenderName: h.label(acc.personaID),
		Text:       answer,
		PersonaID:  acc.personaID,
	})
	if err != nil {
		h.logger.Debug("mentor reply discarded", "room_id", r.ID, "error", err)
		return
	}
	if acc.key.ThreadKey == "" {
		r.broadcastLocked(encode(EventChatMessage, chatPayload(msg)))
		return
	}
	r.publishThreadLocked(acc.key.ThreadKey, encode(EventThreadMessage, chatPayload(msg)))
}

func linkContext(p *linkpreview.Preview) string {
	title := p.Title
	if title == "" {
		title = p.SiteName
	}
	return "[링크 본문]\n제목: " + title + "\nURL: " + p.URL + "\n본문:\n" + truncate(p.Text, threadContextLimit)
}

// threadContext renders the artifact block a thread reply is grounded on.
func (h *Hub) threadContext(ctx context.Context, meta session.ThreadMeta) string {
	switch meta.Kind {
	case session.ThreadURL:
		body := meta.Preview
		if h.links != nil && meta.URL != "" {
			if p, err := h.links.Fetch(ctx, meta.URL); err == nil && p.Text != "" {
				body = p.Text
			}
		}
		return "[뉴스 스레드 컨텍스트]\n제목: " + meta.Title +
			"\nURL: " + meta.URL +
			"\n요약: " + meta.Preview +
			"\n본문 발췌:\n" + truncate(body, threadContextLimit)
	case session.ThreadFile:
		return "[파일 스레드 컨텍스트]\n파일명: " + meta.FileName +
			"\nURL: " + meta.URL +
			"\n본문/요약 발췌:\n" + truncate(meta.Preview, threadContextLimit)
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "…"
}
