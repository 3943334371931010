package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mentorchat/backend/internal/linkpreview"
	"mentorchat/backend/internal/persona"
	"mentorchat/backend/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMentor struct {
	mu      sync.Mutex
	turns   []Turn
	started chan Turn
	gate    chan struct{}
}

func newFakeMentor() *fakeMentor {
	return &fakeMentor{started: make(chan Turn, 16)}
}

func (f *fakeMentor) Respond(ctx context.Context, turn Turn) (string, error) {
	f.mu.Lock()
	f.turns = append(f.turns, turn)
	gate := f.gate
	f.mu.Unlock()
	f.started <- turn

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "멘토 답변: " + turn.Text, nil
}

func (f *fakeMentor) Turns() []Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Turn(nil), f.turns...)
}

type fakeLinks struct {
	preview *linkpreview.Preview
}

func (f fakeLinks) Fetch(_ context.Context, raw string) (*linkpreview.Preview, error) {
	if f.preview == nil {
		return nil, errors.New("unreachable")
	}
	p := *f.preview
	return &p, nil
}

func newTestHub(t *testing.T, mentor Mentor, links LinkFetcher, opts Options) (*Hub, *session.Store) {
	t.Helper()
	store := session.NewStore(nil, nil)
	h := NewHub(store, persona.MustDefault(), mentor, links, opts, nil)
	t.Cleanup(h.Close)
	return h, store
}

func decodeEnv(t *testing.T, b []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	return env
}

// expect reads from c until an event of eventType arrives.
func expect(t *testing.T, c *Client, eventType string) json.RawMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case b, ok := <-c.Send:
			require.True(t, ok, "client channel closed")
			env := decodeEnv(t, b)
			if env.Type == eventType {
				return env.Content
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
			return nil
		}
	}
}

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case b, ok := <-c.Send:
			if !ok {
				return out
			}
			out = append(out, decodeEnv(t, b))
		default:
			return out
		}
	}
}

func countOf(envs []Envelope, eventType string) int {
	n := 0
	for _, e := range envs {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestConcurrentJoinsObserveCount(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	a, b := NewClient("a", ""), NewClient("b", "")

	var wg sync.WaitGroup
	for _, c := range []*Client{a, b} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.Join(context.Background(), c, "lobby", c.ID)
		}(c)
	}
	wg.Wait()

	for _, c := range []*Client{a, b} {
		var stats LobbyStatsPayload
		for stats.Count != 2 {
			require.NoError(t, json.Unmarshal(expect(t, c, EventLobbyStats), &stats))
		}
		assert.Equal(t, 2, stats.Count)
	}

	snap, ok := h.Snapshot("lobby")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, []string{"a", "b"}, snap.Members)
}

func TestJoinSendsSnapshotAndNotice(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{MentorDefault: true})
	c := NewClient("c1", "")
	h.Join(context.Background(), c, "", "")

	envs := drain(t, c)
	require.Len(t, envs, 4)
	assert.Equal(t, EventRoomGuruChanged, envs[0].Type)
	assert.JSONEq(t, `{"guruId":"buffett","label":"워렌 버핏"}`, string(envs[0].Content))
	assert.Equal(t, EventMentorEnabledChanged, envs[1].Type)
	assert.JSONEq(t, `{"enabled":true}`, string(envs[1].Content))
	assert.Equal(t, EventSystem, envs[2].Type)
	assert.JSONEq(t, `{"text":"익명 님이 입장했습니다."}`, string(envs[2].Content))
	assert.Equal(t, EventLobbyStats, envs[3].Type)

	snap, ok := h.Snapshot("lobby")
	require.True(t, ok)
	assert.Equal(t, "lobby", snap.RoomID)
}

func TestJoinReplaysRecentHistory(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{ReplayLimit: 2})
	ctx := context.Background()

	a := NewClient("a", "")
	h.Join(ctx, a, "r", "앨리스")
	for _, text := range []string{"one", "two", "three"} {
		h.Post(ctx, a, text)
	}

	b := NewClient("b", "")
	h.Join(ctx, b, "r", "밥")
	envs := drain(t, b)
	require.GreaterOrEqual(t, len(envs), 2)

	var first, second ChatPayload
	require.Equal(t, EventChatMessage, envs[0].Type)
	require.NoError(t, json.Unmarshal(envs[0].Content, &first))
	require.NoError(t, json.Unmarshal(envs[1].Content, &second))
	assert.Equal(t, "two", first.Text)
	assert.Equal(t, "three", second.Text)
	assert.Equal(t, "앨리스", first.Sender.Name)
	assert.Equal(t, EventRoomGuruChanged, envs[2].Type)
}

func TestLeaveBroadcastsPresence(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	ctx := context.Background()
	a, b := NewClient("a", ""), NewClient("b", "")
	h.Join(ctx, a, "r", "앨리스")
	h.Join(ctx, b, "r", "밥")
	drain(t, a)

	h.Leave(ctx, b)

	var notice SystemPayload
	require.NoError(t, json.Unmarshal(expect(t, a, EventSystem), &notice))
	assert.Equal(t, "밥 님이 퇴장했습니다.", notice.Text)
	var stats LobbyStatsPayload
	require.NoError(t, json.Unmarshal(expect(t, a, EventLobbyStats), &stats))
	assert.Equal(t, 1, stats.Count)

	_, open := <-b.Send
	for open {
		_, open = <-b.Send
	}
}

func TestReplyKeepsPersonaCapturedAtAcceptance(t *testing.T) {
	mentor := newFakeMentor()
	mentor.gate = make(chan struct{})
	h, _ := newTestHub(t, mentor, nil, Options{MentorDefault: true})
	ctx := context.Background()

	c := NewClient("c", "")
	h.Join(ctx, c, "r", "앨리스")
	h.Post(ctx, c, "버핏의 인플레이션 관점은?")

	turn := <-mentor.started
	assert.Equal(t, "buffett", turn.PersonaID)

	h.SetPersona(c, "cathie")
	var guru GuruPayload
	require.NoError(t, json.Unmarshal(expect(t, c, EventRoomGuruChanged), &guru))
	for guru.GuruID != "wood" {
		require.NoError(t, json.Unmarshal(expect(t, c, EventRoomGuruChanged), &guru))
	}
	assert.Equal(t, "캐시 우드", guru.Label)

	close(mentor.gate)

	var reply ChatPayload
	for reply.Role != session.RoleAssistant {
		require.NoError(t, json.Unmarshal(expect(t, c, EventChatMessage), &reply))
	}
	assert.Equal(t, "buffett", reply.PersonaID)
	assert.Equal(t, "워렌 버핏", reply.Sender.Name)
	assert.Equal(t, "멘토 답변: 버핏의 인플레이션 관점은?", reply.Text)
}

func TestPersonaToggleNotices(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	ctx := context.Background()
	a, b := NewClient("a", ""), NewClient("b", "")
	h.Join(ctx, a, "r", "a")
	h.Join(ctx, b, "r", "b")
	drain(t, a)
	drain(t, b)

	h.SetPersona(a, "lynch")
	envs := drain(t, b)
	require.Len(t, envs, 2)
	assert.JSONEq(t, `{"text":"현재 멘토는 피터 린치 입니다."}`, string(envs[0].Content))
	assert.JSONEq(t, `{"guruId":"lynch","label":"피터 린치"}`, string(envs[1].Content))

	// same persona again: only the requester hears back
	drain(t, a)
	h.SetPersona(a, "peter")
	assert.Len(t, drain(t, a), 1)
	assert.Empty(t, drain(t, b))

	h.SetPersona(a, "soros")
	assert.Empty(t, drain(t, a))
}

func TestMentorToggle(t *testing.T) {
	mentor := newFakeMentor()
	h, _ := newTestHub(t, mentor, nil, Options{MentorDefault: true})
	ctx := context.Background()
	c := NewClient("c", "")
	h.Join(ctx, c, "r", "c")
	drain(t, c)

	h.SetMentorEnabled(c, false)
	envs := drain(t, c)
	require.Len(t, envs, 2)
	assert.JSONEq(t, `{"enabled":false}`, string(envs[0].Content))
	assert.JSONEq(t, `{"text":"멘토 응답이 비활성화되었습니다."}`, string(envs[1].Content))

	h.Post(ctx, c, "안녕하세요")
	expect(t, c, EventChatMessage)
	h.Close()
	assert.Empty(t, mentor.Turns())
}

func TestThreadOpenIsIdempotent(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	ctx := context.Background()
	owner, viewer := NewClient("owner", ""), NewClient("viewer", "")
	h.Join(ctx, owner, "r", "owner")
	h.Join(ctx, viewer, "r", "viewer")

	h.ShareFile(ctx, owner, FileShare{FileInfo: FileInfo{ID: "f1", Name: "report.pdf"}, Preview: "매출이 20% 늘었다"})
	var shared FileSharedPayload
	require.NoError(t, json.Unmarshal(expect(t, viewer, EventFileShared), &shared))
	require.True(t, session.IsThreadKey(shared.ThreadKey))
	assert.True(t, strings.HasPrefix(shared.ThreadKey, "file:"))
	assert.Equal(t, "report.pdf", shared.File.Name)

	h.PostThread(ctx, owner, shared.ThreadKey, "first")
	drain(t, viewer)

	h.OpenThread(ctx, viewer, shared.ThreadKey)
	h.OpenThread(ctx, viewer, shared.ThreadKey)
	envs := drain(t, viewer)
	require.Len(t, envs, 2)
	for _, env := range envs {
		var hist ThreadHistoryPayload
		require.Equal(t, EventThreadHistory, env.Type)
		require.NoError(t, json.Unmarshal(env.Content, &hist))
		require.Len(t, hist.Messages, 1)
		assert.Equal(t, "first", hist.Messages[0].Text)
		assert.Equal(t, "report.pdf", hist.Meta.FileName)
	}

	h.PostThread(ctx, owner, shared.ThreadKey, "second")
	envs = drain(t, viewer)
	assert.Equal(t, 1, countOf(envs, EventThreadMessage))

	msgs, ok := h.ThreadHistory(ctx, "r", shared.ThreadKey)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestThreadReplyIsGrounded(t *testing.T) {
	mentor := newFakeMentor()
	h, _ := newTestHub(t, mentor, nil, Options{MentorDefault: true})
	ctx := context.Background()
	c := NewClient("c", "")
	h.Join(ctx, c, "r", "c")

	h.ShareFile(ctx, c, FileShare{FileInfo: FileInfo{ID: "f1", Checksum: "sha256:1", Name: "ir.pdf"}, Preview: "영업이익 개선"})
	var shared FileSharedPayload
	require.NoError(t, json.Unmarshal(expect(t, c, EventFileShared), &shared))
	summary := <-mentor.started
	assert.Contains(t, summary.Context, "[파일 스레드 컨텍스트]")
	assert.Empty(t, summary.Key.ThreadKey)

	h.PostThread(ctx, c, shared.ThreadKey, "리스크는?")
	turn := <-mentor.started
	assert.Equal(t, shared.ThreadKey, turn.Key.ThreadKey)
	assert.Equal(t, "리스크는?", turn.Text)
	assert.Contains(t, turn.Context, "파일명: ir.pdf")
	assert.Contains(t, turn.Context, "영업이익 개선")

	var reply ChatPayload
	for reply.Role != session.RoleAssistant {
		require.NoError(t, json.Unmarshal(expect(t, c, EventThreadMessage), &reply))
	}
	assert.Equal(t, shared.ThreadKey, reply.ThreadKey)
}

func TestLinkPreviewCreatesThread(t *testing.T) {
	mentor := newFakeMentor()
	links := fakeLinks{preview: &linkpreview.Preview{
		URL:   "https://news.example.com/a",
		Host:  "news.example.com",
		Title: "금리 동결",
		Text:  "한국은행이 기준금리를 동결했다.",
	}}
	h, _ := newTestHub(t, mentor, links, Options{MentorDefault: true, PreviewEmit: true})
	ctx := context.Background()
	c := NewClient("c", "")
	h.Join(ctx, c, "r", "앨리스")

	h.Post(ctx, c, "이 기사 어때? https://news.example.com/a?utm_source=x")

	var preview LinkPreviewPayload
	require.NoError(t, json.Unmarshal(expect(t, c, EventLinkPreview), &preview))
	assert.True(t, strings.HasPrefix(preview.ThreadKey, "url:"))
	assert.Equal(t, session.DeriveKey(session.ThreadURL, "https://news.example.com/a"), preview.ThreadKey)
	assert.Equal(t, "앨리스", preview.OwnerName)

	turn := <-mentor.started
	assert.Contains(t, turn.Context, "[링크 본문]")
	assert.Contains(t, turn.Context, "기준금리를 동결했다")

	h.OpenThread(ctx, c, preview.ThreadKey)
	var hist ThreadHistoryPayload
	require.NoError(t, json.Unmarshal(expect(t, c, EventThreadHistory), &hist))
	assert.Equal(t, "금리 동결", hist.Meta.Title)
}

func TestDestroyLifecycle(t *testing.T) {
	mentor := newFakeMentor()
	mentor.gate = make(chan struct{})
	h, store := newTestHub(t, mentor, nil, Options{MentorDefault: true, Lifecycle: LifecycleDestroy})
	ctx := context.Background()

	c := NewClient("c", "")
	h.Join(ctx, c, "r", "c")
	h.Post(ctx, c, "질문")
	<-mentor.started

	h.Leave(ctx, c)
	_, ok := h.Snapshot("r")
	assert.False(t, ok)

	close(mentor.gate)
	h.Close()

	// the old log is released and refuses the in-flight reply
	assert.True(t, store.IsClosed(session.RoomKey("r")))
	assert.Empty(t, store.History(ctx, session.RoomKey("r")))
	_, err := store.Append(ctx, session.RoomKey("r"), session.Message{Role: session.RoleAssistant, Text: "late"})
	assert.ErrorIs(t, err, session.ErrClosed)

	// a new incarnation starts empty
	again := NewClient("again", "")
	h.Join(ctx, again, "r", "again")
	assert.Zero(t, countOf(drain(t, again), EventChatMessage))
}

func TestRetainLifecycleKeepsHistory(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	ctx := context.Background()

	c := NewClient("c", "")
	h.Join(ctx, c, "r", "c")
	h.Post(ctx, c, "hello")
	h.Leave(ctx, c)

	snap, ok := h.Snapshot("r")
	require.True(t, ok)
	assert.Zero(t, snap.Count)

	again := NewClient("again", "")
	h.Join(ctx, again, "r", "again")
	assert.Equal(t, 1, countOf(drain(t, again), EventChatMessage))
}

func TestDispatchDecodesEnvelopes(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	ctx := context.Background()
	c := NewClient("c", "")

	h.Dispatch(ctx, c, Envelope{Type: InJoinRoom, Content: json.RawMessage(`{"room":"r","name":"앨리스"}`)})
	h.Dispatch(ctx, c, Envelope{Type: InChatMessage, Content: json.RawMessage(`{"text":"안녕"}`)})
	h.Dispatch(ctx, c, Envelope{Type: InChatMessage, Content: json.RawMessage(`not json`)})
	h.Dispatch(ctx, c, Envelope{Type: "bogus"})

	var msg ChatPayload
	require.NoError(t, json.Unmarshal(expect(t, c, EventChatMessage), &msg))
	assert.Equal(t, "안녕", msg.Text)
	assert.Equal(t, "앨리스", msg.Sender.Name)
}

func TestSlowClientIsDropped(t *testing.T) {
	h, _ := newTestHub(t, nil, nil, Options{})
	ctx := context.Background()
	fast := NewClient("fast", "")
	slow := &Client{ID: "slow", Send: make(chan []byte, 4)}
	h.Join(ctx, fast, "r", "fast")
	h.Join(ctx, slow, "r", "slow")

	for i := 0; i < 10; i++ {
		h.Post(ctx, fast, "spam")
		drain(t, fast)
	}

	snap, ok := h.Snapshot("r")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Count)
	assert.True(t, slow.isClosed())
}

func TestClientOfferRacesClose(t *testing.T) {
	for i := 0; i < 2000; i++ {
		c := NewClient("c", "racer")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.offer([]byte("pong"))
			}
		}()
		go func() {
			defer wg.Done()
			c.close()
		}()
		wg.Wait()

		assert.True(t, c.isClosed())
		assert.False(t, c.offer([]byte("late")))
		c.close()
	}
}
