package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"companion-go/internal/companion"
	"companion-go/internal/companion/session"
	"companion-go/internal/model"
	"companion-go/internal/repository"
	"companion-go/pkg/llm"

	"gorm.io/gorm"
)

type stubLLM struct {
	mu    sync.Mutex
	text  string
	err   error
	calls [][]llm.Message
}

func (s *stubLLM) Chat(_ context.Context, msgs []llm.Message, _ *llm.GenerationParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msgs)
	return s.text, s.err
}

func (s *stubLLM) last() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// recordingGenerator 记录最近一次生成结果。
type recordingGenerator struct {
	inner companion.ResponseGenerator
	last  companion.Reply
}

func (r *recordingGenerator) Generate(ctx context.Context, s *session.Session, input string) companion.Reply {
	r.last = r.inner.Generate(ctx, s, input)
	return r.last
}

type chatFixture struct {
	db       *gorm.DB
	user     *model.User
	messages repository.ChatMessageRepository
	personas repository.PersonaRepository
	llm      *stubLLM
	gen      *recordingGenerator
	sessions *session.Manager
	svc      ChatService
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newChatFixture(t *testing.T, client *stubLLM, ready bool) *chatFixture {
	t.Helper()
	db := openTestDB(t)
	f := &chatFixture{
		db:       db,
		user:     seedUser(t, db, "chat@example.com"),
		messages: repository.NewChatMessageRepository(db),
		personas: repository.NewPersonaRepository(db),
		llm:      client,
	}
	f.rebuild(ready)
	return f
}

// rebuild 用新的会话存储重新创建服务，相当于进程重启。
func (f *chatFixture) rebuild(ready bool) {
	rnd := companion.NewLockedRand(1)
	fallback := companion.NewRuleBasedGenerator(companion.NewResponder(rnd, 0.2))
	f.gen = &recordingGenerator{inner: companion.NewRemoteGenerator(f.llm, nil, time.Second, fallback)}
	f.sessions = session.NewManager(session.NewMemoryStore(100, time.Hour), 40)
	f.svc = NewChatService(f.messages, f.personas, f.sessions, f.gen, ready, ChatOptions{
		TimeTagProbability: 0,
		MaxReplyChars:      300,
		ReplayLimit:        20,
		Rand:               rnd,
		Now:                fixedClock(),
	})
}

func (f *chatFixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.messages.CountByUser(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("CountByUser: %v", err)
	}
	return n
}

func TestRespondRejectsEmptyMessage(t *testing.T) {
	f := newChatFixture(t, &stubLLM{text: "hi"}, true)
	for _, msg := range []string{"", "   "} {
		if _, err := f.svc.Respond(context.Background(), f.user, "", msg); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("err=%v", err)
		}
	}
	if n := f.count(t); n != 0 {
		t.Fatalf("messages written=%d", n)
	}
	if len(f.llm.calls) != 0 {
		t.Fatal("generation should not be attempted")
	}
}

func TestRespondServiceUnavailable(t *testing.T) {
	f := newChatFixture(t, &stubLLM{text: "hi"}, false)
	if _, err := f.svc.Respond(context.Background(), f.user, "", "hello"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if f.svc.Ready() {
		t.Fatal("Ready should be false")
	}
	if n := f.count(t); n != 0 || len(f.llm.calls) != 0 {
		t.Fatalf("messages=%d calls=%d", n, len(f.llm.calls))
	}
}

func TestRespondFallsBackOnRemoteFailure(t *testing.T) {
	f := newChatFixture(t, &stubLLM{err: errors.New("503 from upstream")}, true)

	res, err := f.svc.Respond(context.Background(), f.user, "s1", "I feel really sad today")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	sadness := companion.Replies("sadness")
	found := false
	for _, r := range sadness {
		if r == res.Response {
			found = true
		}
	}
	if !found {
		t.Fatalf("reply %q is not from the sadness list", res.Response)
	}
	if !f.gen.last.Fallback || f.gen.last.Sentiment != companion.Negative {
		t.Fatalf("reply=%+v", f.gen.last)
	}
	if res.SessionID != "s1" {
		t.Fatalf("SessionID=%q", res.SessionID)
	}
}

func TestRespondTwiceAppendsInOrder(t *testing.T) {
	f := newChatFixture(t, &stubLLM{text: "Hello there!"}, true)
	ctx := context.Background()

	if _, err := f.svc.Respond(ctx, f.user, "s1", "first"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := f.svc.Respond(ctx, f.user, "s1", "second"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	msgs, err := f.svc.History(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []struct{ sender, text string }{
		{model.SenderUser, "first"}, {model.SenderAI, "Hello there!"},
		{model.SenderUser, "second"}, {model.SenderAI, "Hello there!"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("messages=%+v", msgs)
	}
	for i, w := range want {
		if msgs[i].Sender != w.sender || msgs[i].Message != w.text {
			t.Fatalf("message %d=%+v, want %+v", i, msgs[i], w)
		}
		if i > 0 && msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("timestamp decreased at %d", i)
		}
	}
}

func TestRespondReusesSessionContext(t *testing.T) {
	client := &stubLLM{text: "ok"}
	f := newChatFixture(t, client, true)
	ctx := context.Background()

	_, _ = f.svc.Respond(ctx, f.user, "s1", "one")
	first := client.last()
	if len(first) != 3 {
		t.Fatalf("first call messages=%d", len(first))
	}
	if !strings.Contains(first[0].Content, "Alex") || first[1].Content != "I understand. I'll be Alex for you." {
		t.Fatalf("seed=%+v", first[:2])
	}

	_, _ = f.svc.Respond(ctx, f.user, "s1", "two")
	if got := len(client.last()); got != 5 {
		t.Fatalf("second call messages=%d", got)
	}

	_, _ = f.svc.Respond(ctx, f.user, "other", "three")
	// 新会话从聊天记录回放此前的 4 条消息
	if got := len(client.last()); got != 7 {
		t.Fatalf("new session messages=%d", got)
	}
}

func TestRespondRebuildsSessionAfterRestart(t *testing.T) {
	client := &stubLLM{text: "ok"}
	f := newChatFixture(t, client, true)
	ctx := context.Background()
	_, _ = f.svc.Respond(ctx, f.user, "s1", "one")

	f.rebuild(true)
	_, _ = f.svc.Respond(ctx, f.user, "s1", "two")
	msgs := client.last()
	if len(msgs) != 5 {
		t.Fatalf("messages=%+v", msgs)
	}
	if msgs[2].Content != "one" || msgs[3].Role != llm.RoleAssistant || msgs[4].Content != "two" {
		t.Fatalf("replayed=%+v", msgs)
	}
}

func TestRespondTruncatesLongRemoteReply(t *testing.T) {
	s := strings.Repeat("x", 100)
	long := s + ". " + s + ". " + s + ". " + s + "."
	f := newChatFixture(t, &stubLLM{text: long}, true)

	res, err := f.svc.Respond(context.Background(), f.user, "", "tell me a story")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Response != s+". "+s+"." {
		t.Fatalf("Response=%q", res.Response)
	}
	if res.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestRespondTimeTag(t *testing.T) {
	client := &stubLLM{text: "ok"}
	f := newChatFixture(t, client, true)
	f.svc = NewChatService(f.messages, f.personas, f.sessions, f.gen, true, ChatOptions{
		TimeTagProbability: 1,
		MaxReplyChars:      300,
		Now:                fixedClock(),
	})

	if _, err := f.svc.Respond(context.Background(), f.user, "s", "hi"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	msgs := client.last()
	if got := msgs[len(msgs)-1].Content; got != "[Morning time] hi" {
		t.Fatalf("input=%q", got)
	}
	history, _ := f.svc.History(context.Background(), f.user.ID)
	if history[0].Message != "hi" {
		t.Fatalf("stored=%q", history[0].Message)
	}
}

func TestPersonaUpdateResetsSessions(t *testing.T) {
	client := &stubLLM{text: "ok"}
	f := newChatFixture(t, client, true)
	ctx := context.Background()
	_, _ = f.svc.Respond(ctx, f.user, "s1", "one")

	name := "Jordan"
	ps := NewPersonaService(f.personas, f.sessions)
	if _, err := ps.Update(ctx, f.user.ID, model.PersonaPatch{Name: &name}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, _ = f.svc.Respond(ctx, f.user, "s1", "two")
	if first := client.last()[0].Content; !strings.Contains(first, "You are Jordan") {
		t.Fatalf("instruction=%q", first)
	}
}

// blockingLLM 在第一次调用时阻塞，直到 release 被关闭。
type blockingLLM struct {
	stubLLM
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLLM) Chat(ctx context.Context, msgs []llm.Message, gen *llm.GenerationParams) (string, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	return b.stubLLM.Chat(ctx, msgs, gen)
}

func TestPersonaUpdateDuringTurnIsNotLost(t *testing.T) {
	db := openTestDB(t)
	user := seedUser(t, db, "race@example.com")
	messages := repository.NewChatMessageRepository(db)
	personas := repository.NewPersonaRepository(db)
	sessions := session.NewManager(session.NewMemoryStore(100, time.Hour), 40)

	client := &blockingLLM{stubLLM: stubLLM{text: "ok"}, entered: make(chan struct{}), release: make(chan struct{})}
	rnd := companion.NewLockedRand(1)
	fallback := companion.NewRuleBasedGenerator(companion.NewResponder(rnd, 0.2))
	svc := NewChatService(messages, personas, sessions,
		companion.NewRemoteGenerator(client, nil, 5*time.Second, fallback), true,
		ChatOptions{MaxReplyChars: 300, ReplayLimit: 20, Rand: rnd, Now: fixedClock()})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Respond(ctx, user, "s1", "one")
		done <- err
	}()
	<-client.entered

	name := "Jordan"
	if _, err := NewPersonaService(personas, sessions).Update(ctx, user.ID, model.PersonaPatch{Name: &name}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	close(client.release)
	if err := <-done; err != nil {
		t.Fatalf("first Respond: %v", err)
	}

	if _, err := svc.Respond(ctx, user, "s1", "two"); err != nil {
		t.Fatalf("second Respond: %v", err)
	}
	if first := client.last()[0].Content; !strings.Contains(first, "You are Jordan") {
		t.Fatalf("instruction=%q", first)
	}
}

func TestRespondRebuildsSessionWithStaleInstruction(t *testing.T) {
	client := &stubLLM{text: "ok"}
	f := newChatFixture(t, client, true)
	ctx := context.Background()
	_, _ = f.svc.Respond(ctx, f.user, "s1", "one")

	// 绕过 PersonaService，模拟另一个实例只改了数据库
	name := "Jordan"
	if _, err := f.personas.UpdateByUserID(f.user.ID, model.PersonaPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateByUserID: %v", err)
	}

	_, _ = f.svc.Respond(ctx, f.user, "s1", "two")
	msgs := client.last()
	if !strings.Contains(msgs[0].Content, "You are Jordan") {
		t.Fatalf("instruction=%q", msgs[0].Content)
	}
	// 重建时回放了第一轮
	if len(msgs) != 5 || msgs[2].Content != "one" || msgs[4].Content != "two" {
		t.Fatalf("messages=%+v", msgs)
	}
}

type stubIndex struct {
	hits []model.SearchHit
}

func (s *stubIndex) Index(context.Context, model.TranscriptDocument) error { return nil }
func (s *stubIndex) Search(_ context.Context, _ uint, _ string, _ int) ([]model.SearchHit, error) {
	return s.hits, nil
}
func (s *stubIndex) DeleteByUser(context.Context, uint) error { return nil }

// deletingIndex 在第一次 Index 时删除用户，模拟管理员删除与异步索引交错。
type deletingIndex struct {
	once    sync.Once
	remove  func()
	deleted chan uint
}

func (d *deletingIndex) Index(context.Context, model.TranscriptDocument) error {
	d.once.Do(d.remove)
	return nil
}
func (d *deletingIndex) Search(context.Context, uint, string, int) ([]model.SearchHit, error) {
	return nil, nil
}
func (d *deletingIndex) DeleteByUser(_ context.Context, userID uint) error {
	d.deleted <- userID
	return nil
}

func TestIndexCleansUpAfterUserDeleted(t *testing.T) {
	f := newChatFixture(t, &stubLLM{text: "ok"}, true)
	users := repository.NewUserRepository(f.db)
	idx := &deletingIndex{deleted: make(chan uint, 1)}
	idx.remove = func() {
		if err := users.Delete(f.user.ID); err != nil {
			t.Errorf("Delete: %v", err)
		}
	}
	svc := NewChatService(f.messages, f.personas, f.sessions, f.gen, true, ChatOptions{
		MaxReplyChars: 300, ReplayLimit: 20, Now: fixedClock(), Index: idx,
	})

	if _, err := svc.Respond(context.Background(), f.user, "s1", "hello"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	select {
	case id := <-idx.deleted:
		if id != f.user.ID {
			t.Fatalf("deleted user %d", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("index documents of the deleted user were not cleaned up")
	}
}

func TestSearch(t *testing.T) {
	f := newChatFixture(t, &stubLLM{text: "ok"}, true)
	ctx := context.Background()
	if _, err := f.svc.Search(ctx, f.user.ID, "x"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("err=%v", err)
	}

	svc := NewChatService(f.messages, f.personas, f.sessions, f.gen, true, ChatOptions{
		Index: &stubIndex{hits: []model.SearchHit{{MessageID: 1, Message: "x"}}},
	})
	if _, err := svc.Search(ctx, f.user.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v", err)
	}
	hits, err := svc.Search(ctx, f.user.ID, "x")
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits=%+v err=%v", hits, err)
	}
}
