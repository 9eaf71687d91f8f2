package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/ai"
	"github.com/suPer8Hu/moodtune/internal/recommend"
)

type recordingProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  ai.Request
}

func (p *recordingProvider) Chat(ctx context.Context, req ai.Request) (string, error) {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	// copy to avoid mutations
	req.Messages = append([]ai.Message(nil), req.Messages...)
	p.last = req
	return p.reply, p.err
}

// blockingProvider waits for ctx to end.
type blockingProvider struct{}

func (blockingProvider) Chat(ctx context.Context, req ai.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type recordingPersister struct {
	mu      sync.Mutex
	batches []recommend.Batch
}

func (p *recordingPersister) Persist(ctx context.Context, b recommend.Batch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(p ai.Provider, pers recommend.Persister) *Service {
	log := quietLogger()
	return NewService(p, recommend.NewParser(log), pers, log, Options{Timeout: time.Second})
}

const scenarioA = "Try this!\n---JSON---\n{\"recommendations\":[{\"track\":{\"name\":\"Midnight City\",\"artist\":\"M83\",\"reason\":\"energetic synths\"}}]}\n---JSON---"

func TestSendMessage_ParsesAndPersists(t *testing.T) {
	prov := &recordingProvider{reply: scenarioA}
	pers := &recordingPersister{}
	svc := newTestService(prov, pers)
	sess := NewSession()

	msg, err := svc.SendMessage(context.Background(), "user-1", sess, "something upbeat")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.Role != RoleAssistant || msg.Content != "Try this!" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", msg.Role, msg.Content)
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Fatalf("expected id and timestamp to be set, got %+v", msg)
	}

	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "something upbeat" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Fatalf("expected ids in generation order, got %q then %q", msgs[0].ID, msgs[1].ID)
	}
	if sess.IsLoading() || sess.Err() != "" {
		t.Fatalf("expected idle session without error, loading=%v err=%q", sess.IsLoading(), sess.Err())
	}

	if len(pers.batches) != 1 {
		t.Fatalf("expected 1 persisted batch, got %d", len(pers.batches))
	}
	b := pers.batches[0]
	if b.UserID != "user-1" || b.TurnID == "" {
		t.Fatalf("unexpected batch attribution: %+v", b)
	}
	if len(b.Candidates) != 1 || b.Candidates[0].Track.Name != "Midnight City" || b.Candidates[0].Track.Artist != "M83" {
		t.Fatalf("unexpected candidates: %+v", b.Candidates)
	}
}

func TestSendMessage_SendsFullTranscriptWithSystemPrompt(t *testing.T) {
	prov := &recordingProvider{reply: "plain answer"}
	pers := &recordingPersister{}
	svc := newTestService(prov, pers)
	sess := NewSession()

	for _, content := range []string{"first", "second"} {
		if _, err := svc.SendMessage(context.Background(), "u", sess, content); err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
	}

	want := []ai.Message{
		{Role: ai.RoleUser, Content: "first"},
		{Role: ai.RoleAssistant, Content: "plain answer"},
		{Role: ai.RoleUser, Content: "second"},
	}
	if len(prov.last.Messages) != len(want) {
		t.Fatalf("expected provider to receive %d messages, got %d", len(want), len(prov.last.Messages))
	}
	for i := range want {
		if prov.last.Messages[i] != want[i] {
			t.Fatalf("message %d: got %+v want %+v", i, prov.last.Messages[i], want[i])
		}
	}
	if !strings.Contains(prov.last.System, recommend.Marker) {
		t.Fatalf("system prompt must describe the marker syntax")
	}
	if prov.last.MaxTokens <= 0 || prov.last.Temperature <= 0 {
		t.Fatalf("expected bounded tokens and non-zero temperature, got %d / %v", prov.last.MaxTokens, prov.last.Temperature)
	}
	if len(pers.batches) != 0 {
		t.Fatalf("conversational reply must not persist anything, got %d batches", len(pers.batches))
	}
}

func TestSendMessage_Unauthenticated(t *testing.T) {
	prov := &recordingProvider{reply: "x"}
	svc := newTestService(prov, nil)
	sess := NewSession()

	_, err := svc.SendMessage(context.Background(), "", sess, "hello")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if prov.calls != 0 {
		t.Fatalf("no network call expected, got %d", prov.calls)
	}
	if len(sess.Messages()) != 0 {
		t.Fatalf("session must not be mutated")
	}
}

func TestSendMessage_RateLimited(t *testing.T) {
	prov := &recordingProvider{err: &ai.StatusError{Provider: "anthropic", StatusCode: http.StatusTooManyRequests}}
	svc := newTestService(prov, &recordingPersister{})
	sess := NewSession()

	_, err := svc.SendMessage(context.Background(), "u", sess, "hello")
	if !errors.Is(err, ErrUpstreamRateLimited) {
		t.Fatalf("expected ErrUpstreamRateLimited, got %v", err)
	}
	if sess.Err() != MsgRateLimited {
		t.Fatalf("unexpected session error: %q", sess.Err())
	}
	if sess.IsLoading() {
		t.Fatalf("expected loading to be cleared")
	}
	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("expected only the user message to remain, got %+v", msgs)
	}
}

func TestSendMessage_UpstreamFailure(t *testing.T) {
	prov := &recordingProvider{err: &ai.StatusError{Provider: "anthropic", StatusCode: http.StatusInternalServerError}}
	svc := newTestService(prov, nil)
	sess := NewSession()

	_, err := svc.SendMessage(context.Background(), "u", sess, "hello")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if sess.Err() != MsgRetry {
		t.Fatalf("unexpected session error: %q", sess.Err())
	}
}

func TestSendMessage_MalformedPayload(t *testing.T) {
	for name, prov := range map[string]*recordingProvider{
		"empty":    {reply: "   \n"},
		"provider": {err: errors.Join(ai.ErrMalformedResponse, errors.New("no text block"))},
	} {
		t.Run(name, func(t *testing.T) {
			pers := &recordingPersister{}
			svc := newTestService(prov, pers)
			sess := NewSession()

			_, err := svc.SendMessage(context.Background(), "u", sess, "hello")
			if !errors.Is(err, ErrMalformedUpstreamResponse) {
				t.Fatalf("expected ErrMalformedUpstreamResponse, got %v", err)
			}
			if sess.Err() != MsgRetry || len(sess.Messages()) != 1 {
				t.Fatalf("unexpected session state: %+v", sess.Snapshot())
			}
			if len(pers.batches) != 0 {
				t.Fatalf("nothing must be persisted")
			}
		})
	}
}

func TestSendMessage_TimeoutIsUpstreamUnavailable(t *testing.T) {
	log := quietLogger()
	svc := NewService(blockingProvider{}, recommend.NewParser(log), nil, log, Options{Timeout: 20 * time.Millisecond})
	sess := NewSession()

	_, err := svc.SendMessage(context.Background(), "u", sess, "hello")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if sess.Err() == "" || sess.IsLoading() {
		t.Fatalf("expected retry error and idle session, got %+v", sess.Snapshot())
	}
	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("expected the user message to remain, got %+v", msgs)
	}
}

func TestSendMessage_CallerCancellation(t *testing.T) {
	pers := &recordingPersister{}
	log := quietLogger()
	svc := NewService(blockingProvider{}, recommend.NewParser(log), pers, log, Options{Timeout: time.Minute})
	sess := NewSession()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.SendMessage(ctx, "u", sess, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sess.IsLoading() || sess.Err() != "" {
		t.Fatalf("cancelled turn must not leave an error, got %+v", sess.Snapshot())
	}
	if len(sess.Messages()) != 1 || len(pers.batches) != 0 {
		t.Fatalf("no assistant message or batch expected")
	}
}

func TestSendMessage_CancelledAfterReplyPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prov := &cancelingProvider{reply: scenarioA, cancel: cancel}
	pers := &recordingPersister{}
	svc := newTestService(prov, pers)
	sess := NewSession()

	if _, err := svc.SendMessage(ctx, "u", sess, "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sess.Messages()) != 1 || len(pers.batches) != 0 {
		t.Fatalf("no assistant message or batch expected")
	}
}

// cancelingProvider answers and cancels the caller in the same call.
type cancelingProvider struct {
	reply  string
	cancel context.CancelFunc
}

func (p *cancelingProvider) Chat(ctx context.Context, req ai.Request) (string, error) {
	p.cancel()
	return p.reply, nil
}

func TestComplete_ReturnsRawReply(t *testing.T) {
	prov := &recordingProvider{reply: scenarioA}
	pers := &recordingPersister{}
	svc := newTestService(prov, pers)

	raw, err := svc.Complete(context.Background(), "u", []ai.Message{{Role: ai.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if raw != scenarioA {
		t.Fatalf("expected raw reply, got %q", raw)
	}
	if len(pers.batches) != 0 {
		t.Fatalf("stateless completion must not persist")
	}

	if _, err := svc.Complete(context.Background(), "", nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
