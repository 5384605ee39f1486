package tutor

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/RamonAndres1967/tutor-backend/internal/model/chat"
	"github.com/RamonAndres1967/tutor-backend/internal/model/lesson"
	sessionmodel "github.com/RamonAndres1967/tutor-backend/internal/model/session"
	"github.com/RamonAndres1967/tutor-backend/internal/service/phase"
	"github.com/RamonAndres1967/tutor-backend/internal/service/quota"
	sessionstore "github.com/RamonAndres1967/tutor-backend/internal/service/session"
)

type fakeResponder struct {
	reply string
	err   error

	calls         int
	lastSystem    string
	lastHistory   []chat.Turn
	lastUtterance string
}

func (f *fakeResponder) Reply(_ context.Context, systemPrompt string, history []chat.Turn, utterance string) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastHistory = history
	f.lastUtterance = utterance
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testScript() *lesson.Script {
	return &lesson.Script{
		Topics: map[string]lesson.Topic{
			"travel": {Questions: []string{"q1", "q2", "q3"}},
		},
		Prompts: lesson.Prompts{
			Warmup:         "warmup prompt",
			Expansion:      "expansion prompt",
			Wrapup:         "wrapup prompt",
			WrapupContinue: "wrapup continue prompt",
		},
	}
}

func newTestService(responder Responder) (*Service, *quota.MemoryLedger) {
	ledger := quota.NewMemoryLedger()
	engine := phase.NewEngine(testScript(), rand.New(rand.NewSource(1)))
	svc := NewService(nil, sessionstore.NewMemoryStore(), ledger, engine, responder, 300)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return svc, ledger
}

func TestFirstTurnCreatesWarmupSessionAndAdvances(t *testing.T) {
	responder := &fakeResponder{reply: "Hi there! How is your day going?"}
	svc, _ := newTestService(responder)
	ctx := context.Background()

	result, err := svc.HandleChatTurn(ctx, "u1", "hello", nil)
	if err != nil {
		t.Fatalf("HandleChatTurn err: %v", err)
	}

	if result.Reply != responder.reply {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if result.TimeSpentToday != 0 {
		t.Fatalf("expected 0 seconds spent, got %v", result.TimeSpentToday)
	}
	if !strings.Contains(responder.lastSystem, "warmup prompt") {
		t.Fatalf("system prompt missing warmup instruction: %q", responder.lastSystem)
	}
	if !strings.Contains(responder.lastSystem, "You are an English tutor.") {
		t.Fatalf("system prompt missing tutor preamble: %q", responder.lastSystem)
	}

	sess, ok := svc.Session(ctx, "u1")
	if !ok {
		t.Fatal("expected session for u1")
	}
	if sess.Phase != sessionmodel.PhaseTopicIntro {
		t.Fatalf("expected topic_intro after first turn, got %s", sess.Phase)
	}
	if sess.QuestionIndex != 0 {
		t.Fatalf("expected question index 0, got %d", sess.QuestionIndex)
	}
}

func TestQuotaGateRefusesWithoutSideEffects(t *testing.T) {
	responder := &fakeResponder{reply: "should never be used"}
	svc, ledger := newTestService(responder)
	ctx := context.Background()

	// First turn creates the session and moves it to topic_intro.
	if _, err := svc.HandleChatTurn(ctx, "u1", "hello", nil); err != nil {
		t.Fatalf("HandleChatTurn err: %v", err)
	}
	before, _ := svc.Session(ctx, "u1")

	if _, err := ledger.AddSeconds(ctx, "u1", "2026-08-30", 300); err != nil {
		t.Fatalf("AddSeconds err: %v", err)
	}
	callsBefore := responder.calls

	result, err := svc.HandleChatTurn(ctx, "u1", "more please", nil)
	if err != nil {
		t.Fatalf("HandleChatTurn err: %v", err)
	}

	if result.Reply != LimitReachedReply {
		t.Fatalf("expected limit reply, got %q", result.Reply)
	}
	if result.TimeSpentToday != 300 {
		t.Fatalf("expected 300 seconds, got %v", result.TimeSpentToday)
	}
	if responder.calls != callsBefore {
		t.Fatal("responder must not be called when quota is exhausted")
	}

	after, _ := svc.Session(ctx, "u1")
	if after.Phase != before.Phase || after.QuestionIndex != before.QuestionIndex {
		t.Fatalf("session changed under exhausted quota: %+v vs %+v", before, after)
	}
	used, _ := ledger.SecondsUsed(ctx, "u1", "2026-08-30")
	if used != 300 {
		t.Fatalf("ledger changed under exhausted quota: %v", used)
	}
}

func TestTurnAdmittedJustUnderLimit(t *testing.T) {
	responder := &fakeResponder{reply: "keep going"}
	svc, ledger := newTestService(responder)
	ctx := context.Background()

	if _, err := ledger.AddSeconds(ctx, "u1", "2026-08-30", 290); err != nil {
		t.Fatalf("AddSeconds err: %v", err)
	}

	result, err := svc.HandleChatTurn(ctx, "u1", "hello", nil)
	if err != nil {
		t.Fatalf("HandleChatTurn err: %v", err)
	}

	if result.Reply != "keep going" {
		t.Fatalf("expected model reply, got %q", result.Reply)
	}
	if result.TimeSpentToday != 290 {
		t.Fatalf("expected pre-turn usage 290, got %v", result.TimeSpentToday)
	}
}

func TestResponderFailureLeavesSessionUntouched(t *testing.T) {
	responder := &fakeResponder{reply: "ok"}
	svc, _ := newTestService(responder)
	ctx := context.Background()

	if _, err := svc.HandleChatTurn(ctx, "u1", "hello", nil); err != nil {
		t.Fatalf("HandleChatTurn err: %v", err)
	}
	before, _ := svc.Session(ctx, "u1")

	responder.err = errors.New("model down")
	if _, err := svc.HandleChatTurn(ctx, "u1", "hello again", nil); err == nil {
		t.Fatal("expected error from failed responder")
	}

	after, _ := svc.Session(ctx, "u1")
	if after.Phase != before.Phase || after.QuestionIndex != before.QuestionIndex {
		t.Fatalf("session advanced despite failure: %+v vs %+v", before, after)
	}
}

func TestGuidedQuestionsAskedInOrder(t *testing.T) {
	responder := &fakeResponder{reply: "ok"}
	svc, _ := newTestService(responder)
	ctx := context.Background()

	// warmup, topic_intro.
	for i := 0; i < 2; i++ {
		if _, err := svc.HandleChatTurn(ctx, "u1", "hello", nil); err != nil {
			t.Fatalf("HandleChatTurn err: %v", err)
		}
	}

	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := svc.HandleChatTurn(ctx, "u1", "my answer", nil); err != nil {
			t.Fatalf("HandleChatTurn err: %v", err)
		}
		if !strings.Contains(responder.lastSystem, `"`+q+`"`) {
			t.Fatalf("expected question %q in instruction, got %q", q, responder.lastSystem)
		}
	}

	sess, _ := svc.Session(ctx, "u1")
	if sess.Phase != sessionmodel.PhaseExpansion {
		t.Fatalf("expected expansion after all questions, got %s", sess.Phase)
	}
}

func TestHistoryAndUtteranceForwarded(t *testing.T) {
	responder := &fakeResponder{reply: "ok"}
	svc, _ := newTestService(responder)

	history := []chat.Turn{
		{User: "hi", Bot: "hello!"},
		{User: "how are you?", Bot: "great"},
	}
	if _, err := svc.HandleChatTurn(context.Background(), "u1", "new message", history); err != nil {
		t.Fatalf("HandleChatTurn err: %v", err)
	}

	if len(responder.lastHistory) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(responder.lastHistory))
	}
	if responder.lastUtterance != "new message" {
		t.Fatalf("unexpected utterance: %q", responder.lastUtterance)
	}
}

func TestRecordPracticeTimeAccumulates(t *testing.T) {
	svc, ledger := newTestService(&fakeResponder{reply: "ok"})
	ctx := context.Background()

	if _, err := svc.RecordPracticeTime(ctx, "u1", 40); err != nil {
		t.Fatalf("RecordPracticeTime err: %v", err)
	}

	total, err := svc.RecordPracticeTime(ctx, "u1", 12)
	if err != nil {
		t.Fatalf("RecordPracticeTime err: %v", err)
	}
	if total != 52 {
		t.Fatalf("expected total 52, got %v", total)
	}

	used, _ := ledger.SecondsUsed(ctx, "u1", "2026-08-30")
	if used != 52 {
		t.Fatalf("ledger read back %v, want 52", used)
	}
}

func TestRecordPracticeTimeRejectsNegativeDelta(t *testing.T) {
	svc, _ := newTestService(&fakeResponder{reply: "ok"})

	if _, err := svc.RecordPracticeTime(context.Background(), "u1", -5); !errors.Is(err, ErrNegativeDelta) {
		t.Fatalf("expected ErrNegativeDelta, got %v", err)
	}
}

func TestEmptyIdentityRejected(t *testing.T) {
	svc, _ := newTestService(&fakeResponder{reply: "ok"})
	ctx := context.Background()

	if _, err := svc.HandleChatTurn(ctx, "", "hello", nil); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if _, err := svc.RecordPracticeTime(ctx, "", 5); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
}

func TestNilResponderRefusesTurn(t *testing.T) {
	svc, _ := newTestService(nil)

	if _, err := svc.HandleChatTurn(context.Background(), "u1", "hello", nil); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}
