package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/RamonAndres1967/tutor-backend/internal/model/chat"
	"github.com/RamonAndres1967/tutor-backend/internal/service/tutor"
)

type fakeTutor struct {
	result tutor.TurnResult
	total  float64
	err    error

	lastIdentity  string
	lastUtterance string
	lastHistory   []chat.Turn
	lastDelta     float64
}

func (f *fakeTutor) HandleChatTurn(_ context.Context, identity, utterance string, history []chat.Turn) (tutor.TurnResult, error) {
	f.lastIdentity = identity
	f.lastUtterance = utterance
	f.lastHistory = history
	return f.result, f.err
}

func (f *fakeTutor) RecordPracticeTime(_ context.Context, identity string, delta float64) (float64, error) {
	f.lastIdentity = identity
	f.lastDelta = delta
	return f.total, f.err
}

func setupRouter(fake *fakeTutor) *chi.Mux {
	handler := New(nil, fake)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatReturnsReplyAndQuota(t *testing.T) {
	fake := &fakeTutor{result: tutor.TurnResult{Reply: "Hello!", TimeSpentToday: 42}}
	r := setupRouter(fake)

	resp := postJSON(t, r, "/chat", map[string]any{
		"userId":  "u1",
		"message": "hi",
		"history": []map[string]string{{"user": "a", "bot": "b"}},
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Reply          string  `json:"reply"`
		TimeSpentToday float64 `json:"timeSpentToday"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Reply != "Hello!" || body.TimeSpentToday != 42 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if fake.lastIdentity != "u1" || fake.lastUtterance != "hi" {
		t.Fatalf("unexpected call: identity=%q utterance=%q", fake.lastIdentity, fake.lastUtterance)
	}
	if len(fake.lastHistory) != 1 {
		t.Fatalf("expected 1 history turn, got %d", len(fake.lastHistory))
	}
}

func TestChatMissingMessage(t *testing.T) {
	r := setupRouter(&fakeTutor{})

	resp := postJSON(t, r, "/chat", map[string]any{"userId": "u1"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatFallsBackToClientIP(t *testing.T) {
	fake := &fakeTutor{result: tutor.TurnResult{Reply: "ok"}}
	r := setupRouter(fake)

	raw, _ := json.Marshal(map[string]string{"message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(raw))
	req.RemoteAddr = "203.0.113.9:51234"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if fake.lastIdentity != "203.0.113.9" {
		t.Fatalf("expected IP identity, got %q", fake.lastIdentity)
	}
}

func TestChatModelUnavailable(t *testing.T) {
	fake := &fakeTutor{err: tutor.ErrModelUnavailable}
	r := setupRouter(fake)

	resp := postJSON(t, r, "/chat", map[string]string{"userId": "u1", "message": "hi"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestPracticeTimeReturnsTotal(t *testing.T) {
	fake := &fakeTutor{total: 52}
	r := setupRouter(fake)

	resp := postJSON(t, r, "/practice-time", map[string]any{"userId": "u1", "seconds": 12})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		OK    bool    `json:"ok"`
		Total float64 `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.OK || body.Total != 52 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if fake.lastDelta != 12 {
		t.Fatalf("expected delta 12, got %v", fake.lastDelta)
	}
}

func TestPracticeTimeNegativeDelta(t *testing.T) {
	fake := &fakeTutor{err: tutor.ErrNegativeDelta}
	r := setupRouter(fake)

	resp := postJSON(t, r, "/practice-time", map[string]any{"userId": "u1", "seconds": -3})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
