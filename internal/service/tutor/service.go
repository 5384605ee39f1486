package tutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RamonAndres1967/tutor-backend/internal/model/chat"
	sessionmodel "github.com/RamonAndres1967/tutor-backend/internal/model/session"
	"github.com/RamonAndres1967/tutor-backend/internal/service/phase"
	"github.com/RamonAndres1967/tutor-backend/internal/service/quota"
	sessionstore "github.com/RamonAndres1967/tutor-backend/internal/service/session"
)

var (
	ErrIdentityRequired = errors.New("identity is required")
	ErrNegativeDelta    = errors.New("practice-time delta must not be negative")
	ErrModelUnavailable = errors.New("language model unavailable")
)

// LimitReachedReply is returned verbatim when the daily quota is spent.
const LimitReachedReply = "You have reached your 5‑minute practice limit for today."

// tutorPreamble wraps every phase instruction. Correction is always on:
// the model fixes genuinely important mistakes inline, then carries out
// the pedagogical task of the current phase.
const tutorPreamble = `You are an English tutor.

Correct the student ONLY when there is a clear, important mistake that a learner at A2–B1 level should genuinely fix.

Ignore:
- minor mistakes that do not affect meaning,
- natural variations of English,
- stylistic preferences,
- errors that are typical or expected at A2/B1,
- sentences that are already acceptable or natural.

If the student's message is correct or acceptable for their level, do NOT provide any correction. Just continue the conversation normally.

When a correction is truly needed, keep it brief, friendly, and focused on one key point.

After that, continue with the pedagogical task of the current phase.
Current phase instructions: %s
`

// Responder is the language-model collaborator seen from the orchestrator:
// given the assembled system prompt, prior turns and the new utterance, it
// produces the tutor's reply text.
type Responder interface {
	Reply(ctx context.Context, systemPrompt string, history []chat.Turn, utterance string) (string, error)
}

// TurnResult is the outcome of one chat turn. TimeSpentToday is the usage
// read before the turn; this turn's own time is recorded separately via
// RecordPracticeTime once the caller finishes playback.
type TurnResult struct {
	Reply          string  `json:"reply"`
	TimeSpentToday float64 `json:"timeSpentToday"`
}

// Service composes the session store, phase engine, quota ledger and the
// model collaborator into the per-turn flow.
type Service struct {
	log       *zap.Logger
	sessions  sessionstore.Store
	ledger    quota.Ledger
	engine    *phase.Engine
	responder Responder
	limit     float64

	now func() time.Time

	// One mutex per identity: a turn's read-instruction+advance sequence
	// needs exclusive access to that identity's session, and turns for
	// different identities must not contend.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewService wires the orchestrator. limitSeconds is the daily practice
// allowance per identity.
func NewService(log *zap.Logger, sessions sessionstore.Store, ledger quota.Ledger, engine *phase.Engine, responder Responder, limitSeconds float64) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:       log,
		sessions:  sessions,
		ledger:    ledger,
		engine:    engine,
		responder: responder,
		limit:     limitSeconds,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// HandleChatTurn runs one complete chat turn for an identity. When the
// daily quota is exhausted it short-circuits with the fixed limit reply
// and touches neither the session nor the ledger.
func (s *Service) HandleChatTurn(ctx context.Context, identity, utterance string, history []chat.Turn) (TurnResult, error) {
	if identity == "" {
		return TurnResult{}, ErrIdentityRequired
	}

	unlock := s.lockIdentity(identity)
	defer unlock()

	today := s.today()

	sess, ok := s.sessions.Get(ctx, identity)
	if !ok {
		sess = s.engine.NewSession(identity)
		if err := s.sessions.Put(ctx, sess); err != nil {
			return TurnResult{}, fmt.Errorf("create session: %w", err)
		}
		s.log.Info("new session",
			zap.String("identity", identity),
			zap.String("sessionId", sess.ID),
			zap.String("topic", sess.Topic))
	}

	used, err := s.ledger.SecondsUsed(ctx, identity, today)
	if err != nil {
		// Degrade to zero rather than refusing the turn outright.
		s.log.Warn("quota read failed, assuming zero", zap.String("identity", identity), zap.Error(err))
		used = 0
	}

	if used >= s.limit {
		s.log.Info("daily limit reached",
			zap.String("identity", identity),
			zap.Float64("secondsUsed", used))
		return TurnResult{Reply: LimitReachedReply, TimeSpentToday: used}, nil
	}

	if s.responder == nil {
		return TurnResult{}, ErrModelUnavailable
	}

	remaining := s.limit - used
	instruction := s.engine.InstructionFor(sess, utterance, remaining)
	systemPrompt := fmt.Sprintf(tutorPreamble, instruction)

	s.log.Debug("phase instruction",
		zap.String("identity", identity),
		zap.String("phase", string(sess.Phase)),
		zap.String("instruction", instruction))

	reply, err := s.responder.Reply(ctx, systemPrompt, history, utterance)
	if err != nil {
		// A failed collaborator call fails only this turn; the session
		// stays exactly where it was.
		return TurnResult{}, fmt.Errorf("model reply: %w", err)
	}

	s.engine.Advance(&sess)
	if err := s.sessions.Put(ctx, sess); err != nil {
		return TurnResult{}, fmt.Errorf("store session: %w", err)
	}

	s.log.Info("turn completed",
		zap.String("identity", identity),
		zap.String("nextPhase", string(sess.Phase)),
		zap.Float64("timeSpentToday", used))

	return TurnResult{Reply: reply, TimeSpentToday: used}, nil
}

// RecordPracticeTime accumulates deltaSeconds onto today's total and
// returns the new total. It is driven by the caller (typically when TTS
// playback of a reply finishes) and is deliberately not tied 1:1 to chat
// turns.
func (s *Service) RecordPracticeTime(ctx context.Context, identity string, deltaSeconds float64) (float64, error) {
	if identity == "" {
		return 0, ErrIdentityRequired
	}
	if deltaSeconds < 0 {
		return 0, ErrNegativeDelta
	}

	total, err := s.ledger.AddSeconds(ctx, identity, s.today(), deltaSeconds)
	if err != nil {
		return 0, fmt.Errorf("record practice time: %w", err)
	}

	s.log.Info("practice time recorded",
		zap.String("identity", identity),
		zap.Float64("delta", deltaSeconds),
		zap.Float64("total", total))
	return total, nil
}

// Session exposes a copy of the current session state, mainly for tests
// and diagnostics.
func (s *Service) Session(ctx context.Context, identity string) (sessionmodel.Session, bool) {
	return s.sessions.Get(ctx, identity)
}

func (s *Service) today() string {
	return s.now().UTC().Format(time.DateOnly)
}

func (s *Service) lockIdentity(identity string) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[identity]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[identity] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
