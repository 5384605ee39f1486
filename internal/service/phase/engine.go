package phase

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RamonAndres1967/tutor-backend/internal/model/lesson"
	"github.com/RamonAndres1967/tutor-backend/internal/model/session"
)

// wrapupContinueWindow is the remaining-quota threshold below which the
// wrapup phase switches from "keep going" to final wording.
const wrapupContinueWindow = 20.0

// Engine drives the lesson state machine over a loaded script. It never
// talks to storage or the model; everything here is deterministic given
// the session and the injected random source.
type Engine struct {
	script *lesson.Script

	mu  sync.Mutex // guards rng, which is not safe for concurrent use
	rng *rand.Rand
}

// step ties a phase to its instruction builder and its successor
// computation, so the machine reads as one table instead of a chain of
// string comparisons.
type step struct {
	instruction func(e *Engine, sess session.Session, utterance string, remaining float64) string
	advance     func(e *Engine, sess *session.Session)
}

var steps = map[session.Phase]step{
	session.PhaseWarmup: {
		instruction: func(e *Engine, _ session.Session, _ string, _ float64) string {
			return e.script.Prompts.Warmup
		},
		advance: func(_ *Engine, sess *session.Session) {
			sess.Phase = session.PhaseTopicIntro
		},
	},
	session.PhaseTopicIntro: {
		instruction: func(_ *Engine, sess session.Session, _ string, _ float64) string {
			return fmt.Sprintf("Introduce the topic: %s", sess.Topic)
		},
		advance: func(_ *Engine, sess *session.Session) {
			sess.Phase = session.PhaseGuidedQuestions
		},
	},
	session.PhaseGuidedQuestions: {
		instruction: func(e *Engine, sess session.Session, _ string, _ float64) string {
			questions := e.script.Questions(sess.Topic)
			idx := sess.QuestionIndex
			if idx >= len(questions) {
				idx = len(questions) - 1
			}
			return fmt.Sprintf("Ask this question naturally: %q", questions[idx])
		},
		advance: func(e *Engine, sess *session.Session) {
			sess.QuestionIndex++
			if sess.QuestionIndex >= len(e.script.Questions(sess.Topic)) {
				sess.Phase = session.PhaseExpansion
			}
		},
	},
	// correction has an instruction template but no inbound transition;
	// it is only reachable when set explicitly, and advancing from it is
	// a no-op until whatever sets it clears it again.
	session.PhaseCorrection: {
		instruction: func(_ *Engine, _ session.Session, utterance string, _ float64) string {
			return fmt.Sprintf("Correct the student's message in a friendly way. Explain briefly and give an example. Student said: %q", utterance)
		},
		advance: func(_ *Engine, _ *session.Session) {},
	},
	session.PhaseExpansion: {
		instruction: func(e *Engine, _ session.Session, _ string, _ float64) string {
			return e.script.Prompts.Expansion
		},
		advance: func(_ *Engine, sess *session.Session) {
			sess.Phase = session.PhaseWrapup
		},
	},
	session.PhaseWrapup: {
		instruction: func(e *Engine, _ session.Session, _ string, remaining float64) string {
			if remaining > wrapupContinueWindow {
				return e.script.Prompts.WrapupContinue
			}
			return e.script.Prompts.Wrapup
		},
		advance: func(e *Engine, sess *session.Session) {
			*sess = e.NewSession(sess.Identity)
		},
	},
}

// NewEngine builds an engine over a validated script. The random source
// controls topic selection and must be seeded by the caller, which keeps
// topic choice reproducible under test.
func NewEngine(script *lesson.Script, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{script: script, rng: rng}
}

// NewSession starts a fresh lesson for an identity: warmup phase, a
// uniformly random topic, question cursor at zero.
func (e *Engine) NewSession(identity string) session.Session {
	e.mu.Lock()
	topic := e.script.RandomTopic(e.rng)
	e.mu.Unlock()

	return session.Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Phase:     session.PhaseWarmup,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
}

// InstructionFor returns the system instruction for the session's current
// phase. It never mutates the session and always returns non-empty text
// for a reachable phase. remainingSeconds only influences the wrapup
// wording.
func (e *Engine) InstructionFor(sess session.Session, lastUtterance string, remainingSeconds float64) string {
	st, ok := steps[sess.Phase]
	if !ok {
		// Unknown phase means corrupted state; restart the lesson text.
		return e.script.Prompts.Warmup
	}
	return st.instruction(e, sess, lastUtterance, remainingSeconds)
}

// Advance moves the session to its next phase in place. Callers must
// invoke it exactly once per completed turn. Leaving wrapup cycles into a
// brand-new lesson with a fresh random topic.
func (e *Engine) Advance(sess *session.Session) {
	st, ok := steps[sess.Phase]
	if !ok {
		*sess = e.NewSession(sess.Identity)
		return
	}
	st.advance(e, sess)
}
