package session

import "time"

// Phase identifies the current step of the lesson script.
type Phase string

const (
	PhaseWarmup          Phase = "warmup"
	PhaseTopicIntro      Phase = "topic_intro"
	PhaseGuidedQuestions Phase = "guided_questions"
	PhaseCorrection      Phase = "correction"
	PhaseExpansion       Phase = "expansion"
	PhaseWrapup          Phase = "wrapup"
)

// Session captures the per-identity lesson state. It lives in process
// memory only and is lost on restart.
type Session struct {
	ID            string    `json:"id"`
	Identity      string    `json:"identity"`
	Phase         Phase     `json:"phase"`
	Topic         string    `json:"topic"`
	QuestionIndex int       `json:"questionIndex"`
	CreatedAt     time.Time `json:"createdAt"`
}
