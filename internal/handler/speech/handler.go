package speech

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	speechsvc "github.com/RamonAndres1967/tutor-backend/internal/service/speech"
)

// maxAudioBytes bounds one uploaded utterance; Whisper rejects anything
// above 25 MB anyway.
const maxAudioBytes = 25 << 20

// Handler serves the speech-to-text endpoint.
type Handler struct {
	log         *zap.Logger
	transcriber speechsvc.Transcriber
}

// New creates the speech handler.
func New(log *zap.Logger, transcriber speechsvc.Transcriber) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{log: log, transcriber: transcriber}
}

// RegisterRoutes mounts the speech routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stt", h.handleTranscribe)
}

// handleTranscribe accepts a multipart "audio" file and returns the
// recognized text. Every failure degrades to empty text with status 200:
// a missed transcription should never break the practice loop on the
// client.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		respondText(w, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.log.Warn("stt request without audio file", zap.Error(err))
		respondText(w, "")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/webm"
	}
	filename := header.Filename
	if filename == "" {
		filename = "audio.webm"
	}

	text, err := h.transcriber.Transcribe(r.Context(), file, filename, contentType)
	if err != nil {
		h.log.Warn("transcription failed", zap.Error(err))
		respondText(w, "")
		return
	}

	respondText(w, text)
}

func respondText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}
