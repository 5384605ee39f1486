package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RamonAndres1967/tutor-backend/internal/config"
)

// Transcriber turns uploaded learner audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
}

// WhisperTranscriber calls a Whisper-compatible /audio/transcriptions
// endpoint with a multipart upload.
type WhisperTranscriber struct {
	log    *zap.Logger
	cfg    config.STTConfig
	client *http.Client
}

// NewWhisperTranscriber builds the production transcriber from config.
func NewWhisperTranscriber(log *zap.Logger, cfg config.STTConfig) *WhisperTranscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &WhisperTranscriber{
		log:    log,
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// Transcribe uploads the audio and returns the recognized text. The
// transcription is forced to the configured language with temperature 0,
// which keeps output stable for short learner utterances.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}

	fields := map[string]string{
		"model":       t.cfg.Model,
		"language":    t.cfg.Language,
		"task":        "transcribe",
		"temperature": "0",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize form: %w", err)
	}

	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call transcription service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.log.Warn("transcription service error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return "", fmt.Errorf("transcription service status %d", resp.StatusCode)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	t.log.Debug("audio transcribed", zap.Int("chars", len(payload.Text)))
	return payload.Text, nil
}
