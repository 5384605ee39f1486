package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/RamonAndres1967/tutor-backend/internal/config"
	"github.com/RamonAndres1967/tutor-backend/internal/model/chat"
)

// historyLimit caps how many prior turns are forwarded to the model.
const historyLimit = 10

// errorReply is the degrade-not-fail marker used when the model answers
// with an empty or unusable message.
const errorReply = "Error"

// Service is the production language-model collaborator. It compiles the
// system/history/query template and the chat model into a single runnable
// chain at startup.
type Service struct {
	log   *zap.Logger
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the model client from configuration and compiles the
// chat chain.
func NewService(ctx context.Context, log *zap.Logger, cfg config.AIConfig) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}

	return &Service{log: log, chain: runnable}, nil
}

// Reply runs one completion: system prompt, capped history, then the new
// utterance. A transport or model error is returned to the caller; a
// well-formed but empty response degrades to the literal error marker.
func (s *Service) Reply(ctx context.Context, systemPrompt string, history []chat.Turn, utterance string) (string, error) {
	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   utterance,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("run chat chain: %w", err)
	}

	if response == nil || strings.TrimSpace(response.Content) == "" {
		s.log.Warn("model returned empty content, degrading to error marker")
		return errorReply, nil
	}

	s.log.Debug("model reply generated", zap.Int("length", len(response.Content)))
	return response.Content, nil
}

// buildHistoryMessages converts caller-supplied turns into model messages,
// keeping only the most recent ones. Each turn contributes a user entry
// and, when present, an assistant entry, in order.
func buildHistoryMessages(history []chat.Turn) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	start := 0
	if len(history) > historyLimit {
		start = len(history) - historyLimit
	}

	messages := make([]*schema.Message, 0, 2*(len(history)-start))
	for _, turn := range history[start:] {
		if turn.User != "" {
			messages = append(messages, schema.UserMessage(turn.User))
		}
		if turn.Bot != "" {
			messages = append(messages, schema.AssistantMessage(turn.Bot, nil))
		}
	}
	return messages
}
