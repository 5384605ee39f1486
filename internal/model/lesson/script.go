package lesson

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script is the static lesson catalogue the phase engine works from.
// It is loaded once at startup and read-only afterwards.
type Script struct {
	Topics  map[string]Topic `json:"topics" yaml:"topics"`
	Prompts Prompts          `json:"prompts" yaml:"prompts"`
}

// Topic holds the guided questions asked one per turn.
type Topic struct {
	Questions []string `json:"questions" yaml:"questions"`
}

// Prompts are the fixed instruction templates for the non-topic phases.
type Prompts struct {
	Warmup         string `json:"warmup" yaml:"warmup"`
	Expansion      string `json:"expansion" yaml:"expansion"`
	Wrapup         string `json:"wrapup" yaml:"wrapup"`
	WrapupContinue string `json:"wrapup_continue" yaml:"wrapup_continue"`
}

// Load reads a lesson script from disk. JSON is the native format; a
// .yaml/.yml extension switches the decoder.
func Load(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lesson script: %w", err)
	}

	var script Script
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &script); err != nil {
			return nil, fmt.Errorf("parse lesson script %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &script); err != nil {
			return nil, fmt.Errorf("parse lesson script %s: %w", path, err)
		}
	}

	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lesson script %s: %w", path, err)
	}
	return &script, nil
}

// Validate checks the invariants the phase engine relies on: at least one
// topic, every topic has at least one question, and every fixed-phase
// prompt is present.
func (s *Script) Validate() error {
	if len(s.Topics) == 0 {
		return fmt.Errorf("script has no topics")
	}
	for name, topic := range s.Topics {
		if len(topic.Questions) == 0 {
			return fmt.Errorf("topic %q has no questions", name)
		}
		for i, q := range topic.Questions {
			if strings.TrimSpace(q) == "" {
				return fmt.Errorf("topic %q question %d is empty", name, i)
			}
		}
	}

	missing := make([]string, 0, 4)
	if s.Prompts.Warmup == "" {
		missing = append(missing, "warmup")
	}
	if s.Prompts.Expansion == "" {
		missing = append(missing, "expansion")
	}
	if s.Prompts.Wrapup == "" {
		missing = append(missing, "wrapup")
	}
	if s.Prompts.WrapupContinue == "" {
		missing = append(missing, "wrapup_continue")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing prompts: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TopicNames returns the topic keys in a stable order.
func (s *Script) TopicNames() []string {
	names := make([]string, 0, len(s.Topics))
	for name := range s.Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RandomTopic picks a topic uniformly with the supplied source.
func (s *Script) RandomTopic(rng *rand.Rand) string {
	names := s.TopicNames()
	return names[rng.Intn(len(names))]
}

// Questions returns the question list for a topic, or nil when the topic
// is unknown.
func (s *Script) Questions(topic string) []string {
	t, ok := s.Topics[topic]
	if !ok {
		return nil
	}
	return t.Questions
}
