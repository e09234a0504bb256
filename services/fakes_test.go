package services

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github/itish2003/stakebot/models"
)

// fakeModel is an llms.Model returning a canned response and recording the
// message sequences it was asked to complete.
type fakeModel struct {
	response string
	err      error
	calls    [][]llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *fakeModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// fakeEmbedder produces deterministic vectors: identical texts embed
// identically, so querying with a chunk's own text ranks it first.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedDeterministic(t)
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return embedDeterministic(text), nil
}

func embedDeterministic(text string) []float32 {
	vec := make([]float32, 16)
	for i, r := range strings.ToLower(text) {
		vec[(i+int(r))%16]++
	}
	return vec
}

// fakeInteractionStore keeps records in memory, newest first.
type fakeInteractionStore struct {
	interactions []models.Interaction
	saved        []models.Interaction
	feedback     map[string]string
	clearedUsers []string
	clearedAll   bool
	err          error
}

func (s *fakeInteractionStore) SaveInteraction(_ context.Context, in models.Interaction) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, in)
	return nil
}

func (s *fakeInteractionStore) GetUserInteractions(_ context.Context, _ string, limit int) ([]models.Interaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.interactions) {
		return s.interactions[:limit], nil
	}
	return s.interactions, nil
}

func (s *fakeInteractionStore) UpdateFeedback(_ context.Context, slackTS, feedback string) error {
	if s.err != nil {
		return s.err
	}
	if s.feedback == nil {
		s.feedback = make(map[string]string)
	}
	s.feedback[slackTS] = feedback
	return nil
}

func (s *fakeInteractionStore) ClearUserInteractions(_ context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	s.clearedUsers = append(s.clearedUsers, userID)
	return nil
}

func (s *fakeInteractionStore) ClearAllInteractions(_ context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.clearedAll = true
	return nil
}

type fakePromptStore struct {
	prompt  string
	updates []models.PromptVersion
	err     error
}

func (s *fakePromptStore) GetSystemPrompt(_ context.Context) (string, error) {
	if s.err != nil {
		return DefaultSystemPrompt, s.err
	}
	if s.prompt == "" {
		return DefaultSystemPrompt, nil
	}
	return s.prompt, nil
}

func (s *fakePromptStore) UpdateSystemPrompt(_ context.Context, prompt, updatedBy string) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, models.PromptVersion{Prompt: prompt, UpdatedBy: updatedBy})
	s.prompt = prompt
	return nil
}
