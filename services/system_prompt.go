package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github/itish2003/stakebot/models"
)

// DefaultSystemPrompt is used when the prompt store is empty or unreachable.
const DefaultSystemPrompt = "You are a helpful assistant."

// PromptStore reads and replaces the system prompt. Updates append a new
// version; prior versions are retained as an audit trail and the current
// prompt is always the most recently updated row.
type PromptStore interface {
	GetSystemPrompt(ctx context.Context) (string, error)
	UpdateSystemPrompt(ctx context.Context, prompt, updatedBy string) error
}

// SupabasePromptStore keeps prompt versions in the `system_prompt` table.
type SupabasePromptStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewSupabasePromptStore(client *http.Client, baseURL, apiKey string) *SupabasePromptStore {
	return &SupabasePromptStore{httpClient: client, baseURL: baseURL, apiKey: apiKey}
}

// GetSystemPrompt fetches the latest prompt version. On any failure it falls
// back to DefaultSystemPrompt with a non-nil error so callers can log the
// degradation without blocking the request.
func (s *SupabasePromptStore) GetSystemPrompt(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("select", "prompt,updated_by,updated_at")
	params.Set("order", "updated_at.desc")
	params.Set("limit", "1")

	body, err := postgrestDo(ctx, s.httpClient, s.apiKey, http.MethodGet, s.baseURL+"/rest/v1/system_prompt?"+params.Encode(), nil)
	if err != nil {
		return DefaultSystemPrompt, fmt.Errorf("failed to fetch system prompt: %w", err)
	}
	var versions []models.PromptVersion
	if err := json.Unmarshal(body, &versions); err != nil {
		return DefaultSystemPrompt, fmt.Errorf("failed to decode system prompt: %w", err)
	}
	if len(versions) == 0 {
		return DefaultSystemPrompt, nil
	}
	return versions[0].Prompt, nil
}

// UpdateSystemPrompt appends a new prompt version attributed to updatedBy.
func (s *SupabasePromptStore) UpdateSystemPrompt(ctx context.Context, prompt, updatedBy string) error {
	payload := models.PromptVersion{
		Prompt:    prompt,
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := postgrestDo(ctx, s.httpClient, s.apiKey, http.MethodPost, s.baseURL+"/rest/v1/system_prompt", payload); err != nil {
		return fmt.Errorf("failed to update system prompt: %w", err)
	}
	log.Printf("STORE: System prompt updated by %s.", updatedBy)
	return nil
}
