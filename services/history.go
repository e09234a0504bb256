package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github/itish2003/stakebot/models"
)

// InteractionStore is the narrow persistence interface for conversation
// history. Implementations must return interactions newest-first from
// GetUserInteractions; UpdateFeedback on an unknown timestamp is a no-op.
type InteractionStore interface {
	SaveInteraction(ctx context.Context, in models.Interaction) error
	GetUserInteractions(ctx context.Context, userID string, limit int) ([]models.Interaction, error)
	UpdateFeedback(ctx context.Context, slackTS, feedback string) error
	ClearUserInteractions(ctx context.Context, userID string) error
	ClearAllInteractions(ctx context.Context) error
}

// SupabaseStore talks to the Supabase PostgREST `interactions` table.
type SupabaseStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSupabaseStore creates a store for the project at baseURL (without the
// /rest/v1 suffix), authenticating with apiKey.
func NewSupabaseStore(client *http.Client, baseURL, apiKey string) *SupabaseStore {
	return &SupabaseStore{httpClient: client, baseURL: baseURL, apiKey: apiKey}
}

func (s *SupabaseStore) interactionsURL(params url.Values) string {
	u := s.baseURL + "/rest/v1/interactions"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (s *SupabaseStore) do(ctx context.Context, method, rawURL string, payload any) ([]byte, error) {
	return postgrestDo(ctx, s.httpClient, s.apiKey, method, rawURL, payload)
}

// postgrestDo performs one PostgREST request and returns the response body.
// Any non-2xx status becomes an error carrying the body for diagnosis.
func postgrestDo(ctx context.Context, client *http.Client, apiKey, method, rawURL string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal supabase payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call supabase: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("supabase returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// SaveInteraction inserts one completed exchange.
func (s *SupabaseStore) SaveInteraction(ctx context.Context, in models.Interaction) error {
	if _, err := s.do(ctx, http.MethodPost, s.interactionsURL(nil), in); err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}
	log.Printf("STORE: Saved interaction for user %s (ts %s).", in.SlackUserID, in.SlackTS)
	return nil
}

// GetUserInteractions fetches up to limit records for a user, newest first.
func (s *SupabaseStore) GetUserInteractions(ctx context.Context, userID string, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = HistoryMaxInteractions
	}
	params := url.Values{}
	params.Set("slack_user_id", "eq."+userID)
	params.Set("order", "created_at.desc")
	params.Set("limit", strconv.Itoa(limit))

	body, err := s.do(ctx, http.MethodGet, s.interactionsURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch interactions: %w", err)
	}
	var interactions []models.Interaction
	if err := json.Unmarshal(body, &interactions); err != nil {
		return nil, fmt.Errorf("failed to decode interactions: %w", err)
	}
	return interactions, nil
}

// UpdateFeedback patches the feedback column of the record whose slack_ts
// matches. PostgREST matches zero rows for an unknown timestamp, which makes
// this a no-op by construction.
func (s *SupabaseStore) UpdateFeedback(ctx context.Context, slackTS, feedback string) error {
	params := url.Values{}
	params.Set("slack_ts", "eq."+slackTS)
	payload := map[string]string{"feedback": feedback}
	if _, err := s.do(ctx, http.MethodPatch, s.interactionsURL(params), payload); err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	return nil
}

// ClearUserInteractions deletes all records for one user.
func (s *SupabaseStore) ClearUserInteractions(ctx context.Context, userID string) error {
	params := url.Values{}
	params.Set("slack_user_id", "eq."+userID)
	if _, err := s.do(ctx, http.MethodDelete, s.interactionsURL(params), nil); err != nil {
		return fmt.Errorf("failed to clear history for user %s: %w", userID, err)
	}
	log.Printf("STORE: Cleared history for user %s.", userID)
	return nil
}

// ClearAllInteractions deletes every record. Admin reset only.
func (s *SupabaseStore) ClearAllInteractions(ctx context.Context) error {
	// PostgREST refuses an unfiltered DELETE. The serial primary key is
	// non-null and positive on every row, so this filter matches all of
	// them, including rows with NULL user columns.
	params := url.Values{}
	params.Set("id", "gt.0")
	if _, err := s.do(ctx, http.MethodDelete, s.interactionsURL(params), nil); err != nil {
		return fmt.Errorf("failed to clear all interactions: %w", err)
	}
	log.Println("STORE: Cleared all interactions.")
	return nil
}
