package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/stakebot/services"
)

// stubAssistant satisfies services.AssistantService with canned values.
type stubAssistant struct {
	answer  string
	count   int
	err     error
	lastReq services.AnswerRequest

	updatedPrompt string
	clearedUser   string
	clearedAll    bool
	clearedIndex  bool
}

func (s *stubAssistant) Answer(_ context.Context, req services.AnswerRequest) *services.AnswerResult {
	s.lastReq = req
	return &services.AnswerResult{Answer: s.answer}
}

func (s *stubAssistant) IndexStats(_ context.Context) (int, error) { return s.count, s.err }

func (s *stubAssistant) ClearIndex() error {
	if s.err != nil {
		return s.err
	}
	s.clearedIndex = true
	return nil
}

func (s *stubAssistant) UpdatePrompt(_ context.Context, prompt, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.updatedPrompt = prompt
	return nil
}

func (s *stubAssistant) ClearUserHistory(_ context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	s.clearedUser = userID
	return nil
}

func (s *stubAssistant) ClearAllHistory(_ context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.clearedAll = true
	return nil
}

func newTestRouter(assistant *stubAssistant) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ctrl := NewRAGController(assistant)
	router := gin.New()
	api := router.Group("/api/v1")
	{
		api.POST("/query", ctrl.Query)
		api.PUT("/prompt", ctrl.UpdatePrompt)
		api.GET("/index/stats", ctrl.IndexStats)
		api.DELETE("/index", ctrl.ClearIndex)
		api.DELETE("/history/:user", ctrl.ClearUserHistory)
		api.DELETE("/history", ctrl.ClearAllHistory)
	}
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestQueryEndpoint(t *testing.T) {
	assistant := &stubAssistant{answer: "42"}
	router := newTestRouter(assistant)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/query",
		`{"user_id":"U1","query":"what is the answer"}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"answer":"42"`)
	assert.Equal(t, "U1", assistant.lastReq.UserID)
	assert.Equal(t, "what is the answer", assistant.lastReq.Message)
}

func TestQueryEndpoint_RejectsBadBody(t *testing.T) {
	router := newTestRouter(&stubAssistant{})

	resp := doJSON(t, router, http.MethodPost, "/api/v1/query", `{"user_id":"U1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdatePromptEndpoint(t *testing.T) {
	assistant := &stubAssistant{}
	router := newTestRouter(assistant)

	resp := doJSON(t, router, http.MethodPut, "/api/v1/prompt",
		`{"prompt":"Be concise.","updated_by":"ops"}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Be concise.", assistant.updatedPrompt)
}

func TestUpdatePromptEndpoint_StoreFailure(t *testing.T) {
	router := newTestRouter(&stubAssistant{err: assert.AnError})

	resp := doJSON(t, router, http.MethodPut, "/api/v1/prompt",
		`{"prompt":"Be concise.","updated_by":"ops"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestIndexStatsEndpoint(t *testing.T) {
	router := newTestRouter(&stubAssistant{count: 7})

	resp := doJSON(t, router, http.MethodGet, "/api/v1/index/stats", "")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"chunks":7`)
	assert.Contains(t, resp.Body.String(), `"loaded":true`)
}

func TestClearIndexEndpoint(t *testing.T) {
	assistant := &stubAssistant{}
	router := newTestRouter(assistant)

	resp := doJSON(t, router, http.MethodDelete, "/api/v1/index", "")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, assistant.clearedIndex)
}

func TestClearHistoryEndpoints(t *testing.T) {
	assistant := &stubAssistant{}
	router := newTestRouter(assistant)

	resp := doJSON(t, router, http.MethodDelete, "/api/v1/history/U5", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "U5", assistant.clearedUser)

	resp = doJSON(t, router, http.MethodDelete, "/api/v1/history", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, assistant.clearedAll)
}
