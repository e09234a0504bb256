package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github/itish2003/stakebot/models"
	"github/itish2003/stakebot/services"
)

// RAGController exposes the assistant's operations over HTTP for operators
// without Slack access. It depends on the AssistantService to perform the
// actual business logic.
type RAGController struct {
	assistant services.AssistantService
}

// NewRAGController is a constructor function that creates a new
// RAGController. This is called from main.go to inject the service
// dependency.
func NewRAGController(assistant services.AssistantService) *RAGController {
	return &RAGController{assistant: assistant}
}

// Query is the Gin handler for POST /api/v1/query. It runs the full RAG
// pipeline for a one-off question; the assistant never fails the request, so
// the fallback answer is still a 200.
func (c *RAGController) Query(ctx *gin.Context) {
	var req models.QueryTextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result := c.assistant.Answer(ctx.Request.Context(), services.AnswerRequest{
		UserID:  req.UserID,
		Message: req.Query,
	})
	ctx.JSON(http.StatusOK, models.QueryRAGResponse{Answer: result.Answer})
}

// UpdatePrompt is the Gin handler for PUT /api/v1/prompt. Authorization is
// the reverse proxy's concern here; Slack-side updates check admin rights.
func (c *RAGController) UpdatePrompt(ctx *gin.Context) {
	var req models.UpdatePromptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := c.assistant.UpdatePrompt(ctx.Request.Context(), req.Prompt, req.UpdatedBy); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update system prompt"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "System prompt updated"})
}

// IndexStats is the Gin handler for GET /api/v1/index/stats.
func (c *RAGController) IndexStats(ctx *gin.Context) {
	count, err := c.assistant.IndexStats(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read index state"})
		return
	}
	ctx.JSON(http.StatusOK, models.IndexStatsResponse{Chunks: count, Loaded: count > 0})
}

// ClearIndex is the Gin handler for DELETE /api/v1/index. It removes the
// vector index from memory and disk; the next upload starts a fresh index.
func (c *RAGController) ClearIndex(ctx *gin.Context) {
	if err := c.assistant.ClearIndex(); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear index"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Index cleared"})
}

// ClearUserHistory is the Gin handler for DELETE /api/v1/history/:user.
func (c *RAGController) ClearUserHistory(ctx *gin.Context) {
	userID := ctx.Param("user")
	if userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Missing user id"})
		return
	}
	if err := c.assistant.ClearUserHistory(ctx.Request.Context(), userID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear user history"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "History cleared for user " + userID})
}

// ClearAllHistory is the Gin handler for DELETE /api/v1/history.
func (c *RAGController) ClearAllHistory(ctx *gin.Context) {
	if err := c.assistant.ClearAllHistory(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear interactions"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "All interactions cleared"})
}
