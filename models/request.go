package models

type QueryTextRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query" binding:"required"`
}

type UpdatePromptRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	UpdatedBy string `json:"updated_by" binding:"required"`
}
