package models

// Feedback markers attached to an interaction by the Slack feedback buttons.
const (
	FeedbackPositive   = "👍"
	FeedbackNegative   = "👎"
	FeedbackIrrelevant = "❌"
)

// Interaction is one logged user/assistant exchange. The field names match
// the columns of the Supabase `interactions` table. SlackTS is the timestamp
// of the (updated) reply message and is the only handle available for
// attaching feedback after the fact.
type Interaction struct {
	SlackUserID   string `json:"slack_user_id"`
	SlackUserName string `json:"slack_user_name"`
	Organization  string `json:"organization"`
	MessageText   string `json:"message_text"`
	ExtractedText string `json:"extracted_text"`
	ResponseText  string `json:"response_text"`
	PromptVersion string `json:"prompt_version"`
	Feedback      string `json:"feedback,omitempty"`
	SlackTS       string `json:"slack_ts"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// PromptVersion is a row of the `system_prompt` table. The current prompt is
// the row with the newest UpdatedAt; older rows are kept as an audit trail.
type PromptVersion struct {
	Prompt    string `json:"prompt"`
	UpdatedBy string `json:"updated_by"`
	UpdatedAt string `json:"updated_at"`
}
