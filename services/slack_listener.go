package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github/itish2003/stakebot/models"
)

// SlackAPI is the slice of the Slack Web API the listener uses. The concrete
// *slack.Client satisfies it; tests substitute a fake.
type SlackAPI interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetTeamInfoContext(ctx context.Context) (*slack.TeamInfo, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	GetFileContext(ctx context.Context, downloadURL string, writer io.Writer) error
}

var feedbackByAction = map[string]string{
	"feedback_like":    models.FeedbackPositive,
	"feedback_dislike": models.FeedbackNegative,
	"feedback_error":   models.FeedbackIrrelevant,
}

// SlackListener turns Slack events into assistant requests and persists the
// completed exchanges.
type SlackListener struct {
	api           SlackAPI
	assistant     AssistantService
	store         InteractionStore
	promptVersion string
}

func NewSlackListener(api SlackAPI, assistant AssistantService, store InteractionStore, promptVersion string) *SlackListener {
	return &SlackListener{api: api, assistant: assistant, store: store, promptVersion: promptVersion}
}

// HandleMessageEvent runs the full pipeline for one user message: open a DM,
// post a placeholder, download attachments, answer, update the placeholder
// with the reply and feedback buttons, then persist the interaction. A failed
// history write is logged but never blocks the already-delivered answer.
// File shares arrive separately because the parsed message event does not
// carry them; see filesFromPayload.
func (l *SlackListener) HandleMessageEvent(ctx context.Context, ev *slackevents.MessageEvent, files []slackevents.File) {
	if ev.SubType == "bot_message" || ev.BotID != "" || ev.User == "" {
		return // ignore our own and other bots' messages
	}

	channel, _, _, err := l.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{ev.User}})
	if err != nil {
		log.Printf("SLACK ERROR: Failed to open DM with %s: %v", ev.User, err)
		return
	}
	channelID := channel.ID

	_, thinkingTS, err := l.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText("🤔 Thinking... please wait a moment.", false))
	if err != nil {
		log.Printf("SLACK ERROR: Failed to post placeholder in %s: %v", channelID, err)
		return
	}

	attachments, downloadWarnings := l.downloadFiles(ctx, files)

	result := l.assistant.Answer(ctx, AnswerRequest{
		UserID:      ev.User,
		Message:     strings.TrimSpace(ev.Text),
		Attachments: attachments,
	})

	reply := composeReply(result.Answer, append(downloadWarnings, result.Warnings...))
	if err := l.updateWithFeedbackButtons(ctx, channelID, thinkingTS, reply); err != nil {
		log.Printf("SLACK ERROR: Failed to update reply in %s: %v", channelID, err)
		return
	}

	userName, organization := l.lookupIdentity(ctx, ev.User)
	if err := l.store.SaveInteraction(ctx, models.Interaction{
		SlackUserID:   ev.User,
		SlackUserName: userName,
		Organization:  organization,
		MessageText:   ev.Text,
		ExtractedText: result.ExtractedText,
		ResponseText:  result.Answer,
		PromptVersion: l.promptVersion,
		SlackTS:       thinkingTS,
	}); err != nil {
		// The user already has the answer; losing the record is an
		// operational problem, not a request failure.
		log.Printf("STORE ERROR: Failed to save interaction for %s (ts %s): %v", ev.User, thinkingTS, err)
	}
}

// HandleSlashCommand dispatches /update, /clear and /clear_all and returns
// the response text to show the invoking user.
func (l *SlackListener) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) string {
	switch cmd.Command {
	case "/update":
		newPrompt := strings.TrimSpace(cmd.Text)
		if newPrompt == "" {
			return "⚠️ Please provide a new prompt."
		}
		if !l.isAdmin(ctx, cmd.UserID) {
			return "❌ You are not authorized to update the system prompt."
		}
		if err := l.assistant.UpdatePrompt(ctx, newPrompt, cmd.UserID); err != nil {
			log.Printf("SLACK ERROR: Prompt update failed: %v", err)
			return "❌ Failed to update the system prompt. Please try again."
		}
		return fmt.Sprintf("✅ System prompt updated by <@%s>.", cmd.UserID)

	case "/clear":
		if err := l.assistant.ClearUserHistory(ctx, cmd.UserID); err != nil {
			log.Printf("SLACK ERROR: History clear failed for %s: %v", cmd.UserID, err)
			return "❌ Failed to clear your chat history. Please try again later."
		}
		return "🧹 Your chat history has been cleared from memory."

	case "/clear_all":
		if !l.isAdmin(ctx, cmd.UserID) {
			return "❌ You do not have permission to use this command."
		}
		if err := l.assistant.ClearAllHistory(ctx); err != nil {
			log.Printf("SLACK ERROR: Clear-all failed: %v", err)
			return "❌ Failed to clear all interactions. Please try again later."
		}
		return "🚨 All interactions have been permanently deleted from the database."
	}
	return fmt.Sprintf("⚠️ Unknown command: %s", cmd.Command)
}

// HandleFeedbackAction records a feedback button press against the replied
// message's timestamp and thanks the user ephemerally.
func (l *SlackListener) HandleFeedbackAction(ctx context.Context, callback slack.InteractionCallback) {
	if len(callback.ActionCallback.BlockActions) == 0 {
		return
	}
	action := callback.ActionCallback.BlockActions[0]
	feedback, ok := feedbackByAction[action.ActionID]
	if !ok {
		return
	}

	messageTS := callback.Container.MessageTs
	if err := l.store.UpdateFeedback(ctx, messageTS, feedback); err != nil {
		log.Printf("STORE ERROR: Failed to update feedback for ts %s: %v", messageTS, err)
		return
	}
	if _, err := l.api.PostEphemeralContext(ctx, callback.Channel.ID, callback.User.ID,
		slack.MsgOptionText("Thank you for the feedback: "+feedback, false)); err != nil {
		log.Printf("SLACK ERROR: Failed to post feedback ack: %v", err)
	}
}

// filesFromPayload extracts the `files` array of a message event from the raw
// Events API envelope. The parsed slackevents.MessageEvent drops file shares,
// so they are recovered from the payload the socket client already holds. A
// payload without files (or one that fails to parse) yields none.
func filesFromPayload(payload json.RawMessage) []slackevents.File {
	var parsed struct {
		Event struct {
			Files []slackevents.File `json:"files"`
		} `json:"event"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		log.Printf("SLACK WARN: Could not parse file shares from event payload: %v", err)
		return nil
	}
	return parsed.Event.Files
}

// downloadFiles fetches every attached file. A failed download is reported
// inline for that attachment; the rest of the request continues.
func (l *SlackListener) downloadFiles(ctx context.Context, files []slackevents.File) ([]Attachment, []string) {
	var attachments []Attachment
	var warnings []string
	for _, f := range files {
		var buf bytes.Buffer
		if err := l.api.GetFileContext(ctx, f.URLPrivateDownload, &buf); err != nil {
			log.Printf("SLACK ERROR: Failed to download %s: %v", f.Name, err)
			warnings = append(warnings, fmt.Sprintf("❌ Failed to download `%s`.", f.Name))
			continue
		}
		attachments = append(attachments, Attachment{
			Name:     f.Name,
			Filetype: f.Filetype,
			Data:     buf.Bytes(),
		})
	}
	return attachments, warnings
}

func (l *SlackListener) updateWithFeedbackButtons(ctx context.Context, channelID, ts, text string) error {
	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
	actions := slack.NewActionBlock("feedback",
		slack.NewButtonBlockElement("feedback_like", "thumbs_up",
			slack.NewTextBlockObject(slack.PlainTextType, "👍", false, false)),
		slack.NewButtonBlockElement("feedback_dislike", "thumbs_down",
			slack.NewTextBlockObject(slack.PlainTextType, "👎", false, false)),
		slack.NewButtonBlockElement("feedback_error", "irrelevant",
			slack.NewTextBlockObject(slack.PlainTextType, "❌", false, false)),
	)
	_, _, _, err := l.api.UpdateMessageContext(ctx, channelID, ts,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(section, actions))
	return err
}

func (l *SlackListener) isAdmin(ctx context.Context, userID string) bool {
	user, err := l.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		log.Printf("SLACK ERROR: Failed to check permissions for %s: %v", userID, err)
		return false
	}
	return user.IsAdmin || user.IsOwner
}

func (l *SlackListener) lookupIdentity(ctx context.Context, userID string) (userName, organization string) {
	if user, err := l.api.GetUserInfoContext(ctx, userID); err == nil {
		userName = user.RealName
	} else {
		log.Printf("SLACK WARN: Could not fetch user info for %s: %v", userID, err)
	}
	if team, err := l.api.GetTeamInfoContext(ctx); err == nil {
		organization = team.Name
	} else {
		log.Printf("SLACK WARN: Could not fetch team info: %v", err)
	}
	return userName, organization
}

// composeReply prefixes any per-attachment warnings and bounds the whole
// message to the Slack per-message limit, so warnings never push the reply
// over it.
func composeReply(answer string, warnings []string) string {
	text := answer
	if len(warnings) > 0 {
		text = strings.Join(warnings, "\n") + "\n" + text
	}
	return truncateRunes(text, SlackMessageLimit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// RunSocketMode drives the Socket Mode event loop until ctx is cancelled.
// Each inbound event is handled on its own goroutine; there is no cross-event
// coordination beyond the shared index and stores.
func RunSocketMode(ctx context.Context, client *socketmode.Client, listener *SlackListener) error {
	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				log.Println("SLACK: Connected in Socket Mode.")

			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				client.Ack(*evt.Request)
				if messageEvent, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
					go listener.HandleMessageEvent(ctx, messageEvent, filesFromPayload(evt.Request.Payload))
				}

			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				response := listener.HandleSlashCommand(ctx, cmd)
				client.Ack(*evt.Request, map[string]interface{}{"text": response})

			case socketmode.EventTypeInteractive:
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				client.Ack(*evt.Request)
				if callback.Type == slack.InteractionTypeBlockActions {
					go listener.HandleFeedbackAction(ctx, callback)
				}
			}
		}
	}()
	return client.RunContext(ctx)
}
