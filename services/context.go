package services

import (
	"context"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/llms"
)

// ContextAssembler builds the ordered message sequence for one request:
// system segment first, prior interactions in chronological order under the
// history token budget, and the current turn (message, bounded extracted
// text, inline images) last so the backend sees the question most recently.
type ContextAssembler struct {
	prompts PromptStore
	store   InteractionStore
	index   *VectorStore
}

func NewContextAssembler(prompts PromptStore, store InteractionStore, index *VectorStore) *ContextAssembler {
	return &ContextAssembler{prompts: prompts, store: store, index: index}
}

// AssembleInput carries everything the assembler needs for one turn.
type AssembleInput struct {
	UserID        string
	Message       string
	ExtractedText string
	Images        [][]byte
	Category      Category
}

// Assemble never fails the request for degraded collaborators: an unreachable
// prompt store falls back to the default prompt, an unreachable index or
// history store degrades to an empty segment. All degradations are logged.
func (a *ContextAssembler) Assemble(ctx context.Context, in AssembleInput) []llms.MessageContent {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.systemSegment(ctx, in)),
	}
	messages = append(messages, a.historySegment(ctx, in.UserID)...)
	return append(messages, a.currentTurn(in))
}

// systemSegment combines the stored system prompt, instructional framing and
// any retrieved context. The no-context sentinel is backend plumbing: it is
// translated into the no-context framing here and never placed in the prompt.
func (a *ContextAssembler) systemSegment(ctx context.Context, in AssembleInput) string {
	prompt, err := a.prompts.GetSystemPrompt(ctx)
	if err != nil {
		log.Printf("ASSEMBLER: Falling back to default system prompt: %v", err)
	}

	ragContext := ""
	if a.index != nil {
		retrieved, err := a.index.Query(ctx, in.Message, DefaultTopK)
		if err != nil {
			log.Printf("ASSEMBLER: Retrieval unavailable, answering without context: %v", err)
		} else if retrieved != NoContextSentinel {
			ragContext = strings.TrimSpace(retrieved)
		}
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n")
	if ragContext != "" {
		sb.WriteString("Use all available context to answer queries accurately.\n")
		sb.WriteString("- Use the retrieved context below when relevant.\n")
		sb.WriteString("- Focus on document or file content if the query relates to a file.\n")
		sb.WriteString("- Combine conversation history and context intelligently.\n")
		sb.WriteString("- Always be polite, professional, and clear.\n")
		sb.WriteString("- Avoid mentioning internal system details.\n")
	} else {
		sb.WriteString("Answer general queries using your knowledge and the conversation history.\n")
		sb.WriteString("- Provide polite and friendly greetings when appropriate.\n")
		sb.WriteString("- Keep answers clear, accurate, and professional.\n")
		sb.WriteString("- Avoid referring to stored documents unless they exist.\n")
	}
	if guidance := categoryGuidance(in.Category); guidance != "" {
		sb.WriteString(guidance)
		sb.WriteString("\n")
	}
	if ragContext != "" {
		sb.WriteString("\nRetrieved Context:\n")
		sb.WriteString(ragContext)
	}
	return sb.String()
}

// historySegment fetches the most recent interactions (newest-first from the
// store), keeps the newest ones that fit the token budget and presents them
// oldest-first as user/assistant turn pairs.
func (a *ContextAssembler) historySegment(ctx context.Context, userID string) []llms.MessageContent {
	if a.store == nil || userID == "" {
		return nil
	}
	interactions, err := a.store.GetUserInteractions(ctx, userID, HistoryMaxInteractions)
	if err != nil {
		log.Printf("ASSEMBLER: History unavailable for user %s: %v", userID, err)
		return nil
	}

	// Walk newest to oldest so truncation always drops the oldest turns.
	budget := HistoryTokenBudget
	kept := 0
	for _, in := range interactions {
		cost := EstimateTokens(in.MessageText) + EstimateTokens(in.ResponseText) + EstimateTokens(in.ExtractedText)
		if cost > budget {
			break
		}
		budget -= cost
		kept++
	}

	messages := make([]llms.MessageContent, 0, kept*2)
	for i := kept - 1; i >= 0; i-- {
		in := interactions[i]
		assistant := in.ResponseText
		if strings.TrimSpace(in.ExtractedText) != "" {
			assistant += "\nExtracted Info: " + in.ExtractedText
		}
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeHuman, in.MessageText),
			llms.TextParts(llms.ChatMessageTypeAI, assistant),
		)
	}
	return messages
}

// currentTurn builds the final human message: query text, capped extracted
// text, then inline image payloads with MIME types sniffed from the bytes.
func (a *ContextAssembler) currentTurn(in AssembleInput) llms.MessageContent {
	parts := []llms.ContentPart{llms.TextPart(in.Message)}
	if extracted := strings.TrimSpace(in.ExtractedText); extracted != "" {
		parts = append(parts, llms.TextPart("Extracted Text:\n"+TruncateToTokens(extracted, ExtractedTextTokenCeiling)))
	}
	for _, img := range in.Images {
		if len(img) == 0 {
			continue
		}
		mime := mimetype.Detect(img)
		if !strings.HasPrefix(mime.String(), "image/") {
			log.Printf("ASSEMBLER: Skipping non-image attachment payload (%s).", mime.String())
			continue
		}
		parts = append(parts, llms.BinaryPart(mime.String(), img))
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts}
}

func categoryGuidance(c Category) string {
	switch c {
	case CategoryDocument:
		return "- The query concerns an uploaded document; ground your answer in its content."
	case CategoryImage:
		return "- The query concerns an uploaded image; describe and use what it shows."
	case CategoryMixed:
		return "- The query concerns both uploaded documents and images; use both."
	default:
		return ""
	}
}

// TruncateToTokens bounds text to roughly budget tokens using the shared
// estimator, cutting back to the previous word boundary where possible and
// never inside a multi-byte rune.
func TruncateToTokens(text string, budget int) string {
	if budget <= 0 || EstimateTokens(text) <= budget {
		return text
	}
	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}
	for maxChars > 0 && !utf8.RuneStart(text[maxChars]) {
		maxChars--
	}
	cut := text[:maxChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}
