package services

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Attachment is one inbound file: its Slack-declared name and type plus the
// downloaded bytes.
type Attachment struct {
	Name     string
	Filetype string
	Data     []byte
}

// AnswerRequest is one user turn: the message text and any attachments.
type AnswerRequest struct {
	UserID      string
	Message     string
	Attachments []Attachment
}

// AnswerResult is the outcome of one turn. Warnings collect per-attachment
// problems (unsupported type, failed analysis) that are reported to the user
// inline without aborting the rest of the request.
type AnswerResult struct {
	Answer        string
	ExtractedText string
	Warnings      []string
}

// AssistantService runs the request pipeline and exposes the administrative
// operations the Slack commands and the ops API share.
type AssistantService interface {
	Answer(ctx context.Context, req AnswerRequest) *AnswerResult
	IndexStats(ctx context.Context) (int, error)
	ClearIndex() error
	UpdatePrompt(ctx context.Context, prompt, updatedBy string) error
	ClearUserHistory(ctx context.Context, userID string) error
	ClearAllHistory(ctx context.Context) error
}

// assistantImpl wires the chunker, vector index, assembler, classifier and
// dispatcher into the per-request sequence: extract, index, classify,
// assemble, dispatch.
type assistantImpl struct {
	chunker    *Chunker
	index      *VectorStore
	assembler  *ContextAssembler
	classifier *QueryClassifier
	dispatcher *Dispatcher
	store      InteractionStore
	prompts    PromptStore
}

// NewAssistantService creates the assistant with all its collaborators.
func NewAssistantService(
	chunker *Chunker,
	index *VectorStore,
	assembler *ContextAssembler,
	classifier *QueryClassifier,
	dispatcher *Dispatcher,
	store InteractionStore,
	prompts PromptStore,
) AssistantService {
	return &assistantImpl{
		chunker:    chunker,
		index:      index,
		assembler:  assembler,
		classifier: classifier,
		dispatcher: dispatcher,
		store:      store,
		prompts:    prompts,
	}
}

// Answer executes the four pipeline stages strictly in sequence for this
// request. It never returns an error: every failure either degrades (missing
// context, skipped attachment) or collapses to the dispatcher's fallback.
func (a *assistantImpl) Answer(ctx context.Context, req AnswerRequest) *AnswerResult {
	result := &AnswerResult{}

	// Stage 1: extraction. Document types become text, image types go
	// through the vision path; the raw image bytes are also kept for the
	// current turn. A failing attachment only costs a warning.
	var images [][]byte
	extracted := ""
	for _, att := range req.Attachments {
		if IsImageType(att.Filetype) {
			analysis, err := a.dispatcher.AnalyzeImage(ctx, att.Data)
			if err != nil {
				log.Printf("SERVICE: Image analysis failed for %s: %v", att.Name, err)
				result.Warnings = append(result.Warnings, fmt.Sprintf("⚠️ Could not analyze image `%s`.", att.Name))
				continue
			}
			images = append(images, att.Data)
			extracted = appendSection(extracted, analysis)
			continue
		}

		text, err := ExtractText(att.Data, att.Filetype)
		if err != nil {
			if errors.Is(err, ErrUnsupportedFileType) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("⚠️ Unsupported file type: `%s`", att.Filetype))
			} else {
				log.Printf("SERVICE: Extraction failed for %s: %v", att.Name, err)
				result.Warnings = append(result.Warnings, fmt.Sprintf("⚠️ Could not read `%s`.", att.Name))
			}
			continue
		}
		extracted = appendSection(extracted, text)
	}
	result.ExtractedText = extracted

	// Stage 2: index mutation. New content is appended so earlier uploads
	// stay retrievable; a failing embedding backend degrades to answering
	// without the new context instead of failing the request.
	if chunks := a.chunker.Split(extracted); len(chunks) > 0 {
		if err := a.index.Append(ctx, chunks); err != nil {
			log.Printf("SERVICE: Could not index uploaded content: %v", err)
			result.Warnings = append(result.Warnings, "⚠️ Document context is temporarily unavailable; answering without it.")
		}
	}

	// Stage 3: classification and assembly.
	category := a.classifier.Classify(ctx, req.Message, extracted, len(images))
	messages := a.assembler.Assemble(ctx, AssembleInput{
		UserID:        req.UserID,
		Message:       req.Message,
		ExtractedText: extracted,
		Images:        images,
		Category:      category,
	})

	// Stage 4: dispatch.
	result.Answer = a.dispatcher.Dispatch(ctx, messages)
	return result
}

func (a *assistantImpl) IndexStats(ctx context.Context) (int, error) {
	return a.index.Count()
}

func (a *assistantImpl) ClearIndex() error {
	return a.index.Clear()
}

func (a *assistantImpl) UpdatePrompt(ctx context.Context, prompt, updatedBy string) error {
	return a.prompts.UpdateSystemPrompt(ctx, prompt, updatedBy)
}

func (a *assistantImpl) ClearUserHistory(ctx context.Context, userID string) error {
	return a.store.ClearUserInteractions(ctx, userID)
}

func (a *assistantImpl) ClearAllHistory(ctx context.Context) error {
	return a.store.ClearAllInteractions(ctx)
}

func appendSection(base, extra string) string {
	if extra == "" {
		return base
	}
	if base == "" {
		return extra
	}
	return base + "\n\n" + extra
}
