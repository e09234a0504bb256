package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/llms"
)

// FallbackAnswer is the fixed user-safe reply when the completion backend
// fails. Partial or garbled backend output is never surfaced.
const FallbackAnswer = "❌ Something went wrong while processing your message. Please try again."

const imageAnalysisPrompt = `You are an expert document/image analyzer.
Your task:
- Extract all text clearly from the image (like OCR).
- Summarize key entities (names, dates, amounts, references).
- If seals, signatures, or logos are present, describe them.
- Maintain structure if possible (tables, sections).
- If image is unclear, say 'Text partially unreadable'.`

// Dispatcher sends an assembled message sequence to the completion backend.
// It owns the generation parameters and the user-safe failure translation.
// Retries are not attempted beyond whatever the backend client does itself.
type Dispatcher struct {
	model       llms.Model
	modelName   string
	temperature float64
	maxTokens   int
}

func NewDispatcher(model llms.Model, modelName string, temperature float64, maxTokens int) *Dispatcher {
	return &Dispatcher{model: model, modelName: modelName, temperature: temperature, maxTokens: maxTokens}
}

// Dispatch returns the generated text with surrounding whitespace trimmed.
// Backend failures are logged in full and collapse to FallbackAnswer; no
// error crosses this boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []llms.MessageContent) string {
	opts := []llms.CallOption{
		llms.WithModel(d.modelName),
		llms.WithTemperature(d.temperature),
	}
	if d.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(d.maxTokens))
	}

	resp, err := d.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		log.Printf("DISPATCH ERROR: completion backend call failed (model=%s, messages=%d): %v", d.modelName, len(messages), err)
		return FallbackAnswer
	}
	if len(resp.Choices) == 0 {
		log.Printf("DISPATCH ERROR: completion backend returned no choices (model=%s)", d.modelName)
		return FallbackAnswer
	}
	return strings.TrimSpace(resp.Choices[0].Content)
}

// AnalyzeImage extracts text and entities from an image via the multimodal
// backend. Unlike Dispatch this propagates failures: the caller treats them
// as attachment extraction errors and reports them inline.
func (d *Dispatcher) AnalyzeImage(ctx context.Context, img []byte) (string, error) {
	mime := mimetype.Detect(img).String()
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, imageAnalysisPrompt),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart("Please analyze this image and explain all of the information in detail."),
				llms.BinaryPart(mime, img),
			},
		},
	}

	resp, err := d.model.GenerateContent(ctx, messages, llms.WithModel(d.modelName), llms.WithTemperature(0.5))
	if err != nil {
		return "", fmt.Errorf("image analysis call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("image analysis returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
