package services

import (
	"context"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Category buckets a request's intent. It only flavors the guidance in the
// assembled system segment; it never gates retrieved context or attachments.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryMixed    Category = "mixed"
)

// anaphoricWords mark queries that refer back to something not in the inputs
// of this turn ("summarize this", "what about the attached file").
var anaphoricWords = []string{"this", "that", "above", "attached", "uploaded", "shown"}

// QueryClassifier labels a request as general/document/image/mixed using
// deterministic heuristics first and one cheap model call only when the
// phrasing is anaphoric ("summarize this", "what about the attached ...").
type QueryClassifier struct {
	model llms.Model
}

func NewQueryClassifier(model llms.Model) *QueryClassifier {
	return &QueryClassifier{model: model}
}

// Classify never fails: any fallback error degrades to CategoryGeneral. The
// branch taken is logged so misclassifications can be traced.
func (c *QueryClassifier) Classify(ctx context.Context, message, fileText string, imageCount int) Category {
	text := strings.ToLower(strings.TrimSpace(message))
	hasFileText := strings.TrimSpace(fileText) != ""

	// Explicit signals from the inputs themselves decide without a model.
	switch {
	case imageCount > 0 && hasFileText:
		log.Println("CLASSIFIER: heuristic -> mixed (images and file text present)")
		return CategoryMixed
	case imageCount > 0:
		log.Println("CLASSIFIER: heuristic -> image (images present)")
		return CategoryImage
	case hasFileText:
		log.Println("CLASSIFIER: heuristic -> document (file text present)")
		return CategoryDocument
	}

	if !containsAny(text, anaphoricWords) {
		log.Println("CLASSIFIER: heuristic -> general")
		return CategoryGeneral
	}

	label := c.modelClassify(ctx, message)
	log.Printf("CLASSIFIER: model fallback -> %s", label)
	return label
}

func (c *QueryClassifier) modelClassify(ctx context.Context, message string) Category {
	if c.model == nil {
		return CategoryGeneral
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem,
			"You are a classifier. Return only one word: general, document, image, or mixed."),
		llms.TextParts(llms.ChatMessageTypeHuman, message),
	}
	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil || len(resp.Choices) == 0 {
		log.Printf("CLASSIFIER: model fallback failed (%v), defaulting to general", err)
		return CategoryGeneral
	}
	label := strings.ToLower(strings.TrimSpace(resp.Choices[0].Content))
	switch Category(label) {
	case CategoryGeneral, CategoryDocument, CategoryImage, CategoryMixed:
		return Category(label)
	}
	log.Printf("CLASSIFIER: model returned unknown label %q, defaulting to general", label)
	return CategoryGeneral
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
