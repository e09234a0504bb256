package services

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github/itish2003/stakebot/models"
)

// tiny but valid PNG signature, enough for content sniffing.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func textOf(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	var sb strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(llms.TextContent); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

func emptyIndex(t *testing.T) *VectorStore {
	t.Helper()
	return NewVectorStore(filepath.Join(t.TempDir(), "index.gob"), &fakeEmbedder{})
}

func TestAssemble_OrderingInvariant(t *testing.T) {
	store := &fakeInteractionStore{interactions: []models.Interaction{
		// Store order is newest first.
		{MessageText: "third question", ResponseText: "third answer", CreatedAt: "t3"},
		{MessageText: "second question", ResponseText: "second answer", CreatedAt: "t2"},
		{MessageText: "first question", ResponseText: "first answer", CreatedAt: "t1"},
	}}
	a := NewContextAssembler(&fakePromptStore{}, store, emptyIndex(t))

	msgs := a.Assemble(context.Background(), AssembleInput{UserID: "U1", Message: "now"})

	require.Len(t, msgs, 1+3*2+1)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)

	// History must be chronological: t1 before t2 before t3.
	assert.Equal(t, "first question", textOf(t, msgs[1]))
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, "first answer", textOf(t, msgs[2]))
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, "second question", textOf(t, msgs[3]))
	assert.Equal(t, "third question", textOf(t, msgs[5]))

	// Current turn last.
	last := msgs[len(msgs)-1]
	assert.Equal(t, llms.ChatMessageTypeHuman, last.Role)
	assert.Equal(t, "now", textOf(t, last))
}

func TestAssemble_HistoryTokenBudgetDropsOldestTurns(t *testing.T) {
	big := strings.Repeat("w ", 2*HistoryTokenBudget) // each turn alone blows half the budget
	store := &fakeInteractionStore{interactions: []models.Interaction{
		{MessageText: "newest", ResponseText: "short answer"},
		{MessageText: "older", ResponseText: big},
		{MessageText: "oldest", ResponseText: "tiny"},
	}}
	a := NewContextAssembler(&fakePromptStore{}, store, emptyIndex(t))

	msgs := a.Assemble(context.Background(), AssembleInput{UserID: "U1", Message: "now"})

	// Only the newest interaction fits; truncation stops at the first record
	// that exceeds the remaining budget, never skipping to an older one.
	require.Len(t, msgs, 1+2+1)
	assert.Equal(t, "newest", textOf(t, msgs[1]))
}

func TestAssemble_SentinelNeverEntersPrompt(t *testing.T) {
	a := NewContextAssembler(&fakePromptStore{}, &fakeInteractionStore{}, emptyIndex(t))

	msgs := a.Assemble(context.Background(), AssembleInput{UserID: "U1", Message: "hello"})

	for _, m := range msgs {
		assert.NotContains(t, textOf(t, m), NoContextSentinel)
	}
	system := textOf(t, msgs[0])
	assert.Contains(t, system, DefaultSystemPrompt)
	assert.NotContains(t, system, "Retrieved Context")
}

func TestAssemble_RetrievedContextInSystemSegment(t *testing.T) {
	index := emptyIndex(t)
	require.NoError(t, index.Rebuild(context.Background(), chunksFrom("the quarterly report shows growth")))

	prompts := &fakePromptStore{prompt: "Be concise."}
	a := NewContextAssembler(prompts, &fakeInteractionStore{}, index)

	msgs := a.Assemble(context.Background(), AssembleInput{UserID: "U1", Message: "the quarterly report shows growth"})

	system := textOf(t, msgs[0])
	assert.Contains(t, system, "Be concise.")
	assert.Contains(t, system, "Retrieved Context")
	assert.Contains(t, system, "the quarterly report shows growth")
}

func TestAssemble_CurrentTurnExtractedTextIsCapped(t *testing.T) {
	a := NewContextAssembler(&fakePromptStore{}, &fakeInteractionStore{}, emptyIndex(t))
	huge := strings.Repeat("extract ", 4*ExtractedTextTokenCeiling)

	msgs := a.Assemble(context.Background(), AssembleInput{UserID: "U1", Message: "summarize", ExtractedText: huge})

	last := textOf(t, msgs[len(msgs)-1])
	assert.Contains(t, last, "Extracted Text:")
	assert.LessOrEqual(t, EstimateTokens(last), ExtractedTextTokenCeiling+EstimateTokens("summarize")+EstimateTokens("Extracted Text:\n")+1)
}

func TestAssemble_ImagePartsUseSniffedMIME(t *testing.T) {
	a := NewContextAssembler(&fakePromptStore{}, &fakeInteractionStore{}, emptyIndex(t))

	msgs := a.Assemble(context.Background(), AssembleInput{
		UserID:  "U1",
		Message: "what is in this image",
		Images:  [][]byte{pngBytes, []byte("plainly not an image")},
	})

	last := msgs[len(msgs)-1]
	var binaries []llms.BinaryContent
	for _, part := range last.Parts {
		if b, ok := part.(llms.BinaryContent); ok {
			binaries = append(binaries, b)
		}
	}
	// The text payload is skipped; the png is inlined with a sniffed type.
	require.Len(t, binaries, 1)
	assert.Equal(t, "image/png", binaries[0].MIMEType)
	assert.Equal(t, pngBytes, binaries[0].Data)
}

func TestAssemble_CategoryAdjustsGuidanceOnly(t *testing.T) {
	index := emptyIndex(t)
	require.NoError(t, index.Rebuild(context.Background(), chunksFrom("vector context here")))
	a := NewContextAssembler(&fakePromptStore{}, &fakeInteractionStore{}, index)

	general := a.Assemble(context.Background(), AssembleInput{Message: "vector context here", Category: CategoryGeneral})
	document := a.Assemble(context.Background(), AssembleInput{Message: "vector context here", Category: CategoryDocument})

	// Guidance differs with the category, but context inclusion does not.
	assert.NotEqual(t, textOf(t, general[0]), textOf(t, document[0]))
	assert.Contains(t, textOf(t, general[0]), "vector context here")
	assert.Contains(t, textOf(t, document[0]), "vector context here")
}

func TestAssemble_HistoryStoreFailureDegradesToEmptyHistory(t *testing.T) {
	store := &fakeInteractionStore{err: assert.AnError}
	a := NewContextAssembler(&fakePromptStore{}, store, emptyIndex(t))

	msgs := a.Assemble(context.Background(), AssembleInput{UserID: "U1", Message: "hello"})
	require.Len(t, msgs, 2) // system + current turn only
}
