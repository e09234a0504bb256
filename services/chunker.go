package services

import (
	"strings"

	"github/itish2003/stakebot/models"
)

// Chunker splits extracted text into token-bounded, overlapping chunks for
// the vector index. Splitting is word-level: chunk boundaries never fall
// inside a word, and the word sequence of the source text is preserved, so
// joining the chunks with their overlap prefixes removed reconstructs the
// whitespace-normalized original.
type Chunker struct {
	Budget  int // max estimated tokens per chunk
	Overlap int // approximate tokens repeated from the previous chunk
}

// NewChunker returns a Chunker with the given budgets. Non-positive or
// inconsistent values fall back to the configured defaults.
func NewChunker(budget, overlap int) *Chunker {
	if budget <= 0 {
		budget = ChunkTokenBudget
	}
	if overlap < 0 || overlap >= budget {
		overlap = ChunkOverlapTokens
		if overlap >= budget {
			overlap = 0
		}
	}
	return &Chunker{Budget: budget, Overlap: overlap}
}

// Split chunks text into a finite ordered sequence. Empty or all-whitespace
// input yields no chunks. A single word whose estimate alone exceeds the
// budget is emitted as its own oversized chunk rather than dropped.
func (c *Chunker) Split(text string) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks     []models.Chunk
		cur        []string
		curLen     int // chars of strings.Join(cur, " ")
		curOverlap int // leading words of cur carried from the previous chunk
	)

	flush := func() {
		joined := strings.Join(cur, " ")
		chunks = append(chunks, models.Chunk{
			Text:         joined,
			Tokens:       EstimateTokens(joined),
			OverlapWords: curOverlap,
		})
		carry := c.trailingWords(cur)
		cur = append(cur[:0:0], carry...)
		curOverlap = len(carry)
		curLen = joinedLen(cur)
	}

	for _, w := range words {
		candLen := curLen + len(w)
		if len(cur) > 0 {
			candLen++ // joining space
		}

		if tokensForLen(candLen) > c.Budget {
			if len(cur) > curOverlap {
				// Close the chunk on the words we have; retry w against the
				// freshly seeded one.
				flush()
				candLen = curLen + len(w)
				if len(cur) > 0 {
					candLen++
				}
			}
			if tokensForLen(candLen) > c.Budget && len(cur) > 0 && tokensForLen(len(w)) <= c.Budget {
				// The carried overlap alone does not leave room for w even
				// though w fits a chunk by itself: start this chunk without
				// the overlap rather than emit an avoidably oversized chunk.
				cur = cur[:0]
				curLen = 0
				curOverlap = 0
			}
		}

		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, w)
		curLen += len(w)

		if tokensForLen(curLen) > c.Budget {
			// Unbreakable oversized word: emit immediately.
			flush()
		}
	}

	if len(cur) > curOverlap {
		joined := strings.Join(cur, " ")
		chunks = append(chunks, models.Chunk{
			Text:         joined,
			Tokens:       EstimateTokens(joined),
			OverlapWords: curOverlap,
		})
	}
	return chunks
}

// trailingWords selects the suffix of chunk words to carry into the next
// chunk, bounded by the overlap token budget. It never carries the whole
// chunk, so every chunk consumes at least one new word.
func (c *Chunker) trailingWords(chunkWords []string) []string {
	if c.Overlap <= 0 || len(chunkWords) == 0 {
		return nil
	}
	chars := 0
	start := len(chunkWords)
	for start > 1 {
		cand := chars + len(chunkWords[start-1])
		if chars > 0 {
			cand++
		}
		if tokensForLen(cand) > c.Overlap {
			break
		}
		chars = cand
		start--
	}
	return chunkWords[start:]
}

// Reassemble joins chunks with their overlap prefixes removed. It is the
// inverse of Split up to whitespace normalization and exists mostly so the
// chunking invariant is checkable.
func Reassemble(chunks []models.Chunk) string {
	var sb strings.Builder
	for i, ch := range chunks {
		words := strings.Fields(ch.Text)
		if i > 0 && ch.OverlapWords <= len(words) {
			words = words[ch.OverlapWords:]
		}
		for _, w := range words {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w)
		}
	}
	return sb.String()
}

func joinedLen(words []string) int {
	if len(words) == 0 {
		return 0
	}
	n := len(words) - 1
	for _, w := range words {
		n += len(w)
	}
	return n
}
