package services

// Token budgets and limits for the whole pipeline. The original deployment
// had these scattered across call sites with conflicting values; they live
// here so that chunking, history truncation and extracted-text capping all
// agree on one set of numbers, measured with the same EstimateTokens scheme.
const (
	// ChunkTokenBudget is the maximum estimated token count of a single
	// index chunk. Small chunks keep retrieval granular.
	ChunkTokenBudget = 500

	// ChunkOverlapTokens is the approximate overlap between consecutive
	// chunks, so content spanning a boundary is retrievable from either side.
	ChunkOverlapTokens = 50

	// HistoryTokenBudget caps the cumulative size of the history segment in
	// the assembled prompt. Older turns are dropped first.
	HistoryTokenBudget = 7000

	// HistoryMaxInteractions is the most prior exchanges ever fetched from
	// the store for one request, regardless of token budget.
	HistoryMaxInteractions = 50

	// ExtractedTextTokenCeiling bounds the extracted file/image text placed
	// in the current turn, to avoid runaway prompt size on large uploads.
	ExtractedTextTokenCeiling = 2500

	// DefaultTopK is the number of chunks retrieved from the vector index
	// per query.
	DefaultTopK = 5

	// SlackMessageLimit is the largest reply we render into a single Slack
	// message update.
	SlackMessageLimit = 1000
)

// EstimateTokens gives a rough token count using a 4-characters-per-token
// heuristic. It is deliberately the only estimator in the codebase: the
// chunker, the history budget and the extracted-text ceiling must not
// disagree about what a token is.
func EstimateTokens(text string) int {
	return tokensForLen(len(text))
}

// tokensForLen is EstimateTokens for a known character count, used where the
// text is not materialized yet.
func tokensForLen(n int) int {
	return (n + 3) / 4
}
