package models

// Chunk is a bounded contiguous slice of source text produced by the chunker.
// Chunks from one document are ordered; each chunk repeats the last
// OverlapWords words of its predecessor so that context spanning a chunk
// boundary is not lost. Dropping the first OverlapWords words of every chunk
// after the first and joining the rest reconstructs the (whitespace
// normalized) source text.
type Chunk struct {
	Text         string `json:"text"`
	Tokens       int    `json:"tokens"`
	OverlapWords int    `json:"overlap_words"`
}
