package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"

	"github/itish2003/stakebot/models"
)

// NoContextSentinel is returned by Query when the index is empty or absent.
// It is backend instruction only: callers must treat it as "no retrieved
// context" and never surface it in a user-facing answer.
const NoContextSentinel = "⚠️ Vector store is empty. Please upload documents first."

// chunkSeparator joins retrieved chunk texts in similarity rank order.
const chunkSeparator = "\n\n"

type indexEntry struct {
	ID     string
	Text   string
	Vector []float32
}

type indexFile struct {
	Entries []indexEntry
}

// VectorStore is an in-memory embedding index persisted to a single gob file
// at a fixed path. The file is loaded lazily on first use after a process
// restart. The mutex guards the in-memory slice only; concurrent writers to
// the same path race at the file level and the last save wins.
type VectorStore struct {
	mu       sync.Mutex
	path     string
	embedder embeddings.Embedder
	entries  []indexEntry
	loaded   bool
}

// NewVectorStore creates a store persisting to path. Nothing is read from
// disk until the first operation that needs the index.
func NewVectorStore(path string, embedder embeddings.Embedder) *VectorStore {
	return &VectorStore{path: path, embedder: embedder}
}

// Rebuild discards any existing index (memory and disk) and constructs a new
// one from chunks. An empty chunk sequence is a no-op: the current index is
// left untouched.
func (s *VectorStore) Rebuild(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	entries, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.loaded = true
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to persist rebuilt index: %w", err)
	}
	log.Printf("INDEX: Rebuilt with %d chunks.", len(entries))
	return nil
}

// Append loads the existing index if present, adds the chunks' embeddings and
// persists the merged result. With no prior index this degenerates to
// Rebuild. An empty chunk sequence is a no-op.
func (s *VectorStore) Append(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	entries, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.entries = append(s.entries, entries...)
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to persist appended index: %w", err)
	}
	log.Printf("INDEX: Appended %d chunks (total %d).", len(entries), len(s.entries))
	return nil
}

// Query embeds the free-text query and returns the text of the k most
// similar chunks joined in rank order. k <= 0 falls back to DefaultTopK.
// An empty or absent index yields NoContextSentinel, not an error; embedding
// backend failures propagate.
func (s *VectorStore) Query(ctx context.Context, query string, k int) (string, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	s.mu.Lock()
	if err := s.load(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	entries := s.entries
	s.mu.Unlock()

	if len(entries) == 0 {
		return NoContextSentinel, nil
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		ranked = append(ranked, scored{text: e.Text, score: cosineSimilarity(queryVec, e.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if k > len(ranked) {
		k = len(ranked)
	}

	texts := make([]string, 0, k)
	for _, r := range ranked[:k] {
		texts = append(texts, r.text)
	}
	return strings.Join(texts, chunkSeparator), nil
}

// Count reports how many chunks are currently indexed.
func (s *VectorStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, err
	}
	return len(s.entries), nil
}

// Clear removes the in-memory index and the on-disk artifact. A following
// Query returns NoContextSentinel; a following Rebuild or Append starts
// fresh.
func (s *VectorStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove index file: %w", err)
	}
	log.Println("INDEX: Cleared.")
	return nil
}

func (s *VectorStore) embedChunks(ctx context.Context, chunks []models.Chunk) ([]indexEntry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d chunks", len(vectors), len(texts))
	}
	entries := make([]indexEntry, len(chunks))
	for i := range chunks {
		entries[i] = indexEntry{ID: uuid.New().String(), Text: texts[i], Vector: vectors[i]}
	}
	return entries, nil
}

// load reads the on-disk artifact once per process (or after Clear). A
// missing file means an absent index, not an error. Callers must hold s.mu.
func (s *VectorStore) load() error {
	if s.loaded {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	var stored indexFile
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return fmt.Errorf("failed to decode index file %s: %w", s.path, err)
	}
	s.entries = stored.Entries
	s.loaded = true
	log.Printf("INDEX: Loaded %d chunks from %s.", len(s.entries), s.path)
	return nil
}

// save writes the artifact atomically via a temp file rename. Callers must
// hold s.mu.
func (s *VectorStore) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(indexFile{Entries: s.entries}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
