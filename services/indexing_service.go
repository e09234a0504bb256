package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// KnowledgeIndexer feeds a local directory of reference documents into the
// vector index: a full scan at startup, then fsnotify events for changes.
// The index is append-only, so edits add the new revision's chunks alongside
// the old ones; an admin index clear followed by a rescan starts fresh.
type KnowledgeIndexer struct {
	chunker *Chunker
	index   *VectorStore

	mu     sync.Mutex
	hashes map[string]string // path -> content hash already indexed
}

func NewKnowledgeIndexer(chunker *Chunker, index *VectorStore) *KnowledgeIndexer {
	return &KnowledgeIndexer{
		chunker: chunker,
		index:   index,
		hashes:  make(map[string]string),
	}
}

// ScanDirectory walks dirPath once and indexes every supported file whose
// content hash is not already recorded.
func (s *KnowledgeIndexer) ScanDirectory(ctx context.Context, dirPath string) {
	log.Printf("INDEXER: Starting directory scan for: %s", dirPath)
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isSupportedFile(path) {
			s.indexFile(ctx, path)
		}
		return nil
	})
	if err != nil {
		log.Printf("INDEXER ERROR: Error walking the path %s: %v", dirPath, err)
	}
	log.Println("INDEXER: Directory scan finished.")
}

// WatchDirectory blocks until ctx is cancelled, indexing supported files as
// they are created or written.
func (s *KnowledgeIndexer) WatchDirectory(ctx context.Context, dirPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isSupportedFile(event.Name) {
					continue
				}
				// Many editors write via temp-file-and-rename, which fires
				// several events; Create and Write are handled the same and
				// the hash check deduplicates.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					log.Printf("WATCHER: File modified/created: %s. Indexing...", event.Name)
					s.indexFile(ctx, event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WATCHER ERROR: %v", err)
			case <-ctx.Done():
				log.Println("WATCHER: Context cancelled, shutting down watcher.")
				return
			}
		}
	}()

	log.Printf("WATCHER: Watching directory: %s", dirPath)
	if err := watcher.Add(dirPath); err != nil {
		log.Printf("WATCHER ERROR: Failed to add path to watcher: %v", err)
	}

	<-ctx.Done()
}

func (s *KnowledgeIndexer) indexFile(ctx context.Context, path string) {
	hash, err := calculateFileHash(path)
	if err != nil {
		log.Printf("INDEXER WARN: Could not hash file %s: %v", path, err)
		return
	}
	s.mu.Lock()
	unchanged := s.hashes[path] == hash
	s.mu.Unlock()
	if unchanged {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("INDEXER ERROR: Failed to read %s: %v", path, err)
		return
	}
	text, err := ExtractText(data, declaredTypeFor(path))
	if err != nil {
		log.Printf("INDEXER ERROR: Failed to extract %s: %v", path, err)
		return
	}

	chunks := s.chunker.Split(text)
	log.Printf("INDEXER: Split %s into %d chunks.", path, len(chunks))
	if err := s.index.Append(ctx, chunks); err != nil {
		log.Printf("INDEXER ERROR: Failed to index %s: %v", path, err)
		return
	}

	s.mu.Lock()
	s.hashes[path] = hash
	s.mu.Unlock()
}

func declaredTypeFor(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func isSupportedFile(path string) bool {
	switch declaredTypeFor(path) {
	case "txt", "md", "pdf", "docx":
		return true
	default:
		return false
	}
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
