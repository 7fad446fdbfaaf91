package forms

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"bookmentor/pkg/domain"
)

// Store persists form submissions keyed by row id.
type Store interface {
	// Save inserts or overwrites a submission. When the submission has
	// no row id, one is synthesized; the chosen id is returned.
	Save(submission domain.FormSubmission) (string, error)
	// Get returns the submission and whether it exists. A missing row
	// id is not an error.
	Get(rowID string) (domain.FormSubmission, bool, error)
	// Update overwrites the submission stored under rowID.
	Update(rowID string, submission domain.FormSubmission) error
}

// FileStore keeps all submissions in one JSON document on disk, shaped
// {"data": {row_id: submission}}. Every operation reads, mutates, and
// rewrites the whole document. The mutex serializes in-process callers
// only; concurrent writers from other processes lose updates
// (last-write-wins on the whole file).
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDocument struct {
	Data map[string]domain.FormSubmission `json:"data"`
}

// NewFileStore creates a store backed by the given file path. The file
// is created lazily on first save.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("form store: file path required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(submission domain.FormSubmission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	rowID := submission.RowID
	if rowID == "" {
		// Count-based ids can collide when entries are removed out of
		// band; accepted weakness of the document format.
		rowID = strconv.Itoa(len(doc.Data) + 1)
		submission.RowID = rowID
	}
	doc.Data[rowID] = submission
	if err := s.write(doc); err != nil {
		return "", err
	}
	return rowID, nil
}

func (s *FileStore) Get(rowID string) (domain.FormSubmission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	submission, ok := doc.Data[rowID]
	return submission, ok, nil
}

func (s *FileStore) Update(rowID string, submission domain.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Data[rowID] = submission
	return s.write(doc)
}

// load never fails: a missing, empty, or corrupt file yields a fresh
// document, matching how the upstream form scripts treat the file.
func (s *FileStore) load() fileDocument {
	doc := fileDocument{Data: map[string]domain.FormSubmission{}}
	raw, err := os.ReadFile(s.path)
	if err != nil || len(raw) == 0 {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Warn("form document unreadable, starting a fresh one", "path", s.path, "err", err)
		return fileDocument{Data: map[string]domain.FormSubmission{}}
	}
	if doc.Data == nil {
		doc.Data = map[string]domain.FormSubmission{}
	}
	return doc
}

func (s *FileStore) write(doc fileDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode form document: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write form document: %w", err)
	}
	return nil
}
