package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Meru-dog/study-group-bot/internal/domain/occurrence"
)

// On-disk document layout. Kept compatible with every previously written
// state file: two top-level mappings, rewritten in full on each mutation.
type promptRecord struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
}

type speakerRecord struct {
	Active      bool   `json:"active"`
	RequestedAt string `json:"requested_at"`
}

type document struct {
	DeclarationMessages map[string]promptRecord             `json:"declaration_messages"`
	SpeakerRequests     map[string]map[string]speakerRecord `json:"speaker_requests"`
}

// JSONStore implements occurrence.Store backed by a single JSON document.
// One mutex serializes every read and write; each mutating call rewrites the
// whole document to disk before returning, so write latency is bounded by
// storage I/O. The rewrite is not crash-atomic: a crash mid-write can leave a
// corrupt copy on disk. Accepted limitation at this scale.
type JSONStore struct {
	path string
	mu   sync.Mutex
	doc  document
}

// NewJSONStore loads the document at path, or starts fresh when the file is
// missing or empty.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		doc: document{
			DeclarationMessages: make(map[string]promptRecord),
			SpeakerRequests:     make(map[string]map[string]speakerRecord),
		},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("error reading state file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("error parsing state file %s: %w", path, err)
	}
	if s.doc.DeclarationMessages == nil {
		s.doc.DeclarationMessages = make(map[string]promptRecord)
	}
	if s.doc.SpeakerRequests == nil {
		s.doc.SpeakerRequests = make(map[string]map[string]speakerRecord)
	}
	return s, nil
}

// persist must be called with s.mu held. On failure the in-memory mutation is
// kept; memory and disk diverge until the next successful write.
func (s *JSONStore) persist() error {
	raw, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding state: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("error writing state file %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONStore) SetPrompt(key occurrence.Key, ref occurrence.PromptRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.DeclarationMessages[string(key)] = promptRecord{Channel: ref.Channel, Timestamp: ref.Timestamp}
	return s.persist()
}

func (s *JSONStore) Prompt(key occurrence.Key) (occurrence.PromptRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.DeclarationMessages[string(key)]
	if !ok {
		return occurrence.PromptRef{}, false
	}
	return occurrence.PromptRef{Channel: rec.Channel, Timestamp: rec.Timestamp}, true
}

func (s *JSONStore) ResolvePrompt(channel, timestamp string) (occurrence.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.doc.DeclarationMessages {
		if rec.Channel == channel && rec.Timestamp == timestamp {
			return occurrence.Key(key), true
		}
	}
	return "", false
}

func (s *JSONStore) AddSpeakerRequest(key occurrence.Key, userID, eventTS string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := s.doc.SpeakerRequests[string(key)]
	if day == nil {
		day = make(map[string]speakerRecord)
		s.doc.SpeakerRequests[string(key)] = day
	}
	day[userID] = speakerRecord{Active: true, RequestedAt: eventTS}
	return s.persist()
}

func (s *JSONStore) RemoveSpeakerRequest(key occurrence.Key, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := s.doc.SpeakerRequests[string(key)]
	if rec, ok := day[userID]; ok {
		rec.Active = false
		day[userID] = rec
	}
	return s.persist()
}

func (s *JSONStore) Speakers(key occurrence.Key) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := s.doc.SpeakerRequests[string(key)]
	requests := make(map[string]occurrence.SpeakerRequest, len(day))
	for userID, rec := range day {
		requests[userID] = occurrence.SpeakerRequest{Active: rec.Active, RequestedAt: rec.RequestedAt}
	}
	return occurrence.TopSpeakers(requests)
}
