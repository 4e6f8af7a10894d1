package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/axon/pkg/models"
)

// TranscriptStore persists session transcripts as one append-only JSONL
// file per session. The first record is a meta line describing the
// session; every subsequent record is a message. Appends are flushed to
// disk before returning so a crash never loses an acknowledged write.
type TranscriptStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// metaRecord is the first line of every transcript file.
type metaRecord struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Channel   string `json:"channel"`
	CreatedAt string `json:"created_at"`
}

// recordProbe distinguishes meta lines from message lines.
type recordProbe struct {
	Type string `json:"type"`
}

// NewTranscriptStore creates the store, creating dir if needed.
func NewTranscriptStore(dir string, logger *slog.Logger) (*TranscriptStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &TranscriptStore{
		dir:    dir,
		logger: logger,
		locks:  map[string]*sync.Mutex{},
	}, nil
}

func (s *TranscriptStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

// fileLock returns the per-session mutex, creating it on first use.
func (s *TranscriptStore) fileLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Create initializes a transcript file with its meta record. Creating a
// session that already exists is a no-op.
func (s *TranscriptStore) Create(sessionID string, channel models.ChannelType) error {
	if !ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	l := s.fileLock(sessionID)
	l.Lock()
	defer l.Unlock()

	path := s.path(sessionID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	meta := metaRecord{
		Type:      "meta",
		SessionID: sessionID,
		Channel:   string(channel),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	line, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.appendLine(path, line)
}

// Append writes one message record to the session transcript. The
// session must have been created first.
func (s *TranscriptStore) Append(sessionID string, msg *models.Message) error {
	if !ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	l := s.fileLock(sessionID)
	l.Lock()
	defer l.Unlock()

	path := s.path(sessionID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session %q has no transcript", sessionID)
		}
		return err
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.appendLine(path, line)
}

func (s *TranscriptStore) appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// LoadTail returns up to limit most recent messages from the session
// transcript, oldest first. A missing transcript yields an empty slice.
// An unterminated trailing line (a torn write from a crash) is skipped,
// as are records that no longer parse.
func (s *TranscriptStore) LoadTail(sessionID string, limit int) ([]models.Message, error) {
	if !ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	l := s.fileLock(sessionID)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	// Without a trailing newline the last element is a torn record.
	if len(lines) > 0 && lines[len(lines)-1] != "" {
		s.logger.Warn("skipping unterminated transcript record", "session_id", sessionID)
		lines = lines[:len(lines)-1]
	}

	var msgs []models.Message
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var probe recordProbe
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			s.logger.Warn("skipping invalid transcript record",
				"session_id", sessionID, "line", i+1, "error", err)
			continue
		}
		if probe.Type == "meta" {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			s.logger.Warn("skipping invalid transcript record",
				"session_id", sessionID, "line", i+1, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Exists reports whether a transcript file exists for the session.
func (s *TranscriptStore) Exists(sessionID string) bool {
	if !ValidSessionID(sessionID) {
		return false
	}
	_, err := os.Stat(s.path(sessionID))
	return err == nil
}

// Delete removes the session transcript file.
func (s *TranscriptStore) Delete(sessionID string) error {
	if !ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	l := s.fileLock(sessionID)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the session IDs with a transcript on disk.
func (s *TranscriptStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids, nil
}
