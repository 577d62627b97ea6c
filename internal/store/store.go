package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PlayEntry is one line of a session's play log.
type PlayEntry struct {
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Request   string    `json:"request"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
}

type FileStore struct {
	baseDir string
	mutex   sync.Mutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	// Create directories if they don't exist
	playsDir := filepath.Join(baseDir, "plays")

	if err := os.MkdirAll(playsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plays directory: %w", err)
	}

	return &FileStore{
		baseDir: baseDir,
	}, nil
}

func (s *FileStore) playsPath(sessionID string) string {
	return filepath.Join(s.baseDir, "plays", fmt.Sprintf("%s.jsonl", sessionID))
}

// AppendPlay appends entry to the session's play log.
func (s *FileStore) AppendPlay(sessionID string, entry PlayEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	path := s.playsPath(sessionID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open play log: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(entry); err != nil {
		return fmt.Errorf("failed to encode play entry: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("file", path).
		Str("title", entry.Title).
		Msg("Recorded play")

	return nil
}

func (s *FileStore) LoadPlays(sessionID string) ([]PlayEntry, error) {
	file, err := os.Open(s.playsPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to open play log: %w", err)
	}
	defer file.Close()

	var entries []PlayEntry
	decoder := json.NewDecoder(file)

	for decoder.More() {
		var entry PlayEntry
		if err := decoder.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode play entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
