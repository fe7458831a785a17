package voicedb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wisprlabs/voiceid/internal/config"
)

// ErrDimensionMismatch is returned when an enrolled vector does not match the
// store's expected dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// SpeakerCount pairs a speaker identity with its enrolled sample count.
type SpeakerCount struct {
	Speaker string `json:"speaker"`
	Samples int    `json:"samples"`
}

// Store owns the in-memory voice database and its file persistence. Enrolls
// are serialized by a write lock that also covers the save, so the file sees
// at most one writer at a time; identification reads a snapshot under the
// read lock and proceed concurrently.
type Store struct {
	mu   sync.RWMutex
	db   *DB
	path string
	dim  int
	log  *slog.Logger
}

// Open loads the voice database according to config. A corrupt file is either
// logged and replaced by an empty database (policy "reset") or turned into a
// startup error (policy "fail").
func Open(cfg config.StoreConfig, dim int, log *slog.Logger) (*Store, error) {
	db, err := loadFile(cfg.Path, dim)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		if cfg.OnCorrupt == "fail" {
			return nil, err
		}
		log.Warn("voice database corrupt, starting empty",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()))
		db = NewDB()
	}

	log.Info("voice database loaded",
		slog.String("path", cfg.Path),
		slog.Int("speakers", len(db.Speakers())),
		slog.Int("vectors", db.Size()))

	return &Store{db: db, path: cfg.Path, dim: dim, log: log}, nil
}

// Dimension returns the expected embedding dimension.
func (s *Store) Dimension() int {
	return s.dim
}

// Enroll appends the vector under the speaker and persists the full database
// before returning. The vector must match the expected dimension.
func (s *Store) Enroll(speaker string, vec Vector) error {
	if speaker == "" {
		return errors.New("speaker must not be empty")
	}
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.db.Append(speaker, vec.Clone())
	if err := saveFile(s.path, s.db); err != nil {
		return fmt.Errorf("persist voice database: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the database for lock-free scanning.
func (s *Store) Snapshot() *DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Clone()
}

// Counts lists enrolled speakers with their sample counts, enrollment order.
func (s *Store) Counts() []SpeakerCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]SpeakerCount, 0, len(s.db.Speakers()))
	for _, speaker := range s.db.Speakers() {
		counts = append(counts, SpeakerCount{Speaker: speaker, Samples: len(s.db.Vectors(speaker))})
	}
	return counts
}
