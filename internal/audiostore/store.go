// Package audiostore owns the web-servable directory of synthesized replies.
//
// Every reply is written once under a fresh random name and removed by a
// retention sweep (or right after it is served). Names handed to Open are
// validated so the serving endpoint can never reach outside the directory.
package audiostore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/observability"
)

const fileExt = ".wav"

var (
	// ErrInvalidName is returned for names that are not plain generated file names
	ErrInvalidName = errors.New("invalid audio file name")
	// ErrNotFound is returned when the named file does not exist
	ErrNotFound = errors.New("audio file not found")
)

// Store writes and serves generated audio files from a single flat directory
type Store struct {
	dir    string
	logger zerolog.Logger

	// now is replaceable in tests
	now func() time.Time

	countMu sync.Mutex
}

// New creates the directory if needed and returns a Store rooted at it
func New(dir string, logger zerolog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving audio dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}

	s := &Store{
		dir:    abs,
		logger: logger.With().Str("component", "audiostore").Logger(),
		now:    time.Now,
	}
	s.updateCount()
	return s, nil
}

// Dir returns the absolute directory path
func (s *Store) Dir() string {
	return s.dir
}

// Save encodes samples as WAV under a new unique name and returns that name.
// The file becomes visible only once completely written.
func (s *Store) Save(samples []int16, sampleRate int) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".pending-*")
	if err != nil {
		return "", fmt.Errorf("creating temp audio file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := audio.EncodeWAV(tmp, samples, sampleRate); err != nil {
		cleanup()
		return "", err
	}
	info, err := tmp.Stat()
	if err != nil {
		cleanup()
		return "", fmt.Errorf("stat temp audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing temp audio file: %w", err)
	}

	name := uuid.NewString() + fileExt
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publishing audio file: %w", err)
	}

	observability.RecordAudioWritten(info.Size())
	s.updateCount()
	return name, nil
}

// ValidateName rejects anything other than a bare generated file name
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName
	case strings.ContainsAny(name, `/\`):
		return ErrInvalidName
	case strings.Contains(name, ".."):
		return ErrInvalidName
	case strings.ContainsRune(name, 0):
		return ErrInvalidName
	case filepath.Base(name) != name:
		return ErrInvalidName
	case strings.HasPrefix(name, "."):
		return ErrInvalidName
	case !strings.HasSuffix(name, fileExt):
		return ErrInvalidName
	}
	return nil
}

// Open validates name and opens the file for reading
func (s *Store) Open(name string) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening audio file: %w", err)
	}

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Remove deletes a generated file; a missing file is not an error
func (s *Store) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing audio file: %w", err)
	}
	s.updateCount()
	return nil
}

// Sweep removes generated files (and abandoned temp files) older than maxAge.
// It returns the number of files removed.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading audio dir: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isManaged(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to remove expired audio file")
			continue
		}
		removed++
	}

	s.updateCount()
	return removed, nil
}

// Run sweeps every interval until ctx is done
func (s *Store) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(maxAge)
			if err != nil {
				s.logger.Error().Err(err).Msg("Audio retention sweep failed")
				observability.RecordError("sweep", "audiostore")
				continue
			}
			if removed > 0 {
				s.logger.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Swept expired audio files")
			}
		}
	}
}

// Check reports whether the directory is still writable
func (s *Store) Check(ctx context.Context) (bool, error) {
	f, err := os.CreateTemp(s.dir, ".pending-probe-*")
	if err != nil {
		return false, fmt.Errorf("audio dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true, nil
}

// Count returns the number of generated files currently on disk
func (s *Store) Count() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() && ValidateName(entry.Name()) == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) updateCount() {
	s.countMu.Lock()
	defer s.countMu.Unlock()

	if n, err := s.Count(); err == nil {
		observability.SetAudioFiles(n)
	}
}

func isManaged(name string) bool {
	return ValidateName(name) == nil || strings.HasPrefix(name, ".pending-")
}
