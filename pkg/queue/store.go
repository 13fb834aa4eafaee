package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dtnitsch/content-gate/pkg/storage"
)

const (
	lockRetry   = 50 * time.Millisecond
	lockTimeout = 10 * time.Second
	// A lock older than this is left over from a crashed process.
	lockStale = 10 * time.Minute
)

// Store persists a Queue as a single JSON snapshot.
type Store struct {
	path        string
	maxAttempts int
	timeout     time.Duration
	fs          storage.Storage
}

func NewStore(path string, maxAttempts int) *Store {
	return &Store{path: path, maxAttempts: maxAttempts, timeout: lockTimeout}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty queue.
func (s *Store) Load() (*Queue, error) {
	data, err := s.fs.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return New(s.maxAttempts), nil
	}
	if err != nil {
		return nil, err
	}

	q := &Queue{}
	if err := json.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("failed to decode queue snapshot %s: %w", s.path, err)
	}
	q.init(s.maxAttempts)
	return q, nil
}

// Save rewrites the whole snapshot atomically.
func (s *Store) Save(q *Queue) error {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue snapshot: %w", err)
	}
	if err := s.fs.SaveFile(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to save queue snapshot: %w", err)
	}
	return nil
}

// Update loads the snapshot, applies fn and saves the result while holding the lock
// file. Nothing is written when fn returns an error.
func (s *Store) Update(fn func(q *Queue) error) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	q, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(q); err != nil {
		return err
	}
	return s.Save(q)
}

func (s *Store) lock() (func(), error) {
	name := s.path + ".lock"
	deadline := time.Now().Add(s.timeout)

	for {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.WriteString(strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(name) }, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// Snapshot directory does not exist yet.
			if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
				return nil, fmt.Errorf("failed to create queue directory: %w", err)
			}
			continue
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create queue lock: %w", err)
		}

		if st, serr := s.fs.GetFileStats(name); serr == nil && time.Since(st.ModTime) > lockStale {
			os.Remove(name)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to acquire queue lock %s: timed out after %s", name, s.timeout)
		}
		time.Sleep(lockRetry)
	}
}
