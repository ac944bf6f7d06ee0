package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/roomtalk/roomtalk/internal/message"
)

// ChannelName is the fixed name of the shared record list. Every context on
// the device that falls back to the local transport reads and writes the
// same file; nobody owns it exclusively.
const ChannelName = "roomtalk-channel.json"

// Store is the shared, device-wide record list behind the local transport.
// It holds records for every room; readers filter by room code.
type Store struct {
	fs   afero.Fs
	path string

	// mu serializes writers within this process. Cross-process writers are
	// tolerated because consumers dedup by record id.
	mu sync.Mutex
}

// NewStore opens the shared list in the given directory.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{
		fs:   fs,
		path: filepath.Join(dir, ChannelName),
	}
}

// Path returns the location of the shared list file.
func (s *Store) Path() string {
	return s.path
}

// Append adds a record to the end of the shared list.
func (s *Store) Append(rec message.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode shared list: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write shared list: %w", err)
	}
	return nil
}

// ReadAll returns the full shared list in append order.
func (s *Store) ReadAll() ([]message.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() ([]message.Record, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read shared list: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []message.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode shared list: %w", err)
	}
	return records, nil
}
