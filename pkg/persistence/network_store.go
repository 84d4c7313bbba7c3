package persistence

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// NetworkStorage loads and saves the serialized network document.
type NetworkStorage interface {
	// Load returns the saved document, or nil if nothing was saved.
	Load() ([]byte, error)

	// Save stores the document of the network with the given UUID.
	Save(network uuid.UUID, data []byte) error
}

// FileNetworkStorage keeps one document per network in a directory and
// remembers which network was saved last.
type FileNetworkStorage struct {
	mu  sync.Mutex
	dir string
}

const currentFile = "current"

// NewFileNetworkStorage creates a storage rooted at dir.
func NewFileNetworkStorage(dir string) *FileNetworkStorage {
	return &FileNetworkStorage{dir: dir}
}

// Path returns the document path of the given network.
func (s *FileNetworkStorage) Path(network uuid.UUID) string {
	return filepath.Join(s.dir, network.String()+".json")
}

// Save writes the document atomically and marks it as current.
func (s *FileNetworkStorage) Save(network uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(s.Path(network), data); err != nil {
		return fmt.Errorf("save network %s: %w", network, err)
	}
	return writeFileAtomic(filepath.Join(s.dir, currentFile), []byte(network.String()))
}

// Load reads the current document.
// Returns nil, nil if no network was saved.
func (s *FileNetworkStorage) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.ParseBytes(bytes.TrimSpace(current))
	if err != nil {
		return nil, fmt.Errorf("read current network: %w", err)
	}

	data, err := os.ReadFile(s.Path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// Clear removes every saved document.
func (s *FileNetworkStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.RemoveAll(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// writeFileAtomic writes data to a temporary file, syncs it and renames it
// over path. The directory is synced afterwards so the rename survives a
// power loss.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return d.Close()
}

// MemoryNetworkStorage keeps the last saved document in memory.
type MemoryNetworkStorage struct {
	mu      sync.Mutex
	network uuid.UUID
	data    []byte
}

// NewMemoryNetworkStorage creates an empty in-memory storage.
func NewMemoryNetworkStorage() *MemoryNetworkStorage {
	return &MemoryNetworkStorage{}
}

// Load returns the last saved document, or nil.
func (s *MemoryNetworkStorage) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.data), nil
}

// Save keeps a copy of data.
func (s *MemoryNetworkStorage) Save(network uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.network = network
	s.data = bytes.Clone(data)
	return nil
}

// Network returns the UUID of the last saved network.
func (s *MemoryNetworkStorage) Network() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network
}

var (
	_ NetworkStorage = (*FileNetworkStorage)(nil)
	_ NetworkStorage = (*MemoryNetworkStorage)(nil)
)
