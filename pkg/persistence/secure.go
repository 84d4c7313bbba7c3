package persistence

import (
	"sync"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/google/uuid"
)

// SecureStorage persists the security properties of each network, keyed by
// the network UUID. A successful Set call must be durable when it returns.
type SecureStorage interface {
	// IvIndex returns the stored IV index; false if none was stored.
	IvIndex(network uuid.UUID) (mesh.IvIndex, bool, error)
	SetIvIndex(network uuid.UUID, iv mesh.IvIndex) error

	// SequenceNumber returns the next sequence number of a local element;
	// 0 if none was stored.
	SequenceNumber(network uuid.UUID, a address.Address) (uint32, error)
	SetSequenceNumber(network uuid.UUID, a address.Address, seq uint32) error

	// LastSeqAuth returns the most recent SeqAuth received from source.
	LastSeqAuth(network uuid.UUID, source address.Address) (uint64, bool, error)
	SetLastSeqAuth(network uuid.UUID, source address.Address, seqAuth uint64) error

	// PreviousSeqAuth returns the SeqAuth received before the last one.
	PreviousSeqAuth(network uuid.UUID, source address.Address) (uint64, bool, error)
	SetPreviousSeqAuth(network uuid.UUID, source address.Address, seqAuth uint64) error

	// RemoveSeqAuth forgets the SeqAuth history of source.
	RemoveSeqAuth(network uuid.UUID, source address.Address) error

	// LocalProvisioner returns the UUID of the provisioner of this device.
	LocalProvisioner(network uuid.UUID) (uuid.UUID, bool, error)
	SetLocalProvisioner(network uuid.UUID, provisioner uuid.UUID) error
}

type addressKey struct {
	network uuid.UUID
	address address.Address
}

// MemorySecureStorage is a SecureStorage that does not survive restarts.
type MemorySecureStorage struct {
	mu           sync.Mutex
	ivIndex      map[uuid.UUID]mesh.IvIndex
	sequence     map[addressKey]uint32
	last         map[addressKey]uint64
	previous     map[addressKey]uint64
	provisioners map[uuid.UUID]uuid.UUID
}

// NewMemorySecureStorage creates an empty in-memory secure storage.
func NewMemorySecureStorage() *MemorySecureStorage {
	return &MemorySecureStorage{
		ivIndex:      make(map[uuid.UUID]mesh.IvIndex),
		sequence:     make(map[addressKey]uint32),
		last:         make(map[addressKey]uint64),
		previous:     make(map[addressKey]uint64),
		provisioners: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemorySecureStorage) IvIndex(network uuid.UUID) (mesh.IvIndex, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.ivIndex[network]
	return iv, ok, nil
}

func (s *MemorySecureStorage) SetIvIndex(network uuid.UUID, iv mesh.IvIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ivIndex[network] = iv
	return nil
}

func (s *MemorySecureStorage) SequenceNumber(network uuid.UUID, a address.Address) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence[addressKey{network, a}], nil
}

func (s *MemorySecureStorage) SetSequenceNumber(network uuid.UUID, a address.Address, seq uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence[addressKey{network, a}] = seq
	return nil
}

func (s *MemorySecureStorage) LastSeqAuth(network uuid.UUID, source address.Address) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[addressKey{network, source}]
	return v, ok, nil
}

func (s *MemorySecureStorage) SetLastSeqAuth(network uuid.UUID, source address.Address, seqAuth uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[addressKey{network, source}] = seqAuth
	return nil
}

func (s *MemorySecureStorage) PreviousSeqAuth(network uuid.UUID, source address.Address) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.previous[addressKey{network, source}]
	return v, ok, nil
}

func (s *MemorySecureStorage) SetPreviousSeqAuth(network uuid.UUID, source address.Address, seqAuth uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous[addressKey{network, source}] = seqAuth
	return nil
}

func (s *MemorySecureStorage) RemoveSeqAuth(network uuid.UUID, source address.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, addressKey{network, source})
	delete(s.previous, addressKey{network, source})
	return nil
}

func (s *MemorySecureStorage) LocalProvisioner(network uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.provisioners[network]
	return id, ok, nil
}

func (s *MemorySecureStorage) SetLocalProvisioner(network uuid.UUID, provisioner uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisioners[network] = provisioner
	return nil
}

var _ SecureStorage = (*MemorySecureStorage)(nil)
