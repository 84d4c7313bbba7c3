package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/dgraph-io/badger/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Key prefixes of the secure store.
const (
	codeIvIndex          byte = 1
	codeSequenceNumber   byte = 2
	codeLastSeqAuth      byte = 3
	codePreviousSeqAuth  byte = 4
	codeLocalProvisioner byte = 5
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create secure store CBOR encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create secure store CBOR decoder mode: %v", err))
	}
}

// ivIndexRecord is the stored form of mesh.IvIndex.
type ivIndexRecord struct {
	Index        uint32 `cbor:"1,keyasint"`
	UpdateActive bool   `cbor:"2,keyasint"`
	Recovery     bool   `cbor:"3,keyasint"`
}

// BadgerSecureStorage is a SecureStorage backed by a badger database opened
// with synchronous writes.
type BadgerSecureStorage struct {
	db *badger.DB
}

// OpenBadgerSecureStorage opens or creates the database in dir.
func OpenBadgerSecureStorage(dir string) (*BadgerSecureStorage, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open secure storage: %w", err)
	}
	return &BadgerSecureStorage{db: db}, nil
}

// NewBadgerSecureStorage wraps an open database.
func NewBadgerSecureStorage(db *badger.DB) *BadgerSecureStorage {
	return &BadgerSecureStorage{db: db}
}

// Close closes the database.
func (s *BadgerSecureStorage) Close() error {
	return s.db.Close()
}

func makeKey(code byte, network uuid.UUID, a ...address.Address) []byte {
	key := make([]byte, 0, 1+16+2)
	key = append(key, code)
	key = append(key, network[:]...)
	for _, v := range a {
		key = binary.BigEndian.AppendUint16(key, uint16(v))
	}
	return key
}

// upsert encodes entity with CBOR and stores it under key.
func upsert(key []byte, entity any) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		val, err := encMode.Marshal(entity)
		if err != nil {
			return fmt.Errorf("could not encode entity: %w", err)
		}
		if err := tx.Set(key, val); err != nil {
			return fmt.Errorf("could not store data: %w", err)
		}
		return nil
	}
}

// retrieve decodes the value under key into entity. It returns ErrNotFound
// if the key does not exist.
func retrieve(key []byte, entity any) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("could not load data: %w", err)
		}
		err = item.Value(func(val []byte) error {
			return decMode.Unmarshal(val, entity)
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		return nil
	}
}

// remove deletes key; a missing key is not an error.
func remove(key []byte) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		return tx.Delete(key)
	}
}

// find runs retrieve and reports whether the key existed.
func (s *BadgerSecureStorage) find(key []byte, entity any) (bool, error) {
	err := s.db.View(retrieve(key, entity))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerSecureStorage) IvIndex(network uuid.UUID) (mesh.IvIndex, bool, error) {
	var rec ivIndexRecord
	ok, err := s.find(makeKey(codeIvIndex, network), &rec)
	if !ok {
		return mesh.IvIndex{}, false, err
	}
	return mesh.IvIndex{Index: rec.Index, UpdateActive: rec.UpdateActive, Recovery: rec.Recovery}, true, nil
}

func (s *BadgerSecureStorage) SetIvIndex(network uuid.UUID, iv mesh.IvIndex) error {
	rec := ivIndexRecord{Index: iv.Index, UpdateActive: iv.UpdateActive, Recovery: iv.Recovery}
	return s.db.Update(upsert(makeKey(codeIvIndex, network), rec))
}

func (s *BadgerSecureStorage) SequenceNumber(network uuid.UUID, a address.Address) (uint32, error) {
	var seq uint32
	_, err := s.find(makeKey(codeSequenceNumber, network, a), &seq)
	return seq, err
}

func (s *BadgerSecureStorage) SetSequenceNumber(network uuid.UUID, a address.Address, seq uint32) error {
	return s.db.Update(upsert(makeKey(codeSequenceNumber, network, a), seq))
}

func (s *BadgerSecureStorage) LastSeqAuth(network uuid.UUID, source address.Address) (uint64, bool, error) {
	var v uint64
	ok, err := s.find(makeKey(codeLastSeqAuth, network, source), &v)
	return v, ok, err
}

func (s *BadgerSecureStorage) SetLastSeqAuth(network uuid.UUID, source address.Address, seqAuth uint64) error {
	return s.db.Update(upsert(makeKey(codeLastSeqAuth, network, source), seqAuth))
}

func (s *BadgerSecureStorage) PreviousSeqAuth(network uuid.UUID, source address.Address) (uint64, bool, error) {
	var v uint64
	ok, err := s.find(makeKey(codePreviousSeqAuth, network, source), &v)
	return v, ok, err
}

func (s *BadgerSecureStorage) SetPreviousSeqAuth(network uuid.UUID, source address.Address, seqAuth uint64) error {
	return s.db.Update(upsert(makeKey(codePreviousSeqAuth, network, source), seqAuth))
}

func (s *BadgerSecureStorage) RemoveSeqAuth(network uuid.UUID, source address.Address) error {
	return s.db.Update(func(tx *badger.Txn) error {
		if err := remove(makeKey(codeLastSeqAuth, network, source))(tx); err != nil {
			return err
		}
		return remove(makeKey(codePreviousSeqAuth, network, source))(tx)
	})
}

func (s *BadgerSecureStorage) LocalProvisioner(network uuid.UUID) (uuid.UUID, bool, error) {
	var raw []byte
	ok, err := s.find(makeKey(codeLocalProvisioner, network), &raw)
	if !ok {
		return uuid.Nil, false, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return id, true, nil
}

func (s *BadgerSecureStorage) SetLocalProvisioner(network uuid.UUID, provisioner uuid.UUID) error {
	return s.db.Update(upsert(makeKey(codeLocalProvisioner, network), provisioner[:]))
}

var _ SecureStorage = (*BadgerSecureStorage)(nil)
