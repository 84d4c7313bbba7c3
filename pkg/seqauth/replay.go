package seqauth

import (
	"fmt"
	"sync"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of sources whose history is kept in
// memory.
const DefaultCacheSize = 256

// history is the SeqAuth history of one source.
type history struct {
	last        uint64
	previous    uint64
	hasPrevious bool
}

// ReplayProtection keeps the SeqAuth history of every source address. Reads
// are served from an LRU cache; every update is written to the secure
// storage before the message is accepted.
type ReplayProtection struct {
	network uuid.UUID
	storage persistence.SecureStorage

	mu    sync.Mutex
	cache *lru.Cache[address.Address, history]
}

// NewReplayProtection creates a replay protection for the given network.
func NewReplayProtection(network uuid.UUID, storage persistence.SecureStorage, cacheSize int) (*ReplayProtection, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[address.Address, history](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create replay cache: %w", err)
	}
	return &ReplayProtection{network: network, storage: storage, cache: cache}, nil
}

func (r *ReplayProtection) load(src address.Address) (history, bool, error) {
	if h, ok := r.cache.Get(src); ok {
		return h, true, nil
	}
	last, ok, err := r.storage.LastSeqAuth(r.network, src)
	if err != nil {
		return history{}, false, readError("read last SeqAuth", err)
	}
	if !ok {
		return history{}, false, nil
	}
	prev, hasPrev, err := r.storage.PreviousSeqAuth(r.network, src)
	if err != nil {
		return history{}, false, readError("read previous SeqAuth", err)
	}
	h := history{last: last, previous: prev, hasPrevious: hasPrev}
	r.cache.Add(src, h)
	return h, true, nil
}

// Accept reports whether a message from src with the given SeqAuth is new,
// and records it if so. A message is new if its SeqAuth is above the last
// one, lies strictly between the previous and the last one, or equals the
// last one while segments of that message are still being reassembled.
func (r *ReplayProtection) Accept(src address.Address, seqAuth uint64, reassembling bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, known, err := r.load(src)
	if err != nil {
		return false, err
	}
	if !known {
		if err := r.storage.SetLastSeqAuth(r.network, src, seqAuth); err != nil {
			return false, fmt.Errorf("store last SeqAuth of %s: %w", src, err)
		}
		r.cache.Add(src, history{last: seqAuth})
		return true, nil
	}

	missed := h.hasPrevious && h.previous < seqAuth && seqAuth < h.last
	if seqAuth <= h.last && !missed && !(reassembling && seqAuth == h.last) {
		return false, nil
	}

	next := history{last: h.last, previous: min(seqAuth, h.last), hasPrevious: true}
	if err := r.storage.SetPreviousSeqAuth(r.network, src, next.previous); err != nil {
		return false, fmt.Errorf("store previous SeqAuth of %s: %w", src, err)
	}
	if !missed {
		next.last = seqAuth
		if err := r.storage.SetLastSeqAuth(r.network, src, seqAuth); err != nil {
			r.cache.Remove(src)
			return false, fmt.Errorf("store last SeqAuth of %s: %w", src, err)
		}
	}
	r.cache.Add(src, next)
	return true, nil
}

// Last returns the last accepted SeqAuth of src.
func (r *ReplayProtection) Last(src address.Address) (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok, err := r.load(src)
	return h.last, ok, err
}

// Previous returns the SeqAuth accepted before the last one.
func (r *ReplayProtection) Previous(src address.Address) (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok, err := r.load(src)
	return h.previous, ok && h.hasPrevious, err
}

// Remove forgets the history of src so a node later assigned the address
// starts fresh.
func (r *ReplayProtection) Remove(src address.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(src)
	if err := r.storage.RemoveSeqAuth(r.network, src); err != nil {
		return fmt.Errorf("remove SeqAuth of %s: %w", src, err)
	}
	return nil
}

// RemoveNode forgets the history of every element address of node.
func (r *ReplayProtection) RemoveNode(node *mesh.Node) error {
	rng := node.UnicastRange()
	for v := int(rng.Low); v <= int(rng.High); v++ {
		if err := r.Remove(address.Address(v)); err != nil {
			return err
		}
	}
	return nil
}
