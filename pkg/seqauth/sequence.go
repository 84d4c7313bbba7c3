package seqauth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/google/uuid"
)

// MaxSequenceNumber is the highest 24-bit sequence number.
const MaxSequenceNumber uint32 = 0xFFFFFF

// SeqAuth combines an IV index and a sequence number.
func SeqAuth(ivIndex, seq uint32) uint64 {
	return uint64(ivIndex)<<24 | uint64(seq&MaxSequenceNumber)
}

// SequenceCounter hands out sequence numbers for local element addresses.
// The incremented counter is stored before a number is returned, so a
// number is never used twice even if the process crashes.
type SequenceCounter struct {
	network uuid.UUID
	storage persistence.SecureStorage

	mu    sync.Mutex
	locks map[address.Address]*sync.Mutex
}

// NewSequenceCounter creates a counter for the given network.
func NewSequenceCounter(network uuid.UUID, storage persistence.SecureStorage) *SequenceCounter {
	return &SequenceCounter{
		network: network,
		storage: storage,
		locks:   make(map[address.Address]*sync.Mutex),
	}
}

func (c *SequenceCounter) lock(a address.Address) func() {
	c.mu.Lock()
	l, ok := c.locks[a]
	if !ok {
		l = &sync.Mutex{}
		c.locks[a] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Next returns the next sequence number of a. The number is consumed even if
// the caller never sends the message.
func (c *SequenceCounter) Next(a address.Address) (uint32, error) {
	unlock := c.lock(a)
	defer unlock()

	seq, err := c.storage.SequenceNumber(c.network, a)
	if err != nil {
		return 0, readError("read sequence number", err)
	}
	if seq > MaxSequenceNumber {
		return 0, &UnrecoverableError{Op: fmt.Sprintf("next sequence number of %s", a), Err: ErrSequenceExhausted}
	}
	if err := c.storage.SetSequenceNumber(c.network, a, seq+1); err != nil {
		return 0, fmt.Errorf("store sequence number of %s: %w", a, err)
	}
	return seq, nil
}

// Current returns the number the next call to Next would return.
func (c *SequenceCounter) Current(a address.Address) (uint32, error) {
	unlock := c.lock(a)
	defer unlock()

	seq, err := c.storage.SequenceNumber(c.network, a)
	if err != nil {
		return 0, readError("read sequence number", err)
	}
	return seq, nil
}

// Reset sets the counter of a to 0. Only valid after the IV index
// incremented.
func (c *SequenceCounter) Reset(a address.Address) error {
	unlock := c.lock(a)
	defer unlock()

	if err := c.storage.SetSequenceNumber(c.network, a, 0); err != nil {
		return fmt.Errorf("reset sequence number of %s: %w", a, err)
	}
	return nil
}

// ResetNode resets the counter of every element of node.
func (c *SequenceCounter) ResetNode(node *mesh.Node) error {
	for _, e := range node.Elements() {
		if err := c.Reset(e.Address()); err != nil {
			return err
		}
	}
	return nil
}

func readError(op string, err error) error {
	if errors.Is(err, persistence.ErrCorrupted) {
		return &UnrecoverableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
