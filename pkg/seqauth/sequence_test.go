package seqauth

import (
	"errors"
	"sync"
	"testing"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/google/uuid"
)

var errInjected = errors.New("injected failure")

// flakyStorage fails every other write.
type flakyStorage struct {
	*persistence.MemorySecureStorage
	mu     sync.Mutex
	writes int
}

func (s *flakyStorage) SetSequenceNumber(network uuid.UUID, a address.Address, seq uint32) error {
	s.mu.Lock()
	s.writes++
	fail := s.writes%2 == 0
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.MemorySecureStorage.SetSequenceNumber(network, a, seq)
}

func TestSeqAuth(t *testing.T) {
	if got := SeqAuth(1, 0x000010); got != 0x0000000001000010 {
		t.Errorf("SeqAuth(1, 0x10) = %X, want 1000010", got)
	}
	if got := SeqAuth(0x12345678, 0xFFFFFF); got != 0x12345678FFFFFF {
		t.Errorf("SeqAuth() = %X, want 12345678FFFFFF", got)
	}
}

func TestSequenceCounterNext(t *testing.T) {
	network := uuid.New()
	storage := persistence.NewMemorySecureStorage()
	storage.SetSequenceNumber(network, 0x0001, 100)
	c := NewSequenceCounter(network, storage)

	for want := uint32(100); want < 110; want++ {
		got, err := c.Next(0x0001)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
	if stored, _ := storage.SequenceNumber(network, 0x0001); stored != 110 {
		t.Errorf("stored counter = %d, want 110", stored)
	}
	if cur, _ := c.Current(0x0001); cur != 110 {
		t.Errorf("Current() = %d, want 110", cur)
	}
}

func TestSequenceCounterMonotonicUnderFailures(t *testing.T) {
	network := uuid.New()
	c := NewSequenceCounter(network, &flakyStorage{MemorySecureStorage: persistence.NewMemorySecureStorage()})

	var got []uint32
	failures := 0
	for i := 0; i < 20; i++ {
		seq, err := c.Next(0x0002)
		if err != nil {
			if !errors.Is(err, errInjected) {
				t.Fatalf("Next() error = %v, want %v", err, errInjected)
			}
			failures++
			continue
		}
		got = append(got, seq)
	}

	if failures == 0 {
		t.Fatal("no failures injected")
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("Next() values %v not strictly increasing", got)
		}
	}
	if got[0] != 0 || got[len(got)-1] != uint32(len(got)-1) {
		t.Errorf("Next() values = %v, want 0..%d without gaps", got, len(got)-1)
	}
}

func TestSequenceCounterConcurrent(t *testing.T) {
	c := NewSequenceCounter(uuid.New(), persistence.NewMemorySecureStorage())

	const workers, each = 8, 50
	results := make(chan uint32, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				seq, err := c.Next(0x0003)
				if err != nil {
					t.Errorf("Next() error = %v", err)
					return
				}
				results <- seq
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint32]bool)
	for seq := range results {
		if seen[seq] {
			t.Fatalf("sequence number %d returned twice", seq)
		}
		seen[seq] = true
	}
	if len(seen) != workers*each {
		t.Errorf("got %d distinct numbers, want %d", len(seen), workers*each)
	}
}

func TestSequenceCounterExhausted(t *testing.T) {
	network := uuid.New()
	storage := persistence.NewMemorySecureStorage()
	storage.SetSequenceNumber(network, 0x0001, MaxSequenceNumber)
	c := NewSequenceCounter(network, storage)

	if seq, err := c.Next(0x0001); err != nil || seq != MaxSequenceNumber {
		t.Fatalf("Next() = %d, %v, want %d", seq, err, MaxSequenceNumber)
	}
	_, err := c.Next(0x0001)
	if !errors.Is(err, ErrSequenceExhausted) {
		t.Errorf("Next() error = %v, want %v", err, ErrSequenceExhausted)
	}
	if !IsUnrecoverable(err) {
		t.Errorf("IsUnrecoverable(%v) = false", err)
	}
}

func TestSequenceCounterResetNode(t *testing.T) {
	network := uuid.New()
	storage := persistence.NewMemorySecureStorage()
	c := NewSequenceCounter(network, storage)
	node, err := mesh.NewNode(uuid.New(), 0x0010, make([]byte, 16), 3, 0)
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	for _, a := range []address.Address{0x0010, 0x0011, 0x0012} {
		storage.SetSequenceNumber(network, a, 500)
	}

	if err := c.ResetNode(node); err != nil {
		t.Fatalf("ResetNode() error = %v", err)
	}
	for _, a := range []address.Address{0x0010, 0x0011, 0x0012} {
		if seq, _ := c.Current(a); seq != 0 {
			t.Errorf("Current(%s) = %d, want 0", a, seq)
		}
	}
}
