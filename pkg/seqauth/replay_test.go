package seqauth

import (
	"testing"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/google/uuid"
)

func newReplay(t *testing.T, storage persistence.SecureStorage, network uuid.UUID) *ReplayProtection {
	t.Helper()
	r, err := NewReplayProtection(network, storage, 4)
	if err != nil {
		t.Fatalf("NewReplayProtection() error = %v", err)
	}
	return r
}

func TestReplayProtectionAccept(t *testing.T) {
	r := newReplay(t, persistence.NewMemorySecureStorage(), uuid.New())

	steps := []struct {
		name         string
		seqAuth      uint64
		reassembling bool
		want         bool
	}{
		{"first message", 10, false, true},
		{"replay", 10, false, false},
		{"newer", 20, false, true},
		{"older than previous", 5, false, false},
		{"missed between previous and last", 15, false, true},
		{"missed only once", 15, false, false},
		{"equal to previous", 10, false, false},
		{"segment of message in reassembly", 20, true, true},
		{"newest", 30, false, true},
	}
	for _, s := range steps {
		got, err := r.Accept(0x0005, s.seqAuth, s.reassembling)
		if err != nil {
			t.Fatalf("%s: Accept() error = %v", s.name, err)
		}
		if got != s.want {
			t.Errorf("%s: Accept(%d) = %v, want %v", s.name, s.seqAuth, got, s.want)
		}
	}

	last, _, _ := r.Last(0x0005)
	prev, _, _ := r.Previous(0x0005)
	if last != 30 || prev != 20 {
		t.Errorf("Last(), Previous() = %d, %d, want 30, 20", last, prev)
	}
}

func TestReplayProtectionPersists(t *testing.T) {
	network := uuid.New()
	storage := persistence.NewMemorySecureStorage()
	r := newReplay(t, storage, network)
	r.Accept(0x0007, SeqAuth(1, 100), false)
	r.Accept(0x0007, SeqAuth(1, 101), false)

	// A fresh instance with a cold cache reads the stored history.
	fresh := newReplay(t, storage, network)
	if ok, _ := fresh.Accept(0x0007, SeqAuth(1, 101), false); ok {
		t.Error("Accept() of replayed message after restart = true")
	}
	if ok, _ := fresh.Accept(0x0007, SeqAuth(2, 0), false); !ok {
		t.Error("Accept() of message after IV index increment = false")
	}
}

func TestReplayProtectionCacheEviction(t *testing.T) {
	storage := persistence.NewMemorySecureStorage()
	r := newReplay(t, storage, uuid.New())

	for src := 1; src <= 10; src++ {
		r.Accept(addr(src), 50, false)
	}
	if ok, _ := r.Accept(addr(1), 50, false); ok {
		t.Error("Accept() after cache eviction accepted a replay")
	}
}

func TestReplayProtectionRemoveNode(t *testing.T) {
	r := newReplay(t, persistence.NewMemorySecureStorage(), uuid.New())
	node, _ := mesh.NewNode(uuid.New(), 0x0020, make([]byte, 16), 2, 0)
	r.Accept(0x0020, 100, false)
	r.Accept(0x0021, 100, false)

	if err := r.RemoveNode(node); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	if _, ok, _ := r.Last(0x0021); ok {
		t.Error("Last() ok = true after RemoveNode()")
	}
	if ok, _ := r.Accept(0x0020, 1, false); !ok {
		t.Error("Accept() for reused address = false")
	}
}

func addr(v int) address.Address { return address.Address(v) }
