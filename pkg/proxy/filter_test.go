package proxy

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/google/uuid"
)

func TestFilterAllows(t *testing.T) {
	f := NewFilter(nil)
	f.Connected(nil)

	if f.Allows(0x0001) {
		t.Error("Allows() = true on empty inclusion list")
	}
	f.Add(0x0001, 0xC000)
	if !f.Allows(0x0001) || !f.Allows(0xC000) {
		t.Error("Allows() = false for included address")
	}

	f.SetType(ExclusionList)
	if !f.Allows(0x0001) {
		t.Error("Allows() = false on empty exclusion list")
	}
	f.Add(0x0002)
	if f.Allows(0x0002) {
		t.Error("Allows() = true for excluded address")
	}
	f.Remove(0x0002)
	if !f.Allows(0x0002) {
		t.Error("Allows() = false after Remove()")
	}
}

func TestFilterKnows(t *testing.T) {
	net := mesh.New("Proxy")
	k0, _ := net.AddNetworkKey("Primary", make([]byte, 16))
	k1, _ := net.AddNetworkKey("Secondary", make([]byte, 16))
	node, err := mesh.NewNode(uuid.New(), 0x0002, make([]byte, 16), 1, k0.Index())
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}

	f := NewFilter(nil)
	if f.Knows(k0) {
		t.Error("Knows() = true while disconnected")
	}

	f.Connected(node)
	if !f.Knows(k0) || f.Knows(k1) {
		t.Errorf("Knows() = %v/%v, want true/false", f.Knows(k0), f.Knows(k1))
	}
	if f.Proxy() != 0x0002 {
		t.Errorf("Proxy() = %s, want 0002", f.Proxy())
	}

	f.Learn(k1.Index())
	if !f.Knows(k1) {
		t.Error("Knows() = false after Learn()")
	}

	f.Disconnected()
	if f.Knows(k0) || f.IsConnected() {
		t.Error("filter still connected after Disconnected()")
	}
	if f.Knows(nil) {
		t.Error("Knows(nil) = true")
	}
}

func TestFilterOnChange(t *testing.T) {
	var states []State
	f := NewFilter(func(s State) { states = append(states, s) })

	f.Connected(nil)
	f.Add(address.Address(0x0001))
	f.Learn(0)
	f.Learn(0)

	if len(states) != 3 {
		t.Fatalf("onChange called %d times, want 3", len(states))
	}
	last := states[len(states)-1]
	if !last.Connected || len(last.Addresses) != 1 || len(last.KnownKeys) != 1 {
		t.Errorf("last state = %+v", last)
	}
}

func TestFilterLearnConcurrent(t *testing.T) {
	var changes atomic.Int32
	f := NewFilter(func(State) { changes.Add(1) })
	f.Connected(nil)

	var wg sync.WaitGroup
	for k := 0; k < 16; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Learn(3)
		}()
	}
	wg.Wait()

	if got := f.State().KnownKeys; len(got) != 1 || got[0] != 3 {
		t.Errorf("KnownKeys = %v, want [3]", got)
	}
	if got := changes.Load(); got != 2 {
		t.Errorf("onChange called %d times, want 2", got)
	}
}

func TestFilterTypeString(t *testing.T) {
	if InclusionList.String() != "inclusion" || ExclusionList.String() != "exclusion" {
		t.Error("String() mismatch")
	}
}
