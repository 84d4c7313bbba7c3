package mesh

import (
	"bytes"
	"testing"
	"time"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/google/uuid"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 16)
}

type fixedHasher uint16

func (h fixedHasher) CreateVirtualAddress(uuid.UUID) uint16 { return uint16(h) }

// newTestNetwork returns a network with network key 0 and a provisioner
// without a node that owns unicast 0x0001-0x0010, group C000-C00F and scenes
// 1-16.
func newTestNetwork(t *testing.T) (*Network, *Provisioner) {
	t.Helper()
	n := NewWithUUID(uuid.MustParse("8c2a5d1e-0a5f-4d6e-9c3b-7e1f2a3b4c5d"), "Test")
	if _, err := n.AddNetworkKey("Primary", testKey(0x01)); err != nil {
		t.Fatalf("AddNetworkKey() error = %v", err)
	}
	p := NewProvisioner(uuid.New(), "Provisioner",
		address.NewRangeSet(address.MustRange(0x0001, 0x0010)),
		address.NewRangeSet(address.MustRange(0xC000, 0xC00F)),
		address.NewRangeSet(address.MustRange(0x0001, 0x0010)),
	)
	if err := n.AddProvisioner(p); err != nil {
		t.Fatalf("AddProvisioner() error = %v", err)
	}
	return n, p
}

func addTestNode(t *testing.T, n *Network, primary address.Address, elements int) *Node {
	t.Helper()
	node, err := NewNode(uuid.New(), primary, testKey(0xDD), elements, 0)
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	if err := n.AddNode(node); err != nil {
		t.Fatalf("AddNode(%s) error = %v", primary, err)
	}
	return node
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}
