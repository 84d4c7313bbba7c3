package mesh

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestApplicationKeyIndexAllocation(t *testing.T) {
	n, _ := newTestNetwork(t)

	for want := KeyIndex(0); want < 3; want++ {
		k, err := n.AddApplicationKey("App", testKey(byte(want)), 0)
		if err != nil {
			t.Fatalf("AddApplicationKey() error = %v", err)
		}
		if k.Index() != want {
			t.Errorf("Index() = %d, want %d", k.Index(), want)
		}
	}
}

func TestApplicationKeyIndexIgnoresNetworkKeys(t *testing.T) {
	n, _ := newTestNetwork(t)
	for i := 0; i < 3; i++ {
		if _, err := n.AddNetworkKey("Net", testKey(0x10)); err != nil {
			t.Fatalf("AddNetworkKey() error = %v", err)
		}
	}

	k, err := n.AddApplicationKey("App", testKey(0x20), 0)
	if err != nil {
		t.Fatalf("AddApplicationKey() error = %v", err)
	}
	if k.Index() != 0 {
		t.Errorf("Index() = %d, want 0", k.Index())
	}
	if idx, _ := n.NextAvailableNetworkKeyIndex(); idx != 4 {
		t.Errorf("NextAvailableNetworkKeyIndex() = %d, want 4", idx)
	}
}

func TestKeyIndexExhaustion(t *testing.T) {
	n, _ := newTestNetwork(t)

	if _, err := n.AddApplicationKeyWithIndex("Last", MaxKeyIndex, testKey(1), 0); err != nil {
		t.Fatalf("AddApplicationKeyWithIndex(4095) error = %v", err)
	}

	t.Run("duplicate", func(t *testing.T) {
		_, err := n.AddApplicationKeyWithIndex("Again", MaxKeyIndex, testKey(2), 0)
		if !errors.Is(err, ErrDuplicateKeyIndex) {
			t.Errorf("AddApplicationKeyWithIndex() error = %v, want %v", err, ErrDuplicateKeyIndex)
		}
	})

	t.Run("next unavailable", func(t *testing.T) {
		if _, ok := n.NextAvailableApplicationKeyIndex(); ok {
			t.Error("NextAvailableApplicationKeyIndex() ok = true, want false")
		}
		_, err := n.AddApplicationKey("Next", testKey(3), 0)
		if !errors.Is(err, ErrKeyIndexOutOfRange) {
			t.Errorf("AddApplicationKey() error = %v, want %v", err, ErrKeyIndexOutOfRange)
		}
	})

	t.Run("explicit out of range", func(t *testing.T) {
		_, err := n.AddNetworkKeyWithIndex("Big", 4096, testKey(4))
		if !errors.Is(err, ErrKeyIndexOutOfRange) {
			t.Errorf("AddNetworkKeyWithIndex(4096) error = %v, want %v", err, ErrKeyIndexOutOfRange)
		}
	})

	t.Run("gaps are not refilled", func(t *testing.T) {
		if _, err := n.RemoveApplicationKey(MaxKeyIndex); err != nil {
			t.Fatalf("RemoveApplicationKey() error = %v", err)
		}
		if _, err := n.AddApplicationKeyWithIndex("Mid", 10, testKey(5), 0); err != nil {
			t.Fatalf("AddApplicationKeyWithIndex(10) error = %v", err)
		}
		if idx, _ := n.NextAvailableApplicationKeyIndex(); idx != 11 {
			t.Errorf("NextAvailableApplicationKeyIndex() = %d, want 11", idx)
		}
	})
}

func TestAddKeyInvalidLength(t *testing.T) {
	n, _ := newTestNetwork(t)

	if _, err := n.AddNetworkKey("Short", []byte{1, 2, 3}); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("AddNetworkKey() error = %v, want %v", err, ErrInvalidKeyLength)
	}
	if _, err := n.AddApplicationKey("Short", make([]byte, 15), 0); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("AddApplicationKey() error = %v, want %v", err, ErrInvalidKeyLength)
	}
}

func TestAddApplicationKeyUnknownNetworkKey(t *testing.T) {
	n, _ := newTestNetwork(t)

	if _, err := n.AddApplicationKey("App", testKey(1), 7); !errors.Is(err, ErrDoesNotBelongToNetwork) {
		t.Errorf("AddApplicationKey() error = %v, want %v", err, ErrDoesNotBelongToNetwork)
	}
}

func TestRemoveKeyInUse(t *testing.T) {
	n, _ := newTestNetwork(t)
	ak, err := n.AddApplicationKey("App", testKey(2), 0)
	if err != nil {
		t.Fatalf("AddApplicationKey() error = %v", err)
	}

	if _, err := n.RemoveNetworkKey(0); !errors.Is(err, ErrKeyInUse) {
		t.Errorf("RemoveNetworkKey() with bound app key error = %v, want %v", err, ErrKeyInUse)
	}

	node := addTestNode(t, n, 0x0005, 1)
	node.AddApplicationKey(ak.Index())
	if _, err := n.RemoveApplicationKey(ak.Index()); !errors.Is(err, ErrKeyInUse) {
		t.Errorf("RemoveApplicationKey() known by node error = %v, want %v", err, ErrKeyInUse)
	}

	node.RemoveApplicationKey(ak.Index())
	if _, err := n.RemoveApplicationKey(ak.Index()); err != nil {
		t.Errorf("RemoveApplicationKey() error = %v", err)
	}
	if _, err := n.RemoveNetworkKey(0); !errors.Is(err, ErrKeyInUse) {
		t.Errorf("RemoveNetworkKey() known by node error = %v, want %v", err, ErrKeyInUse)
	}
}

func TestRemoveKeyKnownOnlyByLocalNode(t *testing.T) {
	n, p := newTestNetwork(t)
	if err := n.AssignUnicastAddress(0x0001, p); err != nil {
		t.Fatalf("AssignUnicastAddress() error = %v", err)
	}
	nk, err := n.AddNetworkKey("Second", testKey(9))
	if err != nil {
		t.Fatalf("AddNetworkKey() error = %v", err)
	}
	if !n.LocalNode().KnowsNetworkKey(nk.Index()) {
		t.Fatal("local node does not know the new key")
	}

	if _, err := n.RemoveNetworkKey(nk.Index()); err != nil {
		t.Fatalf("RemoveNetworkKey() error = %v", err)
	}
	if n.LocalNode().KnowsNetworkKey(nk.Index()) {
		t.Error("local node still knows the removed key")
	}
}

func TestApplicationKeyBind(t *testing.T) {
	n, _ := newTestNetwork(t)
	nk, _ := n.AddNetworkKey("Second", testKey(3))
	ak, _ := n.AddApplicationKey("App", testKey(4), 0)

	if err := ak.Bind(nk); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if ak.BoundNetworkKeyIndex() != nk.Index() {
		t.Errorf("BoundNetworkKeyIndex() = %d, want %d", ak.BoundNetworkKeyIndex(), nk.Index())
	}

	other := New("Other")
	foreign, _ := other.AddNetworkKey("Foreign", testKey(5))
	if err := ak.Bind(foreign); !errors.Is(err, ErrDoesNotBelongToNetwork) {
		t.Errorf("Bind(foreign) error = %v, want %v", err, ErrDoesNotBelongToNetwork)
	}

	node, _ := NewNode(uuid.New(), 0x0008, testKey(6), 1, nk.Index())
	if err := n.AddNode(node); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	node.AddApplicationKey(ak.Index())
	primary := n.NetworkKey(0)
	if err := ak.Bind(primary); !errors.Is(err, ErrKeyInUse) {
		t.Errorf("Bind() of used key error = %v, want %v", err, ErrKeyInUse)
	}
}

func TestNetworkKeyRefresh(t *testing.T) {
	n, _ := newTestNetwork(t)
	k := n.NetworkKey(0)

	if err := k.SetKey(testKey(0x02)); err != nil {
		t.Fatalf("SetKey() error = %v", err)
	}
	if k.Phase() != PhaseDistribution {
		t.Errorf("Phase() = %v, want %v", k.Phase(), PhaseDistribution)
	}
	if !bytes.Equal(k.TransmitKey(), testKey(0x01)) {
		t.Errorf("TransmitKey() in distribution = %X, want old key", k.TransmitKey())
	}

	k.SetPhase(PhaseUsingNewKeys)
	if !bytes.Equal(k.TransmitKey(), testKey(0x02)) {
		t.Errorf("TransmitKey() using new keys = %X, want new key", k.TransmitKey())
	}
	if k.OldKey() == nil {
		t.Error("OldKey() = nil before revocation")
	}

	k.RevokeOldKey()
	if k.Phase() != PhaseNormal || k.OldKey() != nil {
		t.Errorf("after RevokeOldKey() phase = %v, old key = %X", k.Phase(), k.OldKey())
	}
	if err := k.SetKey([]byte{1}); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("SetKey(short) error = %v, want %v", err, ErrInvalidKeyLength)
	}
}

func TestKeyRefreshPhaseString(t *testing.T) {
	tests := []struct {
		phase KeyRefreshPhase
		want  string
	}{
		{PhaseNormal, "NORMAL"},
		{PhaseDistribution, "DISTRIBUTION"},
		{PhaseUsingNewKeys, "USING_NEW_KEYS"},
		{KeyRefreshPhase(7), "UNKNOWN(7)"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
