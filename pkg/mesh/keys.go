package mesh

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/blemesh/mesh-go/pkg/crypto"
)

// KeyIndex identifies a network or application key within a network.
type KeyIndex uint16

// MaxKeyIndex is the highest valid 12-bit key index.
const MaxKeyIndex KeyIndex = 4095

// IsValid reports whether the index fits in 12 bits.
func (i KeyIndex) IsValid() bool {
	return i <= MaxKeyIndex
}

// KeyRefreshPhase is the phase of the key refresh procedure of a network key.
type KeyRefreshPhase uint8

const (
	// PhaseNormal is normal operation; only the current key is in use.
	PhaseNormal KeyRefreshPhase = iota
	// PhaseDistribution means the new key is being distributed; the old key
	// is still used for transmission.
	PhaseDistribution
	// PhaseUsingNewKeys means nodes transmit with the new key and accept both.
	PhaseUsingNewKeys
)

// String returns the phase name.
func (p KeyRefreshPhase) String() string {
	switch p {
	case PhaseNormal:
		return "NORMAL"
	case PhaseDistribution:
		return "DISTRIBUTION"
	case PhaseUsingNewKeys:
		return "USING_NEW_KEYS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// Security is the minimum security level of a key or node.
type Security uint8

const (
	SecurityInsecure Security = iota
	SecuritySecure
)

// String returns the lowercase name used in the network document.
func (s Security) String() string {
	if s == SecuritySecure {
		return "secure"
	}
	return "insecure"
}

// MarshalText implements encoding.TextMarshaler.
func (s Security) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Security) UnmarshalText(b []byte) error {
	switch string(b) {
	case "secure":
		*s = SecuritySecure
	case "insecure":
		*s = SecurityInsecure
	default:
		return fmt.Errorf("unknown security level %q", b)
	}
	return nil
}

// NetworkKey is a network-layer key.
type NetworkKey struct {
	network     *Network
	name        string
	index       KeyIndex
	key         []byte
	oldKey      []byte
	phase       KeyRefreshPhase
	minSecurity Security
	timestamp   time.Time
}

// Name returns the human readable key name.
func (k *NetworkKey) Name() string { return k.name }

// Index returns the key index.
func (k *NetworkKey) Index() KeyIndex { return k.index }

// Key returns the current key.
func (k *NetworkKey) Key() []byte { return bytes.Clone(k.key) }

// OldKey returns the previous key during key refresh, or nil.
func (k *NetworkKey) OldKey() []byte { return bytes.Clone(k.oldKey) }

// Phase returns the key refresh phase.
func (k *NetworkKey) Phase() KeyRefreshPhase { return k.phase }

// MinSecurity returns the minimum security level required for this key.
func (k *NetworkKey) MinSecurity() Security { return k.minSecurity }

// Timestamp returns the time the key or its phase last changed.
func (k *NetworkKey) Timestamp() time.Time { return k.timestamp }

// SetName renames the key.
func (k *NetworkKey) SetName(name string) {
	if k.name == name {
		return
	}
	k.name = name
	k.network.touch()
}

// SetMinSecurity changes the minimum security level.
func (k *NetworkKey) SetMinSecurity(s Security) {
	if k.minSecurity == s {
		return
	}
	k.minSecurity = s
	k.network.touch()
}

// TransmitKey returns the key used to encrypt outgoing messages. During the
// distribution phase that is still the old key.
func (k *NetworkKey) TransmitKey() []byte {
	if k.phase == PhaseDistribution && k.oldKey != nil {
		return bytes.Clone(k.oldKey)
	}
	return bytes.Clone(k.key)
}

// SetKey starts a key refresh: the current key becomes the old key and the
// key enters the distribution phase.
func (k *NetworkKey) SetKey(key []byte) error {
	if len(key) != crypto.KeySize {
		return ErrInvalidKeyLength
	}
	k.oldKey = k.key
	k.key = bytes.Clone(key)
	k.phase = PhaseDistribution
	k.timestamp = k.network.now()
	k.network.touch()
	return nil
}

// SetPhase moves the key to the given refresh phase. Returning to normal
// operation drops the old key.
func (k *NetworkKey) SetPhase(p KeyRefreshPhase) {
	if k.phase == p {
		return
	}
	k.phase = p
	if p == PhaseNormal {
		k.oldKey = nil
	}
	k.timestamp = k.network.now()
	k.network.touch()
}

// RevokeOldKey completes a key refresh.
func (k *NetworkKey) RevokeOldKey() {
	k.SetPhase(PhaseNormal)
}

// IsUsed reports whether an application key is bound to this key or a node
// other than the local one knows it.
func (k *NetworkKey) IsUsed() bool {
	net := k.network
	if net == nil {
		return false
	}
	for _, ak := range net.applicationKeys {
		if ak.boundNetKey == k.index {
			return true
		}
	}
	local := net.LocalNode()
	for _, n := range net.nodes {
		if n == local {
			continue
		}
		if n.KnowsNetworkKey(k.index) {
			return true
		}
	}
	return false
}

// ApplicationKey is an application-layer key bound to one network key.
type ApplicationKey struct {
	network     *Network
	name        string
	index       KeyIndex
	boundNetKey KeyIndex
	key         []byte
	oldKey      []byte
}

// Name returns the human readable key name.
func (k *ApplicationKey) Name() string { return k.name }

// Index returns the key index.
func (k *ApplicationKey) Index() KeyIndex { return k.index }

// BoundNetworkKeyIndex returns the index of the bound network key.
func (k *ApplicationKey) BoundNetworkKeyIndex() KeyIndex { return k.boundNetKey }

// Key returns the current key.
func (k *ApplicationKey) Key() []byte { return bytes.Clone(k.key) }

// OldKey returns the previous key during key refresh, or nil.
func (k *ApplicationKey) OldKey() []byte { return bytes.Clone(k.oldKey) }

// BoundNetworkKey returns the bound network key, or nil when the key is
// detached from a network.
func (k *ApplicationKey) BoundNetworkKey() *NetworkKey {
	if k.network == nil {
		return nil
	}
	return k.network.NetworkKey(k.boundNetKey)
}

// SetName renames the key.
func (k *ApplicationKey) SetName(name string) {
	if k.name == name {
		return
	}
	k.name = name
	k.network.touch()
}

// Bind binds the application key to nk. Both keys must belong to the same
// network and the application key must not be known to any node.
func (k *ApplicationKey) Bind(nk *NetworkKey) error {
	if k.network == nil || nk == nil || nk.network != k.network {
		return ErrDoesNotBelongToNetwork
	}
	if k.IsUsed() {
		return ErrKeyInUse
	}
	if k.boundNetKey == nk.index {
		return nil
	}
	k.boundNetKey = nk.index
	k.network.touch()
	return nil
}

// SetKey replaces the key material, keeping the current key as old key.
func (k *ApplicationKey) SetKey(key []byte) error {
	if len(key) != crypto.KeySize {
		return ErrInvalidKeyLength
	}
	k.oldKey = k.key
	k.key = bytes.Clone(key)
	k.network.touch()
	return nil
}

// RevokeOldKey drops the old key after a key refresh.
func (k *ApplicationKey) RevokeOldKey() {
	if k.oldKey == nil {
		return
	}
	k.oldKey = nil
	k.network.touch()
}

// IsUsed reports whether a node other than the local one knows the key.
func (k *ApplicationKey) IsUsed() bool {
	net := k.network
	if net == nil {
		return false
	}
	local := net.LocalNode()
	for _, n := range net.nodes {
		if n == local {
			continue
		}
		if n.KnowsApplicationKey(k.index) {
			return true
		}
	}
	return false
}

// NextAvailableNetworkKeyIndex returns the index following the highest
// network key index in use. It returns false when that would exceed
// MaxKeyIndex.
func (n *Network) NextAvailableNetworkKeyIndex() (KeyIndex, bool) {
	if len(n.networkKeys) == 0 {
		return 0, true
	}
	return nextKeyIndex(n.networkKeys[len(n.networkKeys)-1].index)
}

// NextAvailableApplicationKeyIndex returns the index following the highest
// application key index in use. It returns false when that would exceed
// MaxKeyIndex.
func (n *Network) NextAvailableApplicationKeyIndex() (KeyIndex, bool) {
	if len(n.applicationKeys) == 0 {
		return 0, true
	}
	return nextKeyIndex(n.applicationKeys[len(n.applicationKeys)-1].index)
}

func nextKeyIndex(last KeyIndex) (KeyIndex, bool) {
	if last >= MaxKeyIndex {
		return 0, false
	}
	return last + 1, true
}

// AddNetworkKey adds a network key with the next available index.
func (n *Network) AddNetworkKey(name string, key []byte) (*NetworkKey, error) {
	idx, ok := n.NextAvailableNetworkKeyIndex()
	if !ok {
		return nil, ErrKeyIndexOutOfRange
	}
	return n.AddNetworkKeyWithIndex(name, idx, key)
}

// AddNetworkKeyWithIndex adds a network key with an explicit index.
func (n *Network) AddNetworkKeyWithIndex(name string, index KeyIndex, key []byte) (*NetworkKey, error) {
	if !index.IsValid() {
		return nil, ErrKeyIndexOutOfRange
	}
	if n.NetworkKey(index) != nil {
		return nil, ErrDuplicateKeyIndex
	}
	if len(key) != crypto.KeySize {
		return nil, ErrInvalidKeyLength
	}
	k := &NetworkKey{
		network:     n,
		name:        name,
		index:       index,
		key:         bytes.Clone(key),
		minSecurity: SecuritySecure,
		timestamp:   n.now(),
	}
	n.networkKeys = append(n.networkKeys, k)
	sort.Slice(n.networkKeys, func(i, j int) bool {
		return n.networkKeys[i].index < n.networkKeys[j].index
	})
	// The local node knows every key of the network.
	if local := n.LocalNode(); local != nil {
		local.addNetKey(index)
	}
	n.touch()
	return k, nil
}

// RemoveNetworkKey removes the network key with the given index.
func (n *Network) RemoveNetworkKey(index KeyIndex) (*NetworkKey, error) {
	i := n.networkKeyPosition(index)
	if i < 0 {
		return nil, ErrDoesNotBelongToNetwork
	}
	k := n.networkKeys[i]
	if k.IsUsed() {
		return nil, ErrKeyInUse
	}
	n.networkKeys = append(n.networkKeys[:i], n.networkKeys[i+1:]...)
	if local := n.LocalNode(); local != nil {
		local.removeNetKey(index)
	}
	k.network = nil
	n.touch()
	return k, nil
}

// AddApplicationKey adds an application key with the next available
// application key index, bound to the given network key.
func (n *Network) AddApplicationKey(name string, key []byte, boundTo KeyIndex) (*ApplicationKey, error) {
	idx, ok := n.NextAvailableApplicationKeyIndex()
	if !ok {
		return nil, ErrKeyIndexOutOfRange
	}
	return n.AddApplicationKeyWithIndex(name, idx, key, boundTo)
}

// AddApplicationKeyWithIndex adds an application key with an explicit index.
func (n *Network) AddApplicationKeyWithIndex(name string, index KeyIndex, key []byte, boundTo KeyIndex) (*ApplicationKey, error) {
	if !index.IsValid() {
		return nil, ErrKeyIndexOutOfRange
	}
	if n.ApplicationKey(index) != nil {
		return nil, ErrDuplicateKeyIndex
	}
	if len(key) != crypto.KeySize {
		return nil, ErrInvalidKeyLength
	}
	if n.NetworkKey(boundTo) == nil {
		return nil, ErrDoesNotBelongToNetwork
	}
	k := &ApplicationKey{
		network:     n,
		name:        name,
		index:       index,
		boundNetKey: boundTo,
		key:         bytes.Clone(key),
	}
	n.applicationKeys = append(n.applicationKeys, k)
	sort.Slice(n.applicationKeys, func(i, j int) bool {
		return n.applicationKeys[i].index < n.applicationKeys[j].index
	})
	if local := n.LocalNode(); local != nil {
		local.addAppKey(index)
	}
	n.touch()
	return k, nil
}

// RemoveApplicationKey removes the application key with the given index.
func (n *Network) RemoveApplicationKey(index KeyIndex) (*ApplicationKey, error) {
	i := n.applicationKeyPosition(index)
	if i < 0 {
		return nil, ErrDoesNotBelongToNetwork
	}
	k := n.applicationKeys[i]
	if k.IsUsed() {
		return nil, ErrKeyInUse
	}
	n.applicationKeys = append(n.applicationKeys[:i], n.applicationKeys[i+1:]...)
	if local := n.LocalNode(); local != nil {
		local.removeAppKey(index)
	}
	k.network = nil
	n.touch()
	return k, nil
}

func (n *Network) networkKeyPosition(index KeyIndex) int {
	for i, k := range n.networkKeys {
		if k.index == index {
			return i
		}
	}
	return -1
}

func (n *Network) applicationKeyPosition(index KeyIndex) int {
	for i, k := range n.applicationKeys {
		if k.index == index {
			return i
		}
	}
	return -1
}
