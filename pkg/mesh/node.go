package mesh

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/crypto"
	"github.com/google/uuid"
)

// NodeKey is a key index known to a node, with a flag telling whether the
// node already received the refreshed key.
type NodeKey struct {
	Index   KeyIndex `json:"index"`
	Updated bool     `json:"updated"`
}

// FeatureState is the state of an optional node feature.
type FeatureState uint8

const (
	FeatureDisabled FeatureState = iota
	FeatureEnabled
	FeatureUnsupported
)

// String returns the state name.
func (s FeatureState) String() string {
	switch s {
	case FeatureDisabled:
		return "disabled"
	case FeatureEnabled:
		return "enabled"
	case FeatureUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Features holds the node features. A nil entry means the state is not
// known yet.
type Features struct {
	Relay    *FeatureState `json:"relay,omitempty"`
	Proxy    *FeatureState `json:"proxy,omitempty"`
	Friend   *FeatureState `json:"friend,omitempty"`
	LowPower *FeatureState `json:"lowPower,omitempty"`
}

// FeaturesFromBits decodes the feature bit field of a Composition Data page.
// Bits that are clear mean the feature is unsupported.
func FeaturesFromBits(bits uint16) Features {
	state := func(mask uint16) *FeatureState {
		s := FeatureUnsupported
		if bits&mask != 0 {
			// Supported; the actual state is read with dedicated messages.
			s = FeatureDisabled
		}
		return &s
	}
	return Features{
		Relay:    state(0x0001),
		Proxy:    state(0x0002),
		Friend:   state(0x0004),
		LowPower: state(0x0008),
	}
}

// Composition is the content of Composition Data page 0.
type Composition struct {
	CompanyID             uint16
	ProductID             uint16
	VersionID             uint16
	ReplayProtectionCount uint16
	Features              Features
	Elements              []*Element
}

// Node is a provisioned device.
type Node struct {
	network        *Network
	uuid           uuid.UUID
	name           string
	primary        address.Address
	deviceKey      []byte
	security       Security
	netKeys        []NodeKey
	appKeys        []NodeKey
	elements       []*Element
	companyID      *uint16
	productID      *uint16
	versionID      *uint16
	crpl           *uint16
	features       Features
	defaultTTL     *uint8
	excluded       bool
	configComplete bool
}

// NewNode returns a node with elementCount empty elements starting at
// primary. The node knows the given network keys.
func NewNode(id uuid.UUID, primary address.Address, deviceKey []byte, elementCount int, netKeys ...KeyIndex) (*Node, error) {
	if elementCount < 1 || elementCount > 255 {
		return nil, ErrInvalidElementCount
	}
	if !primary.IsUnicast() || int(primary)+elementCount-1 > int(address.MaxUnicast) {
		return nil, fmt.Errorf("primary address %s: %w", primary, address.ErrInvalidAddress)
	}
	if len(deviceKey) != crypto.KeySize {
		return nil, ErrInvalidKeyLength
	}
	n := &Node{
		uuid:      id,
		primary:   primary,
		deviceKey: bytes.Clone(deviceKey),
		security:  SecuritySecure,
	}
	for _, idx := range netKeys {
		n.addNetKey(idx)
	}
	elements := make([]*Element, elementCount)
	for i := range elements {
		elements[i] = NewElement(0)
	}
	n.setElements(elements)
	return n, nil
}

// UUID returns the device UUID.
func (n *Node) UUID() uuid.UUID { return n.uuid }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// PrimaryAddress returns the unicast address of the primary element.
func (n *Node) PrimaryAddress() address.Address { return n.primary }

// DeviceKey returns the device key, or nil if unknown.
func (n *Node) DeviceKey() []byte { return bytes.Clone(n.deviceKey) }

// Security returns the node security level.
func (n *Node) Security() Security { return n.security }

// NetworkKeys returns the network keys known to the node.
func (n *Node) NetworkKeys() []NodeKey { return slices.Clone(n.netKeys) }

// ApplicationKeys returns the application keys known to the node.
func (n *Node) ApplicationKeys() []NodeKey { return slices.Clone(n.appKeys) }

// Elements returns the node elements, primary first.
func (n *Node) Elements() []*Element { return slices.Clone(n.elements) }

// ElementCount returns the number of elements.
func (n *Node) ElementCount() int { return len(n.elements) }

// Features returns the node features.
func (n *Node) Features() Features { return n.features }

// DefaultTTL returns the node default TTL if known.
func (n *Node) DefaultTTL() (uint8, bool) {
	if n.defaultTTL == nil {
		return 0, false
	}
	return *n.defaultTTL, true
}

// CompanyID returns the company identifier from the composition data.
func (n *Node) CompanyID() (uint16, bool) { return optional(n.companyID) }

// ProductID returns the product identifier from the composition data.
func (n *Node) ProductID() (uint16, bool) { return optional(n.productID) }

// VersionID returns the version identifier from the composition data.
func (n *Node) VersionID() (uint16, bool) { return optional(n.versionID) }

// ReplayProtectionCount returns the replay protection list capacity.
func (n *Node) ReplayProtectionCount() (uint16, bool) { return optional(n.crpl) }

// IsExcluded reports whether the node was excluded from the network.
func (n *Node) IsExcluded() bool { return n.excluded }

// IsConfigComplete reports whether configuration was marked complete.
func (n *Node) IsConfigComplete() bool { return n.configComplete }

// IsCompositionDataReceived reports whether Composition Data was applied.
func (n *Node) IsCompositionDataReceived() bool { return n.companyID != nil }

func optional(v *uint16) (uint16, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// UnicastRange returns the addresses occupied by the node elements.
func (n *Node) UnicastRange() address.Range {
	count := max(len(n.elements), 1)
	return address.Range{Low: uint16(n.primary), High: uint16(n.primary) + uint16(count-1)}
}

// ContainsAddress reports whether a belongs to one of the node elements.
func (n *Node) ContainsAddress(a address.Address) bool {
	return n.UnicastRange().Contains(uint16(a))
}

// Element returns the element at index, or nil.
func (n *Node) Element(index int) *Element {
	if index < 0 || index >= len(n.elements) {
		return nil
	}
	return n.elements[index]
}

// ElementWithAddress returns the element with the given unicast address.
func (n *Node) ElementWithAddress(a address.Address) *Element {
	if !n.ContainsAddress(a) {
		return nil
	}
	return n.Element(int(a - n.primary))
}

// KnowsNetworkKey reports whether the node knows the network key.
func (n *Node) KnowsNetworkKey(index KeyIndex) bool {
	return containsKey(n.netKeys, index)
}

// KnowsApplicationKey reports whether the node knows the application key.
func (n *Node) KnowsApplicationKey(index KeyIndex) bool {
	return containsKey(n.appKeys, index)
}

func containsKey(keys []NodeKey, index KeyIndex) bool {
	return slices.ContainsFunc(keys, func(k NodeKey) bool { return k.Index == index })
}

// SetName renames the node.
func (n *Node) SetName(name string) {
	if n.name == name {
		return
	}
	n.name = name
	n.network.touch()
}

// SetDefaultTTL records the default TTL reported by the node.
func (n *Node) SetDefaultTTL(ttl uint8) {
	n.defaultTTL = &ttl
	n.network.touch()
}

// SetConfigComplete marks the node configuration as complete.
func (n *Node) SetConfigComplete(done bool) {
	n.configComplete = done
	n.network.touch()
}

// SetSecurity changes the node security level.
func (n *Node) SetSecurity(s Security) {
	n.security = s
	n.network.touch()
}

// SetFeatures replaces the node feature states.
func (n *Node) SetFeatures(f Features) {
	n.features = f
	n.network.touch()
}

// ApplyComposition applies Composition Data page 0. The received elements
// replace the current ones; models that existed before keep their bindings,
// subscriptions and publication.
func (n *Node) ApplyComposition(c Composition) {
	n.companyID = &c.CompanyID
	n.productID = &c.ProductID
	n.versionID = &c.VersionID
	n.crpl = &c.ReplayProtectionCount
	n.features = c.Features
	for i, e := range c.Elements {
		old := n.Element(i)
		if old == nil {
			continue
		}
		e.name = old.name
		for _, m := range e.models {
			if prev := old.Model(m.id); prev != nil {
				m.bind = slices.Clone(prev.bind)
				m.subscribe = slices.Clone(prev.subscribe)
				m.publish = prev.publish
			}
		}
	}
	n.setElements(c.Elements)
	n.network.touch()
}

// AddNetworkKey records that the node knows the network key.
func (n *Node) AddNetworkKey(index KeyIndex) {
	if n.addNetKey(index) {
		n.network.touch()
	}
}

// RemoveNetworkKey records that the node no longer knows the network key.
// Application keys bound to it are removed as well.
func (n *Node) RemoveNetworkKey(index KeyIndex) {
	if !n.removeNetKey(index) {
		return
	}
	if n.network != nil {
		for _, ak := range n.network.applicationKeys {
			if ak.boundNetKey == index {
				n.removeAppKey(ak.index)
			}
		}
	}
	n.network.touch()
}

// AddApplicationKey records that the node knows the application key.
func (n *Node) AddApplicationKey(index KeyIndex) {
	if n.addAppKey(index) {
		n.network.touch()
	}
}

// RemoveApplicationKey records that the node no longer knows the
// application key and unbinds it from every model.
func (n *Node) RemoveApplicationKey(index KeyIndex) {
	if n.removeAppKey(index) {
		n.network.touch()
	}
}

// UpdateNetworkKey sets the updated flag of a known network key.
func (n *Node) UpdateNetworkKey(index KeyIndex, updated bool) {
	setUpdated(n.netKeys, index, updated)
	n.network.touch()
}

func setUpdated(keys []NodeKey, index KeyIndex, updated bool) {
	for i := range keys {
		if keys[i].Index == index {
			keys[i].Updated = updated
		}
	}
}

func (n *Node) addNetKey(index KeyIndex) bool {
	if n.KnowsNetworkKey(index) {
		return false
	}
	n.netKeys = insertKey(n.netKeys, index)
	return true
}

func (n *Node) removeNetKey(index KeyIndex) bool {
	before := len(n.netKeys)
	n.netKeys = slices.DeleteFunc(n.netKeys, func(k NodeKey) bool { return k.Index == index })
	return len(n.netKeys) != before
}

func (n *Node) addAppKey(index KeyIndex) bool {
	if n.KnowsApplicationKey(index) {
		return false
	}
	n.appKeys = insertKey(n.appKeys, index)
	return true
}

func (n *Node) removeAppKey(index KeyIndex) bool {
	before := len(n.appKeys)
	n.appKeys = slices.DeleteFunc(n.appKeys, func(k NodeKey) bool { return k.Index == index })
	if len(n.appKeys) == before {
		return false
	}
	for _, e := range n.elements {
		for _, m := range e.models {
			m.unbind(index)
		}
	}
	return true
}

func insertKey(keys []NodeKey, index KeyIndex) []NodeKey {
	keys = append(keys, NodeKey{Index: index})
	slices.SortFunc(keys, func(a, b NodeKey) int { return int(a.Index) - int(b.Index) })
	return keys
}

func (n *Node) setElements(elements []*Element) {
	for i, e := range elements {
		e.node = n
		e.index = i
	}
	n.elements = elements
}

// setAllKeys makes the node know every key of the network.
func (n *Node) setAllKeys(net *Network) {
	n.netKeys = nil
	for _, k := range net.networkKeys {
		n.netKeys = append(n.netKeys, NodeKey{Index: k.index})
	}
	n.appKeys = nil
	for _, k := range net.applicationKeys {
		n.appKeys = append(n.appKeys, NodeKey{Index: k.index})
	}
}

// Element is an addressable part of a node.
type Element struct {
	node     *Node
	name     string
	index    int
	location uint16
	models   []*Model
}

// NewElement returns an element with the given GATT location descriptor and
// models.
func NewElement(location uint16, models ...*Model) *Element {
	e := &Element{location: location}
	for _, m := range models {
		m.element = e
	}
	e.models = models
	return e
}

// Node returns the parent node.
func (e *Element) Node() *Node { return e.node }

// Name returns the element name.
func (e *Element) Name() string { return e.name }

// Index returns the element index within the node; 0 is the primary element.
func (e *Element) Index() int { return e.index }

// Location returns the GATT location descriptor.
func (e *Element) Location() uint16 { return e.location }

// Models returns the element models.
func (e *Element) Models() []*Model { return slices.Clone(e.models) }

// Address returns the unicast address of the element.
func (e *Element) Address() address.Address {
	if e.node == nil {
		return address.Unassigned
	}
	return e.node.primary + address.Address(e.index)
}

// Model returns the model with the given identifier, or nil.
func (e *Element) Model(id uint32) *Model {
	for _, m := range e.models {
		if m.id == id {
			return m
		}
	}
	return nil
}

// SetName renames the element.
func (e *Element) SetName(name string) {
	e.name = name
	e.network().touch()
}

func (e *Element) network() *Network {
	if e.node == nil {
		return nil
	}
	return e.node.network
}
