package mesh

import (
	"fmt"
	"slices"

	"github.com/blemesh/mesh-go/pkg/address"
)

// Bluetooth SIG model identifiers used by the network engine.
const (
	ConfigurationServerModelID uint32 = 0x0000
	ConfigurationClientModelID uint32 = 0x0001
	HealthServerModelID        uint32 = 0x0002
	HealthClientModelID        uint32 = 0x0003
	GenericOnOffServerModelID  uint32 = 0x1000
	GenericOnOffClientModelID  uint32 = 0x1001
)

// Publish is the publication configuration of a model.
type Publish struct {
	Address     address.PublicationAddress
	Index       KeyIndex
	TTL         uint8
	PeriodSteps uint8
	// PeriodResolution is the step resolution in milliseconds.
	PeriodResolution uint32
	Credentials      uint8
	RetransmitCount  uint8
	// RetransmitInterval is the interval between retransmissions in
	// milliseconds.
	RetransmitInterval uint16
}

// Model is a functional unit of an element.
type Model struct {
	element   *Element
	id        uint32
	bind      []KeyIndex
	subscribe []address.MeshAddress
	publish   *Publish
}

// NewModel returns a Bluetooth SIG model.
func NewModel(id uint16) *Model {
	return &Model{id: uint32(id)}
}

// NewVendorModel returns a vendor model of the given company.
func NewVendorModel(companyID, id uint16) *Model {
	return &Model{id: uint32(companyID)<<16 | uint32(id)}
}

// ID returns the model identifier. Vendor models carry the company
// identifier in the upper 16 bits.
func (m *Model) ID() uint32 { return m.id }

// IsBluetoothSIG reports whether the model is defined by the Bluetooth SIG.
func (m *Model) IsBluetoothSIG() bool { return m.id <= 0xFFFF }

// IsConfiguration reports whether the model is the Configuration Server or
// Client. Those use the device key and cannot be bound to application keys.
func (m *Model) IsConfiguration() bool {
	return m.id == ConfigurationServerModelID || m.id == ConfigurationClientModelID
}

// String returns the model identifier in hex.
func (m *Model) String() string {
	if m.IsBluetoothSIG() {
		return fmt.Sprintf("%04X", m.id)
	}
	return fmt.Sprintf("%08X", m.id)
}

// Element returns the parent element.
func (m *Model) Element() *Element { return m.element }

// BoundApplicationKeys returns the indices of the bound application keys.
func (m *Model) BoundApplicationKeys() []KeyIndex { return slices.Clone(m.bind) }

// IsBoundTo reports whether the application key is bound to the model.
func (m *Model) IsBoundTo(index KeyIndex) bool { return slices.Contains(m.bind, index) }

// Subscriptions returns the subscription list.
func (m *Model) Subscriptions() []address.MeshAddress { return slices.Clone(m.subscribe) }

// Publication returns the publication, or nil when not configured.
func (m *Model) Publication() *Publish {
	if m.publish == nil {
		return nil
	}
	p := *m.publish
	return &p
}

// IsSubscribedTo reports whether the model subscribes to a.
func (m *Model) IsSubscribedTo(a address.Address) bool {
	return slices.ContainsFunc(m.subscribe, func(s address.MeshAddress) bool { return s.Address() == a })
}

// Bind binds the application key to the model.
func (m *Model) Bind(index KeyIndex) {
	if m.IsBoundTo(index) {
		return
	}
	m.bind = append(m.bind, index)
	slices.Sort(m.bind)
	m.network().touch()
}

// Unbind removes the application key binding.
func (m *Model) Unbind(index KeyIndex) {
	if m.unbind(index) {
		m.network().touch()
	}
}

func (m *Model) unbind(index KeyIndex) bool {
	before := len(m.bind)
	m.bind = slices.DeleteFunc(m.bind, func(i KeyIndex) bool { return i == index })
	if m.publish != nil && m.publish.Index == index {
		m.publish = nil
	}
	return len(m.bind) != before
}

// Subscribe adds a to the subscription list.
func (m *Model) Subscribe(a address.SubscriptionAddress) {
	if m.IsSubscribedTo(a.Address()) {
		return
	}
	m.subscribe = append(m.subscribe, a)
	m.network().touch()
}

// Unsubscribe removes a from the subscription list.
func (m *Model) Unsubscribe(a address.Address) {
	before := len(m.subscribe)
	m.subscribe = slices.DeleteFunc(m.subscribe, func(s address.MeshAddress) bool { return s.Address() == a })
	if len(m.subscribe) != before {
		m.network().touch()
	}
}

// SetPublication sets or, with nil, clears the publication.
func (m *Model) SetPublication(p *Publish) {
	if p != nil {
		cp := *p
		p = &cp
	}
	m.publish = p
	m.network().touch()
}

func (m *Model) network() *Network {
	if m.element == nil {
		return nil
	}
	return m.element.network()
}
