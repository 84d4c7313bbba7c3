package address

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidAddress is returned when a value does not belong to the expected
// address range.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a raw 16-bit mesh address.
type Address uint16

// Address range constants.
const (
	Unassigned Address = 0x0000

	MinUnicast Address = 0x0001
	MaxUnicast Address = 0x7FFF

	MinVirtual Address = 0x8000
	MaxVirtual Address = 0xBFFF

	MinGroup Address = 0xC000
	MaxGroup Address = 0xFEFF

	minReserved Address = 0xFF00
	maxReserved Address = 0xFFFB

	MinFixedGroup Address = 0xFFFC
	MaxFixedGroup Address = 0xFFFF
)

// IsUnassigned returns true for 0x0000.
func (a Address) IsUnassigned() bool {
	return a == Unassigned
}

// IsUnicast returns true if the address is in the range [0x0001, 0x7FFF].
func (a Address) IsUnicast() bool {
	return a >= MinUnicast && a <= MaxUnicast
}

// IsVirtual returns true if the address is in the range [0x8000, 0xBFFF].
func (a Address) IsVirtual() bool {
	return a >= MinVirtual && a <= MaxVirtual
}

// IsGroup returns true if the address is a dynamically assigned group address.
func (a Address) IsGroup() bool {
	return a >= MinGroup && a <= MaxGroup
}

// IsFixedGroup returns true for one of the four fixed group addresses.
func (a Address) IsFixedGroup() bool {
	return a >= MinFixedGroup
}

// IsReserved returns true for the RFU fixed group range [0xFF00, 0xFFFB].
func (a Address) IsReserved() bool {
	return a >= minReserved && a <= maxReserved
}

// IsValid returns true unless the address is in the reserved range.
func (a Address) IsValid() bool {
	return !a.IsReserved()
}

// String returns the address as 4 upper-case hex digits.
func (a Address) String() string {
	return fmt.Sprintf("%04X", uint16(a))
}

// Parse parses a hex address, with or without a "0x" prefix.
func Parse(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(v), nil
}

// MeshAddress is one of the closed set of typed addresses:
// UnassignedAddress, UnicastAddress, VirtualAddress, GroupAddress or
// FixedGroupAddress.
type MeshAddress interface {
	// Address returns the raw 16-bit value.
	Address() Address

	meshAddress()
}

// PublicationAddress can be set as a model's publication address.
type PublicationAddress interface {
	MeshAddress
	publicationAddress()
}

// SubscriptionAddress can be added to a model's subscription list.
type SubscriptionAddress interface {
	MeshAddress
	subscriptionAddress()
}

// HeartbeatSource can be the source of heartbeat messages.
type HeartbeatSource interface {
	MeshAddress
	heartbeatSource()
}

// HeartbeatDestination can be the destination of heartbeat messages.
type HeartbeatDestination interface {
	MeshAddress
	heartbeatDestination()
}

// PrimaryGroupAddress can identify a Group.
type PrimaryGroupAddress interface {
	MeshAddress
	primaryGroupAddress()
}

// ParentGroupAddress can be the parent of a Group.
type ParentGroupAddress interface {
	MeshAddress
	parentGroupAddress()
}

// UnassignedAddress is the 0x0000 address.
type UnassignedAddress struct{}

func (UnassignedAddress) Address() Address      { return Unassigned }
func (UnassignedAddress) String() string        { return Unassigned.String() }
func (UnassignedAddress) meshAddress()          {}
func (UnassignedAddress) publicationAddress()   {}
func (UnassignedAddress) heartbeatSource()      {}
func (UnassignedAddress) heartbeatDestination() {}
func (UnassignedAddress) parentGroupAddress()   {}

// UnicastAddress is the address of a single element.
type UnicastAddress struct {
	value Address
}

// NewUnicast validates and returns a unicast address.
func NewUnicast(a Address) (UnicastAddress, error) {
	if !a.IsUnicast() {
		return UnicastAddress{}, fmt.Errorf("%w: %s is not a unicast address", ErrInvalidAddress, a)
	}
	return UnicastAddress{value: a}, nil
}

// MustUnicast is like NewUnicast but panics on an invalid value.
func MustUnicast(a Address) UnicastAddress {
	u, err := NewUnicast(a)
	if err != nil {
		panic(err)
	}
	return u
}

func (u UnicastAddress) Address() Address    { return u.value }
func (u UnicastAddress) String() string      { return u.value.String() }
func (UnicastAddress) meshAddress()          {}
func (UnicastAddress) publicationAddress()   {}
func (UnicastAddress) heartbeatSource()      {}
func (UnicastAddress) heartbeatDestination() {}

// VirtualAddress is a 15-bit hash of a Label UUID with the top two bits set to 10.
type VirtualAddress struct {
	value Address
	label uuid.UUID
}

// VirtualHasher computes the virtual address of a Label UUID.
// It is satisfied by crypto.Crypto.
type VirtualHasher interface {
	CreateVirtualAddress(label uuid.UUID) uint16
}

// NewVirtual derives the virtual address of label using h.
func NewVirtual(label uuid.UUID, h VirtualHasher) (VirtualAddress, error) {
	a := Address(h.CreateVirtualAddress(label))
	if !a.IsVirtual() {
		return VirtualAddress{}, fmt.Errorf("%w: hash %s is not a virtual address", ErrInvalidAddress, a)
	}
	return VirtualAddress{value: a, label: label}, nil
}

// RestoreVirtual rebuilds a virtual address from a stored value and label.
func RestoreVirtual(a Address, label uuid.UUID) (VirtualAddress, error) {
	if !a.IsVirtual() {
		return VirtualAddress{}, fmt.Errorf("%w: %s is not a virtual address", ErrInvalidAddress, a)
	}
	return VirtualAddress{value: a, label: label}, nil
}

func (v VirtualAddress) Address() Address   { return v.value }
func (v VirtualAddress) Label() uuid.UUID   { return v.label }
func (v VirtualAddress) String() string     { return v.value.String() }
func (VirtualAddress) meshAddress()         {}
func (VirtualAddress) publicationAddress()  {}
func (VirtualAddress) subscriptionAddress() {}
func (VirtualAddress) primaryGroupAddress() {}
func (VirtualAddress) parentGroupAddress()  {}

// GroupAddress is a dynamically assigned group address.
type GroupAddress struct {
	value Address
}

// NewGroup validates and returns a group address.
func NewGroup(a Address) (GroupAddress, error) {
	if !a.IsGroup() {
		return GroupAddress{}, fmt.Errorf("%w: %s is not a group address", ErrInvalidAddress, a)
	}
	return GroupAddress{value: a}, nil
}

// MustGroup is like NewGroup but panics on an invalid value.
func MustGroup(a Address) GroupAddress {
	g, err := NewGroup(a)
	if err != nil {
		panic(err)
	}
	return g
}

func (g GroupAddress) Address() Address    { return g.value }
func (g GroupAddress) String() string      { return g.value.String() }
func (GroupAddress) meshAddress()          {}
func (GroupAddress) publicationAddress()   {}
func (GroupAddress) subscriptionAddress()  {}
func (GroupAddress) heartbeatDestination() {}
func (GroupAddress) primaryGroupAddress()  {}
func (GroupAddress) parentGroupAddress()   {}

// FixedGroupAddress is one of the four addresses reserved by the mesh profile.
type FixedGroupAddress struct {
	value Address
}

// Fixed group addresses.
var (
	AllProxies = FixedGroupAddress{value: 0xFFFC}
	AllFriends = FixedGroupAddress{value: 0xFFFD}
	AllRelays  = FixedGroupAddress{value: 0xFFFE}
	AllNodes   = FixedGroupAddress{value: 0xFFFF}
)

func (f FixedGroupAddress) Address() Address { return f.value }

func (f FixedGroupAddress) String() string {
	switch f {
	case AllProxies:
		return "all-proxies"
	case AllFriends:
		return "all-friends"
	case AllRelays:
		return "all-relays"
	case AllNodes:
		return "all-nodes"
	default:
		return f.value.String()
	}
}

func (FixedGroupAddress) meshAddress()          {}
func (FixedGroupAddress) publicationAddress()   {}
func (FixedGroupAddress) subscriptionAddress()  {}
func (FixedGroupAddress) heartbeatDestination() {}

// Create returns the typed variant of a raw address.
// Virtual addresses cannot be created from the raw value alone; use NewVirtual.
func Create(a Address) (MeshAddress, error) {
	switch {
	case a.IsUnassigned():
		return UnassignedAddress{}, nil
	case a.IsUnicast():
		return UnicastAddress{value: a}, nil
	case a.IsVirtual():
		return nil, fmt.Errorf("%w: virtual address %s requires a label", ErrInvalidAddress, a)
	case a.IsGroup():
		return GroupAddress{value: a}, nil
	case a.IsFixedGroup():
		return FixedGroupAddress{value: a}, nil
	default:
		return nil, fmt.Errorf("%w: %s is reserved", ErrInvalidAddress, a)
	}
}

// Equal reports whether two mesh addresses have the same raw value.
func Equal(a, b MeshAddress) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Address() == b.Address()
}
