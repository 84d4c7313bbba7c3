package mesh

import (
	"slices"

	"github.com/blemesh/mesh-go/pkg/address"
)

// Group is a named group or virtual address.
type Group struct {
	network *Network
	name    string
	address address.PrimaryGroupAddress
	parent  address.ParentGroupAddress
}

// NewGroup returns a group without a parent.
func NewGroup(name string, a address.PrimaryGroupAddress) *Group {
	return &Group{name: name, address: a, parent: address.UnassignedAddress{}}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Address returns the group address.
func (g *Group) Address() address.PrimaryGroupAddress { return g.address }

// Parent returns the parent group address; UnassignedAddress when the group
// has no parent.
func (g *Group) Parent() address.ParentGroupAddress { return g.parent }

// SetName renames the group.
func (g *Group) SetName(name string) {
	g.name = name
	g.network.touch()
}

// SetParent sets the parent group. A group cannot be its own parent.
func (g *Group) SetParent(parent address.ParentGroupAddress) error {
	if parent == nil {
		parent = address.UnassignedAddress{}
	}
	if parent.Address() == g.address.Address() {
		return address.ErrInvalidAddress
	}
	g.parent = parent
	g.network.touch()
	return nil
}

// IsUsed reports whether a model publishes or subscribes to the group, or
// another group names it as parent.
func (g *Group) IsUsed() bool {
	if g.network == nil {
		return false
	}
	a := g.address.Address()
	for _, other := range g.network.groups {
		if other != g && other.parent.Address() == a {
			return true
		}
	}
	for _, n := range g.network.nodes {
		for _, e := range n.elements {
			for _, m := range e.models {
				if m.IsSubscribedTo(a) {
					return true
				}
				if m.publish != nil && m.publish.Address != nil && m.publish.Address.Address() == a {
					return true
				}
			}
		}
	}
	return false
}

// Scene is a named scene number with the node addresses that store it.
type Scene struct {
	network   *Network
	name      string
	number    uint16
	addresses []address.Address
}

// NewScene returns a scene. Scene number 0 is prohibited.
func NewScene(name string, number uint16) (*Scene, error) {
	if number == 0 {
		return nil, ErrInvalidSceneNumber
	}
	return &Scene{name: name, number: number}, nil
}

// Name returns the scene name.
func (s *Scene) Name() string { return s.name }

// Number returns the scene number.
func (s *Scene) Number() uint16 { return s.number }

// Addresses returns the unicast addresses of elements storing the scene.
func (s *Scene) Addresses() []address.Address { return slices.Clone(s.addresses) }

// IsUsed reports whether any element stores the scene.
func (s *Scene) IsUsed() bool { return len(s.addresses) > 0 }

// SetName renames the scene.
func (s *Scene) SetName(name string) {
	s.name = name
	s.network.touch()
}

// AddAddress records that the element at a stores the scene.
func (s *Scene) AddAddress(a address.Address) {
	if slices.Contains(s.addresses, a) {
		return
	}
	s.addresses = append(s.addresses, a)
	slices.Sort(s.addresses)
	s.network.touch()
}

// RemoveAddress records that the element at a no longer stores the scene.
func (s *Scene) RemoveAddress(a address.Address) {
	before := len(s.addresses)
	s.addresses = slices.DeleteFunc(s.addresses, func(x address.Address) bool { return x == a })
	if len(s.addresses) != before {
		s.network.touch()
	}
}
