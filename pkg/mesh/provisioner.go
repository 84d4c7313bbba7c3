package mesh

import (
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/google/uuid"
)

// Provisioner is an entity allowed to add nodes to the network. It allocates
// unicast addresses, group addresses and scene numbers from its own ranges.
type Provisioner struct {
	network *Network
	uuid    uuid.UUID
	name    string
	unicast address.RangeSet
	group   address.RangeSet
	scene   address.RangeSet
}

// NewProvisioner returns a provisioner with the given allocated ranges.
func NewProvisioner(id uuid.UUID, name string, unicast, group, scene address.RangeSet) *Provisioner {
	return &Provisioner{
		uuid:    id,
		name:    name,
		unicast: unicast,
		group:   group,
		scene:   scene,
	}
}

// UUID returns the provisioner UUID. The provisioner node shares it.
func (p *Provisioner) UUID() uuid.UUID { return p.uuid }

// Name returns the provisioner name.
func (p *Provisioner) Name() string { return p.name }

// UnicastRanges returns the allocated unicast ranges.
func (p *Provisioner) UnicastRanges() address.RangeSet { return p.unicast }

// GroupRanges returns the allocated group ranges.
func (p *Provisioner) GroupRanges() address.RangeSet { return p.group }

// SceneRanges returns the allocated scene ranges.
func (p *Provisioner) SceneRanges() address.RangeSet { return p.scene }

// SetName renames the provisioner and its node.
func (p *Provisioner) SetName(name string) {
	p.name = name
	if n := p.Node(); n != nil {
		n.name = name
	}
	p.network.touch()
}

// Node returns the provisioner node, or nil when the provisioner has no
// unicast address assigned.
func (p *Provisioner) Node() *Node {
	if p.network == nil {
		return nil
	}
	return p.network.Node(p.uuid)
}

// IsLocal reports whether this is the provisioner of this device.
func (p *Provisioner) IsLocal() bool {
	return p.network != nil && p.network.LocalProvisioner() == p
}

// HasOverlappingRanges reports whether any allocated range of p overlaps a
// range of the same kind of other.
func (p *Provisioner) HasOverlappingRanges(other *Provisioner) bool {
	return p.unicast.OverlapsSet(other.unicast) ||
		p.group.OverlapsSet(other.group) ||
		p.scene.OverlapsSet(other.scene)
}

// AllocateUnicastRange adds r to the unicast ranges.
func (p *Provisioner) AllocateUnicastRange(r address.Range) error {
	if !address.Address(r.Low).IsUnicast() || !address.Address(r.High).IsUnicast() {
		return address.ErrInvalidRange
	}
	return p.allocate(&p.unicast, r, func(o *Provisioner) address.RangeSet { return o.unicast })
}

// AllocateGroupRange adds r to the group ranges.
func (p *Provisioner) AllocateGroupRange(r address.Range) error {
	if !address.Address(r.Low).IsGroup() || !address.Address(r.High).IsGroup() {
		return address.ErrInvalidRange
	}
	return p.allocate(&p.group, r, func(o *Provisioner) address.RangeSet { return o.group })
}

// AllocateSceneRange adds r to the scene ranges.
func (p *Provisioner) AllocateSceneRange(r address.Range) error {
	if r.Low == 0 {
		return address.ErrInvalidRange
	}
	return p.allocate(&p.scene, r, func(o *Provisioner) address.RangeSet { return o.scene })
}

func (p *Provisioner) allocate(set *address.RangeSet, r address.Range, of func(*Provisioner) address.RangeSet) error {
	if p.network != nil {
		for _, o := range p.network.provisioners {
			if o != p && of(o).Overlaps(r) {
				return ErrOverlappingProvisionerRanges
			}
		}
	}
	*set = set.Add(r)
	p.network.touch()
	return nil
}

// DeallocateUnicastRange removes r from the unicast ranges.
func (p *Provisioner) DeallocateUnicastRange(r address.Range) {
	p.unicast = p.unicast.Remove(r)
	p.network.touch()
}

// DeallocateGroupRange removes r from the group ranges.
func (p *Provisioner) DeallocateGroupRange(r address.Range) {
	p.group = p.group.Remove(r)
	p.network.touch()
}

// DeallocateSceneRange removes r from the scene ranges.
func (p *Provisioner) DeallocateSceneRange(r address.Range) {
	p.scene = p.scene.Remove(r)
	p.network.touch()
}
