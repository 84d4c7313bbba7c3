package mesh

import (
	"fmt"
	"slices"
	"time"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/crypto"
	"github.com/google/uuid"
)

// Network is the aggregate root of a mesh network.
//
// Network is not safe for concurrent use; callers serialize access.
type Network struct {
	uuid            uuid.UUID
	name            string
	timestamp       time.Time
	partial         bool
	ivIndex         IvIndex
	provisioners    []*Provisioner
	networkKeys     []*NetworkKey
	applicationKeys []*ApplicationKey
	nodes           []*Node
	groups          []*Group
	scenes          []*Scene
	exclusions      []ExclusionList

	clock func() time.Time
}

// New returns an empty network with a random UUID.
func New(name string) *Network {
	return NewWithUUID(uuid.New(), name)
}

// NewWithUUID returns an empty network with the given UUID.
func NewWithUUID(id uuid.UUID, name string) *Network {
	n := &Network{uuid: id, name: name, clock: time.Now}
	n.timestamp = n.now()
	return n
}

func (n *Network) now() time.Time {
	if n == nil || n.clock == nil {
		return time.Now().UTC().Truncate(time.Second)
	}
	return n.clock().UTC().Truncate(time.Second)
}

// touch records a modification. Entities detached from a network have a nil
// network, which makes this a no-op.
func (n *Network) touch() {
	if n == nil {
		return
	}
	n.timestamp = n.now()
}

// UUID returns the mesh UUID.
func (n *Network) UUID() uuid.UUID { return n.uuid }

// Name returns the network name.
func (n *Network) Name() string { return n.name }

// Timestamp returns the time of the last modification.
func (n *Network) Timestamp() time.Time { return n.timestamp }

// IsPartial reports whether the network was imported from a partial export.
func (n *Network) IsPartial() bool { return n.partial }

// IvIndex returns the current IV index.
func (n *Network) IvIndex() IvIndex { return n.ivIndex }

// SetName renames the network.
func (n *Network) SetName(name string) {
	if n.name == name {
		return
	}
	n.name = name
	n.touch()
}

// SetIvIndex sets the IV index and drops exclusion lists that no longer
// apply.
func (n *Network) SetIvIndex(iv IvIndex) {
	n.ivIndex = iv
	before := len(n.exclusions)
	n.exclusions = slices.DeleteFunc(n.exclusions, func(e ExclusionList) bool {
		return e.IvIndex < iv.Index && !e.AppliesTo(iv.Index)
	})
	if len(n.exclusions) != before {
		n.touch()
	}
}

// Provisioners returns the provisioners; the first one is local.
func (n *Network) Provisioners() []*Provisioner { return slices.Clone(n.provisioners) }

// NetworkKeys returns the network keys ordered by index.
func (n *Network) NetworkKeys() []*NetworkKey { return slices.Clone(n.networkKeys) }

// ApplicationKeys returns the application keys ordered by index.
func (n *Network) ApplicationKeys() []*ApplicationKey { return slices.Clone(n.applicationKeys) }

// Nodes returns the nodes.
func (n *Network) Nodes() []*Node { return slices.Clone(n.nodes) }

// Groups returns the groups.
func (n *Network) Groups() []*Group { return slices.Clone(n.groups) }

// Scenes returns the scenes.
func (n *Network) Scenes() []*Scene { return slices.Clone(n.scenes) }

// ExclusionLists returns the exclusion lists.
func (n *Network) ExclusionLists() []ExclusionList {
	out := make([]ExclusionList, len(n.exclusions))
	for i, e := range n.exclusions {
		out[i] = ExclusionList{IvIndex: e.IvIndex, Addresses: slices.Clone(e.Addresses)}
	}
	return out
}

// NetworkKey returns the network key with the given index, or nil.
func (n *Network) NetworkKey(index KeyIndex) *NetworkKey {
	if i := n.networkKeyPosition(index); i >= 0 {
		return n.networkKeys[i]
	}
	return nil
}

// ApplicationKey returns the application key with the given index, or nil.
func (n *Network) ApplicationKey(index KeyIndex) *ApplicationKey {
	if i := n.applicationKeyPosition(index); i >= 0 {
		return n.applicationKeys[i]
	}
	return nil
}

// LocalProvisioner returns the provisioner of this device, or nil.
func (n *Network) LocalProvisioner() *Provisioner {
	if len(n.provisioners) == 0 {
		return nil
	}
	return n.provisioners[0]
}

// LocalNode returns the node of the local provisioner, or nil.
func (n *Network) LocalNode() *Node {
	if p := n.LocalProvisioner(); p != nil {
		return n.Node(p.uuid)
	}
	return nil
}

// Provisioner returns the provisioner with the given UUID, or nil.
func (n *Network) Provisioner(id uuid.UUID) *Provisioner {
	for _, p := range n.provisioners {
		if p.uuid == id {
			return p
		}
	}
	return nil
}

// Node returns the node with the given UUID, or nil.
func (n *Network) Node(id uuid.UUID) *Node {
	for _, node := range n.nodes {
		if node.uuid == id {
			return node
		}
	}
	return nil
}

// NodeWithAddress returns the node that has an element with address a.
func (n *Network) NodeWithAddress(a address.Address) *Node {
	for _, node := range n.nodes {
		if node.ContainsAddress(a) {
			return node
		}
	}
	return nil
}

// ElementWithAddress returns the element with unicast address a, or nil.
func (n *Network) ElementWithAddress(a address.Address) *Element {
	if node := n.NodeWithAddress(a); node != nil {
		return node.ElementWithAddress(a)
	}
	return nil
}

// Group returns the group with address a, or nil.
func (n *Network) Group(a address.Address) *Group {
	for _, g := range n.groups {
		if g.address.Address() == a {
			return g
		}
	}
	return nil
}

// Scene returns the scene with the given number, or nil.
func (n *Network) Scene(number uint16) *Scene {
	for _, s := range n.scenes {
		if s.number == number {
			return s
		}
	}
	return nil
}

// AddNode adds a provisioned node to the network.
func (n *Network) AddNode(node *Node) error {
	if n.Node(node.uuid) != nil {
		return ErrNodeAlreadyExists
	}
	if !n.IsAddressAvailable(node.primary, node) {
		return ErrNoAddressesAvailable
	}
	if len(node.netKeys) == 0 {
		return ErrNoNetworkKey
	}
	if n.NetworkKey(node.netKeys[0].Index) == nil {
		return ErrDoesNotBelongToNetwork
	}
	if node.network != nil && node.network != n {
		return ErrDoesNotBelongToNetwork
	}
	node.network = n
	n.nodes = append(n.nodes, node)
	n.touch()
	return nil
}

// RemoveNode removes the node with the given UUID. Its addresses are removed
// from every scene and excluded from reuse for the current and next IV
// index.
func (n *Network) RemoveNode(id uuid.UUID) (*Node, error) {
	i := slices.IndexFunc(n.nodes, func(node *Node) bool { return node.uuid == id })
	if i < 0 {
		return nil, ErrDoesNotBelongToNetwork
	}
	node := n.nodes[i]
	n.nodes = slices.Delete(n.nodes, i, i+1)

	r := node.UnicastRange()
	var excluded []address.Address
	for v := int(r.Low); v <= int(r.High); v++ {
		excluded = append(excluded, address.Address(v))
	}
	for _, s := range n.scenes {
		s.addresses = slices.DeleteFunc(s.addresses, func(a address.Address) bool {
			return r.Contains(uint16(a))
		})
	}
	n.exclusions = append(n.exclusions, ExclusionList{IvIndex: n.ivIndex.Index, Addresses: excluded})

	node.excluded = true
	node.network = nil
	n.touch()
	return node, nil
}

// AddProvisioner adds a provisioner without a unicast address. Such a
// provisioner cannot send configuration messages until an address is
// assigned with AssignUnicastAddress.
func (n *Network) AddProvisioner(p *Provisioner) error {
	if err := n.checkProvisioner(p); err != nil {
		return err
	}
	n.attachProvisioner(p)
	return nil
}

// AddProvisionerWithAddress adds a provisioner and creates its node at
// unicast address a. The node knows every network and application key.
func (n *Network) AddProvisionerWithAddress(p *Provisioner, a address.Address) error {
	if err := n.checkProvisioner(p); err != nil {
		return err
	}
	r := address.Range{Low: uint16(a), High: uint16(a)}
	if !a.IsUnicast() || !p.unicast.ContainsRange(r) {
		return ErrAddressNotInAllocatedRanges
	}
	if !n.isRangeAvailable(r, p.uuid) {
		return ErrAddressAlreadyInUse
	}
	node, err := n.provisionerNode(p, a)
	if err != nil {
		return err
	}
	n.attachProvisioner(p)
	node.network = n
	n.nodes = append(n.nodes, node)
	n.touch()
	return nil
}

func (n *Network) checkProvisioner(p *Provisioner) error {
	if n.Provisioner(p.uuid) != nil {
		return ErrProvisionerAlreadyExists
	}
	if p.network != nil && p.network != n {
		return ErrDoesNotBelongToNetwork
	}
	for _, o := range n.provisioners {
		if p.HasOverlappingRanges(o) {
			return ErrOverlappingProvisionerRanges
		}
	}
	return nil
}

func (n *Network) attachProvisioner(p *Provisioner) {
	p.network = n
	n.provisioners = append(n.provisioners, p)
	n.touch()
}

// provisionerNode builds the node of a provisioner: one element with the
// Configuration Server and Client models.
func (n *Network) provisionerNode(p *Provisioner, a address.Address) (*Node, error) {
	deviceKey, err := crypto.New().GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	node, err := NewNode(p.uuid, a, deviceKey, 1)
	if err != nil {
		return nil, err
	}
	node.name = p.name
	node.setElements([]*Element{NewElement(0,
		NewModel(uint16(ConfigurationServerModelID)),
		NewModel(uint16(ConfigurationClientModelID)),
	)})
	node.setAllKeys(n)
	ttl := uint8(5)
	node.defaultTTL = &ttl
	node.configComplete = true
	return node, nil
}

// RemoveProvisioner removes the provisioner and its node. The last
// provisioner cannot be removed. When the local provisioner is removed the
// next one becomes local and its node learns every key.
func (n *Network) RemoveProvisioner(id uuid.UUID) (*Provisioner, error) {
	i := slices.IndexFunc(n.provisioners, func(p *Provisioner) bool { return p.uuid == id })
	if i < 0 {
		return nil, ErrDoesNotBelongToNetwork
	}
	if len(n.provisioners) == 1 {
		return nil, ErrCannotRemove
	}
	p := n.provisioners[i]
	n.provisioners = slices.Delete(n.provisioners, i, i+1)
	if n.Node(id) != nil {
		if _, err := n.RemoveNode(id); err != nil {
			return nil, err
		}
	}
	if i == 0 {
		if node := n.LocalNode(); node != nil {
			node.setAllKeys(n)
		}
	}
	p.network = nil
	n.touch()
	return p, nil
}

// SetLocalProvisioner makes p the local provisioner.
func (n *Network) SetLocalProvisioner(p *Provisioner) error {
	i := slices.Index(n.provisioners, p)
	if i < 0 {
		return ErrDoesNotBelongToNetwork
	}
	if i == 0 {
		return nil
	}
	n.provisioners = slices.Delete(n.provisioners, i, i+1)
	n.provisioners = slices.Insert(n.provisioners, 0, p)
	if node := n.LocalNode(); node != nil {
		node.setAllKeys(n)
	}
	n.touch()
	return nil
}

// AssignUnicastAddress moves the provisioner node to a, creating the node if
// the provisioner had none.
func (n *Network) AssignUnicastAddress(a address.Address, p *Provisioner) error {
	if p.network != n {
		return ErrDoesNotBelongToNetwork
	}
	node := p.Node()
	count := 1
	if node != nil {
		count = node.ElementCount()
	}
	r := address.Range{Low: uint16(a), High: uint16(a) + uint16(count-1)}
	if !a.IsUnicast() || int(a)+count-1 > int(address.MaxUnicast) || !p.unicast.ContainsRange(r) {
		return ErrAddressNotInAllocatedRanges
	}
	if !n.isRangeAvailable(r, p.uuid) {
		return ErrAddressAlreadyInUse
	}
	if node != nil {
		node.primary = a
		n.touch()
		return nil
	}
	node, err := n.provisionerNode(p, a)
	if err != nil {
		return err
	}
	node.network = n
	n.nodes = append(n.nodes, node)
	n.touch()
	return nil
}

// AddGroup adds a group.
func (n *Network) AddGroup(g *Group) error {
	if n.Group(g.address.Address()) != nil {
		return ErrGroupAlreadyExists
	}
	if g.network != nil && g.network != n {
		return ErrDoesNotBelongToNetwork
	}
	g.network = n
	n.groups = append(n.groups, g)
	n.touch()
	return nil
}

// RemoveGroup removes the group with address a unless it is in use.
func (n *Network) RemoveGroup(a address.Address) (*Group, error) {
	i := slices.IndexFunc(n.groups, func(g *Group) bool { return g.address.Address() == a })
	if i < 0 {
		return nil, ErrDoesNotBelongToNetwork
	}
	g := n.groups[i]
	if g.IsUsed() {
		return nil, ErrGroupInUse
	}
	n.groups = slices.Delete(n.groups, i, i+1)
	g.network = nil
	n.touch()
	return g, nil
}

// AddScene adds a scene.
func (n *Network) AddScene(s *Scene) error {
	if n.Scene(s.number) != nil {
		return ErrSceneAlreadyExists
	}
	if s.network != nil && s.network != n {
		return ErrDoesNotBelongToNetwork
	}
	s.network = n
	n.scenes = append(n.scenes, s)
	n.touch()
	return nil
}

// RemoveScene removes the scene with the given number unless it is in use.
func (n *Network) RemoveScene(number uint16) (*Scene, error) {
	i := slices.IndexFunc(n.scenes, func(s *Scene) bool { return s.number == number })
	if i < 0 {
		return nil, ErrDoesNotBelongToNetwork
	}
	s := n.scenes[i]
	if s.IsUsed() {
		return nil, ErrSceneInUse
	}
	n.scenes = slices.Delete(n.scenes, i, i+1)
	s.network = nil
	n.touch()
	return s, nil
}
