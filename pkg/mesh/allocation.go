package mesh

import (
	"slices"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/google/uuid"
)

// firstFit returns the first value inside ranges that starts count
// consecutive values not present in used. used must be sorted ascending.
// Ranges are tried in order.
func firstFit(ranges []address.Range, used []uint16, count int) (uint16, bool) {
	for _, r := range ranges {
		candidate := int(r.Low)
		for _, u := range used {
			v := int(u)
			if v < candidate {
				continue
			}
			if v > int(r.High) {
				break
			}
			if v-candidate >= count {
				return uint16(candidate), true
			}
			candidate = v + 1
		}
		if candidate+count-1 <= int(r.High) {
			return uint16(candidate), true
		}
	}
	return 0, false
}

func sortedUnique(values []uint16) []uint16 {
	slices.Sort(values)
	return slices.Compact(values)
}

// usedUnicastAddresses returns, sorted, the addresses of every node element
// (except the node with id skip) and every address excluded at the current IV
// index.
func (n *Network) usedUnicastAddresses(skip uuid.UUID) []uint16 {
	var used []uint16
	for _, node := range n.nodes {
		if node.uuid == skip {
			continue
		}
		r := node.UnicastRange()
		for v := int(r.Low); v <= int(r.High); v++ {
			used = append(used, uint16(v))
		}
	}
	for _, e := range n.exclusions {
		if !e.AppliesTo(n.ivIndex.Index) {
			continue
		}
		for _, a := range e.Addresses {
			used = append(used, uint16(a))
		}
	}
	return sortedUnique(used)
}

// NextAvailableUnicastAddress returns the lowest address in the
// provisioner's unicast ranges where elementCount consecutive addresses are
// free.
func (n *Network) NextAvailableUnicastAddress(elementCount int, p *Provisioner) (address.Address, error) {
	if elementCount < 1 {
		return address.Unassigned, ErrInvalidElementCount
	}
	if p.unicast.IsEmpty() {
		return address.Unassigned, ErrNoUnicastRangeAllocated
	}
	v, ok := firstFit(p.unicast.Ranges(), n.usedUnicastAddresses(uuid.Nil), elementCount)
	if !ok {
		return address.Unassigned, ErrNoAddressesAvailable
	}
	return address.Address(v), nil
}

// NextAvailableGroup returns the lowest free group address in the
// provisioner's group ranges.
func (n *Network) NextAvailableGroup(p *Provisioner) (address.GroupAddress, error) {
	if p.group.IsEmpty() {
		return address.GroupAddress{}, ErrNoGroupRangeAllocated
	}
	used := make([]uint16, 0, len(n.groups))
	for _, g := range n.groups {
		if a := g.address.Address(); a.IsGroup() {
			used = append(used, uint16(a))
		}
	}
	v, ok := firstFit(p.group.Ranges(), sortedUnique(used), 1)
	if !ok {
		return address.GroupAddress{}, ErrNoAddressesAvailable
	}
	return address.NewGroup(address.Address(v))
}

// NextAvailableScene returns the lowest free scene number in the
// provisioner's scene ranges.
func (n *Network) NextAvailableScene(p *Provisioner) (uint16, error) {
	if p.scene.IsEmpty() {
		return 0, ErrNoSceneRangeAllocated
	}
	used := make([]uint16, 0, len(n.scenes))
	for _, s := range n.scenes {
		used = append(used, s.number)
	}
	v, ok := firstFit(p.scene.Ranges(), sortedUnique(used), 1)
	if !ok {
		return 0, ErrNoAddressesAvailable
	}
	return v, nil
}

// IsAddressAvailable reports whether node could be placed at primary
// address a: no other node occupies any of its element addresses and none is
// excluded at the current IV index.
func (n *Network) IsAddressAvailable(a address.Address, node *Node) bool {
	count := max(node.ElementCount(), 1)
	if !a.IsUnicast() || int(a)+count-1 > int(address.MaxUnicast) {
		return false
	}
	return n.isRangeAvailable(address.Range{Low: uint16(a), High: uint16(a) + uint16(count-1)}, node.uuid)
}

func (n *Network) isRangeAvailable(r address.Range, skip uuid.UUID) bool {
	for _, other := range n.nodes {
		if other.uuid != skip && other.UnicastRange().Overlaps(r) {
			return false
		}
	}
	for _, e := range n.exclusions {
		if e.AppliesTo(n.ivIndex.Index) && e.Excludes(r) {
			return false
		}
	}
	return true
}

// NextAvailableUnicastAddressRange returns the first unicast range of up to
// size addresses not allocated to any provisioner.
func (n *Network) NextAvailableUnicastAddressRange(size int) (address.Range, bool) {
	return n.nextFreeRange(address.MustRange(uint16(address.MinUnicast), uint16(address.MaxUnicast)),
		func(p *Provisioner) address.RangeSet { return p.unicast }, size)
}

// NextAvailableGroupAddressRange returns the first group range of up to
// size addresses not allocated to any provisioner.
func (n *Network) NextAvailableGroupAddressRange(size int) (address.Range, bool) {
	return n.nextFreeRange(address.MustRange(uint16(address.MinGroup), uint16(address.MaxGroup)),
		func(p *Provisioner) address.RangeSet { return p.group }, size)
}

// NextAvailableSceneRange returns the first scene range of up to size
// numbers not allocated to any provisioner.
func (n *Network) NextAvailableSceneRange(size int) (address.Range, bool) {
	return n.nextFreeRange(address.MustRange(0x0001, 0xFFFF),
		func(p *Provisioner) address.RangeSet { return p.scene }, size)
}

func (n *Network) nextFreeRange(bounds address.Range, of func(*Provisioner) address.RangeSet, size int) (address.Range, bool) {
	if size < 1 {
		return address.Range{}, false
	}
	free := address.NewRangeSet(bounds)
	for _, p := range n.provisioners {
		free = free.RemoveSet(of(p))
	}
	if free.IsEmpty() {
		return address.Range{}, false
	}
	r := free.Ranges()[0]
	if r.Count() > size {
		r.High = r.Low + uint16(size-1)
	}
	return r, true
}
