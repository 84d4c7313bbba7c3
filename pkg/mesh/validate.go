package mesh

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Validate checks the cross-entity invariants of the network and returns
// every violation found.
func (n *Network) Validate() error {
	var result *multierror.Error

	for i, k := range n.networkKeys {
		if i > 0 && n.networkKeys[i-1].index == k.index {
			result = multierror.Append(result, fmt.Errorf("network key %d: %w", k.index, ErrDuplicateKeyIndex))
		}
	}
	for i, k := range n.applicationKeys {
		if i > 0 && n.applicationKeys[i-1].index == k.index {
			result = multierror.Append(result, fmt.Errorf("application key %d: %w", k.index, ErrDuplicateKeyIndex))
		}
		if !n.partial && n.NetworkKey(k.boundNetKey) == nil {
			result = multierror.Append(result, fmt.Errorf("application key %d bound to network key %d: %w",
				k.index, k.boundNetKey, ErrDoesNotBelongToNetwork))
		}
	}

	for i, p := range n.provisioners {
		for _, o := range n.provisioners[i+1:] {
			if p.uuid == o.uuid {
				result = multierror.Append(result, fmt.Errorf("provisioner %s: %w", p.uuid, ErrProvisionerAlreadyExists))
			}
			if p.HasOverlappingRanges(o) {
				result = multierror.Append(result, fmt.Errorf("provisioners %s and %s: %w",
					p.uuid, o.uuid, ErrOverlappingProvisionerRanges))
			}
		}
	}

	seen := make(map[uuid.UUID]bool, len(n.nodes))
	for i, node := range n.nodes {
		if seen[node.uuid] {
			result = multierror.Append(result, fmt.Errorf("node %s: %w", node.uuid, ErrNodeAlreadyExists))
		}
		seen[node.uuid] = true
		for _, o := range n.nodes[i+1:] {
			if node.UnicastRange().Overlaps(o.UnicastRange()) {
				result = multierror.Append(result, fmt.Errorf("nodes %s and %s at %s: %w",
					node.uuid, o.uuid, node.primary, ErrAddressAlreadyInUse))
			}
		}
		if n.partial {
			continue
		}
		for _, k := range node.netKeys {
			if n.NetworkKey(k.Index) == nil {
				result = multierror.Append(result, fmt.Errorf("node %s network key %d: %w",
					node.uuid, k.Index, ErrDoesNotBelongToNetwork))
			}
		}
		for _, k := range node.appKeys {
			if n.ApplicationKey(k.Index) == nil {
				result = multierror.Append(result, fmt.Errorf("node %s application key %d: %w",
					node.uuid, k.Index, ErrDoesNotBelongToNetwork))
			}
		}
	}

	groups := make(map[uint16]bool, len(n.groups))
	for _, g := range n.groups {
		a := uint16(g.address.Address())
		if groups[a] {
			result = multierror.Append(result, fmt.Errorf("group %s: %w", g.address, ErrGroupAlreadyExists))
		}
		groups[a] = true
	}
	scenes := make(map[uint16]bool, len(n.scenes))
	for _, s := range n.scenes {
		if s.number == 0 {
			result = multierror.Append(result, ErrInvalidSceneNumber)
		}
		if scenes[s.number] {
			result = multierror.Append(result, fmt.Errorf("scene %04X: %w", s.number, ErrSceneAlreadyExists))
		}
		scenes[s.number] = true
	}

	return result.ErrorOrNil()
}
