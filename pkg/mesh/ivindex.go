package mesh

import (
	"slices"

	"github.com/blemesh/mesh-go/pkg/address"
)

// IvIndex is the network-wide IV index state.
type IvIndex struct {
	Index        uint32
	UpdateActive bool
	Recovery     bool
}

// TransmitIndex returns the IV index used for transmission. During an IV
// update that is the previous index.
func (iv IvIndex) TransmitIndex() uint32 {
	if iv.UpdateActive && iv.Index > 0 {
		return iv.Index - 1
	}
	return iv.Index
}

// ExclusionList holds unicast addresses of removed nodes that may not be
// reused while the IV index equals IvIndex or IvIndex+1.
type ExclusionList struct {
	IvIndex   uint32
	Addresses []address.Address
}

// AppliesTo reports whether the list still blocks its addresses at the
// given IV index.
func (e ExclusionList) AppliesTo(current uint32) bool {
	return e.IvIndex == current || (current > 0 && e.IvIndex == current-1)
}

// Excludes reports whether the list contains any address of r.
func (e ExclusionList) Excludes(r address.Range) bool {
	return slices.ContainsFunc(e.Addresses, func(a address.Address) bool {
		return r.Contains(uint16(a))
	})
}
