// Package proxy tracks the filter of the GATT proxy node the local node is
// connected to.
//
// The filter decides which destination addresses the proxy forwards to the
// local node. It also records which network keys the proxy is known to
// accept, so senders can pick a key the proxy will relay.
package proxy

import (
	"fmt"
	"slices"
	"sync"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
)

// FilterType is the proxy filter mode.
type FilterType uint8

const (
	// InclusionList forwards only messages to listed addresses.
	InclusionList FilterType = iota
	// ExclusionList forwards every message except those to listed addresses.
	ExclusionList
)

// String returns the filter type name.
func (t FilterType) String() string {
	switch t {
	case InclusionList:
		return "inclusion"
	case ExclusionList:
		return "exclusion"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// State is a snapshot of the filter.
type State struct {
	Type      FilterType
	Addresses []address.Address
	Connected bool
	// Proxy is the unicast address of the connected proxy node, or
	// Unassigned.
	Proxy address.Address
	// KnownKeys are the network key indices the proxy accepts.
	KnownKeys []mesh.KeyIndex
}

// Filter is the proxy filter state. It is safe for concurrent use.
type Filter struct {
	mu        sync.Mutex
	typ       FilterType
	addresses []address.Address
	connected bool
	proxy     address.Address
	knownKeys []mesh.KeyIndex
	onChange  func(State)
}

// NewFilter returns a disconnected filter in inclusion mode. onChange, if not
// nil, is called with the new state after every change.
func NewFilter(onChange func(State)) *Filter {
	return &Filter{onChange: onChange}
}

// State returns a snapshot of the filter.
func (f *Filter) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Filter) stateLocked() State {
	return State{
		Type:      f.typ,
		Addresses: slices.Clone(f.addresses),
		Connected: f.connected,
		Proxy:     f.proxy,
		KnownKeys: slices.Clone(f.knownKeys),
	}
}

// update applies fn under the lock and notifies the listener.
func (f *Filter) update(fn func()) {
	f.updateIf(func() bool {
		fn()
		return true
	})
}

// updateIf applies fn under the lock and notifies the listener if fn reports
// a change.
func (f *Filter) updateIf(fn func() bool) {
	f.mu.Lock()
	if !fn() {
		f.mu.Unlock()
		return
	}
	s := f.stateLocked()
	cb := f.onChange
	f.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// Connected records that a proxy connection was opened. A new connection
// starts with an empty inclusion list; the keys known to the proxy node, if
// it is part of the network, are learned from the node.
func (f *Filter) Connected(node *mesh.Node) {
	f.update(func() {
		f.connected = true
		f.typ = InclusionList
		f.addresses = nil
		f.proxy = address.Unassigned
		f.knownKeys = nil
		if node != nil {
			f.proxy = node.PrimaryAddress()
			for _, k := range node.NetworkKeys() {
				f.knownKeys = append(f.knownKeys, k.Index)
			}
		}
	})
}

// Learn records that the proxy relayed a message secured with the network
// key, which proves it knows that key.
func (f *Filter) Learn(index mesh.KeyIndex) {
	f.updateIf(func() bool {
		if slices.Contains(f.knownKeys, index) {
			return false
		}
		f.knownKeys = append(f.knownKeys, index)
		slices.Sort(f.knownKeys)
		return true
	})
}

// Disconnected clears the connection state.
func (f *Filter) Disconnected() {
	f.update(func() {
		f.connected = false
		f.proxy = address.Unassigned
		f.knownKeys = nil
		f.addresses = nil
		f.typ = InclusionList
	})
}

// SetType switches the filter mode and clears the address list, as a proxy
// does when it receives Set Filter Type.
func (f *Filter) SetType(t FilterType) {
	f.update(func() {
		f.typ = t
		f.addresses = nil
	})
}

// Add adds addresses to the filter list.
func (f *Filter) Add(addrs ...address.Address) {
	f.update(func() {
		for _, a := range addrs {
			if !slices.Contains(f.addresses, a) {
				f.addresses = append(f.addresses, a)
			}
		}
		slices.Sort(f.addresses)
	})
}

// Remove removes addresses from the filter list.
func (f *Filter) Remove(addrs ...address.Address) {
	f.update(func() {
		f.addresses = slices.DeleteFunc(f.addresses, func(a address.Address) bool {
			return slices.Contains(addrs, a)
		})
	})
}

// Allows reports whether the proxy forwards messages addressed to a.
func (f *Filter) Allows(a address.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	listed := slices.Contains(f.addresses, a)
	if f.typ == InclusionList {
		return listed
	}
	return !listed
}

// IsConnected reports whether a proxy connection is open.
func (f *Filter) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Proxy returns the address of the connected proxy node.
func (f *Filter) Proxy() address.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proxy
}

// Knows reports whether the connected proxy accepts messages secured with
// key.
func (f *Filter) Knows(key *mesh.NetworkKey) bool {
	if key == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected && slices.Contains(f.knownKeys, key.Index())
}
