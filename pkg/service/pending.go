package service

import (
	"sync"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
)

// pendingKey correlates a response with its request. Responder is
// Unassigned when the request went to a group or virtual address, in which
// case any node may answer.
type pendingKey struct {
	responder address.Address
	requester address.Address
	opcode    access.Opcode
}

type pendingRequest struct {
	request access.Message
	ch      chan access.Message
}

// pendingTable tracks acknowledged messages awaiting a response.
type pendingTable struct {
	mu      sync.Mutex
	entries map[pendingKey][]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[pendingKey][]*pendingRequest)}
}

// add registers a request. The returned entry must be removed with remove.
func (t *pendingTable) add(key pendingKey, request access.Message) *pendingRequest {
	p := &pendingRequest{request: request, ch: make(chan access.Message, 1)}
	t.mu.Lock()
	t.entries[key] = append(t.entries[key], p)
	t.mu.Unlock()
	return p
}

func (t *pendingTable) remove(key pendingKey, p *pendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.entries[key]
	for i, e := range list {
		if e == p {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.entries, key)
	} else {
		t.entries[key] = list
	}
}

// take removes and returns the oldest request matching a response with
// the given opcode. A request addressed to the responder takes precedence
// over one sent to a group.
func (t *pendingTable) take(responder, requester address.Address, opcode access.Opcode) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range []pendingKey{
		{responder: responder, requester: requester, opcode: opcode},
		{responder: address.Unassigned, requester: requester, opcode: opcode},
	} {
		list := t.entries[key]
		if len(list) == 0 {
			continue
		}
		if len(list) == 1 {
			delete(t.entries, key)
		} else {
			t.entries[key] = list[1:]
		}
		return list[0], true
	}
	return nil, false
}

// deliver hands the response to the waiting request. It must be called at
// most once, after take.
func (p *pendingRequest) deliver(response access.Message) {
	p.ch <- response
}

// closeAll releases every waiting request without a response.
func (t *pendingTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, list := range t.entries {
		for _, p := range list {
			close(p.ch)
		}
		delete(t.entries, key)
	}
}

// len returns the number of waiting requests.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, list := range t.entries {
		n += len(list)
	}
	return n
}
