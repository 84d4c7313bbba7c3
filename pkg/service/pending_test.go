package service

import (
	"testing"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTableTake(t *testing.T) {
	table := newPendingTable()
	op := access.OpGenericOnOffStatus
	group := table.add(pendingKey{responder: address.Unassigned, requester: 0x0001, opcode: op}, &access.GenericOnOffGet{})
	unicast := table.add(pendingKey{responder: 0x0005, requester: 0x0001, opcode: op}, &access.GenericOnOffGet{})
	require.Equal(t, 2, table.len())

	_, ok := table.take(0x0005, 0x0002, op)
	assert.False(t, ok, "different requester")
	_, ok = table.take(0x0005, 0x0001, access.OpDefaultTtlStatus)
	assert.False(t, ok, "different opcode")

	p, ok := table.take(0x0005, 0x0001, op)
	require.True(t, ok)
	assert.Same(t, unicast, p)

	p, ok = table.take(0x0005, 0x0001, op)
	require.True(t, ok)
	assert.Same(t, group, p)

	_, ok = table.take(0x0005, 0x0001, op)
	assert.False(t, ok)
	assert.Zero(t, table.len())
}

func TestPendingTableDeliverAndClose(t *testing.T) {
	table := newPendingTable()
	key := pendingKey{responder: 0x0005, requester: 0x0001, opcode: access.OpDefaultTtlStatus}
	first := table.add(key, &access.ConfigDefaultTtlGet{})
	second := table.add(key, &access.ConfigDefaultTtlGet{})

	p, ok := table.take(0x0005, 0x0001, access.OpDefaultTtlStatus)
	require.True(t, ok)
	require.Same(t, first, p)
	p.deliver(&access.ConfigDefaultTtlStatus{TTL: 3})
	assert.Equal(t, &access.ConfigDefaultTtlStatus{TTL: 3}, <-first.ch)

	table.closeAll()
	_, open := <-second.ch
	assert.False(t, open)
	assert.Zero(t, table.len())

	// Removing an entry released by closeAll is a no-op.
	table.remove(key, second)
	assert.Zero(t, table.len())
}
