package service

import (
	"context"
	"testing"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendToLocalNode(t *testing.T) {
	f := newFixture(t)
	f.m.SetTransmitter(nil)
	ctx := context.Background()

	resp, err := f.m.SendToLocalNode(ctx, &access.ConfigDefaultTtlSet{TTL: 10})
	require.NoError(t, err)
	assert.Equal(t, &access.ConfigDefaultTtlStatus{TTL: 10}, resp)

	ttl, ok := f.net.LocalNode().DefaultTTL()
	require.True(t, ok)
	assert.Equal(t, uint8(10), ttl)

	resp, err = f.m.SendToLocalNode(ctx, &access.ConfigDefaultTtlGet{})
	require.NoError(t, err)
	assert.Equal(t, &access.ConfigDefaultTtlStatus{TTL: 10}, resp)

	// Request and response both use a sequence number of the local node.
	seq, err := f.secure.SequenceNumber(f.net.UUID(), localAddress)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), seq)
	assert.Zero(t, f.m.pending.len())
}

func TestLocalConfigServer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.SetTransmitter(nil)
	local := f.net.LocalNode()

	request := func(t *testing.T, msg access.AcknowledgedConfigMessage) access.Message {
		t.Helper()
		resp, err := f.m.SendToLocalNode(ctx, msg)
		require.NoError(t, err)
		require.NotNil(t, resp)
		return resp
	}

	t.Run("composition data", func(t *testing.T) {
		resp := request(t, &access.ConfigCompositionDataGet{})
		status, ok := resp.(*access.ConfigCompositionDataStatus)
		require.True(t, ok)
		require.Len(t, status.Elements, 1)
		assert.Equal(t, []uint16{0x0000, 0x0001}, status.Elements[0].SIGModels)
	})

	t.Run("net key add", func(t *testing.T) {
		nk, err := f.net.AddNetworkKey("Secondary", key(0x22))
		require.NoError(t, err)

		resp := request(t, access.NewConfigNetKeyAdd(nk))
		assert.Equal(t, access.StatusSuccess, resp.(*access.ConfigNetKeyStatus).StatusCode)

		wrong := access.NewConfigNetKeyAdd(nk)
		wrong.Key = key(0x33)
		resp = request(t, wrong)
		assert.Equal(t, access.StatusKeyIndexAlreadyStored, resp.(*access.ConfigNetKeyStatus).StatusCode)

		resp = request(t, &access.ConfigNetKeyAdd{NetKeyIndex: 0x0123, Key: key(0x44)})
		assert.Equal(t, access.StatusInvalidNetKeyIndex, resp.(*access.ConfigNetKeyStatus).StatusCode)
	})

	t.Run("net key delete", func(t *testing.T) {
		resp := request(t, &access.ConfigNetKeyDelete{NetKeyIndex: 0x0123})
		assert.Equal(t, access.StatusSuccess, resp.(*access.ConfigNetKeyStatus).StatusCode)
	})

	t.Run("app key add", func(t *testing.T) {
		resp := request(t, access.NewConfigAppKeyAdd(f.appKey))
		assert.Equal(t, access.StatusSuccess, resp.(*access.ConfigAppKeyStatus).StatusCode)
		assert.True(t, local.KnowsApplicationKey(f.appKey.Index()))

		resp = request(t, &access.ConfigAppKeyAdd{NetKeyIndex: 0, AppKeyIndex: 0x0200, Key: key(0x55)})
		assert.Equal(t, access.StatusInvalidAppKeyIndex, resp.(*access.ConfigAppKeyStatus).StatusCode)
	})

	t.Run("model app bind", func(t *testing.T) {
		configServer := local.Element(0).Model(mesh.ConfigurationServerModelID)
		resp := request(t, &access.ConfigModelAppBind{ModelAppBinding: access.NewModelAppBinding(configServer, f.appKey)})
		assert.Equal(t, access.StatusCannotBind, resp.(*access.ConfigModelAppStatus).StatusCode)

		binding := access.NewModelAppBinding(configServer, f.appKey)
		binding.ElementAddress = 0x0005
		resp = request(t, &access.ConfigModelAppBind{ModelAppBinding: binding})
		assert.Equal(t, access.StatusInvalidAddress, resp.(*access.ConfigModelAppStatus).StatusCode)

		binding = access.NewModelAppBinding(configServer, f.appKey)
		binding.ModelID = uint32(mesh.GenericOnOffClientModelID)
		resp = request(t, &access.ConfigModelAppBind{ModelAppBinding: binding})
		assert.Equal(t, access.StatusInvalidModel, resp.(*access.ConfigModelAppStatus).StatusCode)
	})

	t.Run("model app unbind", func(t *testing.T) {
		server := addLocalOnOffServer(t, f)
		binding := access.NewModelAppBinding(server, f.appKey)
		resp := request(t, &access.ConfigModelAppUnbind{ModelAppBinding: binding})
		assert.Equal(t, access.StatusSuccess, resp.(*access.ConfigModelAppStatus).StatusCode)
		assert.False(t, server.IsBoundTo(f.appKey.Index()))

		resp = request(t, &access.ConfigModelAppBind{ModelAppBinding: binding})
		assert.Equal(t, access.StatusSuccess, resp.(*access.ConfigModelAppStatus).StatusCode)
		assert.True(t, server.IsBoundTo(f.appKey.Index()))
	})

	t.Run("node reset keeps local node", func(t *testing.T) {
		resp := request(t, &access.ConfigNodeReset{})
		assert.IsType(t, &access.ConfigNodeResetStatus{}, resp)
		assert.Same(t, local, f.net.LocalNode())
	})
}

func TestLocalConfigServerCannotRemoveLastKey(t *testing.T) {
	f := newFixture(t)
	local := f.net.LocalNode()

	resp, changed := f.m.configServer(f.net, local, &access.ConfigNetKeyDelete{NetKeyIndex: 0})
	assert.False(t, changed)
	assert.Equal(t, access.StatusCannotRemove, resp.(*access.ConfigNetKeyStatus).StatusCode)
	assert.True(t, local.KnowsNetworkKey(0))
}

func TestRemoteRequestToLocalConfigServer(t *testing.T) {
	f := newFixture(t)
	f.tx.On("Send", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.m.Receive(context.Background(), f.incoming(localAddress, &access.ConfigDefaultTtlGet{})))

	pdus := f.tx.sent()
	require.Len(t, pdus, 1)
	assert.Equal(t, remoteAddress, pdus[0].Destination.Address())
	assert.Equal(t, f.net.LocalNode().DeviceKey(), pdus[0].DeviceKey)
	assert.Nil(t, pdus[0].ApplicationKey)
	assert.Equal(t, access.Encode(&access.ConfigDefaultTtlStatus{TTL: 5}), pdus[0].Payload)
}

func TestRemoteRequestToOtherNodeIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Receive(context.Background(), f.incoming(0x0200, &access.ConfigDefaultTtlGet{})))
	f.tx.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
