package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendPreconditions(t *testing.T) {
	ctx := context.Background()
	onOffGet := &access.GenericOnOffGet{}

	t.Run("no network", func(t *testing.T) {
		m, err := NewNetworkManager(persistence.NewMemoryNetworkStorage(), persistence.NewMemorySecureStorage(), DefaultConfig())
		require.NoError(t, err)
		err = m.Send(ctx, onOffGet, address.MustUnicast(remoteAddress), nil, WithTTL(200))
		assert.ErrorIs(t, err, ErrNoNetwork)
		_, err = m.SendToLocalNode(ctx, &access.ConfigDefaultTtlGet{})
		assert.ErrorIs(t, err, ErrNoNetwork)
	})

	f := newFixture(t)
	unbound := mesh.NewModel(0x1002)
	remoteElement := f.remote.Element(1)

	tests := []struct {
		name string
		send func() error
		want error
	}{
		{
			name: "TTL above maximum",
			send: func() error {
				return f.m.Send(ctx, onOffGet, address.MustUnicast(remoteAddress), f.appKey, WithTTL(200))
			},
			want: ErrInvalidTtl,
		},
		{
			name: "TTL checked before destination",
			send: func() error {
				return f.m.SendConfig(ctx, &access.ConfigDefaultTtlGet{}, 0x0300, WithTTL(128))
			},
			want: ErrInvalidTtl,
		},
		{
			name: "source from another node",
			send: func() error {
				return f.m.SendToModel(ctx, onOffGet, f.onOff, WithSource(remoteElement))
			},
			want: ErrInvalidElement,
		},
		{
			name: "model without bound keys",
			send: func() error {
				model := f.remote.Element(0).Model(mesh.ConfigurationServerModelID)
				return f.m.SendToModel(ctx, onOffGet, model)
			},
			want: ErrNoAppKeysBoundToModel,
		},
		{
			name: "key not bound to model",
			send: func() error {
				other, err := f.net.AddApplicationKey("Other", key(0xBB), 0)
				if err != nil {
					return err
				}
				return f.m.SendToModel(ctx, onOffGet, f.onOff, WithApplicationKey(other))
			},
			want: ErrModelNotBoundToAppKey,
		},
		{
			name: "detached model",
			send: func() error {
				return f.m.SendToModel(ctx, onOffGet, unbound)
			},
			want: ErrInvalidDestination,
		},
		{
			name: "unknown node",
			send: func() error {
				return f.m.SendConfig(ctx, &access.ConfigDefaultTtlGet{}, 0x0300)
			},
			want: ErrInvalidDestination,
		},
		{
			name: "group configuration destination",
			send: func() error {
				return f.m.SendConfig(ctx, &access.ConfigDefaultTtlGet{}, 0xC000)
			},
			want: ErrInvalidDestination,
		},
		{
			name: "delete last network key",
			send: func() error {
				return f.m.SendConfig(ctx, &access.ConfigNetKeyDelete{NetKeyIndex: 0}, remoteAddress)
			},
			want: ErrCannotDelete,
		},
		{
			name: "network key unknown to node",
			send: func() error {
				nk, err := f.net.AddNetworkKey("Secondary", key(0x22))
				if err != nil {
					return err
				}
				return f.m.SendConfig(ctx, &access.ConfigDefaultTtlGet{}, remoteAddress, WithNetworkKey(nk))
			},
			want: ErrInvalidKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.send(), tt.want)
		})
	}
	f.tx.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSendWithoutBearer(t *testing.T) {
	f := newFixture(t)
	f.m.SetTransmitter(nil)

	err := f.m.SendToModel(context.Background(), &access.GenericOnOffGet{}, f.onOff)
	assert.ErrorIs(t, err, ErrCannotRelay)
}

func TestSendToModelBuildsPDU(t *testing.T) {
	f := newFixture(t)
	f.tx.On("Send", mock.Anything, mock.Anything).Return(nil)

	msg := &access.GenericOnOffSetUnacknowledged{OnOffSet: access.OnOffSet{On: true, TID: 7}}
	require.NoError(t, f.m.SendToModel(context.Background(), msg, f.onOff))
	require.NoError(t, f.m.SendToModel(context.Background(), msg, f.onOff, WithTTL(0)))

	pdus := f.tx.sent()
	require.Len(t, pdus, 2)
	pdu := pdus[0]
	assert.Equal(t, localAddress, pdu.Source)
	assert.Equal(t, remoteAddress, pdu.Destination.Address())
	assert.Equal(t, access.Encode(msg), pdu.Payload)
	assert.Equal(t, uint8(5), pdu.TTL)
	assert.Same(t, f.appKey, pdu.ApplicationKey)
	assert.Equal(t, mesh.KeyIndex(0), pdu.NetworkKey.Index())
	assert.Nil(t, pdu.DeviceKey)
	assert.Equal(t, uint32(0), pdu.Sequence)

	assert.Equal(t, uint8(0), pdus[1].TTL)
	assert.Equal(t, uint32(1), pdus[1].Sequence)
}

func TestSendConsumesSequenceOnFailure(t *testing.T) {
	f := newFixture(t)
	f.tx.On("Send", mock.Anything, mock.Anything).Return(errors.New("bearer gone")).Once()
	f.tx.On("Send", mock.Anything, mock.Anything).Return(nil)

	assert.Error(t, f.m.SendConfig(context.Background(), &access.ConfigDefaultTtlGet{}, remoteAddress))
	require.NoError(t, f.m.SendConfig(context.Background(), &access.ConfigDefaultTtlGet{}, remoteAddress))

	pdus := f.tx.sent()
	require.Len(t, pdus, 2)
	assert.Equal(t, uint32(1), pdus[1].Sequence)
}

func TestSendConfigUsesDeviceKey(t *testing.T) {
	f := newFixture(t)
	f.tx.On("Send", mock.Anything, mock.Anything).Return(nil)

	// Configuration messages always go to the primary element.
	require.NoError(t, f.m.SendConfig(context.Background(), &access.ConfigDefaultTtlGet{}, remoteAddress+1))

	pdus := f.tx.sent()
	require.Len(t, pdus, 1)
	assert.Equal(t, remoteAddress, pdus[0].Destination.Address())
	assert.Equal(t, f.remote.DeviceKey(), pdus[0].DeviceKey)
	assert.Nil(t, pdus[0].ApplicationKey)
}

func TestRequestReturnsResponse(t *testing.T) {
	f := newFixture(t)
	f.respond(&access.GenericOnOffStatus{Present: true})

	resp, err := f.m.RequestFromModel(context.Background(), &access.GenericOnOffGet{}, f.onOff)
	require.NoError(t, err)
	status, ok := resp.(*access.GenericOnOffStatus)
	require.True(t, ok, "response is %T", resp)
	assert.True(t, status.Present)
	assert.Zero(t, f.m.pending.len())
}

func TestRequestTimeout(t *testing.T) {
	f := newFixture(t)
	f.tx.On("Send", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.m.RequestConfig(context.Background(), &access.ConfigDefaultTtlGet{}, remoteAddress)
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.Zero(t, f.m.pending.len())
}

func TestRequestCancelled(t *testing.T) {
	f := newFixture(t)
	f.m.config.AcknowledgmentTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	f.tx.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil)

	resp, err := f.m.RequestConfig(ctx, &access.ConfigDefaultTtlGet{}, remoteAddress)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
}

func TestBearerClosedReleasesRequests(t *testing.T) {
	f := newFixture(t)
	f.m.config.AcknowledgmentTimeout = time.Minute
	f.tx.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) { f.m.BearerClosed() }).Return(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := f.m.RequestConfig(context.Background(), &access.ConfigDefaultTtlGet{}, remoteAddress)
		assert.NoError(t, err)
		assert.Nil(t, resp)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request not released by bearer close")
	}
}

func TestGroupSendLoopsBackToSubscribers(t *testing.T) {
	f := newFixture(t)
	f.tx.On("Send", mock.Anything, mock.Anything).Return(nil)
	server := addLocalOnOffServer(t, f)
	group := address.MustGroup(0xC001)
	server.Subscribe(group)

	received := make(chan access.Message, 1)
	require.NoError(t, f.m.RegisterHandler(server, ModelHandlerFunc(
		func(_ context.Context, _ *mesh.Model, msg access.Message, src address.Address) (access.Message, error) {
			assert.Equal(t, localAddress, src)
			received <- msg
			return nil, nil
		})))

	msg := &access.GenericOnOffSetUnacknowledged{OnOffSet: access.OnOffSet{On: true, TID: 1}}
	require.NoError(t, f.m.Send(context.Background(), msg, group, f.appKey))

	f.tx.AssertNumberOfCalls(t, "Send", 1)
	select {
	case got := <-received:
		assert.Equal(t, msg, got)
	default:
		t.Fatal("subscribed local model did not receive the message")
	}
}
