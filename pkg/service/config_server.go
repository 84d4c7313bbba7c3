package service

import (
	"bytes"
	"context"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/mesh"
)

// serveConfig answers a configuration request addressed to the local node.
// Requests to other nodes are ignored.
func (m *NetworkManager) serveConfig(ctx context.Context, in *IncomingPDU, req access.AcknowledgedConfigMessage) error {
	m.mu.Lock()
	net := m.network
	if net == nil {
		m.mu.Unlock()
		return ErrNoNetwork
	}
	local := net.LocalNode()
	if local == nil || local.PrimaryAddress() != in.Destination {
		m.mu.Unlock()
		m.debugLog("ignoring configuration request", "opcode", req.Opcode(), "dst", in.Destination)
		return nil
	}
	resp, changed := m.configServer(net, local, req)
	element := local.Element(0)
	deviceKey := local.DeviceKey()
	m.mu.Unlock()

	if changed {
		if err := m.Save(); err != nil {
			m.warnLog("save after local configuration failed", "error", err)
		}
	}
	if resp == nil {
		return nil
	}
	return m.reply(ctx, in, resp, element, nil, deviceKey)
}

// configServer applies req to the local node and returns the status
// message. m.mu must be held.
func (m *NetworkManager) configServer(net *mesh.Network, local *mesh.Node, req access.AcknowledgedConfigMessage) (access.Message, bool) {
	switch r := req.(type) {
	case *access.ConfigCompositionDataGet:
		return access.NewCompositionDataStatus(local), false

	case *access.ConfigDefaultTtlGet:
		ttl, ok := local.DefaultTTL()
		if !ok {
			ttl = m.config.DefaultTTL
		}
		return &access.ConfigDefaultTtlStatus{TTL: ttl}, false

	case *access.ConfigDefaultTtlSet:
		local.SetDefaultTTL(r.TTL)
		return &access.ConfigDefaultTtlStatus{TTL: r.TTL}, true

	case *access.ConfigNetKeyAdd:
		status := netKeyAddStatus(net, r)
		changed := false
		if status.IsSuccess() {
			changed = !local.KnowsNetworkKey(r.NetKeyIndex)
			local.AddNetworkKey(r.NetKeyIndex)
		}
		return &access.ConfigNetKeyStatus{StatusCode: status, NetKeyIndex: r.NetKeyIndex}, changed

	case *access.ConfigNetKeyDelete:
		resp := &access.ConfigNetKeyStatus{NetKeyIndex: r.NetKeyIndex}
		if !local.KnowsNetworkKey(r.NetKeyIndex) {
			return resp, false
		}
		if len(local.NetworkKeys()) == 1 {
			resp.StatusCode = access.StatusCannotRemove
			return resp, false
		}
		local.RemoveNetworkKey(r.NetKeyIndex)
		return resp, true

	case *access.ConfigAppKeyAdd:
		status := appKeyAddStatus(net, local, r)
		changed := false
		if status.IsSuccess() {
			changed = !local.KnowsApplicationKey(r.AppKeyIndex)
			local.AddApplicationKey(r.AppKeyIndex)
		}
		return &access.ConfigAppKeyStatus{StatusCode: status, NetKeyIndex: r.NetKeyIndex, AppKeyIndex: r.AppKeyIndex}, changed

	case *access.ConfigAppKeyDelete:
		resp := &access.ConfigAppKeyStatus{NetKeyIndex: r.NetKeyIndex, AppKeyIndex: r.AppKeyIndex}
		if !local.KnowsNetworkKey(r.NetKeyIndex) {
			resp.StatusCode = access.StatusInvalidNetKeyIndex
			return resp, false
		}
		if ak := net.ApplicationKey(r.AppKeyIndex); ak != nil && ak.BoundNetworkKeyIndex() != r.NetKeyIndex {
			resp.StatusCode = access.StatusInvalidBinding
			return resp, false
		}
		if !local.KnowsApplicationKey(r.AppKeyIndex) {
			return resp, false
		}
		local.RemoveApplicationKey(r.AppKeyIndex)
		return resp, true

	case *access.ConfigModelAppBind:
		model, status := localModel(local, r.ModelAppBinding)
		if status.IsSuccess() {
			if model.IsConfiguration() {
				status = access.StatusCannotBind
			} else if !model.IsBoundTo(r.AppKeyIndex) {
				model.Bind(r.AppKeyIndex)
				return &access.ConfigModelAppStatus{StatusCode: status, ModelAppBinding: r.ModelAppBinding}, true
			}
		}
		return &access.ConfigModelAppStatus{StatusCode: status, ModelAppBinding: r.ModelAppBinding}, false

	case *access.ConfigModelAppUnbind:
		model, status := localModel(local, r.ModelAppBinding)
		if status.IsSuccess() && model.IsBoundTo(r.AppKeyIndex) {
			model.Unbind(r.AppKeyIndex)
			return &access.ConfigModelAppStatus{StatusCode: status, ModelAppBinding: r.ModelAppBinding}, true
		}
		return &access.ConfigModelAppStatus{StatusCode: status, ModelAppBinding: r.ModelAppBinding}, false

	case *access.ConfigNodeReset:
		// The local node stays part of the network it manages.
		return &access.ConfigNodeResetStatus{}, false
	}

	m.debugLog("unsupported configuration request", "opcode", req.Opcode())
	return nil, false
}

func netKeyAddStatus(net *mesh.Network, r *access.ConfigNetKeyAdd) access.ConfigStatus {
	key := net.NetworkKey(r.NetKeyIndex)
	switch {
	case key == nil:
		return access.StatusInvalidNetKeyIndex
	case !bytes.Equal(key.Key(), r.Key):
		return access.StatusKeyIndexAlreadyStored
	default:
		return access.StatusSuccess
	}
}

func appKeyAddStatus(net *mesh.Network, local *mesh.Node, r *access.ConfigAppKeyAdd) access.ConfigStatus {
	key := net.ApplicationKey(r.AppKeyIndex)
	switch {
	case !local.KnowsNetworkKey(r.NetKeyIndex):
		return access.StatusInvalidNetKeyIndex
	case key == nil:
		return access.StatusInvalidAppKeyIndex
	case key.BoundNetworkKeyIndex() != r.NetKeyIndex:
		return access.StatusInvalidBinding
	case !bytes.Equal(key.Key(), r.Key):
		return access.StatusKeyIndexAlreadyStored
	default:
		return access.StatusSuccess
	}
}

func localModel(local *mesh.Node, b access.ModelAppBinding) (*mesh.Model, access.ConfigStatus) {
	element := local.ElementWithAddress(b.ElementAddress)
	if element == nil {
		return nil, access.StatusInvalidAddress
	}
	model := element.Model(b.ModelID)
	if model == nil {
		return nil, access.StatusInvalidModel
	}
	if !local.KnowsApplicationKey(b.AppKeyIndex) {
		return nil, access.StatusInvalidAppKeyIndex
	}
	return model, access.StatusSuccess
}
