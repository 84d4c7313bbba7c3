package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/log"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/seqauth"
)

// Receive processes a PDU delivered by the lower layers. Replayed PDUs and
// PDUs sent by the local node are dropped without error.
func (m *NetworkManager) Receive(ctx context.Context, in *IncomingPDU) error {
	m.mu.Lock()
	net, replay := m.network, m.replay
	var fromLocal bool
	if net != nil {
		if local := net.LocalNode(); local != nil {
			fromLocal = local.ContainsAddress(in.Source)
		}
	}
	m.mu.Unlock()

	if net == nil {
		return ErrNoNetwork
	}
	if !in.Source.IsUnicast() {
		return fmt.Errorf("%w: source %s", address.ErrInvalidAddress, in.Source)
	}
	if fromLocal {
		m.debugLog("dropping own message", "src", in.Source, "seq", in.Sequence)
		return nil
	}

	accepted, err := replay.Accept(in.Source, seqauth.SeqAuth(in.IvIndex, in.Sequence), in.Segmented)
	if err != nil {
		return err
	}
	if !accepted {
		m.debugLog("dropping replayed message", "src", in.Source, "seq", in.Sequence, "ivIndex", in.IvIndex)
		m.logError(net.UUID().String(), "replayed message", "replay protection", in.Source)
		return nil
	}

	// A message relayed by the proxy proves it knows the network key.
	m.filter.Learn(in.NetKeyIndex)
	return m.handle(ctx, in)
}

// handle decodes an accepted PDU and routes it.
func (m *NetworkManager) handle(ctx context.Context, in *IncomingPDU) error {
	networkID := m.currentNetworkID()
	msg, err := access.Decode(in.Payload)
	if err != nil {
		m.logError(networkID, err.Error(), "decode", in.Source)
		return fmt.Errorf("decode message from %s: %w", in.Source, err)
	}
	m.logIncoming(networkID, in, msg)

	if in.AppKeyIndex == nil {
		return m.handleConfig(ctx, in, msg)
	}
	return m.handleApp(ctx, in, msg)
}

func (m *NetworkManager) handleConfig(ctx context.Context, in *IncomingPDU, msg access.Message) error {
	cm, ok := msg.(access.ConfigMessage)
	if !ok {
		m.debugLog("ignoring message secured with device key", "opcode", msg.Opcode(), "src", in.Source)
		return nil
	}
	if req, ok := cm.(access.AcknowledgedConfigMessage); ok {
		return m.serveConfig(ctx, in, req)
	}

	p, matched := m.pending.take(in.Source, in.Destination, cm.Opcode())
	var request access.Message
	if matched {
		request = p.request
	}
	changed := m.applyConfigResponse(in.Source, request, cm)
	if matched {
		p.deliver(cm)
	}
	if changed {
		if err := m.Save(); err != nil {
			m.warnLog("save after configuration response failed", "error", err)
		}
	}
	return nil
}

// applyConfigResponse updates the node that sent a configuration status.
// request is the message it answers, if known. It reports whether the
// network changed.
func (m *NetworkManager) applyConfigResponse(src address.Address, request access.Message, resp access.ConfigMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	net := m.network
	if net == nil {
		return false
	}
	node := net.NodeWithAddress(src)
	if node == nil {
		return false
	}

	switch r := resp.(type) {
	case *access.ConfigCompositionDataStatus:
		if r.Page != 0 {
			return false
		}
		node.ApplyComposition(r.Composition())
		return true

	case *access.ConfigDefaultTtlStatus:
		node.SetDefaultTTL(r.TTL)
		return true

	case *access.ConfigNetKeyStatus:
		switch request.(type) {
		case *access.ConfigNetKeyAdd:
			if r.StatusCode.IsSuccess() || r.StatusCode == access.StatusKeyIndexAlreadyStored {
				node.AddNetworkKey(r.NetKeyIndex)
				return true
			}
		case *access.ConfigNetKeyDelete:
			if r.StatusCode.IsSuccess() {
				node.RemoveNetworkKey(r.NetKeyIndex)
				return true
			}
		}

	case *access.ConfigAppKeyStatus:
		switch request.(type) {
		case *access.ConfigAppKeyAdd:
			if r.StatusCode.IsSuccess() || r.StatusCode == access.StatusKeyIndexAlreadyStored {
				node.AddApplicationKey(r.AppKeyIndex)
				return true
			}
		case *access.ConfigAppKeyDelete:
			if r.StatusCode.IsSuccess() {
				node.RemoveApplicationKey(r.AppKeyIndex)
				return true
			}
		}

	case *access.ConfigModelAppStatus:
		if !r.StatusCode.IsSuccess() {
			return false
		}
		element := node.ElementWithAddress(r.ElementAddress)
		if element == nil {
			return false
		}
		model := element.Model(r.ModelID)
		if model == nil {
			return false
		}
		switch request.(type) {
		case *access.ConfigModelAppBind:
			model.Bind(r.AppKeyIndex)
			return true
		case *access.ConfigModelAppUnbind:
			model.Unbind(r.AppKeyIndex)
			return true
		}

	case *access.ConfigNodeResetStatus:
		if node == net.LocalNode() {
			return false
		}
		removed, err := m.removeNode(net, node.UUID())
		if err != nil {
			m.warnLog("removing reset node failed", "node", node.UUID(), "error", err)
		}
		return removed != nil
	}
	return false
}

func (m *NetworkManager) handleApp(ctx context.Context, in *IncomingPDU, msg access.Message) error {
	if p, ok := m.pending.take(in.Source, in.Destination, msg.Opcode()); ok {
		p.deliver(msg)
		return nil
	}

	m.mu.Lock()
	if m.network == nil {
		m.mu.Unlock()
		return ErrNoNetwork
	}
	targets := m.targets(in.Destination, *in.AppKeyIndex)
	appKey := m.network.ApplicationKey(*in.AppKeyIndex)
	m.mu.Unlock()

	if len(targets) == 0 {
		m.debugLog("no handler for message", "opcode", msg.Opcode(), "src", in.Source, "dst", in.Destination)
		return nil
	}
	for _, t := range targets {
		resp, err := t.handler.Handle(ctx, t.model, msg, in.Source)
		if err != nil {
			m.debugLog("model handler failed", "model", t.model, "opcode", msg.Opcode(), "error", err)
			continue
		}
		if resp == nil || appKey == nil {
			continue
		}
		if err := m.reply(ctx, in, resp, t.model.Element(), appKey, nil); err != nil {
			m.debugLog("sending response failed", "opcode", resp.Opcode(), "dst", in.Source, "error", err)
		}
	}
	return nil
}

// reply answers in from element. Application responses use appKey,
// configuration responses the device key of the local node.
func (m *NetworkManager) reply(ctx context.Context, in *IncomingPDU, resp access.Message, element *mesh.Element, appKey *mesh.ApplicationKey, deviceKey []byte) error {
	m.mu.Lock()
	net := m.network
	if net == nil {
		m.mu.Unlock()
		return ErrNoNetwork
	}
	out := &outgoing{
		msg:       resp,
		networkID: net.UUID().String(),
		ivIndex:   net.IvIndex().TransmitIndex(),
		source:    element,
		dst:       address.MustUnicast(in.Source),
		appKey:    appKey,
		netKey:    net.NetworkKey(in.NetKeyIndex),
		deviceKey: deviceKey,
	}
	ttl, err := m.resolveTTL(element.Node(), nil)
	if err == nil && out.netKey == nil {
		err = fmt.Errorf("%w: network key %d", ErrInvalidKey, in.NetKeyIndex)
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}
	out.ttl = ttl
	m.route(net, out)
	m.mu.Unlock()
	return m.dispatch(ctx, out)
}

func (m *NetworkManager) logPDU(networkID string, pdu *PDU, msg access.Message) {
	e := &log.MessageEvent{
		Source:      uint16(pdu.Source),
		Destination: uint16(pdu.Destination.Address()),
		Opcode:      msg.Opcode(),
		Name:        messageName(msg),
		Parameters:  msg.Parameters(),
		Sequence:    pdu.Sequence,
		IvIndex:     pdu.IvIndex,
		TTL:         pdu.TTL,
		NetKeyIndex: uint16(pdu.NetworkKey.Index()),
	}
	if pdu.ApplicationKey != nil {
		e.AppKeyIndex = ptr(uint16(pdu.ApplicationKey.Index()))
	}
	m.logMessage(networkID, log.DirectionOut, e, msg)
}

func (m *NetworkManager) logIncoming(networkID string, in *IncomingPDU, msg access.Message) {
	e := &log.MessageEvent{
		Source:      uint16(in.Source),
		Destination: uint16(in.Destination),
		Opcode:      msg.Opcode(),
		Name:        messageName(msg),
		Parameters:  msg.Parameters(),
		Sequence:    in.Sequence,
		IvIndex:     in.IvIndex,
		TTL:         in.TTL,
		NetKeyIndex: uint16(in.NetKeyIndex),
	}
	if in.AppKeyIndex != nil {
		e.AppKeyIndex = ptr(uint16(*in.AppKeyIndex))
	}
	m.logMessage(networkID, log.DirectionIn, e, msg)
}

func (m *NetworkManager) logMessage(networkID string, dir log.Direction, e *log.MessageEvent, msg access.Message) {
	if s, ok := msg.(access.ConfigStatusMessage); ok {
		e.Status = ptr(s.Status())
	}
	m.plog.Log(log.Event{
		Timestamp: m.timeNow(),
		NetworkID: networkID,
		Direction: dir,
		Layer:     log.LayerAccess,
		Category:  log.CategoryMessage,
		Message:   e,
	})
}

func (m *NetworkManager) logError(networkID, message, where string, src address.Address) {
	m.plog.Log(log.Event{
		Timestamp: m.timeNow(),
		NetworkID: networkID,
		Direction: log.DirectionIn,
		Layer:     log.LayerAccess,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerAccess,
			Message: message,
			Context: where,
			Source:  ptr(uint16(src)),
		},
	})
}

func messageName(msg access.Message) string {
	name := fmt.Sprintf("%T", msg)
	return name[strings.LastIndex(name, ".")+1:]
}
