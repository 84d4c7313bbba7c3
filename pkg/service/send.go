package service

import (
	"context"
	"fmt"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
)

// SendOption customizes an outgoing message.
type SendOption func(*sendOptions)

type sendOptions struct {
	source *mesh.Element
	ttl    *uint8
	appKey *mesh.ApplicationKey
	netKey *mesh.NetworkKey
}

// WithSource sends from the given element of the local node instead of the
// primary element.
func WithSource(e *mesh.Element) SendOption {
	return func(o *sendOptions) { o.source = e }
}

// WithTTL overrides the default TTL.
func WithTTL(ttl uint8) SendOption {
	return func(o *sendOptions) { o.ttl = &ttl }
}

// WithApplicationKey selects the application key for messages sent to a
// model. The key must be bound to the model.
func WithApplicationKey(k *mesh.ApplicationKey) SendOption {
	return func(o *sendOptions) { o.appKey = k }
}

// WithNetworkKey selects the network key for configuration messages. The
// target node must know it.
func WithNetworkKey(k *mesh.NetworkKey) SendOption {
	return func(o *sendOptions) { o.netKey = k }
}

func collectOptions(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// outgoing is a message with its source, destination and security material
// resolved.
type outgoing struct {
	msg       access.Message
	networkID string
	ivIndex   uint32
	source    *mesh.Element
	dst       address.MeshAddress
	ttl       uint8
	netKey    *mesh.NetworkKey
	appKey    *mesh.ApplicationKey
	deviceKey []byte

	// local is set when the local node is among the recipients, remote when
	// the message has to go over the bearer.
	local  bool
	remote bool
}

// Send sends an application message to dst, secured with appKey.
func (m *NetworkManager) Send(ctx context.Context, msg access.Message, dst address.MeshAddress, appKey *mesh.ApplicationKey, opts ...SendOption) error {
	m.mu.Lock()
	out, err := m.resolveApp(msg, dst, appKey, collectOptions(opts))
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.dispatch(ctx, out)
}

// Request sends an acknowledged application message and waits for the
// response. It returns a nil message and nil error when no response
// arrives within the acknowledgment timeout or the bearer closes.
func (m *NetworkManager) Request(ctx context.Context, msg access.AcknowledgedMessage, dst address.MeshAddress, appKey *mesh.ApplicationKey, opts ...SendOption) (access.Message, error) {
	m.mu.Lock()
	out, err := m.resolveApp(msg, dst, appKey, collectOptions(opts))
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.await(ctx, out, msg.ResponseOpcode())
}

// SendToModel sends an application message to the element of model. The
// key is the one given with WithApplicationKey or, by default, the first
// key bound to the model that the proxy can relay.
func (m *NetworkManager) SendToModel(ctx context.Context, msg access.Message, model *mesh.Model, opts ...SendOption) error {
	m.mu.Lock()
	out, err := m.resolveModel(msg, model, collectOptions(opts))
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.dispatch(ctx, out)
}

// RequestFromModel is SendToModel for acknowledged messages. See Request
// for the absent response.
func (m *NetworkManager) RequestFromModel(ctx context.Context, msg access.AcknowledgedMessage, model *mesh.Model, opts ...SendOption) (access.Message, error) {
	m.mu.Lock()
	out, err := m.resolveModel(msg, model, collectOptions(opts))
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.await(ctx, out, msg.ResponseOpcode())
}

// SendConfig sends a configuration message to the node with the unicast
// address dst, secured with its device key.
func (m *NetworkManager) SendConfig(ctx context.Context, msg access.ConfigMessage, dst address.Address, opts ...SendOption) error {
	m.mu.Lock()
	out, err := m.resolveConfig(msg, dst, collectOptions(opts))
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.dispatch(ctx, out)
}

// RequestConfig sends an acknowledged configuration message and waits for
// the status. See Request for the absent response.
func (m *NetworkManager) RequestConfig(ctx context.Context, msg access.AcknowledgedConfigMessage, dst address.Address, opts ...SendOption) (access.Message, error) {
	m.mu.Lock()
	out, err := m.resolveConfig(msg, dst, collectOptions(opts))
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.await(ctx, out, msg.ResponseOpcode())
}

// SendToLocalNode sends a configuration message to the local node with
// TTL 1. It never uses the bearer.
func (m *NetworkManager) SendToLocalNode(ctx context.Context, msg access.AcknowledgedConfigMessage) (access.Message, error) {
	m.mu.Lock()
	net := m.network
	if net == nil {
		m.mu.Unlock()
		return nil, ErrNoNetwork
	}
	node := net.LocalNode()
	if node == nil {
		m.mu.Unlock()
		return nil, ErrInvalidSource
	}
	out, err := m.resolveConfig(msg, node.PrimaryAddress(), sendOptions{ttl: ptr(uint8(1))})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.await(ctx, out, msg.ResponseOpcode())
}

func ptr[T any](v T) *T { return &v }

// resolveSource returns the element to send from. m.mu must be held, as
// for every resolve function.
func (m *NetworkManager) resolveSource(net *mesh.Network, e *mesh.Element) (*mesh.Element, error) {
	local := net.LocalNode()
	if local == nil || local.ElementCount() == 0 {
		return nil, ErrInvalidSource
	}
	if e == nil {
		return local.Element(0), nil
	}
	if e.Node() != local {
		return nil, ErrInvalidElement
	}
	return e, nil
}

func (m *NetworkManager) resolveTTL(local *mesh.Node, ttl *uint8) (uint8, error) {
	v := m.config.DefaultTTL
	switch {
	case ttl != nil:
		v = *ttl
	case local != nil:
		if d, ok := local.DefaultTTL(); ok {
			v = d
		}
	}
	if v > MaxTTL {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTtl, v)
	}
	return v, nil
}

// resolveCommon checks the network, source and TTL, in that order.
func (m *NetworkManager) resolveCommon(msg access.Message, o sendOptions) (*mesh.Network, *outgoing, error) {
	net := m.network
	if net == nil {
		return nil, nil, ErrNoNetwork
	}
	source, err := m.resolveSource(net, o.source)
	if err != nil {
		return nil, nil, err
	}
	ttl, err := m.resolveTTL(source.Node(), o.ttl)
	if err != nil {
		return nil, nil, err
	}
	return net, &outgoing{
		msg:       msg,
		networkID: net.UUID().String(),
		ivIndex:   net.IvIndex().TransmitIndex(),
		source:    source,
		ttl:       ttl,
	}, nil
}

func (m *NetworkManager) resolveApp(msg access.Message, dst address.MeshAddress, appKey *mesh.ApplicationKey, o sendOptions) (*outgoing, error) {
	net, out, err := m.resolveCommon(msg, o)
	if err != nil {
		return nil, err
	}
	if err := m.completeApp(net, out, dst, appKey); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *NetworkManager) resolveModel(msg access.Message, model *mesh.Model, o sendOptions) (*outgoing, error) {
	net, out, err := m.resolveCommon(msg, o)
	if err != nil {
		return nil, err
	}
	if model == nil || model.Element() == nil || model.Element().Node() == nil {
		return nil, ErrInvalidDestination
	}
	element := model.Element()
	node := element.Node()
	if net.Node(node.UUID()) != node {
		return nil, ErrInvalidDestination
	}

	key, err := m.modelKey(net, model, node == net.LocalNode(), o.appKey)
	if err != nil {
		return nil, err
	}
	if err := m.completeApp(net, out, address.MustUnicast(element.Address()), key); err != nil {
		return nil, err
	}
	return out, nil
}

// completeApp sets the destination and keys of an application message.
func (m *NetworkManager) completeApp(net *mesh.Network, out *outgoing, dst address.MeshAddress, appKey *mesh.ApplicationKey) error {
	if dst == nil || dst.Address().IsUnassigned() || !dst.Address().IsValid() {
		return ErrInvalidDestination
	}
	if appKey == nil || net.ApplicationKey(appKey.Index()) != appKey {
		return ErrInvalidKey
	}
	netKey := appKey.BoundNetworkKey()
	if netKey == nil {
		return fmt.Errorf("%w: application key %d is not bound to a network key", ErrInvalidKey, appKey.Index())
	}
	out.dst = dst
	out.appKey = appKey
	out.netKey = netKey
	m.route(net, out)
	if out.remote && !m.filter.Knows(netKey) {
		m.warnLog("proxy may not know the network key", "netKeyIndex", netKey.Index(), "destination", dst)
	}
	return nil
}

// modelKey picks the application key for a message to model.
func (m *NetworkManager) modelKey(net *mesh.Network, model *mesh.Model, toLocal bool, explicit *mesh.ApplicationKey) (*mesh.ApplicationKey, error) {
	if explicit != nil {
		if !model.IsBoundTo(explicit.Index()) {
			return nil, ErrModelNotBoundToAppKey
		}
		return explicit, nil
	}
	bound := model.BoundApplicationKeys()
	if len(bound) == 0 {
		return nil, ErrNoAppKeysBoundToModel
	}
	for _, index := range bound {
		key := net.ApplicationKey(index)
		if key == nil {
			continue
		}
		if toLocal || m.filter.Knows(key.BoundNetworkKey()) {
			return key, nil
		}
	}
	return nil, ErrCannotRelay
}

func (m *NetworkManager) resolveConfig(msg access.ConfigMessage, dst address.Address, o sendOptions) (*outgoing, error) {
	net, out, err := m.resolveCommon(msg, o)
	if err != nil {
		return nil, err
	}
	node := net.NodeWithAddress(dst)
	if !dst.IsUnicast() || node == nil || len(node.NetworkKeys()) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, dst)
	}
	var deleting *mesh.KeyIndex
	if del, ok := msg.(*access.ConfigNetKeyDelete); ok {
		keys := node.NetworkKeys()
		if len(keys) == 1 && keys[0].Index == del.NetKeyIndex {
			return nil, ErrCannotDelete
		}
		deleting = &del.NetKeyIndex
	}
	deviceKey := node.DeviceKey()
	if deviceKey == nil {
		return nil, fmt.Errorf("%w: device key of %s is unknown", ErrInvalidKey, dst)
	}

	toLocal := node == net.LocalNode()
	netKey, err := m.configKey(net, node, toLocal, o.netKey, deleting)
	if err != nil {
		return nil, err
	}

	out.dst = address.MustUnicast(node.PrimaryAddress())
	out.netKey = netKey
	out.deviceKey = deviceKey
	m.route(net, out)
	return out, nil
}

// configKey picks the network key for a configuration message to node.
// When deleting is set, another key is preferred.
func (m *NetworkManager) configKey(net *mesh.Network, node *mesh.Node, toLocal bool, explicit *mesh.NetworkKey, deleting *mesh.KeyIndex) (*mesh.NetworkKey, error) {
	if explicit != nil {
		if net.NetworkKey(explicit.Index()) != explicit || !node.KnowsNetworkKey(explicit.Index()) {
			return nil, fmt.Errorf("%w: node does not know network key %d", ErrInvalidKey, explicit.Index())
		}
		if !toLocal && !m.filter.Knows(explicit) {
			return nil, ErrCannotRelay
		}
		return explicit, nil
	}

	var fallback *mesh.NetworkKey
	for _, nk := range node.NetworkKeys() {
		key := net.NetworkKey(nk.Index)
		if key == nil || !(toLocal || m.filter.Knows(key)) {
			continue
		}
		if deleting != nil && nk.Index == *deleting {
			fallback = key
			continue
		}
		return key, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrCannotRelay
}

// route decides whether the message is delivered to the local node, sent
// over the bearer, or both.
func (m *NetworkManager) route(net *mesh.Network, out *outgoing) {
	a := out.dst.Address()
	local := net.LocalNode()
	if a.IsUnicast() {
		out.local = local != nil && local.ContainsAddress(a)
		out.remote = !out.local
		return
	}
	out.remote = true
	out.local = local != nil && (a.IsFixedGroup() || subscribed(local, a))
}

func subscribed(node *mesh.Node, a address.Address) bool {
	for _, e := range node.Elements() {
		for _, model := range e.Models() {
			if model.IsSubscribedTo(a) {
				return true
			}
		}
	}
	return false
}

// dispatch takes a sequence number for the source element and delivers the
// message. The number is consumed even if sending fails.
func (m *NetworkManager) dispatch(ctx context.Context, out *outgoing) error {
	m.mu.Lock()
	sequence, tx := m.sequence, m.transmitter
	m.mu.Unlock()

	if out.remote && tx == nil {
		return fmt.Errorf("%w: no bearer", ErrCannotRelay)
	}

	src := out.source.Address()
	seq, err := sequence.Next(src)
	if err != nil {
		return err
	}
	pdu := &PDU{
		Source:         src,
		Destination:    out.dst,
		Payload:        access.Encode(out.msg),
		TTL:            out.ttl,
		Sequence:       seq,
		IvIndex:        out.ivIndex,
		NetworkKey:     out.netKey,
		ApplicationKey: out.appKey,
		DeviceKey:      out.deviceKey,
	}
	m.logPDU(out.networkID, pdu, out.msg)

	if out.remote {
		if err := tx.Send(ctx, pdu); err != nil {
			return fmt.Errorf("send %s to %s: %w", out.msg.Opcode(), out.dst, err)
		}
	}
	if out.local {
		in := &IncomingPDU{
			Source:      pdu.Source,
			Destination: pdu.Destination.Address(),
			Payload:     pdu.Payload,
			Sequence:    pdu.Sequence,
			IvIndex:     pdu.IvIndex,
			TTL:         pdu.TTL,
			NetKeyIndex: pdu.NetworkKey.Index(),
		}
		if pdu.ApplicationKey != nil {
			in.AppKeyIndex = ptr(pdu.ApplicationKey.Index())
		}
		if err := m.handle(ctx, in); err != nil {
			m.debugLog("local delivery failed", "opcode", out.msg.Opcode(), "error", err)
		}
	}
	return nil
}

// await registers the request, dispatches it and waits for the response.
func (m *NetworkManager) await(ctx context.Context, out *outgoing, responseOpcode access.Opcode) (access.Message, error) {
	key := pendingKey{requester: out.source.Address(), opcode: responseOpcode}
	if a := out.dst.Address(); a.IsUnicast() {
		key.responder = a
	}
	p := m.pending.add(key, out.msg)
	defer m.pending.remove(key, p)

	if err := m.dispatch(ctx, out); err != nil {
		return nil, err
	}

	timer := time.NewTimer(m.config.AcknowledgmentTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		m.debugLog("no response", "opcode", out.msg.Opcode(), "destination", out.dst)
		return nil, nil
	case resp, ok := <-p.ch:
		if !ok {
			m.debugLog("request cancelled", "opcode", out.msg.Opcode(), "destination", out.dst)
			return nil, nil
		}
		return resp, nil
	}
}
