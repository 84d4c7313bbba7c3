package service

import (
	"context"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
)

// ModelHandler processes application messages received by a model of the
// local node. A non-nil response is sent back to the source with the same
// application key.
type ModelHandler interface {
	Handle(ctx context.Context, model *mesh.Model, msg access.Message, source address.Address) (access.Message, error)
}

// ModelHandlerFunc adapts a function to ModelHandler.
type ModelHandlerFunc func(ctx context.Context, model *mesh.Model, msg access.Message, source address.Address) (access.Message, error)

// Handle calls f.
func (f ModelHandlerFunc) Handle(ctx context.Context, model *mesh.Model, msg access.Message, source address.Address) (access.Message, error) {
	return f(ctx, model, msg, source)
}

type handlerKey struct {
	element address.Address
	model   uint32
}

func keyOf(model *mesh.Model) handlerKey {
	return handlerKey{element: model.Element().Address(), model: model.ID()}
}

// RegisterHandler routes messages for model to h, replacing any previous
// handler. The model must belong to the local node. Handlers are dropped
// when the network is replaced.
func (m *NetworkManager) RegisterHandler(model *mesh.Model, h ModelHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.network == nil {
		return ErrNoNetwork
	}
	local := m.network.LocalNode()
	if model == nil || model.Element() == nil || local == nil || model.Element().Node() != local {
		return ErrInvalidElement
	}
	m.handlers[keyOf(model)] = h
	return nil
}

// UnregisterHandler removes the handler of model.
func (m *NetworkManager) UnregisterHandler(model *mesh.Model) {
	if model == nil || model.Element() == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, keyOf(model))
}

type target struct {
	model   *mesh.Model
	handler ModelHandler
}

// targets returns the handled local models that receive a message sent to
// dst with the application key. m.mu must be held.
func (m *NetworkManager) targets(dst address.Address, appKey mesh.KeyIndex) []target {
	local := m.network.LocalNode()
	if local == nil {
		return nil
	}
	var result []target
	for _, e := range local.Elements() {
		for _, model := range e.Models() {
			if !model.IsBoundTo(appKey) {
				continue
			}
			receives := false
			switch {
			case dst.IsUnicast():
				receives = e.Address() == dst
			case dst == address.AllNodes.Address():
				receives = true
			default:
				receives = model.IsSubscribedTo(dst)
			}
			if !receives {
				continue
			}
			if h, ok := m.handlers[keyOf(model)]; ok {
				result = append(result, target{model: model, handler: h})
			}
		}
	}
	return result
}
