package service

import (
	"context"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
)

// PDU is an access PDU ready for the lower transport layer, together with
// the material needed to encrypt it.
type PDU struct {
	Source      address.Address
	Destination address.MeshAddress
	// Payload is the access PDU: opcode followed by parameters.
	Payload  []byte
	TTL      uint8
	Sequence uint32
	IvIndex  uint32

	NetworkKey *mesh.NetworkKey
	// ApplicationKey is nil for messages secured with DeviceKey.
	ApplicationKey *mesh.ApplicationKey
	DeviceKey      []byte
}

// Transmitter encrypts PDUs and sends them over the bearer.
type Transmitter interface {
	Send(ctx context.Context, pdu *PDU) error
}

// TransmitterFunc adapts a function to Transmitter.
type TransmitterFunc func(ctx context.Context, pdu *PDU) error

// Send calls f.
func (f TransmitterFunc) Send(ctx context.Context, pdu *PDU) error { return f(ctx, pdu) }

// IncomingPDU is a decrypted access PDU delivered by the lower layers.
type IncomingPDU struct {
	Source      address.Address
	Destination address.Address
	Payload     []byte
	Sequence    uint32
	IvIndex     uint32
	TTL         uint8
	NetKeyIndex mesh.KeyIndex
	// AppKeyIndex is nil when the PDU was secured with a device key.
	AppKeyIndex *mesh.KeyIndex
	// Segmented marks a PDU reassembled from several segments; a repeated
	// SeqAuth is accepted for it.
	Segmented bool
}
