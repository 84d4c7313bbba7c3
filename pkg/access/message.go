package access

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPDU is returned for a malformed opcode.
	ErrInvalidPDU = errors.New("invalid access PDU")

	// ErrInvalidParameters is returned when parameters have the wrong size
	// or an out of range value.
	ErrInvalidParameters = errors.New("invalid message parameters")
)

// Message is an access-layer message.
type Message interface {
	Opcode() Opcode
	// Parameters returns the encoded parameters, without the opcode.
	Parameters() []byte
}

// AcknowledgedMessage is a message answered with a response.
type AcknowledgedMessage interface {
	Message
	ResponseOpcode() Opcode
}

// ConfigMessage is a Configuration Server or Client message. It is secured
// with the device key.
type ConfigMessage interface {
	Message
	configMessage()
}

// AcknowledgedConfigMessage is an acknowledged configuration message.
type AcknowledgedConfigMessage interface {
	ConfigMessage
	ResponseOpcode() Opcode
}

// ConfigStatusMessage is a configuration response carrying a status code.
type ConfigStatusMessage interface {
	ConfigMessage
	Status() ConfigStatus
}

// UnknownMessage is a message whose opcode has no registered decoder.
type UnknownMessage struct {
	Op     Opcode
	Params []byte
}

func (m *UnknownMessage) Opcode() Opcode     { return m.Op }
func (m *UnknownMessage) Parameters() []byte { return bytes.Clone(m.Params) }

// Encode returns the access PDU of m.
func Encode(m Message) []byte {
	params := m.Parameters()
	pdu := make([]byte, 0, m.Opcode().Size()+len(params))
	pdu = appendOpcode(pdu, m.Opcode())
	return append(pdu, params...)
}

type decodeFunc func(params []byte) (Message, error)

var decoders = map[Opcode]decodeFunc{}

// register adds a decoder for op.
func register(op Opcode, fn decodeFunc) {
	if _, dup := decoders[op]; dup {
		panic(fmt.Sprintf("access: decoder for %s registered twice", op))
	}
	decoders[op] = fn
}

// Decode parses an access PDU. Opcodes without a decoder yield an
// *UnknownMessage.
func Decode(pdu []byte) (Message, error) {
	op, params, err := parseOpcode(pdu)
	if err != nil {
		return nil, err
	}
	fn, ok := decoders[op]
	if !ok {
		return &UnknownMessage{Op: op, Params: bytes.Clone(params)}, nil
	}
	m, err := fn(params)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", op, err)
	}
	return m, nil
}

func checkLength(params []byte, want ...int) error {
	for _, n := range want {
		if len(params) == n {
			return nil
		}
	}
	return fmt.Errorf("%w: %d bytes", ErrInvalidParameters, len(params))
}
