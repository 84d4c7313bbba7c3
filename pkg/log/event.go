package log

import (
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
)

// Event is a protocol event. CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// NetworkID is the UUID of the mesh network.
	NetworkID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Exactly one payload is set.
	PDU         *PDUEvent         `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// hasDirection reports whether the Direction field is meaningful. State and
// error events leave it at its zero value.
func (e Event) hasDirection() bool {
	return e.PDU != nil || e.Message != nil
}

// Direction is the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer is the protocol layer that captured an event.
type Layer uint8

const (
	// LayerNetwork carries encrypted network PDUs exchanged with the bearer.
	LayerNetwork Layer = 0
	// LayerAccess carries decoded access messages.
	LayerAccess Layer = 1
	// LayerService is the network manager.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerNetwork:
		return "NETWORK"
	case LayerAccess:
		return "ACCESS"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies an event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PDUEvent holds a PDU as exchanged with the bearer.
type PDUEvent struct {
	Size int `cbor:"1,keyasint"`

	// Data may be truncated to MaxPDUData bytes.
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MaxPDUData is the number of PDU bytes kept in a PDUEvent.
const MaxPDUData = 64

// NewPDUEvent returns the event for pdu, truncating long data.
func NewPDUEvent(pdu []byte) *PDUEvent {
	e := &PDUEvent{Size: len(pdu)}
	if len(pdu) > MaxPDUData {
		e.Data = append([]byte(nil), pdu[:MaxPDUData]...)
		e.Truncated = true
	} else {
		e.Data = append([]byte(nil), pdu...)
	}
	return e
}

// MessageEvent describes an access message and the material that secured
// it.
type MessageEvent struct {
	Source      uint16        `cbor:"1,keyasint"`
	Destination uint16        `cbor:"2,keyasint"`
	Opcode      access.Opcode `cbor:"3,keyasint"`

	// Name is the Go type of the decoded message.
	Name       string `cbor:"4,keyasint,omitempty"`
	Parameters []byte `cbor:"5,keyasint,omitempty"`

	Sequence uint32 `cbor:"6,keyasint"`
	IvIndex  uint32 `cbor:"7,keyasint"`
	TTL      uint8  `cbor:"8,keyasint"`

	NetKeyIndex uint16 `cbor:"9,keyasint"`
	// AppKeyIndex is nil for messages secured with the device key.
	AppKeyIndex *uint16 `cbor:"10,keyasint,omitempty"`

	// Status is set for configuration status messages.
	Status *access.ConfigStatus `cbor:"11,keyasint,omitempty"`
}

// StateChangeEvent records a lifecycle change.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity names what changed state.
type StateEntity uint8

const (
	StateEntityBearer      StateEntity = 0
	StateEntityNetwork     StateEntity = 1
	StateEntityIvIndex     StateEntity = 2
	StateEntityProxyFilter StateEntity = 3
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityBearer:
		return "BEARER"
	case StateEntityNetwork:
		return "NETWORK"
	case StateEntityIvIndex:
		return "IV_INDEX"
	case StateEntityProxyFilter:
		return "PROXY_FILTER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records a protocol error, such as a replayed or
// undecodable message.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	// Context names the operation that failed.
	Context string `cbor:"3,keyasint,omitempty"`
	// Source is the sender of the offending message, if known.
	Source *uint16 `cbor:"4,keyasint,omitempty"`
}
