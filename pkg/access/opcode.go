package access

import (
	"encoding/binary"
	"fmt"
)

// Opcode is an access-layer opcode. Vendor opcodes hold the 6-bit opcode in
// bits 16-21 and the company ID in the low 16 bits, prefixed with 0xC0.
type Opcode uint32

// Size returns the encoded size in bytes.
func (o Opcode) Size() int {
	switch {
	case o < 0x7F:
		return 1
	case o >= 0x8000 && o <= 0xBFFF:
		return 2
	default:
		return 3
	}
}

// IsVendor reports whether the opcode is a 3-byte vendor opcode.
func (o Opcode) IsVendor() bool {
	return o >= 0xC00000 && o <= 0xFFFFFF
}

// IsValid reports whether the opcode can be encoded.
func (o Opcode) IsValid() bool {
	return o < 0x7F || (o >= 0x8000 && o <= 0xBFFF) || o.IsVendor()
}

// String returns the opcode in hex.
func (o Opcode) String() string {
	switch o.Size() {
	case 1:
		return fmt.Sprintf("0x%02X", uint32(o))
	case 2:
		return fmt.Sprintf("0x%04X", uint32(o))
	default:
		return fmt.Sprintf("0x%06X", uint32(o))
	}
}

// VendorOpcode returns the opcode of a vendor message.
func VendorOpcode(opcode uint8, companyID uint16) Opcode {
	return Opcode(0xC00000 | uint32(opcode&0x3F)<<16 | uint32(companyID))
}

// appendOpcode appends the wire form of o to b.
func appendOpcode(b []byte, o Opcode) []byte {
	switch o.Size() {
	case 1:
		return append(b, byte(o))
	case 2:
		return binary.BigEndian.AppendUint16(b, uint16(o))
	default:
		b = append(b, byte(o>>16))
		return binary.LittleEndian.AppendUint16(b, uint16(o))
	}
}

// parseOpcode splits a PDU into its opcode and parameters.
func parseOpcode(pdu []byte) (Opcode, []byte, error) {
	if len(pdu) == 0 {
		return 0, nil, fmt.Errorf("%w: empty PDU", ErrInvalidPDU)
	}
	switch pdu[0] >> 6 {
	case 0b00, 0b01:
		if pdu[0] == 0x7F {
			return 0, nil, fmt.Errorf("%w: opcode 0x7F is reserved", ErrInvalidPDU)
		}
		return Opcode(pdu[0]), pdu[1:], nil
	case 0b10:
		if len(pdu) < 2 {
			return 0, nil, fmt.Errorf("%w: truncated 2-byte opcode", ErrInvalidPDU)
		}
		return Opcode(binary.BigEndian.Uint16(pdu)), pdu[2:], nil
	default:
		if len(pdu) < 3 {
			return 0, nil, fmt.Errorf("%w: truncated vendor opcode", ErrInvalidPDU)
		}
		return Opcode(uint32(pdu[0])<<16 | uint32(binary.LittleEndian.Uint16(pdu[1:]))), pdu[3:], nil
	}
}
