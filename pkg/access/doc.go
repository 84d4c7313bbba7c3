// Package access defines the access-layer messages exchanged by the network
// engine and their wire encoding.
//
// An access PDU is an opcode followed by parameters. Opcodes take 1, 2 or 3
// bytes; the two top bits of the first byte select the size:
//
//	0xxxxxxx                    1 byte, Bluetooth SIG
//	10xxxxxx xxxxxxxx           2 bytes, Bluetooth SIG
//	11xxxxxx cccccccc cccccccc  3 bytes, vendor (company ID little-endian)
//
// Multi-byte parameters are little-endian. Two 12-bit key indices are packed
// into 3 bytes.
//
// # Message Kinds
//
// Application messages are secured with an application key; configuration
// messages ([ConfigMessage]) with the device key of the target node.
// Acknowledged messages name the opcode of their response, which callers use
// to correlate a response with its request.
package access
