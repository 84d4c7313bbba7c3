package access

import (
	"encoding/binary"
	"fmt"

	"github.com/blemesh/mesh-go/pkg/mesh"
)

func appendKeyIndex(b []byte, index mesh.KeyIndex) []byte {
	return binary.LittleEndian.AppendUint16(b, uint16(index)&0x0FFF)
}

func readKeyIndex(b []byte) mesh.KeyIndex {
	return mesh.KeyIndex(binary.LittleEndian.Uint16(b) & 0x0FFF)
}

// appendKeyIndexPair packs two 12-bit indices into 3 bytes, first in the low
// bits.
func appendKeyIndexPair(b []byte, first, second mesh.KeyIndex) []byte {
	v := uint32(first)&0x0FFF | (uint32(second)&0x0FFF)<<12
	return append(b, byte(v), byte(v>>8), byte(v>>16))
}

func readKeyIndexPair(b []byte) (first, second mesh.KeyIndex) {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return mesh.KeyIndex(v & 0x0FFF), mesh.KeyIndex(v >> 12 & 0x0FFF)
}

func checkKeyIndex(indices ...mesh.KeyIndex) error {
	for _, i := range indices {
		if !i.IsValid() {
			return fmt.Errorf("%w: key index %d", ErrInvalidParameters, i)
		}
	}
	return nil
}
