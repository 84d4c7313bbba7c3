package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/aead/cmac"
	"github.com/google/uuid"
)

// KeySize is the size of every mesh key in bytes.
const KeySize = 16

// Crypto is the interface of the security toolbox used by the engine.
type Crypto interface {
	// CreateVirtualAddress returns the 16-bit virtual address of label.
	CreateVirtualAddress(label uuid.UUID) uint16

	// GenerateKey returns a new random 128-bit key.
	GenerateKey() ([]byte, error)
}

// Default is the AES-CMAC based implementation.
type Default struct{}

// New returns the default Crypto implementation.
func New() Default {
	return Default{}
}

// CreateVirtualAddress computes 0x8000 | (AES-CMAC(salt, label) mod 2^14)
// with salt = s1("vtad").
func (Default) CreateVirtualAddress(label uuid.UUID) uint16 {
	salt := S1([]byte("vtad"))
	hash := CMAC(salt, label[:])
	return 0x8000 | (binary.BigEndian.Uint16(hash[14:]) & 0x3FFF)
}

// GenerateKey returns 16 random bytes.
func (Default) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// S1 is the mesh salt generation function s1(M) = AES-CMAC(ZERO, M).
func S1(m []byte) []byte {
	return CMAC(make([]byte, KeySize), m)
}

// CMAC computes AES-CMAC (RFC 4493) of message m with a 128-bit key.
// It panics if key is not 16 bytes long.
func CMAC(key, m []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(fmt.Sprintf("cmac: %v", err))
	}
	mac, err := cmac.Sum(m, block, aes.BlockSize)
	if err != nil {
		panic(fmt.Sprintf("cmac: %v", err))
	}
	return mac
}

// Compile-time interface satisfaction check.
var _ Crypto = Default{}
