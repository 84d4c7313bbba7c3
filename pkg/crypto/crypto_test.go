package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// RFC 4493 section 4 test vectors.
func TestCMAC(t *testing.T) {
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"empty", "", "bb1d6929e95937287fa37d129b756746"},
		{"16 bytes", "6bc1bee22e409f96e93d7e117393172a", "070a16b46b4d4144f79bdd9dd04a287c"},
		{"40 bytes", "6bc1bee22e409f96e93d7e117393172aae2d8a571e03ac9c9eb76fac45af8e5130c81c46a35ce411", "dfa66747de9ae63030ca32611497c827"},
		{"64 bytes", "6bc1bee22e409f96e93d7e117393172aae2d8a571e03ac9c9eb76fac45af8e5130c81c46a35ce411e5fbc1191a0a52eff69f2445df4f9b17ad2b417be66c3710", "51f0bebf7e3b9d92fc49741779363cfe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CMAC(key, mustHex(t, tt.msg))
			if !bytes.Equal(got, mustHex(t, tt.want)) {
				t.Errorf("CMAC() = %x, want %s", got, tt.want)
			}
		})
	}
}

// Mesh Profile sample data 8.1.1 (s1 SALT generation function).
func TestS1(t *testing.T) {
	got := S1([]byte("test"))
	want := mustHex(t, "b73cefbd641ef2ea598c2b6efb62f79c")
	if !bytes.Equal(got, want) {
		t.Errorf("S1(test) = %x, want %x", got, want)
	}
}

func TestCreateVirtualAddress(t *testing.T) {
	// Mesh Profile sample data 8.2.10: Label UUID 0073e7e4d8b9440faf8415df4c56c0e1 -> 0xB529.
	label := uuid.MustParse("0073e7e4-d8b9-440f-af84-15df4c56c0e1")
	if got := New().CreateVirtualAddress(label); got != 0xB529 {
		t.Errorf("CreateVirtualAddress() = %04X, want B529", got)
	}

	for i := 0; i < 50; i++ {
		a := New().CreateVirtualAddress(uuid.New())
		if a < 0x8000 || a > 0xBFFF {
			t.Fatalf("CreateVirtualAddress() = %04X outside virtual range", a)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := New().GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	b, _ := New().GenerateKey()
	if len(a) != KeySize {
		t.Errorf("len(GenerateKey()) = %d, want %d", len(a), KeySize)
	}
	if bytes.Equal(a, b) {
		t.Error("two generated keys are equal")
	}
}
