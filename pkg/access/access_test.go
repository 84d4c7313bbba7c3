package access

import (
	"bytes"
	"errors"
	"testing"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeEncoding(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		want []byte
	}{
		{"one byte", OpCompositionDataStatus, []byte{0x02}},
		{"zero", OpAppKeyAdd, []byte{0x00}},
		{"two bytes", OpNetKeyAdd, []byte{0x80, 0x40}},
		{"vendor", VendorOpcode(0x01, 0x0059), []byte{0xC1, 0x59, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := appendOpcode(nil, tt.op)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("appendOpcode() = %X, want %X", got, tt.want)
			}
			if tt.op.Size() != len(tt.want) {
				t.Errorf("Size() = %d, want %d", tt.op.Size(), len(tt.want))
			}
			op, rest, err := parseOpcode(append(got, 0xAA))
			if err != nil {
				t.Fatalf("parseOpcode() error = %v", err)
			}
			if op != tt.op {
				t.Errorf("parseOpcode() = %s, want %s", op, tt.op)
			}
			if !bytes.Equal(rest, []byte{0xAA}) {
				t.Errorf("parameters = %X, want AA", rest)
			}
		})
	}
}

func TestParseOpcodeErrors(t *testing.T) {
	for _, pdu := range [][]byte{nil, {0x7F}, {0x80}, {0xC1, 0x59}} {
		if _, _, err := parseOpcode(pdu); !errors.Is(err, ErrInvalidPDU) {
			t.Errorf("parseOpcode(%X) error = %v, want ErrInvalidPDU", pdu, err)
		}
	}
}

func TestOpcodeIsValid(t *testing.T) {
	assert.True(t, Opcode(0x7E).IsValid())
	assert.False(t, Opcode(0x7F).IsValid())
	assert.False(t, Opcode(0xC000).IsValid())
	assert.True(t, VendorOpcode(0x3F, 0xFFFF).IsVendor())
	assert.Equal(t, "0x8040", OpNetKeyAdd.String())
}

func TestKeyIndexPairPacking(t *testing.T) {
	b := appendKeyIndexPair(nil, 0x456, 0x123)
	assert.Equal(t, []byte{0x56, 0x34, 0x12}, b)

	net, app := readKeyIndexPair(b)
	assert.Equal(t, mesh.KeyIndex(0x456), net)
	assert.Equal(t, mesh.KeyIndex(0x123), app)
}

func TestAppKeyAddEncoding(t *testing.T) {
	key := bytes.Repeat([]byte{0x63}, 16)
	m := &ConfigAppKeyAdd{NetKeyIndex: 0x456, AppKeyIndex: 0x123, Key: key}

	pdu := Encode(m)
	require.Len(t, pdu, 1+3+16)
	assert.Equal(t, []byte{0x00, 0x56, 0x34, 0x12}, pdu[:4])

	decoded, err := Decode(pdu)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestDecodeConfigStatus(t *testing.T) {
	pdu := Encode(&ConfigNetKeyStatus{StatusCode: StatusInvalidNetKeyIndex, NetKeyIndex: 7})

	m, err := Decode(pdu)
	require.NoError(t, err)
	status, ok := m.(ConfigStatusMessage)
	require.True(t, ok, "decoded %T is not a status message", m)
	assert.Equal(t, StatusInvalidNetKeyIndex, status.Status())
	assert.False(t, status.Status().IsSuccess())
	assert.Equal(t, "INVALID_NETKEY_INDEX", status.Status().String())
}

func TestDecodeUnknownOpcode(t *testing.T) {
	m, err := Decode([]byte{0x82, 0x99, 0x01, 0x02})
	require.NoError(t, err)

	unknown, ok := m.(*UnknownMessage)
	require.True(t, ok)
	assert.Equal(t, Opcode(0x8299), unknown.Opcode())
	assert.Equal(t, []byte{0x01, 0x02}, unknown.Parameters())
	assert.Equal(t, []byte{0x82, 0x99, 0x01, 0x02}, Encode(unknown))
}

func TestDecodeInvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		pdu  []byte
	}{
		{"netkey delete too short", []byte{0x80, 0x41, 0x01}},
		{"default ttl 1", []byte{0x80, 0x0D, 0x01}},
		{"default ttl 128", []byte{0x80, 0x0E, 0x80}},
		{"node reset with payload", []byte{0x80, 0x49, 0x00}},
		{"onoff 2", []byte{0x82, 0x02, 0x02, 0x00}},
		{"composition truncated element", []byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.pdu)
			if !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("Decode() error = %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestModelAppBindVendorModel(t *testing.T) {
	sig := &ConfigModelAppBind{ModelAppBinding: ModelAppBinding{
		ElementAddress: 0x0002, AppKeyIndex: 1, ModelID: 0x1000,
	}}
	assert.Len(t, sig.Parameters(), 6)

	vendor := &ConfigModelAppBind{ModelAppBinding: ModelAppBinding{
		ElementAddress: 0x0002, AppKeyIndex: 1, ModelID: 0x0059_0001,
	}}
	params := vendor.Parameters()
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x00, 0x59, 0x00, 0x01, 0x00}, params)

	m, err := Decode(Encode(vendor))
	require.NoError(t, err)
	assert.Equal(t, vendor, m)
}

func TestModelAppStatusDecoding(t *testing.T) {
	status := &ConfigModelAppStatus{StatusCode: StatusSuccess, ModelAppBinding: ModelAppBinding{
		ElementAddress: 0x0010, AppKeyIndex: 3, ModelID: 0x1000,
	}}
	m, err := Decode(Encode(status))
	require.NoError(t, err)
	assert.Equal(t, status, m)
}

func TestCompositionDataStatus(t *testing.T) {
	status := &ConfigCompositionDataStatus{
		CompanyID:             0x0059,
		ProductID:             0x0001,
		VersionID:             0x0002,
		ReplayProtectionCount: 32,
		Features:              FeatureRelay | FeatureProxy,
		Elements: []CompositionElement{
			{Location: 0x0100, SIGModels: []uint16{0x0000, 0x1000}},
			{SIGModels: []uint16{0x1000}, VendorModels: []uint32{0x0059_0002}},
		},
	}

	m, err := Decode(Encode(status))
	require.NoError(t, err)
	assert.Equal(t, status, m)

	c := status.Composition()
	assert.Equal(t, uint16(0x0059), c.CompanyID)
	require.Len(t, c.Elements, 2)
	assert.Equal(t, uint16(0x0100), c.Elements[0].Location())
	assert.NotNil(t, c.Elements[1].Model(0x0059_0002))
	require.NotNil(t, c.Features.Relay)
	assert.Equal(t, mesh.FeatureDisabled, *c.Features.Relay)
	assert.Equal(t, mesh.FeatureUnsupported, *c.Features.Friend)
}

func TestNewCompositionDataStatusFromNode(t *testing.T) {
	node, err := mesh.NewNode([16]byte{1}, 0x0001, bytes.Repeat([]byte{1}, 16), 1, 0)
	require.NoError(t, err)
	node.ApplyComposition(mesh.Composition{
		CompanyID: 0x0059,
		Elements: []*mesh.Element{
			mesh.NewElement(0, mesh.NewModel(0x0000), mesh.NewVendorModel(0x0059, 7)),
		},
	})

	status := NewCompositionDataStatus(node)
	assert.Equal(t, uint16(0x0059), status.CompanyID)
	require.Len(t, status.Elements, 1)
	assert.Equal(t, []uint16{0x0000}, status.Elements[0].SIGModels)
	assert.Equal(t, []uint32{0x0059_0007}, status.Elements[0].VendorModels)
	assert.Equal(t, uint16(0), status.Features)
}

func TestGenericOnOff(t *testing.T) {
	set := &GenericOnOffSet{OnOffSet: OnOffSet{On: true, TID: 9, Transition: &Transition{TransitionTime: 0x41, Delay: 2}}}
	assert.Equal(t, []byte{0x82, 0x02, 0x01, 0x09, 0x41, 0x02}, Encode(set))

	m, err := Decode(Encode(set))
	require.NoError(t, err)
	assert.Equal(t, set, m)

	unack := &GenericOnOffSetUnacknowledged{OnOffSet: OnOffSet{On: false, TID: 1}}
	m, err = Decode(Encode(unack))
	require.NoError(t, err)
	assert.Equal(t, unack, m)

	target := true
	status := &GenericOnOffStatus{Present: false, Target: &target, RemainingTime: 5}
	m, err = Decode(Encode(status))
	require.NoError(t, err)
	assert.Equal(t, status, m)
}

func TestNewModelAppBinding(t *testing.T) {
	net := mesh.New("test")
	_, err := net.AddNetworkKey("primary", bytes.Repeat([]byte{1}, 16))
	require.NoError(t, err)
	ak, err := net.AddApplicationKey("app", bytes.Repeat([]byte{2}, 16), 0)
	require.NoError(t, err)

	model := mesh.NewModel(0x1000)
	node, err := mesh.NewNode([16]byte{2}, 0x0005, bytes.Repeat([]byte{1}, 16), 1, 0)
	require.NoError(t, err)
	node.ApplyComposition(mesh.Composition{Elements: []*mesh.Element{mesh.NewElement(0, model)}})

	b := NewModelAppBinding(model, ak)
	assert.Equal(t, address.Address(0x0005), b.ElementAddress)
	assert.Equal(t, ak.Index(), b.AppKeyIndex)
	assert.False(t, b.IsVendor())
}
