package access

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/crypto"
	"github.com/blemesh/mesh-go/pkg/mesh"
)

// Configuration message opcodes.
const (
	OpCompositionDataGet    Opcode = 0x8008
	OpCompositionDataStatus Opcode = 0x02
	OpDefaultTtlGet         Opcode = 0x800C
	OpDefaultTtlSet         Opcode = 0x800D
	OpDefaultTtlStatus      Opcode = 0x800E
	OpNetKeyAdd             Opcode = 0x8040
	OpNetKeyDelete          Opcode = 0x8041
	OpNetKeyStatus          Opcode = 0x8044
	OpAppKeyAdd             Opcode = 0x00
	OpAppKeyDelete          Opcode = 0x8000
	OpAppKeyStatus          Opcode = 0x8003
	OpModelAppBind          Opcode = 0x803D
	OpModelAppStatus        Opcode = 0x803E
	OpModelAppUnbind        Opcode = 0x803F
	OpNodeReset             Opcode = 0x8049
	OpNodeResetStatus       Opcode = 0x804A
)

func init() {
	register(OpCompositionDataGet, decodeCompositionDataGet)
	register(OpCompositionDataStatus, decodeCompositionDataStatus)
	register(OpDefaultTtlGet, decodeEmpty(func() Message { return &ConfigDefaultTtlGet{} }))
	register(OpDefaultTtlSet, decodeDefaultTtl(func(ttl uint8) Message { return &ConfigDefaultTtlSet{TTL: ttl} }))
	register(OpDefaultTtlStatus, decodeDefaultTtl(func(ttl uint8) Message { return &ConfigDefaultTtlStatus{TTL: ttl} }))
	register(OpNetKeyAdd, decodeNetKeyAdd)
	register(OpNetKeyDelete, decodeNetKeyDelete)
	register(OpNetKeyStatus, decodeNetKeyStatus)
	register(OpAppKeyAdd, decodeAppKeyAdd)
	register(OpAppKeyDelete, decodeAppKeyDelete)
	register(OpAppKeyStatus, decodeAppKeyStatus)
	register(OpModelAppBind, decodeModelApp(func(b ModelAppBinding) Message { return &ConfigModelAppBind{ModelAppBinding: b} }))
	register(OpModelAppUnbind, decodeModelApp(func(b ModelAppBinding) Message { return &ConfigModelAppUnbind{ModelAppBinding: b} }))
	register(OpModelAppStatus, decodeModelAppStatus)
	register(OpNodeReset, decodeEmpty(func() Message { return &ConfigNodeReset{} }))
	register(OpNodeResetStatus, decodeEmpty(func() Message { return &ConfigNodeResetStatus{} }))
}

type configBase struct{}

func (configBase) configMessage() {}

// Composition Data

// ConfigCompositionDataGet requests a Composition Data page.
type ConfigCompositionDataGet struct {
	configBase
	Page uint8
}

func (m *ConfigCompositionDataGet) Opcode() Opcode         { return OpCompositionDataGet }
func (m *ConfigCompositionDataGet) ResponseOpcode() Opcode { return OpCompositionDataStatus }
func (m *ConfigCompositionDataGet) Parameters() []byte     { return []byte{m.Page} }

func decodeCompositionDataGet(p []byte) (Message, error) {
	if err := checkLength(p, 1); err != nil {
		return nil, err
	}
	return &ConfigCompositionDataGet{Page: p[0]}, nil
}

// CompositionElement describes one element in Composition Data page 0.
type CompositionElement struct {
	Location uint16
	// SIGModels holds 16-bit Bluetooth SIG model identifiers.
	SIGModels []uint16
	// VendorModels holds company ID << 16 | model ID.
	VendorModels []uint32
}

// Feature bits of Composition Data page 0.
const (
	FeatureRelay    uint16 = 0x0001
	FeatureProxy    uint16 = 0x0002
	FeatureFriend   uint16 = 0x0004
	FeatureLowPower uint16 = 0x0008
)

// ConfigCompositionDataStatus carries a Composition Data page.
type ConfigCompositionDataStatus struct {
	configBase
	Page                  uint8
	CompanyID             uint16
	ProductID             uint16
	VersionID             uint16
	ReplayProtectionCount uint16
	Features              uint16
	Elements              []CompositionElement
}

func (m *ConfigCompositionDataStatus) Opcode() Opcode { return OpCompositionDataStatus }

func (m *ConfigCompositionDataStatus) Parameters() []byte {
	b := []byte{m.Page}
	b = binary.LittleEndian.AppendUint16(b, m.CompanyID)
	b = binary.LittleEndian.AppendUint16(b, m.ProductID)
	b = binary.LittleEndian.AppendUint16(b, m.VersionID)
	b = binary.LittleEndian.AppendUint16(b, m.ReplayProtectionCount)
	b = binary.LittleEndian.AppendUint16(b, m.Features)
	for _, e := range m.Elements {
		b = binary.LittleEndian.AppendUint16(b, e.Location)
		b = append(b, byte(len(e.SIGModels)), byte(len(e.VendorModels)))
		for _, id := range e.SIGModels {
			b = binary.LittleEndian.AppendUint16(b, id)
		}
		for _, id := range e.VendorModels {
			b = binary.LittleEndian.AppendUint16(b, uint16(id>>16))
			b = binary.LittleEndian.AppendUint16(b, uint16(id))
		}
	}
	return b
}

// Composition converts page 0 into the node composition.
func (m *ConfigCompositionDataStatus) Composition() mesh.Composition {
	c := mesh.Composition{
		CompanyID:             m.CompanyID,
		ProductID:             m.ProductID,
		VersionID:             m.VersionID,
		ReplayProtectionCount: m.ReplayProtectionCount,
		Features:              mesh.FeaturesFromBits(m.Features),
	}
	for _, e := range m.Elements {
		models := make([]*mesh.Model, 0, len(e.SIGModels)+len(e.VendorModels))
		for _, id := range e.SIGModels {
			models = append(models, mesh.NewModel(id))
		}
		for _, id := range e.VendorModels {
			models = append(models, mesh.NewVendorModel(uint16(id>>16), uint16(id)))
		}
		c.Elements = append(c.Elements, mesh.NewElement(e.Location, models...))
	}
	return c
}

// NewCompositionDataStatus describes the composition of node as page 0.
func NewCompositionDataStatus(node *mesh.Node) *ConfigCompositionDataStatus {
	m := &ConfigCompositionDataStatus{Features: featureBits(node.Features())}
	m.CompanyID, _ = node.CompanyID()
	m.ProductID, _ = node.ProductID()
	m.VersionID, _ = node.VersionID()
	m.ReplayProtectionCount, _ = node.ReplayProtectionCount()
	for _, e := range node.Elements() {
		ce := CompositionElement{Location: e.Location()}
		for _, model := range e.Models() {
			if model.IsBluetoothSIG() {
				ce.SIGModels = append(ce.SIGModels, uint16(model.ID()))
			} else {
				ce.VendorModels = append(ce.VendorModels, model.ID())
			}
		}
		m.Elements = append(m.Elements, ce)
	}
	return m
}

func featureBits(f mesh.Features) uint16 {
	var bits uint16
	for _, fs := range []struct {
		state *mesh.FeatureState
		bit   uint16
	}{
		{f.Relay, FeatureRelay},
		{f.Proxy, FeatureProxy},
		{f.Friend, FeatureFriend},
		{f.LowPower, FeatureLowPower},
	} {
		if fs.state != nil && *fs.state != mesh.FeatureUnsupported {
			bits |= fs.bit
		}
	}
	return bits
}

func decodeCompositionDataStatus(p []byte) (Message, error) {
	if len(p) < 11 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidParameters, len(p))
	}
	m := &ConfigCompositionDataStatus{
		Page:                  p[0],
		CompanyID:             binary.LittleEndian.Uint16(p[1:]),
		ProductID:             binary.LittleEndian.Uint16(p[3:]),
		VersionID:             binary.LittleEndian.Uint16(p[5:]),
		ReplayProtectionCount: binary.LittleEndian.Uint16(p[7:]),
		Features:              binary.LittleEndian.Uint16(p[9:]),
	}
	if m.Page != 0 {
		// Only page 0 has a known layout.
		return m, nil
	}
	rest := p[11:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: truncated element", ErrInvalidParameters)
		}
		e := CompositionElement{Location: binary.LittleEndian.Uint16(rest)}
		numS, numV := int(rest[2]), int(rest[3])
		rest = rest[4:]
		if len(rest) < numS*2+numV*4 {
			return nil, fmt.Errorf("%w: truncated model list", ErrInvalidParameters)
		}
		for k := 0; k < numS; k++ {
			e.SIGModels = append(e.SIGModels, binary.LittleEndian.Uint16(rest))
			rest = rest[2:]
		}
		for k := 0; k < numV; k++ {
			cid := binary.LittleEndian.Uint16(rest)
			id := binary.LittleEndian.Uint16(rest[2:])
			e.VendorModels = append(e.VendorModels, uint32(cid)<<16|uint32(id))
			rest = rest[4:]
		}
		m.Elements = append(m.Elements, e)
	}
	return m, nil
}

// Default TTL

// ConfigDefaultTtlGet reads the default TTL of a node.
type ConfigDefaultTtlGet struct{ configBase }

func (m *ConfigDefaultTtlGet) Opcode() Opcode         { return OpDefaultTtlGet }
func (m *ConfigDefaultTtlGet) ResponseOpcode() Opcode { return OpDefaultTtlStatus }
func (m *ConfigDefaultTtlGet) Parameters() []byte     { return nil }

// ConfigDefaultTtlSet sets the default TTL of a node. Valid values are 0 and
// 2-127.
type ConfigDefaultTtlSet struct {
	configBase
	TTL uint8
}

func (m *ConfigDefaultTtlSet) Opcode() Opcode         { return OpDefaultTtlSet }
func (m *ConfigDefaultTtlSet) ResponseOpcode() Opcode { return OpDefaultTtlStatus }
func (m *ConfigDefaultTtlSet) Parameters() []byte     { return []byte{m.TTL} }

// ConfigDefaultTtlStatus reports the default TTL of a node.
type ConfigDefaultTtlStatus struct {
	configBase
	TTL uint8
}

func (m *ConfigDefaultTtlStatus) Opcode() Opcode     { return OpDefaultTtlStatus }
func (m *ConfigDefaultTtlStatus) Parameters() []byte { return []byte{m.TTL} }

// IsValidDefaultTTL reports whether ttl may be set as a default TTL.
func IsValidDefaultTTL(ttl uint8) bool {
	return ttl == 0 || (ttl >= 2 && ttl <= 127)
}

func decodeDefaultTtl(build func(uint8) Message) decodeFunc {
	return func(p []byte) (Message, error) {
		if err := checkLength(p, 1); err != nil {
			return nil, err
		}
		if !IsValidDefaultTTL(p[0]) {
			return nil, fmt.Errorf("%w: TTL %d", ErrInvalidParameters, p[0])
		}
		return build(p[0]), nil
	}
}

func decodeEmpty(build func() Message) decodeFunc {
	return func(p []byte) (Message, error) {
		if err := checkLength(p, 0); err != nil {
			return nil, err
		}
		return build(), nil
	}
}

// NetKey

// ConfigNetKeyAdd adds a network key to a node.
type ConfigNetKeyAdd struct {
	configBase
	NetKeyIndex mesh.KeyIndex
	Key         []byte
}

// NewConfigNetKeyAdd returns the message adding key to a node.
func NewConfigNetKeyAdd(key *mesh.NetworkKey) *ConfigNetKeyAdd {
	return &ConfigNetKeyAdd{NetKeyIndex: key.Index(), Key: key.Key()}
}

func (m *ConfigNetKeyAdd) Opcode() Opcode         { return OpNetKeyAdd }
func (m *ConfigNetKeyAdd) ResponseOpcode() Opcode { return OpNetKeyStatus }

func (m *ConfigNetKeyAdd) Parameters() []byte {
	return append(appendKeyIndex(nil, m.NetKeyIndex), m.Key...)
}

func decodeNetKeyAdd(p []byte) (Message, error) {
	if err := checkLength(p, 2+crypto.KeySize); err != nil {
		return nil, err
	}
	return &ConfigNetKeyAdd{NetKeyIndex: readKeyIndex(p), Key: bytes.Clone(p[2:])}, nil
}

// ConfigNetKeyDelete removes a network key from a node.
type ConfigNetKeyDelete struct {
	configBase
	NetKeyIndex mesh.KeyIndex
}

func (m *ConfigNetKeyDelete) Opcode() Opcode         { return OpNetKeyDelete }
func (m *ConfigNetKeyDelete) ResponseOpcode() Opcode { return OpNetKeyStatus }
func (m *ConfigNetKeyDelete) Parameters() []byte     { return appendKeyIndex(nil, m.NetKeyIndex) }

func decodeNetKeyDelete(p []byte) (Message, error) {
	if err := checkLength(p, 2); err != nil {
		return nil, err
	}
	return &ConfigNetKeyDelete{NetKeyIndex: readKeyIndex(p)}, nil
}

// ConfigNetKeyStatus answers NetKey Add and Delete.
type ConfigNetKeyStatus struct {
	configBase
	StatusCode  ConfigStatus
	NetKeyIndex mesh.KeyIndex
}

func (m *ConfigNetKeyStatus) Opcode() Opcode       { return OpNetKeyStatus }
func (m *ConfigNetKeyStatus) Status() ConfigStatus { return m.StatusCode }

func (m *ConfigNetKeyStatus) Parameters() []byte {
	return appendKeyIndex([]byte{byte(m.StatusCode)}, m.NetKeyIndex)
}

func decodeNetKeyStatus(p []byte) (Message, error) {
	if err := checkLength(p, 3); err != nil {
		return nil, err
	}
	return &ConfigNetKeyStatus{StatusCode: ConfigStatus(p[0]), NetKeyIndex: readKeyIndex(p[1:])}, nil
}

// AppKey

// ConfigAppKeyAdd adds an application key to a node.
type ConfigAppKeyAdd struct {
	configBase
	NetKeyIndex mesh.KeyIndex
	AppKeyIndex mesh.KeyIndex
	Key         []byte
}

// NewConfigAppKeyAdd returns the message adding key to a node.
func NewConfigAppKeyAdd(key *mesh.ApplicationKey) *ConfigAppKeyAdd {
	return &ConfigAppKeyAdd{
		NetKeyIndex: key.BoundNetworkKeyIndex(),
		AppKeyIndex: key.Index(),
		Key:         key.Key(),
	}
}

func (m *ConfigAppKeyAdd) Opcode() Opcode         { return OpAppKeyAdd }
func (m *ConfigAppKeyAdd) ResponseOpcode() Opcode { return OpAppKeyStatus }

func (m *ConfigAppKeyAdd) Parameters() []byte {
	return append(appendKeyIndexPair(nil, m.NetKeyIndex, m.AppKeyIndex), m.Key...)
}

func decodeAppKeyAdd(p []byte) (Message, error) {
	if err := checkLength(p, 3+crypto.KeySize); err != nil {
		return nil, err
	}
	net, app := readKeyIndexPair(p)
	return &ConfigAppKeyAdd{NetKeyIndex: net, AppKeyIndex: app, Key: bytes.Clone(p[3:])}, nil
}

// ConfigAppKeyDelete removes an application key from a node.
type ConfigAppKeyDelete struct {
	configBase
	NetKeyIndex mesh.KeyIndex
	AppKeyIndex mesh.KeyIndex
}

func (m *ConfigAppKeyDelete) Opcode() Opcode         { return OpAppKeyDelete }
func (m *ConfigAppKeyDelete) ResponseOpcode() Opcode { return OpAppKeyStatus }

func (m *ConfigAppKeyDelete) Parameters() []byte {
	return appendKeyIndexPair(nil, m.NetKeyIndex, m.AppKeyIndex)
}

func decodeAppKeyDelete(p []byte) (Message, error) {
	if err := checkLength(p, 3); err != nil {
		return nil, err
	}
	net, app := readKeyIndexPair(p)
	return &ConfigAppKeyDelete{NetKeyIndex: net, AppKeyIndex: app}, nil
}

// ConfigAppKeyStatus answers AppKey Add and Delete.
type ConfigAppKeyStatus struct {
	configBase
	StatusCode  ConfigStatus
	NetKeyIndex mesh.KeyIndex
	AppKeyIndex mesh.KeyIndex
}

func (m *ConfigAppKeyStatus) Opcode() Opcode       { return OpAppKeyStatus }
func (m *ConfigAppKeyStatus) Status() ConfigStatus { return m.StatusCode }

func (m *ConfigAppKeyStatus) Parameters() []byte {
	return appendKeyIndexPair([]byte{byte(m.StatusCode)}, m.NetKeyIndex, m.AppKeyIndex)
}

func decodeAppKeyStatus(p []byte) (Message, error) {
	if err := checkLength(p, 4); err != nil {
		return nil, err
	}
	net, app := readKeyIndexPair(p[1:])
	return &ConfigAppKeyStatus{StatusCode: ConfigStatus(p[0]), NetKeyIndex: net, AppKeyIndex: app}, nil
}

// Model App

// ModelAppBinding names a model of an element and an application key.
type ModelAppBinding struct {
	ElementAddress address.Address
	AppKeyIndex    mesh.KeyIndex
	// ModelID carries the company ID in the upper 16 bits for vendor models.
	ModelID uint32
}

// IsVendor reports whether the binding names a vendor model.
func (b ModelAppBinding) IsVendor() bool { return b.ModelID > 0xFFFF }

func (b ModelAppBinding) appendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(b.ElementAddress))
	dst = appendKeyIndex(dst, b.AppKeyIndex)
	if b.IsVendor() {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(b.ModelID>>16))
	}
	return binary.LittleEndian.AppendUint16(dst, uint16(b.ModelID))
}

func readModelAppBinding(p []byte) (ModelAppBinding, error) {
	if err := checkLength(p, 6, 8); err != nil {
		return ModelAppBinding{}, err
	}
	b := ModelAppBinding{
		ElementAddress: address.Address(binary.LittleEndian.Uint16(p)),
		AppKeyIndex:    readKeyIndex(p[2:]),
	}
	if len(p) == 8 {
		b.ModelID = uint32(binary.LittleEndian.Uint16(p[4:]))<<16 | uint32(binary.LittleEndian.Uint16(p[6:]))
	} else {
		b.ModelID = uint32(binary.LittleEndian.Uint16(p[4:]))
	}
	return b, nil
}

// NewModelAppBinding returns the binding of key to model.
func NewModelAppBinding(model *mesh.Model, key *mesh.ApplicationKey) ModelAppBinding {
	return ModelAppBinding{
		ElementAddress: model.Element().Address(),
		AppKeyIndex:    key.Index(),
		ModelID:        model.ID(),
	}
}

// ConfigModelAppBind binds an application key to a model.
type ConfigModelAppBind struct {
	configBase
	ModelAppBinding
}

func (m *ConfigModelAppBind) Opcode() Opcode         { return OpModelAppBind }
func (m *ConfigModelAppBind) ResponseOpcode() Opcode { return OpModelAppStatus }
func (m *ConfigModelAppBind) Parameters() []byte     { return m.appendTo(nil) }

// ConfigModelAppUnbind removes an application key binding from a model.
type ConfigModelAppUnbind struct {
	configBase
	ModelAppBinding
}

func (m *ConfigModelAppUnbind) Opcode() Opcode         { return OpModelAppUnbind }
func (m *ConfigModelAppUnbind) ResponseOpcode() Opcode { return OpModelAppStatus }
func (m *ConfigModelAppUnbind) Parameters() []byte     { return m.appendTo(nil) }

func decodeModelApp(build func(ModelAppBinding) Message) decodeFunc {
	return func(p []byte) (Message, error) {
		b, err := readModelAppBinding(p)
		if err != nil {
			return nil, err
		}
		return build(b), nil
	}
}

// ConfigModelAppStatus answers Model App Bind and Unbind.
type ConfigModelAppStatus struct {
	configBase
	StatusCode ConfigStatus
	ModelAppBinding
}

func (m *ConfigModelAppStatus) Opcode() Opcode       { return OpModelAppStatus }
func (m *ConfigModelAppStatus) Status() ConfigStatus { return m.StatusCode }

func (m *ConfigModelAppStatus) Parameters() []byte {
	return m.appendTo([]byte{byte(m.StatusCode)})
}

func decodeModelAppStatus(p []byte) (Message, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidParameters)
	}
	b, err := readModelAppBinding(p[1:])
	if err != nil {
		return nil, err
	}
	return &ConfigModelAppStatus{StatusCode: ConfigStatus(p[0]), ModelAppBinding: b}, nil
}

// Node Reset

// ConfigNodeReset asks a node to leave the network.
type ConfigNodeReset struct{ configBase }

func (m *ConfigNodeReset) Opcode() Opcode         { return OpNodeReset }
func (m *ConfigNodeReset) ResponseOpcode() Opcode { return OpNodeResetStatus }
func (m *ConfigNodeReset) Parameters() []byte     { return nil }

// ConfigNodeResetStatus confirms a Node Reset.
type ConfigNodeResetStatus struct{ configBase }

func (m *ConfigNodeResetStatus) Opcode() Opcode     { return OpNodeResetStatus }
func (m *ConfigNodeResetStatus) Parameters() []byte { return nil }

var (
	_ AcknowledgedConfigMessage = (*ConfigCompositionDataGet)(nil)
	_ AcknowledgedConfigMessage = (*ConfigDefaultTtlGet)(nil)
	_ AcknowledgedConfigMessage = (*ConfigDefaultTtlSet)(nil)
	_ AcknowledgedConfigMessage = (*ConfigNetKeyAdd)(nil)
	_ AcknowledgedConfigMessage = (*ConfigNetKeyDelete)(nil)
	_ AcknowledgedConfigMessage = (*ConfigAppKeyAdd)(nil)
	_ AcknowledgedConfigMessage = (*ConfigAppKeyDelete)(nil)
	_ AcknowledgedConfigMessage = (*ConfigModelAppBind)(nil)
	_ AcknowledgedConfigMessage = (*ConfigModelAppUnbind)(nil)
	_ AcknowledgedConfigMessage = (*ConfigNodeReset)(nil)
	_ ConfigStatusMessage       = (*ConfigNetKeyStatus)(nil)
	_ ConfigStatusMessage       = (*ConfigAppKeyStatus)(nil)
	_ ConfigStatusMessage       = (*ConfigModelAppStatus)(nil)
	_ ConfigMessage             = (*ConfigCompositionDataStatus)(nil)
	_ ConfigMessage             = (*ConfigDefaultTtlStatus)(nil)
	_ ConfigMessage             = (*ConfigNodeResetStatus)(nil)
)
