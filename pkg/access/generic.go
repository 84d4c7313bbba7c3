package access

import "fmt"

// Generic OnOff opcodes.
const (
	OpGenericOnOffGet      Opcode = 0x8201
	OpGenericOnOffSet      Opcode = 0x8202
	OpGenericOnOffSetUnack Opcode = 0x8203
	OpGenericOnOffStatus   Opcode = 0x8204
)

func init() {
	register(OpGenericOnOffGet, decodeEmpty(func() Message { return &GenericOnOffGet{} }))
	register(OpGenericOnOffSet, decodeOnOffSet(func(s OnOffSet) Message { return &GenericOnOffSet{OnOffSet: s} }))
	register(OpGenericOnOffSetUnack, decodeOnOffSet(func(s OnOffSet) Message { return &GenericOnOffSetUnacknowledged{OnOffSet: s} }))
	register(OpGenericOnOffStatus, decodeOnOffStatus)
}

// Transition holds the optional transition time and delay of a state change.
// TransitionTime uses the Generic Default Transition Time encoding; Delay is
// in 5 ms steps.
type Transition struct {
	TransitionTime uint8
	Delay          uint8
}

// OnOffSet holds the parameters of Generic OnOff Set messages.
type OnOffSet struct {
	On  bool
	TID uint8
	// Transition is optional.
	Transition *Transition
}

func (s OnOffSet) parameters() []byte {
	b := []byte{boolByte(s.On), s.TID}
	if s.Transition != nil {
		b = append(b, s.Transition.TransitionTime, s.Transition.Delay)
	}
	return b
}

func decodeOnOffSet(build func(OnOffSet) Message) decodeFunc {
	return func(p []byte) (Message, error) {
		if err := checkLength(p, 2, 4); err != nil {
			return nil, err
		}
		if p[0] > 1 {
			return nil, fmt.Errorf("%w: OnOff %d", ErrInvalidParameters, p[0])
		}
		s := OnOffSet{On: p[0] == 1, TID: p[1]}
		if len(p) == 4 {
			s.Transition = &Transition{TransitionTime: p[2], Delay: p[3]}
		}
		return build(s), nil
	}
}

// GenericOnOffGet reads the OnOff state of an element.
type GenericOnOffGet struct{}

func (m *GenericOnOffGet) Opcode() Opcode         { return OpGenericOnOffGet }
func (m *GenericOnOffGet) ResponseOpcode() Opcode { return OpGenericOnOffStatus }
func (m *GenericOnOffGet) Parameters() []byte     { return nil }

// GenericOnOffSet sets the OnOff state and waits for the status.
type GenericOnOffSet struct {
	OnOffSet
}

func (m *GenericOnOffSet) Opcode() Opcode         { return OpGenericOnOffSet }
func (m *GenericOnOffSet) ResponseOpcode() Opcode { return OpGenericOnOffStatus }
func (m *GenericOnOffSet) Parameters() []byte     { return m.parameters() }

// GenericOnOffSetUnacknowledged sets the OnOff state without a response.
type GenericOnOffSetUnacknowledged struct {
	OnOffSet
}

func (m *GenericOnOffSetUnacknowledged) Opcode() Opcode     { return OpGenericOnOffSetUnack }
func (m *GenericOnOffSetUnacknowledged) Parameters() []byte { return m.parameters() }

// GenericOnOffStatus reports the OnOff state. Target and RemainingTime are
// present only during a transition.
type GenericOnOffStatus struct {
	Present       bool
	Target        *bool
	RemainingTime uint8
}

func (m *GenericOnOffStatus) Opcode() Opcode { return OpGenericOnOffStatus }

func (m *GenericOnOffStatus) Parameters() []byte {
	b := []byte{boolByte(m.Present)}
	if m.Target != nil {
		b = append(b, boolByte(*m.Target), m.RemainingTime)
	}
	return b
}

func decodeOnOffStatus(p []byte) (Message, error) {
	if err := checkLength(p, 1, 3); err != nil {
		return nil, err
	}
	m := &GenericOnOffStatus{Present: p[0] == 1}
	if len(p) == 3 {
		target := p[1] == 1
		m.Target = &target
		m.RemainingTime = p[2]
	}
	return m, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

var (
	_ AcknowledgedMessage = (*GenericOnOffGet)(nil)
	_ AcknowledgedMessage = (*GenericOnOffSet)(nil)
	_ Message             = (*GenericOnOffSetUnacknowledged)(nil)
	_ Message             = (*GenericOnOffStatus)(nil)
)
