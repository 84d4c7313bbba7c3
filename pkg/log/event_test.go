package log

import (
	"testing"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncodingKeepsMessageFields(t *testing.T) {
	appKey := uint16(3)
	status := access.StatusCannotBind
	event := Event{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC),
		NetworkID: "net-1",
		Direction: DirectionIn,
		Layer:     LayerAccess,
		Category:  CategoryMessage,
		Message: &MessageEvent{
			Source:      0x0005,
			Destination: 0x0001,
			Opcode:      access.OpModelAppStatus,
			Name:        "ConfigModelAppStatus",
			Parameters:  []byte{0x0D, 0x05, 0x00},
			Sequence:    42,
			IvIndex:     7,
			TTL:         5,
			NetKeyIndex: 0,
			AppKeyIndex: &appKey,
			Status:      &status,
		},
	}

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, decoded.Timestamp.Equal(event.Timestamp))
	decoded.Timestamp = event.Timestamp
	assert.Equal(t, event, decoded)
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerNetwork.String(), "NETWORK"},
		{LayerAccess.String(), "ACCESS"},
		{CategoryError.String(), "ERROR"},
		{StateEntityProxyFilter.String(), "PROXY_FILTER"},
		{StateEntityIvIndex.String(), "IV_INDEX"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestNewPDUEventTruncates(t *testing.T) {
	short := NewPDUEvent([]byte{1, 2, 3})
	assert.Equal(t, 3, short.Size)
	assert.False(t, short.Truncated)

	long := NewPDUEvent(make([]byte, 100))
	assert.Equal(t, 100, long.Size)
	assert.Len(t, long.Data, MaxPDUData)
	assert.True(t, long.Truncated)
}

type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(e Event) { r.events = append(r.events, e) }

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{NetworkID: "x"})
	m.Log(Event{NetworkID: "y"})

	assert.Len(t, a.events, 2)
	assert.Len(t, b.events, 2)
	assert.Equal(t, "y", b.events[1].NetworkID)
}

func TestMultiLoggerCollapses(t *testing.T) {
	r := &recordingLogger{}
	assert.Equal(t, NoopLogger{}, NewMultiLogger())
	assert.Equal(t, NoopLogger{}, NewMultiLogger(nil, NoopLogger{}))
	assert.Same(t, r, NewMultiLogger(nil, r))

	a, b := &recordingLogger{}, &recordingLogger{}
	nested := NewMultiLogger(NewMultiLogger(a, b), r)
	m, ok := nested.(*MultiLogger)
	require.True(t, ok)
	assert.Len(t, m.loggers, 3)

	nested.Log(Event{NetworkID: "z"})
	assert.Len(t, a.events, 1)
	assert.Len(t, r.events, 1)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, OrNoop(nil))
	r := &recordingLogger{}
	assert.Same(t, r, OrNoop(r))
}
