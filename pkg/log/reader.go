package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	NetworkID string
	// Direction only matches PDU and message events.
	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Address matches message events whose source or destination equals it.
	Address *uint16
	Opcode  *access.Opcode
}

func (f *Filter) matches(e Event) bool {
	switch {
	case f.NetworkID != "" && e.NetworkID != f.NetworkID:
		return false
	case f.Direction != nil && (!e.hasDirection() || e.Direction != *f.Direction):
		return false
	case f.Layer != nil && e.Layer != *f.Layer:
		return false
	case f.Category != nil && e.Category != *f.Category:
		return false
	case f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Address != nil {
		if e.Message == nil || (e.Message.Source != *f.Address && e.Message.Destination != *f.Address) {
			return false
		}
	}
	if f.Opcode != nil {
		if e.Message == nil || e.Message.Opcode != *f.Opcode {
			return false
		}
	}
	return true
}

// Reader streams events from a log file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader returns a Reader over every event in path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader returns a Reader over the events in path that match
// filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
