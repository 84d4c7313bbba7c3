package commands

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/blemesh/mesh-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{Layer: f.Layer, Direction: f.Direction, Category: f.Category}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [net:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	netID := shortenID(event.NetworkID)

	var typeLabel string
	switch {
	case event.PDU != nil:
		typeLabel = "PDU"
	case event.Message != nil:
		typeLabel = event.Message.Name
		if typeLabel == "" {
			typeLabel = event.Message.Opcode.String()
		}
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [net:%s] %-3s %s %s\n", ts, netID, event.Direction, event.Layer, typeLabel)

	switch {
	case event.PDU != nil:
		formatPDUDetails(w, event.PDU)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a network UUID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatPDUDetails(w io.Writer, pdu *log.PDUEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", pdu.Size)
	if len(pdu.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(pdu.Data))
		if pdu.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  %04X -> %04X  Opcode: %s\n", msg.Source, msg.Destination, msg.Opcode)
	fmt.Fprintf(w, "  Seq: %d  IV: %d  TTL: %d\n", msg.Sequence, msg.IvIndex, msg.TTL)
	if msg.AppKeyIndex != nil {
		fmt.Fprintf(w, "  NetKey: %d  AppKey: %d\n", msg.NetKeyIndex, *msg.AppKeyIndex)
	} else {
		fmt.Fprintf(w, "  NetKey: %d  DevKey\n", msg.NetKeyIndex)
	}
	if msg.Status != nil {
		fmt.Fprintf(w, "  Status: %s (%d)\n", msg.Status, uint8(*msg.Status))
	}
	if len(msg.Parameters) > 0 {
		fmt.Fprintf(w, "  Parameters: %s\n", hex.EncodeToString(msg.Parameters))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
	if err.Source != nil {
		fmt.Fprintf(w, "  Source: %04X\n", *err.Source)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}
