package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Networks          map[string]int
	Nodes             map[uint16]*NodeStats
	Opcodes           map[access.Opcode]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// NodeStats holds message counts for a single unicast address.
type NodeStats struct {
	Sent     int
	Received int
	LastSeen time.Time
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Networks:          make(map[string]int),
		Nodes:             make(map[uint16]*NodeStats),
		Opcodes:           make(map[access.Opcode]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	if event.NetworkID != "" {
		s.Networks[event.NetworkID]++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if msg := event.Message; msg != nil {
		s.Opcodes[msg.Opcode]++
		s.node(msg.Source, event.Timestamp).Sent++
		// Group destinations are not nodes.
		if msg.Destination > 0 && msg.Destination < 0x8000 {
			s.node(msg.Destination, event.Timestamp).Received++
		}
	}
	if event.Error != nil {
		s.Errors++
	}
}

func (s *Stats) node(a uint16, ts time.Time) *NodeStats {
	n, ok := s.Nodes[a]
	if !ok {
		n = &NodeStats{}
		s.Nodes[a] = n
	}
	if ts.After(n.LastSeen) {
		n.LastSeen = ts
	}
	return n
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Mesh Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Networks:     %d\n", len(stats.Networks))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerNetwork, log.LayerAccess, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Opcodes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Messages by Opcode:")
		ops := make([]access.Opcode, 0, len(stats.Opcodes))
		for op := range stats.Opcodes {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
		for _, op := range ops {
			fmt.Fprintf(w, "  %-12s %d\n", op.String()+":", stats.Opcodes[op])
		}
	}

	if len(stats.Nodes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Nodes: %d\n", len(stats.Nodes))
		addrs := make([]uint16, 0, len(stats.Nodes))
		for a := range stats.Nodes {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		for _, a := range addrs {
			n := stats.Nodes[a]
			fmt.Fprintf(w, "  [%04X] sent %d, received %d, last seen %s\n",
				a, n.Sent, n.Received, n.LastSeen.Format(time.RFC3339))
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
