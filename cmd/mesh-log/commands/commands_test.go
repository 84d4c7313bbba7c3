package commands

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/log"
)

const testNetwork = "5f2c8a10-3b9d-4e61-a7c2-0d4e8f9b1a23"

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	appKey := uint16(0)
	status := access.StatusSuccess
	src := uint16(0x0005)
	return []log.Event{
		{
			Timestamp: ts, NetworkID: testNetwork, Direction: log.DirectionOut,
			Layer: log.LayerAccess, Category: log.CategoryMessage,
			Message: &log.MessageEvent{
				Source: 0x0001, Destination: 0x0005, Opcode: access.OpGenericOnOffGet,
				Name: "GenericOnOffGet", Sequence: 7, TTL: 5, AppKeyIndex: &appKey,
			},
		},
		{
			Timestamp: ts.Add(time.Second), NetworkID: testNetwork, Direction: log.DirectionIn,
			Layer: log.LayerAccess, Category: log.CategoryMessage,
			Message: &log.MessageEvent{
				Source: 0x0005, Destination: 0x0001, Opcode: access.OpAppKeyStatus,
				Name: "ConfigAppKeyStatus", Parameters: []byte{0x00, 0x00, 0x10, 0x00}, Status: &status,
			},
		},
		{
			Timestamp: ts.Add(2 * time.Second), NetworkID: testNetwork,
			Layer: log.LayerService, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityBearer, OldState: "CLOSED", NewState: "OPEN"},
		},
		{
			Timestamp: ts.Add(3 * time.Second), NetworkID: testNetwork,
			Layer: log.LayerAccess, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerAccess, Message: "replayed message", Source: &src},
		},
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"[net:5f2c8a10] OUT ACCESS GenericOnOffGet",
		"0001 -> 0005  Opcode: 0x8201",
		"NetKey: 0  AppKey: 0",
		"NetKey: 0  DevKey",
		"Status: SUCCESS (0)",
		"CLOSED -> OPEN",
		"Source: 0005",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunViewFiltered(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	dir := log.DirectionIn
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Direction: &dir}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "GenericOnOffGet") {
		t.Error("outgoing message not filtered")
	}
	if !strings.Contains(out, "ConfigAppKeyStatus") {
		t.Error("incoming message missing")
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Total Events: 4",
		"Networks:     1",
		"ACCESS:",
		"SERVICE:",
		"0x8201:",
		"[0001] sent 1, received 1",
		"[0005] sent 1, received 1",
		"Errors: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.mlog")

	n, err := RunFilter(path, FilterOptions{Output: out, Address: "0x0005", Opcode: "8003"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("RunFilter wrote %d events, want 1", n)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	e, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if e.Message == nil || e.Message.Opcode != access.OpAppKeyStatus {
		t.Errorf("filtered event = %+v, want AppKey Status", e)
	}
}

func TestRunFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.mlog")

	for _, opts := range []FilterOptions{
		{Output: out, Layer: "transport"},
		{Output: out, Direction: "sideways"},
		{Output: out, Address: "xyz"},
		{Output: out, Opcode: "7F"},
		{Output: out, TimeStart: "yesterday"},
	} {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("RunFilter(%+v) succeeded, want error", opts)
		}
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "events.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header and 4 events", len(rows))
	}
	if got := rows[2][5]; got != "ConfigAppKeyStatus" {
		t.Errorf("type = %q, want ConfigAppKeyStatus", got)
	}
	if got := rows[2][10]; got != "00001000" {
		t.Errorf("parameters = %q, want 00001000", got)
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("RunExport with unknown format succeeded")
	}
}
