package notify

import (
	"strings"
	"testing"
	"time"

	"inventoryview/inventory"
)

func scanSnapshots() []*inventory.Snapshot {
	store := inventory.NewStore()
	inv := store.Append("Alice", inventory.SourceInventory)
	pack := store.AppendRoot(inv, inventory.NewItem("a backpack", false))
	store.AppendChild(pack, inventory.NewItem("a rock", false))
	store.Append("Alice", inventory.SourceVault)
	return store.Inventory("Alice")
}

func TestBuildSummary(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	s := BuildSummary("Alice", scanSnapshots(), at)
	if s.Character != "Alice" {
		t.Fatalf("expected Alice, got %q", s.Character)
	}
	if !s.CompletedAt.Equal(at) || s.CompletedAt.Location() != time.UTC {
		t.Fatalf("expected UTC completion time, got %v", s.CompletedAt)
	}
	if len(s.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(s.Sources))
	}
	if s.Sources[0].Source != inventory.SourceInventory || s.Sources[0].Items != 2 {
		t.Fatalf("unexpected inventory summary %+v", s.Sources[0])
	}
	if s.Sources[1].Source != inventory.SourceVault || s.Sources[1].Items != 0 {
		t.Fatalf("unexpected vault summary %+v", s.Sources[1])
	}
}

func TestPayloadShape(t *testing.T) {
	m := NewMQTT(Options{Broker: "localhost", Port: 1883, Topic: "inventoryview/scans"})
	m.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	payload, err := m.Payload("Alice", scanSnapshots())
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	want := `{"character":"Alice","completed_at":"2024-03-01T12:00:00Z","sources":[{"source":"Inventory","items":2},{"source":"Vault","items":0}]}`
	if string(payload) != want {
		t.Fatalf("expected %s, got %s", want, payload)
	}
}

func TestScanCompleteWithoutConnection(t *testing.T) {
	m := NewMQTT(Options{Topic: "t"})
	m.ScanComplete("Alice", scanSnapshots())
	if !strings.HasPrefix(m.opts.ClientID, "inventoryview-") {
		t.Fatalf("expected generated client id, got %q", m.opts.ClientID)
	}
}

func TestConnectRequiresTopic(t *testing.T) {
	if err := NewMQTT(Options{Broker: "localhost", Port: 1883}).Connect(); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}
