package observability

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/chirp/dbopen"
	_ "modernc.org/sqlite"
)

func TestAuditLoggerSync(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	a := NewAuditLogger(db, 10)
	defer a.Close()

	entry := a.NewAuditEntry("ingester", "document.ingest",
		map[string]string{"filename": "report.pdf"}, map[string]string{"id": "doc_1"}, nil, 120*time.Millisecond)
	if err := a.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	var status string
	var durationMs int64
	err := db.QueryRow(`SELECT status, duration_ms FROM audit_log WHERE operation_type = 'document.ingest'`).
		Scan(&status, &durationMs)
	if err != nil {
		t.Fatal(err)
	}
	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}
	if durationMs != 120 {
		t.Errorf("duration_ms = %d, want 120", durationMs)
	}
}

func TestAuditLoggerAsyncDrain(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	a := NewAuditLogger(db, 10)
	for i := 0; i < 5; i++ {
		a.LogAsync(a.NewAuditEntry("ingester", "document.ingest", nil, nil, nil, 0))
	}
	a.Close() // drains the queue

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("audit rows = %d, want 5", count)
	}
}

func TestEventLogger(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	l := NewEventLogger(db)
	l.LogEvent(context.Background(), BusinessEvent{
		EventType:   "ingest",
		ServiceName: "chirpd",
		EntityType:  "document",
		EntityID:    "doc_1",
		Action:      "created",
		Success:     true,
	})

	var action string
	if err := db.QueryRow(`SELECT action FROM business_event_logs WHERE entity_id = 'doc_1'`).Scan(&action); err != nil {
		t.Fatal(err)
	}
	if action != "created" {
		t.Errorf("action = %q, want created", action)
	}
}

func TestMetricsFlushOnClose(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	mm := NewMetricsManager(db, 100, time.Hour) // no timed flush during test
	mm.RecordSimple(MetricIngestDurationMs, 250, "milliseconds")
	mm.RecordSimple(MetricIngestCount, 1, "count")
	mm.Close()

	metrics, err := mm.Query(MetricIngestDurationMs, nil, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(metrics))
	}
	if metrics[0].Value != 250 {
		t.Errorf("value = %v, want 250", metrics[0].Value)
	}
}
