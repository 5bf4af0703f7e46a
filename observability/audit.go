// Package observability provides SQLite-native monitoring for the chirp
// services: an operation-level audit trail, business events and a metrics
// timeseries, all written to a shared observability database.
//
// All persistence is async and non-blocking: buffer overflow falls back to
// a synchronous insert rather than dropping the audit record, while metrics
// are flushed in batches.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/chirp/idgen"
)

// AuditEntry is a single operation record in the audit trail.
type AuditEntry struct {
	EntryID       string
	Timestamp     time.Time
	ComponentName string // e.g. "ingester", "enrich"
	OperationType string // e.g. "document.ingest", "sentence.score"

	UserID    string
	RequestID string

	Parameters   string // JSON
	Result       string // JSON
	ErrorMessage string
	DurationMs   int64

	Status string // "success", "error", "duplicate"
}

// AuditLogger persists operation-level audit entries asynchronously.
type AuditLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *AuditEntry
	stop  chan struct{}
	done  chan struct{}
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets a custom ID generator for audit entry IDs.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// NewAuditLogger creates an async audit logger. Recommended bufferSize: 1000.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *AuditEntry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// Log inserts an audit entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, entry *AuditEntry) error {
	a.fillDefaults(entry)
	return a.insert(ctx, entry)
}

// LogAsync queues an entry for async persistence.
// Falls back to synchronous insert if the buffer is full.
func (a *AuditLogger) LogAsync(entry *AuditEntry) {
	a.fillDefaults(entry)
	select {
	case a.ch <- entry:
	default:
		slog.Warn("audit buffer full, sync fallback", "component", entry.ComponentName)
		if err := a.insert(context.Background(), entry); err != nil {
			slog.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// NewAuditEntry builds an AuditEntry from operation parameters, result and
// error. Params and result are marshalled to JSON.
func (a *AuditLogger) NewAuditEntry(component, operation string, params, result any, err error, duration time.Duration) *AuditEntry {
	entry := &AuditEntry{
		EntryID:       a.newID(),
		Timestamp:     time.Now(),
		ComponentName: component,
		OperationType: operation,
		DurationMs:    duration.Milliseconds(),
	}

	if params != nil {
		if b, e := json.Marshal(params); e == nil {
			entry.Parameters = string(b)
		}
	}
	if err != nil {
		entry.Status = "error"
		entry.ErrorMessage = err.Error()
	} else {
		entry.Status = "success"
		if result != nil {
			if b, e := json.Marshal(result); e == nil {
				entry.Result = string(b)
			}
		}
	}
	return entry
}

// Close flushes queued entries and stops the background goroutine.
func (a *AuditLogger) Close() {
	close(a.stop)
	<-a.done
}

func (a *AuditLogger) fillDefaults(entry *AuditEntry) {
	if entry.EntryID == "" {
		entry.EntryID = a.newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Parameters == "" {
		entry.Parameters = "{}"
	}
	if entry.Status == "" {
		entry.Status = "success"
	}
}

func (a *AuditLogger) insert(ctx context.Context, e *AuditEntry) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			entry_id, timestamp, component_name, operation_type,
			user_id, request_id, parameters, result,
			error_message, duration_ms, status
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp.Unix(), e.ComponentName, e.OperationType,
		e.UserID, e.RequestID, e.Parameters, e.Result,
		e.ErrorMessage, e.DurationMs, e.Status)
	return err
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	for {
		select {
		case entry := <-a.ch:
			if err := a.insert(context.Background(), entry); err != nil {
				slog.Error("audit insert failed", "error", err, "operation", entry.OperationType)
			}
		case <-a.stop:
			// Drain remaining entries before exiting.
			for {
				select {
				case entry := <-a.ch:
					if err := a.insert(context.Background(), entry); err != nil {
						slog.Error("audit drain failed", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}
