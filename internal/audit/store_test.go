package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/wisprlabs/voiceid/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.AuditConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Record{Operation: "identify", Outcome: "unknown"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	records, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records in ephemeral mode, got %d", len(records))
	}
}

func TestAppendAndList(t *testing.T) {
	cfg := config.AuditConfig{Path: filepath.Join(t.TempDir(), "audit.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Record{
		RequestID: "req-1",
		Operation: "enroll",
		Speaker:   "alice",
		Outcome:   "ok",
	}); err != nil {
		t.Fatalf("append enroll: %v", err)
	}
	if err := s.Append(context.Background(), Record{
		RequestID: "req-2",
		Operation: "identify",
		Speaker:   "alice",
		Score:     0.93,
		Outcome:   "match",
	}); err != nil {
		t.Fatalf("append identify: %v", err)
	}

	records, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RequestID != "req-2" {
		t.Fatalf("expected newest first, got %+v", records[0])
	}
	if records[0].Score != 0.93 || records[0].Outcome != "match" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestPruneByDaysAndMaxRecords(t *testing.T) {
	cfg := config.AuditConfig{
		Path:          filepath.Join(t.TempDir(), "audit.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxRecords:    1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{RequestID: "old", Operation: "identify", Outcome: "unknown"}); err != nil {
		t.Fatalf("append old record: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{RequestID: "new", Operation: "identify", Outcome: "match"}); err != nil {
		t.Fatalf("append new record: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after prune, got %d", len(records))
	}
	if records[0].RequestID != "new" {
		t.Fatalf("expected old record pruned, kept %+v", records[0])
	}
}
