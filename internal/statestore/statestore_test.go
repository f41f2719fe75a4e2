package statestore

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/hcbridge/internal/executor"
	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/infrastructure/database"
	"github.com/nerrad567/hcbridge/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNewNil(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilDB) {
		t.Errorf("New(nil) error = %v, want ErrNilDB", err)
	}
}

func TestCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LoadCursor(ctx)
	if err != nil || got != 0 {
		t.Fatalf("LoadCursor() on empty store = %d, %v; want 0, nil", got, err)
	}
	for _, c := range []int64{42, 17, 0} {
		if err := s.SaveCursor(ctx, c); err != nil {
			t.Fatalf("SaveCursor(%d) error = %v", c, err)
		}
		got, err := s.LoadCursor(ctx)
		if err != nil {
			t.Fatalf("LoadCursor() error = %v", err)
		}
		if got != c {
			t.Errorf("LoadCursor() = %d, want %d", got, c)
		}
	}
}

func TestRecordChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	inputs := []struct {
		sub, char string
		value     any
		remote    bool
	}{
		{"12", "On", true, true},
		{"12", "Brightness", 40, true},
		{"13", "CurrentTemperature", 21.5, false},
	}
	for i, in := range inputs {
		if err := s.RecordChange(ctx, in.sub, in.char, in.value, in.remote, at.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}

	all, err := s.RecentChanges(ctx, "", 0)
	if err != nil {
		t.Fatalf("RecentChanges() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("RecentChanges() returned %d rows, want 3", len(all))
	}
	if all[0].Characteristic != "CurrentTemperature" || all[0].Value != 21.5 || all[0].Remote {
		t.Errorf("newest row = %+v", all[0])
	}
	if !all[0].RecordedAt.Equal(at.Add(2 * time.Second)) {
		t.Errorf("RecordedAt = %v, want %v", all[0].RecordedAt, at.Add(2*time.Second))
	}

	one, err := s.RecentChanges(ctx, "12", 1)
	if err != nil {
		t.Fatalf("RecentChanges(12) error = %v", err)
	}
	if len(one) != 1 || one[0].Characteristic != "Brightness" || one[0].Value != float64(40) {
		t.Errorf("RecentChanges(12, 1) = %+v", one)
	}
}

func TestRecordCommand(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	records := []executor.Record{
		{ID: "a", Command: "setValue", Target: "device", DeviceID: 12, Subtype: "12", Args: []any{70}, Started: start, Duration: 30 * time.Millisecond},
		{ID: "b", Command: "turnOff", Target: "device", DeviceID: 12, Subtype: "12", Err: errors.New("timeout"), Started: start.Add(time.Second)},
		{ID: "c", Command: "setVariable", Target: "variable", Subtype: "G-Away", Skipped: true, Started: start.Add(2 * time.Second)},
	}
	for _, r := range records {
		if err := s.RecordCommand(ctx, r); err != nil {
			t.Fatalf("RecordCommand(%s) error = %v", r.ID, err)
		}
	}

	got, err := s.RecentCommands(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCommands() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentCommands() returned %d rows, want 2 (skipped records are not stored)", len(got))
	}
	if got[0].ID != "b" || got[0].Error != "timeout" {
		t.Errorf("newest command = %+v", got[0])
	}
	if got[1].Duration != 30*time.Millisecond || !reflect.DeepEqual(got[1].Args, []any{float64(70)}) {
		t.Errorf("oldest command = %+v", got[1])
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	_ = s.RecordChange(ctx, "1", "On", true, true, old)
	_ = s.RecordChange(ctx, "1", "On", false, true, recent)
	_ = s.RecordCommand(ctx, executor.Record{ID: "x", Command: "turnOn", Target: "device", Started: old})

	n, err := s.Prune(ctx, recent.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d rows, want 2", n)
	}
	left, _ := s.RecentChanges(ctx, "", 0)
	if len(left) != 1 || left[0].Value != false {
		t.Errorf("remaining history = %+v", left)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, defaultLimit}, {-3, defaultLimit}, {10, 10}, {10000, maxLimit}}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
