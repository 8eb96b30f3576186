package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crimson-sun/ember/internal/model"
)

func testItems(msgs ...string) []model.CachedItem {
	items := make([]model.CachedItem, len(msgs))
	for i, m := range msgs {
		items[i] = model.CachedItem{
			Report: model.EventRecord{
				AppID:   "app",
				EventID: "evt-" + m,
				Message: m,
				Level:   model.LevelError,
			},
			CachedAt:   time.Date(2026, 2, 28, 12, 0, i, 0, time.UTC),
			RetryCount: i,
		}
	}
	return items
}

// exercise runs the shared contract against any Storage.
func exercise(t *testing.T, s Storage) {
	t.Helper()

	got, err := s.Load("missing")
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load(missing) = %v, want empty", got)
	}

	if err := s.Save("k", testItems("a", "b", "c")); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err = s.Load("k")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Load returned %d items, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Report.Message != want {
			t.Errorf("item %d = %q, want %q", i, got[i].Report.Message, want)
		}
		if got[i].RetryCount != i {
			t.Errorf("item %d RetryCount = %d, want %d", i, got[i].RetryCount, i)
		}
	}

	// Save replaces, never appends.
	if err := s.Save("k", testItems("z")); err != nil {
		t.Fatalf("second Save error: %v", err)
	}
	got, _ = s.Load("k")
	if len(got) != 1 || got[0].Report.Message != "z" {
		t.Errorf("after replace Load = %+v", got)
	}

	if err := s.Save("k", nil); err != nil {
		t.Fatalf("Save(nil) error: %v", err)
	}
	got, _ = s.Load("k")
	if len(got) != 0 {
		t.Errorf("after empty Save Load = %+v", got)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exercise(t, m)
	if m.Saves() != 3 {
		t.Errorf("Saves() = %d, want 3", m.Saves())
	}
}

func TestMemoryLoadDoesNotAlias(t *testing.T) {
	m := NewMemory()
	m.Save("k", testItems("a"))
	got, _ := m.Load("k")
	got[0].RetryCount = 99
	again, _ := m.Load("k")
	if again[0].RetryCount == 99 {
		t.Error("Load returned aliased slice")
	}
}

func TestFile(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	exercise(t, f)
}

func TestFileKeySanitized(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFile(dir)
	if err := f.Save("ember_offline_../../etc", testItems("a")); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 file in %s, got %d", dir, len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".json" {
		t.Errorf("unexpected file name %q", entries[0].Name())
	}
}

func TestFileCorruptIsError(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFile(dir)
	os.WriteFile(filepath.Join(dir, "k.json"), []byte("{not json"), 0o644)
	if _, err := f.Load("k"); err == nil {
		t.Error("expected decode error for corrupt file")
	}
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ember.db"))
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}
	defer s.Close()
	exercise(t, s)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}
	s.Save("k", testItems("a", "b"))
	s.Close()

	s2, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	got, err := s2.Load("k")
	if err != nil || len(got) != 2 {
		t.Errorf("after reopen Load = %v (err %v), want 2 items", got, err)
	}
}
