package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"scened/internal/db"
)

func testStore(t *testing.T) *PrefsStore {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewPrefsStore(database.DB)
}

func TestPrefsGetUnknownDevice(t *testing.T) {
	s := testStore(t)

	prefs, err := s.Get("lamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if prefs.DeviceID != "lamp" || prefs.Timeshift != 0 || len(prefs.ActiveScenes) != 0 {
		t.Fatalf("unknown device prefs = %+v, want zero values", prefs)
	}
}

func TestPrefsSetGetRoundtrip(t *testing.T) {
	s := testStore(t)

	if err := s.Set("lamp", 3600, []string{"daytime", "night"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	prefs, err := s.Get("lamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if prefs.Timeshift != 3600 {
		t.Errorf("timeshift = %d, want 3600", prefs.Timeshift)
	}
	if !reflect.DeepEqual(prefs.ActiveScenes, []string{"daytime", "night"}) {
		t.Errorf("active scenes = %v", prefs.ActiveScenes)
	}
	if prefs.UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}
}

func TestPrefsSetOverwrites(t *testing.T) {
	s := testStore(t)

	if err := s.Set("lamp", 3600, []string{"daytime"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("lamp", -7200, nil); err != nil {
		t.Fatal(err)
	}

	prefs, err := s.Get("lamp")
	if err != nil {
		t.Fatal(err)
	}
	if prefs.Timeshift != -7200 {
		t.Errorf("timeshift = %d, want -7200", prefs.Timeshift)
	}
	if len(prefs.ActiveScenes) != 0 {
		t.Errorf("active scenes = %v, want empty", prefs.ActiveScenes)
	}
}

func TestPrefsAll(t *testing.T) {
	s := testStore(t)

	if err := s.Set("lamp", 0, []string{"night"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("strip", 1800, nil); err != nil {
		t.Fatal(err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All returned %d entries, want 2", len(all))
	}
}

func TestPrefsClear(t *testing.T) {
	s := testStore(t)

	if err := s.Set("lamp", 0, []string{"night"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("All after Clear = %d entries", len(all))
	}
}
