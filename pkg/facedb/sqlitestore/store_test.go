package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/dbehnke/dmr-nexus/pkg/facedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{Path: filepath.Join(dir, "faces.sqlite3")}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init(8); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestStore_AddThenLookupByIDAndName(t *testing.T) {
	s := openTestStore(t)
	feature := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	rec, err := s.Add("alice", feature)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.ID == 0 {
		t.Fatalf("expected nonzero generated id")
	}

	byID, err := s.LookupByID(rec.ID)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if byID.Name != "alice" {
		t.Fatalf("expected name alice, got %q", byID.Name)
	}

	byName, err := s.LookupByName("alice")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if byName.ID != rec.ID {
		t.Fatalf("expected matching id across lookups")
	}
}

func TestStore_AddRejectsWrongFeatureSize(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Add("bob", []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for mismatched feature size")
	}
}

func TestStore_AddDuplicateNameFails(t *testing.T) {
	s := openTestStore(t)
	feature := make([]byte, 8)
	if _, err := s.Add("carol", feature); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("carol", feature); err != facedb.ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestStore_LookupMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.LookupByID(999); err != facedb.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LookupByName("nobody"); err != facedb.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_DeleteByIDAndByName(t *testing.T) {
	s := openTestStore(t)
	feature := make([]byte, 8)
	a, _ := s.Add("dave", feature)
	b, _ := s.Add("erin", feature)

	if err := s.DeleteByID(a.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if _, err := s.LookupByID(a.ID); err != facedb.ErrNotFound {
		t.Fatalf("expected record gone after DeleteByID")
	}

	if err := s.DeleteByName("erin"); err != nil {
		t.Fatalf("DeleteByName: %v", err)
	}
	if _, err := s.LookupByID(b.ID); err != facedb.ErrNotFound {
		t.Fatalf("expected record gone after DeleteByName")
	}
}

func TestStore_UpdateNameAndFeature(t *testing.T) {
	s := openTestStore(t)
	rec, _ := s.Add("frank", make([]byte, 8))

	if err := s.UpdateName(rec.ID, "franklin"); err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	newFeature := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	if err := s.UpdateFeature(rec.ID, newFeature); err != nil {
		t.Fatalf("UpdateFeature: %v", err)
	}

	got, err := s.LookupByID(rec.ID)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if got.Name != "franklin" {
		t.Fatalf("expected renamed record, got %q", got.Name)
	}
	if string(got.Feature) != string(newFeature) {
		t.Fatalf("expected updated feature bytes")
	}
}

func TestStore_EnumerateIDsAndCount(t *testing.T) {
	s := openTestStore(t)
	feature := make([]byte, 8)
	a, _ := s.Add("gina", feature)
	b, _ := s.Add("hank", feature)

	ids, err := s.EnumerateIDs()
	if err != nil {
		t.Fatalf("EnumerateIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	_ = a
	_ = b
}

func TestStore_MarkCleanClearsSavedFlag(t *testing.T) {
	s := openTestStore(t)
	rec, _ := s.Add("iris", make([]byte, 8))
	if !rec.SavedFlag {
		t.Fatalf("expected new record to start with SavedFlag set")
	}

	if err := s.MarkClean(rec.ID); err != nil {
		t.Fatalf("MarkClean: %v", err)
	}
	got, err := s.LookupByID(rec.ID)
	if err != nil {
		t.Fatalf("LookupByID: %v", err)
	}
	if got.SavedFlag {
		t.Fatalf("expected SavedFlag cleared after MarkClean")
	}
}

func TestStore_GenerateUnusedIDDoesNotReserve(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.GenerateUnusedID()
	if err != nil {
		t.Fatalf("GenerateUnusedID: %v", err)
	}
	id2, err := s.GenerateUnusedID()
	if err != nil {
		t.Fatalf("GenerateUnusedID: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected repeated calls without Add to return the same id, got %d then %d", id1, id2)
	}
}
