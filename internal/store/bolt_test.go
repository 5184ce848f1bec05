package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type testDoc struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	doc := testDoc{Items: []string{"milk", "eggs"}, Count: 2}
	if err := s.Save(KeyFridge, doc); err != nil {
		t.Fatal(err)
	}

	var got testDoc
	if err := s.Load(KeyFridge, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 {
		t.Errorf("count = %d, want 2", got.Count)
	}
	if len(got.Items) != 2 || got.Items[0] != "milk" {
		t.Errorf("items = %v, want [milk eggs]", got.Items)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(KeyRooms, testDoc{Items: []string{"a", "b", "c"}, Count: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(KeyRooms, testDoc{Count: 1}); err != nil {
		t.Fatal(err)
	}

	var got testDoc
	if err := s.Load(KeyRooms, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 0 {
		t.Errorf("items = %v, want none after overwrite", got.Items)
	}
	if got.Count != 1 {
		t.Errorf("count = %d, want 1", got.Count)
	}
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)

	var got testDoc
	err := s.Load("missing", &got)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveUnencodable(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(KeyFridge, testDoc{Count: 7}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(KeyFridge, map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected encode error, got nil")
	}

	var got testDoc
	if err := s.Load(KeyFridge, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 7 {
		t.Errorf("count = %d, want 7 (previous document kept)", got.Count)
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(KeyRooms, testDoc{Count: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	var got testDoc
	if err := s2.Load(KeyRooms, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 5 {
		t.Errorf("count = %d, want 5", got.Count)
	}
}
