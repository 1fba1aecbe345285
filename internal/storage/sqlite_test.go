package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_BlobRoundTrip(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load("browser-1")
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if got != nil {
		t.Fatalf("Load empty = %q, want nil", got)
	}

	blob := []byte(`{"sessions":[{"id":"sess_1","title":"` + strings.Repeat("hello ", 500) + `"}],"currentSessionId":"sess_1","layoutMode":"floating"}`)
	if err := store.Save("browser-1", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = store.Load("browser-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("Load returned different bytes")
	}

	// Overwrite
	if err := store.Save("browser-1", []byte(`{"sessions":[]}`)); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, _ = store.Load("browser-1")
	if string(got) != `{"sessions":[]}` {
		t.Fatalf("after overwrite = %q", got)
	}
}

func TestSQLiteStore_CompressesAtRest(t *testing.T) {
	store := newTestStore(t)
	blob := bytes.Repeat([]byte(`{"role":"user","content":"same text again"},`), 2000)
	if err := store.Save("c1", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	states, err := store.ClientStates()
	if err != nil {
		t.Fatalf("ClientStates: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("len(states)=%d, want 1", len(states))
	}
	if states[0].RawSize != int64(len(blob)) {
		t.Fatalf("RawSize=%d, want %d", states[0].RawSize, len(blob))
	}
	if states[0].StoredSize >= states[0].RawSize {
		t.Fatalf("StoredSize=%d not smaller than RawSize=%d", states[0].StoredSize, states[0].RawSize)
	}
}

func TestSQLiteStore_Clients(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		if err := store.Save(id, []byte("{}")); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	ids, err := store.Clients()
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("Clients=%v", ids)
	}
}

func TestSQLiteStore_CreatePersonReusesCompany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreatePerson(ctx, Person{
		FirstName:   "Jane",
		LastName:    "Doe",
		Emails:      []string{"jane@acme.test"},
		Phones:      []string{"+1 555 0100"},
		CompanyName: "Acme",
		JobTitle:    "CTO",
	})
	if err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}
	if first.ID == "" || first.CompanyID == "" {
		t.Fatalf("missing ids: %+v", first)
	}

	second, err := store.CreatePerson(ctx, Person{FirstName: "John", CompanyName: "ACME"})
	if err != nil {
		t.Fatalf("CreatePerson second: %v", err)
	}
	if second.CompanyID != first.CompanyID {
		t.Fatalf("company not reused: %s vs %s", second.CompanyID, first.CompanyID)
	}
	if second.CompanyName != "Acme" {
		t.Fatalf("CompanyName=%q, want canonical Acme", second.CompanyName)
	}
	n, err := store.CountCompanies(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountCompanies=%d err=%v, want 1", n, err)
	}

	third, err := store.CreatePerson(ctx, Person{LastName: "Solo"})
	if err != nil {
		t.Fatalf("CreatePerson without company: %v", err)
	}
	if third.CompanyID != "" {
		t.Fatalf("unexpected company for %+v", third)
	}

	people, err := store.ListPeople(ctx, 0)
	if err != nil {
		t.Fatalf("ListPeople: %v", err)
	}
	if len(people) != 3 {
		t.Fatalf("len(people)=%d, want 3", len(people))
	}
	var jane PersonRecord
	for _, p := range people {
		if p.ID == first.ID {
			jane = p
		}
	}
	if len(jane.Emails) != 1 || jane.Emails[0] != "jane@acme.test" || jane.CompanyName != "Acme" {
		t.Fatalf("jane round trip: %+v", jane)
	}

	limited, err := store.ListPeople(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("ListPeople limit: len=%d err=%v", len(limited), err)
	}
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
