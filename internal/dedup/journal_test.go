package dedup_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/snehjoshi/spoolq/internal/dedup"
)

func openJournal(t *testing.T) *dedup.Journal {
	t.Helper()
	j, err := dedup.Open(filepath.Join(t.TempDir(), "journal.db"), time.Second)
	if err != nil {
		t.Fatalf("dedup.Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestMarkDelivered_FirstThenDuplicate(t *testing.T) {
	j := openJournal(t)
	at := time.UnixMilli(1_700_000_000_000)

	first, err := j.MarkDelivered("01HX", dedup.Entry{DeliveredAt: at, File: "0.a.b.c.1"})
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if !first {
		t.Fatal("first delivery should report true")
	}
	again, err := j.MarkDelivered("01HX", dedup.Entry{DeliveredAt: at.Add(time.Hour)})
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if again {
		t.Fatal("second delivery should report false")
	}

	e, ok, err := j.Lookup("01HX")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if !e.DeliveredAt.Equal(at) || e.File != "0.a.b.c.1" {
		t.Errorf("Lookup: original entry should be kept, got %+v", e)
	}
}

func TestMarkDelivered_EmptyID(t *testing.T) {
	j := openJournal(t)
	if _, err := j.MarkDelivered("", dedup.Entry{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestPrune(t *testing.T) {
	j := openJournal(t)
	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := j.MarkDelivered(id, dedup.Entry{DeliveredAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("MarkDelivered(%s): %v", id, err)
		}
	}

	n, err := j.Prune(base.Add(90 * time.Second))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune: want 2 removed, got %d", n)
	}
	if l, _ := j.Len(); l != 1 {
		t.Errorf("Len after prune: want 1, got %d", l)
	}
	if _, ok, _ := j.Lookup("c"); !ok {
		t.Error("newest entry should survive prune")
	}
}

func TestJournal_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := dedup.Open(path, time.Second)
	if err != nil {
		t.Fatalf("dedup.Open: %v", err)
	}
	if _, err := j.MarkDelivered("x", dedup.Entry{DeliveredAt: time.Now()}); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := dedup.Open(path, time.Second)
	if err != nil {
		t.Fatalf("dedup.Open (reopen): %v", err)
	}
	defer j2.Close()
	first, err := j2.MarkDelivered("x", dedup.Entry{DeliveredAt: time.Now()})
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if first {
		t.Error("id recorded before reopen should be a duplicate")
	}
}
