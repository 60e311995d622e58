package queue

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestQueueRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q := Load(path)
	if items := q.Items(); len(items) != 0 {
		t.Fatalf("fresh queue not empty: %v", items)
	}

	for _, name := range []string{"M_42", "NGC_7000", "IC_1396"} {
		added, err := q.Add(name)
		if err != nil || !added {
			t.Fatalf("add %s: added=%v err=%v", name, added, err)
		}
	}
	if added, _ := q.Add("M_42"); added {
		t.Error("duplicate add should report false")
	}

	// State survives a reload.
	q = Load(path)
	want := []string{"M_42", "NGC_7000", "IC_1396"}
	if !reflect.DeepEqual(q.Items(), want) {
		t.Fatalf("after reload: %v", q.Items())
	}

	if next, ok := q.Next(); !ok || next != "M_42" {
		t.Errorf("Next = %q, %v", next, ok)
	}
	if err := q.Defer("M_42"); err != nil {
		t.Fatal(err)
	}
	if next, _ := q.Next(); next != "NGC_7000" {
		t.Errorf("after defer, Next = %q", next)
	}
	if err := q.Remove("NGC_7000"); err != nil {
		t.Fatal(err)
	}
	want = []string{"IC_1396", "M_42"}
	if !reflect.DeepEqual(q.Items(), want) {
		t.Errorf("final order: %v", q.Items())
	}
}

func TestQueueDeferUnknown(t *testing.T) {
	q := Load(filepath.Join(t.TempDir(), "q.json"))
	if err := q.Defer("ghost"); err == nil {
		t.Fatal("expected error for unknown target")
	}
}

func TestQueueTolerantOfCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := Load(path)
	if len(q.Items()) != 0 {
		t.Errorf("corrupt file should load empty: %v", q.Items())
	}
	if added, err := q.Add("M_42"); !added || err != nil {
		t.Errorf("add after corrupt load: %v %v", added, err)
	}
}
