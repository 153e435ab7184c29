package engine

import "testing"

func TestDedupeWindow_SeenAfterInsert(t *testing.T) {
	w := newDedupeWindow(10)
	if w.Seen("a") {
		t.Fatal("unseen id reported as seen")
	}
	w.Insert("a")
	if !w.Seen("a") {
		t.Fatal("inserted id not reported as seen")
	}
}

func TestDedupeWindow_EvictsOldestBeyondCapacity(t *testing.T) {
	w := newDedupeWindow(2)
	w.Insert("a")
	w.Insert("b")
	w.Insert("c")

	if w.Seen("a") {
		t.Fatal("oldest id should have been evicted")
	}
	if !w.Seen("b") || !w.Seen("c") {
		t.Fatal("most recent ids should remain in the window")
	}
}
