package model

import "testing"

func TestCellID(t *testing.T) {
	if got := CellID(5, 8); got != "G_05_08" {
		t.Fatalf("CellID(5,8) = %q, want G_05_08", got)
	}
}

func TestParseCellID_Valid(t *testing.T) {
	x, y, err := ParseCellID("G_05_08", 20, 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x != 5 || y != 8 {
		t.Fatalf("got (%d,%d), want (5,8)", x, y)
	}
}

func TestParseCellID_OutOfBounds(t *testing.T) {
	if _, _, err := ParseCellID("G_19_14", 20, 15); err != nil {
		t.Fatalf("unexpected error for in-bounds max cell: %v", err)
	}
	if _, _, err := ParseCellID("G_20_00", 20, 15); err == nil {
		t.Fatal("expected out-of-bounds error for x=20 in a width-20 grid")
	}
}

func TestParseCellID_MalformedRejected(t *testing.T) {
	cases := []string{"G_5_08", "g_05_08", "G_05_8", "G_05-08", ""}
	for _, c := range cases {
		if _, _, err := ParseCellID(c, 20, 15); err == nil {
			t.Fatalf("expected error for malformed id %q", c)
		}
	}
}

func TestValidCellID(t *testing.T) {
	if !ValidCellID("G_00_00", 20, 15) {
		t.Fatal("G_00_00 should be valid in a 20x15 grid")
	}
	if ValidCellID("G_20_15", 20, 15) {
		t.Fatal("G_20_15 should be out of bounds in a 20x15 grid")
	}
}
