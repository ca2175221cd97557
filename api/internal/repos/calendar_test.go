package repos

import (
	"reflect"
	"testing"
)

func TestNormalizeHolidays(t *testing.T) {
	got := normalizeHolidays([]string{"2026-03-01", "2026-01-01", "2026-03-01", "2026-02-16"})
	want := []string{"2026-01-01", "2026-02-16", "2026-03-01"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeHolidays() = %v, want %v", got, want)
	}

	if got := normalizeHolidays(nil); len(got) != 0 {
		t.Fatalf("normalizeHolidays(nil) = %v, want empty", got)
	}
}

func TestDecodeHolidays(t *testing.T) {
	got, err := decodeHolidays([]byte(`["2026-05-05", "2026-01-01"]`))
	if err != nil {
		t.Fatalf("decodeHolidays: %v", err)
	}
	want := []string{"2026-01-01", "2026-05-05"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decodeHolidays() = %v, want %v", got, want)
	}

	got, err = decodeHolidays(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("decodeHolidays(nil) = (%v, %v), want empty slice", got, err)
	}

	if _, err := decodeHolidays([]byte(`{"not": "a list"}`)); err == nil {
		t.Fatalf("expected error for non-array payload")
	}
}

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Fatalf("nullIfEmpty(\"\") = %v, want nil", got)
	}
	if got := nullIfEmpty("x"); got != "x" {
		t.Fatalf("nullIfEmpty(\"x\") = %v, want \"x\"", got)
	}
}
