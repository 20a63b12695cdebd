package bpath

import (
	"testing"

	"ustr"
)

func TestCanonicalizeCollapsesRepeatedSeparators(t *testing.T) {
	got := Canonicalize(ustr.Ustr("svc..time..get")).String()
	if got != "svc.time.get" {
		t.Fatalf("expected svc.time.get, got %q", got)
	}
}

func TestCanonicalizeStripsLeadingAndTrailingSeparators(t *testing.T) {
	got := Canonicalize(ustr.Ustr(".svc.time.")).String()
	if got != "svc.time" {
		t.Fatalf("expected svc.time, got %q", got)
	}
}

func TestSplitReturnsComponents(t *testing.T) {
	parts := Split(ustr.Ustr("svc.time.get"))
	if len(parts) != 3 || parts[0].String() != "svc" || parts[1].String() != "time" || parts[2].String() != "get" {
		t.Fatalf("unexpected split: %v", parts)
	}
}

func TestSplitOfEmptyNameReturnsNil(t *testing.T) {
	if parts := Split(ustr.Ustr("")); parts != nil {
		t.Fatalf("expected nil for an empty name, got %v", parts)
	}
}
