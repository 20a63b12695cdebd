package klog

import "testing"

func TestPrintfThenDrainReturnsInOrder(t *testing.T) {
	r := NewRing(4)
	r.Printf(Info, "one")
	r.Printf(Info, "two")
	lines := r.Drain()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0][len(lines[0])-3:] != "one" || lines[1][len(lines[1])-3:] != "two" {
		t.Fatalf("expected chronological order, got %v", lines)
	}
}

func TestDrainEmptiesTheRing(t *testing.T) {
	r := NewRing(4)
	r.Printf(Info, "x")
	r.Drain()
	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("expected an empty drain after the ring was emptied, got %v", got)
	}
}

func TestOverwritesOldestWhenFull(t *testing.T) {
	r := NewRing(2)
	r.Printf(Info, "a")
	r.Printf(Info, "b")
	r.Printf(Info, "c")
	lines := r.Drain()
	if len(lines) != 2 {
		t.Fatalf("expected the ring capped at 2 lines, got %d", len(lines))
	}
	if lines[0][len(lines[0])-1] != 'b' || lines[1][len(lines[1])-1] != 'c' {
		t.Fatalf("expected the oldest line dropped, got %v", lines)
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected 1 dropped line recorded, got %d", r.Dropped())
	}
}

func TestFatalInvokesHook(t *testing.T) {
	r := NewRing(4)
	var got Line_t
	fired := false
	r.OnFatal(func(l Line_t) { got = l; fired = true })
	r.Printf(Fatal, "boom %d", 7)
	if !fired || got.Level != Fatal {
		t.Fatal("expected the fatal hook to fire with the logged line")
	}
}

func countSuffix(lines []string, suffix string) int {
	n := 0
	for _, l := range lines {
		if len(l) >= len(suffix) && l[len(l)-len(suffix):] == suffix {
			n++
		}
	}
	return n
}

func logOnceSiteA() { PrintfOnce(Warn, "dupe from site A") }
func logOnceSiteB() { PrintfOnce(Warn, "dupe from site B") }

func TestPrintfOnceSuppressesRepeatCallChain(t *testing.T) {
	Drain()
	for i := 0; i < 3; i++ {
		logOnceSiteA()
	}
	lines := Drain()
	if n := countSuffix(lines, "dupe from site A"); n != 1 {
		t.Fatalf("expected exactly one logged line for a repeated call chain, got %d in %v", n, lines)
	}
}

func TestPrintfOnceLogsDistinctCallChainsIndependently(t *testing.T) {
	Drain()
	logOnceSiteA()
	logOnceSiteB()
	lines := Drain()
	if n := countSuffix(lines, "dupe from site B"); n != 1 {
		t.Fatalf("expected a distinct call chain to log independently, got %v", lines)
	}
}

func TestPackageLevelRingIsIndependentOfCustomRings(t *testing.T) {
	Printf(Debug, "pkg level")
	lines := Drain()
	found := false
	for _, l := range lines {
		if l[len(l)-9:] == "pkg level" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the package-level ring to carry the logged line")
	}
}
