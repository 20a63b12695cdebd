package archbits

import (
	"testing"

	"mem"
)

func TestEncodeDecodeRoundTripX86(t *testing.T) {
	args := mem.MapArgs_t{R: true, W: true, U: true, Extra: mem.ExtraStructPage}
	raw := Encode(X86_64, args, 0x1000, Options{NXSupported: true})
	if !IsPresent(X86_64, raw) {
		t.Fatal("expected present bit set")
	}
	info := Decode(X86_64, raw)
	if !info.IsAllocated || !info.User {
		t.Fatalf("unexpected decode: %+v", info)
	}
	if info.Extra&mem.ExtraStructPage == 0 {
		t.Fatal("expected StructPage bit preserved")
	}
	if info.PageAddr != 0x1000 {
		t.Fatalf("page addr mismatch: %#x", info.PageAddr)
	}
}

func TestRiscvSvpbmtDegrades(t *testing.T) {
	args := mem.MapArgs_t{R: true, W: true, Cache: mem.CacheIoNoCache}
	raw := Encode(Riscv64, args, 0x2000, Options{SvpbmtEnabled: false})
	if raw&rvPBMTMask != 0 {
		t.Fatal("cache policy must degrade to PMA when Svpbmt is disabled")
	}
}

func TestClearIsNotPresent(t *testing.T) {
	if IsPresent(X86_64, Clear(X86_64)) {
		t.Fatal("cleared x86 entry must not be present")
	}
	if IsPresent(Riscv64, Clear(Riscv64)) {
		t.Fatal("cleared riscv entry must not be valid")
	}
}
