//go:build sim

// Package pmm, sim build: hosts the frame allocator's direct-map arena on
// a real mmap'd region instead of the bare Go heap, the same way
// avagin-gvisor's pkg/sentry/platform/kvm backs guest physical memory with
// a host mmap region. This lets vm/region/ipc tests exercise real
// copy_to/copy_from semantics against page-aligned memory under
// `go test -tags sim`.
package pmm

import "golang.org/x/sys/unix"

func newArena(npages int) []byte {
	a, err := unix.Mmap(-1, 0, npages*4096, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		panic("pmm: mmap arena: " + err.Error())
	}
	return a
}
