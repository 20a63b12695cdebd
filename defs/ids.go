package defs

/// Tid_t identifies a task, kept as its own named type exactly as biscuit's
/// tinfo.go and defs package do, so a raw int can never be passed where a
/// task id is expected.
type Tid_t uint64

/// PortId_t is an opaque 64-bit port identifier (spec §6). Id 0 is reserved
/// for "port zero", a task's default inbox.
type PortId_t uint64

/// PortZero is the reserved default-inbox port id.
const PortZero PortId_t = 0

/// GroupId_t identifies a task group.
type GroupId_t uint64

/// RightSenderId_t is the monotonically-issued-per-group id a right is
/// looked up by within a task group (spec §4.7).
type RightSenderId_t uint64

/// HartId_t identifies one hardware execution context.
type HartId_t uint32

/// PTGenId_t is the monotonically issued id a page table is keyed by in the
/// global page-table map (spec §3, "Page table").
type PTGenId_t uint64

/// VecId_t identifies a GSI or architectural interrupt vector, whichever the
/// arch's interrupt controller uses (spec §4.10).
type VecId_t uint32
