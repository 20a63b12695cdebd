package syscall

import (
	"testing"

	"archbits"
	"defs"
	"ipc"
	"irq"
	"pmm"
	"region"
	"rights"
	"tempmap"
	"vm"
)

type fakeController struct{}

func (fakeController) Enable(defs.VecId_t)  {}
func (fakeController) Disable(defs.VecId_t) {}
func (fakeController) Ack(defs.VecId_t)     {}

func newTestVm(t *testing.T) *vm.Vm_t {
	t.Helper()
	alloc := pmm.NewAllocator(0, 64)
	v := vm.NewVm(archbits.X86_64, archbits.Options{NXSupported: true}, alloc, tempmap.NewMapper(4), 0)
	v.Regions.Insert(&region.Region_t{
		Start: 0x400000, End: 0x402000,
		Kind: region.AnonymousLazy, Access: region.AccessRead | region.AccessWrite | region.AccessUser,
		Alloc: alloc,
	})
	return v
}

func TestPrepareUserBuffRdFaultsAndCopies(t *testing.T) {
	v := newTestVm(t)
	v.AtomicCopyToUser(0x400000, []byte("ping"))
	buf, err := PrepareUserBuffRd(v, 0x400000, 4)
	if err != 0 || string(buf) != "ping" {
		t.Fatalf("unexpected result: %q err=%v", buf, err)
	}
}

func TestPrepareUserBuffRdRejectsOverflowingRange(t *testing.T) {
	v := newTestVm(t)
	if _, err := PrepareUserBuffRd(v, ^uintptr(0)-2, 16); err != defs.EBADADDR {
		t.Fatalf("expected BadAddress on an overflowing range, got %v", err)
	}
}

func TestDispatchSendThenReceiveRoundTrip(t *testing.T) {
	v := newTestVm(t)
	v.AtomicCopyToUser(0x400000, []byte("hello"))
	p := ipc.NewPort(1)

	sendRes := Dispatch(v, nil, 0, nil, Args_t{
		Num: SysPortSendFromUser, Port: p, Buf: 0x400000, Len: 5, MsgType: defs.MsgTimerReply,
	})
	if sendRes.Err != 0 {
		t.Fatalf("send failed: %v", sendRes.Err)
	}

	recvRes := Dispatch(v, nil, 0, nil, Args_t{
		Num: SysPortReceive, Port: p, Buf: 0x401000, Block: false,
	})
	if recvRes.Err != 0 || recvRes.Value != 5 {
		t.Fatalf("unexpected receive result: %+v", recvRes)
	}
	v.Lock_pmap()
	phys, _ := v.ResolvePhys(0x401000)
	got := v.Alloc.Bytes(phys)[:5]
	v.Unlock_pmap()
	if string(got) != "hello" {
		t.Fatalf("expected the payload copied into the receiver's buffer, got %q", got)
	}
}

func TestDispatchIrqAcknowledge(t *testing.T) {
	tbl := irq.NewTable(0, fakeController{})
	p := ipc.NewPort(1)
	tbl.AddHandler(9, p, true)
	tbl.Dispatch(9)

	res := Dispatch(nil, nil, 0, nil, Args_t{Num: SysIrqAcknowledge, Vec: 9, Irqs: tbl})
	if res.Err != 0 {
		t.Fatalf("ack failed: %v", res.Err)
	}
	if tbl.IsActive(9) {
		t.Fatal("expected the handler to be deactivated after ack")
	}
}

func TestDispatchRightCreateAndDestroy(t *testing.T) {
	table := rights.NewTable()
	p := ipc.NewPort(1)

	res := Dispatch(nil, table, 0, nil, Args_t{Num: SysRightCreate, Port: p, Group: 7, RightKind: rights.SendMany})
	if res.Err != 0 || res.Value == 0 {
		t.Fatalf("unexpected create result: %+v", res)
	}
}

func TestDispatchRightSendMessageRejectsOversizedRightsArray(t *testing.T) {
	v := newTestVm(t)
	v.AtomicCopyToUser(0x400000, []byte("hi"))
	table := rights.NewTable()
	p := ipc.NewPort(1)
	right, err := table.CreateForGroup(p, 7, rights.SendMany, 0)
	if err != 0 {
		t.Fatalf("create failed: %v", err)
	}

	tooMany := make([]*rights.Right_t, ipc.MaxMessageRights+1)
	for i := range tooMany {
		r, err := table.CreateForGroup(ipc.NewPort(defs.PortId_t(i+2)), 7, rights.SendMany, 0)
		if err != 0 {
			t.Fatalf("create carried right failed: %v", err)
		}
		tooMany[i] = r
	}

	res := Dispatch(v, table, 0, nil, Args_t{
		Num: SysRightSendMessage, Right: right, Group: 7, Buf: 0x400000, Len: 2,
		MsgType: defs.MsgTimerReply, RightsIn: tooMany,
	})
	if res.Err != defs.EINVAL {
		t.Fatalf("expected InvalidArgument for an oversized rights array, got %v", res.Err)
	}
	if !right.Alive() {
		t.Fatal("expected the sending right to survive a rejected send")
	}
}

func TestDispatchUnknownSyscallFailsInvalidArgument(t *testing.T) {
	res := Dispatch(nil, nil, 0, nil, Args_t{Num: Num_t(999)})
	if res.Err != defs.EINVAL {
		t.Fatalf("expected InvalidArgument, got %v", res.Err)
	}
}
