package sched

import (
	"testing"
	"time"

	"archbits"
	"defs"
	"pmm"
	"task"
	"tempmap"
	"vm"
)

func newTestTask(t *testing.T, tid defs.Tid_t, hart defs.HartId_t) *task.Task_t {
	t.Helper()
	alloc := pmm.NewAllocator(0, 16)
	v := vm.NewVm(archbits.X86_64, archbits.Options{NXSupported: true}, alloc, tempmap.NewMapper(2), hart)
	tsk, err := task.NewTask(tid, v)
	if err != 0 {
		t.Fatalf("NewTask failed: %v", err)
	}
	tsk.Hart = hart
	return tsk
}

func TestPopReadyFallsBackToIdleWhenEmpty(t *testing.T) {
	idle := newTestTask(t, 0, 0)
	ph := NewPerHart(0, idle)
	next := ph.Switch(nil)
	if next != idle {
		t.Fatal("expected idle task when no ready task exists")
	}
}

func TestPushReadyRespectsPriorityOrder(t *testing.T) {
	idle := newTestTask(t, 0, 0)
	ph := NewPerHart(0, idle)
	lo := newTestTask(t, 1, 0)
	lo.Priority = task.PrioLow
	hi := newTestTask(t, 2, 0)
	hi.Priority = task.PrioHigh
	ph.PushReady(lo)
	ph.PushReady(hi)

	next := ph.Switch(nil)
	if next != hi {
		t.Fatalf("expected the high-priority task to run first, got tid %d", next.Tid)
	}
}

func TestSwitchRequeuesRunningTaskAtTail(t *testing.T) {
	idle := newTestTask(t, 0, 0)
	ph := NewPerHart(0, idle)
	a := newTestTask(t, 1, 0)
	b := newTestTask(t, 2, 0)
	ph.PushReady(a)
	ph.PushReady(b)

	first := ph.Switch(nil)
	if first != a {
		t.Fatalf("expected a to run first, got tid %d", first.Tid)
	}
	// first is now Running; simulate quantum expiry.
	second := ph.Switch(first)
	if second != b {
		t.Fatalf("expected b to run next, got tid %d", second.Tid)
	}
	third := ph.Switch(second)
	if third != first {
		t.Fatal("expected a, requeued at the tail, to run again after b")
	}
}

func TestDyingTaskIsNeverRequeued(t *testing.T) {
	idle := newTestTask(t, 0, 0)
	ph := NewPerHart(0, idle)
	a := newTestTask(t, 1, 0)
	ph.PushReady(a)
	ph.Switch(nil)
	a.Status = task.Dying
	next := ph.Switch(a)
	if next != idle {
		t.Fatal("expected idle to run since the dying task must not be requeued")
	}
}

type fakeIpiSender struct{ sentTo []defs.HartId_t }

func (f *fakeIpiSender) SendRescheduleIPI(h defs.HartId_t) { f.sentTo = append(f.sentTo, h) }

func TestWakeTaskSendsIpiWhenPreemptingLowerPriority(t *testing.T) {
	sender := &fakeIpiSender{}
	s := NewScheduler(sender)
	idle0 := newTestTask(t, 0, 0)
	ph0 := NewPerHart(0, idle0)
	s.AddHart(ph0)

	running := newTestTask(t, 1, 0)
	running.Priority = task.PrioLow
	ph0.PushReady(running)
	ph0.Switch(nil) // running becomes current

	waking := newTestTask(t, 2, 0)
	waking.Priority = task.PrioHigh
	s.WakeTask(waking)

	if len(sender.sentTo) != 1 || sender.sentTo[0] != 0 {
		t.Fatalf("expected exactly one reschedule IPI to hart 0, got %v", sender.sentTo)
	}
}

func TestWakeTaskSkipsIpiWhenCurrentIsHigherPriority(t *testing.T) {
	sender := &fakeIpiSender{}
	s := NewScheduler(sender)
	idle0 := newTestTask(t, 0, 0)
	ph0 := NewPerHart(0, idle0)
	s.AddHart(ph0)

	running := newTestTask(t, 1, 0)
	running.Priority = task.PrioHigh
	ph0.PushReady(running)
	ph0.Switch(nil)

	waking := newTestTask(t, 2, 0)
	waking.Priority = task.PrioLow
	s.WakeTask(waking)

	if len(sender.sentTo) != 0 {
		t.Fatalf("expected no IPI when the running task already has higher priority, got %v", sender.sentTo)
	}
}

func TestSwitchChargesOutgoingTaskAccounting(t *testing.T) {
	idle := newTestTask(t, 0, 0)
	ph := NewPerHart(0, idle)
	a := newTestTask(t, 1, 0)
	ph.PushReady(a)

	ph.Switch(nil) // a becomes current
	time.Sleep(time.Millisecond)
	ph.Switch(a) // a is switched out, charged for the time it ran

	if a.Accnt.Sysns <= 0 {
		t.Fatalf("expected Switch to charge elapsed time to the outgoing task, got Sysns=%d", a.Accnt.Sysns)
	}
}

func TestGenerationRefcounting(t *testing.T) {
	idle := newTestTask(t, 0, 0)
	ph := NewPerHart(0, idle)
	ph.EnterGeneration(7)
	ph.EnterGeneration(7)
	if ph.LeaveGeneration(7) {
		t.Fatal("expected generation 7 to still have one active user")
	}
	if !ph.LeaveGeneration(7) {
		t.Fatal("expected generation 7 to reach zero after the second leave")
	}
}
