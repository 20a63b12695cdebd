package rights

import (
	"testing"

	"defs"
	"ipc"
)

func TestCreateForGroupAssignsMonotonicSenderIds(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	r1, err := table.CreateForGroup(port, 42, SendMany, 0)
	if err != 0 {
		t.Fatalf("create failed: %v", err)
	}
	r2, err := table.CreateForGroup(port, 42, SendMany, 0)
	if err != 0 {
		t.Fatalf("create failed: %v", err)
	}
	if r1.SenderId() == 0 || r2.SenderId() != r1.SenderId()+1 {
		t.Fatalf("expected monotonic sender ids, got %d then %d", r1.SenderId(), r2.SenderId())
	}
}

func TestCreateForGroupFailsOnDeadPort(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	port.Kill()
	if _, err := table.CreateForGroup(port, 1, SendMany, 0); err != defs.EPORTDEAD {
		t.Fatalf("expected PortDead, got %v", err)
	}
}

func TestSendOnceRightDiesAfterOneSend(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	r, _ := table.CreateForGroup(port, 1, SendOnce, 0)
	if !r.Alive() {
		t.Fatal("expected right to be alive before use")
	}
	if err := table.SendMessageRight(defs.MsgTimerReply, r, 1, nil, nil, []byte("hi")); err != 0 {
		t.Fatalf("send failed: %v", err)
	}
	if r.Alive() {
		t.Fatal("expected a SendOnce right to die after a successful send")
	}
	if err := table.SendMessageRight(defs.MsgTimerReply, r, 1, nil, nil, []byte("again")); err != defs.ERIGHTDEAD {
		t.Fatalf("expected RightDead on reuse, got %v", err)
	}
}

func TestSendManyRightSurvivesMultipleSends(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	r, _ := table.CreateForGroup(port, 1, SendMany, 0)
	for i := 0; i < 3; i++ {
		if err := table.SendMessageRight(defs.MsgTimerReply, r, 1, nil, nil, []byte("x")); err != 0 {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	if !r.Alive() {
		t.Fatal("expected SendMany right to survive repeated sends")
	}
	if port.QueueLen() != 3 {
		t.Fatalf("expected 3 messages queued, got %d", port.QueueLen())
	}
}

func TestSendMessageRightRejectsWrongGroup(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	r, _ := table.CreateForGroup(port, 1, SendMany, 0)
	if err := table.SendMessageRight(defs.MsgTimerReply, r, 2, nil, nil, nil); err != defs.EWRONGOWN {
		t.Fatalf("expected WrongOwner, got %v", err)
	}
}

func TestSendMessageRightMintsReplyRightAtomically(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	replyPort := ipc.NewPort(2)
	r, _ := table.CreateForGroup(port, 1, SendMany, 0)

	if err := table.SendMessageRight(defs.MsgTimerReply, r, 1, replyPort, nil, []byte("ask")); err != 0 {
		t.Fatalf("send failed: %v", err)
	}
	m, err := port.Receive(0, false, nil)
	if err != 0 {
		t.Fatalf("receive failed: %v", err)
	}
	if len(m.Rights) != 1 {
		t.Fatalf("expected the message to carry exactly one reply right, got %d", len(m.Rights))
	}
	reply, ok := m.Rights[0].(*Right_t)
	if !ok || reply.Port() != replyPort {
		t.Fatal("expected the carried right to be a reply right bound to replyPort")
	}
}

func TestSendMessageRightDetachesArrayEntriesFromGroup(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	otherPort := ipc.NewPort(2)
	r, _ := table.CreateForGroup(port, 1, SendMany, 0)
	carried, _ := table.CreateForGroup(otherPort, 1, SendMany, 0)

	if err := table.SendMessageRight(defs.MsgTimerReply, r, 1, nil, []*Right_t{carried}, []byte("payload")); err != 0 {
		t.Fatalf("send failed: %v", err)
	}
	if !carried.ofMessage {
		t.Fatal("expected the carried right to be marked of_message")
	}
	// A second send attempting to reuse `carried` as if it were still
	// group-owned should find it already detached from the group index.
	if _, ok := table.byGroup[1].bySender[carried.senderId]; ok {
		t.Fatal("expected carried right to be removed from the group index")
	}
}

func TestDestroyChecksOwningGroup(t *testing.T) {
	table := NewTable()
	port := ipc.NewPort(1)
	r, _ := table.CreateForGroup(port, 1, SendMany, 0)
	wrong := defs.GroupId_t(2)
	if err := table.Destroy(r, &wrong); err != defs.EWRONGOWN {
		t.Fatalf("expected WrongOwner, got %v", err)
	}
	right := defs.GroupId_t(1)
	if err := table.Destroy(r, &right); err != 0 {
		t.Fatalf("destroy failed: %v", err)
	}
	if r.Alive() {
		t.Fatal("expected right to be dead after destroy")
	}
}
