package http2stream

import "testing"

func TestOpenStreamAllocatesOddIDsForClient(t *testing.T) {
	m := NewManager(true)
	s1, err := m.OpenStream()
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	s2, err := m.OpenStream()
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	if s1.ID != 1 || s2.ID != 3 {
		t.Errorf("expected odd IDs 1,3 got %d,%d", s1.ID, s2.ID)
	}
}

func TestOpenStreamAllocatesEvenIDsForServer(t *testing.T) {
	m := NewManager(false)
	s1, err := m.OpenStream()
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	if s1.ID != 2 {
		t.Errorf("expected even ID 2, got %d", s1.ID)
	}
}

func TestAcceptRemoteStreamRejectsNonIncreasing(t *testing.T) {
	m := NewManager(true)
	if _, err := m.AcceptRemoteStream(4); err != nil {
		t.Fatalf("AcceptRemoteStream() error = %v", err)
	}
	if _, err := m.AcceptRemoteStream(2); err == nil {
		t.Error("expected error for non-increasing stream id")
	}
}

func TestMarkEndStreamTransitions(t *testing.T) {
	m := NewManager(true)
	s, _ := m.OpenStream()

	if err := m.MarkEndStream(s.ID, true); err != nil {
		t.Fatalf("MarkEndStream() error = %v", err)
	}
	if got, _ := m.Get(s.ID); got.State != StateHalfClosedLocal {
		t.Errorf("expected half-closed-local, got %v", got.State)
	}
	if err := m.MarkEndStream(s.ID, false); err != nil {
		t.Fatalf("MarkEndStream() error = %v", err)
	}
	if got, _ := m.Get(s.ID); got.State != StateClosed {
		t.Errorf("expected closed, got %v", got.State)
	}
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	m := NewManager(true)
	s, _ := m.OpenStream()
	if err := m.Transition(s.ID, StateReservedLocal); err == nil {
		t.Error("expected error transitioning open -> reserved-local")
	}
}

func TestSetInitialSendWindowAppliesSynchronously(t *testing.T) {
	m := NewManager(true)
	s1, _ := m.OpenStream()
	s2, _ := m.OpenStream()

	if err := m.SetInitialSendWindow(100); err != nil {
		t.Fatalf("SetInitialSendWindow() error = %v", err)
	}
	got1, _ := m.Get(s1.ID)
	got2, _ := m.Get(s2.ID)
	if got1.SendWindow != 100 || got2.SendWindow != 100 {
		t.Errorf("expected both streams retroactively adjusted to 100, got %d and %d", got1.SendWindow, got2.SendWindow)
	}

	// A second adjustment applies the delta, not an absolute reset.
	if err := m.SetInitialSendWindow(50); err != nil {
		t.Fatalf("SetInitialSendWindow() error = %v", err)
	}
	got1, _ = m.Get(s1.ID)
	if got1.SendWindow != 50 {
		t.Errorf("expected send window 50 after second adjustment, got %d", got1.SendWindow)
	}
}

func TestSetInitialSendWindowSkipsClosedStreams(t *testing.T) {
	m := NewManager(true)
	s, _ := m.OpenStream()
	m.ResetStream(s.ID)

	if err := m.SetInitialSendWindow(1000); err != nil {
		t.Fatalf("SetInitialSendWindow() error = %v", err)
	}
	got, _ := m.Get(s.ID)
	if got.SendWindow != 65535 {
		t.Errorf("closed stream's window should not move, got %d", got.SendWindow)
	}
}

func TestConsumeSendWindowNeedsUpdate(t *testing.T) {
	m := NewManager(true)
	s, _ := m.OpenStream()
	m.SetInitialSendWindow(10)

	if err := m.ConsumeSendWindow(s.ID, 5); err != nil {
		t.Fatalf("ConsumeSendWindow() error = %v", err)
	}
	if err := m.ConsumeSendWindow(s.ID, 100); err == nil {
		t.Error("expected error consuming more than available window")
	}
}

func TestConsumeRecvWindowDetectsOverrun(t *testing.T) {
	m := NewManager(true)
	s, _ := m.AcceptRemoteStream(2)

	if _, _, err := m.ConsumeRecvWindow(s.ID, 65535); err != nil {
		t.Fatalf("ConsumeRecvWindow() error = %v", err)
	}
	if _, _, err := m.ConsumeRecvWindow(s.ID, 1); err == nil {
		t.Error("expected flow control error when peer exceeds recv window")
	}
}

func TestApplyWindowUpdateConnectionLevel(t *testing.T) {
	m := NewManager(true)
	if err := m.ApplyWindowUpdate(0, 1000); err != nil {
		t.Fatalf("ApplyWindowUpdate() error = %v", err)
	}
	if m.ConnSendWindow != 65535+1000 {
		t.Errorf("expected connection send window %d, got %d", 65535+1000, m.ConnSendWindow)
	}
}
