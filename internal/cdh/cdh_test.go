package cdh

import (
	"bytes"
	"context"
	"testing"
	"time"

	"beepsat/internal/audit"
	"beepsat/internal/domain"
	"beepsat/internal/sched"
)

type fakeControl struct {
	calls []string
}

func (f *fakeControl) SetActive(name string, active bool) error {
	state := "disable"
	if active {
		state = "enable"
	}
	f.calls = append(f.calls, state+":"+name)
	return nil
}

func (f *fakeControl) Defer(name string, at time.Time, fn domain.StepFunc) {}

type fakeFaults struct {
	cleared bool
}

func (f *fakeFaults) Clear() error {
	f.cleared = true
	return nil
}

type harness struct {
	cdh     *CDH
	inbox   *Inbox
	store   *memStore
	sys     *domain.SystemState
	clock   *sched.ManualClock
	control *fakeControl
	faults  *fakeFaults
	resets  []domain.FaultCode
	downs   int
	replies [][]byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   &memStore{},
		control: &fakeControl{},
		faults:  &fakeFaults{},
		clock:   sched.NewManualClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.inbox = NewInbox(16)
	interlock, err := NewInterlock(h.store, 30*time.Second)
	if err != nil {
		t.Fatalf("interlock: %v", err)
	}
	h.cdh = New(Options{
		Inbox:     h.inbox,
		Verifier:  NewVerifier(testSecret),
		Interlock: interlock,
		Audit:     audit.NewLoggerTo(&bytes.Buffer{}),
		Faults:    h.faults,
		Status: func() ([]byte, error) {
			return []byte(`{"uptime":1}`), nil
		},
		Respond: func(cmd domain.Command, payload []byte) {
			h.replies = append(h.replies, payload)
		},
		DrainBudget: 8,
	})
	h.sys = &domain.SystemState{
		Clock:   h.clock,
		Store:   h.store,
		Control: h.control,
		RequestReset: func(code domain.FaultCode) {
			h.resets = append(h.resets, code)
		},
		RequestShutdown: func() { h.downs++ },
	}
	return h
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	if _, err := h.cdh.Step(context.Background(), h.sys); err != nil {
		t.Fatalf("cdh step: %v", err)
	}
}

func (h *harness) offer(t *testing.T, cmd domain.Command) {
	t.Helper()
	if !h.inbox.Offer(cmd) {
		t.Fatal("inbox full")
	}
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := MintToken(testSecret, "operator-1", []string{ScopeCommand}, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func TestStep_PrivilegedWithoutTokenRejected(t *testing.T) {
	h := newHarness(t)
	h.offer(t, domain.Command{ID: domain.CmdDisableTask, Payload: []byte(`{"task":"beacon"}`)})
	h.step(t)

	c := h.store.Counters()
	if c.CmdRejected != 1 || c.CmdAccepted != 0 {
		t.Fatalf("counters = %+v, want 1 rejected 0 accepted", c)
	}
	if len(h.control.calls) != 0 {
		t.Fatalf("state mutated by unauthenticated command: %v", h.control.calls)
	}
}

func TestStep_AuthenticatedDisableEnable(t *testing.T) {
	h := newHarness(t)
	token := operatorToken(t)

	h.offer(t, domain.Command{ID: domain.CmdDisableTask, Payload: []byte(`{"task":"beacon"}`), AuthToken: token})
	h.offer(t, domain.Command{ID: domain.CmdEnableTask, Payload: []byte(`{"task":"beacon"}`), AuthToken: token})
	h.step(t)

	want := []string{"disable:beacon", "enable:beacon"}
	if len(h.control.calls) != 2 || h.control.calls[0] != want[0] || h.control.calls[1] != want[1] {
		t.Fatalf("control calls = %v, want %v", h.control.calls, want)
	}
	if c := h.store.Counters(); c.CmdAccepted != 2 {
		t.Fatalf("cmd_accepted = %d, want 2", c.CmdAccepted)
	}
}

func TestStep_DestructiveRequiresArmThenSingleUse(t *testing.T) {
	h := newHarness(t)
	token := operatorToken(t)

	// Without ARM: rejected, no reset.
	h.offer(t, domain.Command{ID: domain.CmdReset, AuthToken: token})
	h.step(t)
	if len(h.resets) != 0 {
		t.Fatal("unarmed RESET fired")
	}
	if c := h.store.Counters(); c.CmdRejected != 1 {
		t.Fatalf("cmd_rejected = %d, want 1", c.CmdRejected)
	}

	// ARM then RESET inside the window: exactly one reset.
	h.offer(t, domain.Command{ID: domain.CmdArm, Payload: []byte(`{"flag":"reset"}`), AuthToken: token})
	h.offer(t, domain.Command{ID: domain.CmdReset, AuthToken: token})
	h.step(t)
	if len(h.resets) != 1 {
		t.Fatalf("resets = %d, want 1", len(h.resets))
	}
	c := h.store.Counters()
	if c.ResetCount != 1 || c.LastFaultCode != domain.FaultCommanded {
		t.Fatalf("counters = %+v", c)
	}

	// The arm was consumed: a second RESET is rejected.
	h.offer(t, domain.Command{ID: domain.CmdReset, AuthToken: token})
	h.step(t)
	if len(h.resets) != 1 {
		t.Fatalf("resets = %d after consumed arm, want 1", len(h.resets))
	}
}

func TestStep_ArmExpiresBeforeUse(t *testing.T) {
	h := newHarness(t)
	token := operatorToken(t)

	h.offer(t, domain.Command{ID: domain.CmdArm, Payload: []byte(`{"flag":"reset"}`), AuthToken: token})
	h.step(t)

	h.clock.Advance(31 * time.Second) // past the 30s window
	h.offer(t, domain.Command{ID: domain.CmdReset, AuthToken: token})
	h.step(t)

	if len(h.resets) != 0 {
		t.Fatal("RESET fired on an expired arm")
	}
	if h.store.Counters().ArmedFlags != 0 {
		t.Fatal("expired arm flag still set")
	}
}

func TestStep_StatusIsPublic(t *testing.T) {
	h := newHarness(t)
	h.offer(t, domain.Command{ID: domain.CmdStatus})
	h.step(t)

	c := h.store.Counters()
	if c.CmdAccepted != 1 || c.GSResponses != 1 {
		t.Fatalf("counters = %+v, want accepted=1 gs_responses=1", c)
	}
	if len(h.replies) != 1 || string(h.replies[0]) != `{"uptime":1}` {
		t.Fatalf("replies = %q", h.replies)
	}
}

func TestStep_MalformedCommandIsIsolated(t *testing.T) {
	h := newHarness(t)
	token := operatorToken(t)

	// Bad payload first, valid command behind it in the same drain.
	h.offer(t, domain.Command{ID: domain.CmdArm, Payload: []byte(`{"flag":`), AuthToken: token})
	h.offer(t, domain.Command{ID: domain.CmdStatus})
	h.step(t)

	c := h.store.Counters()
	if c.CmdRejected != 1 {
		t.Fatalf("cmd_rejected = %d, want 1", c.CmdRejected)
	}
	if c.CmdAccepted != 1 {
		t.Fatalf("cmd_accepted = %d, want 1: bad command must not block the next", c.CmdAccepted)
	}
}

func TestStep_UnknownCommandRejected(t *testing.T) {
	h := newHarness(t)
	h.offer(t, domain.Command{ID: 0x99, AuthToken: operatorToken(t)})
	h.step(t)
	if c := h.store.Counters(); c.CmdRejected != 1 {
		t.Fatalf("cmd_rejected = %d, want 1", c.CmdRejected)
	}
}

func TestStep_ShutdownAndClearFaultsAndPowerMode(t *testing.T) {
	h := newHarness(t)
	token := operatorToken(t)

	h.offer(t, domain.Command{ID: domain.CmdClearFaults, AuthToken: token})
	h.offer(t, domain.Command{ID: domain.CmdPowerMode, Payload: []byte(`{"mode":"low"}`), AuthToken: token})
	h.offer(t, domain.Command{ID: domain.CmdArm, Payload: []byte(`{"flag":"reset"}`), AuthToken: token})
	h.offer(t, domain.Command{ID: domain.CmdShutdown, AuthToken: token})
	h.step(t)

	if !h.faults.cleared {
		t.Error("CLEAR_FAULTS did not reach the fault monitor")
	}
	if h.sys.PowerMode != domain.PowerLow {
		t.Errorf("power mode = %v, want low", h.sys.PowerMode)
	}
	if h.downs != 1 {
		t.Errorf("shutdowns = %d, want 1", h.downs)
	}
	if !h.sys.ShutdownPending {
		t.Error("shutdown pending flag not set for telemetry")
	}
}

func TestStep_CDHCannotDisableItself(t *testing.T) {
	h := newHarness(t)
	h.offer(t, domain.Command{ID: domain.CmdDisableTask, Payload: []byte(`{"task":"cdh"}`), AuthToken: operatorToken(t)})
	h.step(t)
	if len(h.control.calls) != 0 {
		t.Fatalf("control calls = %v, want none", h.control.calls)
	}
	if c := h.store.Counters(); c.CmdRejected != 1 {
		t.Fatalf("cmd_rejected = %d, want 1", c.CmdRejected)
	}
}

func TestStep_DrainBudgetBoundsOneInvocation(t *testing.T) {
	h := newHarness(t)
	h.cdh.budget = 2
	for i := 0; i < 3; i++ {
		h.offer(t, domain.Command{ID: domain.CmdStatus})
	}
	h.step(t)
	if pending := h.inbox.Pending(); pending != 1 {
		t.Fatalf("pending = %d after budgeted drain, want 1", pending)
	}
	h.step(t)
	if pending := h.inbox.Pending(); pending != 0 {
		t.Fatalf("pending = %d, want 0", pending)
	}
}
